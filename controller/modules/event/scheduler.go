package event

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// schedule enqueues the job for an event. One-shot events whose start
// has already passed are treated as missed, not retried; repeating
// events whose recurrence has ended are equally a no-op.
func (c *Controller) schedule(ev Event) {
	if ev.Repeats() {
		c.scheduleRepeating(ev)
		return
	}
	delay := time.Until(ev.Start)
	if delay < 0 {
		c.c.LogError("event-"+ev.ID, "start time already past, not scheduling")
		return
	}
	quit := c.newQuitter(ev.ID)
	go func() {
		select {
		case <-time.After(delay):
			done, ok := c.claim(ev.ID, quit)
			if !ok {
				return
			}
			c.fire(ev)
			c.finish(ev.ID, done)
			c.clear(ev.ID, quit)
		case <-quit:
		}
	}()
}

func (c *Controller) scheduleRepeating(ev Event) {
	if !ev.RepeatEnd.IsZero() && ev.RepeatEnd.Before(time.Now()) {
		c.c.LogError("event-"+ev.ID, "recurrence already ended, not scheduling")
		return
	}
	rr, err := rrule.StrToRRule(ev.ruleString())
	if err != nil {
		c.c.LogError("event-"+ev.ID, "invalid recurrence: "+err.Error())
		return
	}
	quit := c.newQuitter(ev.ID)
	go func() {
		for {
			next := rr.After(time.Now(), false)
			if next.IsZero() {
				c.clear(ev.ID, quit)
				return
			}
			select {
			case <-time.After(time.Until(next)):
				done, ok := c.claim(ev.ID, quit)
				if !ok {
					return
				}
				c.fire(ev)
				c.finish(ev.ID, done)
			case <-quit:
				return
			}
		}
	}()
}

func (c *Controller) fire(ev Event) {
	if err := c.firer.Fire(ev.Zone, ev.Depth, ev.Fert); err != nil {
		c.c.LogError("event-"+ev.ID, "firing failed: "+err.Error())
		return
	}
	c.c.Telemetry().EmitMetric("event", "fired", 1)
}

// occurrences expands an event within [from, to].
func (c *Controller) occurrences(ev Event, from, to time.Time) []time.Time {
	if !ev.Repeats() {
		if (from.IsZero() || !ev.Start.Before(from)) && (to.IsZero() || !ev.Start.After(to)) {
			return []time.Time{ev.Start}
		}
		return nil
	}
	rr, err := rrule.StrToRRule(ev.ruleString())
	if err != nil {
		c.c.LogError("event-"+ev.ID, "invalid recurrence: "+err.Error())
		return nil
	}
	return rr.Between(from, to, true)
}

// newQuitter registers a fresh quitter for the event id, replacing (and
// closing) any previous one, so at most one job per id is ever live.
func (c *Controller) newQuitter(id string) chan struct{} {
	quit := make(chan struct{})
	c.mu.Lock()
	if old, ok := c.quitters[id]; ok {
		close(old)
	}
	c.quitters[id] = quit
	c.mu.Unlock()
	return quit
}

// claim atomically verifies quit is still the registered job for id and
// marks the firing as in-flight. A job that can not claim was cancelled
// and must not fire.
func (c *Controller) claim(id string, quit chan struct{}) (chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quitters[id] != quit {
		return nil, false
	}
	done := make(chan struct{})
	c.inflight[id] = done
	return done, true
}

func (c *Controller) finish(id string, done chan struct{}) {
	c.mu.Lock()
	if c.inflight[id] == done {
		delete(c.inflight, id)
	}
	c.mu.Unlock()
	close(done)
}

func (c *Controller) clear(id string, quit chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quitters[id] == quit {
		delete(c.quitters, id)
	}
}

// cancel removes the job and waits out any firing already in flight, so
// after it returns the event can not fire.
func (c *Controller) cancel(id string) {
	c.mu.Lock()
	if quit, ok := c.quitters[id]; ok {
		delete(c.quitters, id)
		close(quit)
	}
	done := c.inflight[id]
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// scheduled reports whether an event currently has a live job. Test and
// status hook.
func (c *Controller) scheduled(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.quitters[id]
	return ok
}

func (c *Controller) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("event scheduler (%d live jobs)", len(c.quitters))
}
