// Package event turns irrigation decisions into timed jobs. Events are
// persisted before they are scheduled, and every persisted event is
// rescheduled on startup, so a crash between the two never drops a
// watering.
package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/garden-pi/garden-pi/controller"
	"github.com/garden-pi/garden-pi/controller/modules/zone"
)

const Bucket = "events"

var weekdays = map[string]bool{
	"MO": true, "TU": true, "WE": true, "TH": true,
	"FR": true, "SA": true, "SU": true,
}

// Event is a scheduled irrigation instruction. A non-empty Repeat set
// makes it a master event: occurrences on matching weekdays up to
// RepeatEnd are materialized on read, but only the master carries a job.
type Event struct {
	ID        string    `json:"id"`
	Zone      string    `json:"zone"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	Depth     float64   `json:"depth"` // inches
	Fert      zone.Fert `json:"fert"`
	Repeat    []string  `json:"repeat,omitempty"` // rrule weekday codes MO..SU
	RepeatEnd time.Time `json:"repeat_end,omitempty"`
	Color     string    `json:"color,omitempty"`
}

func (e *Event) Validate() error {
	if e.Zone == "" {
		return fmt.Errorf("event must name a zone")
	}
	if e.Start.IsZero() {
		return fmt.Errorf("event start can not be empty")
	}
	if e.Depth < 0 {
		return fmt.Errorf("depth can not be negative")
	}
	for _, d := range e.Repeat {
		if !weekdays[d] {
			return fmt.Errorf("invalid repeat weekday '%s'", d)
		}
	}
	if !e.RepeatEnd.IsZero() && e.RepeatEnd.Before(e.Start) {
		return fmt.Errorf("repeat end precedes start")
	}
	return nil
}

func (e *Event) Repeats() bool {
	return len(e.Repeat) > 0
}

// ruleString builds the recurrence: the start's time-of-day crossed with
// the weekday set, active until RepeatEnd.
func (e *Event) ruleString() string {
	s := "DTSTART=" + e.Start.UTC().Format("20060102T150405Z") +
		";FREQ=WEEKLY;BYDAY=" + strings.Join(e.Repeat, ",")
	if !e.RepeatEnd.IsZero() {
		s += ";UNTIL=" + e.RepeatEnd.UTC().Format("20060102T150405Z")
	}
	return s
}

// Occurrence is one display instance of an event within a range query.
type Occurrence struct {
	Event
	Time time.Time `json:"time"`
}

// Firer executes an event when its job comes due. The zone coordinator
// implements it.
type Firer interface {
	Fire(zoneID string, depth float64, fert zone.Fert) error
}

type Controller struct {
	c        controller.Controller
	firer    Firer
	mu       sync.Mutex
	quitters map[string]chan struct{}
	inflight map[string]chan struct{}
}

func New(c controller.Controller, firer Firer) (*Controller, error) {
	if err := c.Store().CreateBucket(Bucket); err != nil {
		return nil, err
	}
	return &Controller{
		c:        c,
		firer:    firer,
		quitters: make(map[string]chan struct{}),
		inflight: make(map[string]chan struct{}),
	}, nil
}

func (c *Controller) Setup() error { return nil }

// Start rebuilds every job from the events bucket. This is the
// durability half of the scheduler: job state is never the only record
// of a pending watering.
func (c *Controller) Start() {
	events, err := c.List()
	if err != nil {
		c.c.LogError("event", "failed to load events: "+err.Error())
		return
	}
	for _, ev := range events {
		c.schedule(ev)
	}
}

func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, quit := range c.quitters {
		close(quit)
		delete(c.quitters, id)
	}
}

func (c *Controller) Get(id string) (Event, error) {
	var ev Event
	return ev, c.c.Store().Get(Bucket, id, &ev)
}

func (c *Controller) List() ([]Event, error) {
	events := []Event{}
	err := c.c.Store().List(Bucket, func(_ string, v []byte) error {
		var ev Event
		if err := json.Unmarshal(v, &ev); err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}

// Range materializes event occurrences within [from, to] for display,
// sorted by time. Non-repeating events contribute at most one.
func (c *Controller) Range(from, to time.Time) ([]Occurrence, error) {
	events, err := c.List()
	if err != nil {
		return nil, err
	}
	occurrences := []Occurrence{}
	for _, ev := range events {
		for _, ts := range c.occurrences(ev, from, to) {
			occurrences = append(occurrences, Occurrence{Event: ev, Time: ts})
		}
	}
	sort.Slice(occurrences, func(i, j int) bool {
		return occurrences[i].Time.Before(occurrences[j].Time)
	})
	return occurrences, nil
}

// Create persists the event, then schedules it. Returns the new id.
func (c *Controller) Create(ev Event) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}
	fn := func(id string) interface{} {
		ev.ID = id
		return &ev
	}
	if err := c.c.Store().Create(Bucket, fn); err != nil {
		return "", err
	}
	c.schedule(ev)
	return ev.ID, nil
}

// Update replaces an event as a cancel-then-reschedule transaction, so
// there is at most one live job per event id at any time.
func (c *Controller) Update(id string, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if _, err := c.Get(id); err != nil {
		return err
	}
	c.cancel(id)
	ev.ID = id
	if err := c.c.Store().Update(Bucket, id, &ev); err != nil {
		return err
	}
	c.schedule(ev)
	return nil
}

// Delete cancels the job and removes the record. Unknown ids surface
// storage.ErrDoesNotExist, not a crash.
func (c *Controller) Delete(id string) error {
	if _, err := c.Get(id); err != nil {
		return err
	}
	c.cancel(id)
	return c.c.Store().Delete(Bucket, id)
}
