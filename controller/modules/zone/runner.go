package zone

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// run is the durable record of an in-flight watering, keyed by zone id.
// Its presence is what keeps the shared master/fertilizer valves open,
// and it is what lets a restart pick up pending stop transitions.
type run struct {
	Zone     string        `json:"zone"`
	Depth    float64       `json:"depth"` // inches; 0 for open-ended manual runs
	Fert     Fert          `json:"fert"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"` // 0 means run until switched off
}

// RunDuration applies the irrigators' equation Q*t = d*A:
// hours = (depth / efficiency) * (area / 43560) / (flow / 448.83).
func RunDuration(depth float64, z Zone) time.Duration {
	if z.Efficiency <= 0 || z.Flow <= 0 {
		return 0
	}
	hours := (depth / z.Efficiency) * (z.Area / 43560.0) / (z.Flow / 448.83)
	return time.Duration(hours * float64(time.Hour))
}

// AppliedDepth inverts the irrigators' equation to derive how many
// inches a run of the given length put down. Used for manual runs that
// have no target depth.
func AppliedDepth(elapsed time.Duration, z Zone) float64 {
	if z.Area <= 0 {
		return 0
	}
	return elapsed.Hours() * (z.Flow / 448.83) / (z.Area / 43560.0) * z.Efficiency
}

// Fire transitions a zone from IDLE to RUNNING for a scheduled event.
// A fire against an already-running zone is an idempotent no-op, which
// is what absorbs at-least-once job delivery.
func (c *Controller) Fire(zoneID string, depth float64, fert Fert) error {
	lk := c.zoneLock(zoneID)
	lk.Lock()
	defer lk.Unlock()
	z, err := c.Get(zoneID)
	if err != nil {
		return err
	}
	if z.Kind != Plantable {
		return fmt.Errorf("zone '%s' is not plantable", zoneID)
	}
	if z.Running {
		c.c.LogError("zone-"+zoneID, "already running, ignoring duplicate fire")
		return nil
	}
	return c.startRun(z, depth, fert, RunDuration(depth, z))
}

// Switch is the manual override. Control zones toggle their raw valve;
// plantable zones start or stop an open-ended run.
func (c *Controller) Switch(id string, on bool) error {
	lk := c.zoneLock(id)
	lk.Lock()
	z, err := c.Get(id)
	if err != nil {
		lk.Unlock()
		return err
	}
	if z.Kind == Control {
		defer lk.Unlock()
		if err := c.writeValve(z.Valve, on); err != nil {
			c.c.LogError("zone-"+id, "hardware fault switching valve: "+err.Error())
			return err
		}
		z.Running = on
		if on {
			z.Started = time.Now()
		} else {
			z.Started = time.Time{}
		}
		c.appendLog(fmt.Sprintf("%s: manually switched %s", z.Name, onOff(on)))
		return c.c.Store().Update(Bucket, id, &z)
	}
	if on {
		defer lk.Unlock()
		if z.Running {
			return nil
		}
		return c.startRun(z, 0, Fert{}, 0)
	}
	lk.Unlock()
	return c.StopRun(id)
}

// startRun performs the IDLE -> RUNNING transition. Caller holds the
// zone lock.
func (c *Controller) startRun(z Zone, depth float64, fert Fert, dur time.Duration) error {
	if err := c.writeValve(z.Valve, true); err != nil {
		c.c.LogError("zone-"+z.ID, "hardware fault opening valve: "+err.Error())
		return err
	}
	if err := c.setShared(c.config.MasterValve, true); err != nil {
		c.writeValve(z.Valve, false)
		c.c.LogError("zone-"+z.ID, "hardware fault opening master valve: "+err.Error())
		return err
	}
	if !fert.IsZero() {
		if err := c.setShared(c.config.FertilizerValve, true); err != nil {
			c.c.LogError("zone-"+z.ID, "fertilizer valve failed, watering without: "+err.Error())
			fert = Fert{}
		}
	}
	now := time.Now()
	z.Running = true
	z.Started = now
	if err := c.c.Store().Update(Bucket, z.ID, &z); err != nil {
		c.rollbackStart(z, fert)
		c.c.LogError("zone-"+z.ID, "failed to persist run state: "+err.Error())
		return err
	}
	r := run{Zone: z.ID, Depth: depth, Fert: fert, Started: now, Duration: dur}
	if err := c.c.Store().CreateWithID(RunBucket, z.ID, &r); err != nil {
		z.Running = false
		z.Started = time.Time{}
		if uerr := c.c.Store().Update(Bucket, z.ID, &z); uerr != nil {
			c.c.LogError("zone-"+z.ID, "failed to revert run state: "+uerr.Error())
		}
		c.rollbackStart(z, fert)
		c.c.LogError("zone-"+z.ID, "failed to persist run record: "+err.Error())
		return err
	}
	if dur > 0 {
		c.scheduleStop(z.ID, dur)
	}
	c.c.Telemetry().EmitMetric("zone", z.Name+"-state", 1)
	c.appendLog(fmt.Sprintf("%s: watering started (%.2f in over %s)", z.Name, depth, dur.Round(time.Second)))
	return nil
}

// StopRun performs the RUNNING -> IDLE transition: close the zone valve,
// release the shared valves if nobody else needs them, book the applied
// water and append a usage record.
func (c *Controller) StopRun(id string) error {
	lk := c.zoneLock(id)
	lk.Lock()
	defer lk.Unlock()
	z, err := c.Get(id)
	if err != nil {
		return err
	}
	if !z.Running {
		return nil
	}
	var r run
	if err := c.c.Store().Get(RunBucket, id, &r); err != nil {
		r = run{Zone: id, Started: z.Started}
	}
	c.cancelStop(id)
	if err := c.writeValve(z.Valve, false); err != nil {
		// The relay may still be energized; flag it loudly but clear the
		// logical state so future cycles are not blocked.
		c.c.LogError("zone-"+id, "hardware fault closing valve: "+err.Error())
	}
	c.c.Store().Delete(RunBucket, id)
	needMaster, needFert := c.sharedDemand(id)
	if !needMaster {
		if err := c.setShared(c.config.MasterValve, false); err != nil {
			c.c.LogError("zone-"+id, "hardware fault closing master valve: "+err.Error())
		}
	}
	if !needFert {
		if err := c.setShared(c.config.FertilizerValve, false); err != nil {
			c.c.LogError("zone-"+id, "hardware fault closing fertilizer valve: "+err.Error())
		}
	}
	now := time.Now()
	started := z.Started
	elapsed := now.Sub(started)
	depth := r.Depth
	if depth == 0 {
		depth = AppliedDepth(elapsed, z)
	}
	z.AvailableWater = math.Min(z.SWHC, z.AvailableWater+depth)
	z.Running = false
	z.Started = time.Time{}
	if !r.Fert.IsZero() {
		z.LastFertilized = now
	}
	if err := c.c.Store().Update(Bucket, id, &z); err != nil {
		return err
	}
	gallons := z.Flow * elapsed.Hours()
	if err := c.SaveUsage(Usage{Zone: id, Start: started, Stop: now, Gallons: gallons, Fert: r.Fert}); err != nil {
		c.c.LogError("zone-"+id, "failed to record usage: "+err.Error())
	}
	c.c.Telemetry().EmitMetric("zone", z.Name+"-state", 0)
	c.c.Telemetry().EmitMetric("zone", z.Name+"-gallons", gallons)
	c.appendLog(fmt.Sprintf("%s: watering stopped, %s gal applied over %s", z.Name, humanize.Commaf(gallons), elapsed.Round(time.Second)))
	return nil
}

// Start recovers in-flight runs from the last process lifetime: overdue
// stops fire immediately, pending ones are rescheduled for the
// remainder. Open-ended manual runs stay open.
func (c *Controller) Start() {
	var runs []run
	c.c.Store().List(RunBucket, func(_ string, v []byte) error {
		var r run
		if err := json.Unmarshal(v, &r); err == nil {
			runs = append(runs, r)
		}
		return nil
	})
	for _, r := range runs {
		if r.Duration == 0 {
			continue
		}
		remaining := time.Until(r.Started.Add(r.Duration))
		if remaining <= 0 {
			if err := c.StopRun(r.Zone); err != nil {
				c.c.LogError("zone-"+r.Zone, "failed to stop recovered run: "+err.Error())
			}
			continue
		}
		c.scheduleStop(r.Zone, remaining)
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

func (c *Controller) scheduleStop(id string, d time.Duration) {
	quit := make(chan struct{})
	c.mu.Lock()
	if old, ok := c.quitters[id]; ok {
		close(old)
	}
	c.quitters[id] = quit
	c.mu.Unlock()
	go func() {
		select {
		case <-time.After(d):
			if err := c.StopRun(id); err != nil {
				c.c.LogError("zone-"+id, "scheduled stop failed: "+err.Error())
			}
		case <-quit:
		}
	}()
}

func (c *Controller) cancelStop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if quit, ok := c.quitters[id]; ok {
		close(quit)
		delete(c.quitters, id)
	}
}

// rollbackStart closes the valves a failed start left energized, so a
// persistence error never leaves water flowing with no stop job. Shared
// valves close only when no other run still needs them.
func (c *Controller) rollbackStart(z Zone, fert Fert) {
	if err := c.writeValve(z.Valve, false); err != nil {
		c.c.LogError("zone-"+z.ID, "hardware fault closing valve during rollback: "+err.Error())
	}
	needMaster, needFert := c.sharedDemand(z.ID)
	if !needMaster {
		if err := c.setShared(c.config.MasterValve, false); err != nil {
			c.c.LogError("zone-"+z.ID, "hardware fault closing master valve during rollback: "+err.Error())
		}
	}
	if !fert.IsZero() && !needFert {
		if err := c.setShared(c.config.FertilizerValve, false); err != nil {
			c.c.LogError("zone-"+z.ID, "hardware fault closing fertilizer valve during rollback: "+err.Error())
		}
	}
}

// writeValve retries a failed relay write once before giving up.
func (c *Controller) writeValve(bit int, on bool) error {
	if err := c.valves.SetValve(bit, on); err != nil {
		if err2 := c.valves.SetValve(bit, on); err2 != nil {
			return err2
		}
	}
	return nil
}

// setShared drives a shared control valve identified by zone id. An
// unconfigured valve is a no-op.
func (c *Controller) setShared(zoneID string, on bool) error {
	if zoneID == "" {
		return nil
	}
	z, err := c.Get(zoneID)
	if err != nil {
		return fmt.Errorf("shared valve zone '%s': %w", zoneID, err)
	}
	return c.writeValve(z.Valve, on)
}

// sharedDemand reports whether any run other than the excluded zone
// still needs the master valve, and the fertilizer valve, open. Demand
// is derived from the durable run records so it survives restarts.
func (c *Controller) sharedDemand(exclude string) (master, fert bool) {
	c.c.Store().List(RunBucket, func(id string, v []byte) error {
		if id == exclude {
			return nil
		}
		var r run
		if err := json.Unmarshal(v, &r); err != nil {
			return nil
		}
		master = true
		if !r.Fert.IsZero() {
			fert = true
		}
		return nil
	})
	return master, fert
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
