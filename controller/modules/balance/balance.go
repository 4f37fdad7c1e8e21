// Package balance is the decision engine: once a day it works out how
// much water every planted zone has lost to crop evapotranspiration and
// emits recharge events for the zones that crossed their depletion
// threshold.
package balance

import (
	"fmt"
	"time"

	"github.com/garden-pi/garden-pi/controller"
	"github.com/garden-pi/garden-pi/controller/modules/event"
	"github.com/garden-pi/garden-pi/controller/modules/planting"
	"github.com/garden-pi/garden-pi/controller/modules/zone"
)

type Config struct {
	TriggerTime string `yaml:"trigger_time" json:"trigger_time"` // HH:MM, local
}

type Controller struct {
	c         controller.Controller
	config    Config
	zones     *zone.Controller
	plantings *planting.Controller
	events    *event.Controller
	et        ETSource
	trigger   *trigger
}

func New(config Config, c controller.Controller, zones *zone.Controller, plantings *planting.Controller, events *event.Controller, et ETSource) *Controller {
	return &Controller{
		c:         c,
		config:    config,
		zones:     zones,
		plantings: plantings,
		events:    events,
		et:        et,
	}
}

func (c *Controller) Setup() error { return nil }

// Evaluate runs the water balance for every plantable zone with at
// least one planting and returns the ids of the recharge events it
// created. A failure in one zone never aborts the others: the zone is
// logged, skipped, and left untouched for the next cycle.
func (c *Controller) Evaluate(processDate, scheduleDate time.Time) ([]string, error) {
	zones, err := c.zones.ListByKind(zone.Plantable)
	if err != nil {
		return nil, err
	}
	created := []string{}
	for _, z := range zones {
		id, err := c.evaluateZone(z, processDate, scheduleDate)
		if err != nil {
			c.c.LogError("balance-"+z.ID, "skipping zone this cycle: "+err.Error())
			continue
		}
		if id != "" {
			created = append(created, id)
		}
	}
	c.c.Telemetry().EmitMetric("balance", "events", float64(len(created)))
	return created, nil
}

func (c *Controller) evaluateZone(z zone.Zone, processDate, scheduleDate time.Time) (string, error) {
	plantings, err := c.plantings.ListByZone(z.ID)
	if err != nil {
		return "", err
	}
	if len(plantings) == 0 {
		return "", nil
	}

	// A zone that has never been balanced gets a full recharge with a
	// first fertilizer dose, and starts its ledger today.
	if z.LastAdjusted.IsZero() {
		fert := c.fertDemand(z, plantings, processDate, true)
		id, err := c.emit(z, z.SWHC, fert, scheduleDate)
		if err != nil {
			return "", err
		}
		return id, c.zones.Adjust(z.ID, func(zz *zone.Zone) {
			zz.LastAdjusted = processDate
		})
	}

	etc, err := c.depletion(z, plantings, processDate)
	if err != nil {
		// Conservative: no event, LastAdjusted untouched, so the lost
		// days are re-integrated next cycle.
		return "", err
	}
	available := z.AvailableWater - etc
	if available < 0 {
		available = 0
	}

	var eventID string
	if available < z.SWHC*z.MAD/100 {
		depth := z.SWHC - available
		fert := c.fertDemand(z, plantings, processDate, false)
		eventID, err = c.emit(z, depth, fert, scheduleDate)
		if err != nil {
			return "", err
		}
	}
	return eventID, c.zones.Adjust(z.ID, func(zz *zone.Zone) {
		zz.AvailableWater = available
		zz.LastAdjusted = processDate
	})
}

// depletion integrates crop evapotranspiration over the days in
// (lastAdjusted, processDate]. Contributions are summed across
// plantings, each representing distinct planted area.
func (c *Controller) depletion(z zone.Zone, plantings []planting.Planting, processDate time.Time) (float64, error) {
	from := dateOnly(z.LastAdjusted)
	to := dateOnly(processDate)
	total := 0.0
	for _, p := range plantings {
		crop, err := c.plantings.GetCrop(p.Crop)
		if err != nil {
			return 0, fmt.Errorf("crop '%s': %w", p.Crop, err)
		}
		for day := from.AddDate(0, 0, 1); !day.After(to); day = day.AddDate(0, 0, 1) {
			eto, err := c.et.ETo(day)
			if err != nil {
				return 0, fmt.Errorf("eto for %s: %w", day.Format("2006-01-02"), err)
			}
			total += eto * crop.StageAt(p.AgeOn(day)).Kc
		}
	}
	return total, nil
}

// fertDemand sums the nutrient payloads of plantings whose crop stage
// calls for fertilization and whose zone has not been fed within the
// stage's interval. force skips the interval check (first dose).
func (c *Controller) fertDemand(z zone.Zone, plantings []planting.Planting, on time.Time, force bool) zone.Fert {
	var f zone.Fert
	for _, p := range plantings {
		crop, err := c.plantings.GetCrop(p.Crop)
		if err != nil {
			c.c.LogError("balance-"+z.ID, "crop lookup for fertilizer: "+err.Error())
			continue
		}
		stage := crop.StageAt(p.AgeOn(on))
		if stage.Fert().IsZero() {
			continue
		}
		if !force {
			if stage.FertDays <= 0 {
				continue
			}
			interval := time.Duration(stage.FertDays) * 24 * time.Hour
			if !z.LastFertilized.IsZero() && on.Sub(z.LastFertilized) < interval {
				continue
			}
		}
		f = f.Add(stage.Fert())
	}
	return f
}

// emit creates and schedules a recharge event at the zone's configured
// time-of-day on the schedule date. A zone whose time-of-day has already
// passed when the engine runs waters the next morning instead of
// getting an event that can never fire.
func (c *Controller) emit(z zone.Zone, depth float64, fert zone.Fert, scheduleDate time.Time) (string, error) {
	start := z.StartOfDay(scheduleDate)
	if start.Before(scheduleDate) {
		start = start.AddDate(0, 0, 1)
	}
	ev := event.Event{
		Zone:  z.ID,
		Title: z.Name + " recharge",
		Start: start,
		Depth: depth,
		Fert:  fert,
	}
	return c.events.Create(ev)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
