// Package planting tracks what is planted in which zone and for how
// long, and keeps each zone's depletion target in sync with it.
package planting

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/garden-pi/garden-pi/controller"
	"github.com/garden-pi/garden-pi/controller/modules/zone"
)

const Bucket = "plantings"

// Planting is one crop instance assigned to a zone.
type Planting struct {
	ID        string    `json:"id"`
	Zone      string    `json:"zone"`
	Crop      string    `json:"crop"`
	Planted   time.Time `json:"planted"`
	AgeOffset int       `json:"age_offset"` // days old when planted (transplants)
	MAD       float64   `json:"mad"`        // percent
	Count     int       `json:"count"`
	Area      float64   `json:"area"` // square feet
}

func (p *Planting) Validate() error {
	if p.Zone == "" {
		return fmt.Errorf("planting must name a zone")
	}
	if p.Crop == "" {
		return fmt.Errorf("planting must name a crop")
	}
	if p.Planted.IsZero() {
		return fmt.Errorf("planting date can not be empty")
	}
	if p.MAD < 0 || p.MAD > 100 {
		return fmt.Errorf("mad must be within 0-100")
	}
	if p.AgeOffset < 0 {
		return fmt.Errorf("age offset can not be negative")
	}
	return nil
}

// AgeOn returns the plant age in days on the given day.
func (p *Planting) AgeOn(day time.Time) int {
	return int(day.Sub(p.Planted).Hours()/24) + p.AgeOffset
}

type Controller struct {
	c     controller.Controller
	zones *zone.Controller
}

func New(c controller.Controller, zones *zone.Controller) (*Controller, error) {
	for _, b := range []string{Bucket, CropBucket} {
		if err := c.Store().CreateBucket(b); err != nil {
			return nil, err
		}
	}
	return &Controller{c: c, zones: zones}, nil
}

func (c *Controller) Get(id string) (Planting, error) {
	var p Planting
	return p, c.c.Store().Get(Bucket, id, &p)
}

func (c *Controller) List() ([]Planting, error) {
	plantings := []Planting{}
	err := c.c.Store().List(Bucket, func(_ string, v []byte) error {
		var p Planting
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		plantings = append(plantings, p)
		return nil
	})
	return plantings, err
}

func (c *Controller) ListByZone(zoneID string) ([]Planting, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}
	plantings := []Planting{}
	for _, p := range all {
		if p.Zone == zoneID {
			plantings = append(plantings, p)
		}
	}
	return plantings, nil
}

func (c *Controller) Create(p Planting) (string, error) {
	if err := c.check(p); err != nil {
		return "", err
	}
	fn := func(id string) interface{} {
		p.ID = id
		return &p
	}
	if err := c.c.Store().Create(Bucket, fn); err != nil {
		return "", err
	}
	return p.ID, c.UpdatePlantings(p.Zone)
}

func (c *Controller) Update(id string, p Planting) error {
	if err := c.check(p); err != nil {
		return err
	}
	old, err := c.Get(id)
	if err != nil {
		return err
	}
	p.ID = id
	if err := c.c.Store().Update(Bucket, id, &p); err != nil {
		return err
	}
	if old.Zone != p.Zone {
		return c.UpdatePlantings(old.Zone, p.Zone)
	}
	return c.UpdatePlantings(p.Zone)
}

// Delete removes a planting and recomputes its zone's depletion target.
func (c *Controller) Delete(id string) error {
	p, err := c.Get(id)
	if err != nil {
		return err
	}
	if err := c.c.Store().Delete(Bucket, id); err != nil {
		return err
	}
	return c.UpdatePlantings(p.Zone)
}

// check validates the planting and its references before any write.
func (c *Controller) check(p Planting) error {
	if err := p.Validate(); err != nil {
		return err
	}
	z, err := c.zones.Get(p.Zone)
	if err != nil {
		return fmt.Errorf("zone '%s': %w", p.Zone, err)
	}
	if z.Kind != zone.Plantable {
		return fmt.Errorf("zone '%s' is not plantable", p.Zone)
	}
	if _, err := c.GetCrop(p.Crop); err != nil {
		return fmt.Errorf("crop '%s': %w", p.Crop, err)
	}
	return nil
}

// UpdatePlantings recomputes each zone's MAD as the arithmetic mean of
// its plantings' MAD (0 if none) and refreshes the planting count. It is
// idempotent: with no planting changes, repeated calls persist the same
// values.
func (c *Controller) UpdatePlantings(zoneIDs ...string) error {
	for _, id := range zoneIDs {
		plantings, err := c.ListByZone(id)
		if err != nil {
			return err
		}
		mad := 0.0
		for _, p := range plantings {
			mad += p.MAD
		}
		if len(plantings) > 0 {
			mad /= float64(len(plantings))
		}
		count := len(plantings)
		if err := c.zones.Adjust(id, func(z *zone.Zone) {
			z.MAD = mad
			z.Plantings = count
		}); err != nil {
			return err
		}
	}
	return nil
}
