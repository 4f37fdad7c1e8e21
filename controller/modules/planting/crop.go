package planting

import (
	"encoding/json"
	"fmt"

	"github.com/garden-pi/garden-pi/controller/modules/zone"
)

const CropBucket = "crops"

// Stage is one growth stage of a crop's reference table: a duration, a
// crop coefficient, and an optional nutrient schedule.
type Stage struct {
	Days     int     `json:"days"`
	Kc       float64 `json:"kc"`
	N        float64 `json:"n"`
	P        float64 `json:"p"`
	K        float64 `json:"k"`
	FertDays int     `json:"fert_days"` // fertilize every n days during this stage; 0 = never
}

func (s Stage) Fert() zone.Fert {
	return zone.Fert{N: s.N, P: s.P, K: s.K}
}

// Crop is a reference growth table with the classic four FAO-56 stages.
type Crop struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Stages [4]Stage `json:"stages"` // init, dev, mid, late
}

func (c *Crop) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("crop name can not be empty")
	}
	for i, s := range c.Stages {
		if s.Days < 0 {
			return fmt.Errorf("stage %d duration can not be negative", i)
		}
		if s.Kc < 0 {
			return fmt.Errorf("stage %d kc can not be negative", i)
		}
	}
	return nil
}

// StageAt selects the growth stage for a plant age in days. Stage
// boundaries are cumulative: init, init+dev, init+dev+mid; anything
// beyond is late.
func (c *Crop) StageAt(age int) Stage {
	cum := 0
	for i := 0; i < 3; i++ {
		cum += c.Stages[i].Days
		if age < cum {
			return c.Stages[i]
		}
	}
	return c.Stages[3]
}

func (c *Controller) GetCrop(id string) (Crop, error) {
	var crop Crop
	return crop, c.c.Store().Get(CropBucket, id, &crop)
}

func (c *Controller) ListCrops() ([]Crop, error) {
	crops := []Crop{}
	err := c.c.Store().List(CropBucket, func(_ string, v []byte) error {
		var cr Crop
		if err := json.Unmarshal(v, &cr); err != nil {
			return err
		}
		crops = append(crops, cr)
		return nil
	})
	return crops, err
}

func (c *Controller) CreateCrop(cr Crop) (string, error) {
	if err := cr.Validate(); err != nil {
		return "", err
	}
	fn := func(id string) interface{} {
		cr.ID = id
		return &cr
	}
	if err := c.c.Store().Create(CropBucket, fn); err != nil {
		return "", err
	}
	return cr.ID, nil
}

func (c *Controller) UpdateCrop(id string, cr Crop) error {
	if err := cr.Validate(); err != nil {
		return err
	}
	cr.ID = id
	return c.c.Store().Update(CropBucket, id, &cr)
}
