package zone

import (
	"encoding/json"
	"sort"
	"time"
)

// Usage is one completed irrigation run. Records are append-only;
// corrections happen by clearing a zone's history, never by editing.
type Usage struct {
	ID      string    `json:"id"`
	Zone    string    `json:"zone"`
	Start   time.Time `json:"start"`
	Stop    time.Time `json:"stop"`
	Gallons float64   `json:"gallons"`
	Fert    Fert      `json:"fert"`
}

func (c *Controller) SaveUsage(u Usage) error {
	return c.c.Store().Create(UsageBucket, func(id string) interface{} {
		u.ID = id
		return &u
	})
}

// ListUsage returns a zone's runs within [from, to], oldest first. Zero
// bounds are open-ended.
func (c *Controller) ListUsage(zoneID string, from, to time.Time) ([]Usage, error) {
	usages := []Usage{}
	err := c.c.Store().List(UsageBucket, func(_ string, v []byte) error {
		var u Usage
		if err := json.Unmarshal(v, &u); err != nil {
			return nil
		}
		if u.Zone != zoneID {
			return nil
		}
		if !from.IsZero() && u.Start.Before(from) {
			return nil
		}
		if !to.IsZero() && u.Start.After(to) {
			return nil
		}
		usages = append(usages, u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(usages, func(i, j int) bool {
		return usages[i].Start.Before(usages[j].Start)
	})
	return usages, nil
}

func (c *Controller) ClearUsage(zoneID string) error {
	var ids []string
	err := c.c.Store().List(UsageBucket, func(id string, v []byte) error {
		var u Usage
		if err := json.Unmarshal(v, &u); err == nil && u.Zone == zoneID {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := c.c.Store().Delete(UsageBucket, id); err != nil {
			return err
		}
	}
	return nil
}
