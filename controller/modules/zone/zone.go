package zone

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/garden-pi/garden-pi/controller"
)

const (
	Bucket      = "zones"
	UsageBucket = "zone_usage"
	RunBucket   = "zone_runs"
)

type Kind string

const (
	Control   Kind = "control"
	Plantable Kind = "plantable"
)

// Fert is an N/P/K fertilizer payload in ounces.
type Fert struct {
	N float64 `json:"n"`
	P float64 `json:"p"`
	K float64 `json:"k"`
}

func (f Fert) IsZero() bool {
	return f.N == 0 && f.P == 0 && f.K == 0
}

func (f Fert) Add(o Fert) Fert {
	return Fert{N: f.N + o.N, P: f.P + o.P, K: f.K + o.K}
}

// Zone is one irrigation unit, or a shared control valve (master,
// fertilizer). AvailableWater, Running and Started are owned by this
// module; nothing else writes them.
type Zone struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Kind           Kind      `json:"kind"`
	Valve          int       `json:"valve"`           // shift register bit
	Area           float64   `json:"area"`            // square feet
	Flow           float64   `json:"flow"`            // gallons per hour
	Efficiency     float64   `json:"efficiency"`      // 0-1
	SWHC           float64   `json:"swhc"`            // soil water holding capacity, inches
	MAD            float64   `json:"mad"`             // max allowable depletion, percent
	AvailableWater float64   `json:"available_water"` // inches
	Running        bool      `json:"running"`
	Started        time.Time `json:"started"`
	LastAdjusted   time.Time `json:"last_adjusted"`
	LastFertilized time.Time `json:"last_fertilized"`
	Plantings      int       `json:"plantings"`
	StartTime      string    `json:"start_time"` // HH:MM, local time
}

func (z *Zone) Validate() error {
	if z.Name == "" {
		return fmt.Errorf("zone name can not be empty")
	}
	switch z.Kind {
	case Control, Plantable:
	default:
		return fmt.Errorf("invalid zone kind: '%s'", z.Kind)
	}
	if z.Valve < 0 {
		return fmt.Errorf("valve number can not be negative")
	}
	if z.Kind == Plantable {
		if z.Area <= 0 {
			return fmt.Errorf("area must be positive")
		}
		if z.Flow <= 0 {
			return fmt.Errorf("flow rate must be positive")
		}
		if z.Efficiency <= 0 || z.Efficiency > 1 {
			return fmt.Errorf("irrigation efficiency must be within (0, 1]")
		}
		if z.SWHC <= 0 {
			return fmt.Errorf("soil water holding capacity must be positive")
		}
	}
	if z.MAD < 0 || z.MAD > 100 {
		return fmt.Errorf("mad must be within 0-100")
	}
	if z.AvailableWater < 0 {
		return fmt.Errorf("available water can not be negative")
	}
	if z.StartTime != "" {
		if _, err := time.Parse("15:04", z.StartTime); err != nil {
			return fmt.Errorf("invalid start time '%s'", z.StartTime)
		}
	}
	return nil
}

// StartOfDay returns the zone's configured watering time on the given
// day, in the day's location. An unset start time means midnight.
func (z *Zone) StartOfDay(day time.Time) time.Time {
	h, m := 0, 0
	if z.StartTime != "" {
		if ts, err := time.Parse("15:04", z.StartTime); err == nil {
			h, m = ts.Hour(), ts.Minute()
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

// Valves is the relay backend. The shift register driver implements it;
// so can any future addressable relay bus.
type Valves interface {
	SetValve(bit int, on bool) error
}

type Config struct {
	MasterValve     string `yaml:"master_valve" json:"master_valve"`         // zone id
	FertilizerValve string `yaml:"fertilizer_valve" json:"fertilizer_valve"` // zone id
}

type Controller struct {
	c        controller.Controller
	config   Config
	valves   Valves
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	quitters map[string]chan struct{}
	logs     []string
}

func New(config Config, c controller.Controller, valves Valves) (*Controller, error) {
	for _, b := range []string{Bucket, UsageBucket, RunBucket} {
		if err := c.Store().CreateBucket(b); err != nil {
			return nil, err
		}
	}
	return &Controller{
		c:        c,
		config:   config,
		valves:   valves,
		locks:    make(map[string]*sync.Mutex),
		quitters: make(map[string]chan struct{}),
	}, nil
}

// Setup bootstraps the shared control valves if they are configured but
// missing, so a fresh database starts actuatable.
func (c *Controller) Setup() error {
	bootstrap := func(id, name string, valve int) error {
		if id == "" {
			return nil
		}
		var z Zone
		if err := c.c.Store().Get(Bucket, id, &z); err == nil {
			return nil
		}
		z = Zone{ID: id, Name: name, Kind: Control, Valve: valve}
		return c.c.Store().CreateWithID(Bucket, id, &z)
	}
	if err := bootstrap(c.config.MasterValve, "master", 0); err != nil {
		return err
	}
	return bootstrap(c.config.FertilizerValve, "fertilizer", 1)
}

func (c *Controller) Get(id string) (Zone, error) {
	var z Zone
	return z, c.c.Store().Get(Bucket, id, &z)
}

func (c *Controller) List() ([]Zone, error) {
	zones := []Zone{}
	err := c.c.Store().List(Bucket, func(_ string, v []byte) error {
		var z Zone
		if err := json.Unmarshal(v, &z); err != nil {
			return err
		}
		zones = append(zones, z)
		return nil
	})
	return zones, err
}

func (c *Controller) ListByKind(k Kind) ([]Zone, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}
	zones := []Zone{}
	for _, z := range all {
		if z.Kind == k {
			zones = append(zones, z)
		}
	}
	return zones, nil
}

func (c *Controller) Create(z Zone) (string, error) {
	if err := z.Validate(); err != nil {
		return "", err
	}
	fn := func(id string) interface{} {
		z.ID = id
		return &z
	}
	if err := c.c.Store().Create(Bucket, fn); err != nil {
		return "", err
	}
	return z.ID, nil
}

// Update is last-writer-wins on the user-editable fields; the run state
// owned by the coordinator is carried over from the stored record.
func (c *Controller) Update(id string, z Zone) error {
	if err := z.Validate(); err != nil {
		return err
	}
	lk := c.zoneLock(id)
	lk.Lock()
	defer lk.Unlock()
	old, err := c.Get(id)
	if err != nil {
		return err
	}
	z.ID = id
	z.Running = old.Running
	z.Started = old.Started
	return c.c.Store().Update(Bucket, id, &z)
}

// Adjust applies fn to the zone under its lock, a serialized
// read-modify-write for collaborators (water balance, plantings).
func (c *Controller) Adjust(id string, fn func(*Zone)) error {
	lk := c.zoneLock(id)
	lk.Lock()
	defer lk.Unlock()
	z, err := c.Get(id)
	if err != nil {
		return err
	}
	fn(&z)
	return c.c.Store().Update(Bucket, id, &z)
}

func (c *Controller) zoneLock(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lk, ok := c.locks[id]
	if !ok {
		lk = new(sync.Mutex)
		c.locks[id] = lk
	}
	return lk
}

func (c *Controller) appendLog(msg string) {
	entry := time.Now().Format("15:04:05") + " " + msg
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, entry)
	if len(c.logs) > 100 {
		c.logs = c.logs[len(c.logs)-100:]
	}
}
