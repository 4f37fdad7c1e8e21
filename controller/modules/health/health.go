// Package health samples host vitals so a headless controller in the
// garden shed can be watched from the same metrics endpoint as the
// valves.
package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/garden-pi/garden-pi/controller"
)

type Sample struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	Load1  float64 `json:"load1"`
	Time   int64   `json:"time"`
}

type Controller struct {
	c        controller.Controller
	interval time.Duration
	quit     chan struct{}
}

func New(c controller.Controller) *Controller {
	return &Controller{c: c, interval: time.Minute}
}

func (c *Controller) Setup() error { return nil }

func (c *Controller) Start() {
	c.quit = make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s := c.sample()
				c.c.Telemetry().EmitMetric("health", "cpu", s.CPU)
				c.c.Telemetry().EmitMetric("health", "memory", s.Memory)
				c.c.Telemetry().EmitMetric("health", "load1", s.Load1)
			case <-c.quit:
				return
			}
		}
	}()
}

func (c *Controller) Stop() {
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
}

func (c *Controller) sample() Sample {
	s := Sample{Time: time.Now().Unix()}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPU = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.Memory = vm.UsedPercent
	}
	if avg, err := load.Avg(); err == nil {
		s.Load1 = avg.Load1
	}
	return s
}

func (c *Controller) LoadAPI(r *mux.Router) {
	r.HandleFunc("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(c.sample())
	}).Methods("GET")
}
