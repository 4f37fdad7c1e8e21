// Package daemon assembles the irrigation controller: storage,
// telemetry, the relay driver and every subsystem, wired together with
// explicit dependency injection.
package daemon

import (
	"context"
	"log"
	"net/http"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/gorilla/mux"
	"github.com/reef-pi/hal"

	"github.com/garden-pi/garden-pi/controller"
	"github.com/garden-pi/garden-pi/controller/drivers/rpipins"
	"github.com/garden-pi/garden-pi/controller/drivers/shiftreg"
	"github.com/garden-pi/garden-pi/controller/modules/balance"
	"github.com/garden-pi/garden-pi/controller/modules/event"
	"github.com/garden-pi/garden-pi/controller/modules/health"
	"github.com/garden-pi/garden-pi/controller/modules/planting"
	"github.com/garden-pi/garden-pi/controller/modules/zone"
	"github.com/garden-pi/garden-pi/controller/storage"
	"github.com/garden-pi/garden-pi/controller/telemetry"
)

type GardenPi struct {
	config     Config
	store      storage.Store
	telemetry  telemetry.Telemetry
	relay      *shiftreg.Driver
	subsystems []controller.Subsystem
	server     *http.Server
}

var _ controller.Controller = (*GardenPi)(nil)

func New(config Config) (*GardenPi, error) {
	store, err := storage.NewStore(config.Database)
	if err != nil {
		return nil, err
	}
	t, err := telemetry.Initialize(config.Telemetry, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	g := &GardenPi{
		config:    config,
		store:     store,
		telemetry: t,
	}
	fail := func(err error) (*GardenPi, error) {
		if g.relay != nil {
			g.relay.Close()
		}
		t.Close()
		store.Close()
		return nil, err
	}
	relay, err := g.relayDriver()
	if err != nil {
		return fail(err)
	}
	g.relay = relay

	zones, err := zone.New(config.Zones, g, relay)
	if err != nil {
		return fail(err)
	}
	plantings, err := planting.New(g, zones)
	if err != nil {
		return fail(err)
	}
	events, err := event.New(g, zones)
	if err != nil {
		return fail(err)
	}
	bal := balance.New(config.Balance, g, zones, plantings, events,
		&balance.Fallback{Reference: balance.NewReferenceET()})
	h := health.New(g)

	// Start order matters: the coordinator recovers in-flight runs
	// before the scheduler rebuilds jobs that could fire into it.
	g.subsystems = []controller.Subsystem{zones, plantings, events, bal, h}
	for _, s := range g.subsystems {
		if err := s.Setup(); err != nil {
			return fail(err)
		}
	}
	return g, nil
}

func (g *GardenPi) relayDriver() (*shiftreg.Driver, error) {
	pin := func(name string, number int) (hal.DigitalOutputPin, error) {
		if g.config.DevMode {
			return rpipins.NewSimPin(name, number), nil
		}
		return rpipins.NewPin(g.config.GPIOChip, number)
	}
	data, err := pin("data", g.config.Relay.Data)
	if err != nil {
		return nil, err
	}
	clock, err := pin("clock", g.config.Relay.Clock)
	if err != nil {
		return nil, err
	}
	latch, err := pin("latch", g.config.Relay.Latch)
	if err != nil {
		return nil, err
	}
	enable, err := pin("enable", g.config.Relay.Enable)
	if err != nil {
		return nil, err
	}
	return shiftreg.New(g.config.Relay.Bits, data, clock, latch, enable)
}

func (g *GardenPi) Store() storage.Store           { return g.store }
func (g *GardenPi) Telemetry() telemetry.Telemetry { return g.telemetry }
func (g *GardenPi) LogError(id, msg string) error  { return g.telemetry.LogError(id, msg) }

func (g *GardenPi) Start() error {
	r := mux.NewRouter()
	for _, s := range g.subsystems {
		s.LoadAPI(r)
	}
	r.Handle("/metrics", g.telemetry.Handler())
	for _, s := range g.subsystems {
		s.Start()
	}
	g.server = &http.Server{Addr: g.config.Address, Handler: r}
	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Println("http server:", err)
		}
	}()
	sd.SdNotify(false, sd.SdNotifyReady)
	log.Println("garden-pi started on", g.config.Address)
	return nil
}

func (g *GardenPi) Stop() {
	sd.SdNotify(false, sd.SdNotifyStopping)
	for i := len(g.subsystems) - 1; i >= 0; i-- {
		g.subsystems[i].Stop()
	}
	if g.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		g.server.Shutdown(ctx)
		cancel()
	}
	if g.relay != nil {
		// Leaves every valve closed rather than frozen mid-run
		if err := g.relay.Close(); err != nil {
			log.Println("relay shutdown:", err)
		}
	}
	g.telemetry.Close()
	g.store.Close()
}
