// Package controller defines the contracts shared by every subsystem of
// the irrigation controller.
package controller

import (
	"github.com/gorilla/mux"

	"github.com/garden-pi/garden-pi/controller/storage"
	"github.com/garden-pi/garden-pi/controller/telemetry"
)

// Controller is the handle every subsystem receives at construction time.
type Controller interface {
	Store() storage.Store
	Telemetry() telemetry.Telemetry
	LogError(id, msg string) error
}

// Subsystem is one functional unit of the daemon (zones, events, water
// balance, ...). Setup runs once after construction, Start after every
// subsystem is set up, Stop on shutdown in reverse order.
type Subsystem interface {
	Setup() error
	LoadAPI(r *mux.Router)
	Start()
	Stop()
}
