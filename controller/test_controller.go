package controller

import (
	"github.com/garden-pi/garden-pi/controller/storage"
	"github.com/garden-pi/garden-pi/controller/telemetry"
)

type testController struct {
	store     storage.Store
	telemetry telemetry.Telemetry
}

// TestController wraps a store into a Controller for subsystem tests.
func TestController(store storage.Store) Controller {
	return &testController{
		store:     store,
		telemetry: telemetry.TestTelemetry(store),
	}
}

func (t *testController) Store() storage.Store             { return t.store }
func (t *testController) Telemetry() telemetry.Telemetry   { return t.telemetry }
func (t *testController) LogError(id, msg string) error    { return t.telemetry.LogError(id, msg) }
