package shiftreg

import (
	"sync"
	"testing"

	"github.com/reef-pi/hal"
)

// recordingPin captures every level written to it, in order.
type recordingPin struct {
	name   string
	mu     sync.Mutex
	state  bool
	levels []bool
}

var _ hal.DigitalOutputPin = (*recordingPin)(nil)

func (p *recordingPin) Name() string { return p.name }
func (p *recordingPin) Number() int  { return 0 }
func (p *recordingPin) Close() error { return nil }

func (p *recordingPin) Write(state bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	p.levels = append(p.levels, state)
	return nil
}

func (p *recordingPin) LastState() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *recordingPin) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = nil
}

func newTestDriver(t *testing.T, bits int) (*Driver, *recordingPin, *recordingPin, *recordingPin, *recordingPin) {
	t.Helper()
	data := &recordingPin{name: "data"}
	clock := &recordingPin{name: "clock"}
	latch := &recordingPin{name: "latch"}
	enable := &recordingPin{name: "enable"}
	d, err := New(bits, data, clock, latch, enable)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	return d, data, clock, latch, enable
}

func TestShiftOrder(t *testing.T) {
	d, data, clock, latch, enable := newTestDriver(t, 8)
	data.reset()
	clock.reset()
	latch.reset()
	enable.reset()

	if err := d.SetValve(2, true); err != nil {
		t.Fatal(err)
	}

	// MSB first: bit 7..0, only bit 2 high
	want := []bool{false, false, false, false, false, true, false, false}
	if len(data.levels) != len(want) {
		t.Fatalf("expected %d data writes, got %d", len(want), len(data.levels))
	}
	for i, lvl := range want {
		if data.levels[i] != lvl {
			t.Errorf("data bit %d: expected %v, got %v", i, lvl, data.levels[i])
		}
	}
	// One clock pulse per bit
	if len(clock.levels) != 16 {
		t.Errorf("expected 16 clock edges, got %d", len(clock.levels))
	}
	// Single latch pulse after the shift
	if len(latch.levels) != 2 || !latch.levels[0] || latch.levels[1] {
		t.Errorf("expected one latch pulse, got %v", latch.levels)
	}
	// Output disabled during shift, re-enabled after
	if len(enable.levels) != 2 || !enable.levels[0] || enable.levels[1] {
		t.Errorf("expected OE toggled around the shift, got %v", enable.levels)
	}
	if enable.LastState() {
		t.Error("output should be enabled (OE low) after flush")
	}
}

func TestBitmaskAccumulates(t *testing.T) {
	d, _, _, _, _ := newTestDriver(t, 8)

	if err := d.SetValve(0, true); err != nil {
		t.Fatal(err)
	}
	if err := d.SetValve(3, true); err != nil {
		t.Fatal(err)
	}
	if d.State() != 0b1001 {
		t.Errorf("expected state 0b1001, got %b", d.State())
	}
	if err := d.SetValve(0, false); err != nil {
		t.Fatal(err)
	}
	if d.State() != 0b1000 {
		t.Errorf("expected state 0b1000, got %b", d.State())
	}
}

func TestValvePins(t *testing.T) {
	d, _, _, _, _ := newTestDriver(t, 4)

	pin, err := d.DigitalOutputPin(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := pin.Write(true); err != nil {
		t.Fatal(err)
	}
	if !pin.LastState() {
		t.Error("pin should report last state on")
	}
	if d.State() != 0b10 {
		t.Errorf("expected state 0b10, got %b", d.State())
	}
	if _, err := d.DigitalOutputPin(9); err == nil {
		t.Error("expected error for out-of-range pin")
	}
	if err := d.SetValve(9, true); err == nil {
		t.Error("expected error for out-of-range valve")
	}
}

func TestCloseClearsRegister(t *testing.T) {
	d, _, _, _, _ := newTestDriver(t, 4)
	if err := d.SetValve(0, true); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if d.State() != 0 {
		t.Errorf("expected cleared register, got %b", d.State())
	}
}
