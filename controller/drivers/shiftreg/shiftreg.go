// Package shiftreg drives a bank of relays behind a bit-serial shift
// register (74HC595 style). Every toggle re-serializes the whole valve
// bitmask; no per-bit addressing is needed on the hardware side, at the
// cost of O(bits) pin writes per toggle, which is fine for single-digit
// valve counts.
package shiftreg

import (
	"fmt"
	"sync"

	"github.com/reef-pi/hal"
)

type Config struct {
	Bits   int `yaml:"bits" json:"bits"`
	Data   int `yaml:"data" json:"data"`
	Clock  int `yaml:"clock" json:"clock"`
	Latch  int `yaml:"latch" json:"latch"`
	Enable int `yaml:"enable" json:"enable"`
}

type Driver struct {
	mu     sync.Mutex
	data   hal.DigitalOutputPin
	clock  hal.DigitalOutputPin
	latch  hal.DigitalOutputPin
	enable hal.DigitalOutputPin
	bits   int
	state  uint32
	pins   []*valvePin
}

var (
	_ hal.Driver              = (*Driver)(nil)
	_ hal.DigitalOutputDriver = (*Driver)(nil)
)

func New(bits int, data, clock, latch, enable hal.DigitalOutputPin) (*Driver, error) {
	if bits <= 0 || bits > 32 {
		return nil, fmt.Errorf("unsupported register width: %d", bits)
	}
	d := &Driver{
		data:   data,
		clock:  clock,
		latch:  latch,
		enable: enable,
		bits:   bits,
	}
	for i := 0; i < bits; i++ {
		d.pins = append(d.pins, &valvePin{drv: d, number: i})
	}
	// Known state on boot: everything off
	if err := d.flush(); err != nil {
		return nil, err
	}
	return d, nil
}

// SetValve drives one relay and rewrites the full register.
func (d *Driver) SetValve(bit int, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if bit < 0 || bit >= d.bits {
		return fmt.Errorf("valve %d out of range (0-%d)", bit, d.bits-1)
	}
	if on {
		d.state |= 1 << uint(bit)
	} else {
		d.state &^= 1 << uint(bit)
	}
	return d.flush()
}

// flush shifts the current bitmask out MSB first. OE is held inactive
// during the shift so intermediate register contents never reach the
// relays, then a latch pulse commits the new state.
func (d *Driver) flush() error {
	if err := d.enable.Write(true); err != nil { // OE is active low
		return err
	}
	for i := d.bits - 1; i >= 0; i-- {
		if err := d.data.Write(d.state&(1<<uint(i)) != 0); err != nil {
			return err
		}
		if err := d.clock.Write(true); err != nil {
			return err
		}
		if err := d.clock.Write(false); err != nil {
			return err
		}
	}
	if err := d.latch.Write(true); err != nil {
		return err
	}
	if err := d.latch.Write(false); err != nil {
		return err
	}
	return d.enable.Write(false)
}

// State returns the current valve bitmask.
func (d *Driver) State() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) Metadata() hal.Metadata {
	return hal.Metadata{
		Name:         "shift-register",
		Description:  "Bit-serial shift register relay bank",
		Capabilities: []hal.Capability{hal.DigitalOutput},
	}
}

func (d *Driver) Close() error {
	d.mu.Lock()
	d.state = 0
	err := d.flush()
	d.mu.Unlock()
	return err
}

func (d *Driver) Pins(cap hal.Capability) ([]hal.Pin, error) {
	if cap != hal.DigitalOutput {
		return nil, fmt.Errorf("unsupported capability: %s", cap.String())
	}
	pins := make([]hal.Pin, len(d.pins))
	for i, p := range d.pins {
		pins[i] = p
	}
	return pins, nil
}

func (d *Driver) DigitalOutputPins() []hal.DigitalOutputPin {
	pins := make([]hal.DigitalOutputPin, len(d.pins))
	for i, p := range d.pins {
		pins[i] = p
	}
	return pins
}

func (d *Driver) DigitalOutputPin(i int) (hal.DigitalOutputPin, error) {
	if i < 0 || i >= len(d.pins) {
		return nil, fmt.Errorf("no valve pin %d", i)
	}
	return d.pins[i], nil
}

// valvePin exposes one register bit as a hal pin so an addressable relay
// backend can replace this driver without touching the coordinator.
type valvePin struct {
	drv    *Driver
	number int
}

var _ hal.DigitalOutputPin = (*valvePin)(nil)

func (p *valvePin) Name() string { return fmt.Sprintf("valve-%d", p.number) }
func (p *valvePin) Number() int  { return p.number }
func (p *valvePin) Close() error { return nil }

func (p *valvePin) Write(state bool) error {
	return p.drv.SetValve(p.number, state)
}

func (p *valvePin) LastState() bool {
	return p.drv.State()&(1<<uint(p.number)) != 0
}
