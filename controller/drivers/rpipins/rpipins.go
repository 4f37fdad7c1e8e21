// Package rpipins provides hal.DigitalOutputPin implementations on top of
// the Raspberry Pi GPIO character device, plus an in-memory pin for dev
// mode and tests.
package rpipins

import (
	"fmt"
	"sync"

	"github.com/reef-pi/hal"
	"github.com/warthog618/go-gpiocdev"
)

type Pin struct {
	name   string
	number int
	line   *gpiocdev.Line
	mu     sync.Mutex
	state  bool
}

var _ hal.DigitalOutputPin = (*Pin)(nil)

// NewPin requests a GPIO line as output, driven low.
func NewPin(chip string, number int) (*Pin, error) {
	line, err := gpiocdev.RequestLine(chip, number, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("gpio line %d on %s: %w", number, chip, err)
	}
	return &Pin{
		name:   fmt.Sprintf("gpio-%d", number),
		number: number,
		line:   line,
	}, nil
}

func (p *Pin) Name() string { return p.name }
func (p *Pin) Number() int  { return p.number }

func (p *Pin) Close() error {
	return p.line.Close()
}

func (p *Pin) Write(state bool) error {
	v := 0
	if state {
		v = 1
	}
	if err := p.line.SetValue(v); err != nil {
		return err
	}
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	return nil
}

func (p *Pin) LastState() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SimPin is a software stand-in used when the daemon runs in dev mode.
type SimPin struct {
	name   string
	number int
	mu     sync.Mutex
	state  bool
	writes int
}

var _ hal.DigitalOutputPin = (*SimPin)(nil)

func NewSimPin(name string, number int) *SimPin {
	return &SimPin{name: name, number: number}
}

func (p *SimPin) Name() string { return p.name }
func (p *SimPin) Number() int  { return p.number }
func (p *SimPin) Close() error { return nil }

func (p *SimPin) Write(state bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	p.writes++
	return nil
}

func (p *SimPin) LastState() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Writes reports how many times the pin has been driven.
func (p *SimPin) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}
