package lcdport

import "charlcd-go/drivers/charlcd"

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Pin is one GPIO line.
type Pin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
	Number() int
}

// Pins names the eleven lines of an 8-bit parallel interface.
type Pins struct {
	RS, RW, E Pin
	D         [8]Pin // D[0] is DB0
}

// GPIOPort bit-bangs the interface on plain GPIO pins. The data pins are
// only reconfigured when the bus direction changes.
type GPIOPort struct {
	p     Pins
	pull  Pull
	last  charlcd.Signals
	first bool
}

// NewGPIOPort configures the control pins as low outputs and the data pins
// as inputs with pull.
func NewGPIOPort(p Pins, pull Pull) (*GPIOPort, error) {
	for _, c := range []Pin{p.RS, p.RW, p.E} {
		if c == nil {
			return nil, ErrMissingPin
		}
		if err := c.ConfigureOutput(false); err != nil {
			return nil, err
		}
	}
	for _, d := range p.D {
		if d == nil {
			return nil, ErrMissingPin
		}
		if err := d.ConfigureInput(pull); err != nil {
			return nil, err
		}
	}
	return &GPIOPort{p: p, pull: pull, first: true}, nil
}

func (g *GPIOPort) Apply(s charlcd.Signals) error {
	pl := diff(g.last, s, g.first)
	if pl.eFall {
		g.p.E.Set(false)
	}
	if pl.release {
		for _, d := range g.p.D {
			if err := d.ConfigureInput(g.pull); err != nil {
				return err
			}
		}
	}
	if pl.ctrlChanged {
		g.p.RS.Set(s.RS)
		g.p.RW.Set(s.RW)
	}
	if pl.drive {
		for i, d := range g.p.D {
			if err := d.ConfigureOutput(pl.data&(1<<i) != 0); err != nil {
				return err
			}
		}
	} else if pl.dataChanged {
		for i, d := range g.p.D {
			d.Set(pl.data&(1<<i) != 0)
		}
	}
	if pl.eRise {
		g.p.E.Set(true)
	}
	g.last, g.first = s, false
	return nil
}

func (g *GPIOPort) Sample() byte {
	var v byte
	for i, d := range g.p.D {
		if d.Get() {
			v |= 1 << i
		}
	}
	return v
}
