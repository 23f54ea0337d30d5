// Package lcdport projects charlcd.Signals onto physical pins and samples
// the data bus back for the driver's synchronizer.
package lcdport

import (
	"errors"

	"charlcd-go/drivers/charlcd"
)

// Port is the physical side of a charlcd.Driver.
type Port interface {
	// Apply drives the lines to s. Implementations order the changes so E
	// falls before, and rises after, every other line moves.
	Apply(s charlcd.Signals) error
	// Sample returns the current level of D7..D0.
	Sample() byte
}

var ErrMissingPin = errors.New("lcdport: missing pin")

// Cycle runs one driver tick against p: sample, tick, apply.
func Cycle(d *charlcd.Driver, p Port) error {
	d.SetInput(p.Sample())
	d.Tick()
	return p.Apply(d.Signals())
}

// CycleWith is Cycle for a driver fed through a mailbox.
func CycleWith(d *charlcd.Driver, mb *charlcd.Mailbox, p Port) error {
	d.SetInput(p.Sample())
	d.TickWith(mb)
	return p.Apply(d.Signals())
}

// plan splits a transition into the three ordered phases every port uses.
type plan struct {
	eFall, eRise bool
	release      bool
	drive        bool
	data         byte
	dataChanged  bool
	ctrlChanged  bool
}

func diff(last, s charlcd.Signals, first bool) plan {
	var p plan
	p.eFall = last.E && !s.E
	p.eRise = (first || !last.E) && s.E
	lv, lok := last.Dir.Value()
	v, ok := s.Dir.Value()
	p.release = !ok && (lok || first)
	p.drive = ok && (!lok || first)
	p.data = v
	p.dataChanged = ok && (v != lv || !lok || first)
	p.ctrlChanged = first || last.RS != s.RS || last.RW != s.RW
	return p
}
