package lcdmodel

import "charlcd-go/drivers/charlcd"

// Port connects a Model directly to a driver: every Apply clocks the model
// once, Sample returns what the model leaves on the bus.
type Port struct {
	M *Model
}

func (p Port) Apply(s charlcd.Signals) error {
	p.M.Clock(s)
	return nil
}

func (p Port) Sample() byte { return p.M.Output() }
