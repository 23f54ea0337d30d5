package main

import (
	"errors"

	"charlcd-go/drivers/charlcd"
	"charlcd-go/drivers/lcdmodel"
	"charlcd-go/drivers/lcdport"
	"charlcd-go/x/logx"
)

var errStalled = errors.New("display did not clear busy")

// sim runs a driver against the behavioural model one tick at a time.
type sim struct {
	d     *charlcd.Driver
	m     *lcdmodel.Model
	port  lcdport.Port
	ticks uint64
	// maxPolls bounds busy-flag polls per transaction; 0 means no bound.
	maxPolls uint32
}

func newSim(clockHz, busHz uint32) (*sim, error) {
	d, err := charlcd.New(clockHz, busHz)
	if err != nil {
		return nil, err
	}
	m := lcdmodel.New(lcdmodel.TimingFor(clockHz))
	return &sim{d: d, m: m, port: lcdmodel.Port{M: m}}, nil
}

func (s *sim) tick() error {
	s.ticks++
	return lcdport.Cycle(s.d, s.port)
}

// settle ticks until the driver is idle.
func (s *sim) settle() error {
	for s.d.Busy() {
		if s.maxPolls > 0 && s.d.Polls() > s.maxPolls {
			return errStalled
		}
		if err := s.tick(); err != nil {
			return err
		}
	}
	return nil
}

func (s *sim) run(ops []op) error {
	if err := s.settle(); err != nil {
		return err
	}
	for _, o := range ops {
		switch o.kind {
		case opWait:
			for i := uint32(0); i < o.n; i++ {
				if err := s.tick(); err != nil {
					return err
				}
			}
		case opWedge:
			s.m.Wedge(o.on)
		case opTxn:
			if err := s.exec(o); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *sim) exec(o op) error {
	if !s.d.Submit(o.txn) {
		return errors.New("driver refused transaction")
	}
	start := s.ticks
	if err := s.settle(); err != nil {
		logx.Error(logx.ComponentSim, "transaction failed", "line", o.line, "err", err, "polls", s.d.Polls())
		return err
	}
	logx.Debug(logx.ComponentSim, "transaction",
		"line", o.line, "rw", o.txn.RW, "rs", o.txn.RS, "data", o.txn.Data,
		"ticks", s.ticks-start, "polls", s.d.Polls())
	return nil
}
