package lcdport

import (
	"tinygo.org/x/drivers"

	"charlcd-go/drivers/charlcd"
	"charlcd-go/errcode"
	"charlcd-go/x/logx"
)

// MCP23017 register addresses (IOCON.BANK = 0).
const (
	regIODIRA = 0x00
	regIODIRB = 0x01
	regGPPUA  = 0x0C
	regGPIOA  = 0x12
	regOLATA  = 0x14
	regOLATB  = 0x15
)

// Port B bit assignment.
const (
	bitRS = 1 << 0
	bitRW = 1 << 1
	bitE  = 1 << 2

	ctrlMask = bitRS | bitRW | bitE
)

// DefaultMCPAddress is the expander address with A2..A0 tied low.
const DefaultMCPAddress = 0x20

// MCP23017Port drives the interface through an MCP23017 I²C expander:
// port A carries DB0..DB7, port B bits 0..2 carry RS, RW and E. Registers
// are only written when their value changes.
type MCP23017Port struct {
	bus  drivers.I2C
	addr uint16

	olatB byte
	dirA  byte
	olatA byte
	last  charlcd.Signals
	first bool

	w [2]byte
	r [1]byte
}

// NewMCP23017Port resets the expander pins used by the interface: control
// bits as low outputs, port A as pulled-up inputs.
func NewMCP23017Port(bus drivers.I2C, addr uint16) (*MCP23017Port, error) {
	if addr == 0 {
		addr = DefaultMCPAddress
	}
	p := &MCP23017Port{bus: bus, addr: addr, dirA: 0xFF, first: true}
	steps := []struct{ reg, val byte }{
		{regOLATB, 0x00},
		{regIODIRB, ^byte(ctrlMask)},
		{regGPPUA, 0xFF},
		{regIODIRA, 0xFF},
	}
	for _, s := range steps {
		if err := p.write(s.reg, s.val); err != nil {
			logx.Warn(logx.ComponentPort, "expander init failed", "addr", addr, "err", err)
			return nil, err
		}
	}
	logx.Debug(logx.ComponentPort, "mcp23017 ready", "addr", addr)
	return p, nil
}

func (p *MCP23017Port) write(reg, val byte) error {
	p.w[0], p.w[1] = reg, val
	return errcode.Wrap(errcode.IOError, "mcp23017.write", p.bus.Tx(p.addr, p.w[:2], nil))
}

func (p *MCP23017Port) setCtrl(v byte) error {
	if v == p.olatB && !p.first {
		return nil
	}
	if err := p.write(regOLATB, v); err != nil {
		return err
	}
	p.olatB = v
	return nil
}

func (p *MCP23017Port) Apply(s charlcd.Signals) error {
	pl := diff(p.last, s, p.first)
	ctrl := p.olatB
	if pl.eFall {
		ctrl &^= bitE
		if err := p.setCtrl(ctrl); err != nil {
			return err
		}
	}
	if pl.release && p.dirA != 0xFF {
		if err := p.write(regIODIRA, 0xFF); err != nil {
			return err
		}
		p.dirA = 0xFF
	}
	if pl.ctrlChanged {
		ctrl &^= bitRS | bitRW
		if s.RS {
			ctrl |= bitRS
		}
		if s.RW {
			ctrl |= bitRW
		}
		if err := p.setCtrl(ctrl); err != nil {
			return err
		}
	}
	if pl.dataChanged && (pl.data != p.olatA || p.first) {
		if err := p.write(regOLATA, pl.data); err != nil {
			return err
		}
		p.olatA = pl.data
	}
	if pl.drive && p.dirA != 0x00 {
		if err := p.write(regIODIRA, 0x00); err != nil {
			return err
		}
		p.dirA = 0x00
	}
	if pl.eRise {
		ctrl |= bitE
		if err := p.setCtrl(ctrl); err != nil {
			return err
		}
	}
	p.last, p.first = s, false
	return nil
}

// Sample reads GPIOA. A failed read reports a floating (all-high) bus,
// which the driver treats as busy.
func (p *MCP23017Port) Sample() byte {
	p.w[0] = regGPIOA
	if err := p.bus.Tx(p.addr, p.w[:1], p.r[:]); err != nil {
		return 0xFF
	}
	return p.r[0]
}
