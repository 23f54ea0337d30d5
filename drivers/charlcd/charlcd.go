// Package charlcd drives a parallel character-display controller (8-bit
// data bus, E/RW/RS control lines) one clock tick at a time.
//
// The driver is purely reactive. The embedding code calls Tick at a steady
// rate, feeds it the observed bus byte with SetInput, and applies Signals
// to the physical pins after each tick:
//
//	d, err := charlcd.New(100_000_000, 400_000)
//	...
//	for {
//		d.SetInput(port.Sample())
//		d.Tick()
//		port.Apply(d.Signals())
//	}
//
// Every tick is a compute-then-commit update: the synchronizer, the pulse
// timer and the sequencer all read the previous tick's registers, so a
// timer event computed on tick N is acted on by the sequencer on tick N+1.
//
// Start submits one transaction while Busy is false. Busy stays high until
// the transaction has been strobed out and the controller's busy flag reads
// clear. A write whose first ready poll reads clear is idle again
// 2*(BitPeriod+1) ticks after acceptance: each of the two strobes spans
// BitPeriod ticks plus the one-tick event delay. There is no poll limit: a
// controller that never clears its busy flag keeps the driver busy forever
// (see Polls for observation).
package charlcd

import (
	"errors"

	"charlcd-go/errcode"
	"charlcd-go/x/logx"
	"charlcd-go/x/mathx"
)

// Configuration bounds.
const (
	MinClockHz = 5_000_000
	MaxClockHz = 400_000_000
	MinBusHz   = 100_000
	MaxBusHz   = 1_000_000

	// ZeroOffset is the fixed settle margin, in ticks, between driving the
	// bus and raising E. It does not scale with the bit period.
	ZeroOffset = 3

	// MinBitPeriod is the smallest accepted bit period; anything at or
	// below 4*ZeroOffset leaves no room for the strobe.
	MinBitPeriod = 4*ZeroOffset + 1
)

// Configuration errors. New wraps them in an *errcode.E.
var (
	ErrClockRange = errors.New("system clock out of range")
	ErrBusRange   = errors.New("bus rate out of range")
	ErrBitPeriod  = errors.New("bit period too short")
)

// Milestones are the tick offsets, measured from the instant the pulse
// timer is armed, at which timing events fire.
type Milestones struct {
	Zero         uint32
	Quarter      uint32
	Half         uint32
	ThreeQuarter uint32 // computed for completeness; the sequencer ignores it
	Full         uint32
}

// NewMilestones derives the milestone set for a bit period.
func NewMilestones(bitPeriod uint32) Milestones {
	q := bitPeriod >> 2
	h := bitPeriod >> 1
	return Milestones{
		Zero:         ZeroOffset,
		Quarter:      q,
		Half:         h,
		ThreeQuarter: h + q,
		Full:         bitPeriod,
	}
}

// StrobeWidth is the number of ticks E stays high per strobe. A whole
// strobe occupies Full+1 ticks once the one-tick event delay is counted.
func (m Milestones) StrobeWidth() uint32 { return m.Half - m.Zero }

// BitPeriod validates the rates and returns floor(clockHz / busHz).
func BitPeriod(clockHz, busHz uint32) (uint32, error) {
	if !mathx.Between(clockHz, MinClockHz, MaxClockHz) {
		return 0, ErrClockRange
	}
	if !mathx.Between(busHz, MinBusHz, MaxBusHz) {
		return 0, ErrBusRange
	}
	bp := clockHz / busHz
	if bp < MinBitPeriod {
		return 0, ErrBitPeriod
	}
	return bp, nil
}

// Transaction is one bus access as submitted by the caller.
type Transaction struct {
	RW   bool // true = read
	RS   bool // true = data register
	Data byte
}

// New configures a driver for a system clock of clockHz ticks per second
// and a target bus rate of busHz. No driver is returned on error.
func New(clockHz, busHz uint32) (*Driver, error) {
	bp, err := BitPeriod(clockHz, busHz)
	if err != nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "charlcd.New", Msg: err.Error(), Err: err}
	}
	logx.Debug(logx.ComponentDriver, "configured", "clock_hz", clockHz, "bus_hz", busHz, "bit_period", bp)
	return newDriver(clockHz, bp), nil
}
