// Package lcdmodel is a behavioural model of an HD44780-compatible
// character-display controller, clocked in lockstep with charlcd.Driver.
//
// The model watches the control lines each tick. A falling edge of E with
// RW low latches the bus byte as an instruction (RS low) or a data write
// (RS high) and raises the busy flag for the instruction's execution time.
// With RW high and E high it drives the bus itself: the busy flag and
// address counter for RS low, the addressed DDRAM byte for RS high.
package lcdmodel

import (
	"time"

	"charlcd-go/drivers/charlcd"
	"charlcd-go/x/timex"
)

// Nominal execution times at the datasheet's 270 kHz oscillator.
const (
	ExecTime = 37 * time.Microsecond
	LongTime = 1520 * time.Microsecond
)

const (
	lineLen    = 40
	line2Base  = 0x40
	cgramSize  = 64
	floatValue = 0xFF // pulled-up bus with nobody driving
)

// Timing is the busy duration, in driver ticks, of ordinary instructions
// and of clear/home.
type Timing struct {
	Exec uint32
	Long uint32
}

// TimingFor converts the nominal execution times to ticks of clockHz.
func TimingFor(clockHz uint32) Timing {
	return Timing{
		Exec: timex.TicksFor(ExecTime, clockHz),
		Long: timex.TicksFor(LongTime, clockHz),
	}
}

// Write is one byte latched by the model.
type Write struct {
	RS   bool
	Data byte
	Tick uint64
}

// Model is not safe for concurrent use.
type Model struct {
	t Timing

	tick     uint64
	busyLeft uint32
	wedged   bool

	prev   charlcd.Signals
	sig    charlcd.Signals
	driven bool // model is driving the bus this tick

	ddram    [2][lineLen]byte
	cgram    [cgramSize]byte
	ac       uint8
	cgMode   bool
	inc      bool
	twoLines bool
	display  bool
	cursor   bool
	blink    bool

	writes     []Write
	contention uint32
}

// New returns a model in its post-reset state: 8-bit, one line, display
// off, increment mode, DDRAM filled with spaces.
func New(t Timing) *Model {
	m := &Model{t: t, inc: true}
	m.clear()
	return m
}

// Clock advances the model by one tick with the driver's current signals.
func (m *Model) Clock(s charlcd.Signals) {
	m.tick++
	if m.busyLeft > 0 {
		m.busyLeft--
	}
	m.prev, m.sig = m.sig, s

	m.driven = s.RW && s.E
	if m.driven && s.Dir.Driven() {
		m.contention++
	}

	if m.prev.E && !s.E {
		m.strobe(m.prev)
	}
}

// strobe acts on the falling edge of E using the levels held while E was
// high.
func (m *Model) strobe(s charlcd.Signals) {
	if s.RW {
		if s.RS {
			m.step()
		}
		return
	}
	v, ok := s.Dir.Value()
	if !ok {
		return
	}
	m.writes = append(m.writes, Write{RS: s.RS, Data: v, Tick: m.tick})
	if s.RS {
		m.writeData(v)
		m.busyLeft = m.t.Exec
		return
	}
	m.busyLeft = m.exec(v)
}

// Output is the byte the driver's input pins see after this tick.
func (m *Model) Output() byte {
	if m.driven {
		if m.sig.RS {
			return m.readData()
		}
		return m.status()
	}
	if v, ok := m.sig.Dir.Value(); ok {
		return v
	}
	return floatValue
}

func (m *Model) status() byte {
	st := m.ac & 0x7F
	if m.Busy() {
		st |= 0x80
	}
	return st
}

// Busy reports the controller's busy flag.
func (m *Model) Busy() bool { return m.wedged || m.busyLeft > 0 }

// Wedge pins the busy flag high (true) or returns it to normal timing.
func (m *Model) Wedge(on bool) { m.wedged = on }

// AC returns the address counter.
func (m *Model) AC() uint8 { return m.ac }

// Writes returns every byte latched so far.
func (m *Model) Writes() []Write { return m.writes }

// Contention counts ticks on which both sides drove the bus.
func (m *Model) Contention() uint32 { return m.contention }

// DisplayOn reports the display-control D bit.
func (m *Model) DisplayOn() bool { return m.display }

// TwoLines reports the function-set N bit.
func (m *Model) TwoLines() bool { return m.twoLines }

// Line returns the first cols characters of DDRAM line n (0 or 1).
func (m *Model) Line(n, cols int) string {
	if n < 0 || n > 1 {
		return ""
	}
	if cols > lineLen {
		cols = lineLen
	}
	return string(m.ddram[n][:cols])
}

// CGRAM returns a copy of character-generator RAM.
func (m *Model) CGRAM() [cgramSize]byte { return m.cgram }
