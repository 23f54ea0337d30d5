package charlcd

// Event is a bit set of timer milestones matched on one tick.
type Event uint8

const (
	EvZero Event = 1 << iota
	EvQuarter
	EvHalf
	EvThreeQuarter
	EvFull
)

// Has reports whether every bit of x is set in e.
func (e Event) Has(x Event) bool { return e&x == x }

// PulseTimer is a single free-running counter compared against fixed
// milestones. Each event is one tick wide and every offset is measured from
// the same Arm call.
type PulseTimer struct {
	m       Milestones
	ticks   uint32
	running bool
	events  Event
}

// NewPulseTimer returns a stopped timer for m.
func NewPulseTimer(m Milestones) PulseTimer { return PulseTimer{m: m} }

// Arm restarts the count from zero. It overrides any count in flight.
func (t *PulseTimer) Arm() {
	t.ticks = 0
	t.running = true
	t.events = 0
}

// Tick advances a running timer by one and latches the milestones matched
// by the new count. The timer stops itself on reaching Full. A stopped
// timer raises nothing and keeps its count.
func (t *PulseTimer) Tick() {
	t.events = 0
	if !t.running {
		return
	}
	t.ticks++
	n := t.ticks
	if n == t.m.Zero {
		t.events |= EvZero
	}
	if n == t.m.Quarter {
		t.events |= EvQuarter
	}
	if n == t.m.Half {
		t.events |= EvHalf
	}
	if n == t.m.ThreeQuarter {
		t.events |= EvThreeQuarter
	}
	if n >= t.m.Full {
		t.events |= EvFull
		t.running = false
	}
}

func (t *PulseTimer) Events() Event { return t.events }
func (t *PulseTimer) Ticks() uint32 { return t.ticks }
func (t *PulseTimer) Running() bool { return t.running }
