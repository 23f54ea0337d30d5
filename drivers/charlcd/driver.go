package charlcd

import "charlcd-go/x/mathx"

// State is the sequencer state.
type State uint8

const (
	StateInit State = iota
	StateIdle
	StateSetData
	StateGetBusyFlag
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateIdle:
		return "idle"
	case StateSetData:
		return "set_data"
	case StateGetBusyFlag:
		return "get_busy_flag"
	default:
		return "unknown"
	}
}

const busyFlag = 0x80

// sequencer holds the registers owned by the state machine.
type sequencer struct {
	state State
	busy  bool
	e     bool
	rw    bool
	rs    bool
	dir   Direction
	ready bool
	txn   Transaction
	polls uint32
}

// regs is one complete register snapshot. Tick computes the next snapshot
// from the current one and then commits it in a single assignment.
type regs struct {
	sync  Synchronizer
	timer PulseTimer
	seq   sequencer
}

// Driver is the tick-driven bus sequencer. It is not safe for concurrent
// use; hand requests across goroutines with a Mailbox.
type Driver struct {
	clockHz uint32
	m       Milestones
	cur     regs

	// inputs, held like wires between ticks
	raw    byte
	req    Transaction
	reqSet bool
}

func newDriver(clockHz, bitPeriod uint32) *Driver {
	m := NewMilestones(bitPeriod)
	d := &Driver{clockHz: clockHz, m: m}
	d.cur.timer = NewPulseTimer(m)
	d.cur.seq = sequencer{state: StateInit, busy: true}
	return d
}

// Milestones returns the fixed timing offsets.
func (d *Driver) Milestones() Milestones { return d.m }

// BitPeriod returns the configured bit period in ticks.
func (d *Driver) BitPeriod() uint32 { return d.m.Full }

// ClockHz returns the configured tick rate.
func (d *Driver) ClockHz() uint32 { return d.clockHz }

// Busy reports whether a transaction (or the power-on poll) is in flight.
// It is true from the moment Start accepts a request.
func (d *Driver) Busy() bool { return d.cur.seq.busy || d.reqSet }

// Start submits a transaction. It returns false, with no side effect,
// while Busy is true.
func (d *Driver) Start(rw, rs bool, data byte) bool {
	return d.Submit(Transaction{RW: rw, RS: rs, Data: data})
}

// Submit is Start taking a Transaction.
func (d *Driver) Submit(t Transaction) bool {
	if d.Busy() {
		return false
	}
	d.req = t
	d.reqSet = true
	return true
}

// SetInput sets the raw bus byte observed by the port. It is shifted into
// the synchronizer on the next Tick.
func (d *Driver) SetInput(raw byte) { d.raw = raw }

// Tick advances the driver by one clock edge.
func (d *Driver) Tick() {
	cur := &d.cur
	next := *cur

	next.sync.Shift(d.raw)
	next.timer.Tick()

	var req *Transaction
	if d.reqSet {
		req = &d.req
	}
	arm, took := step(&cur.seq, &next.seq, cur.timer.Events(), cur.sync.Stable(), req)
	if arm {
		next.timer.Arm()
	}
	if took {
		d.reqSet = false
	}

	d.cur = next
}

// step computes the next sequencer registers. It only reads cur and the
// inputs; it reports whether the timer must be re-armed and whether the
// pending request was latched.
func step(cur, next *sequencer, ev Event, stable byte, req *Transaction) (arm, took bool) {
	switch cur.state {
	case StateInit:
		next.busy = true
		next.dir = Released
		next.ready = false
		next.polls = 1
		next.state = StateGetBusyFlag
		return true, false

	case StateIdle:
		if req == nil {
			return false, false
		}
		next.txn = *req
		next.busy = true
		next.polls = 0
		next.state = StateSetData
		return true, true

	case StateSetData:
		next.rw = cur.txn.RW
		next.rs = cur.txn.RS
		next.dir = Drive(cur.txn.Data)
		if ev.Has(EvZero) {
			next.e = true
		}
		if ev.Has(EvHalf) {
			next.e = false
		}
		if ev.Has(EvFull) {
			next.polls = 1
			next.state = StateGetBusyFlag
			return true, false
		}

	case StateGetBusyFlag:
		next.rw = true
		next.rs = false
		next.dir = Released
		if ev.Has(EvZero) {
			next.e = true
		}
		if ev.Has(EvHalf) {
			next.e = false
			next.ready = stable&busyFlag == 0
		}
		if ev.Has(EvFull) {
			if cur.ready {
				next.busy = false
				next.state = StateIdle
				return false, false
			}
			next.polls = mathx.SatAdd(cur.polls, 1)
			return true, false
		}
	}
	return false, false
}

// Signals returns the physical-facing line levels.
func (d *Driver) Signals() Signals {
	s := &d.cur.seq
	return Signals{Busy: s.busy, E: s.e, RW: s.rw, RS: s.rs, Dir: s.dir}
}

// State returns the current sequencer state.
func (d *Driver) State() State { return d.cur.seq.state }

// Polls returns how many busy-flag polls the current (or last) transaction
// has started, including the power-on poll.
func (d *Driver) Polls() uint32 { return d.cur.seq.polls }

// Snapshot is a read-only view of the driver registers.
type Snapshot struct {
	State   State
	Busy    bool
	Ready   bool
	Polls   uint32
	Ticks   uint32
	Running bool
	Events  Event
	Stable  byte
	Txn     Transaction
	Signals Signals
}

// Snapshot copies out the current registers.
func (d *Driver) Snapshot() Snapshot {
	c := &d.cur
	return Snapshot{
		State:   c.seq.state,
		Busy:    d.Busy(),
		Ready:   c.seq.ready,
		Polls:   c.seq.polls,
		Ticks:   c.timer.Ticks(),
		Running: c.timer.Running(),
		Events:  c.timer.Events(),
		Stable:  c.sync.Stable(),
		Txn:     c.seq.txn,
		Signals: d.Signals(),
	}
}
