package charlcd

import "sync/atomic"

const (
	slotEmpty uint32 = iota
	slotWriting
	slotFull
)

// Mailbox hands start requests from one producer goroutine to the goroutine
// that ticks the Driver. It holds at most one request and refuses new ones
// while a request is pending or the driver is busy; nothing is ever queued
// behind a busy driver.
type Mailbox struct {
	slot    atomic.Uint32
	busy    atomic.Bool
	txn     Transaction
	dropped atomic.Uint32
}

// NewMailbox returns a mailbox that starts out busy, matching a freshly
// constructed driver.
func NewMailbox() *Mailbox {
	mb := &Mailbox{}
	mb.busy.Store(true)
	return mb
}

// Offer tries to post t. It returns false if a request is already pending
// or the driver was busy at its last tick.
func (mb *Mailbox) Offer(t Transaction) bool {
	if mb.busy.Load() {
		return false
	}
	if !mb.slot.CompareAndSwap(slotEmpty, slotWriting) {
		return false
	}
	// The ticker publishes busy before it empties the slot, so a request
	// racing with the previous hand-off sees busy here.
	if mb.busy.Load() {
		mb.slot.Store(slotEmpty)
		return false
	}
	mb.txn = t
	mb.slot.Store(slotFull)
	return true
}

// Pending reports whether a request is waiting in the slot.
func (mb *Mailbox) Pending() bool { return mb.slot.Load() != slotEmpty }

// Busy reports the driver busy state published at the last tick, or a
// pending request.
func (mb *Mailbox) Busy() bool { return mb.busy.Load() || mb.slot.Load() != slotEmpty }

// Dropped counts requests that were taken from the slot but refused by the
// driver.
func (mb *Mailbox) Dropped() uint32 { return mb.dropped.Load() }

// TickWith takes a pending request from mb, if any, then advances the
// driver by one tick and publishes its busy state back to mb. It must only
// be called from the goroutine that owns d.
func (d *Driver) TickWith(mb *Mailbox) {
	full := mb.slot.Load() == slotFull
	if full && !d.Submit(mb.txn) {
		mb.dropped.Add(1)
	}
	d.Tick()
	mb.busy.Store(d.Busy())
	if full {
		mb.slot.Store(slotEmpty)
	}
}
