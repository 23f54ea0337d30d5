package lcd

import (
	"context"
	"strings"
	"testing"
	"time"

	"charlcd-go/bus"
	"charlcd-go/drivers/lcdmodel"
	"charlcd-go/types"
)

// ---- Helpers ----

func recvWithin[T any](t *testing.T, ch <-chan T, d time.Duration) (T, bool) {
	t.Helper()
	var zero T
	select {
	case v := <-ch:
		return v, true
	case <-time.After(d):
		return zero, false
	}
}

func testParams() Params {
	return Params{
		ID:         "lcd0",
		ClockHz:    5_000_000,
		BusHz:      100_000,
		IntervalMs: 1,
		Burst:      4096,
		QueueLen:   8,
		Port:       PortSim,
	}
}

type rig struct {
	b     *bus.Bus
	conn  *bus.Connection
	model *lcdmodel.Model
	svc   *Service
}

func newRig(t *testing.T, p Params) *rig {
	t.Helper()
	b := bus.NewBus(64)
	m := lcdmodel.New(lcdmodel.TimingFor(p.ClockHz))
	svc, err := New(b.NewConnection("lcd"), p, lcdmodel.Port{M: m})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &rig{b: b, conn: b.NewConnection("test"), model: m, svc: svc}
}

// run starts the service and returns a stop func that waits for Run to
// return, after which the model may be inspected.
func (r *rig) run(t *testing.T) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.svc.Run(ctx)
		close(done)
	}()
	info := r.conn.Subscribe(TopicInfo(r.svc.id))
	defer r.conn.Unsubscribe(info)
	if _, ok := recvWithin(t, info.Channel(), time.Second); !ok {
		t.Fatal("no info published")
	}
	return func() {
		cancel()
		<-done
	}
}

func waitStatus(t *testing.T, sub *bus.Subscription, want types.Link) types.CapabilityStatus {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.CapabilityStatus); ok && st.Link == want {
				return st
			}
		case <-deadline:
			t.Fatalf("status %q not seen", want)
		}
	}
}

// waitDrained waits for a busy state followed by an idle one with nothing
// left queued.
func waitDrained(t *testing.T, sub *bus.Subscription) {
	t.Helper()
	sawBusy := false
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-sub.Channel():
			st := m.Payload.(types.LCDState)
			if st.Busy {
				sawBusy = true
			} else if sawBusy && st.Queue == 0 {
				return
			}
		case <-deadline:
			t.Fatal("display never went idle")
		}
	}
}

func request(t *testing.T, conn *bus.Connection, topic bus.Topic, payload any) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m, err := conn.RequestWait(ctx, conn.NewMessage(topic, payload, false))
	if err != nil {
		t.Fatalf("request %v: %v", topic, err)
	}
	return m.Payload
}

// ---- Tests ----

func TestServiceComesUpAfterPowerOnPoll(t *testing.T) {
	r := newRig(t, testParams())
	status := r.conn.Subscribe(TopicStatus("lcd0"))
	stop := r.run(t)
	defer stop()

	waitStatus(t, status, types.LinkUp)

	state := r.conn.Subscribe(TopicState("lcd0"))
	m, ok := recvWithin(t, state.Channel(), time.Second)
	if !ok {
		t.Fatal("no retained state")
	}
	st := m.Payload.(types.LCDState)
	if st.Busy || st.State != "idle" {
		t.Fatalf("state = %+v, want idle and not busy", st)
	}
}

func TestServiceWritesCommandThenText(t *testing.T) {
	r := newRig(t, testParams())
	status := r.conn.Subscribe(TopicStatus("lcd0"))
	stop := r.run(t)
	waitStatus(t, status, types.LinkUp)

	state := r.conn.Subscribe(TopicState("lcd0"))
	if ack, ok := request(t, r.conn, TopicWrite("lcd0"), types.LCDWrite{Data: 0x38}).(types.LCDAck); !ok || !ack.OK {
		t.Fatalf("write reply = %#v", ack)
	}
	waitDrained(t, state)

	ack, ok := request(t, r.conn, TopicText("lcd0"), "HI").(types.LCDAck)
	if !ok || ack.Queued != 2 {
		t.Fatalf("text reply = %#v", ack)
	}
	waitDrained(t, state)
	stop()

	if got := r.model.Line(0, 16); !strings.HasPrefix(got, "HI") {
		t.Fatalf("line 0 = %q", got)
	}
	if !r.model.TwoLines() {
		t.Fatal("function set not applied")
	}
	if n := r.model.Contention(); n != 0 {
		t.Fatalf("bus contention %d", n)
	}
	if d := r.svc.mb.Dropped(); d != 0 {
		t.Fatalf("dropped %d", d)
	}
}

func TestWriteRejectedWhileBusy(t *testing.T) {
	r := newRig(t, testParams())
	// Not running: the driver is still in its power-on poll.
	msg := r.conn.NewMessage(TopicWrite("lcd0"), types.LCDWrite{Data: 0x01}, false)
	sub := r.conn.Request(msg)
	r.svc.handleWrite(msg)

	m, ok := recvWithin(t, sub.Channel(), time.Second)
	if !ok {
		t.Fatal("no reply")
	}
	if er, ok := m.Payload.(types.ErrorReply); !ok || er.Error != "busy" {
		t.Fatalf("reply = %#v, want busy", m.Payload)
	}
}

func TestTextQueueFull(t *testing.T) {
	p := testParams()
	p.QueueLen = 4
	r := newRig(t, p)

	msg := r.conn.NewMessage(TopicText("lcd0"), types.LCDText{Text: "hello"}, false)
	sub := r.conn.Request(msg)
	r.svc.handleText(msg)

	m, _ := recvWithin(t, sub.Channel(), time.Second)
	if er, ok := m.Payload.(types.ErrorReply); !ok || er.Error != "queue_full" {
		t.Fatalf("reply = %#v, want queue_full", m.Payload)
	}
	if n := r.svc.pending.Load(); n != 0 {
		t.Fatalf("pending = %d after rejected text", n)
	}

	msg = r.conn.NewMessage(TopicText("lcd0"), map[string]any{"text": "abcd"}, false)
	sub = r.conn.Request(msg)
	r.svc.handleText(msg)
	m, _ = recvWithin(t, sub.Channel(), time.Second)
	if ack, ok := m.Payload.(types.LCDAck); !ok || ack.Queued != 4 {
		t.Fatalf("reply = %#v, want 4 queued", m.Payload)
	}
}

func TestWriteBadPayload(t *testing.T) {
	r := newRig(t, testParams())
	msg := r.conn.NewMessage(TopicWrite("lcd0"), map[string]any{"data": 300.0}, false)
	sub := r.conn.Request(msg)
	r.svc.handleWrite(msg)

	m, _ := recvWithin(t, sub.Channel(), time.Second)
	if er, ok := m.Payload.(types.ErrorReply); !ok || er.Error != "invalid_payload" {
		t.Fatalf("reply = %#v, want invalid_payload", m.Payload)
	}
}

func TestWedgedDisplayReportsStalled(t *testing.T) {
	p := testParams()
	p.StallPolls = 3
	r := newRig(t, p)
	r.model.Wedge(true)

	status := r.conn.Subscribe(TopicStatus("lcd0"))
	stop := r.run(t)
	defer stop()

	st := waitStatus(t, status, types.LinkDegraded)
	if st.Error != "stalled" {
		t.Fatalf("status error = %q, want stalled", st.Error)
	}
}

func TestConfigTuningIsApplied(t *testing.T) {
	r := newRig(t, testParams())
	r.svc.handleConfig(r.conn.NewMessage(TopicConfig, map[string]any{"burst": 10.0, "stall_polls": 2.0}, false))
	r.svc.handleConfig(r.conn.NewMessage(TopicConfig, map[string]any{"burst": 20.0}, false))

	tn := <-r.svc.tune
	if tn.burst != 20 || tn.hasStall {
		t.Fatalf("tuning = %+v, want only the latest", tn)
	}
	tk := time.NewTicker(time.Hour)
	defer tk.Stop()
	r.svc.applyTuning(tk, tn)
	if r.svc.burst != 20 {
		t.Fatalf("burst = %d", r.svc.burst)
	}
}

func TestNewRejectsNilPort(t *testing.T) {
	if _, err := New(bus.NewBus(1).NewConnection("x"), testParams(), nil); err == nil {
		t.Fatal("expected error for nil port")
	}
}
