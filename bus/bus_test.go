package bus

import (
	"context"
	"sort"
	"testing"
	"time"

	"charlcd-go/types"
)

func stateTopic(id string) Topic  { return T("hal", "lcd", id, "state") }
func statusTopic(id string) Topic { return T("hal", "lcd", id, "status") }
func writeTopic(id string) Topic  { return T("hal", "lcd", id, "write") }

func recv(t *testing.T, sub *Subscription) *Message {
	t.Helper()
	select {
	case m, ok := <-sub.Channel():
		if !ok {
			t.Fatal("subscription closed")
		}
		return m
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout on %v", sub.Topic())
	}
	return nil
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %#v", got)
	case <-time.After(60 * time.Millisecond):
	}
}

// -----------------------------------------------------------------------------
// Retained state
// -----------------------------------------------------------------------------

func TestRetainedStateReplaysToLateSubscriber(t *testing.T) {
	b := NewBus(4)
	svc := b.NewConnection("lcd")
	ui := b.NewConnection("ui")

	svc.Publish(svc.NewMessage(stateTopic("lcd0"), types.LCDState{Busy: true, State: "init"}, true))
	svc.Publish(svc.NewMessage(stateTopic("lcd0"), types.LCDState{State: "idle", Polls: 1}, true))
	svc.Publish(svc.NewMessage(statusTopic("lcd0"), types.CapabilityStatus{Link: types.LinkUp}, true))

	st := recv(t, ui.Subscribe(stateTopic("lcd0")))
	got, ok := st.Payload.(types.LCDState)
	if !ok || got.Busy || got.State != "idle" || got.Polls != 1 {
		t.Fatalf("retained state=%#v", st.Payload)
	}
	if !st.Retained {
		t.Fatal("replayed message not marked retained")
	}

	sub := ui.Subscribe(statusTopic("lcd0"))
	cs, ok := recv(t, sub).Payload.(types.CapabilityStatus)
	if !ok || cs.Link != types.LinkUp {
		t.Fatalf("retained status=%#v", cs)
	}
	expectNoMessage(t, sub)
}

func TestNonRetainedStateIsNotReplayed(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("lcd")

	c.Publish(c.NewMessage(stateTopic("lcd0"), types.LCDState{State: "idle"}, false))
	expectNoMessage(t, c.Subscribe(stateTopic("lcd0")))
}

func TestNilPayloadClearsRetainedState(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("lcd")

	c.Publish(c.NewMessage(stateTopic("lcd0"), types.LCDState{State: "idle"}, true))
	c.Publish(c.NewMessage(stateTopic("lcd0"), nil, true))

	expectNoMessage(t, c.Subscribe(stateTopic("lcd0")))
	expectNoMessage(t, c.Subscribe(T("hal", "lcd", "#")))
}

// -----------------------------------------------------------------------------
// Wildcards
// -----------------------------------------------------------------------------

func TestWildcardStateAcrossDisplays(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("ui")

	c.Publish(c.NewMessage(stateTopic("lcd0"), types.LCDState{State: "idle"}, true))

	sub := c.Subscribe(T("hal", "lcd", "+", "state"))
	if m := recv(t, sub); !topicEqual(m.Topic, stateTopic("lcd0")) {
		t.Fatalf("retained replay on %v", m.Topic)
	}

	c.Publish(c.NewMessage(stateTopic("lcd1"), types.LCDState{Busy: true, State: "set_data"}, true))
	c.Publish(c.NewMessage(statusTopic("lcd1"), types.CapabilityStatus{Link: types.LinkUp}, true))

	m := recv(t, sub)
	if st, ok := m.Payload.(types.LCDState); !ok || !st.Busy || !topicEqual(m.Topic, stateTopic("lcd1")) {
		t.Fatalf("got %v %#v", m.Topic, m.Payload)
	}
	// status must not match a filter ending in "state"
	expectNoMessage(t, sub)
}

func TestMultiWildcardSeesEveryDisplayTopic(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("log")

	c.Publish(c.NewMessage(stateTopic("lcd0"), types.LCDState{State: "idle"}, true))
	c.Publish(c.NewMessage(statusTopic("lcd0"), types.CapabilityStatus{Link: types.LinkUp}, true))
	c.Publish(c.NewMessage(T("config", "lcd"), map[string]any{"burst": 8}, true))

	sub := c.Subscribe(T("hal", "lcd", "#"))
	var got []string
	for i := 0; i < 2; i++ {
		m := recv(t, sub)
		got = append(got, m.Topic[3].(string))
	}
	sort.Strings(got)
	if len(got) != 2 || got[0] != "state" || got[1] != "status" {
		t.Fatalf("replayed %v", got)
	}
	expectNoMessage(t, sub)

	c.Publish(c.NewMessage(writeTopic("lcd2"), types.LCDWrite{Data: 0x01}, false))
	if m := recv(t, sub); !topicEqual(m.Topic, writeTopic("lcd2")) {
		t.Fatalf("live message on %v", m.Topic)
	}
}

func TestTopicRejectsNonComparableToken(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	_ = T("hal", []byte("lcd"))
}

// -----------------------------------------------------------------------------
// Request / reply
// -----------------------------------------------------------------------------

// serveWrites answers writes the way the display service does: ack while
// idle, "busy" otherwise.
func serveWrites(ctx context.Context, conn *Connection, sub *Subscription, busy bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-sub.Channel():
			if _, ok := m.Payload.(types.LCDWrite); !ok {
				conn.Reply(m, types.ErrorReply{Error: "invalid_payload"}, false)
				continue
			}
			if busy {
				conn.Reply(m, types.ErrorReply{Error: "busy"}, false)
				continue
			}
			conn.Reply(m, types.LCDAck{OK: true}, false)
		}
	}
}

func TestRequestWaitWriteReplies(t *testing.T) {
	b := NewBus(4)
	svc := b.NewConnection("lcd")
	cli := b.NewConnection("cli")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go serveWrites(ctx, svc, svc.Subscribe(writeTopic("idle")), false)
	go serveWrites(ctx, svc, svc.Subscribe(writeTopic("busy")), true)

	rctx, rcancel := context.WithTimeout(ctx, time.Second)
	defer rcancel()

	m, err := cli.RequestWait(rctx, cli.NewMessage(writeTopic("idle"), types.LCDWrite{Data: 0x38}, false))
	if err != nil {
		t.Fatal(err)
	}
	if ack, ok := m.Payload.(types.LCDAck); !ok || !ack.OK {
		t.Fatalf("reply=%#v", m.Payload)
	}

	m, err = cli.RequestWait(rctx, cli.NewMessage(writeTopic("busy"), types.LCDWrite{Data: 0x38}, false))
	if err != nil {
		t.Fatal(err)
	}
	if er, ok := m.Payload.(types.ErrorReply); !ok || er.OK || er.Error != "busy" {
		t.Fatalf("reply=%#v", m.Payload)
	}

	m, err = cli.RequestWait(rctx, cli.NewMessage(writeTopic("idle"), "0x38", false))
	if err != nil {
		t.Fatal(err)
	}
	if er, ok := m.Payload.(types.ErrorReply); !ok || er.Error != "invalid_payload" {
		t.Fatalf("reply=%#v", m.Payload)
	}
}

func TestRequestWaitTimesOutWithoutService(t *testing.T) {
	b := NewBus(4)
	cli := b.NewConnection("cli")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := cli.RequestWait(ctx, cli.NewMessage(writeTopic("lcd0"), types.LCDWrite{}, false)); err != context.DeadlineExceeded {
		t.Fatalf("err=%v", err)
	}
}

func TestRequestRepliesAreIsolatedPerRequest(t *testing.T) {
	b := NewBus(4)
	svc := b.NewConnection("lcd")
	cli := b.NewConnection("cli")
	in := svc.Subscribe(writeTopic("lcd0"))

	first := cli.Request(cli.NewMessage(writeTopic("lcd0"), types.LCDWrite{Data: 1}, false))
	second := cli.Request(cli.NewMessage(writeTopic("lcd0"), types.LCDWrite{Data: 2}, false))
	defer first.Unsubscribe()
	defer second.Unsubscribe()

	r1, r2 := recv(t, in), recv(t, in)
	if topicEqual(r1.ReplyTo, r2.ReplyTo) {
		t.Fatalf("shared reply topic %v", r1.ReplyTo)
	}
	svc.Reply(r2, types.LCDAck{OK: true, Queued: 2}, false)

	if ack := recv(t, second).Payload.(types.LCDAck); ack.Queued != 2 {
		t.Fatalf("ack=%#v", ack)
	}
	expectNoMessage(t, first)

	// No ReplyTo: nothing is published.
	svc.Reply(svc.NewMessage(writeTopic("lcd0"), nil, false), types.LCDAck{OK: true}, false)
	expectNoMessage(t, first)
}

// -----------------------------------------------------------------------------
// Delivery and lifecycle
// -----------------------------------------------------------------------------

func TestFullQueueKeepsNewestStates(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("lcd")
	sub := c.Subscribe(stateTopic("lcd0"))

	for i := uint32(1); i <= 5; i++ {
		c.Publish(c.NewMessage(stateTopic("lcd0"), types.LCDState{Polls: i}, false))
	}
	for _, want := range []uint32{4, 5} {
		if st := recv(t, sub).Payload.(types.LCDState); st.Polls != want {
			t.Fatalf("polls=%d want %d", st.Polls, want)
		}
	}
	expectNoMessage(t, sub)
}

func TestUnsubscribeTwiceIsNoop(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("ui")
	sub := c.Subscribe(stateTopic("lcd0"))

	sub.Unsubscribe()
	sub.Unsubscribe()

	if _, ok := <-sub.Channel(); ok {
		t.Fatal("channel still open")
	}
	// Publishing after unsubscribe must not panic on the closed channel.
	c.Publish(c.NewMessage(stateTopic("lcd0"), types.LCDState{}, false))
}

func TestDisconnectClosesAllSubscriptions(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("ui")
	s1 := c.Subscribe(stateTopic("lcd0"))
	s2 := c.Subscribe(T("hal", "lcd", "+", "status"))

	c.Disconnect()

	for _, s := range []*Subscription{s1, s2} {
		if _, ok := <-s.Channel(); ok {
			t.Fatalf("%v still open", s.Topic())
		}
	}
	c.Publish(c.NewMessage(statusTopic("lcd0"), types.CapabilityStatus{Link: types.LinkDown}, true))
}

func topicEqual(a, b Topic) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
