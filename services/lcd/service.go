// Package lcd exposes one character display on the bus. A control loop
// answers write/text requests; a tick loop owns the driver and its port.
package lcd

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"charlcd-go/bus"
	"charlcd-go/drivers/charlcd"
	"charlcd-go/drivers/lcdport"
	"charlcd-go/errcode"
	"charlcd-go/types"
	"charlcd-go/x/logx"
	"charlcd-go/x/timex"
)

type tuning struct {
	burst      int
	interval   time.Duration
	stallPolls uint32
	hasStall   bool
}

type Service struct {
	conn *bus.Connection
	id   string
	info types.LCDInfo

	d    *charlcd.Driver
	mb   *charlcd.Mailbox
	port lcdport.Port

	text    chan charlcd.Transaction
	pending atomic.Int32 // text bytes not yet handed to the driver
	tune    chan tuning

	// owned by the tick loop
	burst      int
	interval   time.Duration
	stallPolls uint32
	held       *charlcd.Transaction
	busy       bool
	link       types.Link
	linkErr    string
}

// New validates p and builds a service around port. Nothing runs until
// Run or Start.
func New(conn *bus.Connection, p Params, port lcdport.Port) (*Service, error) {
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if port == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "lcd.New", Msg: "nil port"}
	}
	d, err := charlcd.New(p.ClockHz, p.BusHz)
	if err != nil {
		return nil, err
	}
	return &Service{
		conn: conn,
		id:   p.ID,
		info: types.LCDInfo{
			ClockHz:   p.ClockHz,
			BusHz:     p.BusHz,
			BitPeriod: d.BitPeriod(),
			Strobe:    d.Milestones().StrobeWidth(),
			Port:      p.Port,
		},
		d:          d,
		mb:         charlcd.NewMailbox(),
		port:       port,
		text:       make(chan charlcd.Transaction, p.QueueLen),
		tune:       make(chan tuning, 1),
		burst:      p.Burst,
		interval:   p.Interval(),
		stallPolls: p.StallPolls,
		busy:       d.Busy(),
		link:       types.LinkDown,
	}, nil
}

// Start runs the service in the background.
func (s *Service) Start(ctx context.Context) error {
	go s.Run(ctx)
	return nil
}

// Run blocks until ctx is cancelled. The driver is not touched after Run
// returns.
func (s *Service) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.tickLoop(ctx)
	}()
	s.serviceLoop(ctx)
	<-done
}

func (s *Service) serviceLoop(ctx context.Context) {
	wrSub := s.conn.Subscribe(TopicWrite(s.id))
	txSub := s.conn.Subscribe(TopicText(s.id))
	cfgSub := s.conn.Subscribe(TopicConfig)
	defer s.conn.Unsubscribe(wrSub)
	defer s.conn.Unsubscribe(txSub)
	defer s.conn.Unsubscribe(cfgSub)

	s.conn.Publish(s.conn.NewMessage(TopicInfo(s.id), types.Info{
		SchemaVersion: 1,
		Driver:        "charlcd",
		Detail:        s.info,
	}, true))
	logx.Info(logx.ComponentService, "display started", "id", s.id, "bit_period", s.info.BitPeriod, "port", s.info.Port)

	for {
		select {
		case <-ctx.Done():
			logx.Info(logx.ComponentService, "display stopping", "id", s.id)
			return
		case m := <-wrSub.Channel():
			s.handleWrite(m)
		case m := <-txSub.Channel():
			s.handleText(m)
		case m := <-cfgSub.Channel():
			s.handleConfig(m)
		}
	}
}

func (s *Service) handleWrite(m *bus.Message) {
	var w types.LCDWrite
	if err := decode(m.Payload, &w); err != nil {
		s.replyErr(m, errcode.InvalidPayload)
		return
	}
	// Raw writes never overtake queued text.
	if s.pending.Load() > 0 || !s.mb.Offer(charlcd.Transaction{RW: w.RW, RS: w.RS, Data: w.Data}) {
		s.replyErr(m, errcode.Busy)
		return
	}
	s.conn.Reply(m, types.LCDAck{OK: true}, false)
}

func (s *Service) handleText(m *bus.Message) {
	var tx types.LCDText
	if str, ok := m.Payload.(string); ok {
		tx.Text = str
	} else if err := decode(m.Payload, &tx); err != nil {
		s.replyErr(m, errcode.InvalidPayload)
		return
	}
	b := []byte(tx.Text)
	// Only this loop sends on s.text, so free space can only grow.
	if cap(s.text)-len(s.text) < len(b) {
		s.replyErr(m, errcode.QueueFull)
		return
	}
	s.pending.Add(int32(len(b)))
	for _, c := range b {
		s.text <- charlcd.Transaction{RS: true, Data: c}
	}
	s.conn.Reply(m, types.LCDAck{OK: true, Queued: len(b)}, false)
}

func (s *Service) handleConfig(m *bus.Message) {
	mp, ok := m.Payload.(map[string]any)
	if !ok {
		logx.Warn(logx.ComponentService, "ignoring config payload", "id", s.id)
		return
	}
	var t tuning
	if v, ok := mp["burst"]; ok {
		t.burst = int(asU32(v))
	}
	if v, ok := mp["interval_ms"]; ok {
		t.interval = time.Duration(asU32(v)) * time.Millisecond
	}
	if v, ok := mp["stall_polls"]; ok {
		t.stallPolls, t.hasStall = asU32(v), true
	}
	// Latest wins.
	select {
	case <-s.tune:
	default:
	}
	s.tune <- t
}

func (s *Service) tickLoop(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.publishState()
	s.publishStatus(types.LinkDown, string(errcode.NotReady))

	for {
		select {
		case <-ctx.Done():
			return
		case tn := <-s.tune:
			s.applyTuning(t, tn)
		case <-t.C:
			s.runBurst()
		}
	}
}

func (s *Service) applyTuning(t *time.Ticker, tn tuning) {
	if tn.burst > 0 {
		s.burst = tn.burst
	}
	if tn.interval > 0 && tn.interval != s.interval {
		s.interval = tn.interval
		t.Reset(tn.interval)
	}
	if tn.hasStall {
		s.stallPolls = tn.stallPolls
	}
	logx.Debug(logx.ComponentService, "tuning applied", "id", s.id, "burst", s.burst, "interval", s.interval, "stall_polls", s.stallPolls)
}

// runBurst ticks the driver up to s.burst times, stopping early once it is
// idle with nothing left to send.
func (s *Service) runBurst() {
	for i := 0; i < s.burst; i++ {
		if !s.d.Busy() && !s.mb.Pending() && !s.feed() {
			return
		}
		if err := lcdport.CycleWith(s.d, s.mb, s.port); err != nil {
			s.portFault(err)
			return
		}
		s.observe()
	}
}

// feed hands the next queued text byte to the mailbox. It reports whether
// there is now something for the driver to take.
func (s *Service) feed() bool {
	if s.held == nil {
		select {
		case t := <-s.text:
			s.held = &t
		default:
			return false
		}
	}
	if s.mb.Offer(*s.held) {
		s.held = nil
		s.pending.Add(-1)
		return true
	}
	return s.mb.Pending()
}

func (s *Service) observe() {
	if s.stallPolls > 0 && s.link != types.LinkDegraded && s.d.Polls() > s.stallPolls {
		logx.Warn(logx.ComponentService, "display not clearing busy", "id", s.id, "polls", s.d.Polls())
		s.publishStatus(types.LinkDegraded, string(errcode.Stalled))
	}
	busy := s.d.Busy()
	if busy == s.busy {
		return
	}
	s.busy = busy
	s.publishState()
	if !busy && s.link != types.LinkUp {
		s.publishStatus(types.LinkUp, "")
	}
}

func (s *Service) portFault(err error) {
	if s.link == types.LinkDegraded && s.linkErr == string(errcode.Of(err)) {
		return
	}
	logx.Error(logx.ComponentService, "port error", "id", s.id, "err", err)
	s.publishStatus(types.LinkDegraded, string(errcode.Of(err)))
}

func (s *Service) publishState() {
	s.conn.Publish(s.conn.NewMessage(TopicState(s.id), types.LCDState{
		Busy:  s.busy,
		State: s.d.State().String(),
		Polls: s.d.Polls(),
		Queue: int(s.pending.Load()),
		TS:    timex.NowMs(),
	}, true))
}

func (s *Service) publishStatus(link types.Link, code string) {
	s.link, s.linkErr = link, code
	s.conn.Publish(s.conn.NewMessage(TopicStatus(s.id), types.CapabilityStatus{
		Link:  link,
		TS:    timex.NowMs(),
		Error: code,
	}, true))
}

func (s *Service) replyErr(req *bus.Message, code errcode.Code) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, types.ErrorReply{OK: false, Error: string(code)}, false)
}

// decode accepts the typed payload, a pointer to it, or anything that
// round-trips through JSON into it.
func decode[T any](src any, dst *T) error {
	switch v := src.(type) {
	case T:
		*dst = v
		return nil
	case *T:
		if v == nil {
			return errcode.InvalidPayload
		}
		*dst = *v
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	case nil:
		return errcode.InvalidPayload
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
