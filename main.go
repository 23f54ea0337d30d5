// Host demo: one display service on the bus, backed by the behavioural
// model and configured from the "host" embedded config (or LCD_CONFIG). Each stdin line is queued as text; a line "!<byte>" is sent as a
// raw instruction (e.g. "!0x01" clears). The display is printed at EOF.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"charlcd-go/bus"
	"charlcd-go/drivers/lcdmodel"
	"charlcd-go/services/config"
	"charlcd-go/services/lcd"
	"charlcd-go/types"
	"charlcd-go/x/logx"
)

func main() {
	if os.Getenv("LCD_DEBUG") != "" {
		logx.SetLevel(slog.LevelDebug)
	}
	b := bus.NewBus(16)
	ctx, cancel := context.WithCancel(context.Background())
	config.NewConfigService().Start(context.WithValue(ctx, config.CtxDeviceKey, "host"), b.NewConnection("config"))

	var src any
	if cfg := os.Getenv("LCD_CONFIG"); cfg != "" {
		src = cfg
	} else {
		wctx, wcancel := context.WithTimeout(ctx, time.Second)
		v, err := config.Await(wctx, b.NewConnection("main"), "lcd")
		wcancel()
		if err != nil {
			fail(err)
		}
		src = v
	}
	p, err := lcd.ParseParams(src)
	if err != nil {
		fail(err)
	}
	if p.Port != lcd.PortSim {
		fail(fmt.Errorf("port %q needs hardware; the host demo only runs %q", p.Port, lcd.PortSim))
	}

	model := lcdmodel.New(lcdmodel.TimingFor(p.ClockHz))
	svc, err := lcd.New(b.NewConnection("lcd"), p, lcdmodel.Port{M: model})
	if err != nil {
		fail(err)
	}
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	ui := b.NewConnection("ui")
	waitUp(ui, p.ID)
	for _, c := range []byte{0x38, 0x0C, 0x01, 0x06} {
		send(ui, lcd.TopicWrite(p.ID), types.LCDWrite{Data: c})
	}

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "!") {
			v, err := strconv.ParseUint(line[1:], 0, 8)
			if err != nil {
				logx.Warn(logx.ComponentService, "bad instruction", "line", line)
				continue
			}
			send(ui, lcd.TopicWrite(p.ID), types.LCDWrite{Data: byte(v)})
			continue
		}
		send(ui, lcd.TopicText(p.ID), types.LCDText{Text: line})
	}
	// Raw writes are refused until queued text has gone out, so an
	// accepted entry-mode write means the text is on the glass.
	send(ui, lcd.TopicWrite(p.ID), types.LCDWrite{Data: 0x06})
	cancel()
	<-done

	fmt.Printf("[%s]\n[%s]\n", model.Line(0, 16), model.Line(1, 16))
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "lcd:", err)
	os.Exit(1)
}

// send retries while the display answers busy or queue_full.
func send(c *bus.Connection, topic bus.Topic, payload any) {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		m, err := c.RequestWait(ctx, c.NewMessage(topic, payload, false))
		cancel()
		if err != nil {
			fail(err)
		}
		er, isErr := m.Payload.(types.ErrorReply)
		if !isErr {
			return
		}
		if er.Error != "busy" && er.Error != "queue_full" {
			fail(fmt.Errorf("%v: %s", topic, er.Error))
		}
		time.Sleep(time.Millisecond)
	}
}

func waitUp(c *bus.Connection, id string) {
	sub := c.Subscribe(lcd.TopicStatus(id))
	defer c.Unsubscribe(sub)
	for m := range sub.Channel() {
		if st, ok := m.Payload.(types.CapabilityStatus); ok && st.Link == types.LinkUp {
			return
		}
	}
}
