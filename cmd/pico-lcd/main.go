//go:build rp2040

// Command pico-lcd drives a character display from an RP2040, either
// bit-banged on GPIO or through an MCP23017 backpack on I2C1. Lines typed
// on UART0 are shown on the display; "!<byte>" sends a raw instruction.
package main

import (
	"context"
	"machine"
	"strconv"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx"

	"charlcd-go/bus"
	"charlcd-go/drivers/lcdport"
	"charlcd-go/services/config"
	"charlcd-go/services/lcd"
	"charlcd-go/types"
	"charlcd-go/x/logx"
)

// device selects the embedded config: "pico" (gpio) or "pico-backpack".
const device = "pico"

// Pin map for the gpio port.
const (
	pinRS = machine.GP2
	pinRW = machine.GP3
	pinE  = machine.GP4
	pinD0 = 10 // D0..D7 on GP10..GP17
)

// ---- machine.Pin adaptor ----

type rp2Pin struct{ p machine.Pin }

func (r rp2Pin) Number() int { return int(r.p) }

func (r rp2Pin) ConfigureInput(pull lcdport.Pull) error {
	var mode machine.PinMode
	switch pull {
	case lcdport.PullUp:
		mode = machine.PinInputPullup
	case lcdport.PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r rp2Pin) Set(b bool) { r.p.Set(b) }
func (r rp2Pin) Get() bool  { return r.p.Get() }

func openPort(p lcd.Params) (lcdport.Port, error) {
	switch p.Port {
	case lcd.PortMCP23017:
		hw := machine.I2C1
		hw.Configure(machine.I2CConfig{SDA: machine.GP26, SCL: machine.GP27, Frequency: 400_000})
		return lcdport.NewMCP23017Port(hw, p.I2CAddr)
	default:
		pins := lcdport.Pins{RS: rp2Pin{pinRS}, RW: rp2Pin{pinRW}, E: rp2Pin{pinE}}
		for i := range pins.D {
			pins.D[i] = rp2Pin{machine.Pin(pinD0 + i)}
		}
		return lcdport.NewGPIOPort(pins, lcdport.PullUp)
	}
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[pico-lcd] boot")

	ctx := context.Background()
	b := bus.NewBus(8)
	config.NewConfigService().Start(context.WithValue(ctx, config.CtxDeviceKey, device), b.NewConnection("config"))

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	raw, err := config.Await(wctx, b.NewConnection("boot"), "lcd")
	cancel()
	if err != nil {
		println("[pico-lcd] no lcd config")
		return
	}
	p, err := lcd.ParseParams(raw)
	if err != nil {
		println("[pico-lcd] config:", err.Error())
		return
	}
	port, err := openPort(p)
	if err != nil {
		println("[pico-lcd] port:", err.Error())
		return
	}

	svc, err := lcd.New(b.NewConnection("lcd"), p, port)
	if err != nil {
		println("[pico-lcd] service:", err.Error())
		return
	}
	_ = svc.Start(ctx)

	ui := b.NewConnection("ui")
	go watchStatus(ui, p.ID)

	u := uartx.UART0
	_ = u.Configure(uartx.UARTConfig{BaudRate: 115200, TX: machine.GP0, RX: machine.GP1})
	console(ctx, u, ui, p.ID)
}

func watchStatus(c *bus.Connection, id string) {
	sub := c.Subscribe(lcd.TopicStatus(id))
	for m := range sub.Channel() {
		if st, ok := m.Payload.(types.CapabilityStatus); ok {
			logx.Info(logx.ComponentService, "display status", "link", string(st.Link), "err", st.Error)
		}
	}
}

// console turns UART0 lines into display requests.
func console(ctx context.Context, u *uartx.UART, c *bus.Connection, id string) {
	var line []byte
	buf := make([]byte, 32)
	for {
		n, err := u.RecvSomeContext(ctx, buf)
		if err != nil {
			return
		}
		for _, ch := range buf[:n] {
			switch ch {
			case '\r', '\n':
				if len(line) > 0 {
					submit(ctx, c, id, string(line))
					line = line[:0]
				}
			default:
				line = append(line, ch)
			}
		}
	}
}

func submit(ctx context.Context, c *bus.Connection, id, line string) {
	topic, payload := lcd.TopicText(id), any(types.LCDText{Text: line})
	if line[0] == '!' {
		v, err := strconv.ParseUint(line[1:], 0, 8)
		if err != nil {
			println("[pico-lcd] bad instruction", line)
			return
		}
		topic, payload = lcd.TopicWrite(id), types.LCDWrite{Data: byte(v)}
	}
	rctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	m, err := c.RequestWait(rctx, c.NewMessage(topic, payload, false))
	if err != nil {
		println("[pico-lcd] no reply")
		return
	}
	if er, ok := m.Payload.(types.ErrorReply); ok {
		println("[pico-lcd]", er.Error)
	}
}
