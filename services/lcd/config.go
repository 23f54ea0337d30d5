package lcd

import (
	"encoding/json"
	"time"

	"charlcd-go/drivers/charlcd"
	"charlcd-go/errcode"
	"charlcd-go/x/mathx"
)

// Port kinds understood by the commands.
const (
	PortSim      = "sim"
	PortGPIO     = "gpio"
	PortMCP23017 = "mcp23017"
)

// Params configures one display service.
type Params struct {
	ID      string `json:"id"`
	ClockHz uint32 `json:"clock_hz"`
	BusHz   uint32 `json:"bus_hz"`
	// IntervalMs is the service ticker period; every fire runs up to Burst
	// driver ticks.
	IntervalMs uint32 `json:"interval_ms"`
	Burst      int    `json:"burst"`
	// StallPolls marks the display degraded once a transaction has needed
	// more busy-flag polls than this. The driver keeps polling. 0 = off.
	StallPolls uint32 `json:"stall_polls"`
	QueueLen   int    `json:"queue_len"`
	Port       string `json:"port"`
	I2CAddr    uint16 `json:"i2c_addr,omitempty"`
}

const defaultConfig = `{
  "id": "lcd0",
  "clock_hz": 100000000,
  "bus_hz": 400000,
  "interval_ms": 1,
  "burst": 8192,
  "stall_polls": 0,
  "queue_len": 80,
  "port": "sim"
}`

// DefaultParams returns the embedded default configuration.
func DefaultParams() Params {
	var p Params
	if err := json.Unmarshal([]byte(defaultConfig), &p); err != nil {
		panic("lcd: bad embedded config: " + err.Error())
	}
	return p
}

func (p *Params) applyDefaults() {
	d := DefaultParams()
	if p.ID == "" {
		p.ID = d.ID
	}
	if p.ClockHz == 0 {
		p.ClockHz = d.ClockHz
	}
	if p.BusHz == 0 {
		p.BusHz = d.BusHz
	}
	if p.IntervalMs == 0 {
		p.IntervalMs = d.IntervalMs
	}
	if p.Burst <= 0 {
		p.Burst = d.Burst
	}
	if p.QueueLen <= 0 {
		p.QueueLen = d.QueueLen
	}
	if p.Port == "" {
		p.Port = d.Port
	}
}

// Interval is IntervalMs as a duration.
func (p Params) Interval() time.Duration { return time.Duration(p.IntervalMs) * time.Millisecond }

// Validate checks the rates the same way charlcd.New does and the port
// kind.
func (p Params) Validate() error {
	if _, err := charlcd.BitPeriod(p.ClockHz, p.BusHz); err != nil {
		return &errcode.E{C: errcode.InvalidParams, Op: "lcd.params", Msg: err.Error(), Err: err}
	}
	switch p.Port {
	case PortSim, PortGPIO, PortMCP23017:
	default:
		return &errcode.E{C: errcode.InvalidParams, Op: "lcd.params", Msg: "unknown port " + p.Port}
	}
	return nil
}

// ParseParams accepts Params, *Params, a JSON document ([]byte / string)
// or a decoded JSON object (map[string]any) and fills in defaults.
func ParseParams(v any) (Params, error) {
	var p Params
	switch src := v.(type) {
	case nil:
	case Params:
		p = src
	case *Params:
		p = *src
	case []byte:
		if err := json.Unmarshal(src, &p); err != nil {
			return Params{}, errcode.Wrap(errcode.InvalidParams, "lcd.params", err)
		}
	case string:
		if err := json.Unmarshal([]byte(src), &p); err != nil {
			return Params{}, errcode.Wrap(errcode.InvalidParams, "lcd.params", err)
		}
	case map[string]any:
		p = fromMap(src)
	default:
		return Params{}, errcode.InvalidParams
	}
	p.applyDefaults()
	return p, p.Validate()
}

func fromMap(m map[string]any) Params {
	var p Params
	if s, ok := m["id"].(string); ok {
		p.ID = s
	}
	if s, ok := m["port"].(string); ok {
		p.Port = s
	}
	p.ClockHz = asU32(m["clock_hz"])
	p.BusHz = asU32(m["bus_hz"])
	p.IntervalMs = asU32(m["interval_ms"])
	p.Burst = int(asU32(m["burst"]))
	p.StallPolls = asU32(m["stall_polls"])
	p.QueueLen = int(asU32(m["queue_len"]))
	p.I2CAddr = uint16(mathx.Clamp(asU32(m["i2c_addr"]), 0, 0x7F))
	return p
}

// asU32 reads JSON-ish numbers; negatives and junk read as 0.
func asU32(v any) uint32 {
	switch n := v.(type) {
	case float64:
		if n < 0 || n > float64(^uint32(0)) {
			return 0
		}
		return uint32(n)
	case int:
		if n < 0 {
			return 0
		}
		return uint32(n)
	case uint32:
		return n
	case int64:
		if n < 0 {
			return 0
		}
		return uint32(n)
	default:
		return 0
	}
}
