package types

// ---- Character LCD (retained state + control payloads) ----

// LCDWrite submits one raw bus transaction.
type LCDWrite struct {
	RW   bool `json:"rw,omitempty"` // true = read
	RS   bool `json:"rs,omitempty"` // true = data register
	Data byte `json:"data"`
}

// LCDText queues a run of data-register writes, one per byte.
type LCDText struct {
	Text string `json:"text"`
}

// LCDState is published (retained) whenever busy changes.
type LCDState struct {
	Busy  bool   `json:"busy"`
	State string `json:"state"` // init, idle, set_data, get_busy_flag
	Polls uint32 `json:"polls"`
	Queue int    `json:"queue"`
	TS    int64  `json:"ts_ms"`
}

// LCDAck answers a write or text request.
type LCDAck struct {
	OK     bool `json:"ok"`
	Queued int  `json:"queued,omitempty"`
}

// LCDInfo is the retained capability info detail.
type LCDInfo struct {
	ClockHz   uint32 `json:"clock_hz"`
	BusHz     uint32 `json:"bus_hz"`
	BitPeriod uint32 `json:"bit_period"`
	Strobe    uint32 `json:"strobe_ticks"`
	Port      string `json:"port"`
}
