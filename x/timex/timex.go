package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// TicksFor converts d into whole ticks of a clock running at clockHz,
// rounding up so a minimum delay is never shortened.
func TicksFor(d time.Duration, clockHz uint32) uint32 {
	if d <= 0 {
		return 0
	}
	n := (uint64(d)*uint64(clockHz) + 999_999_999) / 1_000_000_000
	if n > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n)
}
