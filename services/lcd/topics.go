package lcd

import "charlcd-go/bus"

// Topic tokens
const (
	TokConfig = "config"
	TokHAL    = "hal"
	TokLCD    = "lcd"
	TokWrite  = "write"
	TokText   = "text"
	TokState  = "state"
	TokStatus = "status"
	TokInfo   = "info"
)

// TopicWrite is the request topic for single raw transactions.
func TopicWrite(id string) bus.Topic { return bus.T(TokHAL, TokLCD, id, TokWrite) }

// TopicText is the request topic for queued data writes.
func TopicText(id string) bus.Topic { return bus.T(TokHAL, TokLCD, id, TokText) }

// TopicState carries the retained types.LCDState.
func TopicState(id string) bus.Topic { return bus.T(TokHAL, TokLCD, id, TokState) }

// TopicStatus carries the retained types.CapabilityStatus.
func TopicStatus(id string) bus.Topic { return bus.T(TokHAL, TokLCD, id, TokStatus) }

// TopicInfo carries the retained types.Info.
func TopicInfo(id string) bus.Topic { return bus.T(TokHAL, TokLCD, id, TokInfo) }

// TopicConfig accepts runtime tuning (burst, interval_ms, stall_polls).
var TopicConfig = bus.T(TokConfig, TokLCD)
