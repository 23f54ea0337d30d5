package charlcd

// SyncDepth is the number of stages between the raw bus sample and the
// value the sequencer trusts.
const SyncDepth = 3

// Synchronizer delays the externally driven bus byte by SyncDepth ticks so
// the sequencer only ever sees a value that has been stable for at least
// two ticks.
type Synchronizer struct {
	stage [SyncDepth]byte
}

// Shift pushes raw into the first stage and moves every stage one along.
func (s *Synchronizer) Shift(raw byte) {
	copy(s.stage[1:], s.stage[:SyncDepth-1])
	s.stage[0] = raw
}

// Stable returns the oldest stage.
func (s *Synchronizer) Stable() byte { return s.stage[SyncDepth-1] }
