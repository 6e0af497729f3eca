package capture

import "sync/atomic"

// Guard is a single-slot admission gate: at most one capture may be waiting
// for the sensor at a time.
type Guard struct {
	busy atomic.Bool
}

// TryAcquire closes the gate if it is open and reports whether the caller
// was admitted
func (g *Guard) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release reopens the gate
func (g *Guard) Release() {
	g.busy.Store(false)
}

// Ready reports whether a capture would be admitted
func (g *Guard) Ready() bool {
	return !g.busy.Load()
}

