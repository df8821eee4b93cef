package reactive

import "sync/atomic"

// Gate is a one-shot latch. Exactly one caller of Open wins.
type Gate struct {
	opened atomic.Bool
}

// Open flips the gate and reports whether this call did it.
func (g *Gate) Open() bool {
	return g.opened.CompareAndSwap(false, true)
}

// IsOpen reports whether the gate was already opened.
func (g *Gate) IsOpen() bool {
	return g.opened.Load()
}
