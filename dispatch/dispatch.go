// Package dispatch implements the work-group dispatcher: a single atomic
// counter per in-flight kernel launch that hands out group indices to
// whichever worker asks next.
package dispatch

import "sync/atomic"

// Dispatcher hands out work-group indices in [0, NumGroups) to concurrent
// callers with no ordering guarantee among them: between work-groups
// assigned to different workers there is no ordering whatsoever.
type Dispatcher struct {
	next      atomic.Int64
	numGroups int
}

// New creates a dispatcher for an NDRange with the given total group count.
func New(numGroups int) *Dispatcher {
	return &Dispatcher{numGroups: numGroups}
}

// ClaimNextGroup atomically returns the next unclaimed group index and
// increments the counter. A return value >= NumGroups means there is
// nothing left to do for this kernel.
func (d *Dispatcher) ClaimNextGroup() int {
	return int(d.next.Add(1) - 1)
}

// NumGroups is the total number of groups in the NDRange this dispatcher
// was created for.
func (d *Dispatcher) NumGroups() int { return d.numGroups }
