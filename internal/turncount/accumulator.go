// Package turncount gates how often the (expensive, LLM-driven) profile
// extraction runs. Counters are advisory and process-lifetime: losing them on
// restart only delays the next trigger, it never corrupts the profile.
package turncount

import "sync"

const DefaultCadence = 5

type key struct {
	userID   string
	threadID string
}

// Accumulator counts completed chat exchanges per (user, thread).
type Accumulator struct {
	mu      sync.Mutex
	cadence int
	counts  map[key]int
}

func NewAccumulator(cadence int) *Accumulator {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	return &Accumulator{cadence: cadence, counts: make(map[key]int)}
}

// RecordTurn increments the counter for one completed exchange and returns
// the new count.
func (a *Accumulator) RecordTurn(userID, threadID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := key{userID, threadID}
	a.counts[k]++
	return a.counts[k]
}

// Boundary reports whether count sits exactly on a cadence boundary. Callers
// holding the count returned by RecordTurn use this so record-and-check is a
// single step; a concurrent increment between the two cannot skip a boundary.
func (a *Accumulator) Boundary(count int) bool {
	return count > 0 && count%a.cadence == 0
}

// ShouldExtract reports whether the running count sits exactly on a cadence
// boundary (cadence, 2*cadence, ...).
func (a *Accumulator) ShouldExtract(userID, threadID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	count := a.counts[key{userID, threadID}]
	return count > 0 && count%a.cadence == 0
}
