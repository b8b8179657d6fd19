// Package quota tracks daily generation usage: one counter per sender plus a
// single global counter, all reset together once a day. Counts price
// generation calls only; dropped or short-circuited events never increment.
package quota

import (
	"sync"
	"time"
)

// Ledger holds the daily counters. All access goes through the lock; the
// critical sections are read-check-write only.
type Ledger struct {
	mu        sync.Mutex
	bySender  map[string]int
	global    int
	lastReset time.Time
	window    time.Duration
}

// NewLedger creates a ledger that goes stale after window (normally 24h).
func NewLedger(window time.Duration) *Ledger {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Ledger{
		bySender:  make(map[string]int),
		lastReset: time.Now(),
		window:    window,
	}
}

// ResetIfStale wipes every counter and stamps lastReset when the window has
// elapsed. Returns true when a wipe fired so the caller can clear its own
// per-day tables (dedup set, session markers) in the same breath.
func (l *Ledger) ResetIfStale(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastReset) <= l.window {
		return false
	}
	l.bySender = make(map[string]int)
	l.global = 0
	l.lastReset = now
	return true
}

// Inc records one successful generation for sender.
func (l *Ledger) Inc(sender string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bySender[sender]++
	l.global++
}

// SenderCount returns the sender's count since the last reset.
func (l *Ledger) SenderCount(sender string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bySender[sender]
}

// GlobalCount returns the global count since the last reset.
func (l *Ledger) GlobalCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.global
}

// LastReset returns the timestamp of the most recent wipe.
func (l *Ledger) LastReset() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastReset
}

// Stats is a point-in-time copy of the ledger for logging and the status
// endpoint.
type Stats struct {
	Global    int
	Senders   int
	LastReset time.Time
}

// Snapshot returns a copy of the aggregate state.
func (l *Ledger) Snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Global:    l.global,
		Senders:   len(l.bySender),
		LastReset: l.lastReset,
	}
}
