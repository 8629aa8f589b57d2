// Package correlation tracks in-flight acquirer requests by STAN (System
// Trace Audit Number) so an issuer's response can be routed back to the
// acquirer socket that originated it.
package correlation

import (
	"net"
	"sync"
	"time"
)

// PendingEntry is the correlation table value recorded for one in-flight
// STAN.
type PendingEntry struct {
	AcquirerSocket net.Conn
	ConnectionID   string
	CreatedAt      time.Time
}

// Table is a STAN -> PendingEntry map guarded by a single mutex, matching
// the coarse-locking concurrency model used across the switch's shared
// state.
type Table struct {
	mu      sync.Mutex
	pending map[string]PendingEntry
}

// New returns an empty Table.
func New() *Table {
	return &Table{pending: make(map[string]PendingEntry)}
}

// Insert records entry under stan. If stan already has a pending entry,
// the old one is silently overwritten: STAN reuse within the pending
// window is treated as a client bug, not defended against here.
func (t *Table) Insert(stan string, entry PendingEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[stan] = entry
}

// Take removes and returns the entry for stan, if present.
func (t *Table) Take(stan string) (PendingEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.pending[stan]
	if ok {
		delete(t.pending, stan)
	}
	return entry, ok
}

// PurgeSocket deletes every entry whose AcquirerSocket equals sock, as when
// that connection closes.
func (t *Table) PurgeSocket(sock net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for stan, entry := range t.pending {
		if entry.AcquirerSocket == sock {
			delete(t.pending, stan)
		}
	}
}

// Len reports the current pending-entry count, for metrics gauges.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
