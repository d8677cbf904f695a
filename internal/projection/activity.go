package projection

import (
	"sync"

	"LendLedger/internal/core"
)

// ActivityEntry is one applied event in the recent-activity feed.
type ActivityEntry struct {
	Sequence  int64  `json:"sequence"`
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	Emitter   string `json:"emitter"`
	Block     uint64 `json:"block"`
	Timestamp int64  `json:"timestamp"`
}

// ActivityProjection keeps the last N applied events in a ring buffer for
// the query API's activity feed. It is a lossy convenience view: the engine
// sends on a non-blocking channel and drops when the worker lags, and the
// chain-event log in Postgres remains the complete record.
type ActivityProjection struct {
	mu      sync.RWMutex
	entries []ActivityEntry
	next    int
	full    bool
}

func NewActivityProjection(capacity int) *ActivityProjection {
	if capacity <= 0 {
		capacity = 1024
	}
	return &ActivityProjection{
		entries: make([]ActivityEntry, capacity),
	}
}

// Add records one applied event, overwriting the oldest when full.
func (p *ActivityProjection) Add(out core.Output) {
	env := out.Envelope

	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries[p.next] = ActivityEntry{
		Sequence:  env.Sequence,
		EventID:   env.EventID,
		EventType: env.EventType.String(),
		Emitter:   env.Emitter,
		Block:     env.Block,
		Timestamp: env.Timestamp,
	}
	p.next++
	if p.next == len(p.entries) {
		p.next = 0
		p.full = true
	}
}

// Recent returns up to limit entries, newest first, optionally filtered by
// emitter.
func (p *ActivityProjection) Recent(emitter string, limit int) []ActivityEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	size := p.next
	if p.full {
		size = len(p.entries)
	}

	result := make([]ActivityEntry, 0, limit)
	for i := 0; i < size && len(result) < limit; i++ {
		idx := p.next - 1 - i
		if idx < 0 {
			idx += len(p.entries)
		}
		e := p.entries[idx]
		if emitter != "" && e.Emitter != emitter {
			continue
		}
		result = append(result, e)
	}
	return result
}

// LastSequence returns the newest recorded sequence, or -1 when empty.
func (p *ActivityProjection) LastSequence() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.next == 0 && !p.full {
		return -1
	}
	idx := p.next - 1
	if idx < 0 {
		idx += len(p.entries)
	}
	return p.entries[idx].Sequence
}
