package logs

import "agentwatch/internal/types"

// DefaultCapacity is the per-agent log buffer size
const DefaultCapacity = 1000

// Ring is a fixed-capacity FIFO of log entries. It is not safe for concurrent use.
type Ring struct {
	buf   []types.LogEntry
	start int
	size  int
}

// NewRing creates a ring holding at most capacity entries
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]types.LogEntry, capacity)}
}

// Push appends an entry, evicting the oldest when full
func (r *Ring) Push(e types.LogEntry) (evicted bool) {
	capacity := len(r.buf)
	if r.size < capacity {
		r.buf[(r.start+r.size)%capacity] = e
		r.size++
		return false
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % capacity
	return true
}

// Len returns the number of stored entries
func (r *Ring) Len() int { return r.size }

// Cap returns the ring capacity
func (r *Ring) Cap() int { return len(r.buf) }

// Entries returns a copy ordered oldest to newest
func (r *Ring) Entries() []types.LogEntry {
	out := make([]types.LogEntry, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Newest returns the most recently pushed entry
func (r *Ring) Newest() (types.LogEntry, bool) {
	if r.size == 0 {
		return types.LogEntry{}, false
	}
	return r.buf[(r.start+r.size-1)%len(r.buf)], true
}
