// Package errorlog implements the driver's distinct error log: a
// de-duplicated buffer of error records carrying first/last observation
// timestamps and an occurrence count, so a single recurring fault does not
// flood the log (spec.md §9 "Glossary": "Distinct error log").
package errorlog

import (
	"fmt"
	"sync"
)

// Entry is one de-duplicated error record.
type Entry struct {
	Code             int32
	Location         string
	Message          string
	FirstObserved    int64 // unix nanos
	LastObserved     int64 // unix nanos
	ObservationCount int64
}

// key identifies distinct errors: same code, same location, and the same
// message prefix are considered the same fault recurring (spec.md §9).
type key struct {
	code     int32
	location string
	prefix   string
}

const messagePrefixLength = 64

// Log is a bounded, de-duplicated error record buffer.
type Log struct {
	mu      sync.Mutex
	order   []key
	entries map[key]*Entry
	capacity int
}

// New creates an error log that retains at most capacity distinct entries,
// evicting the entry that was first recorded earliest to make room for a
// new distinct fault (re-observing an entry does not change its place).
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1
	}
	return &Log{entries: make(map[key]*Entry, capacity), capacity: capacity}
}

// Record de-duplicates and records an observation of an error at nowNanos.
// A recurrence of an already-logged fault only bumps its count and
// LastObserved; a new fault allocates an entry, evicting the oldest one if
// the log is at capacity.
func (l *Log) Record(code int32, location, message string, nowNanos int64) {
	prefix := message
	if len(prefix) > messagePrefixLength {
		prefix = prefix[:messagePrefixLength]
	}
	k := key{code: code, location: location, prefix: prefix}

	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[k]; ok {
		e.LastObserved = nowNanos
		e.ObservationCount++
		return
	}

	if len(l.entries) >= l.capacity {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.entries, oldest)
	}

	l.entries[k] = &Entry{
		Code:             code,
		Location:         location,
		Message:          message,
		FirstObserved:    nowNanos,
		LastObserved:     nowNanos,
		ObservationCount: 1,
	}
	l.order = append(l.order, k)
}

// Entries returns a snapshot of all distinct entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, *l.entries[k])
	}
	return out
}

// Len returns the number of distinct entries currently retained.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

func (e Entry) String() string {
	return fmt.Sprintf("[%d] %s: %s (x%d)", e.Code, e.Location, e.Message, e.ObservationCount)
}
