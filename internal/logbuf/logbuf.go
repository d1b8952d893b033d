// Package logbuf keeps a bounded in-memory buffer of protocol diagnostics
// captured from scsynth notifications (/fail, /done, node lifecycle).
package logbuf

import (
	"sync"
	"time"

	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
)

const DefaultCapacity = 500

type Buffer struct {
	mu      sync.Mutex
	entries []model.LogEntry
	cap     int
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{cap: capacity}
}

func (b *Buffer) Append(category model.LogCategory, message string) {
	b.AppendEntry(model.LogEntry{
		Timestamp: time.Now(),
		Category:  category,
		Message:   message,
	})
}

func (b *Buffer) AppendEntry(e model.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	if len(b.entries) > b.cap {
		// Evict oldest. Copy down so the backing array does not grow forever.
		overflow := len(b.entries) - b.cap
		b.entries = b.entries[:copy(b.entries, b.entries[overflow:])]
	}
}

// Recent returns up to limit entries, oldest first, optionally filtered by
// category (empty category matches everything).
func (b *Buffer) Recent(limit int, category model.LogCategory) []model.LogEntry {
	b.mu.Lock()
	snapshot := make([]model.LogEntry, len(b.entries))
	copy(snapshot, b.entries)
	b.mu.Unlock()

	if category != "" {
		filtered := snapshot[:0]
		for _, e := range snapshot {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		snapshot = filtered
	}
	if limit > 0 && len(snapshot) > limit {
		snapshot = snapshot[len(snapshot)-limit:]
	}
	return snapshot
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}
