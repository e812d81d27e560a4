package logging

import (
	"sync"

	"fswatch/internal/buffer"
)

// LogBuffer keeps the most recent log entries in memory so the reload
// server can serve them without touching disk.
type LogBuffer struct {
	mu      sync.Mutex
	entries *buffer.Ring[LogEntry]
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		entries: buffer.NewRing[LogEntry](size),
	}
}

func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.entries == nil {
		return
	}

	b.entries.Add(entry)
}

func (b *LogBuffer) List() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.entries.List()
}

// Filtered returns buffered entries at or above minLevel, oldest first.
// A limit above zero keeps only the newest entries after filtering. An
// empty minLevel keeps every level.
func (b *LogBuffer) Filtered(minLevel Level, limit int) []LogEntry {
	entries := b.List()

	filtered := make([]LogEntry, 0, len(entries))
	for _, entry := range entries {
		if minLevel != "" && !LevelAtLeast(entry.Level, minLevel) {
			continue
		}
		filtered = append(filtered, entry)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}
