package history

import (
	"sort"
	"sync"

	"leakwatch/internal/data"
)

const DefaultAlertLogSize = 100

// AlertLog keeps the most recent alert records across all rooms.
type AlertLog struct {
	mu      sync.RWMutex
	size    int
	entries []data.AlertEntry
	ids     map[string]struct{}
}

func NewAlertLog(size int) *AlertLog {
	if size <= 0 {
		size = DefaultAlertLogSize
	}
	return &AlertLog{size: size, ids: make(map[string]struct{})}
}

// Add records e. An entry whose ID is already logged is ignored.
func (l *AlertLog) Add(e data.AlertEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.ID != "" {
		if _, dup := l.ids[e.ID]; dup {
			return
		}
		l.ids[e.ID] = struct{}{}
	}
	l.entries = append(l.entries, e)
	if len(l.entries) > l.size*2 {
		l.trim()
	}
}

// trim keeps the newest size entries. Caller holds the lock.
func (l *AlertLog) trim() {
	sortNewestFirst(l.entries)
	for _, e := range l.entries[l.size:] {
		delete(l.ids, e.ID)
	}
	l.entries = append([]data.AlertEntry(nil), l.entries[:l.size]...)
}

// Entries returns at most size records, newest first.
func (l *AlertLog) Entries() []data.AlertEntry {
	l.mu.RLock()
	out := append([]data.AlertEntry(nil), l.entries...)
	l.mu.RUnlock()

	sortNewestFirst(out)
	if len(out) > l.size {
		out = out[:l.size]
	}
	return out
}

// CriticalCount counts critical records among Entries.
func (l *AlertLog) CriticalCount() int {
	n := 0
	for _, e := range l.Entries() {
		if e.Level == data.SeverityCritical {
			n++
		}
	}
	return n
}

func sortNewestFirst(entries []data.AlertEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ServerTsMs > entries[j].ServerTsMs
	})
}
