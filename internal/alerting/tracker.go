package alerting

import (
	"sync"
	"time"

	"leakwatch/internal/data"
)

// DefaultCooldown is the minimum time between two alerts of the same pipe.
const DefaultCooldown = 5 * time.Minute

type pairState struct {
	last        data.Severity
	initialized bool
	lastAlertAt time.Time
	alerted     bool
}

// Tracker decides which classified readings deserve an alert record: only a
// transition into critical, never on the first reading of a pair, and at most
// once per cooldown window.
type Tracker struct {
	mu       sync.Mutex
	cooldown time.Duration
	pairs    map[data.PipeKey]*pairState
}

func NewTracker(cooldown time.Duration) *Tracker {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Tracker{cooldown: cooldown, pairs: make(map[data.PipeKey]*pairState)}
}

// Observe records sev for room/pipe and reports whether an alert should be emitted.
func (t *Tracker) Observe(room, pipe string, sev data.Severity, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := data.PipeKey{Room: room, Pipe: pipe}
	st, ok := t.pairs[key]
	if !ok || !st.initialized {
		t.pairs[key] = &pairState{last: sev, initialized: true}
		return false
	}

	emit := sev == data.SeverityCritical &&
		st.last != data.SeverityCritical &&
		(!st.alerted || now.Sub(st.lastAlertAt) > t.cooldown)
	if emit {
		st.lastAlertAt = now
		st.alerted = true
	}
	st.last = sev
	return emit
}

// Severity returns the last severity seen for room/pipe, or info when the pair
// has not been observed.
func (t *Tracker) Severity(room, pipe string) data.Severity {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.pairs[data.PipeKey{Room: room, Pipe: pipe}]; ok {
		return st.last
	}
	return data.SeverityInfo
}

func (t *Tracker) Forget(room, pipe string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pairs, data.PipeKey{Room: room, Pipe: pipe})
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pairs = make(map[data.PipeKey]*pairState)
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pairs)
}
