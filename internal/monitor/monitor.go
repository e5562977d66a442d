// Package monitor watches the Latest reading of every pipe and turns
// transitions into critical into alert records.
package monitor

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"leakwatch/internal/alerting"
	"leakwatch/internal/anomaly"
	"leakwatch/internal/archive"
	"leakwatch/internal/data"
	"leakwatch/internal/history"
	"leakwatch/internal/metrics"
	"leakwatch/internal/rtdb"
)

// Gate reports whether the gateway may write alert records.
type Gate interface {
	SignedIn() bool
}

type DataBroadcaster interface {
	BroadcastData(v interface{})
}

// Update is broadcast to dashboards for every Latest reading.
type Update struct {
	Room     string        `json:"room"`
	Pipe     string        `json:"pipe"`
	Reading  data.Reading  `json:"reading"`
	Severity data.Severity `json:"severity"`
	Message  string        `json:"message,omitempty"`
}

// Deps are the collaborators of a Monitor. Hub, Gate and Archive are optional.
type Deps struct {
	Store      rtdb.Store
	Classifier *anomaly.Classifier
	Tracker    *alerting.Tracker
	Alerter    *alerting.Alerter
	History    *history.Store
	Hub        DataBroadcaster
	Gate       Gate
	Archive    archive.Repository
}

type Monitor struct {
	d   Deps
	now func() time.Time

	mu       sync.Mutex
	ctx      context.Context
	stop     func() bool
	rooms    []string // as requested; empty means every room
	attached bool
	gen      uint64
	subs     []rtdb.Subscription
	watched  map[string]bool
	pipes    map[data.PipeKey]rtdb.Subscription
	lastErr  string
}

func New(d Deps) *Monitor {
	if d.Archive == nil {
		d.Archive = archive.Nop{}
	}
	return &Monitor{d: d, now: time.Now}
}

// Attach starts watching rooms, or every room under Devices when rooms is
// empty. An existing attachment is released first. The monitor detaches
// itself when ctx ends.
func (m *Monitor) Attach(ctx context.Context, rooms []string) error {
	for _, room := range rooms {
		if !data.ValidKey(room) {
			return fmt.Errorf("watch room %q: %w", room, rtdb.ErrInvalidPath)
		}
	}
	m.Detach()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx
	m.rooms = append([]string(nil), rooms...)
	m.attached = true
	m.watched = make(map[string]bool)
	m.pipes = make(map[data.PipeKey]rtdb.Subscription)
	gen := m.gen
	m.stop = context.AfterFunc(ctx, func() { m.detachIf(gen) })

	if len(rooms) == 0 {
		sub, err := m.d.Store.OnChildAdded(data.DevicesRoot, func(s rtdb.Snapshot) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.gen == gen {
				m.watchRoomLocked(gen, s.Key)
			}
		}, m.subscriptionError(data.DevicesRoot))
		if err != nil {
			m.setErrLocked(data.DevicesRoot, err)
			m.attached = false
			m.gen++
			m.stop()
			m.stop = nil
			return fmt.Errorf("watch rooms: %w", err)
		}
		m.subs = append(m.subs, sub)
	}
	for _, room := range rooms {
		m.watchRoomLocked(gen, room)
	}
	log.Printf("[monitor] attached (rooms: %v)", roomsLabel(rooms))
	return nil
}

// detachIf detaches only while the attachment of generation gen is current.
func (m *Monitor) detachIf(gen uint64) {
	m.mu.Lock()
	current := m.gen == gen && m.attached
	m.mu.Unlock()
	if current {
		m.Detach()
	}
}

func roomsLabel(rooms []string) interface{} {
	if len(rooms) == 0 {
		return "all"
	}
	return rooms
}

// watchRoomLocked subscribes to the pipes of room. Caller holds m.mu.
func (m *Monitor) watchRoomLocked(gen uint64, room string) {
	if m.watched[room] || !data.ValidKey(room) {
		return
	}
	path := data.RoomPath(room)
	sub, err := m.d.Store.OnChildAdded(path, func(s rtdb.Snapshot) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen == gen {
			m.watchPipeLocked(gen, room, s.Key)
		}
	}, m.subscriptionError(path))
	if err != nil {
		m.setErrLocked(path, err)
		return
	}
	m.watched[room] = true
	m.subs = append(m.subs, sub)
}

// watchPipeLocked subscribes to the Latest value of room/pipe. Caller holds m.mu.
func (m *Monitor) watchPipeLocked(gen uint64, room, pipe string) {
	key := data.PipeKey{Room: room, Pipe: pipe}
	if _, ok := m.pipes[key]; ok || !data.ValidKey(pipe) {
		return
	}
	path := data.LatestPath(room, pipe)
	sub, err := m.d.Store.OnValue(path, func(s rtdb.Snapshot) {
		m.onLatest(gen, key, s)
	}, m.subscriptionError(path))
	if err != nil {
		m.setErrLocked(path, err)
		return
	}
	m.pipes[key] = sub
	metrics.WatchedPipes.Set(float64(len(m.pipes)))
}

func (m *Monitor) onLatest(gen uint64, key data.PipeKey, s rtdb.Snapshot) {
	m.mu.Lock()
	if m.gen != gen || !m.attached {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	m.mu.Unlock()

	if !s.Exists() {
		return
	}
	var r data.Reading
	if err := s.Decode(&r); err != nil {
		log.Printf("[monitor] %s: undecodable reading: %v", key, err)
		return
	}

	if m.d.History != nil {
		m.d.History.Add(key, r)
	}
	sev, msg := m.d.Classifier.Evaluate(r)
	metrics.ReadingsObserved.WithLabelValues(key.Room, string(sev)).Inc()
	if m.d.Hub != nil {
		m.d.Hub.BroadcastData(Update{Room: key.Room, Pipe: key.Pipe, Reading: r, Severity: sev, Message: msg})
	}

	// Detach resets the tracker under m.mu, so a callback of a released
	// attachment cannot leave state behind for the next one.
	m.mu.Lock()
	emit := m.gen == gen && m.attached && m.d.Tracker.Observe(key.Room, key.Pipe, sev, m.now())
	m.mu.Unlock()
	if !emit {
		return
	}
	if m.d.Gate != nil && !m.d.Gate.SignedIn() {
		log.Printf("[monitor] %s turned critical but the gateway is signed out, alert not written", key)
		return
	}
	if msg == "" {
		msg = anomaly.FallbackMessage
	}
	rec := data.AlertRecord{
		Room:       key.Room,
		Pipe:       key.Pipe,
		Level:      data.SeverityCritical,
		Message:    msg,
		ServerTsMs: m.now().UnixMilli(),
	}
	if _, err := m.d.Alerter.Emit(ctx, rec); err != nil {
		log.Printf("[monitor] %v", err)
		return
	}
	metrics.AlertsEmitted.WithLabelValues(key.Room).Inc()
	if err := m.d.Archive.WriteAlert(ctx, rec); err != nil {
		log.Printf("[monitor] archive alert: %v", err)
	}
}

func (m *Monitor) subscriptionError(path string) rtdb.ErrorHandler {
	return func(err error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.setErrLocked(path, err)
	}
}

func (m *Monitor) setErrLocked(path string, err error) {
	m.lastErr = fmt.Sprintf("%s: %v", path, err)
	log.Printf("[monitor] subscription error %s", m.lastErr)
}

// Detach releases every subscription and forgets all per-pipe state.
func (m *Monitor) Detach() {
	m.mu.Lock()
	subs := m.subs
	for _, s := range m.pipes {
		subs = append(subs, s)
	}
	stop := m.stop
	wasAttached := m.attached
	m.subs, m.pipes, m.watched, m.stop = nil, nil, nil, nil
	m.attached = false
	m.lastErr = ""
	m.gen++
	m.d.Tracker.Reset()
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, s := range subs {
		s.Unsubscribe()
	}
	metrics.WatchedPipes.Set(0)
	if wasAttached {
		log.Println("[monitor] detached")
	}
}

// Refresh detaches and attaches again to the same rooms.
func (m *Monitor) Refresh(ctx context.Context) error {
	m.mu.Lock()
	rooms := append([]string(nil), m.rooms...)
	m.mu.Unlock()
	return m.Attach(ctx, rooms)
}

// LastError is the most recent subscription error, for display only.
func (m *Monitor) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Monitor) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached
}

// Rooms lists the rooms currently watched.
func (m *Monitor) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := make([]string, 0, len(m.watched))
	for r := range m.watched {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}

// Pipes lists the pipes with a Latest subscription.
func (m *Monitor) Pipes() []data.PipeKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]data.PipeKey, 0, len(m.pipes))
	for k := range m.pipes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Room != keys[j].Room {
			return keys[i].Room < keys[j].Room
		}
		return keys[i].Pipe < keys[j].Pipe
	})
	return keys
}
