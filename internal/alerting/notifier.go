package alerting

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"leakwatch/internal/data"
	"leakwatch/internal/history"
	"leakwatch/internal/metrics"
	"leakwatch/internal/notify"
	"leakwatch/internal/rtdb"
)

const (
	NotificationTitle = "LeakLens • Critical"
	fallbackPipe      = "Pipe?"
	fallbackMessage   = "Check system"
)

// Notifier turns new critical alert records into device notifications.
type Notifier struct {
	store  rtdb.Store
	svc    notify.Service
	alerts *history.AlertLog // optional
}

func NewNotifier(store rtdb.Store, svc notify.Service, alerts *history.AlertLog) *Notifier {
	return &Notifier{store: store, svc: svc, alerts: alerts}
}

// Watch is one attachment of the notifier to a set of rooms.
type Watch struct {
	n    *Notifier
	ctx  context.Context
	mu   sync.Mutex
	subs []rtdb.Subscription
	seen map[string]map[string]struct{}
	// rooms that appeared after attach; their records are all new
	fresh  map[string]bool
	closed bool
	stop   func() bool
}

// Watch subscribes to the alert log of every room, or of every room that
// appears under Alerts when rooms is empty. Records that exist at attach time
// are marked seen without notifying. The watch is detached when ctx ends.
func (n *Notifier) Watch(ctx context.Context, rooms []string) (*Watch, error) {
	w := &Watch{n: n, ctx: ctx, seen: make(map[string]map[string]struct{}), fresh: make(map[string]bool)}
	if len(rooms) == 0 {
		sub, err := n.store.OnChildAdded(data.AlertsRoot, func(s rtdb.Snapshot) {
			if err := w.watchRoom(s.Key, !s.Replay); err != nil {
				log.Printf("[notifier] %v", err)
			}
		}, func(err error) {
			log.Printf("[notifier] subscription %s: %v", data.AlertsRoot, err)
		})
		if err != nil {
			return nil, fmt.Errorf("watch alert rooms: %w", err)
		}
		w.mu.Lock()
		w.subs = append(w.subs, sub)
		w.mu.Unlock()
	}
	for _, room := range rooms {
		if err := w.watchRoom(room, false); err != nil {
			w.Detach()
			return nil, err
		}
	}
	stop := context.AfterFunc(ctx, w.Detach)
	w.mu.Lock()
	w.stop = stop
	w.mu.Unlock()
	log.Printf("[notifier] watching rooms: %v", roomsLabel(rooms))
	return w, nil
}

func roomsLabel(rooms []string) interface{} {
	if len(rooms) == 0 {
		return "all"
	}
	return rooms
}

// watchRoom subscribes to Alerts/{room} once per watch. A fresh room was
// created after attach, so its replayed records are notified too.
func (w *Watch) watchRoom(room string, fresh bool) error {
	if !data.ValidKey(room) {
		return fmt.Errorf("watch alerts of %q: %w", room, rtdb.ErrInvalidPath)
	}
	w.mu.Lock()
	if w.closed || w.seen[room] != nil {
		w.mu.Unlock()
		return nil
	}
	w.seen[room] = make(map[string]struct{})
	w.fresh[room] = fresh
	w.mu.Unlock()

	sub, err := w.n.store.OnChildAdded(data.AlertsPath(room), func(s rtdb.Snapshot) {
		w.handle(room, s)
	}, func(err error) {
		log.Printf("[notifier] subscription %s: %v", data.AlertsPath(room), err)
	})
	if err != nil {
		return fmt.Errorf("watch alerts of %s: %w", room, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		sub.Unsubscribe()
		return nil
	}
	w.subs = append(w.subs, sub)
	return nil
}

// Detach releases every subscription and forgets the seen records.
func (w *Watch) Detach() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	subs := w.subs
	w.subs = nil
	w.seen = make(map[string]map[string]struct{})
	w.fresh = make(map[string]bool)
	stop := w.stop
	w.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, s := range subs {
		s.Unsubscribe()
	}
}

// Seen reports how many records of room were observed.
func (w *Watch) Seen(room string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen[room])
}

func (w *Watch) handle(room string, s rtdb.Snapshot) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	seen := w.seen[room]
	if seen == nil {
		w.mu.Unlock()
		return
	}
	if _, dup := seen[s.Key]; dup {
		w.mu.Unlock()
		return
	}
	seen[s.Key] = struct{}{}
	replay := s.Replay && !w.fresh[room]
	w.mu.Unlock()

	var rec data.AlertRecord
	if err := s.Decode(&rec); err != nil {
		log.Printf("[notifier] skipping Alerts/%s/%s: %v", room, s.Key, err)
		return
	}
	if rec.Room == "" {
		rec.Room = room
	}
	if w.n.alerts != nil {
		w.n.alerts.Add(data.AlertEntry{ID: s.Key, AlertRecord: rec})
	}
	if replay || rec.Level != data.SeverityCritical {
		return
	}

	id, err := w.n.svc.Schedule(w.ctx, Notification(rec))
	if err != nil {
		metrics.Notifications.WithLabelValues("error").Inc()
		log.Printf("[notifier] schedule for %s/%s failed: %v", rec.Room, s.Key, err)
		return
	}
	metrics.Notifications.WithLabelValues("ok").Inc()
	log.Printf("[notifier] notification %s for %s/%s", id, rec.Room, s.Key)
}

// Notification builds the device notification for a critical record.
func Notification(rec data.AlertRecord) notify.Notification {
	pipe := rec.Pipe
	if pipe == "" {
		pipe = fallbackPipe
	}
	msg := rec.Message
	if msg == "" {
		msg = fallbackMessage
	}
	return notify.Notification{
		Title: NotificationTitle,
		Body:  fmt.Sprintf("%s/%s: %s", rec.Room, pipe, msg),
		Data: map[string]string{
			"room":         rec.Room,
			"pipe":         rec.Pipe,
			"ts_server_ms": strconv.FormatInt(rec.ServerTsMs, 10),
		},
	}
}
