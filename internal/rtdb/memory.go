package rtdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

type node struct {
	value    json.RawMessage
	children map[string]*node
	order    []string // child keys in insertion order
}

func newNode() *node { return &node{children: make(map[string]*node)} }

type listenerKind int

const (
	valueListener listenerKind = iota
	childListener
)

type listener struct {
	path   string
	kind   listenerKind
	h      Handler
	closed atomic.Bool
}

type event struct {
	l    *listener
	snap Snapshot
}

// MemoryStore is an in-process tree with Firebase-like subscription semantics.
// All handlers run on one dispatch goroutine, in the order the events occurred.
type MemoryStore struct {
	mu        sync.Mutex
	root      *node
	listeners map[*listener]struct{}
	queue     []event
	inflight  bool
	closed    bool
	wake      *sync.Cond
	idle      *sync.Cond
	done      chan struct{}
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		root:      newNode(),
		listeners: make(map[*listener]struct{}),
		done:      make(chan struct{}),
	}
	s.wake = sync.NewCond(&s.mu)
	s.idle = sync.NewCond(&s.mu)
	go s.dispatch()
	return s
}

func (s *MemoryStore) dispatch() {
	defer close(s.done)
	s.mu.Lock()
	for {
		for len(s.queue) == 0 && !s.closed {
			s.inflight = false
			s.idle.Broadcast()
			s.wake.Wait()
		}
		if s.closed {
			s.queue = nil
			s.inflight = false
			s.idle.Broadcast()
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue[0] = event{}
		s.queue = s.queue[1:]
		s.inflight = true
		s.mu.Unlock()

		if !ev.l.closed.Load() {
			ev.l.h(ev.snap)
		}

		s.mu.Lock()
	}
}

// Flush blocks until every queued event has been delivered. It must not be
// called from inside a handler.
func (s *MemoryStore) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for (len(s.queue) > 0 || s.inflight) && !s.closed {
		s.idle.Wait()
	}
}

func (s *MemoryStore) enqueue(l *listener, snap Snapshot) {
	s.queue = append(s.queue, event{l: l, snap: snap})
	s.wake.Signal()
}

func (s *MemoryStore) lookup(parts []string) *node {
	n := s.root
	for _, p := range parts {
		child, ok := n.children[p]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

func (s *MemoryStore) subscribe(path string, kind listenerKind, h Handler) (Subscription, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("rtdb: nil handler for %s", path)
	}
	l := &listener{path: joinParts(parts), kind: kind, h: h}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.listeners[l] = struct{}{}

	if n := s.lookup(parts); n != nil {
		switch kind {
		case valueListener:
			if n.value != nil {
				s.enqueue(l, Snapshot{Path: l.path, Key: parts[len(parts)-1], Value: n.value, Replay: true})
			}
		case childListener:
			for _, key := range n.order {
				s.enqueue(l, Snapshot{Path: joinPath(l.path, key), Key: key, Value: n.children[key].value, Replay: true})
			}
		}
	}
	return &memorySub{store: s, l: l}, nil
}

func (s *MemoryStore) OnValue(path string, h Handler, _ ErrorHandler) (Subscription, error) {
	return s.subscribe(path, valueListener, h)
}

func (s *MemoryStore) OnChildAdded(path string, h Handler, _ ErrorHandler) (Subscription, error) {
	return s.subscribe(path, childListener, h)
}

func (s *MemoryStore) Set(ctx context.Context, path string, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rtdb: encode %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	n := s.root
	for i, p := range parts {
		child, ok := n.children[p]
		if !ok {
			child = newNode()
			n.children[p] = child
			n.order = append(n.order, p)
			if i == len(parts)-1 {
				child.value = raw
			}
			s.notifyChild(joinParts(parts[:i]), p, child.value)
		}
		n = child
	}
	n.value = raw

	full := joinParts(parts)
	for l := range s.listeners {
		if l.kind == valueListener && l.path == full {
			s.enqueue(l, Snapshot{Path: full, Key: parts[len(parts)-1], Value: raw})
		}
	}
	return nil
}

func (s *MemoryStore) notifyChild(parent, key string, value json.RawMessage) {
	if parent == "" {
		return
	}
	for l := range s.listeners {
		if l.kind == childListener && l.path == parent {
			s.enqueue(l, Snapshot{Path: joinPath(parent, key), Key: key, Value: value})
		}
	}
}

func (s *MemoryStore) Push(ctx context.Context, path string, v interface{}) (string, error) {
	key := NewKey()
	if err := s.Set(ctx, joinPath(path, key), v); err != nil {
		return "", err
	}
	return key, nil
}

// Get returns the value stored at path, if any.
func (s *MemoryStore) Get(path string) (Snapshot, bool) {
	parts, err := splitPath(path)
	if err != nil {
		return Snapshot{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.lookup(parts)
	if n == nil || n.value == nil {
		return Snapshot{}, false
	}
	return Snapshot{Path: joinParts(parts), Key: parts[len(parts)-1], Value: n.value}, true
}

// Keys lists the direct children of path in insertion order.
func (s *MemoryStore) Keys(path string) []string {
	parts, err := splitPath(path)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.lookup(parts)
	if n == nil {
		return nil
	}
	return append([]string(nil), n.order...)
}

// Subscribers reports the number of live subscriptions.
func (s *MemoryStore) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for l := range s.listeners {
		l.closed.Store(true)
	}
	s.listeners = nil
	s.wake.Broadcast()
	s.mu.Unlock()
	<-s.done
	return nil
}

type memorySub struct {
	store *MemoryStore
	l     *listener
}

func (m *memorySub) Unsubscribe() {
	m.l.closed.Store(true)
	m.store.mu.Lock()
	delete(m.store.listeners, m.l)
	m.store.mu.Unlock()
}

func joinParts(parts []string) string { return strings.Join(parts, "/") }
