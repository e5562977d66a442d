// internal/history/buffer.go
package history

import (
	"sort"
	"sync"

	"leakwatch/internal/data"
)

const DefaultCapacity = 120 // points kept per pipe

// Buffer keeps the most recent readings of one pipe.
type Buffer struct {
	mu       sync.RWMutex
	buffer   []data.Reading
	capacity int
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		buffer:   make([]data.Reading, 0, capacity),
		capacity: capacity,
	}
}

func (b *Buffer) Add(r data.Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buffer) >= b.capacity {
		// Drop the oldest element
		copy(b.buffer, b.buffer[1:])
		b.buffer = b.buffer[:len(b.buffer)-1]
	}
	b.buffer = append(b.buffer, r)
}

// Recent returns up to count of the newest readings, oldest first. count <= 0 means all.
func (b *Buffer) Recent(count int) []data.Reading {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if count <= 0 || count > len(b.buffer) {
		count = len(b.buffer)
	}
	// Return a copy so callers never see later writes
	result := make([]data.Reading, count)
	copy(result, b.buffer[len(b.buffer)-count:])
	return result
}

func (b *Buffer) Latest() (data.Reading, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.buffer) == 0 {
		return data.Reading{}, false
	}
	return b.buffer[len(b.buffer)-1], true
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.buffer)
}

// Store holds one Buffer per room/pipe.
type Store struct {
	mu       sync.RWMutex
	capacity int
	pipes    map[data.PipeKey]*Buffer
}

func NewStore(capacity int) *Store {
	return &Store{capacity: capacity, pipes: make(map[data.PipeKey]*Buffer)}
}

func (s *Store) Add(key data.PipeKey, r data.Reading) {
	s.mu.Lock()
	b, ok := s.pipes[key]
	if !ok {
		b = NewBuffer(s.capacity)
		s.pipes[key] = b
	}
	s.mu.Unlock()
	b.Add(r)
}

// Get returns the buffer of a pipe, or nil when nothing was recorded.
func (s *Store) Get(key data.PipeKey) *Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pipes[key]
}

// Pipes lists the pipes recorded for room, sorted by name.
func (s *Store) Pipes(room string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pipes []string
	for k := range s.pipes {
		if k.Room == room {
			pipes = append(pipes, k.Pipe)
		}
	}
	sort.Strings(pipes)
	return pipes
}
