package rtdb

import "sync"

// callQueue runs queued calls one at a time on its own goroutine. push never blocks.
type callQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	calls  []func()
	closed bool
	done   chan struct{}
}

func newCallQueue() *callQueue {
	q := &callQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *callQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.calls) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.calls = nil
			q.mu.Unlock()
			return
		}
		fn := q.calls[0]
		q.calls[0] = nil
		q.calls = q.calls[1:]
		q.mu.Unlock()
		fn()
	}
}

func (q *callQueue) push(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.calls = append(q.calls, fn)
	q.cond.Signal()
}

// close drops pending calls and waits for the running one to return. It must
// not be called from inside a queued call.
func (q *callQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}
