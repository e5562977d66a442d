package rtdb

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallQueueRunsInOrder(t *testing.T) {
	q := newCallQueue()
	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	wg.Add(50)
	for i := 0; i < 50; i++ {
		i := i
		q.push(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()
	q.close()

	for i, v := range got {
		assert.Equal(t, i, v)
	}
	q.push(func() { t.Error("ran after close") })
}
