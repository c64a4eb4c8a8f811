package coordinator

import (
	"context"
	"sync"
)

// writeQueue admits one writer at a time in the order acquire was called.
// Each waiter blocks on the channel of the writer queued before it.
type writeQueue struct {
	mu   sync.Mutex
	tail chan struct{}
}

func newWriteQueue() *writeQueue {
	done := make(chan struct{})
	close(done)
	return &writeQueue{tail: done}
}

// acquire waits for every earlier writer to release. The returned func
// releases the slot and must be called exactly once.
func (q *writeQueue) acquire(ctx context.Context) (func(), error) {
	q.mu.Lock()
	prev := q.tail
	mine := make(chan struct{})
	q.tail = mine
	q.mu.Unlock()

	release := sync.OnceFunc(func() { close(mine) })

	select {
	case <-prev:
		return release, nil
	case <-ctx.Done():
		// Hand the slot on once our predecessor finishes.
		go func() {
			<-prev
			release()
		}()
		return nil, ctx.Err()
	}
}
