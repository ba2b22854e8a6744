// Package memq is an in-process backend.Adapter. It gives the same single
// delivery guarantee as the shared stores but only within one process.
package memq

import (
	"context"
	"sync"
	"time"

	"github.com/mohans/taskx/backend"
)

type queue struct {
	mu     sync.Mutex
	closed bool
	items  map[string][][]byte
	// wake is closed and replaced on every push to release waiters.
	wake chan struct{}
}

// New returns an empty in-memory store.
func New() backend.Adapter {
	return &queue{
		items: make(map[string][][]byte),
		wake:  make(chan struct{}),
	}
}

func (q *queue) Push(_ context.Context, name string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return backend.ErrClosed
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	q.items[name] = append(q.items[name], buf)

	close(q.wake)
	q.wake = make(chan struct{})
	return nil
}

// tryPop returns the head of the queue, or the channel to wait on when the
// queue is empty.
func (q *queue) tryPop(name string) ([]byte, <-chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, nil, backend.ErrClosed
	}

	items := q.items[name]
	if len(items) == 0 {
		return nil, q.wake, nil
	}

	head := items[0]
	items[0] = nil
	q.items[name] = items[1:]
	return head, nil, nil
}

func (q *queue) PopBlocking(ctx context.Context, name string, timeout time.Duration) ([]byte, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		payload, wake, err := q.tryPop(name)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			return payload, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, backend.ErrEmpty
		case <-wake:
		}
	}
}

func (q *queue) Len(_ context.Context, name string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, backend.ErrClosed
	}
	return int64(len(q.items[name])), nil
}

func (q *queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.items = nil
	close(q.wake)
	return nil
}
