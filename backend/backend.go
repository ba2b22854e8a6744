// Package backend defines the boundary to the shared store that holds queued
// work items.
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by PopBlocking when the wait elapsed and nothing was
// available.
var ErrEmpty = errors.New("queue is empty")

// ErrClosed is returned by adapters used after Close.
var ErrClosed = errors.New("queue store is already shutdown")

// Adapter is a named-queue store with atomic push and pop.
//
// The one property the rest of the system relies on: a payload handed out by
// PopBlocking is never handed to another caller, whichever process it runs
// in. FIFO order is best effort.
type Adapter interface {
	// Push appends payload to the named queue. It returns once the store
	// acknowledged the write.
	Push(ctx context.Context, queue string, payload []byte) error

	// PopBlocking removes and returns one payload, waiting up to timeout for
	// one to arrive. A timeout <= 0 waits until ctx is done. It returns
	// ErrEmpty when the timeout elapses, and ctx.Err() when ctx is done
	// before anything was removed.
	PopBlocking(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)

	// Len returns the number of payloads waiting in the named queue.
	Len(ctx context.Context, queue string) (int64, error)

	Close() error
}

func ns(name string) string {
	return "taskx:" + name
}

// PendingKey builds the store key of a queue's pending list.
func PendingKey(queue string) string {
	return ns(queue + ":pending")
}
