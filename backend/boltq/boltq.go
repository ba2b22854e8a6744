// Package boltq implements backend.Adapter on an embedded bbolt file.
//
// Each queue is a bucket keyed by a big-endian sequence number. A pop is one
// read-write transaction that deletes the first key, so any number of
// consumers sharing the adapter never receive the same payload. bbolt locks
// the file exclusively, so sharing is limited to one process.
package boltq

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.etcd.io/bbolt"

	"github.com/mohans/taskx/backend"
)

type Options struct {
	Logger *slog.Logger
	Path   string

	// MinPoll and MaxPoll bound the backoff between polls of an empty queue.
	MinPoll time.Duration
	MaxPoll time.Duration
}

func buildOptions(opts *Options) *Options {
	def := &Options{
		Logger:  slog.Default(),
		Path:    "taskx.db",
		MinPoll: 10 * time.Millisecond,
		MaxPoll: 500 * time.Millisecond,
	}
	if opts == nil {
		return def
	}
	if opts.Logger != nil {
		def.Logger = opts.Logger
	}
	if len(opts.Path) > 0 {
		def.Path = opts.Path
	}
	if opts.MinPoll > 0 {
		def.MinPoll = opts.MinPoll
	}
	if opts.MaxPoll > 0 {
		def.MaxPoll = opts.MaxPoll
	}
	if def.MaxPoll < def.MinPoll {
		def.MaxPoll = def.MinPoll
	}
	return def
}

type bqueue struct {
	mu   sync.RWMutex
	db   *bbolt.DB
	wake chan struct{}

	logger *slog.Logger
	opts   *Options
}

func New(o *Options) (backend.Adapter, error) {
	opts := buildOptions(o)
	q := &bqueue{
		logger: opts.Logger,
		opts:   opts,
		wake:   make(chan struct{}),
	}

	db, err := bbolt.Open(opts.Path, 0600, &bbolt.Options{
		Timeout: time.Second * 1,
	})
	if err != nil {
		q.logger.
			With("err", err).
			With("path", opts.Path).
			Error("failed to open queue file")
		return nil, fmt.Errorf("failed to open queue file: %w", err)
	}
	q.db = db

	return q, nil
}

func (q *bqueue) handle() (*bbolt.DB, <-chan struct{}, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.db == nil {
		return nil, nil, backend.ErrClosed
	}
	return q.db, q.wake, nil
}

func (q *bqueue) notify() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.db == nil {
		return
	}
	close(q.wake)
	q.wake = make(chan struct{})
}

func (q *bqueue) Push(_ context.Context, name string, payload []byte) error {
	db, _, err := q.handle()
	if err != nil {
		return err
	}

	tx := func(tx *bbolt.Tx) error {
		pending, err := tx.CreateBucketIfNotExists([]byte(backend.PendingKey(name)))
		if err != nil {
			return fmt.Errorf("failed to create pending bucket: %w", err)
		}

		seq, err := pending.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		if err := pending.Put(seqKey(seq), payload); err != nil {
			return fmt.Errorf("failed to put payload: %w", err)
		}
		return nil
	}

	if err := db.Update(tx); err != nil {
		q.logger.
			With("err", err).
			With("queue", name).
			With("met", "bqueue.Push").
			Error("failed to push payload")
		return fmt.Errorf("failed to update database messages: %w", err)
	}

	q.notify()
	return nil
}

func (q *bqueue) pop(db *bbolt.DB, name string) (payload []byte, err error) {
	tx := func(tx *bbolt.Tx) error {
		pending := tx.Bucket([]byte(backend.PendingKey(name)))
		if pending == nil {
			return nil
		}

		k, v := pending.Cursor().First()
		if k == nil {
			return nil
		}

		// v is only valid for the life of the transaction.
		payload = make([]byte, len(v))
		copy(payload, v)

		if err := pending.Delete(k); err != nil {
			payload = nil
			return fmt.Errorf("failed to delete payload: %w", err)
		}
		return nil
	}

	if err := db.Update(tx); err != nil {
		q.logger.
			With("err", err).
			With("queue", name).
			With("met", "bqueue.pop").
			Error("failed to pop payload")
		return nil, fmt.Errorf("failed to update database messages: %w", err)
	}
	return payload, nil
}

func (q *bqueue) PopBlocking(ctx context.Context, name string, timeout time.Duration) ([]byte, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.opts.MinPoll
	b.MaxInterval = q.opts.MaxPoll
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		db, wake, err := q.handle()
		if err != nil {
			return nil, err
		}

		payload, err := q.pop(db, name)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			return payload, nil
		}

		poll := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			poll.Stop()
			return nil, ctx.Err()
		case <-deadline:
			poll.Stop()
			return nil, backend.ErrEmpty
		case <-wake:
			poll.Stop()
			b.Reset()
		case <-poll.C:
		}
	}
}

func (q *bqueue) Len(_ context.Context, name string) (int64, error) {
	db, _, err := q.handle()
	if err != nil {
		return 0, err
	}

	var n int64
	tx := func(tx *bbolt.Tx) error {
		pending := tx.Bucket([]byte(backend.PendingKey(name)))
		if pending == nil {
			return nil
		}
		n = int64(pending.Stats().KeyN)
		return nil
	}

	if err := db.View(tx); err != nil {
		return 0, fmt.Errorf("failed to view database messages: %w", err)
	}
	return n, nil
}

func (q *bqueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.db == nil {
		return nil
	}

	if err := q.db.Close(); err != nil {
		return err
	}

	q.db = nil
	close(q.wake)
	return nil
}

func seqKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), seq)
}
