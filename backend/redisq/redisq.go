// Package redisq implements backend.Adapter on a Redis list.
//
// Producers LPUSH onto taskx:<queue>:pending and consumers BRPOP from it.
// BRPOP removes the element inside Redis, so concurrent consumers in any
// number of processes never receive the same payload.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohans/taskx/backend"
)

// Redis rejects blocking timeouts under a second, so long waits are split
// into slices of this size and ctx is checked between them.
const popSlice = time.Second

type Options struct {
	Logger *slog.Logger

	// Client is used as-is when set; Addr/DB/Password are ignored.
	Client   redis.UniversalClient
	Addr     string
	Password string
	DB       int
}

func buildOptions(opts *Options) *Options {
	def := &Options{
		Logger: slog.Default(),
		Addr:   "localhost:6379",
	}
	if opts == nil {
		return def
	}
	if opts.Logger != nil {
		def.Logger = opts.Logger
	}
	if opts.Client != nil {
		def.Client = opts.Client
	}
	if len(opts.Addr) > 0 {
		def.Addr = opts.Addr
	}
	def.Password = opts.Password
	def.DB = opts.DB
	return def
}

type rqueue struct {
	logger *slog.Logger
	client redis.UniversalClient
	owned  bool
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, o *Options) (backend.Adapter, error) {
	opts := buildOptions(o)

	q := &rqueue{
		logger: opts.Logger,
		client: opts.Client,
	}
	if q.client == nil {
		q.client = redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
		q.owned = true
	}

	if err := q.client.Ping(ctx).Err(); err != nil {
		q.logger.
			With("err", err).
			With("addr", opts.Addr).
			Error("failed to reach redis")
		if q.owned {
			_ = q.client.Close()
		}
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	return q, nil
}

func (q *rqueue) Push(ctx context.Context, name string, payload []byte) error {
	if err := q.client.LPush(ctx, backend.PendingKey(name), payload).Err(); err != nil {
		q.logger.
			With("err", err).
			With("queue", name).
			With("met", "rqueue.Push").
			Error("failed to push payload")
		return fmt.Errorf("failed to push payload: %w", err)
	}
	return nil
}

func (q *rqueue) PopBlocking(ctx context.Context, name string, timeout time.Duration) ([]byte, error) {
	key := backend.PendingKey(name)

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, backend.ErrEmpty
		}

		// The pop itself must not be abandoned half way: Redis may already
		// have removed the element when a cancelled read gives up on the
		// reply. Cancellation is honoured between slices instead.
		res, err := q.client.BRPop(context.WithoutCancel(ctx), popSlice, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			q.logger.
				With("err", err).
				With("queue", name).
				With("met", "rqueue.PopBlocking").
				Error("failed to pop payload")
			return nil, fmt.Errorf("failed to pop payload: %w", err)
		}

		// BRPOP replies with [key, value].
		if len(res) != 2 {
			return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
		}
		return []byte(res[1]), nil
	}
}

func (q *rqueue) Len(ctx context.Context, name string) (int64, error) {
	n, err := q.client.LLen(ctx, backend.PendingKey(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

func (q *rqueue) Close() error {
	if !q.owned {
		return nil
	}
	return q.client.Close()
}
