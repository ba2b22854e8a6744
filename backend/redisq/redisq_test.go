package redisq_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohans/taskx/backend"
	"github.com/mohans/taskx/backend/backendtest"
	"github.com/mohans/taskx/backend/redisq"
)

func startMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestRedisQueue(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Adapter {
		s := startMiniRedis(t)
		q, err := redisq.New(context.Background(), &redisq.Options{Addr: s.Addr()})
		require.NoError(t, err)
		return q
	}, time.Second)
}

func TestRedisQueueLayout(t *testing.T) {
	s := startMiniRedis(t)
	ctx := context.Background()

	q, err := redisq.New(ctx, &redisq.Options{Addr: s.Addr()})
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Push(ctx, "emails", []byte("a")))
	require.NoError(t, q.Push(ctx, "emails", []byte("b")))

	list, err := s.List(backend.PendingKey("emails"))
	require.NoError(t, err)
	// LPUSH puts the newest at the head; BRPOP takes from the tail.
	assert.Equal(t, []string{"b", "a"}, list)
}

func TestRedisQueueUnreachable(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	addr := s.Addr()
	s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = redisq.New(ctx, &redisq.Options{Addr: addr})
	assert.Error(t, err)
}

func TestRedisQueueSharedAcrossClients(t *testing.T) {
	s := startMiniRedis(t)
	ctx := context.Background()

	producer, err := redisq.New(ctx, &redisq.Options{Addr: s.Addr()})
	require.NoError(t, err)
	defer producer.Close()

	consumer, err := redisq.New(ctx, &redisq.Options{Addr: s.Addr()})
	require.NoError(t, err)
	defer consumer.Close()

	require.NoError(t, producer.Push(ctx, "shared", []byte("x")))

	got, err := consumer.PopBlocking(ctx, "shared", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))

	_, err = producer.PopBlocking(ctx, "shared", time.Second)
	assert.ErrorIs(t, err, backend.ErrEmpty)
}
