// Package backendtest holds the behaviour every backend.Adapter must show,
// as a reusable test suite.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohans/taskx/backend"
)

// Factory returns a fresh, empty adapter. The suite closes it.
type Factory func(t *testing.T) backend.Adapter

// Run exercises the adapter contract. minWait is the shortest wait the
// store can honour, used to size timeouts.
func Run(t *testing.T, newAdapter Factory, minWait time.Duration) {
	t.Run("push then pop in order", func(t *testing.T) {
		a := newAdapter(t)
		defer a.Close()
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			require.NoError(t, a.Push(ctx, "fifo", []byte(fmt.Sprint(i))))
		}

		n, err := a.Len(ctx, "fifo")
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		for i := 0; i < 3; i++ {
			got, err := a.PopBlocking(ctx, "fifo", minWait)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprint(i), string(got))
		}

		n, err = a.Len(ctx, "fifo")
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)
	})

	t.Run("queues are independent", func(t *testing.T) {
		a := newAdapter(t)
		defer a.Close()
		ctx := context.Background()

		require.NoError(t, a.Push(ctx, "a", []byte("for-a")))

		_, err := a.PopBlocking(ctx, "b", minWait)
		assert.ErrorIs(t, err, backend.ErrEmpty)

		got, err := a.PopBlocking(ctx, "a", minWait)
		require.NoError(t, err)
		assert.Equal(t, "for-a", string(got))
	})

	t.Run("empty queue times out", func(t *testing.T) {
		a := newAdapter(t)
		defer a.Close()

		start := time.Now()
		_, err := a.PopBlocking(context.Background(), "empty", minWait)
		assert.ErrorIs(t, err, backend.ErrEmpty)
		assert.GreaterOrEqual(t, time.Since(start), minWait)
	})

	t.Run("cancel stops the wait without popping", func(t *testing.T) {
		a := newAdapter(t)
		defer a.Close()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := a.PopBlocking(ctx, "cancel", 0)
			done <- err
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(minWait + 3*time.Second):
			t.Fatal("PopBlocking did not return after cancel")
		}

		require.NoError(t, a.Push(context.Background(), "cancel", []byte("still-here")))
		n, err := a.Len(context.Background(), "cancel")
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("waiter wakes on push", func(t *testing.T) {
		a := newAdapter(t)
		defer a.Close()
		ctx := context.Background()

		got := make(chan []byte, 1)
		go func() {
			p, err := a.PopBlocking(ctx, "wake", 10*time.Second)
			if err != nil {
				got <- nil
				return
			}
			got <- p
		}()

		time.Sleep(50 * time.Millisecond)
		require.NoError(t, a.Push(ctx, "wake", []byte("hello")))

		select {
		case p := <-got:
			assert.Equal(t, "hello", string(p))
		case <-time.After(5 * time.Second):
			t.Fatal("waiter did not receive pushed payload")
		}
	})

	t.Run("concurrent pops deliver once", func(t *testing.T) {
		a := newAdapter(t)
		defer a.Close()
		ctx := context.Background()

		const items, consumers = 200, 8
		for i := 0; i < items; i++ {
			require.NoError(t, a.Push(ctx, "shared", []byte(fmt.Sprint(i))))
		}

		var (
			mu   sync.Mutex
			seen = make(map[string]int, items)
			wg   sync.WaitGroup
		)
		for c := 0; c < consumers; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					p, err := a.PopBlocking(ctx, "shared", minWait)
					if errors.Is(err, backend.ErrEmpty) {
						return
					}
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					seen[string(p)]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Len(t, seen, items)
		for k, n := range seen {
			assert.Equal(t, 1, n, "payload %s delivered %d times", k, n)
		}
	})

	t.Run("closed adapter refuses work", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.Close())

		err := a.Push(context.Background(), "closed", []byte("x"))
		assert.Error(t, err)
	})
}
