package taskx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mohans/taskx/backend"
	"github.com/mohans/taskx/codec"
)

const localPrefix = "local:"

// storeRetryDelay is how long Run pauses after the queue store failed.
var storeRetryDelay = 500 * time.Millisecond

// TaskQueue produces and consumes work items on one named queue.
//
// Many TaskQueues, in one process or many, may share a queue name; each
// item is delivered to exactly one of them. A single TaskQueue runs one
// ExecuteNext at a time.
type TaskQueue struct {
	adapter  backend.Adapter
	registry *Registry
	opts     *Options
	exec     *executor
	logger   *slog.Logger
}

func New(adapter backend.Adapter, registry *Registry, opts *Options) *TaskQueue {
	o := buildOptions(opts)
	if registry == nil {
		registry = NewRegistry()
	}
	logger := o.Logger.With("queue", o.Queue)
	return &TaskQueue{
		adapter:  adapter,
		registry: registry,
		opts:     o,
		logger:   logger,
		exec: &executor{
			registry: registry,
			codec:    o.Codec,
			logger:   o.Logger,
			store:    o.Store,
			metrics:  o.Metrics,
		},
	}
}

func (q *TaskQueue) Name() string {
	return q.opts.Queue
}

func (q *TaskQueue) Registry() *Registry {
	return q.registry
}

// Enqueue defers fn. The closure lives in this process's registry only, so
// the item can be executed solely by a TaskQueue sharing that registry. The
// key is dropped from that registry when the item runs there. If a consumer
// with another registry pops the item instead, it reports OutcomeNotFound and
// the key stays behind; callers mixing registries on one queue should
// Deregister item.CallableKey themselves.
func (q *TaskQueue) Enqueue(ctx context.Context, fn func() error) (*WorkItem, error) {
	if fn == nil {
		return nil, errors.New("nil function")
	}
	key := localPrefix + uuid.NewString()
	if err := q.registry.Register(key, fn); err != nil {
		return nil, err
	}
	item := newItem(q.opts.Queue, key, nil, true)
	if err := q.push(ctx, item); err != nil {
		q.registry.Deregister(key)
		return nil, err
	}
	return item, nil
}

// EnqueueFunc is Enqueue for a closure that cannot fail.
func (q *TaskQueue) EnqueueFunc(ctx context.Context, fn func()) (*WorkItem, error) {
	if fn == nil {
		return nil, errors.New("nil function")
	}
	return q.Enqueue(ctx, func() error {
		fn()
		return nil
	})
}

// EnqueueCall defers a call of the callable registered under key. Every
// argument is encoded first; if any is unsupported nothing is pushed.
func (q *TaskQueue) EnqueueCall(ctx context.Context, key string, args ...any) (*WorkItem, error) {
	item, err := buildItem(q.opts.Codec, q.opts.Queue, key, args)
	if err != nil {
		q.opts.Metrics.IncEnqueueErrors(ctx, q.opts.Queue)
		return nil, err
	}
	if err := q.push(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// EnqueueValues pushes arguments that are already encoded, after checking
// that each one decodes.
func (q *TaskQueue) EnqueueValues(ctx context.Context, key string, args []codec.Value) (*WorkItem, error) {
	if key == "" {
		return nil, fmt.Errorf("callable key is required")
	}
	if _, err := q.opts.Codec.DecodeAll(args); err != nil {
		q.opts.Metrics.IncEnqueueErrors(ctx, q.opts.Queue)
		return nil, err
	}
	item := newItem(q.opts.Queue, key, args, false)
	if err := q.push(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (q *TaskQueue) push(ctx context.Context, item *WorkItem) error {
	payload, err := EncodeItem(item)
	if err != nil {
		q.opts.Metrics.IncEnqueueErrors(ctx, q.opts.Queue)
		return err
	}

	store := q.opts.Store
	if store != nil {
		args, _ := json.Marshal(item.Arguments)
		rec := TaskRecord{
			ID:        item.ID,
			Callable:  item.CallableKey,
			Queue:     item.Queue,
			ArgsJSON:  string(args),
			Status:    StatusCreated,
			CreatedAt: item.EnqueuedAt,
		}
		if err := store.InsertCreated(ctx, rec); err != nil {
			q.opts.Metrics.IncEnqueueErrors(ctx, q.opts.Queue)
			return fmt.Errorf("record work item: %w", err)
		}
	}

	if err := q.adapter.Push(ctx, q.opts.Queue, payload); err != nil {
		q.opts.Metrics.IncEnqueueErrors(ctx, q.opts.Queue)
		if store != nil {
			if serr := store.MarkFailed(context.WithoutCancel(ctx), item.ID, err.Error(), time.Now().UTC()); serr != nil {
				q.logger.With("err", serr).With("item", item.ID).With("met", "TaskQueue.push").Warn("record push failure")
			}
		}
		return fmt.Errorf("push work item: %w", err)
	}

	if store != nil {
		if err := store.MarkEnqueued(context.WithoutCancel(ctx), item.ID, item.Queue, time.Now().UTC()); err != nil {
			q.logger.With("err", err).With("item", item.ID).With("met", "TaskQueue.push").Warn("mark enqueued")
		}
	}
	q.opts.Metrics.IncEnqueued(ctx, q.opts.Queue)
	q.logger.With("item", item.ID).With("callable", item.CallableKey).Debug("item enqueued")
	return nil
}

// ExecuteNext pops one item, waiting up to WaitTimeout, and runs it.
//
// The returned error is reserved for the queue itself: ctx ending the wait,
// or the store failing. Items that cannot be decoded, resolved or run are
// reported through the Outcome and consumed. Once popped, an item runs to
// completion even if ctx is canceled meanwhile.
func (q *TaskQueue) ExecuteNext(ctx context.Context) (Outcome, error) {
	payload, err := q.adapter.PopBlocking(ctx, q.opts.Queue, q.opts.WaitTimeout)
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrEmpty):
		return Outcome{Kind: OutcomeEmpty}, nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return Outcome{Kind: OutcomeCanceled}, err
	default:
		return Outcome{Kind: OutcomeNone}, fmt.Errorf("pop work item: %w", err)
	}
	return q.exec.run(ctx, q.opts.Queue, payload), nil
}

// Run executes items until ctx is done. Failed items are logged and
// skipped; store errors pause the loop briefly.
func (q *TaskQueue) Run(ctx context.Context) error {
	q.logger.Info("consumer started")
	defer q.logger.Info("consumer stopped")

	for {
		_, err := q.ExecuteNext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			continue
		}
		if errors.Is(err, backend.ErrClosed) {
			return err
		}
		q.logger.With("err", err).With("met", "TaskQueue.Run").Error("execute next")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(storeRetryDelay):
		}
	}
}

// Len returns the number of items waiting in the queue.
func (q *TaskQueue) Len(ctx context.Context) (int64, error) {
	return q.adapter.Len(ctx, q.opts.Queue)
}
