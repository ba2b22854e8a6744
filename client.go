package taskx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mohans/taskx/codec"
)

// TypeCall is the asynq task type carrying a work item.
const TypeCall = "taskx:call"

// Client enqueues work items as asynq tasks and records them in a Store.
// A Processor on the other side executes them.
type Client struct {
	client   *asynq.Client
	store    Store
	queue    string
	codec    *codec.Codec
	maxRetry int
	logger   *slog.Logger
}

type ClientOptions struct {
	Queue string
	Codec *codec.Codec
	// MaxRetry is handed to asynq. Zero keeps the at-most-once behavior of
	// TaskQueue.
	MaxRetry int
	Logger   *slog.Logger
}

func NewClient(redisOpt asynq.RedisClientOpt, store Store, opts ClientOptions) *Client {
	q := opts.Queue
	if q == "" {
		q = DefaultQueue
	}
	c := opts.Codec
	if c == nil {
		c = codec.Default
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:   asynq.NewClient(redisOpt),
		store:    store,
		queue:    q,
		codec:    c,
		maxRetry: opts.MaxRetry,
		logger:   logger,
	}
}

// EnqueueCall enqueues a call of the callable registered under key.
func (c *Client) EnqueueCall(ctx context.Context, key string, args ...any) (*WorkItem, error) {
	if c.client == nil {
		return nil, fmt.Errorf("nil asynq client")
	}
	item, err := buildItem(c.codec, c.queue, key, args)
	if err != nil {
		return nil, err
	}
	payload, err := EncodeItem(item)
	if err != nil {
		return nil, err
	}

	if c.store != nil {
		argsJSON, _ := json.Marshal(item.Arguments)
		rec := TaskRecord{
			ID:        item.ID,
			Callable:  item.CallableKey,
			Queue:     item.Queue,
			ArgsJSON:  string(argsJSON),
			Status:    StatusCreated,
			CreatedAt: item.EnqueuedAt,
		}
		if err := c.store.InsertCreated(ctx, rec); err != nil {
			return nil, fmt.Errorf("record work item: %w", err)
		}
	}

	t := asynq.NewTask(TypeCall, payload)
	info, err := c.client.EnqueueContext(ctx, t,
		asynq.Queue(c.queue),
		asynq.MaxRetry(c.maxRetry),
		asynq.TaskID(item.ID),
	)
	if err != nil {
		if c.store != nil {
			_ = c.store.MarkFailed(context.WithoutCancel(ctx), item.ID, err.Error(), time.Now().UTC())
		}
		return nil, fmt.Errorf("enqueue task: %w", err)
	}

	if c.store != nil {
		if err := c.store.MarkEnqueued(context.WithoutCancel(ctx), info.ID, info.Queue, time.Now().UTC()); err != nil {
			c.logger.With("err", err).With("item", info.ID).With("met", "Client.EnqueueCall").Warn("mark enqueued")
		}
	}
	return item, nil
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
