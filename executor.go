package taskx

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mohans/taskx/codec"
)

// executor turns a popped payload into a call. It is shared by TaskQueue
// and the asynq Processor.
type executor struct {
	registry *Registry
	codec    *codec.Codec
	logger   *slog.Logger
	store    Store
	metrics  Metrics
}

// run executes payload and records the outcome. A popped item is always
// finished here, so store writes outlive ctx.
func (e *executor) run(ctx context.Context, queue string, payload []byte) Outcome {
	l := e.logger.With("queue", queue)
	start := time.Now()
	out := e.execute(ctx, l, payload)
	out.Duration = time.Since(start)

	e.metrics.ObserveOutcome(ctx, queue, out.Kind, out.Duration)
	e.record(context.WithoutCancel(ctx), l, out)
	e.log(l, out)
	return out
}

func (e *executor) execute(ctx context.Context, l *slog.Logger, payload []byte) Outcome {
	item, err := DecodeItem(payload)
	if err != nil {
		return Outcome{Kind: OutcomeCorrupt, Err: err}
	}
	if item.Local {
		defer e.registry.Deregister(item.CallableKey)
	}

	if e.store != nil {
		if err := e.store.MarkStarted(context.WithoutCancel(ctx), item.ID, time.Now().UTC()); err != nil {
			l.With("err", err).With("item", item.ID).With("met", "executor.execute").Warn("mark started")
		}
	}

	args, err := e.codec.DecodeAll(item.Arguments)
	if err != nil {
		return Outcome{Kind: OutcomeCorrupt, Item: item, Err: err}
	}

	fn, err := e.registry.Resolve(item.CallableKey)
	if err != nil {
		return Outcome{Kind: OutcomeNotFound, Item: item, Err: err}
	}

	if err := fn.Call(ctx, args); err != nil {
		var inv *InvocationError
		if errors.As(err, &inv) {
			return Outcome{Kind: OutcomeFailed, Item: item, Err: err}
		}
		// binding failed: arity or argument type
		return Outcome{Kind: OutcomeCorrupt, Item: item, Err: err}
	}
	return Outcome{Kind: OutcomeSucceeded, Item: item}
}

func (e *executor) record(ctx context.Context, l *slog.Logger, out Outcome) {
	if e.store == nil || out.Item == nil {
		return
	}
	now := time.Now().UTC()
	var err error
	if out.Kind == OutcomeSucceeded {
		err = e.store.MarkCompleted(ctx, out.Item.ID, now)
	} else {
		err = e.store.MarkFailed(ctx, out.Item.ID, out.Err.Error(), now)
	}
	if err != nil {
		l.With("err", err).With("item", out.Item.ID).With("met", "executor.record").Warn("record outcome")
	}
}

// log reports out on l, which already carries the queue.
func (e *executor) log(l *slog.Logger, out Outcome) {
	l = l.With("outcome", out.Kind.String()).With("duration", out.Duration)
	if out.Item != nil {
		l = l.With("item", out.Item.ID).With("callable", out.Item.CallableKey)
	}
	switch out.Kind {
	case OutcomeSucceeded:
		l.Debug("item executed")
	case OutcomeFailed:
		var inv *InvocationError
		if errors.As(out.Err, &inv) && inv.Panicked {
			l = l.With("stack", string(inv.Stack))
		}
		l.With("err", out.Err).Warn("item failed")
	default:
		l.With("err", out.Err).Error("item dropped")
	}
}
