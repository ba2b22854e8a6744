package taskx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mohans/taskx/codec"
)

// Processor runs an asynq server that executes work items enqueued by
// Client, recording their lifecycle in Store.
type Processor struct {
	server *asynq.Server
	exec   *executor
	logger *slog.Logger
}

type ProcessorConfig struct {
	Concurrency int
	Queues      map[string]int
	Codec       *codec.Codec
	Logger      *slog.Logger
	Metrics     Metrics
}

func NewProcessor(redisOpt asynq.RedisClientOpt, registry *Registry, store Store, cfg ProcessorConfig) *Processor {
	con := cfg.Concurrency
	if con <= 0 {
		con = 10
	}
	qs := cfg.Queues
	if qs == nil {
		qs = map[string]int{DefaultQueue: 1}
	}
	c := cfg.Codec
	if c == nil {
		c = codec.Default
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = defaultMetrics()
	}
	if registry == nil {
		registry = NewRegistry()
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: con,
		Queues:      qs,
		Logger:      newAsynqLogger(logger),
	})
	return &Processor{
		server: server,
		logger: logger,
		exec: &executor{
			registry: registry,
			codec:    c,
			logger:   logger,
			store:    store,
			metrics:  m,
		},
	}
}

// handle executes one work item. Items that can never succeed skip asynq's
// retries.
func (p *Processor) handle(ctx context.Context, t *asynq.Task) error {
	queue, _ := asynq.GetQueueName(ctx)
	out := p.exec.run(ctx, queue, t.Payload())
	switch out.Kind {
	case OutcomeSucceeded:
		return nil
	case OutcomeCorrupt, OutcomeNotFound:
		return fmt.Errorf("%w: %w", out.Err, asynq.SkipRetry)
	default:
		return out.Err
	}
}

func (p *Processor) loggingMiddleware(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		id, _ := asynq.GetTaskID(ctx)
		err := next.ProcessTask(ctx, t)
		p.logger.With("task", id).With("type", t.Type()).With("duration", time.Since(start)).Debug("task processed")
		return err
	})
}

// Start runs the server until Shutdown. mux may carry further handlers;
// TypeCall is registered on it.
func (p *Processor) Start(mux *asynq.ServeMux) error {
	if mux == nil {
		mux = asynq.NewServeMux()
	}
	mux.HandleFunc(TypeCall, p.handle)
	mux.Use(p.loggingMiddleware)
	return p.server.Run(mux)
}

func (p *Processor) Shutdown() { p.server.Shutdown() }

// asynqLogger adapts slog to asynq.Logger.
type asynqLogger struct {
	l *slog.Logger
}

func newAsynqLogger(l *slog.Logger) *asynqLogger {
	return &asynqLogger{l: l.With("component", "asynq")}
}

func (a *asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a *asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a *asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a *asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }
func (a *asynqLogger) Fatal(args ...any) { a.l.Error(fmt.Sprint(args...)) }
