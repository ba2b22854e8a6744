package taskx

import (
	"log/slog"
	"time"

	"github.com/mohans/taskx/codec"
)

const DefaultQueue = "default"

type Options struct {
	// Queue is the store-side queue name. Task queues in any process that
	// use the same name share one logical queue.
	Queue string

	Codec *codec.Codec

	// WaitTimeout bounds how long ExecuteNext waits for an item. Zero waits
	// until the context is done.
	WaitTimeout time.Duration

	Logger *slog.Logger

	// Store, when set, receives the lifecycle of every item.
	Store Store

	Metrics Metrics
}

func buildOptions(opts *Options) *Options {
	def := &Options{
		Queue:  DefaultQueue,
		Codec:  codec.Default,
		Logger: slog.Default(),
	}
	if opts == nil {
		def.Metrics = defaultMetrics()
		return def
	}
	if len(opts.Queue) > 0 {
		def.Queue = opts.Queue
	}
	if opts.Codec != nil {
		def.Codec = opts.Codec
	}
	if opts.WaitTimeout > 0 {
		def.WaitTimeout = opts.WaitTimeout
	}
	if opts.Logger != nil {
		def.Logger = opts.Logger
	}
	def.Store = opts.Store
	def.Metrics = opts.Metrics
	if def.Metrics == nil {
		def.Metrics = defaultMetrics()
	}
	return def
}
