// Package server exposes a small HTTP API for producers that cannot link
// the taskx package: submit pre-encoded work items, read queue depth and
// read item lifecycle records.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	httpin_integ "github.com/ggicci/httpin/integration"
	"github.com/go-chi/chi/v5"

	"github.com/mohans/taskx"
	"github.com/mohans/taskx/backend"
	"github.com/mohans/taskx/codec"
)

type Options struct {
	Addr    string
	Logger  *slog.Logger
	Codec   *codec.Codec
	Store   taskx.Store
	Metrics taskx.Metrics
}

type runtime struct {
	logger  *slog.Logger
	adapter backend.Adapter
	opts    *Options
}

// queue returns a producer for name. TaskQueues are stateless apart from
// their options, so one is built per request.
func (rt *runtime) queue(name string) *taskx.TaskQueue {
	return taskx.New(rt.adapter, nil, &taskx.Options{
		Queue:   name,
		Codec:   rt.opts.Codec,
		Logger:  rt.logger,
		Store:   rt.opts.Store,
		Metrics: rt.opts.Metrics,
	})
}

type Server struct {
	opts    *Options
	logger  *slog.Logger
	sm      chi.Router
	hs      *http.Server
	runtime *runtime
}

func NewServer(opts *Options, adapter backend.Adapter) *Server {
	o := defaultOpts(opts)

	s := &Server{
		logger: o.Logger,
		opts:   o,
		sm:     chi.NewRouter(),
		runtime: &runtime{
			logger:  o.Logger,
			adapter: adapter,
			opts:    o,
		},
	}

	s.registerV1()

	s.hs = &http.Server{
		Addr:              o.Addr,
		Handler:           s.sm,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func defaultOpts(opts *Options) *Options {
	o := &Options{
		Addr:   ":8080",
		Logger: slog.Default(),
		Codec:  codec.Default,
	}
	if opts == nil {
		return o
	}

	if len(opts.Addr) > 0 {
		o.Addr = opts.Addr
	}
	if opts.Logger != nil {
		o.Logger = opts.Logger
	}
	if opts.Codec != nil {
		o.Codec = opts.Codec
	}
	o.Store = opts.Store
	o.Metrics = opts.Metrics

	return o
}

func init() {
	httpin_integ.UseGochiURLParam("path", chi.URLParam)
}

func (s *Server) registerV1() {
	submitItem(s.sm, s.runtime)
	getQueue(s.sm, s.runtime)
	getItem(s.sm, s.runtime)
}

// Handler returns the router, for tests and for mounting elsewhere.
func (s *Server) Handler() http.Handler {
	return s.sm
}

func (s *Server) Run() error {
	go func() {
		s.logger.
			With("addr", s.opts.Addr).
			Info("server is running")

		err := s.hs.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			s.logger.
				With("err", err).
				Error("failed to run server")
			return
		}
	}()

	return nil
}

func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("server is closing")
	return s.hs.Shutdown(ctx)
}
