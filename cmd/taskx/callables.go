package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cast"

	"github.com/mohans/taskx"
)

// registerBuiltins installs the callables every taskx worker carries, so
// that the HTTP API is usable without a custom build.
func registerBuiltins(r *taskx.Registry, logger *slog.Logger) {
	r.MustRegister("taskx.echo", func(ctx context.Context, args ...any) {
		logger.With("args", cast.ToStringSlice(args)).Info("echo")
	})

	r.MustRegister("taskx.sleep", func(ctx context.Context, d any) error {
		dur, err := cast.ToDurationE(d)
		if err != nil {
			return fmt.Errorf("sleep: %w", err)
		}
		select {
		case <-time.After(dur):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	r.MustRegister("taskx.sum", func(nums ...any) error {
		var total float64
		for _, n := range nums {
			f, err := cast.ToFloat64E(n)
			if err != nil {
				return fmt.Errorf("sum: %w", err)
			}
			total += f
		}
		logger.With("total", total).Info("sum")
		return nil
	})

	r.MustRegister("taskx.fail", func(msg string) error {
		return fmt.Errorf("%s", msg)
	})
}
