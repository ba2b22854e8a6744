// Package telemetry installs the process-wide OpenTelemetry meter provider
// that taskx.NewMetrics records on.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

type Config struct {
	ServiceName string
	// Exporter is one of none, stdout or otlp.
	Exporter string
	// Endpoint is the OTLP gRPC collector address.
	Endpoint string
	Interval time.Duration
	// Writer receives stdout exports; os.Stdout when nil.
	Writer io.Writer
}

// Shutdown flushes pending measurements and stops the exporter.
type Shutdown func(ctx context.Context) error

// InitMetrics builds a meter provider for cfg and sets it as the global one.
// With the none exporter measurements are discarded.
func InitMetrics(ctx context.Context, cfg Config) (metric.MeterProvider, Shutdown, error) {
	var exporter sdkmetric.Exporter
	switch cfg.Exporter {
	case "", "none":
		mp := noop.NewMeterProvider()
		otel.SetMeterProvider(mp)
		return mp, func(context.Context) error { return nil }, nil

	case "stdout":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("creating stdout exporter: %w", err)
		}
		exporter = exp

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exp, err := otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		exporter = exp

	default:
		return nil, nil, fmt.Errorf("unknown metrics exporter %q", cfg.Exporter)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.ServiceName),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return mp, mp.Shutdown, nil
}
