// Package telemetry installs the process-wide OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"io"
	"strings"

	"github.com/slack-lackey/maid-server/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// InitTracer exports spans to w when tracing is enabled. With tracing off it
// leaves the global no-op provider in place.
func InitTracer(cfg core.Config, w io.Writer, logger core.Logger) (ShutdownFunc, error) {
	if !cfg.Telemetry.Tracing {
		return noopShutdown, nil
	}
	options := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
	if w != nil {
		options = append(options, stdouttrace.WithWriter(w))
	}
	exporter, err := stdouttrace.New(options...)
	if err != nil {
		return nil, err
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "maid-server"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	core.LogInfo(context.Background(), logger, "tracing initialized", map[string]any{"service": serviceName})
	return tp.Shutdown, nil
}
