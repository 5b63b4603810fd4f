// Package telemetry wires OpenTelemetry traces, metrics and logs for the
// reconciliation service. Every provider is a no-op until telemetry is enabled.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

const (
	serviceVersion = "1.0.0"
	// flushTimeout bounds the final export of each provider on shutdown
	flushTimeout = 10 * time.Second
)

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown flushes p within flushTimeout; signal names the provider in errors
func shutdown(ctx context.Context, p shutdowner, signal string, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		logger.Error("Telemetry flush failed", zap.String("signal", signal), zap.Error(err))
		return fmt.Errorf("shutdown %s provider: %w", signal, err)
	}
	logger.Debug("Telemetry provider stopped", zap.String("signal", signal))
	return nil
}

func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}
	return res, nil
}
