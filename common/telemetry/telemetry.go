// Package telemetry wires the OpenTelemetry meter provider to a Prometheus
// registry so that task, interceptor and wallet metrics share one scrape target.
package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
)

// NewMeterProvider returns a meter provider that exports into registerer.
func NewMeterProvider(registerer prometheus.Registerer) (*metric.MeterProvider, error) {
	promExporter, err := otelprom.New(otelprom.WithRegisterer(registerer))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	return metric.NewMeterProvider(metric.WithReader(promExporter)), nil
}

// Setup installs a Prometheus-backed meter provider and the trace context
// propagator globally. The returned func flushes and stops the provider.
func Setup(registerer prometheus.Registerer) (func(context.Context) error, error) {
	meterProvider, err := NewMeterProvider(registerer)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return meterProvider.Shutdown, nil
}
