// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the tracer and meter providers for one process.
type Provider struct {
	tp       *sdktrace.TracerProvider
	mp       *metric.MeterProvider
	registry *promclient.Registry
	metrics  *Metrics
	file     io.Closer
}

// New creates a provider and installs it as the global tracer provider
// and W3C trace-context propagator, so outgoing calls carry traceparent.
func New(_ context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "apiscenario"
	}

	// Note: no schema URL, to avoid conflicts with the default resource.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := &Provider{registry: promclient.NewRegistry()}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
	}
	w := cfg.TraceWriter
	if cfg.TraceFile != "" {
		f, err := os.Create(cfg.TraceFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		p.file = f
		w = f
	}
	if w != nil {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			p.closeFile()
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		// Synchronous export keeps the file complete when a run is
		// interrupted.
		opts = append(opts, sdktrace.WithSyncer(exporter))
	}
	p.tp = sdktrace.NewTracerProvider(opts...)

	promExporter, err := prometheus.New(prometheus.WithRegisterer(p.registry))
	if err != nil {
		p.closeFile()
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	p.mp = metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(promExporter),
	)

	p.metrics, err = NewMetrics(p.mp)
	if err != nil {
		p.closeFile()
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

func newSampler(rate float64) sdktrace.Sampler {
	if rate <= 0 || rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Tracer returns a tracer for the given instrumentation scope.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Metrics returns the instruments calls and scenarios are recorded with.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Registry returns the registry metrics are collected into.
func (p *Provider) Registry() *promclient.Registry {
	return p.registry
}

// WriteMetrics writes the current metric values to path in the
// Prometheus text format, for node_exporter's textfile collector and the
// like.
func (p *Provider) WriteMetrics(path string) error {
	if err := promclient.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Shutdown flushes pending spans and releases resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	errs := []error{p.tp.Shutdown(ctx), p.mp.Shutdown(ctx)}
	if p.file != nil {
		errs = append(errs, p.file.Close())
		p.file = nil
	}
	return errors.Join(errs...)
}

func (p *Provider) closeFile() {
	if p.file != nil {
		_ = p.file.Close()
		p.file = nil
	}
}
