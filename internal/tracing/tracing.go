// Package tracing wires OpenTelemetry spans around event publishing.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName identifies scenekit in exported spans.
const DefaultServiceName = "scenekit"

// Config configures tracing.
type Config struct {
	// Enabled turns on span export. When false a no-op tracer is used.
	Enabled bool `toml:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Exporter is "stdout" or "none".
	Exporter string `toml:"exporter" yaml:"exporter" mapstructure:"exporter"`

	// SampleRate is the fraction of root spans kept. Zero means 1.0.
	SampleRate float64 `toml:"sample_rate" yaml:"sample_rate" mapstructure:"sample_rate"`

	// ServiceName overrides DefaultServiceName.
	ServiceName string `toml:"service_name" yaml:"service_name" mapstructure:"service_name"`
}

// DefaultConfig returns tracing disabled.
func DefaultConfig() Config {
	return Config{Exporter: "stdout", SampleRate: 1.0, ServiceName: DefaultServiceName}
}

// Provider owns the tracer provider.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// Option adjusts provider construction.
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
}

// WithExporter exports spans synchronously to exp, overriding cfg.Exporter.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) {
		o.exporter = exp
	}
}

// NewProvider builds a provider from cfg. Disabled tracing costs nothing.
func NewProvider(cfg Config, opts ...Option) (*Provider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer("noop")}, nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 1.0
	}
	popts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	}

	switch {
	case o.exporter != nil:
		popts = append(popts, sdktrace.WithSyncer(o.exporter))
	case cfg.Exporter == "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		popts = append(popts, sdktrace.WithBatcher(exp))
	case cfg.Exporter == "none" || cfg.Exporter == "":
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(popts...)
	return &Provider{provider: tp, tracer: tp.Tracer(name)}, nil
}

// Tracer returns the tracer. It is never nil.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool {
	return p.provider != nil
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}
