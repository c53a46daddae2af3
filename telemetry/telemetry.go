//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry installs OpenTelemetry trace and meter providers that
// export over OTLP, so pipeline spans and collector metrics leave the process.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Export protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Default resource attributes.
const (
	ServiceName      = "trpc-query-go"
	ServiceNamespace = "trpc-go"
	ServiceVersion   = "v0.1.0"
)

// shutdownTimeout bounds the final flush in the cleanup function.
const shutdownTimeout = 5 * time.Second

// Option configures Start.
type Option func(*options)

type options struct {
	endpoint       string
	protocol       string
	serviceName    string
	serviceVersion string
}

// WithEndpoint sets the collector endpoint as host:port, without scheme or
// path. It takes precedence over OTEL_EXPORTER_OTLP_TRACES_ENDPOINT,
// OTEL_EXPORTER_OTLP_METRICS_ENDPOINT and OTEL_EXPORTER_OTLP_ENDPOINT.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithProtocol sets the export protocol, "grpc" (default) or "http".
func WithProtocol(protocol string) Option {
	return func(o *options) {
		if protocol != "" {
			o.protocol = protocol
		}
	}
}

// WithServiceName overrides the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithServiceVersion overrides the service.version resource attribute.
func WithServiceVersion(version string) Option {
	return func(o *options) {
		if version != "" {
			o.serviceVersion = version
		}
	}
}

// Start creates OTLP trace and meter providers and installs them as the
// global providers. The returned clean function flushes and shuts both down.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	o := &options{
		protocol:       ProtocolGRPC,
		serviceName:    ServiceName,
		serviceVersion: ServiceVersion,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.protocol != ProtocolGRPC && o.protocol != ProtocolHTTP {
		return nil, fmt.Errorf("telemetry: unsupported protocol %q", o.protocol)
	}

	res, err := buildResource(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}
	tp, err := newTracerProvider(ctx, res, o.protocol, endpoint(o, "TRACES"))
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(ctx, res, o.protocol, endpoint(o, "METRICS"))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// endpoint resolves the endpoint of one signal: the option, then the signal
// specific variable, then the generic variable, then the protocol default.
func endpoint(o *options, signal string) string {
	if o.endpoint != "" {
		return o.endpoint
	}
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_" + signal + "_ENDPOINT"); ep != "" {
		return ep
	}
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		return ep
	}
	if o.protocol == ProtocolHTTP {
		return "localhost:4318"
	}
	return "localhost:4317"
}

func newTracerProvider(
	ctx context.Context, res *resource.Resource, protocol, endpoint string,
) (*sdktrace.TracerProvider, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)
	if protocol == ProtocolHTTP {
		exp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	} else {
		exp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

func newMeterProvider(
	ctx context.Context, res *resource.Resource, protocol, endpoint string,
) (*sdkmetric.MeterProvider, error) {
	var (
		exp sdkmetric.Exporter
		err error
	)
	if protocol == ProtocolHTTP {
		exp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
	} else {
		exp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	), nil
}

func buildResource(ctx context.Context, o *options) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNamespace(ServiceNamespace),
			semconv.ServiceName(o.serviceName),
			semconv.ServiceVersion(o.serviceVersion),
		),
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
}
