// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

// Package telemetry installs the OpenTelemetry providers used by the command line client.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ExporterType selects where telemetry is written.
type ExporterType string

const (
	// ExporterNone installs nothing; the global no-op providers stay in place.
	ExporterNone ExporterType = "none"
	// ExporterStdout writes spans and metrics to Writer.
	ExporterStdout ExporterType = "stdout"
	// ExporterOTLP exports to an OTLP collector over gRPC.
	ExporterOTLP ExporterType = "otlp"
)

// Config configures Setup.
type Config struct {
	Exporter    ExporterType
	Endpoint    string // collector address for ExporterOTLP, e.g. localhost:4317
	ServiceName string
	Writer      io.Writer // destination for ExporterStdout, os.Stderr when nil
}

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

// Providers are the providers installed by Setup. They are nil for ExporterNone.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

// Setup builds tracer and meter providers for cfg and installs them as the otel globals.
func Setup(ctx context.Context, cfg Config) (*Providers, ShutdownFunc, error) {
	if cfg.Exporter == "" || cfg.Exporter == ExporterNone {
		return &Providers{}, func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("resource.New: %w", err)
	}

	var (
		spanExporter   sdktrace.SpanExporter
		metricExporter sdkmetric.Exporter
		conn           *grpc.ClientConn
	)
	switch cfg.Exporter {
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		if spanExporter, err = stdouttrace.New(stdouttrace.WithWriter(w)); err != nil {
			return nil, nil, fmt.Errorf("stdouttrace.New: %w", err)
		}
		if metricExporter, err = stdoutmetric.New(stdoutmetric.WithWriter(w)); err != nil {
			return nil, nil, fmt.Errorf("stdoutmetric.New: %w", err)
		}
	case ExporterOTLP:
		if cfg.Endpoint == "" {
			return nil, nil, errors.New("otlp exporter requires an endpoint")
		}
		conn, err = grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
		}
		if spanExporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn)); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("otlptracegrpc.New: %w", err)
		}
		if metricExporter, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn)); err != nil {
			_ = spanExporter.Shutdown(ctx)
			_ = conn.Close()
			return nil, nil, fmt.Errorf("otlpmetricgrpc.New: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("unknown exporter %q", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		err := errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
		if conn != nil {
			err = errors.Join(err, conn.Close())
		}
		return err
	}
	return &Providers{TracerProvider: tp, MeterProvider: mp}, shutdown, nil
}
