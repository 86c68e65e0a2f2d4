// Package telemetry optionally exports a run's aggregated report as
// OpenTelemetry metrics. It is a pure enrichment: spec.md's console/JSON
// report remains authoritative regardless of whether telemetry is
// configured.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	otelmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"

	"chatbench/internal/config"
	"chatbench/internal/harness"
)

// RecordRun exports report's aggregates as OTel metrics when cfg carries an
// OTLP endpoint; it is a no-op otherwise. The exporter is short-lived: the
// periodic reader is flushed once via ForceFlush before shutdown, since a
// CLI run has no long-running periodic export window.
func RecordRun(ctx context.Context, cfg config.TelemetryConfig, report harness.AggregatedReport) error {
	if cfg.OTLPEndpoint == "" {
		return nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "chatbench"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return fmt.Errorf("telemetry: building resource: %w", err)
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("telemetry: building exporter: %w", err)
	}

	reader := otelmetric.NewPeriodicReader(exporter, otelmetric.WithInterval(10*time.Second))
	provider := otelmetric.NewMeterProvider(
		otelmetric.WithReader(reader),
		otelmetric.WithResource(res),
	)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	meter := provider.Meter("chatbench")

	latency, err := meter.Float64Histogram(
		"chatbench_request_seconds",
		metric.WithDescription("per-run latency summary, recorded as the describe() seven-number summary"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("telemetry: building latency histogram: %w", err)
	}
	recordSummary(ctx, latency, "e2e", report.E2E)
	recordSummary(ctx, latency, "ttft", report.TTFT)
	recordSummary(ctx, latency, "itl", report.ITL)

	tokens, err := meter.Float64Histogram(
		"chatbench_output_tokens",
		metric.WithDescription("per-run output token count summary"),
	)
	if err != nil {
		return fmt.Errorf("telemetry: building token histogram: %w", err)
	}
	recordSummary(ctx, tokens, "output_tokens", report.OutputTokens)

	counter, err := meter.Int64Counter(
		"chatbench_requests_total",
		metric.WithDescription("requests observed, by status code"),
	)
	if err != nil {
		return fmt.Errorf("telemetry: building status counter: %w", err)
	}
	for status, count := range report.StatusCodes {
		counter.Add(ctx, int64(count), metric.WithAttributes(attribute.String("status_code", status)))
	}

	return reader.ForceFlush(ctx)
}

func recordSummary(ctx context.Context, h metric.Float64Histogram, metricName string, d harness.DescribeResult) {
	for _, v := range []struct {
		stat  string
		value float64
	}{
		{"mean", d.Mean}, {"p50", d.P50}, {"p75", d.P75},
		{"p95", d.P95}, {"p99", d.P99}, {"max", d.Max}, {"min", d.Min},
	} {
		if v.value != v.value { // NaN: nothing was recorded for this dimension
			continue
		}
		h.Record(ctx, v.value, metric.WithAttributes(
			attribute.String("metric", metricName),
			attribute.String("stat", v.stat),
		))
	}
}
