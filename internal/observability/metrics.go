// Package observability holds the OpenTelemetry metrics and tracing
// wiring. Both are disabled by default; a disabled collector is a
// zero-cost no-op so call sites never branch.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"codesm/internal/shared/config"
	"codesm/internal/shared/logging"
)

// MetricsCollector owns the meter and the Prometheus scrape endpoint.
type MetricsCollector struct {
	meter metric.Meter

	llmRequests     metric.Int64Counter
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmLatency      metric.Float64Histogram

	toolExecutions metric.Int64Counter
	toolDuration   metric.Float64Histogram

	sessionsActive metric.Int64UpDownCounter

	prometheusServer *http.Server
	logger           logging.Logger
}

// NewMetricsCollector builds the collector. A disabled config returns an
// empty collector whose record methods do nothing.
func NewMetricsCollector(cfg config.MetricsConfig, logger logging.Logger) (*MetricsCollector, error) {
	logger = logging.OrNop(logger)
	if !cfg.Enabled {
		return &MetricsCollector{logger: logger}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("codesm")

	c := &MetricsCollector{meter: meter, logger: logger}

	if c.llmRequests, err = meter.Int64Counter(
		"codesm.llm.requests.total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if c.llmTokensInput, err = meter.Int64Counter(
		"codesm.llm.tokens.input",
		metric.WithDescription("Total input tokens sent to the LLM"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, err
	}
	if c.llmTokensOutput, err = meter.Int64Counter(
		"codesm.llm.tokens.output",
		metric.WithDescription("Total output tokens from the LLM"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, err
	}
	if c.llmLatency, err = meter.Float64Histogram(
		"codesm.llm.latency",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if c.toolExecutions, err = meter.Int64Counter(
		"codesm.tool.executions.total",
		metric.WithDescription("Total number of tool executions"),
		metric.WithUnit("{execution}"),
	); err != nil {
		return nil, err
	}
	if c.toolDuration, err = meter.Float64Histogram(
		"codesm.tool.duration",
		metric.WithDescription("Tool execution duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if c.sessionsActive, err = meter.Int64UpDownCounter(
		"codesm.sessions.active",
		metric.WithDescription("Number of active sessions"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, err
	}

	if cfg.Port > 0 {
		c.startPrometheusServer(cfg.Port)
	}
	return c, nil
}

func (m *MetricsCollector) startPrometheusServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	m.prometheusServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		m.logger.Info("metrics: prometheus endpoint listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics: prometheus server: %v", err)
		}
	}()
}

// Shutdown stops the scrape endpoint.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m.prometheusServer != nil {
		return m.prometheusServer.Shutdown(ctx)
	}
	return nil
}

// RecordLLMRequest records one provider turn.
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration, inputTokens, outputTokens int) {
	if m.llmRequests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("status", status),
	}
	m.llmRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmTokensInput.Add(ctx, int64(inputTokens), metric.WithAttributes(attribute.String("model", model)))
	m.llmTokensOutput.Add(ctx, int64(outputTokens), metric.WithAttributes(attribute.String("model", model)))
	m.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolExecution records one tool run.
func (m *MetricsCollector) RecordToolExecution(ctx context.Context, toolName, status string, duration time.Duration) {
	if m.toolExecutions == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", toolName),
		attribute.String("status", status),
	}
	m.toolExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("tool_name", toolName)))
}

// IncrementActiveSessions bumps the live-session gauge.
func (m *MetricsCollector) IncrementActiveSessions(ctx context.Context) {
	if m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Add(ctx, 1)
}

// DecrementActiveSessions drops the live-session gauge.
func (m *MetricsCollector) DecrementActiveSessions(ctx context.Context) {
	if m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Add(ctx, -1)
}
