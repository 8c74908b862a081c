package infrastructure

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"salespulse/internal/config"
)

func TestNewOTelConfig(t *testing.T) {
	tests := []struct {
		name        string
		telemetry   config.TelemetryConfig
		wantTracing bool
		wantMetrics bool
	}{
		{
			name:        "defaults export prometheus only",
			telemetry:   config.Default().Telemetry,
			wantTracing: false,
			wantMetrics: true,
		},
		{
			name:        "disabled telemetry",
			telemetry:   config.TelemetryConfig{Enabled: false, TraceExporter: "stdout", MetricExporter: "prometheus"},
			wantTracing: false,
			wantMetrics: false,
		},
		{
			name:        "stdout tracing",
			telemetry:   config.TelemetryConfig{Enabled: true, TraceExporter: "STDOUT", MetricExporter: "none", SampleRatio: 1},
			wantTracing: true,
			wantMetrics: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewOTelConfig(tt.telemetry)
			assert.Equal(t, ServiceName, cfg.ServiceName)
			assert.Equal(t, config.AppVersion, cfg.ServiceVersion)
			assert.Equal(t, tt.wantTracing, cfg.EnableTracing)
			assert.Equal(t, tt.wantMetrics, cfg.EnableMetrics)
		})
	}
}

func TestOTelInitialization(t *testing.T) {
	providers, err := InitializeOTel(nil, DiscardLogger())
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.Nil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer, "no-op tracer expected when tracing is off")
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.Registry)
	assert.NotNil(t, providers.PrometheusHTTP)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestOTelInitialization_Twice(t *testing.T) {
	// each provider owns its registry, so a second init must not panic on duplicate registration
	for i := 0; i < 2; i++ {
		providers, err := InitializeOTel(DefaultOTelConfig(), DiscardLogger())
		require.NoError(t, err)
		_, err = CreateAnalysisMetrics(providers.Meter)
		require.NoError(t, err)
		require.NoError(t, providers.Shutdown(context.Background()))
	}
}

func TestOTelInitialization_UnsupportedExporter(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.MetricExporter = "statsd"

	_, err := InitializeOTel(cfg, DiscardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported metric exporter")
}

func TestPrometheusEndpoint(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), DiscardLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateAnalysisMetrics(providers.Meter)
	require.NoError(t, err)
	RecordAnalysisMetrics(context.Background(), metrics, "kpis", 10, 5*time.Millisecond, nil)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "analyses_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestRecordAnalysisMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics, err := CreateAnalysisMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	RecordAnalysisMetrics(ctx, metrics, "trend", 120, time.Millisecond, nil)
	RecordAnalysisMetrics(ctx, metrics, "stats", 30, time.Millisecond, errors.New("boom"))
	RecordCacheLookup(ctx, metrics, "trend", true)
	RecordCacheLookup(ctx, metrics, "stats", false)
	RecordCacheLookup(ctx, metrics, "stats", false)
	RecordCacheError(ctx, metrics, "set")
	RecordHTTPRequest(ctx, metrics, http.MethodPost, "/api/v1/analyze", 200, time.Millisecond)

	sums := collect(t, reader)
	assert.Equal(t, int64(2), sums["analyses_total"])
	assert.Equal(t, int64(150), sums["analysis_rows_processed_total"])
	assert.Equal(t, int64(1), sums["analysis_errors_total"])
	assert.Equal(t, int64(1), sums["result_cache_hits_total"])
	assert.Equal(t, int64(2), sums["result_cache_misses_total"])
	assert.Equal(t, int64(1), sums["result_cache_errors_total"])
	assert.Equal(t, int64(1), sums["http_requests_total"])
}

func TestRecordHelpers_NilMetrics(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		RecordAnalysisMetrics(ctx, nil, "kpis", 1, time.Second, nil)
		RecordCacheLookup(ctx, nil, "kpis", true)
		RecordCacheError(ctx, nil, "get")
		RecordHTTPRequest(ctx, nil, http.MethodGet, "/", 200, time.Second)
	})
}

func TestSpanOperations(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "analyze")
	AddSpanEvent(ctx, "validated", map[string]interface{}{"rows": 12, "valid": true})
	SetSpanAttributes(ctx, map[string]interface{}{"fingerprint": "abc", "ratio": 0.5, "custom": time.Second})
	RecordError(ctx, errors.New("aggregation failed"))

	assert.NotEmpty(t, TraceIDFromContext(ctx))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	names := make([]string, 0)
	for _, e := range spans[0].Events() {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "validated")
	assert.Contains(t, names, "exception")
	assert.Len(t, spans[0].Attributes(), 3)
}

func TestTraceIDFromContext_NoSpan(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
}
