package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"salespulse/internal/cache"
	"salespulse/internal/config"
	apperrors "salespulse/internal/errors"
	"salespulse/internal/infrastructure"
	"salespulse/internal/shared/testutil"
	"salespulse/pkg/contracts/domain"
)

var errBackendDown = errors.New("backend down")

// brokenStore fails every operation, as an unreachable Redis would. Data
// operations are counted in calls when it is set; Ping is counted in pings.
type brokenStore struct {
	calls *atomic.Int64
	pings *atomic.Int64
}

func (s brokenStore) count(c *atomic.Int64) {
	if c != nil {
		c.Add(1)
	}
}

func (s brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	s.count(s.calls)
	return nil, false, errBackendDown
}
func (s brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	s.count(s.calls)
	return errBackendDown
}
func (s brokenStore) Delete(context.Context, string) error {
	s.count(s.calls)
	return errBackendDown
}
func (s brokenStore) DeletePrefix(context.Context, string) (int, error) {
	s.count(s.calls)
	return 0, errBackendDown
}
func (s brokenStore) Clear(context.Context) error {
	s.count(s.calls)
	return errBackendDown
}
func (s brokenStore) Ping(context.Context) error {
	s.count(s.pings)
	return errBackendDown
}
func (brokenStore) Close() error { return nil }
func (brokenStore) Name() string { return "broken" }

func newTestService(t *testing.T, store cache.Store, metrics *infrastructure.AnalysisMetrics) *AnalysisService {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	var resultCache *cache.ResultCache
	if store != nil {
		resultCache = cache.New(store, cache.Options{TTL: time.Minute, Metrics: metrics}, logger)
	}

	svc, err := NewAnalysisService(config.Default(), resultCache, metrics, logger)
	require.NoError(t, err)
	return svc
}

func TestAnalyze(t *testing.T) {
	svc := newTestService(t, cache.NewMemoryStore(100, 0), nil)

	result, err := svc.Analyze(context.Background(), testutil.DefaultSalesCSV(), "sales.csv", svc.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, cache.Fingerprint(testutil.DefaultSalesCSV()), result.Fingerprint)
	assert.Equal(t, "sales.csv", result.Filename)
	assert.False(t, result.FromCache)
	assert.Empty(t, result.Warnings)

	require.NotNil(t, result.Validation)
	assert.True(t, result.Validation.IsValid)
	require.NotNil(t, result.Cleaning)
	assert.Equal(t, 8, result.Cleaning.RowsAfter)

	require.NotNil(t, result.KPIs)
	assert.InDelta(t, 3840.0, result.KPIs.RevenueTotal, 1e-9)
	assert.Equal(t, 8, result.KPIs.TransactionCount)
	assert.Equal(t, 6, result.KPIs.UniqueProducts)

	require.NotNil(t, result.ByCategory)
	assert.Equal(t, 3, result.ByCategory.NumRows())
	require.NotNil(t, result.ByCity)
	assert.Equal(t, 3, result.ByCity.NumRows())
	require.NotNil(t, result.BySource)
	assert.Equal(t, 2, result.BySource.NumRows())
	require.NotNil(t, result.TopProducts)
	assert.Equal(t, 6, result.TopProducts.NumRows())
	require.NotNil(t, result.Trend)
	assert.Equal(t, 3, result.Trend.NumRows())
	require.NotNil(t, result.Statistics)
	assert.Equal(t, 8, result.Statistics.Overview.Rows)
}

func TestAnalyze_SecondCallServedFromCache(t *testing.T) {
	store := cache.NewMemoryStore(100, 0)
	svc := newTestService(t, store, nil)
	ctx := context.Background()
	raw := testutil.DefaultSalesCSV()

	first, err := svc.Analyze(ctx, raw, "sales.csv", svc.DefaultOptions())
	require.NoError(t, err)

	for _, kind := range []domain.AnalysisKind{domain.KindKPIs, domain.KindByCategory, domain.KindTrend, domain.KindFull} {
		_, ok := store.Entry(cache.Key(first.Fingerprint, kind))
		assert.True(t, ok, "expected %s to be cached", kind)
	}

	second, err := svc.Analyze(ctx, raw, "sales.csv", svc.DefaultOptions())
	require.NoError(t, err)

	assert.True(t, second.FromCache)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, *first.KPIs, *second.KPIs)
	assert.True(t, first.ByCategory.Equal(second.ByCategory))
	assert.True(t, first.TopProducts.Equal(second.TopProducts))
	assert.True(t, first.Trend.Equal(second.Trend))

	stats := svc.CacheStats(ctx)
	assert.Equal(t, "memory", stats.Backend)
	assert.GreaterOrEqual(t, stats.Hits, int64(1))
}

func TestAnalyze_WithoutCache(t *testing.T) {
	store := cache.NewMemoryStore(100, 0)
	svc := newTestService(t, store, nil)

	result, err := svc.Analyze(context.Background(), testutil.DefaultSalesCSV(), "sales.csv", AnalyzeOptions{UseCache: false})
	require.NoError(t, err)
	assert.False(t, result.FromCache)

	_, ok := store.Entry(cache.Key(result.Fingerprint, domain.KindFull))
	assert.False(t, ok)
	_, ok = store.Entry(cache.Key(result.Fingerprint, domain.KindKPIs))
	assert.False(t, ok)
}

func TestAnalyze_CustomTopNNotShared(t *testing.T) {
	store := cache.NewMemoryStore(100, 0)
	svc := newTestService(t, store, nil)
	ctx := context.Background()
	raw := testutil.DefaultSalesCSV()

	small, err := svc.Analyze(ctx, raw, "sales.csv", AnalyzeOptions{UseCache: true, TopN: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, small.TopProducts.NumRows())

	_, ok := store.Entry(cache.Key(small.Fingerprint, domain.KindTopProducts))
	assert.False(t, ok)
	_, ok = store.Entry(cache.Key(small.Fingerprint, domain.KindFull))
	assert.False(t, ok)
	_, ok = store.Entry(cache.Key(small.Fingerprint, domain.KindKPIs))
	assert.True(t, ok)

	full, err := svc.Analyze(ctx, raw, "sales.csv", svc.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 6, full.TopProducts.NumRows())
}

func TestAnalyze_CacheOutageMatchesUncached(t *testing.T) {
	ctx := context.Background()
	raw := testutil.DefaultSalesCSV()

	broken := newTestService(t, brokenStore{}, nil)
	plain := newTestService(t, nil, nil)

	got, err := broken.Analyze(ctx, raw, "sales.csv", broken.DefaultOptions())
	require.NoError(t, err)
	want, err := plain.Analyze(ctx, raw, "sales.csv", plain.DefaultOptions())
	require.NoError(t, err)

	assert.False(t, got.FromCache)
	assert.Equal(t, *want.KPIs, *got.KPIs)
	assert.True(t, want.ByCategory.Equal(got.ByCategory))
	assert.True(t, want.ByCity.Equal(got.ByCity))
	assert.True(t, want.BySource.Equal(got.BySource))
	assert.True(t, want.TopProducts.Equal(got.TopProducts))
	assert.True(t, want.Trend.Equal(got.Trend))
	assert.Equal(t, want.Statistics.Overview, got.Statistics.Overview)
	assert.Equal(t, want.Statistics.DescriptiveStats, got.Statistics.DescriptiveStats)

	stats := broken.CacheStats(ctx)
	assert.False(t, stats.Available)
}

func TestAnalyze_UnavailableCacheIsNotQueried(t *testing.T) {
	ctx := context.Background()
	raw := testutil.DefaultSalesCSV()
	store := brokenStore{calls: new(atomic.Int64), pings: new(atomic.Int64)}
	svc := newTestService(t, store, nil)

	result, err := svc.Analyze(ctx, raw, "sales.csv", svc.DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, result.KPIs)
	assert.Equal(t, int64(1), store.pings.Load())
	assert.Zero(t, store.calls.Load())

	report, err := svc.Statistics(ctx, raw, "sales.csv", svc.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 8, report.Overview.Rows)
	assert.Equal(t, int64(2), store.pings.Load())
	assert.Zero(t, store.calls.Load())
}

func TestAnalyze_InfinitePriceIsEncodable(t *testing.T) {
	svc := newTestService(t, cache.NewMemoryStore(100, 0), nil)
	rows := testutil.DefaultSalesRows()
	rows[0].Price = math.Inf(1)

	result, err := svc.Analyze(context.Background(), testutil.SalesCSV(rows), "sales.csv", svc.DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, result.KPIs)
	assert.False(t, math.IsInf(result.KPIs.RevenueTotal, 0))

	_, err = json.Marshal(result)
	assert.NoError(t, err)
}

func TestAnalyze_InvalidDataset(t *testing.T) {
	svc := newTestService(t, cache.NewMemoryStore(100, 0), nil)

	raw := []byte("date,product,price\n2024-01-01,Pen,2\n")
	_, err := svc.Analyze(context.Background(), raw, "sales.csv", svc.DefaultOptions())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	report, ok := appErr.Context["validation_report"].(*domain.ValidationReport)
	require.True(t, ok)
	assert.False(t, report.IsValid)
	assert.NotEmpty(t, report.Errors)
}

func TestAnalyze_LoadErrors(t *testing.T) {
	svc := newTestService(t, nil, nil)

	tests := []struct {
		name     string
		raw      []byte
		filename string
		wantType apperrors.ErrorType
	}{
		{"unsupported extension", []byte("a\n1\n"), "sales.json", apperrors.ErrTypeValidation},
		{"empty upload", nil, "sales.csv", apperrors.ErrTypeValidation},
		{"no header", []byte("\n"), "sales.csv", apperrors.ErrTypeParsing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Analyze(context.Background(), tt.raw, tt.filename, svc.DefaultOptions())
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.wantType), "got %v", err)
		})
	}
}

func TestValidate(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()

	report, err := svc.Validate(ctx, testutil.DefaultSalesCSV(), "sales.csv")
	require.NoError(t, err)
	assert.True(t, report.IsValid)
	assert.Equal(t, 8, report.Metrics.RowCount)

	report, err = svc.Validate(ctx, []byte("date,product\n2024-01-01,Pen\n"), "sales.csv")
	require.NoError(t, err)
	assert.False(t, report.IsValid)
}

func TestStatistics(t *testing.T) {
	store := cache.NewMemoryStore(100, 0)
	svc := newTestService(t, store, nil)
	ctx := context.Background()
	raw := testutil.DefaultSalesCSV()

	report, err := svc.Statistics(ctx, raw, "sales.csv", svc.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 8, report.Overview.Rows)
	assert.Contains(t, report.DescriptiveStats, "price")

	_, ok := store.Entry(cache.Key(cache.Fingerprint(raw), domain.KindStats))
	assert.True(t, ok)

	again, err := svc.Statistics(ctx, raw, "sales.csv", svc.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, report.Overview, again.Overview)
}

func TestCohorts(t *testing.T) {
	svc := newTestService(t, nil, nil)

	table, err := svc.Cohorts(context.Background(), testutil.DefaultSalesCSV(), "sales.csv", "customer_id")
	require.NoError(t, err)
	assert.True(t, table.HasColumn("cohort"))
	assert.True(t, table.HasColumn("customers"))
	assert.Equal(t, 5, table.NumRows())
}

func TestInvalidateUpload(t *testing.T) {
	store := cache.NewMemoryStore(100, 0)
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	result, err := svc.Analyze(ctx, testutil.DefaultSalesCSV(), "sales.csv", svc.DefaultOptions())
	require.NoError(t, err)

	removed, err := svc.InvalidateUpload(ctx, result.Fingerprint)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, 7)

	_, ok := store.Entry(cache.Key(result.Fingerprint, domain.KindFull))
	assert.False(t, ok)

	_, err = svc.InvalidateUpload(ctx, "not-a-fingerprint")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestClearCache(t *testing.T) {
	store := cache.NewMemoryStore(100, 0)
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	result, err := svc.Analyze(ctx, testutil.DefaultSalesCSV(), "sales.csv", svc.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, svc.ClearCache(ctx))

	_, ok := store.Entry(cache.Key(result.Fingerprint, domain.KindKPIs))
	assert.False(t, ok)

	broken := newTestService(t, brokenStore{}, nil)
	assert.True(t, apperrors.IsType(broken.ClearCache(ctx), apperrors.ErrTypeCache))
}

func TestAnalyze_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(ctx)

	metrics, err := infrastructure.CreateAnalysisMetrics(mp.Meter("test"))
	require.NoError(t, err)

	svc := newTestService(t, cache.NewMemoryStore(100, 0), metrics)
	_, err = svc.Analyze(ctx, testutil.DefaultSalesCSV(), "sales.csv", svc.DefaultOptions())
	require.NoError(t, err)
	_, err = svc.Analyze(ctx, []byte("date\n2024-01-01\n"), "bad.csv", svc.DefaultOptions())
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					found[m.Name] += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(2), found["analyses_total"])
	assert.Equal(t, int64(1), found["analysis_errors_total"])
	assert.Equal(t, int64(1), found["validation_failures_total"])
	assert.Equal(t, int64(9), found["analysis_rows_processed_total"])
	assert.Positive(t, found["result_cache_misses_total"])
}

func TestNewAnalysisService_InvalidConfig(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)

	cfg := config.Default()
	cfg.Analysis.TrendPeriod = "fortnight"
	_, err := NewAnalysisService(cfg, nil, nil, logger)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	cfg = config.Default()
	cfg.Cleaning.OutlierMethod = "dbscan"
	_, err = NewAnalysisService(cfg, nil, nil, logger)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}
