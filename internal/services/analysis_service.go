package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"salespulse/internal/cache"
	"salespulse/internal/config"
	"salespulse/internal/dataprocessing"
	apperrors "salespulse/internal/errors"
	"salespulse/internal/infrastructure"
	"salespulse/internal/loader"
	"salespulse/internal/statistics"
	"salespulse/internal/validation"
	"salespulse/pkg/contracts/domain"
)

// TracerName identifies spans emitted by the analysis pipeline
const TracerName = "salespulse.analysis"

// dateColumn is the sales column used for trends
const dateColumn = "date"

// AnalyzeOptions tunes a single Analyze call
type AnalyzeOptions struct {
	// UseCache enables lookups and writes against the result cache
	UseCache bool
	// TopN overrides the configured number of top products
	TopN int
	// TTL overrides the cache default for entries written by this call
	TTL time.Duration
}

// AnalysisService runs the sales pipeline: load, validate, clean, then each
// sub-analysis through the result cache
type AnalysisService struct {
	loader     *loader.Loader
	validator  *validation.Validator
	cleaner    *dataprocessing.Cleaner
	aggregator *dataprocessing.Aggregator
	engine     *statistics.Engine
	cache      *cache.ResultCache

	cleanOpts dataprocessing.CleanOptions
	analysis  config.AnalysisConfig
	trendFreq dataprocessing.Frequency
	metrics   *infrastructure.AnalysisMetrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewAnalysisService wires the pipeline components from configuration.
// A nil resultCache behaves as a disabled cache.
func NewAnalysisService(cfg *config.Config, resultCache *cache.ResultCache, metrics *infrastructure.AnalysisMetrics, logger *slog.Logger) (*AnalysisService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cleanOpts, err := dataprocessing.CleanOptionsFromConfig(cfg.Cleaning)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid cleaning configuration", err)
	}
	freq, err := dataprocessing.ParseFrequency(cfg.Analysis.TrendPeriod)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid trend period", err)
	}
	if resultCache == nil {
		resultCache = cache.New(nil, cache.Options{}, logger)
	}

	svc := &AnalysisService{
		loader:     loader.New(logger, cfg.Server.MaxUploadBytes, loader.Options{}),
		validator:  validation.NewValidator(cfg.Validation, logger),
		cleaner:    dataprocessing.NewCleaner(logger),
		aggregator: dataprocessing.NewAggregator(logger),
		engine:     statistics.NewEngine(logger),
		cache:      resultCache,
		cleanOpts:  cleanOpts,
		analysis:   cfg.Analysis,
		trendFreq:  freq,
		metrics:    metrics,
		tracer:     otel.Tracer(TracerName),
		logger:     infrastructure.WithComponent(logger, "analysis_service"),
	}

	svc.logger.Info("AnalysisService initialized",
		slog.Bool("cache_enabled", resultCache.Enabled()),
		slog.Int("top_n", cfg.Analysis.TopN),
		slog.String("trend_period", freq.String()))
	return svc, nil
}

// DefaultOptions returns cache-enabled options using the configured top N
func (s *AnalysisService) DefaultOptions() AnalyzeOptions {
	return AnalyzeOptions{UseCache: true, TopN: s.analysis.TopN}
}

// Analyze runs the full pipeline over an uploaded file
func (s *AnalysisService) Analyze(ctx context.Context, raw []byte, filename string, opts AnalyzeOptions) (result *domain.AnalysisResult, err error) {
	start := time.Now()
	if opts.TopN <= 0 {
		opts.TopN = s.analysis.TopN
	}
	fingerprint := cache.Fingerprint(raw)

	ctx, span := s.tracer.Start(ctx, "analysis.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("analysis.fingerprint", fingerprint),
			attribute.String("analysis.filename", filename),
			attribute.Bool("analysis.use_cache", opts.UseCache),
			attribute.Int("analysis.top_n", opts.TopN),
		),
	)
	defer span.End()

	rows := 0
	defer func() {
		infrastructure.RecordAnalysisMetrics(ctx, s.metrics, string(domain.KindFull), rows, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetStatus(codes.Ok, "analysis completed")
	}()

	logger := s.logger.With(slog.String("fingerprint", fingerprint))

	if opts.UseCache && !s.cacheReady(ctx, logger) {
		opts.UseCache = false
		span.AddEvent("analysis.cache_unavailable")
	}

	// The full result does not record top N, so it is only shared at the configured size
	cacheFull := opts.UseCache && opts.TopN == s.analysis.TopN
	fullKey := cache.Key(fingerprint, domain.KindFull)
	if cacheFull {
		var cached domain.AnalysisResult
		if s.cache.Get(ctx, fullKey, &cached) {
			cached.FromCache = true
			if cached.Cleaning != nil {
				rows = cached.Cleaning.RowsAfter
			}
			span.AddEvent("analysis.cache_hit")
			logger.Info("analysis served from cache", slog.String("filename", filename))
			return &cached, nil
		}
	}

	table, err := s.loader.Load(raw, filename)
	if err != nil {
		return nil, err
	}
	rows = table.NumRows()

	report := s.validator.ValidateSales(table)
	if !report.IsValid {
		s.recordValidationFailure(ctx)
		logger.Warn("dataset failed validation",
			slog.Int("errors", len(report.Errors)),
			slog.Int("warnings", len(report.Warnings)))
		return nil, invalidDataset(report)
	}

	cleaned, summary, err := s.clean(table)
	if err != nil {
		return nil, err
	}
	span.AddEvent("analysis.cleaned", trace.WithAttributes(
		attribute.Int("rows_before", summary.RowsBefore),
		attribute.Int("rows_after", summary.RowsAfter),
	))

	result = &domain.AnalysisResult{
		Fingerprint: fingerprint,
		Filename:    filename,
		GeneratedAt: time.Now().UTC(),
		Validation:  report,
		Cleaning:    summary,
	}

	run := subAnalysis{svc: s, ctx: ctx, fingerprint: fingerprint, opts: opts, result: result, logger: logger}

	kpis, ok := runKind(run, domain.KindKPIs, true, func() (domain.KPIs, error) {
		return s.aggregator.CalculateKPIs(cleaned), nil
	})
	if ok {
		result.KPIs = &kpis
	}
	result.ByCategory = tableKind(run, domain.KindByCategory, true, func() (*domain.Table, error) {
		return s.aggregator.SalesByCategory(cleaned)
	})
	result.ByCity = tableKind(run, domain.KindByCity, true, func() (*domain.Table, error) {
		return s.aggregator.SalesByCity(cleaned)
	})
	result.BySource = tableKind(run, domain.KindBySource, true, func() (*domain.Table, error) {
		return s.aggregator.SalesBySource(cleaned)
	})
	result.TopProducts = tableKind(run, domain.KindTopProducts, cacheFull, func() (*domain.Table, error) {
		return s.aggregator.TopProducts(cleaned, opts.TopN, dataprocessing.RankByRevenue)
	})
	result.Trend = tableKind(run, domain.KindTrend, true, func() (*domain.Table, error) {
		return s.aggregator.TrendAnalysis(cleaned, dateColumn, s.trendFreq)
	})
	stats, ok := runKind(run, domain.KindStats, true, func() (*domain.StatisticsReport, error) {
		return s.engine.GenerateReport(cleaned), nil
	})
	if ok {
		result.Statistics = stats
	}

	if cacheFull {
		s.cache.Set(ctx, fullKey, result, opts.TTL)
	}

	logger.Info("analysis completed",
		slog.String("filename", filename),
		slog.Int("rows", summary.RowsAfter),
		slog.Int("warnings", len(result.Warnings)),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}

// clean runs the configured cleaning pass and parses the date column
func (s *AnalysisService) clean(table *domain.Table) (*domain.Table, *domain.CleaningSummary, error) {
	cleaned, summary, err := s.cleaner.CleanWithSummary(table, s.cleanOpts)
	if err != nil {
		return nil, nil, err
	}
	if cleaned.HasColumn(dateColumn) {
		cleaned = s.cleaner.ConvertDates(cleaned, []string{dateColumn}, s.analysis.DateLayout)
	}
	return cleaned, summary, nil
}

// cacheReady probes the cache once per run. When it fails the run neither
// reads nor writes cache entries.
func (s *AnalysisService) cacheReady(ctx context.Context, logger *slog.Logger) bool {
	if !s.cache.Enabled() {
		return false
	}
	if s.cache.Available(ctx) {
		return true
	}
	logger.WarnContext(ctx, "cache unavailable, computing without it")
	return false
}

// subAnalysis carries the state shared by the sub-results of one run
type subAnalysis struct {
	svc         *AnalysisService
	ctx         context.Context
	fingerprint string
	opts        AnalyzeOptions
	result      *domain.AnalysisResult
	logger      *slog.Logger
}

// runKind computes one sub-result, through the cache when allowed. A failure
// is recorded as a warning on the result and reported as not ok.
func runKind[T any](run subAnalysis, kind domain.AnalysisKind, cacheable bool, fn func() (T, error)) (T, bool) {
	var (
		value T
		hit   bool
		err   error
	)
	if run.opts.UseCache && cacheable {
		value, hit, err = cache.GetOrCompute(run.ctx, run.svc.cache, cache.Key(run.fingerprint, kind), run.opts.TTL, fn)
	} else {
		value, err = fn()
	}
	if err != nil {
		run.result.Warnings = append(run.result.Warnings, fmt.Sprintf("%s: %v", kind, err))
		run.logger.Warn("sub-analysis skipped",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
		var zero T
		return zero, false
	}
	run.logger.Debug("sub-analysis ready", slog.String("kind", string(kind)), slog.Bool("cache_hit", hit))
	return value, true
}

func tableKind(run subAnalysis, kind domain.AnalysisKind, cacheable bool, fn func() (*domain.Table, error)) *domain.Table {
	table, ok := runKind(run, kind, cacheable, fn)
	if !ok {
		return nil
	}
	return table
}

// Validate loads an upload and checks it against the sales rules
func (s *AnalysisService) Validate(ctx context.Context, raw []byte, filename string) (*domain.ValidationReport, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.validate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("analysis.filename", filename)),
	)
	defer span.End()

	table, err := s.loader.Load(raw, filename)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report := s.validator.ValidateSales(table)
	if !report.IsValid {
		s.recordValidationFailure(ctx)
	}
	span.SetAttributes(attribute.Bool("validation.is_valid", report.IsValid))
	span.SetStatus(codes.Ok, "validation completed")
	return report, nil
}

// Statistics returns the statistics report of a cleaned upload, sharing the
// cache entry written by Analyze
func (s *AnalysisService) Statistics(ctx context.Context, raw []byte, filename string, opts AnalyzeOptions) (report *domain.StatisticsReport, err error) {
	start := time.Now()
	fingerprint := cache.Fingerprint(raw)

	ctx, span := s.tracer.Start(ctx, "analysis.statistics",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("analysis.fingerprint", fingerprint)),
	)
	defer span.End()

	rows := 0
	defer func() {
		infrastructure.RecordAnalysisMetrics(ctx, s.metrics, string(domain.KindStats), rows, time.Since(start), err)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	compute := func() (*domain.StatisticsReport, error) {
		table, err := s.loader.Load(raw, filename)
		if err != nil {
			return nil, err
		}
		rows = table.NumRows()
		cleaned, _, err := s.clean(table)
		if err != nil {
			return nil, err
		}
		return s.engine.GenerateReport(cleaned), nil
	}

	if !opts.UseCache || !s.cacheReady(ctx, s.logger) {
		return compute()
	}
	report, hit, err := cache.GetOrCompute(ctx, s.cache, cache.Key(fingerprint, domain.KindStats), opts.TTL, compute)
	if err != nil {
		return nil, err
	}
	if hit {
		rows = report.Overview.Rows
	}
	span.SetAttributes(attribute.Bool("analysis.cache_hit", hit))
	return report, nil
}

// Cohorts loads and cleans an upload, then groups customers by first purchase month
func (s *AnalysisService) Cohorts(ctx context.Context, raw []byte, filename, customerColumn string) (*domain.Table, error) {
	_, span := s.tracer.Start(ctx, "analysis.cohorts", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	table, err := s.loader.Load(raw, filename)
	if err != nil {
		return nil, err
	}
	cleaned, _, err := s.clean(table)
	if err != nil {
		return nil, err
	}
	return s.aggregator.CohortAnalysis(cleaned, dateColumn, customerColumn)
}

// InvalidateUpload drops every cached analysis of one upload
func (s *AnalysisService) InvalidateUpload(ctx context.Context, fingerprint string) (int, error) {
	if !cache.ValidFingerprint(fingerprint) {
		return 0, apperrors.NewAppValidationError("fingerprint must be 32 lowercase hex characters").
			WithContext("fingerprint", fingerprint)
	}
	return s.cache.InvalidateFingerprint(ctx, fingerprint)
}

// CacheStats reports result cache counters and availability
func (s *AnalysisService) CacheStats(ctx context.Context) cache.Stats {
	return s.cache.Stats(ctx)
}

// ClearCache empties the result cache
func (s *AnalysisService) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// CacheAvailable reports whether the cache backend answers
func (s *AnalysisService) CacheAvailable(ctx context.Context) bool {
	return s.cache.Available(ctx)
}

func (s *AnalysisService) recordValidationFailure(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	s.metrics.ValidationFailures.Add(ctx, 1)
}

// invalidDataset wraps a failed report so transports can return it
func invalidDataset(report *domain.ValidationReport) error {
	return apperrors.NewAppValidationError("dataset failed validation").
		WithContext("validation_report", report).
		WithContext("errors", report.Errors)
}
