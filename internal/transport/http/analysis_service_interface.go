package http

import (
	"context"

	"salespulse/internal/cache"
	"salespulse/internal/services"
	"salespulse/pkg/contracts/domain"
)

// AnalysisServiceInterface defines the interface for analysis operations
type AnalysisServiceInterface interface {
	Analyze(ctx context.Context, raw []byte, filename string, opts services.AnalyzeOptions) (*domain.AnalysisResult, error)
	Validate(ctx context.Context, raw []byte, filename string) (*domain.ValidationReport, error)
	Statistics(ctx context.Context, raw []byte, filename string, opts services.AnalyzeOptions) (*domain.StatisticsReport, error)
	Cohorts(ctx context.Context, raw []byte, filename, customerColumn string) (*domain.Table, error)
	InvalidateUpload(ctx context.Context, fingerprint string) (int, error)
	CacheStats(ctx context.Context) cache.Stats
	ClearCache(ctx context.Context) error
	DefaultOptions() services.AnalyzeOptions
}
