package statistics

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"

	apperrors "salespulse/internal/errors"
	"salespulse/internal/infrastructure"
	"salespulse/pkg/contracts/domain"
)

// Significance is the p-value threshold of every hypothesis test
const Significance = 0.05

// Engine computes descriptive and inferential statistics over tables.
// It holds no state besides its logger and is safe for concurrent use.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a statistics engine
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: infrastructure.WithComponent(logger, "statistics")}
}

// numericColumn resolves a column and checks that it holds numbers
func numericColumn(table *domain.Table, name string) (*domain.Column, error) {
	col, ok := table.Column(name)
	if !ok {
		return nil, apperrors.NewMissingColumnsError([]string{name})
	}
	if !col.Type.IsNumeric() {
		return nil, apperrors.NewColumnTypeError(name, "numeric", string(col.Type))
	}
	return col, nil
}

// numericValues returns the non-missing values of a numeric column
func numericValues(table *domain.Table, name string) ([]float64, error) {
	col, err := numericColumn(table, name)
	if err != nil {
		return nil, err
	}
	return col.Floats(), nil
}

// Describe summarizes every numeric column in table order. Columns without
// any value are skipped.
func (e *Engine) Describe(table *domain.Table) []domain.StatisticalSummary {
	numeric := table.NumericColumns()
	e.logger.Debug("describing table", slog.Int("numeric_columns", len(numeric)))

	summaries := make([]domain.StatisticalSummary, 0, len(numeric))
	for _, name := range numeric {
		summary, err := e.DescribeColumn(table, name)
		if err != nil {
			e.logger.Debug("skipping column", slog.String("column", name), slog.String("reason", err.Error()))
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// DescribeColumn summarizes the non-missing values of one numeric column.
// Std is the sample standard deviation; skewness (n >= 3) and excess
// kurtosis (n >= 4) are bias adjusted and zero below those sizes.
func (e *Engine) DescribeColumn(table *domain.Table, column string) (domain.StatisticalSummary, error) {
	values, err := numericValues(table, column)
	if err != nil {
		return domain.StatisticalSummary{}, err
	}
	if len(values) == 0 {
		return domain.StatisticalSummary{}, apperrors.NewInsufficientDataError(
			fmt.Sprintf("column %q has no values", column)).WithContext("column", column)
	}

	sorted := Sorted(values)
	n := len(sorted)

	summary := domain.StatisticalSummary{
		Column: column,
		Count:  n,
		Mean:   stat.Mean(sorted, nil),
		Min:    sorted[0],
		Q25:    Quantile(sorted, 0.25),
		Median: Quantile(sorted, 0.5),
		Q75:    Quantile(sorted, 0.75),
		Max:    sorted[n-1],
	}
	if n >= 2 {
		summary.Std = stat.StdDev(sorted, nil)
	}
	if summary.Std > 0 {
		if n >= 3 {
			summary.Skewness = finite(stat.Skew(sorted, nil))
		}
		if n >= 4 {
			summary.Kurtosis = finite(stat.ExKurtosis(sorted, nil))
		}
	}
	return summary, nil
}

// Percentiles returns the requested quantile levels of a numeric column
func (e *Engine) Percentiles(table *domain.Table, column string, levels []float64) ([]domain.Percentile, error) {
	if len(levels) == 0 {
		levels = DefaultPercentiles
	}
	for _, p := range levels {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return nil, apperrors.NewAppValidationError(fmt.Sprintf("percentile level %v outside [0, 1]", p))
		}
	}

	values, err := numericValues(table, column)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, apperrors.NewInsufficientDataError(fmt.Sprintf("column %q has no values", column))
	}

	sorted := Sorted(values)
	out := make([]domain.Percentile, len(levels))
	for i, p := range levels {
		out[i] = domain.Percentile{Level: p, Value: Quantile(sorted, p)}
	}
	return out, nil
}

// DefaultPercentiles are the levels reported when none are requested
var DefaultPercentiles = []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.99}
