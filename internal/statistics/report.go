package statistics

import (
	"log/slog"
	"time"

	"salespulse/internal/validation"
	"salespulse/pkg/contracts/domain"
)

const bytesPerMB = 1024 * 1024

// GenerateReport assembles the composite statistics report of a table:
// overview, rounded descriptive statistics, missing values, the Pearson
// correlation matrix (two or more numeric columns) and IQR outlier counts.
func (e *Engine) GenerateReport(table *domain.Table) *domain.StatisticsReport {
	start := time.Now()

	report := &domain.StatisticsReport{
		Overview: domain.ReportOverview{
			Rows:          table.NumRows(),
			Columns:       table.NumCols(),
			MemoryUsageMB: float64(validation.EstimateMemory(table)) / bytesPerMB,
		},
		DescriptiveStats: make(map[string]domain.StatisticalSummary),
		MissingValues:    make(map[string]domain.MissingSummary),
		Outliers:         make(map[string]int),
	}

	for _, col := range table.Columns() {
		switch {
		case col.Type.IsNumeric():
			report.Overview.Numeric++
		case col.Type.IsStringLike():
			report.Overview.Categorical++
		}

		if missing := col.MissingCount(); missing > 0 {
			report.MissingValues[col.Name] = domain.MissingSummary{
				Count:      missing,
				Percentage: float64(missing) / float64(table.NumRows()) * 100,
			}
		}
	}

	for _, summary := range e.Describe(table) {
		report.DescriptiveStats[summary.Column] = roundSummary(summary)
	}

	if report.Overview.Numeric > 1 {
		matrix, err := e.CorrelationMatrix(table, Pearson)
		if err != nil {
			e.logger.Warn("correlation matrix skipped", slog.String("error", err.Error()))
		} else {
			report.Correlations = matrix
		}
	}

	for _, name := range table.NumericColumns() {
		result, err := e.OutlierDetection(table, name, OutlierIQR)
		if err != nil {
			continue
		}
		if result.Count > 0 {
			report.Outliers[name] = result.Count
		}
	}

	e.logger.Info("statistics report generated",
		slog.Int("rows", report.Overview.Rows),
		slog.Int("numeric_columns", report.Overview.Numeric),
		slog.Duration("duration", time.Since(start)))
	return report
}

func roundSummary(s domain.StatisticalSummary) domain.StatisticalSummary {
	s.Mean = Round(s.Mean, 2)
	s.Std = Round(s.Std, 2)
	s.Min = Round(s.Min, 2)
	s.Q25 = Round(s.Q25, 2)
	s.Median = Round(s.Median, 2)
	s.Q75 = Round(s.Q75, 2)
	s.Max = Round(s.Max, 2)
	s.Skewness = Round(s.Skewness, 2)
	s.Kurtosis = Round(s.Kurtosis, 2)
	return s
}
