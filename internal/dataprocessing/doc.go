// Package dataprocessing cleans sales tables and derives aggregated views from
// them.
//
// # Architecture
//
// The package has two components:
//
// 1. Cleaner: string normalization, outlier removal, imputation, scaling and encoding
// 2. Aggregator: grouping, pivots, cross tabulation, resampling and sales KPIs
//
// # Usage
//
// Cleaning with the configured options:
//
//	cleaner := dataprocessing.NewCleaner(logger)
//	opts, err := dataprocessing.CleanOptionsFromConfig(cfg.Cleaning)
//	if err != nil {
//	    return err
//	}
//	cleaned, summary, err := cleaner.CleanWithSummary(table, opts)
//
// Deriving sales views:
//
//	agg := dataprocessing.NewAggregator(logger)
//	kpis := agg.CalculateKPIs(cleaned)
//	byCategory, err := agg.SalesByCategory(cleaned)
//	trend, err := agg.TrendAnalysis(cleaned, domain.ColumnDate, dataprocessing.Monthly)
//
// # Data Flow
//
//	Table → Cleaner → cleaned Table → Aggregator → derived Tables and KPIs
//
// Neither component modifies its input. The Cleaner keeps fitted scalers and
// label encodings between calls so repeated batches share one encoding; the
// Aggregator holds no state.
//
// # Error Handling
//
// Errors are *errors.AppError values: STRUCTURAL for absent columns (all
// listed at once), TYPE when an aggregation needs numeric input, VALIDATION
// for bad arguments and INSUFFICIENT_DATA when a time series has no dates.
package dataprocessing
