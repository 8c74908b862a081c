package domain

import "time"

// AnalysisKind names a memoized sub-analysis
type AnalysisKind string

const (
	KindKPIs        AnalysisKind = "kpis"
	KindByCategory  AnalysisKind = "by_category"
	KindByCity      AnalysisKind = "by_city"
	KindBySource    AnalysisKind = "by_source"
	KindTopProducts AnalysisKind = "top_products"
	KindTrend       AnalysisKind = "trend"
	KindStats       AnalysisKind = "stats"
	KindFull        AnalysisKind = "full"
)

// AnalysisKinds lists every known kind
var AnalysisKinds = []AnalysisKind{
	KindKPIs, KindByCategory, KindByCity, KindBySource,
	KindTopProducts, KindTrend, KindStats, KindFull,
}

// CleaningSummary reports what a cleaning pass changed
type CleaningSummary struct {
	RowsBefore      int      `json:"rows_before"`
	RowsAfter       int      `json:"rows_after"`
	OutliersRemoved int      `json:"outliers_removed"`
	CellsImputed    int      `json:"cells_imputed"`
	ColumnsScaled   []string `json:"columns_scaled,omitempty"`
	ColumnsEncoded  []string `json:"columns_encoded,omitempty"`
}

// AnalysisResult bundles every sub-analysis of one uploaded dataset
type AnalysisResult struct {
	Fingerprint string            `json:"fingerprint"`
	Filename    string            `json:"filename"`
	GeneratedAt time.Time         `json:"generated_at"`
	Validation  *ValidationReport `json:"validation"`
	Cleaning    *CleaningSummary  `json:"cleaning,omitempty"`
	KPIs        *KPIs             `json:"kpis,omitempty"`
	ByCategory  *Table            `json:"by_category,omitempty"`
	ByCity      *Table            `json:"by_city,omitempty"`
	BySource    *Table            `json:"by_source,omitempty"`
	TopProducts *Table            `json:"top_products,omitempty"`
	Trend       *Table            `json:"trend,omitempty"`
	Statistics  *StatisticsReport `json:"statistics,omitempty"`
	// Warnings lists sub-analyses that could not be computed for this dataset
	Warnings  []string `json:"warnings,omitempty"`
	FromCache bool     `json:"from_cache"`
}
