package validation

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"salespulse/internal/config"
	apperrors "salespulse/internal/errors"
	"salespulse/internal/infrastructure"
	"salespulse/pkg/contracts/domain"
)

// DefaultMissingThreshold is the percentage of missing cells tolerated per column
const DefaultMissingThreshold = 50.0

// ValueRange bounds a numeric column inclusively. A nil bound is open.
type ValueRange struct {
	Min *float64
	Max *float64
}

// AtLeast returns a range with only a lower bound
func AtLeast(min float64) ValueRange {
	return ValueRange{Min: &min}
}

// Between returns a closed range
func Between(min, max float64) ValueRange {
	return ValueRange{Min: &min, Max: &max}
}

func (r ValueRange) String() string {
	format := func(b *float64) string {
		if b == nil {
			return "none"
		}
		return domain.FormatValue(*b)
	}
	return fmt.Sprintf("min=%s, max=%s", format(r.Min), format(r.Max))
}

// Rules selects the checks of one Validate call
type Rules struct {
	RequiredColumns []string
	ColumnTypes     map[string]domain.ColumnType
	CheckDuplicates bool
	CheckMissing    bool
	ValueRanges     map[string]ValueRange
	MinRows         int
}

// Validator checks tables against Rules. It holds configuration only and is
// safe for concurrent use.
type Validator struct {
	StrictMode       bool
	MissingThreshold float64
	MinRows          int
	logger           *slog.Logger
}

// NewValidator creates a validator from the validation config section
func NewValidator(cfg config.ValidationConfig, logger *slog.Logger) *Validator {
	threshold := cfg.MissingThreshold
	if threshold <= 0 {
		threshold = DefaultMissingThreshold
	}
	return &Validator{
		StrictMode:       cfg.StrictMode,
		MissingThreshold: threshold,
		MinRows:          cfg.MinRows,
		logger:           infrastructure.WithComponent(logger, "validator"),
	}
}

// reportBuilder accumulates findings; the report is frozen once built
type reportBuilder struct {
	report *domain.ValidationReport
}

func (b *reportBuilder) add(severity domain.IssueSeverity, err *apperrors.AppError) {
	issue := domain.ValidationIssue{
		Severity: severity,
		Kind:     string(err.Type),
		Message:  err.Message,
	}
	if len(err.Context) > 0 {
		issue.Details = err.Context
	}

	b.report.Issues = append(b.report.Issues, issue)
	if severity == domain.SeverityError {
		b.report.Errors = append(b.report.Errors, err.Message)
	} else {
		b.report.Warnings = append(b.report.Warnings, err.Message)
	}
}

func (b *reportBuilder) soft(strict bool, err *apperrors.AppError) {
	if strict {
		b.add(domain.SeverityError, err)
		return
	}
	b.add(domain.SeverityWarning, err)
}

// Validate runs every check enabled in rules and reports all findings at once.
// The table is never modified.
func (v *Validator) Validate(table *domain.Table, rules Rules) *domain.ValidationReport {
	start := time.Now()

	b := &reportBuilder{report: &domain.ValidationReport{
		Errors:   []string{},
		Warnings: []string{},
		Issues:   []domain.ValidationIssue{},
		Metrics:  CalculateMetrics(table),
	}}

	v.logger.Debug("validating table",
		slog.Int("rows", table.NumRows()),
		slog.Int("columns", table.NumCols()))

	if len(rules.RequiredColumns) > 0 {
		if missing := missingColumns(table, rules.RequiredColumns); len(missing) > 0 {
			b.add(domain.SeverityError, apperrors.NewMissingColumnsError(missing).
				WithContext("available_columns", table.ColumnNames()))
		}
	}

	for _, name := range sortedKeys(rules.ColumnTypes) {
		if err := checkColumnType(table, name, rules.ColumnTypes[name]); err != nil {
			b.add(domain.SeverityError, err)
		}
	}

	if rules.CheckMissing {
		for _, err := range v.checkMissing(table) {
			b.soft(v.StrictMode, err)
		}
	}

	if rules.CheckDuplicates {
		if n := b.report.Metrics.DuplicateRowCount; n > 0 {
			pct := float64(n) / float64(table.NumRows()) * 100
			b.soft(v.StrictMode, apperrors.NewAppError(apperrors.ErrTypeQuality,
				fmt.Sprintf("DuplicateRows: %d duplicate rows (%.1f%% of %d)", n, pct, table.NumRows()), nil).
				WithContext("duplicate_count", n).
				WithContext("percentage", pct))
		}
	}

	for _, name := range sortedKeys(rules.ValueRanges) {
		if err := checkRange(table, name, rules.ValueRanges[name]); err != nil {
			b.add(domain.SeverityError, err)
		}
	}

	if rules.MinRows > 0 && table.NumRows() < rules.MinRows {
		b.add(domain.SeverityError, apperrors.NewInsufficientDataError(
			fmt.Sprintf("InsufficientData: %d rows, at least %d required", table.NumRows(), rules.MinRows)).
			WithContext("rows", table.NumRows()).
			WithContext("min_rows", rules.MinRows))
	}

	report := b.report
	report.IsValid = len(report.Errors) == 0

	logArgs := []any{
		slog.Bool("is_valid", report.IsValid),
		slog.Int("errors", len(report.Errors)),
		slog.Int("warnings", len(report.Warnings)),
		slog.Duration("duration", time.Since(start)),
	}
	if report.IsValid {
		v.logger.Info("validation passed", logArgs...)
	} else {
		v.logger.Warn("validation failed", logArgs...)
	}

	return report
}

func missingColumns(table *domain.Table, required []string) []string {
	var missing []string
	for _, name := range required {
		if !table.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// typeAccepts reports whether a column stored as actual satisfies expected
func typeAccepts(expected, actual domain.ColumnType) bool {
	switch expected {
	case domain.TypeFloat:
		return actual.IsNumeric()
	case domain.TypeText:
		return actual.IsStringLike()
	default:
		return expected == actual
	}
}

func checkColumnType(table *domain.Table, name string, expected domain.ColumnType) *apperrors.AppError {
	col, ok := table.Column(name)
	if !ok {
		return nil
	}
	if typeAccepts(expected, col.Type) {
		return nil
	}
	return apperrors.NewColumnTypeError(name, string(expected), string(col.Type))
}

func (v *Validator) checkMissing(table *domain.Table) []*apperrors.AppError {
	rows := table.NumRows()
	if rows == 0 {
		return nil
	}

	var findings []*apperrors.AppError
	for _, col := range table.Columns() {
		missing := col.MissingCount()
		if missing == 0 {
			continue
		}
		pct := float64(missing) / float64(rows) * 100
		if pct <= v.MissingThreshold {
			continue
		}
		findings = append(findings, apperrors.NewAppError(apperrors.ErrTypeQuality,
			fmt.Sprintf("ExcessiveMissingValues: column %q has %.1f%% missing values (%d/%d), threshold %.1f%%",
				col.Name, pct, missing, rows, v.MissingThreshold), nil).
			WithContext("column", col.Name).
			WithContext("missing_count", missing).
			WithContext("percentage", pct).
			WithContext("threshold", v.MissingThreshold))
	}
	return findings
}

func checkRange(table *domain.Table, name string, bounds ValueRange) *apperrors.AppError {
	col, ok := table.Column(name)
	if !ok {
		return nil
	}

	invalid := 0
	for i := range col.Values {
		x, ok := col.Float(i)
		if !ok {
			continue
		}
		if bounds.Min != nil && x < *bounds.Min {
			invalid++
		}
		if bounds.Max != nil && x > *bounds.Max {
			invalid++
		}
	}
	if invalid == 0 {
		return nil
	}

	err := apperrors.NewRangeError(name, invalid)
	err.Message = fmt.Sprintf("InvalidValueRange: column %q has %d values out of range (%s)", name, invalid, bounds)
	return err.WithContext("bounds", bounds.String())
}

// CalculateMetrics measures the shape and quality of a table
func CalculateMetrics(table *domain.Table) domain.ValidationMetrics {
	rows, cols := table.NumRows(), table.NumCols()

	metrics := domain.ValidationMetrics{
		RowCount:      rows,
		ColumnCount:   cols,
		TotalCells:    rows * cols,
		ColumnTypeMap: make(map[string]domain.ColumnType, cols),
	}

	for _, col := range table.Columns() {
		metrics.MissingCellCount += col.MissingCount()
		metrics.ColumnTypeMap[col.Name] = col.Type
	}
	if metrics.TotalCells > 0 {
		metrics.MissingPercentage = float64(metrics.MissingCellCount) / float64(metrics.TotalCells) * 100
	}

	metrics.DuplicateRowCount = CountDuplicateRows(table)
	metrics.MemoryEstimateBytes = EstimateMemory(table)
	return metrics
}

// CountDuplicateRows counts rows identical to an earlier row
func CountDuplicateRows(table *domain.Table) int {
	seen := make(map[string]struct{}, table.NumRows())
	duplicates := 0
	for i := 0; i < table.NumRows(); i++ {
		key := table.RowKey(i)
		if _, ok := seen[key]; ok {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
	}
	return duplicates
}

// EstimateMemory approximates the in-memory footprint of a table in bytes
func EstimateMemory(table *domain.Table) int64 {
	const cellOverhead = 16 // interface header

	var total int64
	for _, col := range table.Columns() {
		total += int64(len(col.Name))
		for _, v := range col.Values {
			total += cellOverhead
			switch x := v.(type) {
			case string:
				total += int64(len(x)) + 16
			case time.Time:
				total += 24
			case int64, float64:
				total += 8
			case bool:
				total++
			}
		}
	}
	return total
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
