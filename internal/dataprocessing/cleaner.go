package dataprocessing

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "salespulse/internal/errors"
	"salespulse/internal/infrastructure"
	"salespulse/internal/statistics"
	"salespulse/pkg/contracts/domain"
)

// Cleaner prepares tables for analysis. Fitted scalers and label encoders are
// retained per column so later calls reuse them; everything else is
// stateless and the input table is never modified.
type Cleaner struct {
	logger *slog.Logger

	mu       sync.RWMutex
	scalers  map[string]ScalerParams
	encoders map[string]*LabelEncoding
}

// NewCleaner creates a cleaner with empty scaler and encoder state
func NewCleaner(logger *slog.Logger) *Cleaner {
	return &Cleaner{
		logger:   infrastructure.WithComponent(logger, "cleaner"),
		scalers:  make(map[string]ScalerParams),
		encoders: make(map[string]*LabelEncoding),
	}
}

// Clean runs the selected cleaning steps and returns a new table
func (c *Cleaner) Clean(table *domain.Table, opts CleanOptions) (*domain.Table, error) {
	out, _, err := c.CleanWithSummary(table, opts)
	return out, err
}

// CleanWithSummary runs the selected cleaning steps and reports what changed
func (c *Cleaner) CleanWithSummary(table *domain.Table, opts CleanOptions) (*domain.Table, *domain.CleaningSummary, error) {
	start := time.Now()
	summary := &domain.CleaningSummary{RowsBefore: table.NumRows()}

	c.logger.Info("cleaning started",
		slog.Int("rows", table.NumRows()),
		slog.Int("columns", table.NumCols()))

	out := table.Clone()

	if opts.CleanStrings {
		out = c.CleanStrings(out, opts.StringColumns)
	}

	if opts.RemoveOutliers {
		var removed int
		out, removed = c.RemoveOutliers(out, opts.OutlierColumns, opts.OutlierMethod, opts.outlierThreshold())
		summary.OutliersRemoved = removed
	}

	if opts.ImputeMissing {
		var imputed int
		var err error
		out, imputed, err = c.ImputeMissing(out, opts.Imputation, opts.FillValue, opts.ImputeColumns)
		if err != nil {
			return nil, nil, err
		}
		summary.CellsImputed = imputed
	}

	if opts.Normalize {
		var scaled []string
		var err error
		out, scaled, err = c.Normalize(out, opts.Scaling, opts.NormalizeColumns)
		if err != nil {
			return nil, nil, err
		}
		summary.ColumnsScaled = scaled
	}

	if opts.Encode {
		var encoded []string
		var err error
		out, encoded, err = c.Encode(out, opts.Encoding, opts.EncodeColumns)
		if err != nil {
			return nil, nil, err
		}
		summary.ColumnsEncoded = encoded
	}

	summary.RowsAfter = out.NumRows()
	c.logger.Info("cleaning finished",
		slog.Int("rows_before", summary.RowsBefore),
		slog.Int("rows_after", summary.RowsAfter),
		slog.Int("outliers_removed", summary.OutliersRemoved),
		slog.Int("cells_imputed", summary.CellsImputed),
		slog.Duration("duration", time.Since(start)))
	return out, summary, nil
}

// resolveColumns returns the requested columns present in the table, or every
// column accepted by eligible when none are requested
func (c *Cleaner) resolveColumns(table *domain.Table, requested []string, eligible func(*domain.Column) bool) []*domain.Column {
	var cols []*domain.Column
	if requested == nil {
		for _, col := range table.Columns() {
			if eligible(col) {
				cols = append(cols, col)
			}
		}
		return cols
	}
	for _, name := range requested {
		col, ok := table.Column(name)
		if !ok {
			c.logger.Warn("column not found, skipped", slog.String("column", name))
			continue
		}
		cols = append(cols, col)
	}
	return cols
}

func isNumeric(col *domain.Column) bool    { return col.Type.IsNumeric() }
func isStringLike(col *domain.Column) bool { return col.Type.IsStringLike() }

// CleanStrings trims text cells and collapses internal whitespace runs to one space
func (c *Cleaner) CleanStrings(table *domain.Table, columns []string) *domain.Table {
	out := table.Clone()
	cols := c.resolveColumns(out, columns, isStringLike)
	for _, col := range cols {
		if !col.Type.IsStringLike() {
			continue
		}
		for i, v := range col.Values {
			if s, ok := v.(string); ok {
				col.Values[i] = strings.Join(strings.Fields(s), " ")
			}
		}
	}
	c.logger.Debug("strings cleaned", slog.Int("columns", len(cols)))
	return out
}

// RemoveOutliers drops the rows flagged in any of the numeric columns. All
// masks are computed on the input table and combined, so the result does
// not depend on column order.
func (c *Cleaner) RemoveOutliers(table *domain.Table, columns []string, method statistics.OutlierMethod, threshold float64) (*domain.Table, int) {
	keep := make([]bool, table.NumRows())
	for i := range keep {
		keep[i] = true
	}

	for _, col := range c.resolveColumns(table, columns, isNumeric) {
		if !col.Type.IsNumeric() {
			continue
		}
		flagged := outlierMask(col, method, threshold)
		removed := 0
		for i, out := range flagged {
			if out && keep[i] {
				keep[i] = false
				removed++
			}
		}
		if removed > 0 {
			c.logger.Debug("outliers flagged",
				slog.String("column", col.Name),
				slog.Int("rows", removed))
		}
	}

	out := table.Filter(keep)
	removed := table.NumRows() - out.NumRows()
	c.logger.Info("outliers removed",
		slog.String("method", method.String()),
		slog.Int("removed", removed))
	return out, removed
}

// outlierMask flags values outside [Q1-t*IQR, Q3+t*IQR] or with |z| >= t.
// Missing cells are never flagged and a column without spread flags nothing.
func outlierMask(col *domain.Column, method statistics.OutlierMethod, threshold float64) []bool {
	mask := make([]bool, col.Len())
	values := col.Floats()
	if len(values) == 0 {
		return mask
	}

	var flag func(float64) bool
	switch method {
	case statistics.OutlierZScore:
		mean, std := statistics.MeanStd(values)
		if std == 0 {
			return mask
		}
		flag = func(x float64) bool { return math.Abs(x-mean)/std >= threshold }
	default:
		lower, upper := statistics.IQRBounds(values, threshold)
		flag = func(x float64) bool { return x < lower || x > upper }
	}

	for i := range col.Values {
		if x, ok := col.Float(i); ok && flag(x) {
			mask[i] = true
		}
	}
	return mask
}

// Normalize rescales numeric columns to float and records the fitted
// parameters. A zero scale is replaced by 1.
func (c *Cleaner) Normalize(table *domain.Table, method ScalingMethod, columns []string) (*domain.Table, []string, error) {
	out := table.Clone()
	var scaled []string

	for _, col := range c.resolveColumns(out, columns, isNumeric) {
		if !col.Type.IsNumeric() {
			return nil, nil, apperrors.NewColumnTypeError(col.Name, "numeric", string(col.Type))
		}
		values := col.Floats()
		if len(values) == 0 {
			continue
		}

		params := fitScaler(values, method)
		for i := range col.Values {
			if x, ok := col.Float(i); ok {
				col.Values[i] = params.Apply(x)
			}
		}
		col.Type = domain.TypeFloat

		c.mu.Lock()
		c.scalers[col.Name] = params
		c.mu.Unlock()
		scaled = append(scaled, col.Name)
	}

	c.logger.Info("columns normalized",
		slog.String("method", method.String()),
		slog.Int("columns", len(scaled)))
	return out, scaled, nil
}

func fitScaler(values []float64, method ScalingMethod) ScalerParams {
	params := ScalerParams{Method: method}
	switch method {
	case ScaleMinMax:
		sorted := statistics.Sorted(values)
		params.Center = sorted[0]
		params.Scale = sorted[len(sorted)-1] - sorted[0]
	case ScaleRobust:
		sorted := statistics.Sorted(values)
		params.Center = statistics.Quantile(sorted, 0.5)
		params.Scale = statistics.Quantile(sorted, 0.75) - statistics.Quantile(sorted, 0.25)
	default:
		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / float64(len(values))
		var ss float64
		for _, v := range values {
			ss += (v - mean) * (v - mean)
		}
		params.Center = mean
		params.Scale = math.Sqrt(ss / float64(len(values)))
	}
	if params.Scale == 0 {
		params.Scale = 1
	}
	return params
}

// Encode converts categorical columns. Label encoding replaces each value by
// its class index and extends the stored encoding with unseen classes.
// One-hot encoding drops the first sorted level, removes the source column
// and appends boolean {column}_{value} columns at the end.
func (c *Cleaner) Encode(table *domain.Table, method EncodingMethod, columns []string) (*domain.Table, []string, error) {
	out := table.Clone()
	cols := c.resolveColumns(out, columns, isStringLike)
	var encoded []string

	switch method {
	case EncodeLabel:
		for _, col := range cols {
			enc := c.fitLabelEncoding(col)
			for i := range col.Values {
				if s, ok := col.Str(i); ok {
					col.Values[i] = int64(enc.Index[s])
				}
			}
			col.Type = domain.TypeInteger
			encoded = append(encoded, col.Name)
		}

	case EncodeOneHot:
		var dummies []*domain.Column
		for _, col := range cols {
			levels := col.Distinct()
			for _, level := range levels[min(1, len(levels)):] {
				values := make([]any, col.Len())
				for i := range col.Values {
					s, ok := col.Str(i)
					values[i] = ok && s == level
				}
				dummies = append(dummies, &domain.Column{
					Name:   fmt.Sprintf("%s_%s", col.Name, level),
					Type:   domain.TypeBoolean,
					Values: values,
				})
			}
			encoded = append(encoded, col.Name)
		}
		for _, name := range encoded {
			out.DropColumn(name)
		}
		for _, d := range dummies {
			if err := out.AddColumn(d); err != nil {
				return nil, nil, apperrors.NewStructuralError(err.Error())
			}
		}

	default:
		return nil, nil, fmt.Errorf("unknown encoding method %v", method)
	}

	c.logger.Info("columns encoded",
		slog.String("method", method.String()),
		slog.Int("columns", len(encoded)))
	return out, encoded, nil
}

// fitLabelEncoding returns the stored encoding of a column extended with its
// unseen values, creating a sorted one on first use
func (c *Cleaner) fitLabelEncoding(col *domain.Column) *LabelEncoding {
	c.mu.Lock()
	defer c.mu.Unlock()

	enc, ok := c.encoders[col.Name]
	if !ok {
		enc = &LabelEncoding{Index: make(map[string]int)}
		c.encoders[col.Name] = enc
	}

	var unseen []string
	for _, v := range col.Distinct() {
		if _, known := enc.Index[v]; !known {
			unseen = append(unseen, v)
		}
	}
	sort.Strings(unseen)
	for _, v := range unseen {
		enc.Index[v] = len(enc.Classes)
		enc.Classes = append(enc.Classes, v)
	}
	return enc
}

// Scalers returns a copy of the fitted scaler parameters
func (c *Cleaner) Scalers() map[string]ScalerParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]ScalerParams, len(c.scalers))
	for k, v := range c.scalers {
		out[k] = v
	}
	return out
}

// Encoders returns a copy of the fitted label encodings
func (c *Cleaner) Encoders() map[string]LabelEncoding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]LabelEncoding, len(c.encoders))
	for k, v := range c.encoders {
		classes := make([]string, len(v.Classes))
		copy(classes, v.Classes)
		index := make(map[string]int, len(v.Index))
		for label, i := range v.Index {
			index[label] = i
		}
		out[k] = LabelEncoding{Classes: classes, Index: index}
	}
	return out
}

// ConvertDates parses text columns into timestamps. An empty layout tries the
// common layouts in DateLayouts. Unparseable cells become missing.
func (c *Cleaner) ConvertDates(table *domain.Table, columns []string, layout string) *domain.Table {
	out := table.Clone()
	for _, name := range columns {
		col, ok := out.Column(name)
		if !ok {
			c.logger.Warn("date column not found, skipped", slog.String("column", name))
			continue
		}
		if col.Type == domain.TypeTimestamp {
			continue
		}

		invalid := 0
		for i, v := range col.Values {
			if v == nil {
				continue
			}
			ts, ok := ParseDate(domain.FormatValue(v), layout)
			if !ok {
				col.Values[i] = nil
				invalid++
				continue
			}
			col.Values[i] = ts
		}
		col.Type = domain.TypeTimestamp

		c.logger.Debug("column converted to timestamps",
			slog.String("column", name),
			slog.Int("invalid", invalid))
	}
	return out
}
