package statistics

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"salespulse/pkg/contracts/domain"
)

// OutlierMethod selects how outlying values are recognised
type OutlierMethod int

const (
	OutlierIQR OutlierMethod = iota
	OutlierZScore
)

// Default thresholds of the outlier rules
const (
	DefaultIQRThreshold    = 1.5
	DefaultZScoreThreshold = 3.0
)

func (m OutlierMethod) String() string {
	switch m {
	case OutlierIQR:
		return "iqr"
	case OutlierZScore:
		return "zscore"
	default:
		return fmt.Sprintf("OutlierMethod(%d)", int(m))
	}
}

// ParseOutlierMethod parses "iqr" or "zscore"
func ParseOutlierMethod(s string) (OutlierMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "iqr":
		return OutlierIQR, nil
	case "zscore", "z-score", "z_score":
		return OutlierZScore, nil
	default:
		return 0, fmt.Errorf("unknown outlier method %q", s)
	}
}

// IQRBounds returns Q1 - t*IQR and Q3 + t*IQR of values
func IQRBounds(values []float64, threshold float64) (lower, upper float64) {
	sorted := Sorted(values)
	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3 - q1
	return q1 - threshold*iqr, q3 + threshold*iqr
}

// MeanStd returns the mean and sample standard deviation of values
func MeanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	if len(values) == 1 {
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}

// OutlierDetection flags the rows of a numeric column lying strictly outside
// the IQR fences (1.5) or with |z| > 3. Missing cells are never flagged and a
// column without spread has no outliers.
func (e *Engine) OutlierDetection(table *domain.Table, column string, method OutlierMethod) (domain.OutlierResult, error) {
	col, err := numericColumn(table, column)
	if err != nil {
		return domain.OutlierResult{}, err
	}

	result := domain.OutlierResult{
		Method: method.String(),
		Mask:   make([]bool, col.Len()),
	}

	values := col.Floats()
	if len(values) == 0 {
		return result, nil
	}

	var flag func(x float64) bool
	switch method {
	case OutlierIQR:
		lower, upper := IQRBounds(values, DefaultIQRThreshold)
		flag = func(x float64) bool { return x < lower || x > upper }
	case OutlierZScore:
		mean, std := MeanStd(values)
		if std == 0 {
			return result, nil
		}
		flag = func(x float64) bool { return math.Abs(x-mean)/std > DefaultZScoreThreshold }
	default:
		return domain.OutlierResult{}, fmt.Errorf("unknown outlier method %v", method)
	}

	for i := range col.Values {
		if x, ok := col.Float(i); ok && flag(x) {
			result.Mask[i] = true
			result.Count++
		}
	}

	e.logger.Debug("outliers detected",
		slog.String("column", column),
		slog.String("method", method.String()),
		slog.Int("count", result.Count))
	return result, nil
}
