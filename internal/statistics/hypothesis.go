package statistics

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	apperrors "salespulse/internal/errors"
	"salespulse/pkg/contracts/domain"
)

// NormalityMethod selects the normality test
type NormalityMethod int

const (
	Shapiro NormalityMethod = iota
	KolmogorovSmirnov
)

func (m NormalityMethod) String() string {
	switch m {
	case Shapiro:
		return "shapiro"
	case KolmogorovSmirnov:
		return "kstest"
	default:
		return fmt.Sprintf("NormalityMethod(%d)", int(m))
	}
}

// ParseNormalityMethod parses "shapiro" or "kstest"
func ParseNormalityMethod(s string) (NormalityMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shapiro", "shapiro-wilk":
		return Shapiro, nil
	case "kstest", "ks", "kolmogorov-smirnov":
		return KolmogorovSmirnov, nil
	default:
		return 0, fmt.Errorf("unknown normality method %q", s)
	}
}

// TestNormality tests whether a numeric column is normally distributed.
// The null hypothesis is kept (IsNormal) when p > 0.05.
func (e *Engine) TestNormality(table *domain.Table, column string, method NormalityMethod) (domain.NormalityResult, error) {
	values, err := numericValues(table, column)
	if err != nil {
		return domain.NormalityResult{}, err
	}

	n := len(values)
	if n < shapiroMinN {
		return domain.NormalityResult{}, apperrors.NewInsufficientDataError(
			fmt.Sprintf("normality test needs at least %d values, column %q has %d", shapiroMinN, column, n)).
			WithContext("column", column)
	}

	sorted := Sorted(values)
	if sorted[n-1]-sorted[0] == 0 {
		return domain.NormalityResult{}, apperrors.NewComputationError(
			fmt.Sprintf("column %q has zero variance", column), nil).WithContext("column", column)
	}

	var statistic, p float64
	switch method {
	case Shapiro:
		if n > shapiroMaxN {
			return domain.NormalityResult{}, apperrors.NewComputationError(
				fmt.Sprintf("shapiro test supports at most %d values, column %q has %d", shapiroMaxN, column, n), nil)
		}
		statistic, p = shapiroWilk(sorted)
	case KolmogorovSmirnov:
		mean, std := MeanStd(sorted)
		statistic, p = kolmogorovSmirnov(sorted, mean, std)
	default:
		return domain.NormalityResult{}, fmt.Errorf("unknown normality method %v", method)
	}

	result := domain.NormalityResult{
		Method:    method.String(),
		Statistic: statistic,
		PValue:    p,
		IsNormal:  p > Significance,
	}

	e.logger.Info("normality test",
		slog.String("column", column),
		slog.String("method", result.Method),
		slog.Float64("statistic", statistic),
		slog.Float64("p_value", p),
		slog.Bool("is_normal", result.IsNormal))
	return result, nil
}

// TTestIndependent compares the mean of column between the rows whose
// groupColumn equals groupA and groupB, using Student's t with pooled variance
func (e *Engine) TTestIndependent(table *domain.Table, column, groupColumn, groupA, groupB string) (domain.TTestResult, error) {
	col, err := numericColumn(table, column)
	if err != nil {
		return domain.TTestResult{}, err
	}
	groups, ok := table.Column(groupColumn)
	if !ok {
		return domain.TTestResult{}, apperrors.NewMissingColumnsError([]string{groupColumn})
	}

	var a, b []float64
	for i := range col.Values {
		x, ok := col.Float(i)
		if !ok {
			continue
		}
		label, ok := groups.Str(i)
		if !ok {
			continue
		}
		switch label {
		case groupA:
			a = append(a, x)
		case groupB:
			b = append(b, x)
		}
	}

	if len(a) < 2 || len(b) < 2 {
		return domain.TTestResult{}, apperrors.NewInsufficientDataError(
			fmt.Sprintf("t-test needs at least 2 values per group, got %s=%d and %s=%d", groupA, len(a), groupB, len(b))).
			WithContext("group_column", groupColumn)
	}

	meanA, stdA := MeanStd(a)
	meanB, stdB := MeanStd(b)
	na, nb := float64(len(a)), float64(len(b))
	df := na + nb - 2
	pooled := ((na-1)*stdA*stdA + (nb-1)*stdB*stdB) / df
	se := math.Sqrt(pooled * (1/na + 1/nb))
	if se == 0 {
		return domain.TTestResult{}, apperrors.NewComputationError("t-test groups have zero variance", nil).
			WithContext("column", column)
	}

	t := (meanA - meanB) / se
	p := 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(math.Abs(t))

	result := domain.TTestResult{
		Statistic:   t,
		PValue:      p,
		Significant: p < Significance,
		MeanA:       meanA,
		MeanB:       meanB,
		CountA:      len(a),
		CountB:      len(b),
	}

	e.logger.Info("t-test",
		slog.String("column", column),
		slog.String("groups", groupA+" vs "+groupB),
		slog.Float64("t", t),
		slog.Float64("p_value", p),
		slog.Bool("significant", result.Significant))
	return result, nil
}

// Chi2Test tests the independence of two categorical columns on their
// contingency table. Yates' continuity correction applies when dof is 1.
func (e *Engine) Chi2Test(table *domain.Table, col1, col2 string) (domain.Chi2Result, error) {
	observed, err := contingency(table, col1, col2)
	if err != nil {
		return domain.Chi2Result{}, err
	}

	rows, cols := len(observed), len(observed[0])
	dof := (rows - 1) * (cols - 1)

	rowSums := make([]float64, rows)
	colSums := make([]float64, cols)
	var total float64
	for i := range observed {
		for j, v := range observed[i] {
			rowSums[i] += v
			colSums[j] += v
			total += v
		}
	}

	var chi2 float64
	for i := range observed {
		for j, obs := range observed[i] {
			expected := rowSums[i] * colSums[j] / total
			if expected == 0 {
				return domain.Chi2Result{}, apperrors.NewComputationError(
					fmt.Sprintf("contingency table of %q and %q has an empty row or column", col1, col2), nil)
			}
			diff := obs - expected
			if dof == 1 {
				// move each observation up to 0.5 towards its expectation
				diff = math.Copysign(math.Max(0, math.Abs(diff)-0.5), diff)
			}
			chi2 += diff * diff / expected
		}
	}

	p := distuv.ChiSquared{K: float64(dof)}.Survival(chi2)
	result := domain.Chi2Result{
		Statistic:        chi2,
		PValue:           p,
		DegreesOfFreedom: dof,
		Dependent:        p < Significance,
	}

	e.logger.Info("chi2 test",
		slog.String("columns", col1+" vs "+col2),
		slog.Float64("chi2", chi2),
		slog.Int("dof", dof),
		slog.Float64("p_value", p),
		slog.Bool("dependent", result.Dependent))
	return result, nil
}

// contingency counts co-occurrences of two columns, rows and columns ordered
// by their sorted distinct values. Rows with a missing value are ignored.
func contingency(table *domain.Table, col1, col2 string) ([][]float64, error) {
	var missing []string
	a, okA := table.Column(col1)
	if !okA {
		missing = append(missing, col1)
	}
	b, okB := table.Column(col2)
	if !okB {
		missing = append(missing, col2)
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingColumnsError(missing)
	}

	type pair struct{ x, y string }
	var pairs []pair
	rowSet := make(map[string]struct{})
	colSet := make(map[string]struct{})
	for i := range a.Values {
		x, okX := a.Str(i)
		y, okY := b.Str(i)
		if !okX || !okY {
			continue
		}
		pairs = append(pairs, pair{x, y})
		rowSet[x] = struct{}{}
		colSet[y] = struct{}{}
	}

	rowIndex := indexOf(sortedLevels(rowSet))
	colIndex := indexOf(sortedLevels(colSet))
	if len(rowIndex) < 2 || len(colIndex) < 2 {
		return nil, apperrors.NewComputationError(
			fmt.Sprintf("contingency table of %q and %q is degenerate (%dx%d)", col1, col2, len(rowIndex), len(colIndex)), nil)
	}

	observed := make([][]float64, len(rowIndex))
	for i := range observed {
		observed[i] = make([]float64, len(colIndex))
	}
	for _, p := range pairs {
		observed[rowIndex[p.x]][colIndex[p.y]]++
	}
	return observed, nil
}

func sortedLevels(set map[string]struct{}) []string {
	levels := make([]string, 0, len(set))
	for v := range set {
		levels = append(levels, v)
	}
	sort.Strings(levels)
	return levels
}

func indexOf(values []string) map[string]int {
	index := make(map[string]int, len(values))
	for i, v := range values {
		index[v] = i
	}
	return index
}

// ConfidenceInterval returns the Student t confidence interval of a column mean
func (e *Engine) ConfidenceInterval(table *domain.Table, column string, confidence float64) (domain.ConfidenceInterval, error) {
	if confidence <= 0 || confidence >= 1 {
		return domain.ConfidenceInterval{}, apperrors.NewAppValidationError(
			fmt.Sprintf("confidence %v outside (0, 1)", confidence))
	}

	values, err := numericValues(table, column)
	if err != nil {
		return domain.ConfidenceInterval{}, err
	}
	n := len(values)
	if n < 2 {
		return domain.ConfidenceInterval{}, apperrors.NewInsufficientDataError(
			fmt.Sprintf("confidence interval needs at least 2 values, column %q has %d", column, n))
	}

	mean, std := MeanStd(values)
	sem := std / math.Sqrt(float64(n))
	margin := sem * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}.Quantile((1+confidence)/2)

	return domain.ConfidenceInterval{
		Mean:       mean,
		Lower:      mean - margin,
		Upper:      mean + margin,
		Confidence: confidence,
	}, nil
}
