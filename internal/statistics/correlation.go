package statistics

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	apperrors "salespulse/internal/errors"
	"salespulse/pkg/contracts/domain"
)

// CorrelationMethod selects the correlation coefficient
type CorrelationMethod int

const (
	Pearson CorrelationMethod = iota
	Spearman
	Kendall
)

func (m CorrelationMethod) String() string {
	switch m {
	case Pearson:
		return "pearson"
	case Spearman:
		return "spearman"
	case Kendall:
		return "kendall"
	default:
		return fmt.Sprintf("CorrelationMethod(%d)", int(m))
	}
}

// ParseCorrelationMethod parses "pearson", "spearman" or "kendall"
func ParseCorrelationMethod(s string) (CorrelationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pearson":
		return Pearson, nil
	case "spearman":
		return Spearman, nil
	case "kendall":
		return Kendall, nil
	default:
		return 0, fmt.Errorf("unknown correlation method %q", s)
	}
}

// CorrelationMatrix correlates every pair of numeric columns over the rows
// where both values are present. The matrix is symmetric with a unit
// diagonal; a pair without enough variation correlates at 0.
func (e *Engine) CorrelationMatrix(table *domain.Table, method CorrelationMethod) (*domain.CorrelationMatrix, error) {
	columns := table.NumericColumns()
	if len(columns) < 2 {
		return nil, apperrors.NewInsufficientDataError(
			fmt.Sprintf("correlation needs at least 2 numeric columns, got %d", len(columns)))
	}

	cols := make([]*domain.Column, len(columns))
	for i, name := range columns {
		cols[i], _ = table.Column(name)
	}

	k := len(columns)
	values := make([][]float64, k)
	for i := range values {
		values[i] = make([]float64, k)
		values[i][i] = 1
	}

	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			x, y := pairwiseComplete(cols[i], cols[j])
			r := correlate(x, y, method)
			values[i][j] = r
			values[j][i] = r
		}
	}

	e.logger.Debug("correlation matrix computed",
		slog.String("method", method.String()),
		slog.Int("columns", k))

	return &domain.CorrelationMatrix{
		Method:  method.String(),
		Columns: columns,
		Values:  values,
	}, nil
}

// FindStrongCorrelations lists the column pairs with |r| >= threshold,
// strongest first
func (e *Engine) FindStrongCorrelations(table *domain.Table, threshold float64, method CorrelationMethod) ([]domain.CorrelationPair, error) {
	matrix, err := e.CorrelationMatrix(table, method)
	if err != nil {
		return nil, err
	}

	pairs := []domain.CorrelationPair{}
	for i := range matrix.Columns {
		for j := i + 1; j < len(matrix.Columns); j++ {
			r := matrix.Values[i][j]
			if math.Abs(r) >= threshold {
				pairs = append(pairs, domain.CorrelationPair{
					Column1:     matrix.Columns[i],
					Column2:     matrix.Columns[j],
					Correlation: r,
				})
			}
		}
	}

	sort.SliceStable(pairs, func(a, b int) bool {
		return math.Abs(pairs[a].Correlation) > math.Abs(pairs[b].Correlation)
	})
	return pairs, nil
}

func pairwiseComplete(a, b *domain.Column) (x, y []float64) {
	for i := range a.Values {
		xa, okA := a.Float(i)
		yb, okB := b.Float(i)
		if okA && okB {
			x = append(x, xa)
			y = append(y, yb)
		}
	}
	return x, y
}

func correlate(x, y []float64, method CorrelationMethod) float64 {
	if len(x) < 2 {
		return 0
	}
	switch method {
	case Spearman:
		return pearson(Ranks(x), Ranks(y))
	case Kendall:
		return kendallTauB(x, y)
	default:
		return pearson(x, y)
	}
}

func pearson(x, y []float64) float64 {
	_, sx := MeanStd(x)
	_, sy := MeanStd(y)
	if sx == 0 || sy == 0 {
		return 0
	}
	return finite(stat.Correlation(x, y, nil))
}

// Ranks assigns 1-based ranks, averaging the ranks of tied values
func Ranks(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, len(values))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// kendallTauB counts concordant and discordant pairs with the tau-b tie correction
func kendallTauB(x, y []float64) float64 {
	var concordant, discordant, tiesX, tiesY float64
	for i := 0; i < len(x); i++ {
		for j := i + 1; j < len(x); j++ {
			dx := sign(x[i] - x[j])
			dy := sign(y[i] - y[j])
			switch {
			case dx == 0 && dy == 0:
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case dx == dy:
				concordant++
			default:
				discordant++
			}
		}
	}

	denom := math.Sqrt((concordant + discordant + tiesX) * (concordant + discordant + tiesY))
	if denom == 0 {
		return 0
	}
	return (concordant - discordant) / denom
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
