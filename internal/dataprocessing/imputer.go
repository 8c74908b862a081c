package dataprocessing

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"salespulse/internal/statistics"
	"salespulse/pkg/contracts/domain"
)

// ImputeMissing fills the missing cells of the columns that have any.
// Numeric columns follow strategy; text and categorical columns use the most
// frequent value, except with forward or backward fill which apply to every
// column. Returns the number of filled cells.
func (c *Cleaner) ImputeMissing(table *domain.Table, strategy ImputationStrategy, fillValue float64, columns []string) (*domain.Table, int, error) {
	out := table.Clone()

	var targets []*domain.Column
	for _, col := range c.resolveColumns(out, columns, func(*domain.Column) bool { return true }) {
		if col.MissingCount() > 0 {
			targets = append(targets, col)
		}
	}
	if len(targets) == 0 {
		c.logger.Debug("no missing values to impute")
		return out, 0, nil
	}

	c.logger.Info("imputing missing values",
		slog.String("strategy", strategy.String()),
		slog.Int("columns", len(targets)))

	imputed := 0
	switch strategy {
	case ImputeForwardFill, ImputeBackwardFill:
		for _, col := range targets {
			imputed += fillDirectional(col, strategy == ImputeForwardFill)
		}
		return out, imputed, nil

	case ImputeKNN:
		var numeric []*domain.Column
		for _, col := range targets {
			if col.Type.IsNumeric() {
				numeric = append(numeric, col)
			}
		}
		imputed += imputeKNN(table, numeric, KNNNeighbors)

	case ImputeMean, ImputeMedian, ImputeMode, ImputeConstant:
		for _, col := range targets {
			if !col.Type.IsNumeric() {
				continue
			}
			value, ok := numericFill(col, strategy, fillValue)
			if !ok {
				c.logger.Warn("column has no values to impute from", slog.String("column", col.Name))
				continue
			}
			imputed += fillNumeric(col, value)
		}

	default:
		return nil, 0, fmt.Errorf("unknown imputation strategy %v", strategy)
	}

	for _, col := range targets {
		if !col.Type.IsStringLike() {
			continue
		}
		mode, ok := stringMode(col)
		if !ok {
			continue
		}
		for i, v := range col.Values {
			if v == nil {
				col.Values[i] = mode
				imputed++
			}
		}
	}

	return out, imputed, nil
}

func numericFill(col *domain.Column, strategy ImputationStrategy, fillValue float64) (float64, bool) {
	if strategy == ImputeConstant {
		return fillValue, true
	}
	values := col.Floats()
	if len(values) == 0 {
		return 0, false
	}
	switch strategy {
	case ImputeMean:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), true
	case ImputeMode:
		return numericMode(values), true
	default:
		return statistics.Median(values), true
	}
}

// fillNumeric writes value into every missing cell, widening an integer
// column to float when value is fractional
func fillNumeric(col *domain.Column, value float64) int {
	if col.Type == domain.TypeInteger && value != math.Trunc(value) {
		widenToFloat(col)
	}

	n := 0
	for i, v := range col.Values {
		if v != nil {
			continue
		}
		if col.Type == domain.TypeInteger {
			col.Values[i] = int64(value)
		} else {
			col.Values[i] = value
		}
		n++
	}
	return n
}

func widenToFloat(col *domain.Column) {
	for i := range col.Values {
		if x, ok := col.Float(i); ok {
			col.Values[i] = x
		}
	}
	col.Type = domain.TypeFloat
}

// numericMode returns the most frequent value, the smallest one on ties
func numericMode(values []float64) float64 {
	counts := make(map[float64]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	best, bestCount := math.Inf(1), 0
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best, bestCount = v, n
		}
	}
	return best
}

// stringMode returns the most frequent label, the smallest one on ties
func stringMode(col *domain.Column) (string, bool) {
	counts := make(map[string]int)
	for i := range col.Values {
		if s, ok := col.Str(i); ok {
			counts[s]++
		}
	}
	if len(counts) == 0 {
		return "", false
	}
	best, bestCount := "", 0
	for s, n := range counts {
		if n > bestCount || (n == bestCount && s < best) {
			best, bestCount = s, n
		}
	}
	return best, true
}

// fillDirectional propagates the last (forward) or next (backward) present
// value into missing cells. Cells with nothing to propagate stay missing.
func fillDirectional(col *domain.Column, forward bool) int {
	n := len(col.Values)
	filled := 0
	var last any

	step := func(i int) {
		if col.Values[i] != nil {
			last = col.Values[i]
			return
		}
		if last != nil {
			col.Values[i] = last
			filled++
		}
	}

	if forward {
		for i := 0; i < n; i++ {
			step(i)
		}
	} else {
		for i := n - 1; i >= 0; i-- {
			step(i)
		}
	}
	return filled
}

// imputeKNN fills each missing cell of targets with the mean of that column
// over the k nearest rows that have it. Distances are nan-euclidean over all
// numeric columns of the source table: squared differences over the
// coordinates present in both rows, scaled up by total/present coordinates.
func imputeKNN(source *domain.Table, targets []*domain.Column, k int) int {
	if len(targets) == 0 {
		return 0
	}

	var features []*domain.Column
	for _, name := range source.NumericColumns() {
		col, _ := source.Column(name)
		features = append(features, col)
	}

	type neighbor struct {
		row  int
		dist float64
	}

	distance := func(a, b int) (float64, bool) {
		var sum float64
		present := 0
		for _, f := range features {
			x, okX := f.Float(a)
			y, okY := f.Float(b)
			if okX && okY {
				sum += (x - y) * (x - y)
				present++
			}
		}
		if present == 0 {
			return 0, false
		}
		return math.Sqrt(float64(len(features)) / float64(present) * sum), true
	}

	filled := 0
	for _, target := range targets {
		// donors are read from the source so earlier fills do not feed later ones
		src, _ := source.Column(target.Name)
		donors := src.Floats()
		if len(donors) == 0 {
			continue
		}
		var fallback float64
		for _, v := range donors {
			fallback += v
		}
		fallback /= float64(len(donors))

		var fills []float64
		var rows []int
		for i := range src.Values {
			if !src.IsMissing(i) {
				continue
			}
			var candidates []neighbor
			for j := range src.Values {
				if j == i || src.IsMissing(j) {
					continue
				}
				if d, ok := distance(i, j); ok {
					candidates = append(candidates, neighbor{row: j, dist: d})
				}
			}

			value := fallback
			if len(candidates) > 0 {
				sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].dist < candidates[b].dist })
				if len(candidates) > k {
					candidates = candidates[:k]
				}
				var sum float64
				for _, cand := range candidates {
					v, _ := src.Float(cand.row)
					sum += v
				}
				value = sum / float64(len(candidates))
			}
			fills = append(fills, value)
			rows = append(rows, i)
		}

		if target.Type == domain.TypeInteger {
			for _, v := range fills {
				if v != math.Trunc(v) {
					widenToFloat(target)
					break
				}
			}
		}
		for idx, row := range rows {
			if target.Type == domain.TypeInteger {
				target.Values[row] = int64(fills[idx])
			} else {
				target.Values[row] = fills[idx]
			}
			filled++
		}
	}
	return filled
}
