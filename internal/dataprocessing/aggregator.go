package dataprocessing

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	apperrors "salespulse/internal/errors"
	"salespulse/internal/infrastructure"
	"salespulse/internal/statistics"
	"salespulse/pkg/contracts/domain"
)

// Aggregator derives grouped, pivoted and time-bucketed tables. It is
// stateless and safe for concurrent use.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator creates an aggregator
func NewAggregator(logger *slog.Logger) *Aggregator {
	return &Aggregator{logger: infrastructure.WithComponent(logger, "aggregator")}
}

// group is the set of rows sharing one key
type group struct {
	key  []any
	rows []int
}

// requireColumns resolves names, reporting every absent one at once
func requireColumns(table *domain.Table, names ...string) ([]*domain.Column, error) {
	cols := make([]*domain.Column, 0, len(names))
	var missing []string
	for _, name := range names {
		col, ok := table.Column(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols = append(cols, col)
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingColumnsError(missing).WithContext("available_columns", table.ColumnNames())
	}
	return cols, nil
}

// groupRows partitions rows by the values of keys, ordered by key ascending.
// Rows with a missing key cell are dropped.
func groupRows(keys []*domain.Column, n int) []group {
	index := make(map[string]int)
	var groups []group

	for row := 0; row < n; row++ {
		key := make([]any, len(keys))
		id := ""
		complete := true
		for k, col := range keys {
			v := col.Values[row]
			if v == nil {
				complete = false
				break
			}
			key[k] = v
			id += domain.FormatValue(v) + "\x1f"
		}
		if !complete {
			continue
		}
		g, ok := index[id]
		if !ok {
			g = len(groups)
			index[id] = g
			groups = append(groups, group{key: key})
		}
		groups[g].rows = append(groups[g].rows, row)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		for k := range keys {
			if c := compareValues(groups[a].key[k], groups[b].key[k]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return groups
}

// compareValues orders two non-missing cells of the same column
func compareValues(a, b any) int {
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmpOrdered(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return cmpOrdered(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			return cmpOrdered(boolRank(x), boolRank(y))
		}
	}
	return cmpOrdered(domain.FormatValue(a), domain.FormatValue(b))
}

func cmpOrdered[T int | int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// aggOutputType is the column type produced by fn over a column of typ
func aggOutputType(typ domain.ColumnType, fn AggFunc) domain.ColumnType {
	switch fn {
	case AggCount, AggNUnique:
		return domain.TypeInteger
	case AggSum:
		if typ == domain.TypeInteger {
			return domain.TypeInteger
		}
		return domain.TypeFloat
	case AggMean, AggMedian, AggStd:
		return domain.TypeFloat
	default:
		return typ
	}
}

// aggregate reduces the non-missing cells of col at rows with fn
func aggregate(col *domain.Column, rows []int, fn AggFunc) any {
	present := make([]any, 0, len(rows))
	for _, r := range rows {
		if v := col.Values[r]; v != nil {
			present = append(present, v)
		}
	}

	switch fn {
	case AggCount:
		return int64(len(present))
	case AggNUnique:
		seen := make(map[string]struct{}, len(present))
		for _, v := range present {
			seen[domain.FormatValue(v)] = struct{}{}
		}
		return int64(len(seen))
	case AggFirst:
		if len(present) == 0 {
			return nil
		}
		return present[0]
	case AggLast:
		if len(present) == 0 {
			return nil
		}
		return present[len(present)-1]
	case AggMin, AggMax:
		if len(present) == 0 {
			return nil
		}
		best := present[0]
		for _, v := range present[1:] {
			c := compareValues(v, best)
			if (fn == AggMin && c < 0) || (fn == AggMax && c > 0) {
				best = v
			}
		}
		return best
	}

	values := make([]float64, 0, len(present))
	var intSum int64
	for _, v := range present {
		switch x := v.(type) {
		case int64:
			values = append(values, float64(x))
			intSum += x
		case float64:
			values = append(values, x)
		}
	}

	switch fn {
	case AggSum:
		if col.Type == domain.TypeInteger {
			return intSum
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case AggMean:
		if len(values) == 0 {
			return nil
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case AggMedian:
		if len(values) == 0 {
			return nil
		}
		return statistics.Median(values)
	case AggStd:
		if len(values) < 2 {
			return nil
		}
		_, std := statistics.MeanStd(values)
		return std
	}
	return nil
}

// checkSpecs validates aggregation specs against the table
func checkSpecs(table *domain.Table, specs []AggSpec) ([]*domain.Column, error) {
	if len(specs) == 0 {
		return nil, apperrors.NewAppValidationError("at least one aggregation is required")
	}
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Column
	}
	cols, err := requireColumns(table, names...)
	if err != nil {
		return nil, err
	}
	for i, s := range specs {
		if len(s.Funcs) == 0 {
			return nil, apperrors.NewAppValidationError(fmt.Sprintf("no aggregation given for column %q", s.Column))
		}
		for _, fn := range s.Funcs {
			if fn.numericOnly() && !cols[i].Type.IsNumeric() {
				return nil, apperrors.NewColumnTypeError(s.Column, "numeric", string(cols[i].Type)).
					WithContext("aggregation", fn.String())
			}
		}
	}
	return cols, nil
}

// GroupBy aggregates value columns per distinct combination of groupColumns.
// Output columns are the group columns followed by {column}_{func} for each
// spec. Groups are ordered by key; when sortBy names an output column the
// result is stably re-sorted by it, missing values last.
func (a *Aggregator) GroupBy(table *domain.Table, groupColumns []string, specs []AggSpec, sortBy string, ascending bool) (*domain.AggregationResult, error) {
	start := time.Now()
	if len(groupColumns) == 0 {
		return nil, apperrors.NewAppValidationError("at least one group column is required")
	}

	keys, err := requireColumns(table, groupColumns...)
	if err != nil {
		return nil, err
	}
	valueCols, err := checkSpecs(table, specs)
	if err != nil {
		return nil, err
	}

	groups := groupRows(keys, table.NumRows())

	columns := make([]*domain.Column, 0, len(keys)+len(specs))
	for k, key := range keys {
		values := make([]any, len(groups))
		for g := range groups {
			values[g] = groups[g].key[k]
		}
		columns = append(columns, &domain.Column{Name: key.Name, Type: key.Type, Values: values})
	}

	aggregations := make([]domain.Aggregation, len(specs))
	for i, spec := range specs {
		col := valueCols[i]
		aggregations[i] = domain.Aggregation{Column: spec.Column}
		for _, fn := range spec.Funcs {
			values := make([]any, len(groups))
			for g := range groups {
				values[g] = aggregate(col, groups[g].rows, fn)
			}
			columns = append(columns, &domain.Column{
				Name:   fmt.Sprintf("%s_%s", spec.Column, fn),
				Type:   aggOutputType(col.Type, fn),
				Values: values,
			})
			aggregations[i].Functions = append(aggregations[i].Functions, fn.String())
		}
	}

	out, err := domain.NewTable(columns...)
	if err != nil {
		return nil, apperrors.NewStructuralError(err.Error())
	}

	if sortBy != "" {
		if out.HasColumn(sortBy) {
			out = sortTable(out, sortBy, ascending)
		} else {
			a.logger.Debug("sort column not in result, order kept", slog.String("sort_by", sortBy))
		}
	}

	a.logger.Info("group by finished",
		slog.Any("group_columns", groupColumns),
		slog.Int("groups", len(groups)),
		slog.Duration("duration", time.Since(start)))

	return &domain.AggregationResult{
		Table:        out,
		GroupKeys:    groupColumns,
		Aggregations: aggregations,
	}, nil
}

// sortTable returns the rows of table stably ordered by column, missing last
func sortTable(table *domain.Table, column string, ascending bool) *domain.Table {
	col, _ := table.Column(column)
	order := make([]int, table.NumRows())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		a, b := col.Values[order[x]], col.Values[order[y]]
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		c := compareValues(a, b)
		if ascending {
			return c < 0
		}
		return c > 0
	})
	return reorder(table, order)
}

// reorder builds a table from the given row positions
func reorder(table *domain.Table, rows []int) *domain.Table {
	cols := make([]*domain.Column, table.NumCols())
	for i, c := range table.Columns() {
		values := make([]any, len(rows))
		for j, r := range rows {
			values[j] = c.Values[r]
		}
		cols[i] = &domain.Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return domain.MustNewTable(cols...)
}

// PivotTable spreads the distinct values of columns into output columns and
// aggregates values per (index, column) cell. Cells without rows are
// fillValue when given, missing otherwise.
func (a *Aggregator) PivotTable(table *domain.Table, index, columns, values string, aggfunc AggFunc, fillValue *float64) (*domain.Table, error) {
	cols, err := requireColumns(table, index, columns, values)
	if err != nil {
		return nil, err
	}
	indexCol, pivotCol, valueCol := cols[0], cols[1], cols[2]
	if aggfunc.numericOnly() && !valueCol.Type.IsNumeric() {
		return nil, apperrors.NewColumnTypeError(values, "numeric", string(valueCol.Type))
	}

	rowGroups := groupRows([]*domain.Column{indexCol}, table.NumRows())
	colGroups := groupRows([]*domain.Column{pivotCol}, table.NumRows())

	rowOf := make(map[int]int)
	for g, grp := range rowGroups {
		for _, r := range grp.rows {
			rowOf[r] = g
		}
	}

	out := make([]*domain.Column, 0, len(colGroups)+1)
	keyValues := make([]any, len(rowGroups))
	for g, grp := range rowGroups {
		keyValues[g] = grp.key[0]
	}
	out = append(out, &domain.Column{Name: index, Type: indexCol.Type, Values: keyValues})
	names := newColumnNamer(index)

	for _, cg := range colGroups {
		cells := make([][]int, len(rowGroups))
		for _, r := range cg.rows {
			if g, ok := rowOf[r]; ok {
				cells[g] = append(cells[g], r)
			}
		}

		cellValues := make([]any, len(rowGroups))
		for g, rows := range cells {
			if len(rows) == 0 {
				if fillValue != nil {
					cellValues[g] = *fillValue
				}
				continue
			}
			if f, ok := toFloat(aggregate(valueCol, rows, aggfunc)); ok {
				cellValues[g] = f
			} else if fillValue != nil {
				cellValues[g] = *fillValue
			}
		}
		out = append(out, &domain.Column{
			Name:   names.next(domain.FormatValue(cg.key[0])),
			Type:   domain.TypeFloat,
			Values: cellValues,
		})
	}

	result, err := domain.NewTable(out...)
	if err != nil {
		return nil, apperrors.NewStructuralError(err.Error())
	}

	a.logger.Info("pivot table created",
		slog.String("index", index),
		slog.String("columns", columns),
		slog.Int("rows", result.NumRows()),
		slog.Int("cols", result.NumCols()))
	return result, nil
}

// columnNamer hands out column names derived from data values. A name
// already taken, such as the index column, gets a .1, .2 ... suffix.
type columnNamer struct {
	used map[string]bool
}

func newColumnNamer(taken ...string) *columnNamer {
	n := &columnNamer{used: make(map[string]bool, len(taken))}
	for _, name := range taken {
		n.used[name] = true
	}
	return n
}

func (n *columnNamer) next(base string) string {
	name := base
	for i := 1; n.used[name]; i++ {
		name = fmt.Sprintf("%s.%d", base, i)
	}
	n.used[name] = true
	return name
}

// toFloat converts a numeric aggregate to float64
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// CrossTab counts the co-occurrences of two columns. With normalize the
// counts become percentages of the grand total.
func (a *Aggregator) CrossTab(table *domain.Table, rowColumn, colColumn string, normalize bool) (*domain.Table, error) {
	cols, err := requireColumns(table, rowColumn, colColumn)
	if err != nil {
		return nil, err
	}

	rowGroups := groupRows([]*domain.Column{cols[0]}, table.NumRows())
	colGroups := groupRows([]*domain.Column{cols[1]}, table.NumRows())

	rowOf := make(map[int]int)
	for g, grp := range rowGroups {
		for _, r := range grp.rows {
			rowOf[r] = g
		}
	}

	counts := make([][]int64, len(colGroups))
	var total int64
	for c, cg := range colGroups {
		counts[c] = make([]int64, len(rowGroups))
		for _, r := range cg.rows {
			if g, ok := rowOf[r]; ok {
				counts[c][g]++
				total++
			}
		}
	}

	keyValues := make([]any, len(rowGroups))
	for g, grp := range rowGroups {
		keyValues[g] = grp.key[0]
	}
	out := []*domain.Column{{Name: rowColumn, Type: cols[0].Type, Values: keyValues}}
	names := newColumnNamer(rowColumn)

	for c, cg := range colGroups {
		values := make([]any, len(rowGroups))
		typ := domain.TypeInteger
		for g, n := range counts[c] {
			if normalize {
				typ = domain.TypeFloat
				pct := 0.0
				if total > 0 {
					pct = float64(n) / float64(total) * 100
				}
				values[g] = pct
				continue
			}
			values[g] = n
		}
		out = append(out, &domain.Column{Name: names.next(domain.FormatValue(cg.key[0])), Type: typ, Values: values})
	}

	result, err := domain.NewTable(out...)
	if err != nil {
		return nil, apperrors.NewStructuralError(err.Error())
	}
	a.logger.Debug("cross tab created",
		slog.String("rows", rowColumn),
		slog.String("columns", colColumn),
		slog.Bool("normalized", normalize))
	return result, nil
}
