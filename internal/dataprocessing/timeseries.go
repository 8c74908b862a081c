package dataprocessing

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	apperrors "salespulse/internal/errors"
	"salespulse/pkg/contracts/domain"
)

// ResampleTimeSeries aggregates rows into calendar buckets of freq. Every
// bucket between the first and last dated row is emitted, labelled by its
// start. Empty buckets hold 0 for sum, count and nunique and are missing for
// the other functions until fill propagates neighbouring values. Rows whose
// date is missing or unparseable are dropped.
func (a *Aggregator) ResampleTimeSeries(table *domain.Table, dateColumn string, freq Frequency, specs []AggSpec, fill FillMethod) (*domain.Table, error) {
	dates, valid, err := timestamps(table, dateColumn)
	if err != nil {
		return nil, err
	}
	valueCols, err := checkSpecs(table, specs)
	if err != nil {
		return nil, err
	}

	var first, last time.Time
	dated := 0
	starts := make([]time.Time, len(dates))
	for i, ts := range dates {
		if !valid[i] {
			continue
		}
		starts[i] = freq.PeriodStart(ts)
		if dated == 0 || starts[i].Before(first) {
			first = starts[i]
		}
		if dated == 0 || starts[i].After(last) {
			last = starts[i]
		}
		dated++
	}
	if dated == 0 {
		return nil, apperrors.NewInsufficientDataError(fmt.Sprintf("column %q has no parseable dates", dateColumn)).
			WithContext("column", dateColumn)
	}

	var buckets []time.Time
	position := make(map[int64]int)
	for b := first; !b.After(last); b = freq.Next(b) {
		position[b.Unix()] = len(buckets)
		buckets = append(buckets, b)
	}

	rows := make([][]int, len(buckets))
	for i := range dates {
		if valid[i] {
			p, ok := position[starts[i].Unix()]
			if !ok {
				return nil, apperrors.NewComputationError(
					fmt.Sprintf("row %d of %q falls outside the resampled periods", i, dateColumn), nil)
			}
			rows[p] = append(rows[p], i)
		}
	}

	labels := make([]any, len(buckets))
	for i, b := range buckets {
		labels[i] = b
	}
	out := []*domain.Column{{Name: dateColumn, Type: domain.TypeTimestamp, Values: labels}}

	for i, spec := range specs {
		for _, fn := range spec.Funcs {
			values := make([]any, len(buckets))
			for b := range buckets {
				values[b] = aggregate(valueCols[i], rows[b], fn)
			}
			col := &domain.Column{
				Name:   fmt.Sprintf("%s_%s", spec.Column, fn),
				Type:   aggOutputType(valueCols[i].Type, fn),
				Values: values,
			}
			if fill != FillNone && !fn.zeroWhenEmpty() {
				fillDirectional(col, fill == FillForward)
			}
			out = append(out, col)
		}
	}

	result, err := domain.NewTable(out...)
	if err != nil {
		return nil, apperrors.NewStructuralError(err.Error())
	}

	a.logger.Info("time series resampled",
		slog.String("date_column", dateColumn),
		slog.String("frequency", freq.String()),
		slog.Int("periods", len(buckets)),
		slog.Int("undated_rows", table.NumRows()-dated))
	return result, nil
}

// TrendAnalysis reports revenue, quantity and transaction counts per period
// together with period-over-period change and a trailing three-period
// revenue average. Changes are missing for the first period and whenever the
// previous value is zero.
func (a *Aggregator) TrendAnalysis(table *domain.Table, dateColumn string, freq Frequency) (*domain.Table, error) {
	sales, err := withRevenue(table)
	if err != nil {
		return nil, err
	}
	if _, err := requireColumns(sales, domain.ColumnQuantity); err != nil {
		return nil, err
	}

	resampled, err := a.ResampleTimeSeries(sales, dateColumn, freq, []AggSpec{
		{Column: domain.ColumnRevenue, Funcs: []AggFunc{AggSum}},
		{Column: domain.ColumnQuantity, Funcs: []AggFunc{AggSum}},
		{Column: dateColumn, Funcs: []AggFunc{AggCount}},
	}, FillNone)
	if err != nil {
		return nil, err
	}

	trend := renameColumns(resampled, "period", "revenue_total", "quantity_total", "transaction_count")
	revenue, _ := trend.Column("revenue_total")
	quantity, _ := trend.Column("quantity_total")

	_ = trend.AddColumn(percentChange("revenue_change_pct", revenue))
	_ = trend.AddColumn(percentChange("quantity_change_pct", quantity))
	_ = trend.AddColumn(movingAverage("revenue_ma3", revenue, 3))

	a.logger.Info("trend analysis computed",
		slog.String("frequency", freq.String()),
		slog.Int("periods", trend.NumRows()))
	return trend, nil
}

// percentChange is (x[i] - x[i-1]) / x[i-1] * 100
func percentChange(name string, col *domain.Column) *domain.Column {
	values := make([]any, col.Len())
	for i := 1; i < col.Len(); i++ {
		prev, okPrev := col.Float(i - 1)
		cur, okCur := col.Float(i)
		if !okPrev || !okCur || prev == 0 {
			continue
		}
		values[i] = (cur - prev) / prev * 100
	}
	return &domain.Column{Name: name, Type: domain.TypeFloat, Values: values}
}

// movingAverage is the trailing mean over window rows, missing until the
// window is full or when any value in it is missing
func movingAverage(name string, col *domain.Column, window int) *domain.Column {
	values := make([]any, col.Len())
	for i := window - 1; i < col.Len(); i++ {
		var sum float64
		complete := true
		for j := i - window + 1; j <= i; j++ {
			v, ok := col.Float(j)
			if !ok {
				complete = false
				break
			}
			sum += v
		}
		if complete {
			values[i] = sum / float64(window)
		}
	}
	return &domain.Column{Name: name, Type: domain.TypeFloat, Values: values}
}

// renameColumns returns a shallow copy of table with columns renamed in order
func renameColumns(table *domain.Table, names ...string) *domain.Table {
	cols := make([]*domain.Column, table.NumCols())
	for i, c := range table.Columns() {
		name := c.Name
		if i < len(names) {
			name = names[i]
		}
		cols[i] = &domain.Column{Name: name, Type: c.Type, Values: c.Values}
	}
	return domain.MustNewTable(cols...)
}

type cohortCell struct {
	cohort    int
	age       int
	customers map[string]struct{}
	revenue   float64
	count     int64
}

// CohortAnalysis groups customers by the month of their first purchase and
// follows them across later months. Output columns are cohort (YYYY-MM),
// cohort_age in months, distinct customers, and revenue when price and
// quantity are available or transactions otherwise.
func (a *Aggregator) CohortAnalysis(table *domain.Table, dateColumn, customerColumn string) (*domain.Table, error) {
	dates, valid, err := timestamps(table, dateColumn)
	if err != nil {
		return nil, err
	}
	customers, err := requireColumns(table, customerColumn)
	if err != nil {
		return nil, err
	}
	customer := customers[0]

	sales, revErr := withRevenue(table)
	var revenue *domain.Column
	if revErr == nil {
		revenue, _ = sales.Column(domain.ColumnRevenue)
	}

	monthIndex := func(t time.Time) int { return t.Year()*12 + int(t.Month()) - 1 }

	firstPurchase := make(map[string]int)
	for i := range dates {
		id, ok := customer.Str(i)
		if !valid[i] || !ok {
			continue
		}
		m := monthIndex(dates[i])
		if prev, seen := firstPurchase[id]; !seen || m < prev {
			firstPurchase[id] = m
		}
	}
	if len(firstPurchase) == 0 {
		return nil, apperrors.NewInsufficientDataError("no dated purchases with a customer")
	}

	cells := make(map[[2]int]*cohortCell)
	for i := range dates {
		id, ok := customer.Str(i)
		if !valid[i] || !ok {
			continue
		}
		cohort := firstPurchase[id]
		age := monthIndex(dates[i]) - cohort
		key := [2]int{cohort, age}
		cell, exists := cells[key]
		if !exists {
			cell = &cohortCell{cohort: cohort, age: age, customers: make(map[string]struct{})}
			cells[key] = cell
		}
		cell.customers[id] = struct{}{}
		cell.count++
		if revenue != nil {
			if v, ok := revenue.Float(i); ok {
				cell.revenue += v
			}
		}
	}

	ordered := make([]*cohortCell, 0, len(cells))
	for _, cell := range cells {
		ordered = append(ordered, cell)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].cohort != ordered[j].cohort {
			return ordered[i].cohort < ordered[j].cohort
		}
		return ordered[i].age < ordered[j].age
	})

	n := len(ordered)
	cohortValues := make([]any, n)
	ageValues := make([]any, n)
	customerValues := make([]any, n)
	measureValues := make([]any, n)
	for i, cell := range ordered {
		cohortValues[i] = fmt.Sprintf("%04d-%02d", cell.cohort/12, cell.cohort%12+1)
		ageValues[i] = int64(cell.age)
		customerValues[i] = int64(len(cell.customers))
		if revenue != nil {
			measureValues[i] = cell.revenue
		} else {
			measureValues[i] = cell.count
		}
	}

	measure := &domain.Column{Name: domain.ColumnRevenue, Type: domain.TypeFloat, Values: measureValues}
	if revenue == nil {
		measure = &domain.Column{Name: "transactions", Type: domain.TypeInteger, Values: measureValues}
		a.logger.Debug("revenue unavailable, counting transactions", slog.String("reason", revErr.Error()))
	}

	result := domain.MustNewTable(
		&domain.Column{Name: "cohort", Type: domain.TypeText, Values: cohortValues},
		&domain.Column{Name: "cohort_age", Type: domain.TypeInteger, Values: ageValues},
		&domain.Column{Name: "customers", Type: domain.TypeInteger, Values: customerValues},
		measure,
	)

	a.logger.Info("cohort analysis computed",
		slog.Int("cohorts", len(distinctCohorts(ordered))),
		slog.Int("rows", n))
	return result, nil
}

func distinctCohorts(cells []*cohortCell) map[int]struct{} {
	out := make(map[int]struct{})
	for _, c := range cells {
		out[c.cohort] = struct{}{}
	}
	return out
}
