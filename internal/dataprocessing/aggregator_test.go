package dataprocessing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "salespulse/internal/errors"
	"salespulse/internal/shared/testutil"
	"salespulse/pkg/contracts/domain"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	return NewAggregator(logger)
}

func columnValues(t *testing.T, table *domain.Table, name string) []any {
	t.Helper()
	col, ok := table.Column(name)
	require.True(t, ok, "column %s", name)
	return col.Values
}

func TestGroupBy(t *testing.T) {
	a := newTestAggregator(t)
	table := testutil.DefaultSalesTable()
	specs := []AggSpec{
		{Column: domain.ColumnQuantity, Funcs: []AggFunc{AggSum}},
		{Column: domain.ColumnPrice, Funcs: []AggFunc{AggMean, AggMax}},
	}

	t.Run("groups ordered by key", func(t *testing.T) {
		result, err := a.GroupBy(table, []string{domain.ColumnCategory}, specs, "", true)
		require.NoError(t, err)

		out := result.Table
		assert.Equal(t, []string{"category", "quantity_sum", "price_mean", "price_max"}, out.ColumnNames())
		assert.Equal(t, []any{"Electronics", "Furniture", "Stationery"}, columnValues(t, out, "category"))
		assert.Equal(t, []any{int64(9), int64(3), int64(30)}, columnValues(t, out, "quantity_sum"))
		assert.Equal(t, []any{512.5, 225.0, 3.5}, columnValues(t, out, "price_mean"))
		assert.Equal(t, []any{1000.0, 300.0, 5.0}, columnValues(t, out, "price_max"))

		assert.Equal(t, []string{domain.ColumnCategory}, result.GroupKeys)
		assert.Equal(t, []domain.Aggregation{
			{Column: "quantity", Functions: []string{"sum"}},
			{Column: "price", Functions: []string{"mean", "max"}},
		}, result.Aggregations)
	})

	t.Run("sorted by an aggregate", func(t *testing.T) {
		result, err := a.GroupBy(table, []string{domain.ColumnCategory}, specs, "quantity_sum", false)
		require.NoError(t, err)
		assert.Equal(t, []any{"Stationery", "Electronics", "Furniture"}, columnValues(t, result.Table, "category"))
	})

	t.Run("unknown sort column keeps key order", func(t *testing.T) {
		result, err := a.GroupBy(table, []string{domain.ColumnCategory}, specs, "nope", false)
		require.NoError(t, err)
		assert.Equal(t, []any{"Electronics", "Furniture", "Stationery"}, columnValues(t, result.Table, "category"))
	})

	t.Run("rows with missing key are dropped", func(t *testing.T) {
		withGap := domain.MustNewTable(
			domain.NewColumn("k", domain.TypeText, []any{"b", nil, "a", "b"}),
			domain.NewIntColumn("v", []int64{1, 2, 3, 4}),
		)
		result, err := a.GroupBy(withGap, []string{"k"}, []AggSpec{{Column: "v", Funcs: []AggFunc{AggCount, AggFirst, AggLast}}}, "", true)
		require.NoError(t, err)

		assert.Equal(t, []any{"a", "b"}, columnValues(t, result.Table, "k"))
		assert.Equal(t, []any{int64(1), int64(2)}, columnValues(t, result.Table, "v_count"))
		assert.Equal(t, []any{int64(3), int64(1)}, columnValues(t, result.Table, "v_first"))
		assert.Equal(t, []any{int64(3), int64(4)}, columnValues(t, result.Table, "v_last"))
	})

	t.Run("std needs two values", func(t *testing.T) {
		small := domain.MustNewTable(
			domain.NewTextColumn("k", []string{"a", "b", "b"}),
			domain.NewFloatColumn("v", []float64{1, 2, 4}),
		)
		result, err := a.GroupBy(small, []string{"k"}, []AggSpec{{Column: "v", Funcs: []AggFunc{AggStd, AggMedian, AggNUnique}}}, "", true)
		require.NoError(t, err)

		std := columnValues(t, result.Table, "v_std")
		assert.Nil(t, std[0])
		assert.InDelta(t, 1.4142135, std[1], 1e-6)
		assert.Equal(t, []any{1.0, 3.0}, columnValues(t, result.Table, "v_median"))
		assert.Equal(t, []any{int64(1), int64(2)}, columnValues(t, result.Table, "v_nunique"))
	})

	t.Run("errors", func(t *testing.T) {
		_, err := a.GroupBy(table, []string{"region"}, specs, "", true)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStructural))

		_, err = a.GroupBy(table, []string{domain.ColumnCategory}, []AggSpec{{Column: domain.ColumnProduct, Funcs: []AggFunc{AggSum}}}, "", true)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeType))

		_, err = a.GroupBy(table, nil, specs, "", true)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

		_, err = a.GroupBy(table, []string{domain.ColumnCategory}, nil, "", true)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
	})
}

func TestPivotTable(t *testing.T) {
	a := newTestAggregator(t)
	table := testutil.DefaultSalesTable()

	out, err := a.PivotTable(table, domain.ColumnCategory, domain.ColumnSource, domain.ColumnQuantity, AggSum, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"category", "Online", "Store"}, out.ColumnNames())
	assert.Equal(t, []any{5.0, 2.0, nil}, columnValues(t, out, "Online"))
	assert.Equal(t, []any{4.0, 1.0, 30.0}, columnValues(t, out, "Store"))

	zero := 0.0
	filled, err := a.PivotTable(table, domain.ColumnCategory, domain.ColumnSource, domain.ColumnQuantity, AggSum, &zero)
	require.NoError(t, err)
	assert.Equal(t, []any{5.0, 2.0, 0.0}, columnValues(t, filled, "Online"))

	_, err = a.PivotTable(table, domain.ColumnCategory, domain.ColumnSource, domain.ColumnCity, AggMean, nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeType))
}

func TestCrossTab(t *testing.T) {
	a := newTestAggregator(t)
	table := testutil.DefaultSalesTable()

	counts, err := a.CrossTab(table, domain.ColumnCity, domain.ColumnSource, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"Baghdad", "Basra", "Erbil"}, columnValues(t, counts, "city"))
	assert.Equal(t, []any{int64(2), int64(1), int64(1)}, columnValues(t, counts, "Online"))
	assert.Equal(t, []any{int64(2), int64(1), int64(1)}, columnValues(t, counts, "Store"))

	shares, err := a.CrossTab(table, domain.ColumnCity, domain.ColumnSource, true)
	require.NoError(t, err)
	assert.Equal(t, []any{25.0, 12.5, 12.5}, columnValues(t, shares, "Online"))
}

func TestPivotColumnsNamedLikeIndex(t *testing.T) {
	a := newTestAggregator(t)
	table := domain.MustNewTable(
		domain.NewTextColumn("kind", []string{"a", "a", "b"}),
		domain.NewTextColumn("label", []string{"kind", "x", "kind"}),
		domain.NewFloatColumn("v", []float64{1, 2, 3}),
	)

	pivot, err := a.PivotTable(table, "kind", "label", "v", AggSum, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"kind", "kind.1", "x"}, pivot.ColumnNames())
	assert.Equal(t, []any{"a", "b"}, columnValues(t, pivot, "kind"))
	assert.Equal(t, []any{1.0, 3.0}, columnValues(t, pivot, "kind.1"))

	counts, err := a.CrossTab(table, "kind", "label", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"kind", "kind.1", "x"}, counts.ColumnNames())
	assert.Equal(t, []any{int64(1), int64(1)}, columnValues(t, counts, "kind.1"))
}

func TestResampleTimeSeries(t *testing.T) {
	a := newTestAggregator(t)
	table := domain.MustNewTable(
		domain.NewTextColumn("date", []string{"2024-01-10", "2024-03-05", "bogus", "2024-01-20"}),
		domain.NewFloatColumn("v", []float64{1, 2, 100, 3}),
	)
	specs := []AggSpec{{Column: "v", Funcs: []AggFunc{AggSum, AggMean}}}

	out, err := a.ResampleTimeSeries(table, "date", Monthly, specs, FillNone)
	require.NoError(t, err)

	assert.Equal(t, []any{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}, columnValues(t, out, "date"))
	assert.Equal(t, []any{4.0, 0.0, 2.0}, columnValues(t, out, "v_sum"))
	assert.Equal(t, []any{2.0, nil, 2.0}, columnValues(t, out, "v_mean"))

	filled, err := a.ResampleTimeSeries(table, "date", Monthly, specs, FillForward)
	require.NoError(t, err)
	assert.Equal(t, []any{2.0, 2.0, 2.0}, columnValues(t, filled, "v_mean"))
	assert.Equal(t, []any{4.0, 0.0, 2.0}, columnValues(t, filled, "v_sum"))

	_, err = a.ResampleTimeSeries(table, "v", Monthly, specs, FillNone)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeType))
}

func TestResampleTimeSeriesMixedOffsets(t *testing.T) {
	a := newTestAggregator(t)
	table := domain.MustNewTable(
		domain.NewTextColumn(domain.ColumnDate, []string{"2024-03-15T10:00:00+01:00", "2024-04-15T10:00:00+02:00"}),
		domain.NewFloatColumn(domain.ColumnPrice, []float64{100, 50}),
		domain.NewIntColumn(domain.ColumnQuantity, []int64{1, 1}),
	)

	out, err := a.ResampleTimeSeries(table, domain.ColumnDate, Monthly,
		[]AggSpec{{Column: domain.ColumnPrice, Funcs: []AggFunc{AggSum}}}, FillNone)
	require.NoError(t, err)
	assert.Equal(t, []any{
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}, columnValues(t, out, domain.ColumnDate))
	assert.Equal(t, []any{100.0, 50.0}, columnValues(t, out, "price_sum"))

	trend, err := a.TrendAnalysis(table, domain.ColumnDate, Monthly)
	require.NoError(t, err)
	assert.Equal(t, []any{100.0, 50.0}, columnValues(t, trend, "revenue_total"))
}

func TestFrequencyPeriodStartKeepsLocalCalendarDate(t *testing.T) {
	// 00:30 on March 1st at +02:00 is still February in UTC
	ts := time.Date(2024, 3, 1, 0, 30, 0, 0, time.FixedZone("EET", 2*60*60))

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Monthly.PeriodStart(ts))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Daily.PeriodStart(ts))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Quarterly.PeriodStart(ts))
}

func TestFrequencyPeriodStart(t *testing.T) {
	ts := time.Date(2024, 5, 15, 13, 30, 0, 0, time.UTC) // Wednesday

	tests := []struct {
		freq Frequency
		want time.Time
	}{
		{Daily, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)},
		{Weekly, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)},
		{Monthly, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{Quarterly, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{Yearly, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.freq.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.freq.PeriodStart(ts))

			parsed, err := ParseFrequency(tt.freq.String())
			require.NoError(t, err)
			assert.Equal(t, tt.freq, parsed)
		})
	}
}

func TestCalculateKPIs(t *testing.T) {
	a := newTestAggregator(t)

	t.Run("revenue from price and quantity", func(t *testing.T) {
		table := domain.MustNewTable(
			domain.NewFloatColumn(domain.ColumnPrice, []float64{10, 20}),
			domain.NewIntColumn(domain.ColumnQuantity, []int64{2, 1}),
		)

		kpis := a.CalculateKPIs(table)

		assert.Equal(t, 40.0, kpis.RevenueTotal)
		assert.Equal(t, 2, kpis.TransactionCount)
		assert.Equal(t, 20.0, kpis.AverageBasket)
		assert.Equal(t, int64(3), kpis.TotalQuantity)
		assert.Equal(t, 15.0, kpis.AveragePrice)
		assert.Equal(t, []string{"product", "category", "city"}, kpis.MissingInputs)
	})

	t.Run("full sales table", func(t *testing.T) {
		kpis := a.CalculateKPIs(testutil.DefaultSalesTable())

		assert.Equal(t, 3840.0, kpis.RevenueTotal)
		assert.Equal(t, 8, kpis.TransactionCount)
		assert.Equal(t, 480.0, kpis.AverageBasket)
		assert.Equal(t, int64(42), kpis.TotalQuantity)
		assert.InDelta(t, 313.375, kpis.AveragePrice, 1e-9)
		assert.Equal(t, 6, kpis.UniqueProducts)
		assert.Equal(t, 3, kpis.UniqueCategories)
		assert.Equal(t, 3, kpis.UniqueCities)
		assert.Empty(t, kpis.MissingInputs)
	})

	t.Run("empty inputs default to zero", func(t *testing.T) {
		kpis := a.CalculateKPIs(domain.MustNewTable(domain.NewTextColumn("note", []string{"x"})))
		assert.Zero(t, kpis.RevenueTotal)
		assert.Equal(t, 1, kpis.TransactionCount)
		assert.Len(t, kpis.MissingInputs, 5)
	})
}

func TestSalesBreakdowns(t *testing.T) {
	a := newTestAggregator(t)
	table := testutil.DefaultSalesTable()

	t.Run("by category", func(t *testing.T) {
		out, err := a.SalesByCategory(table)
		require.NoError(t, err)

		assert.Equal(t, []string{"category", "revenue_total", "quantity_total", "average_price", "transaction_count", "revenue_pct"}, out.ColumnNames())
		assert.Equal(t, []any{"Electronics", "Furniture", "Stationery"}, columnValues(t, out, "category"))
		assert.Equal(t, []any{3150.0, 600.0, 90.0}, columnValues(t, out, "revenue_total"))
		assert.Equal(t, []any{int64(9), int64(3), int64(30)}, columnValues(t, out, "quantity_total"))
		assert.Equal(t, []any{int64(4), int64(2), int64(2)}, columnValues(t, out, "transaction_count"))

		share, _ := out.Column("revenue_pct")
		var total float64
		for _, v := range share.Floats() {
			total += v
		}
		assert.InDelta(t, 100, total, 0.05)
		assert.Equal(t, 82.03, share.Values[0])
	})

	t.Run("by city", func(t *testing.T) {
		out, err := a.SalesByCity(table)
		require.NoError(t, err)

		assert.Equal(t, []any{"Erbil", "Baghdad", "Basra"}, columnValues(t, out, "city"))
		assert.Equal(t, []any{2040.0, 1400.0, 400.0}, columnValues(t, out, "revenue_total"))
		assert.Equal(t, []any{int64(2), int64(4), int64(2)}, columnValues(t, out, "unique_products"))
	})

	t.Run("by source", func(t *testing.T) {
		out, err := a.SalesBySource(table)
		require.NoError(t, err)

		assert.Equal(t, []any{"Online", "Store"}, columnValues(t, out, "source"))
		assert.Equal(t, []any{3350.0, 490.0}, columnValues(t, out, "revenue_total"))
		assert.Equal(t, []any{int64(4), int64(4)}, columnValues(t, out, "transaction_count"))
	})

	t.Run("missing inputs", func(t *testing.T) {
		noPrice := domain.MustNewTable(domain.NewTextColumn("category", []string{"a"}))
		_, err := a.SalesByCategory(noPrice)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MissingColumns")
		assert.Contains(t, err.Error(), "price")
	})
}

func TestTopProducts(t *testing.T) {
	a := newTestAggregator(t)
	table := testutil.DefaultSalesTable()

	t.Run("by revenue with stable ties", func(t *testing.T) {
		out, err := a.TopProducts(table, 3, RankByRevenue)
		require.NoError(t, err)

		assert.Equal(t, []string{"product", "revenue_total", "quantity_total", "average_price"}, out.ColumnNames())
		assert.Equal(t, []any{"Laptop", "Chair", "Desk"}, columnValues(t, out, "product"))
		assert.Equal(t, []any{3000.0, 300.0, 300.0}, columnValues(t, out, "revenue_total"))
	})

	t.Run("two rows", func(t *testing.T) {
		small := domain.MustNewTable(
			domain.NewTextColumn(domain.ColumnProduct, []string{"B", "A"}),
			domain.NewFloatColumn(domain.ColumnPrice, []float64{5, 5}),
			domain.NewIntColumn(domain.ColumnQuantity, []int64{2, 2}),
		)
		out, err := a.TopProducts(small, 10, RankByRevenue)
		require.NoError(t, err)
		assert.Equal(t, []any{"A", "B"}, columnValues(t, out, "product"))
	})

	t.Run("by quantity", func(t *testing.T) {
		out, err := a.TopProducts(table, 2, RankByQuantity)
		require.NoError(t, err)
		assert.Equal(t, []any{"Pen", "Notebook"}, columnValues(t, out, "product"))
	})

	t.Run("rejects non positive n", func(t *testing.T) {
		_, err := a.TopProducts(table, 0, RankByRevenue)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
	})
}

func TestTrendAnalysis(t *testing.T) {
	a := newTestAggregator(t)
	table := domain.MustNewTable(
		domain.NewTextColumn(domain.ColumnDate, []string{"2024-01-10", "2024-02-10", "2024-03-10"}),
		domain.NewFloatColumn(domain.ColumnPrice, []float64{100, 150, 90}),
		domain.NewIntColumn(domain.ColumnQuantity, []int64{1, 1, 1}),
	)

	out, err := a.TrendAnalysis(table, domain.ColumnDate, Monthly)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"period", "revenue_total", "quantity_total", "transaction_count",
		"revenue_change_pct", "quantity_change_pct", "revenue_ma3",
	}, out.ColumnNames())
	assert.Equal(t, []any{100.0, 150.0, 90.0}, columnValues(t, out, "revenue_total"))
	assert.Equal(t, []any{int64(1), int64(1), int64(1)}, columnValues(t, out, "transaction_count"))

	change := columnValues(t, out, "revenue_change_pct")
	assert.Nil(t, change[0])
	assert.InDelta(t, 50.0, change[1], 1e-9)
	assert.InDelta(t, -40.0, change[2], 1e-9)

	assert.Equal(t, []any{nil, 0.0, 0.0}, columnValues(t, out, "quantity_change_pct"))

	ma := columnValues(t, out, "revenue_ma3")
	assert.Nil(t, ma[0])
	assert.Nil(t, ma[1])
	assert.InDelta(t, 340.0/3, ma[2], 1e-9)
}

func TestCohortAnalysis(t *testing.T) {
	a := newTestAggregator(t)

	out, err := a.CohortAnalysis(testutil.DefaultSalesTable(), domain.ColumnDate, domain.ColumnCustomer)
	require.NoError(t, err)

	assert.Equal(t, []string{"cohort", "cohort_age", "customers", "revenue"}, out.ColumnNames())
	assert.Equal(t, []any{"2024-01", "2024-01", "2024-01", "2024-02", "2024-03"}, columnValues(t, out, "cohort"))
	assert.Equal(t, []any{int64(0), int64(1), int64(2), int64(0), int64(0)}, columnValues(t, out, "cohort_age"))
	assert.Equal(t, []any{int64(3), int64(2), int64(1), int64(1), int64(1)}, columnValues(t, out, "customers"))
	assert.Equal(t, []any{1400.0, 2050.0, 50.0, 300.0, 40.0}, columnValues(t, out, "revenue"))

	t.Run("counts transactions without revenue", func(t *testing.T) {
		table := domain.MustNewTable(
			domain.NewTextColumn("date", []string{"2024-01-01", "2024-02-01"}),
			domain.NewTextColumn("customer", []string{"c1", "c1"}),
		)
		out, err := a.CohortAnalysis(table, "date", "customer")
		require.NoError(t, err)
		assert.Equal(t, []any{int64(1), int64(1)}, columnValues(t, out, "transactions"))
	})
}
