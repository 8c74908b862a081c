package dataprocessing

import (
	"log/slog"

	apperrors "salespulse/internal/errors"
	"salespulse/internal/statistics"
	"salespulse/pkg/contracts/domain"
)

// withRevenue returns table with a revenue column. When price and quantity
// are present revenue is recomputed as their product, otherwise an existing
// revenue column is used as is.
func withRevenue(table *domain.Table) (*domain.Table, error) {
	price, hasPrice := table.Column(domain.ColumnPrice)
	quantity, hasQuantity := table.Column(domain.ColumnQuantity)

	if !hasPrice || !hasQuantity {
		if table.HasColumn(domain.ColumnRevenue) {
			return table, nil
		}
		var missing []string
		if !hasPrice {
			missing = append(missing, domain.ColumnPrice)
		}
		if !hasQuantity {
			missing = append(missing, domain.ColumnQuantity)
		}
		return nil, apperrors.NewMissingColumnsError(missing)
	}

	for _, col := range []*domain.Column{price, quantity} {
		if !col.Type.IsNumeric() {
			return nil, apperrors.NewColumnTypeError(col.Name, "numeric", string(col.Type))
		}
	}

	values := make([]any, table.NumRows())
	for i := range values {
		p, okP := price.Float(i)
		q, okQ := quantity.Float(i)
		if okP && okQ {
			values[i] = p * q
		}
	}
	revenue := &domain.Column{Name: domain.ColumnRevenue, Type: domain.TypeFloat, Values: values}

	out := table.Clone()
	if out.HasColumn(domain.ColumnRevenue) {
		_ = out.ReplaceColumn(revenue)
	} else {
		_ = out.AddColumn(revenue)
	}
	return out, nil
}

// CalculateKPIs derives the headline sales metrics. Metrics whose source
// column is absent are zero and the column is listed in MissingInputs.
func (a *Aggregator) CalculateKPIs(table *domain.Table) domain.KPIs {
	kpis := domain.KPIs{TransactionCount: table.NumRows()}

	for _, name := range []string{
		domain.ColumnPrice, domain.ColumnQuantity, domain.ColumnProduct,
		domain.ColumnCategory, domain.ColumnCity,
	} {
		if !table.HasColumn(name) {
			kpis.MissingInputs = append(kpis.MissingInputs, name)
		}
	}

	if sales, err := withRevenue(table); err == nil {
		revenue, _ := sales.Column(domain.ColumnRevenue)
		values := revenue.Floats()
		kpis.RevenueTotal = sum(values)
		if len(values) > 0 {
			kpis.AverageBasket = kpis.RevenueTotal / float64(len(values))
		}
	} else {
		a.logger.Debug("revenue unavailable for KPIs", slog.String("reason", err.Error()))
	}

	if quantity, ok := table.Column(domain.ColumnQuantity); ok {
		kpis.TotalQuantity = int64(sum(quantity.Floats()))
	}
	if price, ok := table.Column(domain.ColumnPrice); ok {
		if values := price.Floats(); len(values) > 0 {
			kpis.AveragePrice = sum(values) / float64(len(values))
		}
	}
	kpis.UniqueProducts = distinctCount(table, domain.ColumnProduct)
	kpis.UniqueCategories = distinctCount(table, domain.ColumnCategory)
	kpis.UniqueCities = distinctCount(table, domain.ColumnCity)

	a.logger.Info("KPIs calculated",
		slog.Float64("revenue_total", kpis.RevenueTotal),
		slog.Int("transaction_count", kpis.TransactionCount),
		slog.Any("missing_inputs", kpis.MissingInputs))
	return kpis
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

func distinctCount(table *domain.Table, name string) int {
	col, ok := table.Column(name)
	if !ok {
		return 0
	}
	return len(col.Distinct())
}

// SalesByCategory reports revenue_total, quantity_total, average_price,
// transaction_count and revenue_pct per category, highest revenue first
func (a *Aggregator) SalesByCategory(table *domain.Table) (*domain.Table, error) {
	return a.salesBreakdown(table, domain.ColumnCategory, []AggSpec{
		{Column: domain.ColumnRevenue, Funcs: []AggFunc{AggSum}},
		{Column: domain.ColumnQuantity, Funcs: []AggFunc{AggSum}},
		{Column: domain.ColumnPrice, Funcs: []AggFunc{AggMean}},
		{Column: domain.ColumnProduct, Funcs: []AggFunc{AggCount}},
	}, "revenue_total", "quantity_total", "average_price", "transaction_count")
}

// SalesByCity reports revenue_total, quantity_total, unique_products and
// revenue_pct per city, highest revenue first
func (a *Aggregator) SalesByCity(table *domain.Table) (*domain.Table, error) {
	return a.salesBreakdown(table, domain.ColumnCity, []AggSpec{
		{Column: domain.ColumnRevenue, Funcs: []AggFunc{AggSum}},
		{Column: domain.ColumnQuantity, Funcs: []AggFunc{AggSum}},
		{Column: domain.ColumnProduct, Funcs: []AggFunc{AggNUnique}},
	}, "revenue_total", "quantity_total", "unique_products")
}

// SalesBySource reports revenue_total, quantity_total, transaction_count and
// revenue_pct per sales source, highest revenue first
func (a *Aggregator) SalesBySource(table *domain.Table) (*domain.Table, error) {
	return a.salesBreakdown(table, domain.ColumnSource, []AggSpec{
		{Column: domain.ColumnRevenue, Funcs: []AggFunc{AggSum}},
		{Column: domain.ColumnQuantity, Funcs: []AggFunc{AggSum}},
		{Column: domain.ColumnProduct, Funcs: []AggFunc{AggCount}},
	}, "revenue_total", "quantity_total", "transaction_count")
}

// salesBreakdown groups by key, renames the aggregates and appends the
// revenue share of each group in percent, rounded to two decimals
func (a *Aggregator) salesBreakdown(table *domain.Table, key string, specs []AggSpec, names ...string) (*domain.Table, error) {
	sales, err := withRevenue(table)
	if err != nil {
		return nil, err
	}

	grouped, err := a.GroupBy(sales, []string{key}, specs, domain.ColumnRevenue+"_"+AggSum.String(), false)
	if err != nil {
		return nil, err
	}

	out := renameColumns(grouped.Table, append([]string{key}, names...)...)
	revenue, _ := out.Column("revenue_total")

	var total float64
	for i := 0; i < revenue.Len(); i++ {
		if v, ok := revenue.Float(i); ok {
			total += v
		}
	}

	shares := make([]any, revenue.Len())
	for i := range shares {
		v, _ := revenue.Float(i)
		share := 0.0
		if total != 0 {
			share = statistics.Round(v/total*100, 2)
		}
		shares[i] = share
	}
	_ = out.AddColumn(&domain.Column{Name: "revenue_pct", Type: domain.TypeFloat, Values: shares})

	a.logger.Info("sales breakdown computed",
		slog.String("by", key),
		slog.Int("groups", out.NumRows()),
		slog.Float64("revenue_total", total))
	return out, nil
}

// TopProducts ranks products by revenue or quantity, descending and stable
// on ties, keeping the first topN
func (a *Aggregator) TopProducts(table *domain.Table, topN int, metric RankMetric) (*domain.Table, error) {
	if topN <= 0 {
		return nil, apperrors.NewAppValidationError("top_n must be positive").WithContext("top_n", topN)
	}
	sales, err := withRevenue(table)
	if err != nil {
		return nil, err
	}

	sortBy := domain.ColumnRevenue + "_" + AggSum.String()
	if metric == RankByQuantity {
		sortBy = domain.ColumnQuantity + "_" + AggSum.String()
	}

	grouped, err := a.GroupBy(sales, []string{domain.ColumnProduct}, []AggSpec{
		{Column: domain.ColumnRevenue, Funcs: []AggFunc{AggSum}},
		{Column: domain.ColumnQuantity, Funcs: []AggFunc{AggSum}},
		{Column: domain.ColumnPrice, Funcs: []AggFunc{AggMean}},
	}, sortBy, false)
	if err != nil {
		return nil, err
	}

	out := renameColumns(grouped.Table, domain.ColumnProduct, "revenue_total", "quantity_total", "average_price")
	if out.NumRows() > topN {
		rows := make([]int, topN)
		for i := range rows {
			rows[i] = i
		}
		out = reorder(out, rows)
	}

	a.logger.Info("top products ranked",
		slog.String("metric", metric.String()),
		slog.Int("requested", topN),
		slog.Int("returned", out.NumRows()))
	return out, nil
}
