package testutil

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"salespulse/pkg/contracts/domain"
)

// SalesRow is one transaction of the sales fixture schema
type SalesRow struct {
	Date       string
	Product    string
	Category   string
	Price      float64
	Quantity   int64
	City       string
	Source     string
	CustomerID int64
}

// DefaultSalesRows returns a small, deterministic dataset spanning three months
func DefaultSalesRows() []SalesRow {
	return []SalesRow{
		{"2024-01-05", "Laptop", "Electronics", 1000, 1, "Baghdad", "Online", 1},
		{"2024-01-12", "Mouse", "Electronics", 25, 4, "Basra", "Store", 2},
		{"2024-01-20", "Desk", "Furniture", 300, 1, "Baghdad", "Store", 3},
		{"2024-02-03", "Laptop", "Electronics", 1000, 2, "Erbil", "Online", 1},
		{"2024-02-14", "Chair", "Furniture", 150, 2, "Basra", "Online", 4},
		{"2024-02-25", "Notebook", "Stationery", 5, 10, "Baghdad", "Store", 2},
		{"2024-03-02", "Pen", "Stationery", 2, 20, "Erbil", "Store", 5},
		{"2024-03-18", "Mouse", "Electronics", 25, 2, "Baghdad", "Online", 3},
	}
}

// SalesTable builds a typed table from rows
func SalesTable(rows []SalesRow) *domain.Table {
	n := len(rows)
	dates := make([]string, n)
	products := make([]string, n)
	categories := make([]string, n)
	prices := make([]float64, n)
	quantities := make([]int64, n)
	cities := make([]string, n)
	sources := make([]string, n)
	customers := make([]int64, n)

	for i, r := range rows {
		dates[i] = r.Date
		products[i] = r.Product
		categories[i] = r.Category
		prices[i] = r.Price
		quantities[i] = r.Quantity
		cities[i] = r.City
		sources[i] = r.Source
		customers[i] = r.CustomerID
	}

	return domain.MustNewTable(
		domain.NewTextColumn(domain.ColumnDate, dates),
		domain.NewTextColumn(domain.ColumnProduct, products),
		domain.NewTextColumn(domain.ColumnCategory, categories),
		domain.NewFloatColumn(domain.ColumnPrice, prices),
		domain.NewIntColumn(domain.ColumnQuantity, quantities),
		domain.NewTextColumn(domain.ColumnCity, cities),
		domain.NewTextColumn(domain.ColumnSource, sources),
		domain.NewIntColumn(domain.ColumnCustomer, customers),
	)
}

// DefaultSalesTable is SalesTable(DefaultSalesRows())
func DefaultSalesTable() *domain.Table {
	return SalesTable(DefaultSalesRows())
}

// SalesCSV renders rows as a comma separated upload with a header line
func SalesCSV(rows []SalesRow) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	_ = w.Write([]string{
		domain.ColumnDate, domain.ColumnProduct, domain.ColumnCategory, domain.ColumnPrice,
		domain.ColumnQuantity, domain.ColumnCity, domain.ColumnSource, domain.ColumnCustomer,
	})
	for _, r := range rows {
		_ = w.Write([]string{
			r.Date,
			r.Product,
			r.Category,
			strconv.FormatFloat(r.Price, 'f', -1, 64),
			strconv.FormatInt(r.Quantity, 10),
			r.City,
			r.Source,
			strconv.FormatInt(r.CustomerID, 10),
		})
	}
	w.Flush()
	return buf.Bytes()
}

// DefaultSalesCSV is SalesCSV(DefaultSalesRows())
func DefaultSalesCSV() []byte {
	return SalesCSV(DefaultSalesRows())
}
