package domain

// Column names of the sales transaction schema
const (
	ColumnDate     = "date"
	ColumnProduct  = "product"
	ColumnCategory = "category"
	ColumnPrice    = "price"
	ColumnQuantity = "quantity"
	ColumnCity     = "city"
	ColumnSource   = "source"
	ColumnCustomer = "customer_id"

	// ColumnRevenue is derived as price * quantity
	ColumnRevenue = "revenue"
)

// Column names of the customer schema
const (
	ColumnCustomerName  = "name"
	ColumnCustomerEmail = "email"
)

// SalesColumns lists the required columns of a sales dataset
var SalesColumns = []string{
	ColumnDate,
	ColumnProduct,
	ColumnCategory,
	ColumnPrice,
	ColumnQuantity,
	ColumnCity,
	ColumnSource,
}

// KPIs is the fixed set of business metrics derived from a sales table
type KPIs struct {
	RevenueTotal     float64 `json:"revenue_total"`
	TransactionCount int     `json:"transaction_count"`
	AverageBasket    float64 `json:"average_basket"`
	TotalQuantity    int64   `json:"total_quantity"`
	AveragePrice     float64 `json:"average_price"`
	UniqueProducts   int     `json:"unique_products"`
	UniqueCategories int     `json:"unique_categories"`
	UniqueCities     int     `json:"unique_cities"`

	// MissingInputs names the source columns that were absent and defaulted to zero
	MissingInputs []string `json:"missing_inputs,omitempty"`
}

// Aggregation records the functions applied to one value column
type Aggregation struct {
	Column    string   `json:"column"`
	Functions []string `json:"functions"`
}

// AggregationResult is a derived table plus the provenance of how it was built
type AggregationResult struct {
	Table        *Table        `json:"table"`
	GroupKeys    []string      `json:"group_keys"`
	Aggregations []Aggregation `json:"aggregations"`
}
