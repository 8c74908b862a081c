package validation

import "salespulse/pkg/contracts/domain"

// SalesRules is the business rule set of a sales transaction upload
func SalesRules(minRows int) Rules {
	return Rules{
		RequiredColumns: domain.SalesColumns,
		ColumnTypes: map[string]domain.ColumnType{
			domain.ColumnDate:     domain.TypeText,
			domain.ColumnProduct:  domain.TypeText,
			domain.ColumnCategory: domain.TypeText,
			domain.ColumnPrice:    domain.TypeFloat,
			domain.ColumnQuantity: domain.TypeInteger,
			domain.ColumnCity:     domain.TypeText,
			domain.ColumnSource:   domain.TypeText,
		},
		CheckDuplicates: true,
		CheckMissing:    true,
		ValueRanges: map[string]ValueRange{
			domain.ColumnPrice:    AtLeast(0),
			domain.ColumnQuantity: AtLeast(1),
		},
		MinRows: minRows,
	}
}

// CustomerRules is the rule set of a customer master upload
func CustomerRules() Rules {
	return Rules{
		RequiredColumns: []string{domain.ColumnCustomer, domain.ColumnCustomerName, domain.ColumnCustomerEmail},
		ColumnTypes: map[string]domain.ColumnType{
			domain.ColumnCustomer: domain.TypeInteger,
		},
	}
}

// ValidateSales validates a sales table with the configured row floor
func (v *Validator) ValidateSales(table *domain.Table) *domain.ValidationReport {
	minRows := v.MinRows
	if minRows <= 0 {
		minRows = 1
	}
	return v.Validate(table, SalesRules(minRows))
}

// ValidateCustomers validates a customer table
func (v *Validator) ValidateCustomers(table *domain.Table) *domain.ValidationReport {
	return v.Validate(table, CustomerRules())
}
