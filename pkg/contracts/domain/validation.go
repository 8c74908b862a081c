package domain

// IssueSeverity distinguishes blocking errors from warnings
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ValidationIssue is the structured form of a single validation finding
type ValidationIssue struct {
	Severity IssueSeverity          `json:"severity"`
	Kind     string                 `json:"kind"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// ValidationMetrics describes the shape and quality of a validated table
type ValidationMetrics struct {
	RowCount            int                   `json:"row_count"`
	ColumnCount         int                   `json:"column_count"`
	TotalCells          int                   `json:"total_cells"`
	MissingCellCount    int                   `json:"missing_cell_count"`
	MissingPercentage   float64               `json:"missing_percentage"`
	DuplicateRowCount   int                   `json:"duplicate_row_count"`
	MemoryEstimateBytes int64                 `json:"memory_estimate_bytes"`
	ColumnTypeMap       map[string]ColumnType `json:"column_type_map"`
}

// ValidationReport is produced once per validation call and never mutated afterwards
type ValidationReport struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []string          `json:"errors"`
	Warnings []string          `json:"warnings"`
	Issues   []ValidationIssue `json:"issues"`
	Metrics  ValidationMetrics `json:"metrics"`
}

// HasErrors reports whether the report carries at least one error
func (r *ValidationReport) HasErrors() bool {
	return len(r.Errors) > 0
}
