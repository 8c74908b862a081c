package domain

// StatisticalSummary describes the non-missing values of one numeric column
type StatisticalSummary struct {
	Column   string  `json:"column"`
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Min      float64 `json:"min"`
	Q25      float64 `json:"q25"`
	Median   float64 `json:"median"`
	Q75      float64 `json:"q75"`
	Max      float64 `json:"max"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
}

// CorrelationMatrix is a square, symmetric matrix over numeric columns
type CorrelationMatrix struct {
	Method  string      `json:"method"`
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// Get returns the coefficient between two columns
func (m *CorrelationMatrix) Get(a, b string) (float64, bool) {
	i, j := -1, -1
	for k, c := range m.Columns {
		if c == a {
			i = k
		}
		if c == b {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return 0, false
	}
	return m.Values[i][j], true
}

// CorrelationPair is one off-diagonal entry of a correlation matrix
type CorrelationPair struct {
	Column1     string  `json:"column1"`
	Column2     string  `json:"column2"`
	Correlation float64 `json:"correlation"`
}

// NormalityResult is the outcome of a normality test
type NormalityResult struct {
	Method    string  `json:"method"`
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	IsNormal  bool    `json:"is_normal"`
}

// TTestResult is the outcome of an independent two-sample t-test
type TTestResult struct {
	Statistic   float64 `json:"t_statistic"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
	MeanA       float64 `json:"mean_group_a"`
	MeanB       float64 `json:"mean_group_b"`
	CountA      int     `json:"n_group_a"`
	CountB      int     `json:"n_group_b"`
}

// Chi2Result is the outcome of a chi-square independence test
type Chi2Result struct {
	Statistic        float64 `json:"chi2_statistic"`
	PValue           float64 `json:"p_value"`
	DegreesOfFreedom int     `json:"degrees_of_freedom"`
	Dependent        bool    `json:"dependent"`
}

// ConfidenceInterval is a mean with its lower and upper bounds
type ConfidenceInterval struct {
	Mean       float64 `json:"mean"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Confidence float64 `json:"confidence"`
}

// Percentile is a quantile level and its value
type Percentile struct {
	Level float64 `json:"level"`
	Value float64 `json:"value"`
}

// OutlierResult flags outlying rows of one column
type OutlierResult struct {
	Method string `json:"method"`
	Mask   []bool `json:"mask"`
	Count  int    `json:"count"`
}

// ReportOverview summarizes the shape of the analyzed table
type ReportOverview struct {
	Rows          int     `json:"n_rows"`
	Columns       int     `json:"n_columns"`
	Numeric       int     `json:"n_numeric"`
	Categorical   int     `json:"n_categorical"`
	MemoryUsageMB float64 `json:"memory_usage_mb"`
}

// MissingSummary counts the missing cells of a column
type MissingSummary struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// StatisticsReport is the composite statistics report of a table
type StatisticsReport struct {
	Overview         ReportOverview                `json:"overview"`
	DescriptiveStats map[string]StatisticalSummary `json:"descriptive_stats"`
	MissingValues    map[string]MissingSummary     `json:"missing_values"`
	Correlations     *CorrelationMatrix            `json:"correlations"`
	Outliers         map[string]int                `json:"outliers"`
}
