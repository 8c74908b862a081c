package statistics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "salespulse/internal/errors"
	"salespulse/pkg/contracts/domain"
)

func TestTestNormality(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name       string
		column     []float64
		method     NormalityMethod
		wantNormal bool
	}{
		{"shapiro accepts normal scores", normalScores(30), Shapiro, true},
		{"shapiro rejects a skewed sample", skewedSample(), Shapiro, false},
		{"shapiro small sample", normalScores(8), Shapiro, true},
		{"ks accepts normal scores", normalScores(30), KolmogorovSmirnov, true},
		{"ks rejects a skewed sample", skewedSample(), KolmogorovSmirnov, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.TestNormality(floatTable(map[string][]float64{"x": tt.column}, "x"), "x", tt.method)
			require.NoError(t, err)

			assert.Equal(t, tt.wantNormal, result.IsNormal, "p=%v", result.PValue)
			assert.Equal(t, tt.method.String(), result.Method)
			assert.GreaterOrEqual(t, result.PValue, 0.0)
			assert.LessOrEqual(t, result.PValue, 1.0)
		})
	}
}

func TestShapiroWilk_Statistic(t *testing.T) {
	w, p := shapiroWilk([]float64{1, 2, 3})
	assert.InDelta(t, 1.0, w, 1e-9)
	assert.InDelta(t, 1.0, p, 1e-6)

	w, _ = shapiroWilk(Sorted(normalScores(50)))
	assert.Greater(t, w, 0.97)

	w, p = shapiroWilk(Sorted(skewedSample()))
	assert.Less(t, w, 0.5)
	assert.Less(t, p, 0.001)
}

func TestTestNormality_Errors(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.TestNormality(floatTable(map[string][]float64{"x": {1, 2}}, "x"), "x", Shapiro)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInsufficientData))

	_, err = engine.TestNormality(floatTable(map[string][]float64{"x": {4, 4, 4, 4}}, "x"), "x", KolmogorovSmirnov)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeComputation))
}

func TestTTestIndependent(t *testing.T) {
	engine := newTestEngine(t)
	table := domain.MustNewTable(
		domain.NewColumn("price", domain.TypeFloat, []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, nil, 9.0}),
		domain.NewTextColumn("source", []string{"web", "web", "web", "store", "store", "store", "web", "app"}),
	)

	result, err := engine.TTestIndependent(table, "price", "source", "web", "store")
	require.NoError(t, err)

	assert.InDelta(t, -3.6742346, result.Statistic, 1e-6)
	assert.InDelta(t, 0.0213116, result.PValue, 1e-4)
	assert.True(t, result.Significant)
	assert.Equal(t, 2.0, result.MeanA)
	assert.Equal(t, 5.0, result.MeanB)
	assert.Equal(t, 3, result.CountA)
	assert.Equal(t, 3, result.CountB)
}

func TestTTestIndependent_Errors(t *testing.T) {
	engine := newTestEngine(t)
	table := domain.MustNewTable(
		domain.NewFloatColumn("price", []float64{1, 1, 1, 1, 5}),
		domain.NewTextColumn("source", []string{"web", "web", "store", "store", "app"}),
	)

	tests := []struct {
		name     string
		column   string
		group    string
		a, b     string
		wantType apperrors.ErrorType
	}{
		{"too few values", "price", "source", "web", "app", apperrors.ErrTypeInsufficientData},
		{"zero variance", "price", "source", "web", "store", apperrors.ErrTypeComputation},
		{"missing group column", "price", "channel", "web", "store", apperrors.ErrTypeStructural},
		{"non numeric column", "source", "source", "web", "store", apperrors.ErrTypeType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.TTestIndependent(table, tt.column, tt.group, tt.a, tt.b)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.wantType), "got %v", err)
		})
	}
}

func TestChi2Test(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("perfectly dependent 2x2 with continuity correction", func(t *testing.T) {
		labels := make([]string, 20)
		for i := range labels {
			labels[i] = "x"
			if i >= 10 {
				labels[i] = "y"
			}
		}
		table := domain.MustNewTable(
			domain.NewTextColumn("a", labels),
			domain.NewTextColumn("b", labels),
		)

		result, err := engine.Chi2Test(table, "a", "b")
		require.NoError(t, err)
		assert.InDelta(t, 16.2, result.Statistic, 1e-9)
		assert.Equal(t, 1, result.DegreesOfFreedom)
		assert.True(t, result.Dependent)
		assert.Less(t, result.PValue, 0.001)
	})

	t.Run("independent 2x3 table", func(t *testing.T) {
		table := domain.MustNewTable(
			domain.NewTextColumn("a", []string{"x", "x", "x", "y", "y", "y"}),
			domain.NewTextColumn("b", []string{"p", "q", "r", "p", "q", "r"}),
		)

		result, err := engine.Chi2Test(table, "a", "b")
		require.NoError(t, err)
		assert.InDelta(t, 0.0, result.Statistic, 1e-12)
		assert.Equal(t, 2, result.DegreesOfFreedom)
		assert.InDelta(t, 1.0, result.PValue, 1e-12)
		assert.False(t, result.Dependent)
	})

	t.Run("degenerate table", func(t *testing.T) {
		table := domain.MustNewTable(
			domain.NewTextColumn("a", []string{"x", "x"}),
			domain.NewTextColumn("b", []string{"p", "q"}),
		)
		_, err := engine.Chi2Test(table, "a", "b")
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeComputation))
	})

	t.Run("levels seen only beside missing values are dropped", func(t *testing.T) {
		table := domain.MustNewTable(
			domain.NewTextColumn("a", []string{"x", "x", "y", "y", "z"}),
			domain.NewColumn("b", domain.TypeText, []any{"p", "q", "p", "q", nil}),
		)

		result, err := engine.Chi2Test(table, "a", "b")
		require.NoError(t, err)
		assert.Equal(t, 1, result.DegreesOfFreedom)
		assert.False(t, math.IsNaN(result.Statistic))
		assert.InDelta(t, 0.0, result.Statistic, 1e-12)
		assert.InDelta(t, 1.0, result.PValue, 1e-12)
		assert.False(t, result.Dependent)
	})

	t.Run("complete pairs with a single level are degenerate", func(t *testing.T) {
		table := domain.MustNewTable(
			domain.NewTextColumn("a", []string{"x", "x", "y"}),
			domain.NewColumn("b", domain.TypeText, []any{"p", "q", nil}),
		)
		_, err := engine.Chi2Test(table, "a", "b")
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeComputation))
	})

	t.Run("missing columns reported together", func(t *testing.T) {
		table := domain.MustNewTable(domain.NewTextColumn("a", []string{"x"}))
		_, err := engine.Chi2Test(table, "b", "c")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "b, c")
	})
}

func TestConfidenceInterval(t *testing.T) {
	engine := newTestEngine(t)
	table := floatTable(map[string][]float64{"x": {1, 2, 3, 4, 5}}, "x")

	ci, err := engine.ConfidenceInterval(table, "x", 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, ci.Mean, 1e-12)
	assert.InDelta(t, 1.036757, ci.Lower, 1e-4)
	assert.InDelta(t, 4.963243, ci.Upper, 1e-4)
	assert.Equal(t, 0.95, ci.Confidence)

	narrow, err := engine.ConfidenceInterval(table, "x", 0.5)
	require.NoError(t, err)
	assert.Less(t, narrow.Upper-narrow.Lower, ci.Upper-ci.Lower)

	_, err = engine.ConfidenceInterval(table, "x", 1)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	_, err = engine.ConfidenceInterval(floatTable(map[string][]float64{"x": {1}}, "x"), "x", 0.95)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInsufficientData))
}
