package tailrisk

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tailrisk/pkg/series"
)

func testSeries(t *testing.T, returns ...float64) *series.Series {
	t.Helper()
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]series.Point, len(returns))
	for i, r := range returns {
		points[i] = series.Point{Time: start.AddDate(0, i, 0), Return: r}
	}
	s, err := series.New(points)
	require.NoError(t, err)
	return s
}

// alternating builds n observations that flip between +v and -v.
func alternating(v float64, n int) []float64 {
	returns := make([]float64, n)
	for i := range returns {
		if i%2 == 0 {
			returns[i] = v
		} else {
			returns[i] = -v
		}
	}
	return returns
}

func TestEstimateHistorical(t *testing.T) {
	tests := []struct {
		name        string
		returns     []float64
		confidence  float64
		wantVaR     float64
		wantES      float64
		description string
	}{
		{
			name:        "alternating five percent at 95%",
			returns:     alternating(5.0, 12),
			confidence:  0.95,
			wantVaR:     -5.0,
			wantES:      -5.0,
			description: "worst 5% of 12 observations is the single worst return",
		},
		{
			name:        "hundred losses at 99%",
			returns:     negativeRamp(100),
			confidence:  0.99,
			wantVaR:     -100.0,
			wantES:      -100.0,
			description: "1% tail of 100 observations is the single worst return",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Estimate(testSeries(t, tt.returns...), tt.confidence, MethodHistorical, Options{})
			require.NoError(t, err)
			assert.InDelta(t, tt.wantVaR, result.VaR, 1e-9, tt.description)
			assert.InDelta(t, tt.wantES, result.ES, 1e-9, tt.description)
		})
	}

	t.Run("tail average below the quantile", func(t *testing.T) {
		// -1..-100: the 5% tail holds the five worst returns.
		result, err := Estimate(testSeries(t, negativeRamp(100)...), 0.95, MethodHistorical, Options{})
		require.NoError(t, err)
		assert.InDelta(t, -96.0, result.VaR, 1e-9)
		assert.InDelta(t, -98.0, result.ES, 1e-9)
		assert.False(t, result.LowSample)
	})

	t.Run("low sample flag below twenty observations", func(t *testing.T) {
		result, err := Estimate(testSeries(t, alternating(5.0, 12)...), 0.95, MethodHistorical, Options{})
		require.NoError(t, err)
		assert.True(t, result.LowSample)
	})

	t.Run("the 99% tail needs a hundred observations", func(t *testing.T) {
		series := testSeries(t, negativeRamp(60)...)

		result, err := Estimate(series, 0.99, MethodHistorical, Options{})
		require.NoError(t, err)
		assert.True(t, result.LowSample)

		result, err = Estimate(series, 0.95, MethodHistorical, Options{})
		require.NoError(t, err)
		assert.False(t, result.LowSample)
	})
}

// negativeRamp returns -1, -2, ..., -n.
func negativeRamp(n int) []float64 {
	returns := make([]float64, n)
	for i := range returns {
		returns[i] = -float64(i + 1)
	}
	return returns
}

func TestEstimateParametric(t *testing.T) {
	t.Run("implied z scores match normal quantiles", func(t *testing.T) {
		s := testSeries(t, alternating(2.0, 24)...)
		mu := 0.0
		sigma := math.Sqrt(4.0 * 24.0 / 23.0) // sample variance of alternating +/-2

		tests := []struct {
			confidence float64
			wantZ      float64
		}{
			{confidence: 0.95, wantZ: 1.645},
			{confidence: 0.99, wantZ: 2.326},
		}

		for _, tt := range tests {
			result, err := Estimate(s, tt.confidence, MethodParametric, Options{})
			require.NoError(t, err)

			impliedZ := (mu - result.VaR) / sigma
			assert.InDelta(t, tt.wantZ, impliedZ, 0.001, "VaR should sit z standard deviations below the mean")
			assert.Less(t, result.ES, result.VaR, "expected shortfall is deeper in the tail than VaR")
		}
	})

	t.Run("zero variance is invalid", func(t *testing.T) {
		s := testSeries(t, 1.0, 1.0, 1.0, 1.0)
		_, err := Estimate(s, 0.95, MethodParametric, Options{})
		assert.ErrorIs(t, err, series.ErrInvalidInput)
	})
}

func TestEstimateMonteCarlo(t *testing.T) {
	s := testSeries(t, alternating(3.0, 36)...)

	t.Run("same seed reproduces the estimate", func(t *testing.T) {
		first, err := Estimate(s, 0.95, MethodMonteCarlo, Options{Seed: 42})
		require.NoError(t, err)
		second, err := Estimate(s, 0.95, MethodMonteCarlo, Options{Seed: 42})
		require.NoError(t, err)

		assert.Equal(t, first.VaR, second.VaR)
		assert.Equal(t, first.ES, second.ES)
	})

	t.Run("different seeds diverge", func(t *testing.T) {
		first, err := Estimate(s, 0.95, MethodMonteCarlo, Options{Seed: 1})
		require.NoError(t, err)
		second, err := Estimate(s, 0.95, MethodMonteCarlo, Options{Seed: 2})
		require.NoError(t, err)

		assert.NotEqual(t, first.VaR, second.VaR)
	})

	t.Run("converges toward the parametric estimate", func(t *testing.T) {
		parametric, err := Estimate(s, 0.95, MethodParametric, Options{})
		require.NoError(t, err)
		mc, err := Estimate(s, 0.95, MethodMonteCarlo, Options{Samples: 50000, Seed: 7})
		require.NoError(t, err)

		sigma := math.Sqrt(9.0 * 36.0 / 35.0)
		assert.InDelta(t, parametric.VaR, mc.VaR, 0.1*sigma)
		assert.InDelta(t, parametric.ES, mc.ES, 0.1*sigma)
	})
}

func TestEstimateValidation(t *testing.T) {
	valid := testSeries(t, 1.0, -1.0, 2.0, -2.0)

	tests := []struct {
		name       string
		series     *series.Series
		confidence float64
		method     Method
		wantErr    error
	}{
		{
			name:       "nil series",
			series:     nil,
			confidence: 0.95,
			method:     MethodHistorical,
			wantErr:    series.ErrInvalidInput,
		},
		{
			name:       "confidence at zero",
			series:     valid,
			confidence: 0.0,
			method:     MethodHistorical,
			wantErr:    series.ErrInvalidInput,
		},
		{
			name:       "confidence at one",
			series:     valid,
			confidence: 1.0,
			method:     MethodHistorical,
			wantErr:    series.ErrInvalidInput,
		},
		{
			name:       "unsupported confidence level",
			series:     valid,
			confidence: 0.90,
			method:     MethodHistorical,
			wantErr:    series.ErrInvalidInput,
		},
		{
			name:       "unknown method",
			series:     valid,
			confidence: 0.95,
			method:     Method("bootstrap"),
			wantErr:    series.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Estimate(tt.series, tt.confidence, tt.method, Options{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("single observation", func(t *testing.T) {
		_, err := Estimate(testSeries(t, 1.0), 0.95, MethodHistorical, Options{})
		assert.ErrorIs(t, err, series.ErrInsufficientData)
	})
}
