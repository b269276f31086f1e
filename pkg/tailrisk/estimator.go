// Package tailrisk estimates Value at Risk and expected shortfall for
// return series using historical, parametric, and Monte Carlo methods.
package tailrisk

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/tailrisk/pkg/series"
)

// Method selects the estimation approach.
type Method string

const (
	// MethodHistorical reads the loss quantile directly from the sorted sample.
	MethodHistorical Method = "historical"
	// MethodParametric assumes normally distributed returns.
	MethodParametric Method = "parametric"
	// MethodMonteCarlo simulates from a fitted normal with a seeded generator.
	MethodMonteCarlo Method = "monte_carlo"
)

const (
	// DefaultSamples is the Monte Carlo draw count when Options.Samples is unset.
	DefaultSamples = 10000

	minObservations = 2
)

// Options tunes the Monte Carlo method. Zero values select defaults.
type Options struct {
	// Samples is the number of simulated returns. Defaults to DefaultSamples.
	Samples int
	// Seed initializes the random source so runs are reproducible.
	Seed uint64
}

// Result holds a single VaR/ES estimate.
type Result struct {
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
	VaR        float64 `json:"var"`
	ES         float64 `json:"es"`
	// LowSample is true when the series has too few observations for the
	// estimate to be trusted.
	LowSample bool `json:"low_sample"`
}

// Estimate calculates VaR and expected shortfall at the given confidence level.
// Both values are return levels in the units of the input series, so losses
// are negative.
//
// Args:
//   - s: Return series (percent returns)
//   - confidence: Confidence level (e.g., 0.95 for 95%)
//   - method: Estimation method
//   - opts: Monte Carlo options, ignored by other methods
//
// Returns:
//   - Result with VaR, ES, and a low-sample flag
func Estimate(s *series.Series, confidence float64, method Method, opts Options) (Result, error) {
	if s == nil {
		return Result{}, fmt.Errorf("nil series: %w", series.ErrInvalidInput)
	}
	if confidence != 0.95 && confidence != 0.99 {
		return Result{}, fmt.Errorf("confidence %v not supported, want 0.95 or 0.99: %w",
			confidence, series.ErrInvalidInput)
	}
	returns := s.Values()
	if len(returns) < minObservations {
		return Result{}, fmt.Errorf("need at least %d observations, have %d: %w",
			minObservations, len(returns), series.ErrInsufficientData)
	}

	// The tail holds no more than the single worst return until the sample
	// reaches 1/(1-confidence) observations.
	minReliable := math.Ceil(1.0 / (1.0 - confidence))
	result := Result{
		Confidence: confidence,
		Method:     method,
		LowSample:  float64(len(returns)) < minReliable,
	}

	var err error
	switch method {
	case MethodHistorical:
		result.VaR, result.ES = historical(returns, confidence)
	case MethodParametric:
		result.VaR, result.ES, err = parametric(returns, confidence)
	case MethodMonteCarlo:
		result.VaR, result.ES, err = monteCarlo(returns, confidence, opts)
	default:
		return Result{}, fmt.Errorf("unknown method %q: %w", method, series.ErrInvalidInput)
	}
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// historical reads VaR from the empirical quantile and averages the tail
// at and below it for ES.
func historical(returns []float64, confidence float64) (varLevel, es float64) {
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// For 95% confidence the cutoff sits at the worst 5% of returns.
	tailCount := int(math.Ceil(float64(len(sorted)) * (1.0 - confidence)))
	if tailCount < 1 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}

	varLevel = sorted[tailCount-1]

	sum := 0.0
	for _, r := range sorted[:tailCount] {
		sum += r
	}
	es = sum / float64(tailCount)
	return varLevel, es
}

// parametric fits a normal distribution and evaluates its closed-form
// quantile and tail expectation.
func parametric(returns []float64, confidence float64) (varLevel, es float64, err error) {
	mu := stat.Mean(returns, nil)
	sigma := stat.StdDev(returns, nil)
	if sigma == 0 {
		return 0, 0, fmt.Errorf("zero variance series: %w", series.ErrInvalidInput)
	}

	stdNormal := distuv.Normal{Mu: 0, Sigma: 1}
	z := stdNormal.Quantile(confidence)

	varLevel = mu - sigma*z
	es = mu - sigma*stdNormal.Prob(z)/(1.0-confidence)
	return varLevel, es, nil
}

// monteCarlo simulates returns from a fitted normal and applies the
// historical estimator to the simulated sample.
func monteCarlo(returns []float64, confidence float64, opts Options) (varLevel, es float64, err error) {
	mu := stat.Mean(returns, nil)
	sigma := stat.StdDev(returns, nil)
	if sigma == 0 {
		return 0, 0, fmt.Errorf("zero variance series: %w", series.ErrInvalidInput)
	}

	samples := opts.Samples
	if samples <= 0 {
		samples = DefaultSamples
	}

	dist := distuv.Normal{
		Mu:    mu,
		Sigma: sigma,
		Src:   rand.NewPCG(opts.Seed, opts.Seed),
	}

	simulated := make([]float64, samples)
	for i := range simulated {
		simulated[i] = dist.Rand()
	}

	varLevel, es = historical(simulated, confidence)
	return varLevel, es, nil
}
