// Package garch fits GARCH(1,1) conditional volatility models by maximum
// likelihood. The return equation is r_t = mu + e_t and the variance
// recursion is sigma2_t = omega + alpha*e2_{t-1} + beta*sigma2_{t-1}, with
// Gaussian innovations.
package garch

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/tailrisk/pkg/series"
)

// ErrConvergence signals that the likelihood optimizer failed. A failed fit
// is terminal for that series; the caller must not substitute unconditional
// volatility for a conditional estimate.
var ErrConvergence = errors.New("optimization did not converge")

const (
	// DefaultMaxIterations bounds the optimizer so every fit terminates.
	DefaultMaxIterations = 2000
	// DefaultTolerance is the absolute log-likelihood convergence tolerance.
	DefaultTolerance = 1e-10

	// minObservations is the smallest series a four-parameter fit accepts.
	minObservations = 24

	// maxPersistence keeps alpha+beta strictly inside the stationarity region.
	maxPersistence = 0.9999

	minOmega = 1e-10
)

// Config tunes the likelihood optimizer. Zero values select defaults.
type Config struct {
	MaxIterations int
	Tolerance     float64
}

// Fit holds the estimated model and its in-sample volatility path.
type Fit struct {
	Mu    float64 `json:"mu"`
	Omega float64 `json:"omega"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`

	// Persistence is alpha+beta; values near 1 indicate long-lived
	// volatility shocks.
	Persistence float64 `json:"persistence"`
	// LongRunVariance is omega/(1-alpha-beta), the unconditional variance
	// implied by the fitted parameters.
	LongRunVariance float64 `json:"long_run_variance"`
	LogLikelihood   float64 `json:"log_likelihood"`
	// Iterations is the number of optimizer iterations spent on the fit.
	Iterations int `json:"iterations"`

	// Volatility is the conditional sigma_t sequence, one value per input
	// observation, in the same units as the input returns.
	Volatility []float64 `json:"volatility"`
}

// Estimate fits the model to a return series.
//
// Args:
//   - s: Return series (percent returns)
//   - cfg: Optimizer budget and tolerance
//
// Returns:
//   - Fit with parameters satisfying omega>0, alpha>=0, beta>=0, alpha+beta<1
func Estimate(s *series.Series, cfg Config) (*Fit, error) {
	if s == nil {
		return nil, fmt.Errorf("nil series: %w", series.ErrInvalidInput)
	}
	returns := s.Values()
	if len(returns) < minObservations {
		return nil, fmt.Errorf("need at least %d observations, have %d: %w",
			minObservations, len(returns), series.ErrInsufficientData)
	}

	sampleMean := stat.Mean(returns, nil)
	sampleVar := stat.Variance(returns, nil)
	if sampleVar <= 0 {
		return nil, fmt.Errorf("zero variance series: %w", series.ErrInvalidInput)
	}

	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}

	// Use penalty method for constraints: evaluate the likelihood at the
	// projected parameters and charge for the projection distance.
	penaltyWeight := 1000.0

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			mu, omega, alpha, beta := projectParams(x)

			nll := negativeLogLikelihood(returns, sampleVar, mu, omega, alpha, beta)

			penalty := (x[0] - mu) * (x[0] - mu)
			penalty += (x[1] - omega) * (x[1] - omega)
			penalty += (x[2] - alpha) * (x[2] - alpha)
			penalty += (x[3] - beta) * (x[3] - beta)

			return nll + penaltyWeight*penalty
		},
	}

	// Standard starting point: modest ARCH effect, strong persistence,
	// omega chosen so the implied long-run variance matches the sample.
	startAlpha := 0.05
	startBeta := 0.90
	initial := []float64{
		sampleMean,
		sampleVar * (1.0 - startAlpha - startBeta),
		startAlpha,
		startBeta,
	}

	settings := &optimize.Settings{
		MajorIterations: cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   cfg.Tolerance,
			Iterations: 50,
		},
	}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("garch fit: %v: %w", err, ErrConvergence)
	}

	// Accept various successful convergence statuses
	successStatuses := map[optimize.Status]bool{
		optimize.Success:             true,
		optimize.GradientThreshold:   true,
		optimize.FunctionConvergence: true,
	}
	if !successStatuses[result.Status] {
		return nil, fmt.Errorf("garch fit: status=%v: %w", result.Status, ErrConvergence)
	}
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return nil, fmt.Errorf("garch fit: non-finite likelihood: %w", ErrConvergence)
	}

	mu, omega, alpha, beta := projectParams(result.X)

	fit := &Fit{
		Mu:              mu,
		Omega:           omega,
		Alpha:           alpha,
		Beta:            beta,
		Persistence:     alpha + beta,
		LongRunVariance: omega / (1.0 - alpha - beta),
		LogLikelihood:   -negativeLogLikelihood(returns, sampleVar, mu, omega, alpha, beta),
		Iterations:      result.Stats.MajorIterations,
		Volatility:      volatilityPath(returns, sampleVar, mu, omega, alpha, beta),
	}
	return fit, nil
}

// projectParams maps an unconstrained optimizer point onto the feasible
// region: omega>0, alpha and beta in [0, 0.999], alpha+beta below the
// stationarity bound.
func projectParams(x []float64) (mu, omega, alpha, beta float64) {
	mu = x[0]
	omega = math.Max(x[1], minOmega)
	alpha = math.Min(math.Max(x[2], 0.0), 0.999)
	beta = math.Min(math.Max(x[3], 0.0), 0.999)

	if sum := alpha + beta; sum >= maxPersistence {
		scale := maxPersistence / sum
		alpha *= scale
		beta *= scale
	}
	return mu, omega, alpha, beta
}

// negativeLogLikelihood evaluates -sum_t log f(r_t | sigma2_t) under Gaussian
// innovations. sigma2_0 is seeded with the unconditional sample variance.
func negativeLogLikelihood(returns []float64, sampleVar, mu, omega, alpha, beta float64) float64 {
	const log2Pi = 1.8378770664093453

	variance := sampleVar
	nll := 0.0
	for t, r := range returns {
		if t > 0 {
			eps := returns[t-1] - mu
			variance = omega + alpha*eps*eps + beta*variance
		}
		variance = math.Max(variance, 1e-12)

		eps := r - mu
		nll += 0.5 * (log2Pi + math.Log(variance) + eps*eps/variance)
	}
	return nll
}

// volatilityPath replays the variance recursion at the fitted parameters and
// returns sigma_t for every observation.
func volatilityPath(returns []float64, sampleVar, mu, omega, alpha, beta float64) []float64 {
	path := make([]float64, len(returns))

	variance := sampleVar
	for t := range returns {
		if t > 0 {
			eps := returns[t-1] - mu
			variance = omega + alpha*eps*eps + beta*variance
		}
		variance = math.Max(variance, 1e-12)
		path[t] = math.Sqrt(variance)
	}
	return path
}
