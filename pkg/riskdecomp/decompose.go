// Package riskdecomp attributes portfolio variance to constituents. Each
// asset's share follows from its weight and covariance with the portfolio;
// percentage contributions always total 100.
package riskdecomp

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/tailrisk/pkg/series"
)

// weightSumTolerance bounds the allowed deviation of weights from 1.
const weightSumTolerance = 1e-6

// Contribution is one asset's share of portfolio risk.
type Contribution struct {
	Weight float64 `json:"weight"`
	// MarginalBeta is cov(asset, portfolio)/sigma_p, the sensitivity of
	// portfolio volatility to the asset's weight.
	MarginalBeta float64 `json:"marginal_beta"`
	// Total is weight * MarginalBeta, in volatility units.
	Total float64 `json:"total"`
	// Percent is the asset's share of portfolio volatility, summing to 100
	// across all assets.
	Percent float64 `json:"percent"`
}

// Decomposition is the full variance attribution for one portfolio.
type Decomposition struct {
	// Assets lists constituents in the deterministic (sorted) order used
	// for the covariance matrix.
	Assets              []string                `json:"assets"`
	Contributions       map[string]Contribution `json:"contributions"`
	PortfolioVariance   float64                 `json:"portfolio_variance"`
	PortfolioVolatility float64                 `json:"portfolio_volatility"`
}

// Decompose computes per-asset marginal and percentage risk contributions
// from constituent return series and portfolio weights. The weights must sum
// to 1 and every weighted asset needs an aligned return series.
func Decompose(returns map[string]*series.Series, weights map[string]float64) (*Decomposition, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("no weights: %w", series.ErrInvalidInput)
	}
	if len(returns) != len(weights) {
		return nil, fmt.Errorf("have %d series for %d weights: %w",
			len(returns), len(weights), series.ErrInvalidInput)
	}

	names := make([]string, 0, len(weights))
	weightSum := 0.0
	for name, w := range weights {
		names = append(names, name)
		weightSum += w
	}
	sort.Strings(names)

	if math.Abs(weightSum-1.0) > weightSumTolerance {
		return nil, fmt.Errorf("weights sum to %v, expected 1: %w", weightSum, series.ErrInvalidInput)
	}

	n := len(names)
	data := make([][]float64, n)
	obs := -1
	for i, name := range names {
		s, ok := returns[name]
		if !ok || s == nil {
			return nil, fmt.Errorf("missing return series for %s: %w", name, series.ErrInvalidInput)
		}
		if obs == -1 {
			obs = s.Len()
		} else if s.Len() != obs {
			return nil, fmt.Errorf("series %s has %d observations, expected %d: %w",
				name, s.Len(), obs, series.ErrInvalidInput)
		}
		data[i] = s.Values()
	}
	if obs < 2 {
		return nil, fmt.Errorf("need at least 2 observations, have %d: %w", obs, series.ErrInsufficientData)
	}

	// Sample covariance matrix across constituents.
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, stat.Covariance(data[i], data[j], nil))
		}
	}

	w := make([]float64, n)
	for i, name := range names {
		w[i] = weights[name]
	}
	weightVec := mat.NewVecDense(n, w)

	// c = Sigma*w holds each asset's covariance with the portfolio, and
	// w'c is the portfolio variance.
	covWithPortfolio := mat.NewVecDense(n, nil)
	covWithPortfolio.MulVec(cov, weightVec)
	variance := mat.Dot(weightVec, covWithPortfolio)
	if variance <= 0 {
		return nil, fmt.Errorf("degenerate covariance, portfolio variance %v: %w", variance, series.ErrInvalidInput)
	}
	sigma := math.Sqrt(variance)

	contributions := make(map[string]Contribution, n)
	for i, name := range names {
		beta := covWithPortfolio.AtVec(i) / sigma
		total := w[i] * beta
		contributions[name] = Contribution{
			Weight:       w[i],
			MarginalBeta: beta,
			Total:        total,
			Percent:      total / sigma * 100.0,
		}
	}

	return &Decomposition{
		Assets:              names,
		Contributions:       contributions,
		PortfolioVariance:   variance,
		PortfolioVolatility: sigma,
	}, nil
}
