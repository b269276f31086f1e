// Package copula estimates Clayton copula lower-tail dependence between two
// aligned return series. The Clayton parameter is obtained by inverting the
// closed-form Kendall's tau relation rather than by likelihood maximization,
// so the fit is deterministic and needs no iterative solver.
package copula

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/tailrisk/pkg/series"
)

// ErrDegenerateDependence signals a Kendall's tau outside (0, 1). Clayton
// copulas model positive dependence only, so a non-positive tau must not be
// coerced into a spurious theta.
var ErrDegenerateDependence = errors.New("dependence outside clayton domain")

// minObservations is the smallest pair of series the rank estimator accepts.
const minObservations = 8

// Fit holds the calibrated copula and the pseudo-observations it was
// derived from.
type Fit struct {
	// Theta is the Clayton dependence parameter, strictly positive.
	Theta float64 `json:"theta"`
	// Tau is Kendall's tau between the raw series.
	Tau float64 `json:"tau"`
	// LowerTailDependence is 2^(-1/theta), in [0, 1).
	LowerTailDependence float64 `json:"lower_tail_dependence"`

	// U and V are the rank-based pseudo-observations rank/(n+1) of the two
	// inputs, kept for export and diagnostic plots.
	U []float64 `json:"u"`
	V []float64 `json:"v"`
}

// FitClayton calibrates a Clayton copula to two series that the caller has
// already aligned to identical timestamps. Mismatched lengths are rejected.
func FitClayton(a, b *series.Series) (*Fit, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("nil series: %w", series.ErrInvalidInput)
	}
	if a.Len() != b.Len() {
		return nil, fmt.Errorf("series lengths differ (%d vs %d): %w",
			a.Len(), b.Len(), series.ErrInvalidInput)
	}
	if a.Len() < minObservations {
		return nil, fmt.Errorf("need at least %d observations, have %d: %w",
			minObservations, a.Len(), series.ErrInsufficientData)
	}

	av := a.Values()
	bv := b.Values()

	tau := stat.Kendall(av, bv, nil)
	theta, err := ThetaFromTau(tau)
	if err != nil {
		return nil, err
	}

	return &Fit{
		Theta:               theta,
		Tau:                 tau,
		LowerTailDependence: LowerTailDependence(theta),
		U:                   PseudoObservations(av),
		V:                   PseudoObservations(bv),
	}, nil
}

// ThetaFromTau inverts tau = theta/(theta+2) to theta = 2*tau/(1-tau).
// Valid only for tau in (0, 1).
func ThetaFromTau(tau float64) (float64, error) {
	if math.IsNaN(tau) || tau <= 0 {
		return 0, fmt.Errorf("kendall tau %v is not positive: %w", tau, ErrDegenerateDependence)
	}
	if tau >= 1 {
		return 0, fmt.Errorf("kendall tau %v implies perfect concordance: %w", tau, ErrDegenerateDependence)
	}
	return 2.0 * tau / (1.0 - tau), nil
}

// LowerTailDependence derives lambda_L = 2^(-1/theta). As theta grows the
// value approaches 1; as theta shrinks toward zero it vanishes.
func LowerTailDependence(theta float64) float64 {
	if theta <= 0 {
		return 0
	}
	return math.Exp2(-1.0 / theta)
}

// PseudoObservations maps values to rank/(n+1). The n+1 denominator keeps
// every observation strictly inside (0, 1); ties receive their average rank.
func PseudoObservations(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return values[idx[i]] < values[idx[j]] })

	pseudo := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// Average of the one-based ranks i+1..j+1.
		rank := float64(i+j+2) / 2.0
		for k := i; k <= j; k++ {
			pseudo[idx[k]] = rank / float64(n+1)
		}
		i = j + 1
	}
	return pseudo
}
