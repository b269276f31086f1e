package analysis

import (
	"time"

	"github.com/aristath/tailrisk/pkg/copula"
	"github.com/aristath/tailrisk/pkg/drawdown"
	"github.com/aristath/tailrisk/pkg/garch"
	"github.com/aristath/tailrisk/pkg/riskdecomp"
	"github.com/aristath/tailrisk/pkg/stress"
	"github.com/aristath/tailrisk/pkg/tailrisk"
)

// Window describes the aligned observation range shared by both series of a
// run after the inner join on timestamps.
type Window struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Observations int       `json:"observations"`
}

// GarchReport pairs a fitted volatility model with its annualized headline
// number. Annualization is presentation only; the fit itself stays in
// monthly units.
type GarchReport struct {
	garch.Fit
	// AnnualizedVolatility is the latest conditional sigma scaled by sqrt(12).
	AnnualizedVolatility float64 `json:"annualized_volatility"`
}

// VolatilityPoint is one step of the rolling realized-volatility diagnostic.
type VolatilityPoint struct {
	Time       time.Time `json:"time"`
	Volatility float64   `json:"volatility"`
}

// DrawdownReport condenses a drawdown path into the profile summary.
type DrawdownReport struct {
	MaxDrawdown     float64   `json:"max_drawdown"`
	MaxDrawdownTime time.Time `json:"max_drawdown_time"`
	CurrentDrawdown float64   `json:"current_drawdown"`
	// RecoveryGap is nil when the path reaches fewer than two all-time
	// highs, in which case no gap is defined.
	RecoveryGap *drawdown.RecoveryGap `json:"recovery_gap,omitempty"`
}

// SeriesReport groups the per-series estimator results inside a RiskProfile.
type SeriesReport struct {
	Symbol            string            `json:"symbol"`
	VarEs             []tailrisk.Result `json:"var_es"`
	Garch             GarchReport       `json:"garch"`
	Drawdown          DrawdownReport    `json:"drawdown"`
	RollingVolatility []VolatilityPoint `json:"rolling_volatility"`
}

// StressResult is the tail-risk grid recomputed on one stressed series.
type StressResult struct {
	Scenario stress.Scenario   `json:"scenario"`
	VarEs    []tailrisk.Result `json:"var_es"`
}

// RiskProfile is the complete output of one analysis run over a
// portfolio/benchmark pair.
type RiskProfile struct {
	RunID  string `json:"run_id"`
	Window Window `json:"window"`

	Portfolio SeriesReport `json:"portfolio"`
	Benchmark SeriesReport `json:"benchmark"`

	// Copula is nil when the pair's dependence falls outside the Clayton
	// domain; CopulaNote then carries the reason. A degenerate dependence is
	// an analytical outcome of the pair, not a failed run.
	Copula     *copula.Fit `json:"copula,omitempty"`
	CopulaNote string      `json:"copula_note,omitempty"`

	Divergences   []drawdown.Divergence     `json:"divergences"`
	Decomposition *riskdecomp.Decomposition `json:"decomposition"`
	Stress        []StressResult            `json:"stress"`

	GeneratedAt time.Time `json:"generated_at"`
}
