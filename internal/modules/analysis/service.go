// Package analysis orchestrates the estimator packages over a
// portfolio/benchmark pair and assembles the combined risk profile.
package analysis

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/tailrisk/internal/cache"
	"github.com/aristath/tailrisk/internal/universe"
	"github.com/aristath/tailrisk/pkg/copula"
	"github.com/aristath/tailrisk/pkg/drawdown"
	"github.com/aristath/tailrisk/pkg/garch"
	"github.com/aristath/tailrisk/pkg/riskdecomp"
	"github.com/aristath/tailrisk/pkg/series"
	"github.com/aristath/tailrisk/pkg/stress"
	"github.com/aristath/tailrisk/pkg/tailrisk"
)

// Confidences is the fixed pair of confidence levels every profile reports.
var Confidences = [2]float64{0.95, 0.99}

// methods lists the estimation methods in grid order.
var methods = [3]tailrisk.Method{
	tailrisk.MethodHistorical,
	tailrisk.MethodParametric,
	tailrisk.MethodMonteCarlo,
}

// Options carries the run parameters the orchestrator passes down to the
// estimators. Zero values select defaults.
type Options struct {
	// MonteCarloSamples is the simulation count for the Monte Carlo method.
	MonteCarloSamples int
	// MonteCarloSeed fixes the Monte Carlo generator so reruns are
	// bit-identical.
	MonteCarloSeed uint64
	// StressSeed fixes the resampling generator for stress scenarios.
	StressSeed uint64
	// Garch tunes the likelihood optimizer.
	Garch garch.Config
	// PortfolioWeight is the decomposition weight of the portfolio leg; the
	// benchmark receives the complement.
	PortfolioWeight float64
	// DivergenceThreshold is the drawdown spread, in percentage points, that
	// counts as a divergence event.
	DivergenceThreshold float64
	// RollingVolWindow is the realized-volatility window in months.
	RollingVolWindow int
	// CacheTTL bounds the lifetime of cached profiles.
	CacheTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.MonteCarloSamples <= 0 {
		o.MonteCarloSamples = tailrisk.DefaultSamples
	}
	if o.PortfolioWeight <= 0 || o.PortfolioWeight >= 1 {
		o.PortfolioWeight = 0.6
	}
	if o.DivergenceThreshold <= 0 {
		o.DivergenceThreshold = 20.0
	}
	if o.RollingVolWindow < 2 {
		o.RollingVolWindow = 12
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 6 * time.Hour
	}
	return o
}

// Service runs the analysis pipeline against the price history. The cache is
// optional; a nil cache disables profile reuse without changing results.
type Service struct {
	history *universe.HistoryDB
	cache   *cache.Cache
	opts    Options
	log     zerolog.Logger
}

// NewService creates an analysis service.
func NewService(history *universe.HistoryDB, profileCache *cache.Cache, opts Options, log zerolog.Logger) *Service {
	return &Service{
		history: history,
		cache:   profileCache,
		opts:    opts.withDefaults(),
		log:     log.With().Str("component", "analysis").Logger(),
	}
}

// Run assembles the complete risk profile for a portfolio/benchmark pair.
// Profiles are cached under a key derived from the pair and the run options;
// cache failures fall through to a fresh computation.
func (s *Service) Run(ctx context.Context, portfolioSym, benchmarkSym string) (*RiskProfile, error) {
	if portfolioSym == benchmarkSym {
		return nil, fmt.Errorf("portfolio and benchmark must differ: %w", series.ErrInvalidInput)
	}

	key := s.profileCacheKey(portfolioSym, benchmarkSym)

	if s.cache != nil {
		var cached RiskProfile
		err := s.cache.Get(key, &cached)
		if err == nil {
			s.log.Debug().
				Str("portfolio", portfolioSym).
				Str("benchmark", benchmarkSym).
				Str("run_id", cached.RunID).
				Msg("Returning cached risk profile")
			return &cached, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
	}

	return s.computeAndCache(ctx, portfolioSym, benchmarkSym, key)
}

// Refresh recomputes the pair's profile and rewrites the cached entry even
// when a live one exists. The scheduler uses it to keep the cache warm.
func (s *Service) Refresh(ctx context.Context, portfolioSym, benchmarkSym string) (*RiskProfile, error) {
	if portfolioSym == benchmarkSym {
		return nil, fmt.Errorf("portfolio and benchmark must differ: %w", series.ErrInvalidInput)
	}
	key := s.profileCacheKey(portfolioSym, benchmarkSym)
	return s.computeAndCache(ctx, portfolioSym, benchmarkSym, key)
}

func (s *Service) computeAndCache(ctx context.Context, portfolioSym, benchmarkSym, key string) (*RiskProfile, error) {
	profile, err := s.compute(ctx, portfolioSym, benchmarkSym)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(key, profile, s.opts.CacheTTL); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}
	return profile, nil
}

func (s *Service) compute(ctx context.Context, portfolioSym, benchmarkSym string) (*RiskProfile, error) {
	start := time.Now()

	portSeries, benchSeries, err := s.history.AlignedReturns(ctx, portfolioSym, benchmarkSym)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log := s.log.With().Str("run_id", runID).Logger()
	log.Info().
		Str("portfolio", portfolioSym).
		Str("benchmark", benchmarkSym).
		Int("observations", portSeries.Len()).
		Msg("Starting risk analysis run")

	times := portSeries.Times()
	profile := &RiskProfile{
		RunID: runID,
		Window: Window{
			Start:        times[0],
			End:          times[len(times)-1],
			Observations: portSeries.Len(),
		},
	}

	portGrid, err := s.varEsGrid(portSeries)
	if err != nil {
		return nil, fmt.Errorf("portfolio var/es grid: %w", err)
	}
	benchGrid, err := s.varEsGrid(benchSeries)
	if err != nil {
		return nil, fmt.Errorf("benchmark var/es grid: %w", err)
	}
	log.Debug().Int("estimates", len(portGrid)+len(benchGrid)).Msg("Tail-risk grid complete")

	// The two fits are independent, so they run on their own goroutines and
	// join on the channel. A failed fit fails the run.
	type garchOutcome struct {
		symbol string
		fit    *garch.Fit
		err    error
	}
	fits := make(chan garchOutcome, 2)
	for _, leg := range []struct {
		symbol  string
		returns *series.Series
	}{
		{portfolioSym, portSeries},
		{benchmarkSym, benchSeries},
	} {
		go func(symbol string, sr *series.Series) {
			fit, err := garch.Estimate(sr, s.opts.Garch)
			fits <- garchOutcome{symbol: symbol, fit: fit, err: err}
		}(leg.symbol, leg.returns)
	}
	garchBySymbol := make(map[string]*garch.Fit, 2)
	for i := 0; i < 2; i++ {
		out := <-fits
		if out.err != nil {
			return nil, fmt.Errorf("garch fit for %s: %w", out.symbol, out.err)
		}
		garchBySymbol[out.symbol] = out.fit
	}
	log.Debug().Msg("GARCH fits complete")

	cop, err := copula.FitClayton(portSeries, benchSeries)
	switch {
	case errors.Is(err, copula.ErrDegenerateDependence):
		profile.CopulaNote = fmt.Sprintf("copula not applicable: %v", err)
		log.Info().Err(err).Msg("Dependence outside Clayton domain")
	case err != nil:
		return nil, fmt.Errorf("copula fit: %w", err)
	default:
		profile.Copula = cop
	}

	portPath, err := drawdown.Compute(portSeries)
	if err != nil {
		return nil, fmt.Errorf("portfolio drawdown: %w", err)
	}
	benchPath, err := drawdown.Compute(benchSeries)
	if err != nil {
		return nil, fmt.Errorf("benchmark drawdown: %w", err)
	}
	profile.Divergences, err = drawdown.Divergences(portPath, benchPath, s.opts.DivergenceThreshold)
	if err != nil {
		return nil, fmt.Errorf("drawdown divergences: %w", err)
	}
	log.Debug().Int("divergences", len(profile.Divergences)).Msg("Drawdown analysis complete")

	profile.Decomposition, err = riskdecomp.Decompose(
		map[string]*series.Series{
			portfolioSym: portSeries,
			benchmarkSym: benchSeries,
		},
		map[string]float64{
			portfolioSym: s.opts.PortfolioWeight,
			benchmarkSym: 1.0 - s.opts.PortfolioWeight,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("risk decomposition: %w", err)
	}

	scenarios := append(
		BaseScenarios(stress.ModeRescale, s.opts.StressSeed),
		BaseScenarios(stress.ModeResample, s.opts.StressSeed)...,
	)
	profile.Stress, err = s.stressGrid(portSeries, scenarios)
	if err != nil {
		return nil, fmt.Errorf("stress grid: %w", err)
	}
	log.Debug().Int("scenarios", len(scenarios)).Msg("Stress grid complete")

	portVol, err := RollingVolatility(portSeries, s.opts.RollingVolWindow)
	if err != nil {
		return nil, fmt.Errorf("portfolio rolling volatility: %w", err)
	}
	benchVol, err := RollingVolatility(benchSeries, s.opts.RollingVolWindow)
	if err != nil {
		return nil, fmt.Errorf("benchmark rolling volatility: %w", err)
	}

	profile.Portfolio = SeriesReport{
		Symbol:            portfolioSym,
		VarEs:             portGrid,
		Garch:             garchReport(garchBySymbol[portfolioSym]),
		Drawdown:          drawdownReport(portPath),
		RollingVolatility: portVol,
	}
	profile.Benchmark = SeriesReport{
		Symbol:            benchmarkSym,
		VarEs:             benchGrid,
		Garch:             garchReport(garchBySymbol[benchmarkSym]),
		Drawdown:          drawdownReport(benchPath),
		RollingVolatility: benchVol,
	}
	profile.GeneratedAt = time.Now().UTC()

	log.Info().Dur("elapsed", time.Since(start)).Msg("Risk analysis run complete")
	return profile, nil
}

// VarEs estimates a single confidence/method cell for one symbol. A nil seed
// selects the configured Monte Carlo seed.
func (s *Service) VarEs(ctx context.Context, symbol string, confidence float64, method tailrisk.Method, seed *uint64) (tailrisk.Result, error) {
	sr, err := s.history.Returns(ctx, symbol)
	if err != nil {
		return tailrisk.Result{}, err
	}

	opts := tailrisk.Options{Samples: s.opts.MonteCarloSamples, Seed: s.opts.MonteCarloSeed}
	if seed != nil {
		opts.Seed = *seed
	}
	return tailrisk.Estimate(sr, confidence, method, opts)
}

// Garch fits the conditional-volatility model for one symbol.
func (s *Service) Garch(ctx context.Context, symbol string) (GarchReport, error) {
	sr, err := s.history.Returns(ctx, symbol)
	if err != nil {
		return GarchReport{}, err
	}
	fit, err := garch.Estimate(sr, s.opts.Garch)
	if err != nil {
		return GarchReport{}, err
	}
	return garchReport(fit), nil
}

// Copula fits the Clayton copula over an aligned pair of symbols. Degenerate
// dependence surfaces as copula.ErrDegenerateDependence for the caller to
// classify.
func (s *Service) Copula(ctx context.Context, symbolA, symbolB string) (*copula.Fit, error) {
	a, b, err := s.history.AlignedReturns(ctx, symbolA, symbolB)
	if err != nil {
		return nil, err
	}
	return copula.FitClayton(a, b)
}

// Drawdown computes the full drawdown path and its summary for one symbol.
func (s *Service) Drawdown(ctx context.Context, symbol string) (*drawdown.Path, DrawdownReport, error) {
	sr, err := s.history.Returns(ctx, symbol)
	if err != nil {
		return nil, DrawdownReport{}, err
	}
	path, err := drawdown.Compute(sr)
	if err != nil {
		return nil, DrawdownReport{}, err
	}
	return path, drawdownReport(path), nil
}

// Stress applies scenarios to one symbol's series and re-runs the tail
// estimators on each stressed series. Scenarios without a mode inherit the
// given mode, scenarios with seed zero inherit the configured or overriding
// seed, and an empty scenario list selects the base battery.
func (s *Service) Stress(ctx context.Context, symbol string, scenarios []stress.Scenario, mode stress.Mode, seed *uint64) ([]StressResult, error) {
	if mode == "" {
		mode = stress.ModeRescale
	}
	stressSeed := s.opts.StressSeed
	if seed != nil {
		stressSeed = *seed
	}

	if len(scenarios) == 0 {
		scenarios = BaseScenarios(mode, stressSeed)
	} else {
		for i := range scenarios {
			if scenarios[i].Mode == "" {
				scenarios[i].Mode = mode
			}
			if scenarios[i].Seed == 0 {
				scenarios[i].Seed = stressSeed
			}
		}
	}

	sr, err := s.history.Returns(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return s.stressGrid(sr, scenarios)
}

// varEsGrid runs every confidence/method combination on one series.
func (s *Service) varEsGrid(sr *series.Series) ([]tailrisk.Result, error) {
	opts := tailrisk.Options{Samples: s.opts.MonteCarloSamples, Seed: s.opts.MonteCarloSeed}

	grid := make([]tailrisk.Result, 0, len(Confidences)*len(methods))
	for _, confidence := range Confidences {
		for _, method := range methods {
			result, err := tailrisk.Estimate(sr, confidence, method, opts)
			if err != nil {
				return nil, err
			}
			grid = append(grid, result)
		}
	}
	return grid, nil
}

// stressGrid applies each scenario and re-runs the historical and parametric
// estimators on the stressed series. Monte Carlo adds nothing on top of a
// normal resample, so stressed grids skip it.
func (s *Service) stressGrid(sr *series.Series, scenarios []stress.Scenario) ([]StressResult, error) {
	results := make([]StressResult, 0, len(scenarios))
	for _, sc := range scenarios {
		stressed, err := stress.Apply(sr, sc)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
		}

		grid := make([]tailrisk.Result, 0, len(Confidences)*2)
		for _, confidence := range Confidences {
			for _, method := range []tailrisk.Method{tailrisk.MethodHistorical, tailrisk.MethodParametric} {
				result, err := tailrisk.Estimate(stressed, confidence, method, tailrisk.Options{})
				if err != nil {
					return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
				}
				grid = append(grid, result)
			}
		}
		results = append(results, StressResult{Scenario: sc, VarEs: grid})
	}
	return results, nil
}

// profileCacheKey derives a deterministic key from the pair and every option
// that changes the computed profile. Symbol order is part of the key because
// the two legs play different roles.
func (s *Service) profileCacheKey(portfolioSym, benchmarkSym string) string {
	parts := []string{
		portfolioSym,
		benchmarkSym,
		strconv.Itoa(s.opts.RollingVolWindow),
		strconv.Itoa(s.opts.MonteCarloSamples),
		strconv.FormatUint(s.opts.MonteCarloSeed, 10),
		strconv.FormatUint(s.opts.StressSeed, 10),
		strconv.FormatFloat(s.opts.PortfolioWeight, 'f', -1, 64),
		strconv.FormatFloat(s.opts.DivergenceThreshold, 'f', -1, 64),
		strconv.Itoa(s.opts.Garch.MaxIterations),
		strconv.FormatFloat(s.opts.Garch.Tolerance, 'g', -1, 64),
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, ",")))
	return "riskprofile:" + hex.EncodeToString(hash[:16])
}

// garchReport annualizes the latest conditional volatility for presentation.
func garchReport(fit *garch.Fit) GarchReport {
	report := GarchReport{Fit: *fit}
	if n := len(fit.Volatility); n > 0 {
		report.AnnualizedVolatility = fit.Volatility[n-1] * math.Sqrt(12)
	}
	return report
}

// drawdownReport condenses a path into the profile summary.
func drawdownReport(path *drawdown.Path) DrawdownReport {
	report := DrawdownReport{
		MaxDrawdown:     path.MaxDrawdown,
		MaxDrawdownTime: path.MaxDrawdownTime,
		CurrentDrawdown: path.Points[len(path.Points)-1].Drawdown,
	}
	if gap, ok := path.LongestRecoveryGap(); ok {
		report.RecoveryGap = &gap
	}
	return report
}
