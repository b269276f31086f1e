package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tailrisk/internal/modules/analysis"
	"github.com/aristath/tailrisk/internal/universe"
)

// refreshTimeout bounds a single profile refresh
const refreshTimeout = 5 * time.Minute

// ProfileService defines the slice of the analysis service the refresh job uses
// Kept as an interface to enable testing with mocks
type ProfileService interface {
	Refresh(ctx context.Context, portfolioSym, benchmarkSym string) (*analysis.RiskProfile, error)
}

// RefreshJob periodically recomputes the default pair's risk profile so
// interactive requests keep hitting a warm cache
type RefreshJob struct {
	service   ProfileService
	portfolio string
	benchmark string
	log       zerolog.Logger
}

// NewRefreshJob creates the periodic profile refresh for the given pair
func NewRefreshJob(service ProfileService, portfolio, benchmark string, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		service:   service,
		portfolio: portfolio,
		benchmark: benchmark,
		log:       log.With().Str("job", "analysis_refresh").Logger(),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "analysis_refresh"
}

// Run recomputes the profile and rewrites the cached copy
func (j *RefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	start := time.Now()
	profile, err := j.service.Refresh(ctx, j.portfolio, j.benchmark)
	if errors.Is(err, universe.ErrNotFound) {
		// History gets seeded out of band; an empty universe is not a job failure
		j.log.Warn().
			Str("portfolio", j.portfolio).
			Str("benchmark", j.benchmark).
			Msg("Pair has no history yet, skipping refresh")
		return nil
	}
	if err != nil {
		return err
	}

	j.log.Info().
		Str("run_id", profile.RunID).
		Int("observations", profile.Window.Observations).
		Dur("duration", time.Since(start)).
		Msg("Risk profile refreshed")

	return nil
}
