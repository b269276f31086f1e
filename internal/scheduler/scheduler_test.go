package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tailrisk/internal/modules/analysis"
	"github.com/aristath/tailrisk/internal/universe"
)

type stubProfileService struct {
	calls     int
	portfolio string
	benchmark string
	profile   *analysis.RiskProfile
	err       error
}

func (s *stubProfileService) Refresh(_ context.Context, portfolioSym, benchmarkSym string) (*analysis.RiskProfile, error) {
	s.calls++
	s.portfolio = portfolioSym
	s.benchmark = benchmarkSym
	if s.err != nil {
		return nil, s.err
	}
	return s.profile, nil
}

func TestRefreshJob(t *testing.T) {
	t.Run("refreshes the configured pair", func(t *testing.T) {
		stub := &stubProfileService{profile: &analysis.RiskProfile{RunID: "run-1"}}
		job := NewRefreshJob(stub, "FUNDX", "MARKET", zerolog.Nop())

		require.NoError(t, job.Run())
		assert.Equal(t, 1, stub.calls)
		assert.Equal(t, "FUNDX", stub.portfolio)
		assert.Equal(t, "MARKET", stub.benchmark)
	})

	t.Run("missing history is skipped, not failed", func(t *testing.T) {
		stub := &stubProfileService{err: fmt.Errorf("load FUNDX: %w", universe.ErrNotFound)}
		job := NewRefreshJob(stub, "FUNDX", "MARKET", zerolog.Nop())

		assert.NoError(t, job.Run())
		assert.Equal(t, 1, stub.calls)
	})

	t.Run("other failures propagate", func(t *testing.T) {
		stub := &stubProfileService{err: errors.New("history db locked")}
		job := NewRefreshJob(stub, "FUNDX", "MARKET", zerolog.Nop())

		assert.Error(t, job.Run())
	})
}

func TestScheduler(t *testing.T) {
	s := New(zerolog.Nop())

	stub := &stubProfileService{profile: &analysis.RiskProfile{RunID: "run-2"}}
	job := NewRefreshJob(stub, "FUNDX", "MARKET", zerolog.Nop())

	t.Run("valid schedule registers", func(t *testing.T) {
		require.NoError(t, s.AddJob("0 0 * * * *", job))
	})

	t.Run("malformed schedule is rejected", func(t *testing.T) {
		assert.Error(t, s.AddJob("not a schedule", job))
	})

	t.Run("run now executes the job", func(t *testing.T) {
		before := stub.calls
		require.NoError(t, s.RunNow(job))
		assert.Equal(t, before+1, stub.calls)
	})

	t.Run("start and stop complete", func(t *testing.T) {
		s.Start()
		s.Stop()
	})
}
