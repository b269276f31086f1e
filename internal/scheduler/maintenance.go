package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tailrisk/internal/database"
)

// maintenanceTimeout bounds the integrity checks across all databases
const maintenanceTimeout = 2 * time.Minute

// walWarnFrames is the WAL size, in 4KB pages, above which a warning is logged
const walWarnFrames = 1000

// MaintenanceJob verifies the integrity of the SQLite databases and forces a
// passive WAL checkpoint so the log files do not grow unbounded
type MaintenanceJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewMaintenanceJob creates the periodic database maintenance job
func NewMaintenanceJob(log zerolog.Logger, databases ...*database.DB) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "db_maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "db_maintenance"
}

// Run checks each database and checkpoints its WAL
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	for _, db := range j.databases {
		if db == nil {
			continue
		}

		if err := db.HealthCheck(ctx); err != nil {
			// Corruption cannot be recovered automatically, surface it loudly
			j.log.Error().
				Err(err).
				Str("database", db.Name()).
				Msg("Database integrity check failed")
			return fmt.Errorf("database %s failed its health check: %w", db.Name(), err)
		}

		if err := db.WALCheckpoint("PASSIVE"); err != nil {
			j.log.Warn().
				Err(err).
				Str("database", db.Name()).
				Msg("WAL checkpoint failed")
			continue
		}

		stats, err := db.GetStats()
		if err != nil {
			j.log.Warn().
				Err(err).
				Str("database", db.Name()).
				Msg("Failed to read database stats")
			continue
		}

		walFrames := stats.WALSizeBytes / 4096
		if walFrames > walWarnFrames {
			j.log.Warn().
				Str("database", db.Name()).
				Int64("wal_frames", walFrames).
				Int64("size_bytes", stats.SizeBytes).
				Msg("WAL file is large after checkpoint")
		} else {
			j.log.Debug().
				Str("database", db.Name()).
				Int64("size_bytes", stats.SizeBytes).
				Int64("free_pages", stats.FreelistCount).
				Msg("Database maintenance OK")
		}
	}

	j.log.Info().Int("databases", len(j.databases)).Msg("Database maintenance completed")
	return nil
}
