// Package testing provides testing utilities and helpers for the tailrisk project.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/tailrisk/internal/database"
	_ "modernc.org/sqlite"
)

// NewTestDB creates a file-backed SQLite database for testing.
// Returns the database instance and a cleanup function that closes the
// connection and removes the file.
//
// Supported database names:
//   - "history" - monthly close history, standard profile
//   - "cache" - computed profile cache, cache profile
//   - Unknown names - standard profile
//
// Stores create their own schemas on construction, so the database starts empty.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	// Create temporary file for test database to ensure test isolation
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	// Match the production wiring: the cache database runs with the cache
	// profile, everything else with the standard one
	profile := database.ProfileStandard
	if name == "cache" {
		profile = database.ProfileCache
	}

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	// Return database and cleanup function
	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		if err := os.Remove(tmpPath); err != nil {
			t.Logf("Warning: Failed to remove temporary database file %s: %v", tmpPath, err)
		}
	}
}
