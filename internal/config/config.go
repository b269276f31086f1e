// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for all databases (always absolute)
	Port      int
	DevMode   bool
	LogLevel  string
	LogPretty bool

	// Default analysis pair and decomposition weight for the portfolio leg;
	// the benchmark leg receives 1 - PortfolioWeight.
	DefaultPortfolio string
	DefaultBenchmark string
	PortfolioWeight  float64

	// Estimator parameters handed to the analysis service. The core
	// packages never read these from the environment themselves.
	MonteCarloSamples     int
	MonteCarloSeed        uint64
	StressSeed            uint64
	GarchMaxIterations    int
	GarchTolerance        float64
	DivergenceThresholdPP float64 // percentage points between two drawdown paths
	RollingVolWindow      int     // months per rolling volatility window

	// CacheTTL bounds how long computed risk profiles are served from the
	// cache database before being recomputed.
	CacheTTL time.Duration

	// RefreshSchedule is a cron expression (with seconds) for the scheduled
	// re-analysis job. MaintenanceSchedule drives the database integrity and
	// WAL checkpoint job.
	RefreshSchedule     string
	MaintenanceSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TAILRISK_DATA_DIR", "data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:               absDataDir,
		Port:                  getEnvAsInt("PORT", 8090),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogPretty:             getEnvAsBool("LOG_PRETTY", false),
		DefaultPortfolio:      getEnv("DEFAULT_PORTFOLIO", "PORTFOLIO"),
		DefaultBenchmark:      getEnv("DEFAULT_BENCHMARK", "BENCHMARK"),
		PortfolioWeight:       getEnvAsFloat("PORTFOLIO_WEIGHT", 0.6),
		MonteCarloSamples:     getEnvAsInt("MC_SAMPLES", 10000),
		MonteCarloSeed:        getEnvAsUint64("MC_SEED", 42),
		StressSeed:            getEnvAsUint64("STRESS_SEED", 42),
		GarchMaxIterations:    getEnvAsInt("GARCH_MAX_ITERATIONS", 500),
		GarchTolerance:        getEnvAsFloat("GARCH_TOLERANCE", 1e-8),
		DivergenceThresholdPP: getEnvAsFloat("DIVERGENCE_THRESHOLD_PP", 20.0),
		RollingVolWindow:      getEnvAsInt("ROLLING_VOL_WINDOW", 12),
		CacheTTL:              time.Duration(getEnvAsInt("CACHE_TTL_MINUTES", 360)) * time.Minute,
		// Hourly, expression includes a seconds field.
		RefreshSchedule: getEnv("REFRESH_SCHEDULE", "0 0 * * * *"),
		// Nightly, well away from the hourly refresh.
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 30 3 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DefaultPortfolio == "" || c.DefaultBenchmark == "" {
		return fmt.Errorf("default portfolio and benchmark symbols must not be empty")
	}
	if c.PortfolioWeight <= 0 || c.PortfolioWeight >= 1 {
		return fmt.Errorf("portfolio weight %f must be inside (0, 1)", c.PortfolioWeight)
	}
	if c.MonteCarloSamples < 1 {
		return fmt.Errorf("invalid monte carlo sample count %d", c.MonteCarloSamples)
	}
	if c.GarchMaxIterations < 1 {
		return fmt.Errorf("invalid garch iteration budget %d", c.GarchMaxIterations)
	}
	if c.DivergenceThresholdPP <= 0 {
		return fmt.Errorf("invalid divergence threshold %f", c.DivergenceThresholdPP)
	}
	if c.RollingVolWindow < 2 {
		return fmt.Errorf("invalid rolling volatility window %d", c.RollingVolWindow)
	}
	if c.RefreshSchedule == "" {
		return fmt.Errorf("refresh schedule must not be empty")
	}
	if c.MaintenanceSchedule == "" {
		return fmt.Errorf("maintenance schedule must not be empty")
	}
	return nil
}

// HistoryDBPath is the location of the price history database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// CacheDBPath is the location of the computed-results cache database.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintVal, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintVal
		}
	}
	return defaultValue
}
