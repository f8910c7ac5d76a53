package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath              string
	LogLevel                  string
	Port                      int
	DevMode                   bool
	DailyReconCheck           bool
	ConcentrationThresholdPct float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:                      getEnvAsInt("PORT", 8001),
		DevMode:                   getEnvAsBool("DEV_MODE", false),
		DatabasePath:              getEnv("DATABASE_PATH", "./data/reconciler.db"),
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
		DailyReconCheck:           getEnvAsBool("RECON_DAILY_CHECK", false),
		ConcentrationThresholdPct: getEnvAsFloat("CONCENTRATION_THRESHOLD_PCT", 20.0),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}

	if c.ConcentrationThresholdPct <= 0 || c.ConcentrationThresholdPct > 100 {
		return fmt.Errorf("CONCENTRATION_THRESHOLD_PCT must be in (0, 100], got %.2f", c.ConcentrationThresholdPct)
	}

	return nil
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
