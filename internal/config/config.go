package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath        string
	BackupPath          string
	BackupSchedule      string // cron expression; empty disables automatic backups
	SessionTimeoutHours int
	LogLevel            string
}

// Load loads configuration from a local .env file and environment variables,
// falling back to defaults.
func Load() (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	hours, err := strconv.Atoi(getEnv("SESSION_TIMEOUT_HOURS", "24"))
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabasePath:        getEnv("DATABASE_PATH", "./budgetinator.db"),
		BackupPath:          getEnv("BACKUP_PATH", "./backups"),
		BackupSchedule:      getEnv("BACKUP_SCHEDULE", ""),
		SessionTimeoutHours: hours,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
