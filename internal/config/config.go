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
	DataDir         string // Base directory for the databases and the download cache (always absolute)
	UniversePath    string // Optional YAML file overriding the embedded universe
	LogLevel        string
	Port            int
	DevMode         bool
	HTTPTimeout     time.Duration // Timeout for downloading price files
	CacheTTL        time.Duration // Lifetime of cached estimation results
	Covariance      string        // Covariance estimator: ledoit_wolf or sample
	RefreshSchedule string        // Cron spec for the market data refresh job ("" disables)
	Backup          *BackupConfig
	Universe        *Universe
}

// BackupConfig holds S3-compatible (Cloudflare R2, AWS S3) backup settings.
type BackupConfig struct {
	Enabled         bool
	Endpoint        string // Empty for AWS S3, account endpoint for R2
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	Schedule        string // Cron spec
	RetentionDays   int    // 0 keeps every backup
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FRONTIER_DATA_DIR", "./data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		UniversePath:    getEnv("FRONTIER_UNIVERSE", ""),
		Port:            getEnvAsInt("FRONTIER_PORT", 8501),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		HTTPTimeout:     getEnvAsDuration("FRONTIER_HTTP_TIMEOUT", 30*time.Second),
		CacheTTL:        getEnvAsDuration("FRONTIER_CACHE_TTL", 24*time.Hour),
		Covariance:      getEnv("FRONTIER_COVARIANCE", "ledoit_wolf"),
		RefreshSchedule: getEnv("FRONTIER_REFRESH_SCHEDULE", "0 0 6 * * *"),
		Backup:          loadBackupConfig(),
	}

	universe, err := LoadUniverse(cfg.UniversePath)
	if err != nil {
		return nil, err
	}
	cfg.Universe = universe

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Covariance != "" && c.Covariance != "ledoit_wolf" && c.Covariance != "sample" {
		return fmt.Errorf("invalid covariance estimator: %s", c.Covariance)
	}
	if c.Universe == nil {
		return fmt.Errorf("universe is not configured")
	}
	if err := c.Universe.Validate(); err != nil {
		return fmt.Errorf("invalid universe: %w", err)
	}
	if c.Backup != nil && c.Backup.Enabled {
		if c.Backup.Bucket == "" {
			return fmt.Errorf("backup enabled but FRONTIER_BACKUP_BUCKET is empty")
		}
		if c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return fmt.Errorf("backup enabled but credentials are missing")
		}
	}
	return nil
}

// DatabasePath returns the sqlite file for the named database.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

// DownloadCacheDir is where fetched price files are cached for the day.
func (c *Config) DownloadCacheDir() string {
	return filepath.Join(c.DataDir, "downloads")
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:         getEnvAsBool("FRONTIER_BACKUP_ENABLED", false),
		Endpoint:        getEnv("FRONTIER_BACKUP_ENDPOINT", ""),
		Region:          getEnv("FRONTIER_BACKUP_REGION", "auto"),
		Bucket:          getEnv("FRONTIER_BACKUP_BUCKET", ""),
		AccessKeyID:     getEnv("FRONTIER_BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("FRONTIER_BACKUP_SECRET_ACCESS_KEY", ""),
		Prefix:          getEnv("FRONTIER_BACKUP_PREFIX", "frontier/"),
		Schedule:        getEnv("FRONTIER_BACKUP_SCHEDULE", "0 30 3 * * *"),
		RetentionDays:   getEnvAsInt("FRONTIER_BACKUP_RETENTION_DAYS", 30),
	}
}
