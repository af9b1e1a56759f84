package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string     // NFINDB_DATABASE_URL (required)
	Table       string     // NFINDB_TABLE (default "documents")
	LogLevel    slog.Level // NFINDB_LOG_LEVEL (default info)
	NATSURL     string     // NFINDB_NATS_URL (optional, empty = no events)

	// Sync settings
	SyncInterval   time.Duration // NFINDB_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // NFINDB_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // NFINDB_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // NFINDB_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // NFINDB_SYNC_S3_KEY (default "nfindb/backup.jsonl")
	SyncGitRepo    string        // NFINDB_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // NFINDB_SYNC_GIT_FILE (default "nfindb.jsonl")
	SyncGitBranch  string        // NFINDB_SYNC_GIT_BRANCH (default "main")
}

const DefaultTable = "documents"

// Load reads the configuration from the environment. It does not require
// a database URL, since the CLI may still supply one from a flag or
// profile; call Validate once all sources have been applied.
func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("NFINDB_DATABASE_URL"),
		Table:          envOrDefault("NFINDB_TABLE", DefaultTable),
		NATSURL:        os.Getenv("NFINDB_NATS_URL"),
		SyncS3Bucket:   os.Getenv("NFINDB_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("NFINDB_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("NFINDB_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("NFINDB_SYNC_S3_KEY", "nfindb/backup.jsonl"),
		SyncGitRepo:    os.Getenv("NFINDB_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("NFINDB_SYNC_GIT_FILE", "nfindb.jsonl"),
		SyncGitBranch:  envOrDefault("NFINDB_SYNC_GIT_BRANCH", "main"),
	}

	if err := c.LogLevel.UnmarshalText([]byte(envOrDefault("NFINDB_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("NFINDB_LOG_LEVEL: %w", err)
	}

	intervalStr := envOrDefault("NFINDB_SYNC_INTERVAL", "3m")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("NFINDB_SYNC_INTERVAL: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("NFINDB_SYNC_INTERVAL: negative duration %s", d)
		}
		c.SyncInterval = d
	}

	return c, nil
}

// Validate reports settings that are missing once every source has been
// applied.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("NFINDB_DATABASE_URL is required"))
	}
	if strings.TrimSpace(c.Table) == "" {
		errs = append(errs, errors.New("table name is required"))
	}
	return errors.Join(errs...)
}

// SyncEnabled reports whether any backup destination is configured.
func (c *Config) SyncEnabled() bool {
	return c.SyncS3Bucket != "" || c.SyncGitRepo != ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
