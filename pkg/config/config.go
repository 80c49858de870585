// Package config handles DeepGraph's configuration, loaded from environment
// variables prefixed with DEEPGRAPH_ and optionally overridden by a YAML
// file via LoadFromFile.
//
// Configuration is grouped into the sections SPEC_FULL.md names explicitly:
// Database (data directory, transaction timeout), WAL (fsync policy,
// segment rotation, checkpoint interval), Lock (deadlock-detection
// timeout), Cypher (query timeout), and Logging.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all DeepGraph configuration.
//
// Use LoadFromEnv to build one from the environment, or LoadFromFile to
// layer a YAML override on top of the environment-derived defaults.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	WAL      WALConfig      `yaml:"wal"`
	Lock     LockConfig     `yaml:"lock"`
	Cypher   CypherConfig   `yaml:"cypher"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds storage and transaction settings.
type DatabaseConfig struct {
	// DataDir is the directory holding the WAL segments, page store file,
	// and secondary-index state for an on-disk database.
	DataDir string `yaml:"data_dir"`
	// TransactionTimeout bounds how long a transaction may stay open
	// before the coordinator aborts it.
	TransactionTimeout time.Duration `yaml:"transaction_timeout"`
}

// WALConfig holds write-ahead-log settings.
type WALConfig struct {
	// SegmentMaxBytes is the size at which the WAL rotates to a new
	// segment file.
	SegmentMaxBytes int64 `yaml:"segment_max_bytes"`
	// SyncOnCommit controls whether every committed transaction's WAL
	// record is fsynced before the commit returns (durability) or only
	// written to the OS page cache (throughput).
	SyncOnCommit bool `yaml:"sync_on_commit"`
	// CheckpointInterval is how often the engine truncates WAL segments
	// that are no longer needed to recover the current page store state.
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// LockConfig holds the lock manager's settings.
type LockConfig struct {
	// AcquireTimeout bounds how long a transaction waits for a
	// conflicting lock before the wait-for graph is checked for deadlock
	// and, failing that, the acquire gives up.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// CypherConfig holds query-execution settings.
type CypherConfig struct {
	// QueryTimeout bounds how long a single Cypher query may run.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// LoadFromEnv loads configuration from environment variables, applying a
// sensible default for any variable that is unset.
//
// Environment Variables:
//
//	DEEPGRAPH_DATA_DIR                  (default "./data")
//	DEEPGRAPH_TRANSACTION_TIMEOUT       (default "30s")
//	DEEPGRAPH_WAL_SEGMENT_MAX_SIZE      (default "64M", human-readable byte size)
//	DEEPGRAPH_WAL_SYNC_ON_COMMIT        (default "true")
//	DEEPGRAPH_WAL_CHECKPOINT_INTERVAL   (default "5m")
//	DEEPGRAPH_LOCK_ACQUIRE_TIMEOUT      (default "5s")
//	DEEPGRAPH_CYPHER_QUERY_TIMEOUT      (default "30s")
//	DEEPGRAPH_LOG_LEVEL                 (default "info")
//	DEEPGRAPH_LOG_FORMAT                (default "text")
func LoadFromEnv() *Config {
	cfg := &Config{}

	cfg.Database.DataDir = getEnv("DEEPGRAPH_DATA_DIR", "./data")
	cfg.Database.TransactionTimeout = getEnvDuration("DEEPGRAPH_TRANSACTION_TIMEOUT", 30*time.Second)

	cfg.WAL.SegmentMaxBytes = parseMemorySize(getEnv("DEEPGRAPH_WAL_SEGMENT_MAX_SIZE", "64M"))
	cfg.WAL.SyncOnCommit = getEnvBool("DEEPGRAPH_WAL_SYNC_ON_COMMIT", true)
	cfg.WAL.CheckpointInterval = getEnvDuration("DEEPGRAPH_WAL_CHECKPOINT_INTERVAL", 5*time.Minute)

	cfg.Lock.AcquireTimeout = getEnvDuration("DEEPGRAPH_LOCK_ACQUIRE_TIMEOUT", 5*time.Second)

	cfg.Cypher.QueryTimeout = getEnvDuration("DEEPGRAPH_CYPHER_QUERY_TIMEOUT", 30*time.Second)

	cfg.Logging.Level = getEnv("DEEPGRAPH_LOG_LEVEL", "info")
	cfg.Logging.Format = getEnv("DEEPGRAPH_LOG_FORMAT", "text")

	return cfg
}

// LoadFromFile builds a Config from the environment and then overlays any
// field present in the YAML document at path. A key the document omits
// keeps its environment-derived value, so an override file only needs to
// name the settings it actually changes.
func LoadFromFile(path string) (*Config, error) {
	cfg := LoadFromEnv()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Database.DataDir == "" {
		return fmt.Errorf("database.data_dir must not be empty")
	}
	if c.Database.TransactionTimeout <= 0 {
		return fmt.Errorf("database.transaction_timeout must be positive")
	}
	if c.WAL.SegmentMaxBytes <= 0 {
		return fmt.Errorf("wal.segment_max_bytes must be positive")
	}
	if c.WAL.CheckpointInterval <= 0 {
		return fmt.Errorf("wal.checkpoint_interval must be positive")
	}
	if c.Lock.AcquireTimeout <= 0 {
		return fmt.Errorf("lock.acquire_timeout must be positive")
	}
	if c.Cypher.QueryTimeout <= 0 {
		return fmt.Errorf("cypher.query_timeout must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text; got %q", c.Logging.Format)
	}
	return nil
}

// String returns a representation of the Config safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DataDir: %s, WALSegment: %s, WALSync: %v, LockTimeout: %s, QueryTimeout: %s, Log: %s/%s}",
		c.Database.DataDir,
		FormatMemorySize(c.WAL.SegmentMaxBytes),
		c.WAL.SyncOnCommit,
		c.Lock.AcquireTimeout,
		c.Cypher.QueryTimeout,
		c.Logging.Level, c.Logging.Format,
	)
}

// Helper functions for environment variable parsing.

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

// parseMemorySize parses a human-readable memory size string.
// Supports: "1024", "1K", "1M", "1G", "1T", "0", "unlimited" (and the
// same suffixes with a trailing "B", e.g. "64MB").
func parseMemorySize(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" || s == "UNLIMITED" {
		return 0
	}

	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "T")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val * multiplier
}

// FormatMemorySize formats bytes as a human-readable string.
func FormatMemorySize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
