package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"kanban-sync/storage"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendTable  = "table"
)

// Config holds settings shared by the coordinator, stream service and
// storage-init binaries.
type Config struct {
	Backend                 string        `yaml:"storage_backend"`
	BoardID                 string        `yaml:"board_id"`
	RedisConnectionString   string        `yaml:"redis_connection_string"`
	StorageConnectionString string        `yaml:"storage_connection_string"`
	BoardTable              string        `yaml:"board_table"`
	JournalQueue            string        `yaml:"journal_queue"`
	SQLitePath              string        `yaml:"sqlite_path"`
	CoordinatorPort         string        `yaml:"coordinator_port"`
	StreamServicePort       string        `yaml:"stream_service_port"`
	UpdatesChannel          string        `yaml:"board_updates_channel"`
	DeduperTTL              time.Duration `yaml:"deduper_ttl"`
	BoardCacheTTL           time.Duration `yaml:"board_cache_ttl"`
	Debug                   bool          `yaml:"debug"`
}

func defaults() Config {
	return Config{
		Backend:           BackendMemory,
		BoardID:           "default",
		SQLitePath:        "kanban.db",
		CoordinatorPort:   "8080",
		StreamServicePort: "9000",
		DeduperTTL:        10 * time.Minute,
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and finally environment variables.
func Load() (*Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := defaults()
	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	strs := map[string]*string{
		"STORAGE_BACKEND":           &cfg.Backend,
		"BOARD_ID":                  &cfg.BoardID,
		"REDIS_CONNECTION_STRING":   &cfg.RedisConnectionString,
		"STORAGE_CONNECTION_STRING": &cfg.StorageConnectionString,
		"BOARD_TABLE":               &cfg.BoardTable,
		"JOURNAL_QUEUE":             &cfg.JournalQueue,
		"SQLITE_PATH":               &cfg.SQLitePath,
		"COORDINATOR_PORT":          &cfg.CoordinatorPort,
		"STREAM_SERVICE_PORT":       &cfg.StreamServicePort,
		"BOARD_UPDATES_CHANNEL":     &cfg.UpdatesChannel,
	}
	for key, dst := range strs {
		if val, ok := lookup(key); ok && val != "" {
			*dst = val
		}
	}

	durations := map[string]*time.Duration{
		"DEDUPER_TTL":     &cfg.DeduperTTL,
		"BOARD_CACHE_TTL": &cfg.BoardCacheTTL,
	}
	for key, dst := range durations {
		val, ok := lookup(key)
		if !ok || val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}

	if val, ok := lookup("DEBUG"); ok {
		if dbg, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = dbg
		}
	}
	return &cfg, nil
}

// Channel is the pub/sub channel carrying snapshots of the configured board.
func (c *Config) Channel() string {
	if c.UpdatesChannel != "" {
		return c.UpdatesChannel
	}
	return storage.UpdatesChannel(c.BoardID)
}

// Validate reports settings missing for the selected backend.
func (c *Config) Validate() error {
	if c.BoardID == "" {
		return fmt.Errorf("board id is required")
	}
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisConnectionString == "" {
			return fmt.Errorf("storage backend %s: REDIS_CONNECTION_STRING is required", c.Backend)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("storage backend %s: SQLITE_PATH is required", c.Backend)
		}
	case BackendTable:
		if c.StorageConnectionString == "" || c.BoardTable == "" {
			return fmt.Errorf("storage backend %s: STORAGE_CONNECTION_STRING and BOARD_TABLE are required", c.Backend)
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s (must be 'memory', 'redis', 'sqlite' or 'table')", c.Backend)
	}
	if c.JournalQueue != "" && c.StorageConnectionString == "" {
		return fmt.Errorf("JOURNAL_QUEUE requires STORAGE_CONNECTION_STRING")
	}
	if c.BoardCacheTTL > 0 && c.RedisConnectionString == "" {
		return fmt.Errorf("BOARD_CACHE_TTL requires REDIS_CONNECTION_STRING")
	}
	if c.DeduperTTL < 0 || c.BoardCacheTTL < 0 {
		return fmt.Errorf("ttl values must not be negative")
	}
	return nil
}
