package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Backend  BackendConfig  `yaml:"backend"`
	Printers PrintersConfig `yaml:"printers"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BackendConfig points at the remote print service jobs are submitted to.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
	JobPath string        `yaml:"job_path"`
}

type PrintersConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	Disks map[string]DiskConfig `yaml:"disks"`
}

type DiskConfig struct {
	Driver       string `yaml:"driver"`
	Root         string `yaml:"root"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// JobsConfig seeds every new print job.
type JobsConfig struct {
	DefaultOptions map[string]any `yaml:"default_options"`
	DefaultSource  string         `yaml:"default_source"`
}

type WebhooksConfig struct {
	RetryCount  int           `yaml:"retry_count"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Timeout     time.Duration `yaml:"timeout"`
	WorkerCount int           `yaml:"worker_count"`
	QueueSize   int           `yaml:"queue_size"`
}

// ArchiveConfig controls how long submission records stay in the main
// database before moving to monthly archive files.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path"`
	RetentionDays int           `yaml:"retention_days"`
	Interval      time.Duration `yaml:"interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/remoteprint.db",
		},
		Backend: BackendConfig{
			BaseURL: "https://api.printnode.com",
			Timeout: 15 * time.Second,
			JobPath: "printjobs",
		},
		Printers: PrintersConfig{
			RefreshInterval: time.Minute,
			CacheTTL:        30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Storage: StorageConfig{
			Disks: map[string]DiskConfig{
				"local": {Driver: "local", Root: "./data/files"},
			},
		},
		Jobs: JobsConfig{
			DefaultOptions: map[string]any{},
			DefaultSource:  "remoteprint",
		},
		Webhooks: WebhooksConfig{
			RetryCount:  3,
			RetryDelay:  5 * time.Second,
			Timeout:     10 * time.Second,
			WorkerCount: 3,
			QueueSize:   100,
		},
		Archive: ArchiveConfig{
			Path:          "./data/archives",
			RetentionDays: 90,
			Interval:      24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overrides fields from REMOTEPRINT_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("REMOTEPRINT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("REMOTEPRINT_DB_PATH"); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv("REMOTEPRINT_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}

	if v := os.Getenv("REMOTEPRINT_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}

	if v := os.Getenv("REMOTEPRINT_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}

	if v := os.Getenv("REMOTEPRINT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend base url is required")
	}

	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend timeout must be non-negative")
	}

	if c.Printers.RefreshInterval < 0 {
		return fmt.Errorf("printer refresh interval must be non-negative")
	}

	if c.Printers.CacheTTL < 0 {
		return fmt.Errorf("printer cache ttl must be non-negative")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}

	for name, disk := range c.Storage.Disks {
		switch disk.Driver {
		case "local":
			if disk.Root == "" {
				return fmt.Errorf("storage disk %q: root is required", name)
			}
		case "s3":
			if disk.Bucket == "" {
				return fmt.Errorf("storage disk %q: bucket is required", name)
			}
		default:
			return fmt.Errorf("storage disk %q: unknown driver %q (valid: local, s3)", name, disk.Driver)
		}
	}

	if c.Webhooks.RetryCount < 0 {
		return fmt.Errorf("webhook retry count must be non-negative")
	}

	if c.Webhooks.WorkerCount < 1 {
		return fmt.Errorf("webhook worker count must be at least 1")
	}

	if c.Archive.Enabled && c.Archive.RetentionDays < 1 {
		return fmt.Errorf("archive retention days must be at least 1")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":    true,
		"text":    true,
		"console": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, console)", c.Logging.Format)
	}

	return nil
}
