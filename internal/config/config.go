// Package config builds the runtime configuration from defaults, an
// optional YAML file, RITUAL_* environment variables, and finally
// command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Config holds runtime settings for ritual.
//
// Empty paths are derived from DataDir by Resolve: the store lives at
// DataDir/ritual.db (or ritual.bolt) and backups under DataDir/backups.
type Config struct {
	DataDir string        `yaml:"data_dir"`
	Storage StorageConfig `yaml:"storage"`
	Backup  BackupConfig  `yaml:"backup"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type BackupConfig struct {
	Dir           string        `yaml:"dir"`
	MaxBackups    int           `yaml:"max_backups"`
	CheckInterval time.Duration `yaml:"check_interval"`
	Platform      string        `yaml:"platform"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		DataDir: "data",
		Storage: StorageConfig{Driver: DriverSQLite},
		Backup: BackupConfig{
			MaxBackups:    5,
			CheckInterval: time.Hour,
			Platform:      "server",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Load applies defaults, then the YAML file at path when path is not empty,
// then the environment read through getenv. Flags are applied by the caller
// before Resolve.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.loadEnv(getenv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("RITUAL_DATA_DIR", &c.DataDir)
	str("RITUAL_STORAGE_DRIVER", &c.Storage.Driver)
	str("RITUAL_DB_PATH", &c.Storage.Path)
	str("RITUAL_BACKUP_DIR", &c.Backup.Dir)
	str("RITUAL_HTTP_ADDR", &c.HTTP.Addr)
	str("RITUAL_LOG_LEVEL", &c.Log.Level)
	str("RITUAL_LOG_FORMAT", &c.Log.Format)

	if v := strings.TrimSpace(getenv("RITUAL_MAX_BACKUPS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RITUAL_MAX_BACKUPS: %w", err)
		}
		c.Backup.MaxBackups = n
	}
	if v := strings.TrimSpace(getenv("RITUAL_BACKUP_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RITUAL_BACKUP_INTERVAL: %w", err)
		}
		c.Backup.CheckInterval = d
	}
	if v := strings.TrimSpace(getenv("RITUAL_ALLOWED_ORIGINS")); v != "" {
		c.HTTP.AllowedOrigins = strings.Split(v, ",")
	}
	return nil
}

// Resolve fills derived paths and checks the result.
func (c *Config) Resolve() error {
	if c.Storage.Path == "" {
		name := "ritual.db"
		if c.Storage.Driver == DriverBolt {
			name = "ritual.bolt"
		}
		c.Storage.Path = filepath.Join(c.DataDir, name)
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = filepath.Join(c.DataDir, "backups")
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverSQLite, DriverBolt:
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q or %q, got %q", DriverSQLite, DriverBolt, c.Storage.Driver))
	}
	if c.Backup.MaxBackups < 1 {
		errs = append(errs, fmt.Errorf("backup.max_backups must be at least 1, got %d", c.Backup.MaxBackups))
	}
	if c.Backup.CheckInterval <= 0 {
		errs = append(errs, errors.New("backup.check_interval must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
