// Package config loads application configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`

	Remote struct {
		ProjectURL string `yaml:"project_url"`
		AnonKey    string `yaml:"anon_key"`
		UserToken  string `yaml:"user_token,omitempty"`
		UserID     string `yaml:"user_id,omitempty"`
	} `yaml:"remote"`

	Sync struct {
		DrainInterval time.Duration `yaml:"drain_interval"`
		ProbeInterval time.Duration `yaml:"probe_interval"`
	} `yaml:"sync"`

	Backup struct {
		Interval       time.Duration `yaml:"interval"`
		RetentionCount int           `yaml:"retention_count"`
		Dir            string        `yaml:"dir"`

		Offsite OffsiteConfig `yaml:"offsite,omitempty"`
	} `yaml:"backup"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	LogLevel string `yaml:"log_level"`
}

// OffsiteConfig selects an S3-compatible target for backup replication.
// Replication is disabled unless a provider is set.
type OffsiteConfig struct {
	Provider       string `yaml:"provider,omitempty"` // "aws", "r2" or "minio"
	Endpoint       string `yaml:"endpoint,omitempty"` // MinIO only
	AccountID      string `yaml:"account_id,omitempty"` // R2 only
	Bucket         string `yaml:"bucket,omitempty"`
	AccessKey      string `yaml:"access_key,omitempty"`
	SecretKey      string `yaml:"secret_key,omitempty"`
	Region         string `yaml:"region,omitempty"` // AWS only
	UseSSL         bool   `yaml:"use_ssl,omitempty"` // MinIO only
	RetentionCount int    `yaml:"retention_count,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.DataDir = "./data"
	cfg.Sync.DrainInterval = 5 * time.Minute
	cfg.Sync.ProbeInterval = 30 * time.Second
	cfg.Backup.Dir = "backups"
	cfg.Backup.RetentionCount = 10
	cfg.Server.Addr = "localhost:8090"
	cfg.LogLevel = "INFO"
	return cfg
}

// Load reads configuration from an optional YAML file, then applies
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config YAML: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Sync.DrainInterval <= 0 {
		return fmt.Errorf("sync.drain_interval must be positive")
	}
	if c.Sync.ProbeInterval <= 0 {
		return fmt.Errorf("sync.probe_interval must be positive")
	}
	if p := c.Backup.Offsite.Provider; p != "" {
		switch p {
		case "aws", "r2", "minio":
		default:
			return fmt.Errorf("backup.offsite.provider must be aws, r2 or minio, got %q", p)
		}
		if c.Backup.Offsite.Bucket == "" {
			return fmt.Errorf("backup.offsite.bucket is required")
		}
	}
	return nil
}

// applyEnv overrides config values from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("FAKTURE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FAKTURE_REMOTE_URL"); v != "" {
		cfg.Remote.ProjectURL = v
	}
	if v := os.Getenv("FAKTURE_REMOTE_KEY"); v != "" {
		cfg.Remote.AnonKey = v
	}
	if v := os.Getenv("FAKTURE_USER_ID"); v != "" {
		cfg.Remote.UserID = v
	}
	if v := os.Getenv("FAKTURE_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("FAKTURE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
