package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Users    []UserConfig   `yaml:"users"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 30s)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
}

// StorageConfig contains job storage settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DispatchConfig contains background dispatch worker settings
type DispatchConfig struct {
	Workers         int           `yaml:"workers"`          // Concurrent job claims (default: 2)
	ProcessInterval time.Duration `yaml:"process_interval"` // Pending-job poll cadence (default: 5s)
	SendConcurrency int           `yaml:"send_concurrency"` // Parallel relay sends per job (default: 4)
	PerEmailPace    time.Duration `yaml:"per_email_pace"`   // Advisory pace used for completion estimates (default: 2s)
	MaxActiveJobs   int           `yaml:"max_active_jobs"`  // Pending+processing cap before 503 (default: 50)
	RelayTimeout    time.Duration `yaml:"relay_timeout"`    // Per-request relay client timeout (default: 30s)
}

// UserConfig describes one account allowed to submit dispatches.
// Each user owns a set of sending servers; default_server_id must
// reference one of them.
type UserConfig struct {
	Email           string             `yaml:"email"`
	Name            string             `yaml:"name"`
	Token           string             `yaml:"token"` // bearer token for API auth
	Servers         []UserServerConfig `yaml:"servers"`
	DefaultServerID string             `yaml:"default_server_id"`
}

// UserServerConfig describes one sending server owned by a user
type UserServerConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	IP      string `yaml:"ip"`
	APIKey  string `yaml:"api_key"`
	Active  *bool  `yaml:"active"` // nil means active
}

// IsActive reports whether the server is enabled in config.
func (s *UserServerConfig) IsActive() bool {
	return s.Active == nil || *s.Active
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Default: /metrics
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/orca/jobs.db"
	}

	if c.Dispatch.Workers == 0 {
		c.Dispatch.Workers = 2
	}
	if c.Dispatch.ProcessInterval == 0 {
		c.Dispatch.ProcessInterval = 5 * time.Second
	}
	if c.Dispatch.SendConcurrency == 0 {
		c.Dispatch.SendConcurrency = 4
	}
	if c.Dispatch.PerEmailPace == 0 {
		c.Dispatch.PerEmailPace = 2 * time.Second
	}
	if c.Dispatch.MaxActiveJobs == 0 {
		c.Dispatch.MaxActiveJobs = 50
	}
	if c.Dispatch.RelayTimeout == 0 {
		c.Dispatch.RelayTimeout = 30 * time.Second
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	seenTokens := make(map[string]string)
	for i := range c.Users {
		if err := c.validateUser(&c.Users[i], seenTokens); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateUser(u *UserConfig, seenTokens map[string]string) error {
	if u.Email == "" {
		return fmt.Errorf("users: email is required")
	}
	if u.Token == "" {
		return fmt.Errorf("users.%s: token is required", u.Email)
	}
	if other, ok := seenTokens[u.Token]; ok {
		return fmt.Errorf("users.%s: token already used by %s", u.Email, other)
	}
	seenTokens[u.Token] = u.Email

	ids := make(map[string]bool, len(u.Servers))
	for _, srv := range u.Servers {
		if srv.ID == "" {
			return fmt.Errorf("users.%s: server id is required", u.Email)
		}
		if ids[srv.ID] {
			return fmt.Errorf("users.%s: duplicate server id %s", u.Email, srv.ID)
		}
		ids[srv.ID] = true
		if srv.BaseURL == "" {
			return fmt.Errorf("users.%s: server %s: base_url is required", u.Email, srv.ID)
		}
	}

	// default_server_id must reference one of the user's servers
	if u.DefaultServerID != "" && !ids[u.DefaultServerID] {
		return fmt.Errorf("users.%s: default_server_id %s does not match any server", u.Email, u.DefaultServerID)
	}

	return nil
}
