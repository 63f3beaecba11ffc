// Package config provides configuration loading for the shift report
// server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Client    ClientConfig    `yaml:"client"`
	Log       LogConfig       `yaml:"log"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// ServerConfig configures the API server
type ServerConfig struct {
	// Addr is the listen address (default: :4000)
	Addr string `yaml:"addr"`
	// Secret signs cookie sessions and bearer tokens. At least 32 bytes.
	Secret string `yaml:"secret"`
	// SessionIdle expires a cookie session after this much inactivity
	SessionIdle time.Duration `yaml:"session_idle"`
	// TokenMaxAge is how long a bearer token stays valid
	TokenMaxAge time.Duration `yaml:"token_max_age"`
	// SecureCookies sets the Secure flag on the session cookie
	SecureCookies bool `yaml:"secure_cookies"`
}

// DatabaseConfig selects the report store
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string `yaml:"driver"`
	// DSN is the file path (sqlite) or connection string (postgres)
	DSN string `yaml:"dsn"`
}

// ClientConfig configures the CLI client
type ClientConfig struct {
	// APIURL is the base URL of the report API
	APIURL string `yaml:"api_url"`
	// Timeout bounds each API call (0 = no limit)
	Timeout time.Duration `yaml:"timeout"`
	// SessionFile stores the login between invocations
	SessionFile string `yaml:"session_file"`
}

// LogConfig configures logging
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// BootstrapConfig creates the first admin on an empty database
type BootstrapConfig struct {
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	sessionFile := ".shiftreport-session.yaml"
	if home, err := os.UserHomeDir(); err == nil {
		sessionFile = filepath.Join(home, ".config", "shiftreport", "session.yaml")
	}
	return &Config{
		Server: ServerConfig{
			Addr:        ":4000",
			SessionIdle: 30 * time.Minute,
			TokenMaxAge: 12 * time.Hour,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "shiftreport.db",
		},
		Client: ClientConfig{
			APIURL:      "http://localhost:4000",
			Timeout:     30 * time.Second,
			SessionFile: sessionFile,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.SessionIdle <= 0 {
		return fmt.Errorf("server.session_idle must be positive")
	}
	if c.Server.TokenMaxAge <= 0 {
		return fmt.Errorf("server.token_max_age must be positive")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Client.APIURL == "" {
		return fmt.Errorf("client.api_url is required")
	}
	if c.Client.Timeout < 0 {
		return fmt.Errorf("client.timeout must not be negative")
	}
	if (c.Bootstrap.AdminUsername == "") != (c.Bootstrap.AdminPassword == "") {
		return fmt.Errorf("bootstrap.admin_username and bootstrap.admin_password must be set together")
	}
	return nil
}

// ValidateServer adds the checks that only matter when serving.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Server.Secret) < 32 {
		return fmt.Errorf("server.secret must be at least 32 bytes (set it in the config file or SHIFTREPORT_SECRET)")
	}
	return nil
}

// ApplyEnv overrides values from SHIFTREPORT_* environment variables
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SHIFTREPORT_SECRET"); v != "" {
		c.Server.Secret = v
	}
	if v := os.Getenv("SHIFTREPORT_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("SHIFTREPORT_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("SHIFTREPORT_API_URL"); v != "" {
		c.Client.APIURL = v
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads path when given, otherwise starts from defaults, then applies
// the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
