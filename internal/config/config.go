package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tsungho/knowsync/internal/db"
)

// Config represents the application configuration
type Config struct {
	Database   db.Config        `toml:"database"`
	Atlassian  AtlassianConfig  `toml:"atlassian"`
	Dify       DifyConfig       `toml:"dify"`
	Jira       JiraConfig       `toml:"jira"`
	Confluence ConfluenceConfig `toml:"confluence"`
	HTTP       HTTPConfig       `toml:"http"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Logging    LoggingConfig    `toml:"logging"`
}

// AtlassianConfig holds shared Jira/Confluence credentials
type AtlassianConfig struct {
	URL      string `toml:"url"`
	Email    string `toml:"email"`
	APIToken string `toml:"api_token"`
}

// DifyConfig holds the destination knowledge base settings
type DifyConfig struct {
	APIURL    string `toml:"api_url"`
	APIKey    string `toml:"api_key"`
	DatasetID string `toml:"dataset_id"`
}

// JiraConfig holds the Jira source settings.
// MaxResults is the single-page fetch cap; there is no pagination loop.
type JiraConfig struct {
	ProjectKey string `toml:"project_key"`
	SinceDays  int    `toml:"since_days"`
	MaxResults int    `toml:"max_results"`
}

// ConfluenceConfig holds the Confluence source settings.
// An empty SpaceKey disables the Confluence source entirely.
type ConfluenceConfig struct {
	SpaceKey   string `toml:"space_key"`
	SinceDays  int    `toml:"since_days"`
	MaxResults int    `toml:"max_results"`
}

// HTTPConfig holds HTTP API server settings
type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// ScheduleConfig holds the daily timed-trigger settings
type ScheduleConfig struct {
	Enabled  bool   `toml:"enabled"`
	Hour     int    `toml:"hour"`
	Minute   int    `toml:"minute"`
	Timezone string `toml:"timezone"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: db.Config{
			Driver:          "sqlite3",
			DSN:             "knowsync.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Jira: JiraConfig{
			ProjectKey: "PROJ",
			SinceDays:  30,
			MaxResults: 100,
		},
		Confluence: ConfluenceConfig{
			SinceDays:  30,
			MaxResults: 100,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "0.0.0.0",
			Port:    8080,
		},
		Schedule: ScheduleConfig{
			Enabled:  true,
			Hour:     4,
			Minute:   0,
			Timezone: "Asia/Shanghai",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. Environment variables (ApplyEnv, called by the caller after loading)
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// envOverrides maps environment variable names to config fields.
// Mirrors the variables the original deployment documented in .env.
func (c *Config) envOverrides() map[string]*string {
	return map[string]*string{
		"ATLASSIAN_URL":        &c.Atlassian.URL,
		"ATLASSIAN_EMAIL":      &c.Atlassian.Email,
		"ATLASSIAN_API_TOKEN":  &c.Atlassian.APIToken,
		"DIFY_API_KEY":         &c.Dify.APIKey,
		"DIFY_API_URL":         &c.Dify.APIURL,
		"DIFY_DATASET_ID":      &c.Dify.DatasetID,
		"JIRA_PROJECT_KEY":     &c.Jira.ProjectKey,
		"CONFLUENCE_SPACE_KEY": &c.Confluence.SpaceKey,
	}
}

// ApplyEnv overlays environment variables onto the config. Secrets are
// expected to arrive this way rather than through the TOML file.
func (c *Config) ApplyEnv() {
	for name, field := range c.envOverrides() {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			c.Database.Driver = db.DriverPostgres
		}
	}
}

// isPlaceholder reports whether a value still holds template text from
// an example .env file
func isPlaceholder(value string) bool {
	return strings.HasPrefix(value, "your-") ||
		strings.HasPrefix(value, "paste-") ||
		value == "changeme"
}

// ValidateRequired checks the settings a sync run cannot proceed without.
// All offending settings are collected and reported together, not just
// the first one found.
func (c *Config) ValidateRequired() error {
	required := map[string]string{
		"ATLASSIAN_URL":       c.Atlassian.URL,
		"ATLASSIAN_EMAIL":     c.Atlassian.Email,
		"ATLASSIAN_API_TOKEN": c.Atlassian.APIToken,
		"DIFY_API_KEY":        c.Dify.APIKey,
		"DIFY_API_URL":        c.Dify.APIURL,
		"DIFY_DATASET_ID":     c.Dify.DatasetID,
	}

	var missing, invalid []string
	for name, value := range required {
		switch {
		case value == "":
			missing = append(missing, name)
		case isPlaceholder(value):
			invalid = append(invalid, name)
		}
	}

	sort.Strings(missing)
	sort.Strings(invalid)

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, fmt.Sprintf("missing required settings: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		problems = append(problems, fmt.Sprintf("settings still hold placeholder values: %s", strings.Join(invalid, ", ")))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return nil
}

// Validate checks if the configuration is structurally valid
func (c *Config) Validate() error {
	// Database validation
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver must be specified")
	}
	if c.Database.Driver != db.DriverSQLite && c.Database.Driver != db.DriverPostgres {
		return fmt.Errorf("unsupported database driver: %s (must be sqlite3 or postgres)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN must be specified")
	}

	// Source validation
	if c.Jira.MaxResults <= 0 {
		return fmt.Errorf("jira max_results must be positive")
	}
	if c.Jira.SinceDays <= 0 {
		return fmt.Errorf("jira since_days must be positive")
	}
	if c.Confluence.MaxResults <= 0 {
		return fmt.Errorf("confluence max_results must be positive")
	}
	if c.Confluence.SinceDays <= 0 {
		return fmt.Errorf("confluence since_days must be positive")
	}

	// HTTP validation
	if c.HTTP.Enabled {
		if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
			return fmt.Errorf("HTTP port must be between 1 and 65535")
		}
	}

	// Schedule validation
	if c.Schedule.Enabled {
		if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 {
			return fmt.Errorf("schedule hour must be between 0 and 23")
		}
		if c.Schedule.Minute < 0 || c.Schedule.Minute > 59 {
			return fmt.Errorf("schedule minute must be between 0 and 59")
		}
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return fmt.Errorf("invalid schedule timezone: %s", c.Schedule.Timezone)
		}
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}
