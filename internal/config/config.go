package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // zone rules for hosts without a system zoneinfo

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Timezone string         `yaml:"timezone"` // IANA zone the feed's wall-clock timestamps are in
	Source   SourceConfig   `yaml:"source"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Archive  ArchiveConfig  `yaml:"archive,omitempty"`
	MQTT     MQTTConfig     `yaml:"mqtt,omitempty"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
}

// SourceConfig describes where the ESPI feed is downloaded from
type SourceConfig struct {
	URL       string        `yaml:"url"`
	UserAgent string        `yaml:"user_agent,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"` // 0 = no timeout
}

// InfluxDBConfig holds InfluxDB v2 connection settings
type InfluxDBConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	Batch  bool   `yaml:"batch,omitempty"` // Send all points in one request instead of one per reading
}

// ArchiveConfig holds the local SQLite archive settings
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// MQTTConfig holds MQTT publishing settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	ClientID    string `yaml:"client_id,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
	QoS         byte   `yaml:"qos,omitempty"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stdout or stderr
}

// MetricsConfig holds run metrics settings
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"` // node_exporter textfile collector path
}

// Default returns a Config with defaults applied
func Default() *Config {
	return &Config{
		Timezone: "UTC",
		Archive: ArchiveConfig{
			Path: DefaultArchivePath(),
		},
		MQTT: MQTTConfig{
			ClientID:    "espisync",
			TopicPrefix: "energy_usage",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the config file, applies environment overrides and validates.
// A missing file is not an error: everything can come from the environment.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Holds tokens
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// DefaultArchivePath returns the default archive database path (local directory)
func DefaultArchivePath() string {
	return "espisync.db"
}

// applyEnvOverrides applies ESPISYNC_* environment variables.
// Secrets are usually supplied this way rather than written to the file.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"ESPISYNC_TIMEZONE", &cfg.Timezone},
		{"ESPISYNC_SOURCE_URL", &cfg.Source.URL},
		{"ESPISYNC_INFLUXDB_URL", &cfg.InfluxDB.URL},
		{"ESPISYNC_INFLUXDB_TOKEN", &cfg.InfluxDB.Token},
		{"ESPISYNC_INFLUXDB_ORG", &cfg.InfluxDB.Org},
		{"ESPISYNC_INFLUXDB_BUCKET", &cfg.InfluxDB.Bucket},
		{"ESPISYNC_MQTT_USERNAME", &cfg.MQTT.Username},
		{"ESPISYNC_MQTT_PASSWORD", &cfg.MQTT.Password},
		{"ESPISYNC_LOG_LEVEL", &cfg.Logging.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// Validate checks the settings every command needs.
// Sink settings are checked by RequireSinks.
func (c *Config) Validate() error {
	var errs []string

	if c.Timezone == "" {
		errs = append(errs, "timezone is required")
	} else if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("timezone %q: %v", c.Timezone, err))
	}

	if c.Source.Timeout < 0 {
		errs = append(errs, "source.timeout must not be negative")
	}

	if c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		errs = append(errs, "archive.path is required when archive is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RequireSource checks that a feed URL is configured
func (c *Config) RequireSource() error {
	if c.Source.URL == "" {
		return errors.New("source.url is required (or set ESPISYNC_SOURCE_URL)")
	}
	return nil
}

// RequireSinks checks the settings needed to write readings
func (c *Config) RequireSinks() error {
	var errs []string

	if c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required")
	}
	if c.InfluxDB.Token == "" {
		errs = append(errs, "influxdb.token is required (or set ESPISYNC_INFLUXDB_TOKEN)")
	}
	if c.InfluxDB.Org == "" {
		errs = append(errs, "influxdb.org is required")
	}
	if c.InfluxDB.Bucket == "" {
		errs = append(errs, "influxdb.bucket is required")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Location returns the configured timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// GetTopicPrefix returns the MQTT topic prefix with a default of "energy_usage"
func (c *Config) GetTopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "energy_usage"
	}
	return c.MQTT.TopicPrefix
}
