// Package config loads and validates the Crewbase configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the CRW_ prefix (e.g., CRW_DATABASE_HOST
// overrides database.host in the YAML). The layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Identity     IdentityConfig     `mapstructure:"identity"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	Security     SecurityConfig     `mapstructure:"security"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetAddress returns the host:port listen address for the HTTP server
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN returns the PostgreSQL connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// IdentityConfig holds the identity directory client configuration. The client
// authenticates machine-to-machine via the OAuth2 client-credentials grant
// against TokenURL, requesting access to APIResource.
type IdentityConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	TokenURL     string        `mapstructure:"token_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	APIResource  string        `mapstructure:"api_resource"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryMax     int           `mapstructure:"retry_max"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// ProvisioningConfig holds workflow tuning: per-stage timeouts and the metadata
// reconciler schedule.
type ProvisioningConfig struct {
	DirectoryTimeout    time.Duration `mapstructure:"directory_timeout"`
	DatabaseTimeout     time.Duration `mapstructure:"database_timeout"`
	ReconcilerInterval  time.Duration `mapstructure:"reconciler_interval"`
	ReconcilerBatchSize int           `mapstructure:"reconciler_batch_size"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// RateLimitingConfig holds rate limiting configuration. Onboarding endpoints get
// their own, stricter bucket since invitation-code redemption is the natural
// target for enumeration attempts.
type RateLimitingConfig struct {
	Enabled                     bool `mapstructure:"enabled"`
	RequestsPerMinute           int  `mapstructure:"requests_per_minute"`
	Burst                       int  `mapstructure:"burst"`
	OnboardingRequestsPerMinute int  `mapstructure:"onboarding_requests_per_minute"`
	OnboardingBurst             int  `mapstructure:"onboarding_burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs
// during Unmarshal. viper.BindEnv only errors when called with zero keys; since
// every key here is a non-empty hardcoded string, any error indicates a
// programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Identity directory
		"identity.base_url",
		"identity.token_url",
		"identity.client_id",
		"identity.client_secret",
		"identity.api_resource",
		"identity.timeout",
		"identity.retry_max",
		"identity.retry_backoff",

		// Provisioning
		"provisioning.directory_timeout",
		"provisioning.database_timeout",
		"provisioning.reconciler_interval",
		"provisioning.reconciler_batch_size",

		// Security
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.onboarding_requests_per_minute",
		"security.rate_limiting.onboarding_burst",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/crewbase")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("CRW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields so secrets can be
	// injected as ${VAR} references from infrastructure tooling.
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Identity.ClientSecret = expandEnv(cfg.Identity.ClientSecret)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "crewbase")
	v.SetDefault("database.user", "crewbase")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Identity directory defaults
	v.SetDefault("identity.timeout", "10s")
	v.SetDefault("identity.retry_max", 3)
	v.SetDefault("identity.retry_backoff", "250ms")

	// Provisioning defaults
	v.SetDefault("provisioning.directory_timeout", "10s")
	v.SetDefault("provisioning.database_timeout", "5s")
	v.SetDefault("provisioning.reconciler_interval", "1m")
	v.SetDefault("provisioning.reconciler_batch_size", 50)

	// Security defaults
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 200)
	v.SetDefault("security.rate_limiting.burst", 50)
	v.SetDefault("security.rate_limiting.onboarding_requests_per_minute", 10)
	v.SetDefault("security.rate_limiting.onboarding_burst", 3)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
}

// Validate checks the configuration for fatal misconfiguration. It runs on every
// load so a bad deployment fails at startup, not on the first request.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Identity.BaseURL == "" {
		return fmt.Errorf("identity.base_url is required")
	}
	if c.Identity.TokenURL == "" {
		return fmt.Errorf("identity.token_url is required")
	}
	if c.Identity.ClientID == "" {
		return fmt.Errorf("identity.client_id is required")
	}
	if c.Telemetry.Metrics.Enabled {
		if c.Telemetry.Metrics.PrometheusPort < 1 || c.Telemetry.Metrics.PrometheusPort > 65535 {
			return fmt.Errorf("telemetry.metrics.prometheus_port must be between 1 and 65535, got %d",
				c.Telemetry.Metrics.PrometheusPort)
		}
	}
	return nil
}

// expandEnv resolves ${VAR} and $VAR references against the process environment,
// leaving plain values untouched.
func expandEnv(value string) string {
	if strings.Contains(value, "$") {
		return os.ExpandEnv(value)
	}
	return value
}
