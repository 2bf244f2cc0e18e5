// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig              `yaml:"app"`
	Server      ServerConfig           `yaml:"server"`
	Venues      map[string]VenueConfig `yaml:"venues"`
	Monitoring  MonitoringConfig       `yaml:"monitoring"`
	Chains      map[string]ChainConfig `yaml:"chains"`
	Concurrency ConcurrencyConfig      `yaml:"concurrency"`
	Telemetry   TelemetryConfig        `yaml:"telemetry"`
	Alerts      AlertsConfig           `yaml:"alerts"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name         string   `yaml:"name"`
	LogLevel     string   `yaml:"log_level"`
	ActiveVenues []string `yaml:"active_venues"`
}

// ServerConfig contains the HTTP API settings
type ServerConfig struct {
	Port                int `yaml:"port"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
}

// VenueConfig contains per-venue overrides. All fields are optional; the
// adapters carry production defaults.
type VenueConfig struct {
	SpotWSURL          string `yaml:"spot_ws_url"`
	FuturesWSURL       string `yaml:"futures_ws_url"`
	RestBaseURL        string `yaml:"rest_base_url"`
	FuturesRestBaseURL string `yaml:"futures_rest_base_url"`
	RateLimitRPS       int    `yaml:"rate_limit_rps"`
}

// MonitoringConfig contains session defaults
type MonitoringConfig struct {
	DefaultThresholdPercent float64 `yaml:"default_threshold_percent"`
	ConnectTimeoutSeconds   int     `yaml:"connect_timeout_seconds"`
	MaxReconnectAttempts    int     `yaml:"max_reconnect_attempts"`
}

// ChainConfig contains on-chain polling settings for one network
type ChainConfig struct {
	RPCURL         string `yaml:"rpc_url"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	NotifyPoolSize   int `yaml:"notify_pool_size"`
	NotifyPoolBuffer int `yaml:"notify_pool_buffer"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	EnableMetrics bool `yaml:"enable_metrics"`
}

// AlertsConfig configures outbound alert channels. Empty values disable the
// corresponding channel.
type AlertsConfig struct {
	SlackWebhookURL  string `yaml:"slack_webhook_url"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// Environment variables that override the chain RPC endpoints from the file.
var chainRPCEnvVars = map[string]string{
	"ethereum":  "ETH_RPC_URL",
	"bsc":       "BSC_RPC_URL",
	"polygon":   "POLYGON_RPC_URL",
	"avalanche": "AVAX_RPC_URL",
}

// LoadConfig loads configuration from a YAML file with environment variable
// expansion and env overrides for chain RPC endpoints.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnvOverrides lets deployment environments point chains at their own
// RPC endpoints without editing the file.
func (c *Config) applyEnvOverrides() {
	for chain, envVar := range chainRPCEnvVars {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}
		cc := c.Chains[chain]
		cc.RPCURL = value
		if c.Chains == nil {
			c.Chains = make(map[string]ChainConfig)
		}
		c.Chains[chain] = cc
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateAppConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateServerConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateMonitoringConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateChains(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateConcurrencyConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	validVenues := []string{"binance", "mexc", "gate", "bitget"}
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

	if len(c.App.ActiveVenues) == 0 {
		return ValidationError{
			Field:   "app.active_venues",
			Message: "at least one venue must be active",
		}
	}

	for _, v := range c.App.ActiveVenues {
		if !contains(validVenues, v) {
			return ValidationError{
				Field:   "app.active_venues",
				Value:   v,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(validVenues, ", ")),
			}
		}
	}

	if !contains(validLevels, strings.ToUpper(c.App.LogLevel)) {
		return ValidationError{
			Field:   "app.log_level",
			Value:   c.App.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}

	return nil
}

func (c *Config) validateServerConfig() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ValidationError{
			Field:   "server.port",
			Value:   c.Server.Port,
			Message: "must be between 1 and 65535",
		}
	}
	return nil
}

func (c *Config) validateMonitoringConfig() error {
	if c.Monitoring.DefaultThresholdPercent < 0 {
		return ValidationError{
			Field:   "monitoring.default_threshold_percent",
			Value:   c.Monitoring.DefaultThresholdPercent,
			Message: "must not be negative",
		}
	}
	if c.Monitoring.ConnectTimeoutSeconds < 1 || c.Monitoring.ConnectTimeoutSeconds > 60 {
		return ValidationError{
			Field:   "monitoring.connect_timeout_seconds",
			Value:   c.Monitoring.ConnectTimeoutSeconds,
			Message: "must be between 1 and 60",
		}
	}
	if c.Monitoring.MaxReconnectAttempts < 1 || c.Monitoring.MaxReconnectAttempts > 100 {
		return ValidationError{
			Field:   "monitoring.max_reconnect_attempts",
			Value:   c.Monitoring.MaxReconnectAttempts,
			Message: "must be between 1 and 100",
		}
	}
	return nil
}

func (c *Config) validateChains() error {
	for name, chain := range c.Chains {
		if chain.RPCURL == "" {
			return ValidationError{
				Field:   fmt.Sprintf("chains.%s.rpc_url", name),
				Message: "RPC URL is required",
			}
		}
		// Poll intervals below 300ms hammer public RPC endpoints.
		if chain.PollIntervalMS != 0 && chain.PollIntervalMS < 300 {
			return ValidationError{
				Field:   fmt.Sprintf("chains.%s.poll_interval_ms", name),
				Value:   chain.PollIntervalMS,
				Message: "must be at least 300",
			}
		}
	}
	return nil
}

func (c *Config) validateConcurrencyConfig() error {
	if c.Concurrency.NotifyPoolSize < 1 || c.Concurrency.NotifyPoolSize > 100 {
		return ValidationError{
			Field:   "concurrency.notify_pool_size",
			Value:   c.Concurrency.NotifyPoolSize,
			Message: "must be between 1 and 100",
		}
	}
	if c.Concurrency.NotifyPoolBuffer < 1 || c.Concurrency.NotifyPoolBuffer > 10000 {
		return ValidationError{
			Field:   "concurrency.notify_pool_buffer",
			Value:   c.Concurrency.NotifyPoolBuffer,
			Message: "must be between 1 and 10000",
		}
	}
	return nil
}

// expandEnvVars expands ${VAR} references in the raw YAML content
func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a configuration with production defaults applied.
// LoadConfig overlays the file on top of these values.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:         "arb_monitor",
			LogLevel:     "INFO",
			ActiveVenues: []string{"binance", "mexc", "gate", "bitget"},
		},
		Server: ServerConfig{
			Port:                8080,
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 15,
		},
		Monitoring: MonitoringConfig{
			DefaultThresholdPercent: 1.0,
			ConnectTimeoutSeconds:   5,
			MaxReconnectAttempts:    5,
		},
		Concurrency: ConcurrencyConfig{
			NotifyPoolSize:   8,
			NotifyPoolBuffer: 1024,
		},
		Telemetry: TelemetryConfig{
			EnableMetrics: true,
		},
	}
}
