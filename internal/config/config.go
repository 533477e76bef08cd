// Package config handles configuration management with validation
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig         `yaml:"app"`
	Data        DataConfig        `yaml:"data"`
	Simulation  SimulationConfig  `yaml:"simulation"`
	Indicators  IndicatorsConfig  `yaml:"indicators"`
	Store       StoreConfig       `yaml:"store"`
	Server      ServerConfig      `yaml:"server"`
	Alert       AlertConfig       `yaml:"alert"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	System      SystemConfig      `yaml:"system"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name string `yaml:"name"`
	Mode string `yaml:"mode" validate:"oneof=simulate serve"`
}

// DataConfig locates the price history
type DataConfig struct {
	PricesCSV  string `yaml:"prices_csv"`
	Symbol     string `yaml:"symbol"`
	DateLayout string `yaml:"date_layout"` // Go reference layout, default 2006-01-02
}

// SimulationConfig holds the default run parameters
type SimulationConfig struct {
	NumPaths    int       `yaml:"num_paths" validate:"min=1"`
	NumSteps    int       `yaml:"num_steps" validate:"min=1"`
	Percentiles []float64 `yaml:"percentiles"`
	Seed        uint64    `yaml:"seed"`        // 0 draws a fresh seed per run
	StartPrice  float64   `yaml:"start_price"` // 0 uses the last close
	FloorAtZero bool      `yaml:"floor_at_zero"`
}

// IndicatorsConfig sets MACD and Bollinger periods
type IndicatorsConfig struct {
	Enabled         bool    `yaml:"enabled"`
	MACDShort       int     `yaml:"macd_short"`
	MACDLong        int     `yaml:"macd_long"`
	MACDSignal      int     `yaml:"macd_signal"`
	BollingerWindow int     `yaml:"bollinger_window"`
	BollingerK      float64 `yaml:"bollinger_k"`
}

// StoreConfig contains run persistence settings
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	Port      int     `yaml:"port" validate:"min=1,max=65535"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second per client
	RateBurst int     `yaml:"rate_burst"`
	MaxPaths  int     `yaml:"max_paths"`
	MaxSteps  int     `yaml:"max_steps"`
	MaxPoints int64   `yaml:"max_points"` // num_paths * (num_steps+1) per request
}

// AlertConfig contains tail-risk alert settings
type AlertConfig struct {
	Enabled bool `yaml:"enabled"`
	// LossThreshold is the fractional loss counted toward loss probability
	LossThreshold float64 `yaml:"loss_threshold"`
	// LossProbability is the share of losing paths that raises a warning
	LossProbability  float64 `yaml:"loss_probability"`
	SlackWebhookURL  Secret  `yaml:"slack_webhook_url"`
	TelegramBotToken Secret  `yaml:"telegram_bot_token"`
	TelegramChatID   string  `yaml:"telegram_chat_id"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	EnableMetrics bool `yaml:"enable_metrics"`
	TraceStdout   bool `yaml:"trace_stdout"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	SimulationWorkers int `yaml:"simulation_workers" validate:"min=0,max=1024"`
	SimulationBuffer  int `yaml:"simulation_buffer"`
	ChunkSize         int `yaml:"chunk_size"`
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

// LoadConfig loads configuration from a YAML file with environment variable expansion.
// Keys missing from the file keep their DefaultConfig values.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration over the defaults and validates it
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration.
// Every failing field is reported; the result unwraps to ValidationErrors.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.validateAppConfig()...)
	errs = append(errs, c.validateSimulationConfig()...)
	errs = append(errs, c.validateIndicatorsConfig()...)
	errs = append(errs, c.validateStoreConfig()...)
	errs = append(errs, c.validateServerConfig()...)
	errs = append(errs, c.validateAlertConfig()...)
	errs = append(errs, c.validateSystemConfig()...)
	errs = append(errs, c.validateConcurrencyConfig()...)
	return errors.Join(errs...)
}

func (c *Config) validateAppConfig() []error {
	validModes := []string{"simulate", "serve"}
	if c.App.Mode != "" && !contains(validModes, c.App.Mode) {
		return []error{ValidationError{
			Field:   "app.mode",
			Value:   c.App.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validModes, ", ")),
		}}
	}
	return nil
}

func (c *Config) validateSimulationConfig() []error {
	var errs []error
	s := c.Simulation
	if s.NumPaths < 1 {
		errs = append(errs, ValidationError{Field: "simulation.num_paths", Value: s.NumPaths, Message: "must be at least 1"})
	}
	if s.NumSteps < 1 {
		errs = append(errs, ValidationError{Field: "simulation.num_steps", Value: s.NumSteps, Message: "must be at least 1"})
	}
	if s.StartPrice < 0 {
		errs = append(errs, ValidationError{Field: "simulation.start_price", Value: s.StartPrice, Message: "must not be negative"})
	}
	for _, q := range s.Percentiles {
		if !(q >= 0 && q <= 100) {
			errs = append(errs, ValidationError{Field: "simulation.percentiles", Value: q, Message: "must be within [0, 100]"})
		}
	}
	return errs
}

func (c *Config) validateIndicatorsConfig() []error {
	if !c.Indicators.Enabled {
		return nil
	}
	var errs []error
	ind := c.Indicators
	if ind.MACDShort < 1 || ind.MACDLong < 1 || ind.MACDSignal < 1 {
		errs = append(errs, ValidationError{Field: "indicators.macd", Value: []int{ind.MACDShort, ind.MACDLong, ind.MACDSignal}, Message: "periods must be at least 1"})
	} else if ind.MACDShort >= ind.MACDLong {
		errs = append(errs, ValidationError{Field: "indicators.macd_short", Value: ind.MACDShort, Message: "must be below macd_long"})
	}
	if ind.BollingerWindow < 1 {
		errs = append(errs, ValidationError{Field: "indicators.bollinger_window", Value: ind.BollingerWindow, Message: "must be at least 1"})
	}
	if ind.BollingerK <= 0 {
		errs = append(errs, ValidationError{Field: "indicators.bollinger_k", Value: ind.BollingerK, Message: "must be positive"})
	}
	return errs
}

func (c *Config) validateStoreConfig() []error {
	if c.Store.Enabled && c.Store.Path == "" {
		return []error{ValidationError{Field: "store.path", Message: "required when the store is enabled"}}
	}
	return nil
}

func (c *Config) validateServerConfig() []error {
	var errs []error
	s := c.Server
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, ValidationError{Field: "server.port", Value: s.Port, Message: "must be within 1-65535"})
	}
	if s.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit", Value: s.RateLimit, Message: "must not be negative"})
	}
	if s.RateLimit > 0 && s.RateBurst < 1 {
		errs = append(errs, ValidationError{Field: "server.rate_burst", Value: s.RateBurst, Message: "must be at least 1 when rate limiting"})
	}
	if s.MaxPaths < 0 {
		errs = append(errs, ValidationError{Field: "server.max_paths", Value: s.MaxPaths, Message: "must not be negative"})
	}
	if s.MaxSteps < 0 {
		errs = append(errs, ValidationError{Field: "server.max_steps", Value: s.MaxSteps, Message: "must not be negative"})
	}
	if s.MaxPoints < 0 {
		errs = append(errs, ValidationError{Field: "server.max_points", Value: s.MaxPoints, Message: "must not be negative"})
	}
	return errs
}

func (c *Config) validateAlertConfig() []error {
	var errs []error
	a := c.Alert
	if a.LossThreshold < 0 || a.LossThreshold > 1 {
		errs = append(errs, ValidationError{Field: "alert.loss_threshold", Value: a.LossThreshold, Message: "must be a fraction within [0, 1]"})
	}
	if a.LossProbability < 0 || a.LossProbability > 1 {
		errs = append(errs, ValidationError{Field: "alert.loss_probability", Value: a.LossProbability, Message: "must be a fraction within [0, 1]"})
	}
	if a.Enabled && a.TelegramBotToken.IsSet() && a.TelegramChatID == "" {
		errs = append(errs, ValidationError{Field: "alert.telegram_chat_id", Message: "required with telegram_bot_token"})
	}
	return errs
}

func (c *Config) validateSystemConfig() []error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return []error{ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}}
	}
	return nil
}

func (c *Config) validateConcurrencyConfig() []error {
	var errs []error
	cc := c.Concurrency
	if cc.SimulationWorkers < 0 || cc.SimulationWorkers > 1024 {
		errs = append(errs, ValidationError{Field: "concurrency.simulation_workers", Value: cc.SimulationWorkers, Message: "must be within 0-1024"})
	}
	if cc.SimulationBuffer < 0 {
		errs = append(errs, ValidationError{Field: "concurrency.simulation_buffer", Value: cc.SimulationBuffer, Message: "must not be negative"})
	}
	if cc.ChunkSize < 0 {
		errs = append(errs, ValidationError{Field: "concurrency.chunk_size", Value: cc.ChunkSize, Message: "must not be negative"})
	}
	return errs
}

// String returns a YAML representation of the configuration with secrets redacted
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

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

// DefaultConfig returns the built-in configuration: the notebook's yearly
// horizon of 252 daily steps over 1000 paths.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name: "blackswan",
			Mode: "simulate",
		},
		Data: DataConfig{
			DateLayout: "2006-01-02",
		},
		Simulation: SimulationConfig{
			NumPaths:    1000,
			NumSteps:    252,
			Percentiles: []float64{2.5, 50, 97.5},
		},
		Indicators: IndicatorsConfig{
			Enabled:         true,
			MACDShort:       12,
			MACDLong:        26,
			MACDSignal:      9,
			BollingerWindow: 20,
			BollingerK:      2,
		},
		Store: StoreConfig{
			Path: "blackswan.db",
		},
		Server: ServerConfig{
			Port:      8080,
			RateLimit: 5,
			RateBurst: 10,
			MaxPaths:  100000,
			MaxSteps:  10000,
			MaxPoints: 50_000_000,
		},
		Alert: AlertConfig{
			LossThreshold:   0.2,
			LossProbability: 0.25,
			TimeoutSeconds:  10,
		},
		Telemetry: TelemetryConfig{
			EnableMetrics: true,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Concurrency: ConcurrencyConfig{
			SimulationBuffer: 1000,
		},
	}
}
