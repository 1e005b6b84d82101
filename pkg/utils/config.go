package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Browser   BrowserConfig   `toml:"browser"`
	Logging   LoggingConfig   `toml:"logging"`
	Fallback  FallbackConfig  `toml:"fallback"`
}

// ServerConfig configures the operator API
type ServerConfig struct {
	Host             string `toml:"host" validate:"required"`
	Port             int    `toml:"port" validate:"gte=1,lte=65535"`
	// minimum gap between progress events per worker on the event feed
	ProgressThrottle string `toml:"progress_throttle"`
}

// StorageConfig selects the session repository backend
type StorageConfig struct {
	Backend    string `toml:"backend" validate:"oneof=sqlite badger memory"`
	SQLitePath string `toml:"sqlite_path"`
	BadgerPath string `toml:"badger_path"`
}

// SchedulerConfig holds the dispatch timing knobs. Durations are strings, e.g. "10s".
type SchedulerConfig struct {
	ThresholdPercent       int    `toml:"threshold_percent" validate:"gte=1,lte=100"`
	Pipelining             bool   `toml:"pipelining"`
	GuardCooldown          string `toml:"guard_cooldown"`
	ThresholdDispatchDelay string `toml:"threshold_dispatch_delay"`
	ErrorRetryDelay        string `toml:"error_retry_delay"`
	SendDelay              string `toml:"send_delay"`
	SendTimeout            string `toml:"send_timeout"`
	DedupWindow            string `toml:"dedup_window"`
	AutoResetStuck         bool   `toml:"auto_reset_stuck"`
}

// BrowserConfig configures the chromedp tab pool
type BrowserConfig struct {
	Enabled        bool   `toml:"enabled"`
	TargetURL      string `toml:"target_url" validate:"required_if=Enabled true"`
	PromptSelector string `toml:"prompt_selector" validate:"required_if=Enabled true"`
	SubmitSelector string `toml:"submit_selector" validate:"required_if=Enabled true"`
	Headless       bool   `toml:"headless"`
	UserAgent      string `toml:"user_agent"`
	NoSandbox      bool   `toml:"no_sandbox"`
	HealthInterval string `toml:"health_interval"`
	LoadTimeout    string `toml:"load_timeout"`
}

// LoggingConfig configures arbor writers
type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output"`
	File   string   `toml:"file"`
}

// FallbackConfig configures the manual-paste fallback
type FallbackConfig struct {
	Clipboard bool `toml:"clipboard"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080, ProgressThrottle: "500ms"},
		Storage: StorageConfig{
			Backend:    "sqlite",
			SQLitePath: "promptqueue.db",
			BadgerPath: "data/badger",
		},
		Scheduler: SchedulerConfig{
			ThresholdPercent:       65,
			Pipelining:             true,
			GuardCooldown:          "10s",
			ThresholdDispatchDelay: "2s",
			ErrorRetryDelay:        "3s",
			SendDelay:              "500ms",
			SendTimeout:            "30s",
			DedupWindow:            "5s",
		},
		Browser: BrowserConfig{
			Headless:       false,
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0 Safari/537.36",
			HealthInterval: "10s",
			LoadTimeout:    "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"console"},
		},
		Fallback: FallbackConfig{Clipboard: true},
	}
}

// LoadConfig reads an optional TOML file, applies environment overrides and validates
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv overrides settings from PQ_* environment variables
func (c *Config) applyEnv() {
	c.Server.Host = getEnv("PQ_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("PQ_PORT", c.Server.Port)
	c.Storage.Backend = getEnv("PQ_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.SQLitePath = getEnv("PQ_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.BadgerPath = getEnv("PQ_BADGER_PATH", c.Storage.BadgerPath)
	c.Scheduler.ThresholdPercent = getEnvAsInt("PQ_THRESHOLD_PERCENT", c.Scheduler.ThresholdPercent)
	c.Scheduler.Pipelining = getEnvAsBool("PQ_PIPELINING", c.Scheduler.Pipelining)
	c.Scheduler.GuardCooldown = getEnv("PQ_GUARD_COOLDOWN", c.Scheduler.GuardCooldown)
	c.Scheduler.ErrorRetryDelay = getEnv("PQ_ERROR_RETRY_DELAY", c.Scheduler.ErrorRetryDelay)
	c.Browser.Enabled = getEnvAsBool("PQ_BROWSER_ENABLED", c.Browser.Enabled)
	c.Browser.TargetURL = getEnv("PQ_TARGET_URL", c.Browser.TargetURL)
	c.Logging.Level = getEnv("PQ_LOG_LEVEL", c.Logging.Level)
}

// Validate checks field constraints and that every duration parses
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	durations := map[string]string{
		"scheduler.guard_cooldown":           c.Scheduler.GuardCooldown,
		"scheduler.threshold_dispatch_delay": c.Scheduler.ThresholdDispatchDelay,
		"scheduler.error_retry_delay":        c.Scheduler.ErrorRetryDelay,
		"scheduler.send_delay":               c.Scheduler.SendDelay,
		"scheduler.send_timeout":             c.Scheduler.SendTimeout,
		"scheduler.dedup_window":             c.Scheduler.DedupWindow,
		"browser.health_interval":            c.Browser.HealthInterval,
		"browser.load_timeout":               c.Browser.LoadTimeout,
		"server.progress_throttle":           c.Server.ProgressThrottle,
	}
	for name, value := range durations {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("invalid config: %s: %w", name, err)
		}
	}
	return nil
}

// Duration parses a validated duration setting; empty means zero
func Duration(value string) time.Duration {
	d, _ := parseDuration(value)
	return d
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", value)
	}
	return d, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetServerAddress returns the full API address
func (c *Config) GetServerAddress() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}
