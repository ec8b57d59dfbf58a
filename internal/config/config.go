// Package config loads clinicvoice configuration from an optional YAML
// file plus environment overrides. Flag parsing happens in cmd; this
// package is data and loading only.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/clinicdesk/clinicvoice/pkg/audioio"
)

// Default configuration values.
const (
	DefaultAddr        = ":8080"
	DefaultMetricsAddr = ":9091"
	DefaultStaticDir   = "./web"
	DefaultProvider    = "gemini"
	DefaultLogLevel    = "info"
	DefaultTheme       = "light"
)

// DefaultBonusRate is the starting bonus per uploaded record, in Rupees.
const DefaultBonusRate = 50

// Config holds all configuration for the clinicvoice server.
// API keys come from the environment only and are never read from the
// config file.
type Config struct {
	// Addr is the HTTP listen address for the dashboard and API.
	Addr string `yaml:"addr"`

	// MetricsAddr is the Prometheus listen address. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// StaticDir is the directory served at / (the dashboard assets).
	StaticDir string `yaml:"static_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Debug enables verbose wire-level logging.
	Debug bool `yaml:"debug"`

	// Provider selects the voice backend: "gemini" or "openai".
	Provider string `yaml:"provider"`

	// Model and Voice override the provider defaults when set.
	Model string `yaml:"model"`
	Voice string `yaml:"voice"`

	// GoogleAPIKey and OpenAIKey authenticate the voice providers.
	GoogleAPIKey string `yaml:"-"`
	OpenAIKey    string `yaml:"-"`

	// BonusRate is the starting bonus per uploaded record, in Rupees.
	BonusRate float64 `yaml:"bonus_rate"`

	// Theme is the starting dashboard theme.
	Theme string `yaml:"theme"`

	// LocalAudio uses the workstation's microphone and speakers instead
	// of the browser audio bridge.
	LocalAudio bool `yaml:"local_audio"`

	// Audio configures the local capture/playback devices. Ignored
	// unless LocalAudio is set.
	Audio audioio.Config `yaml:"audio"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		Addr:        DefaultAddr,
		MetricsAddr: DefaultMetricsAddr,
		StaticDir:   DefaultStaticDir,
		LogLevel:    DefaultLogLevel,
		Provider:    DefaultProvider,
		BonusRate:   DefaultBonusRate,
		Theme:       DefaultTheme,
		Audio:       audioio.DefaultConfig(),
	}
}

// LoadFile reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv applies environment variable overrides. Call after LoadFile so
// the environment wins over the file.
func (c *Config) LoadEnv() {
	if v := os.Getenv("CLINICVOICE_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("CLINICVOICE_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("CLINICVOICE_STATIC_DIR"); v != "" {
		c.StaticDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CLINICVOICE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
	if v := os.Getenv("CLINICVOICE_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("CLINICVOICE_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("CLINICVOICE_VOICE"); v != "" {
		c.Voice = v
	}
	if v := os.Getenv("CLINICVOICE_BONUS_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			c.BonusRate = rate
		}
	}
	if v := os.Getenv("CLINICVOICE_THEME"); v != "" {
		c.Theme = v
	}
	if v := os.Getenv("CLINICVOICE_LOCAL_AUDIO"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.LocalAudio = b
		}
	}
	c.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return &Error{Field: "Addr", Message: "listen address is required"}
	}
	switch c.Provider {
	case "gemini":
		if c.GoogleAPIKey == "" {
			return &Error{Field: "GoogleAPIKey", Message: "GOOGLE_API_KEY environment variable is required for the gemini provider"}
		}
	case "openai":
		if c.OpenAIKey == "" {
			return &Error{Field: "OpenAIKey", Message: "OPENAI_API_KEY environment variable is required for the openai provider"}
		}
	default:
		return &Error{Field: "Provider", Message: fmt.Sprintf("unknown voice provider %q (want gemini or openai)", c.Provider)}
	}
	if c.BonusRate < 0 {
		return &Error{Field: "BonusRate", Message: "bonus rate cannot be negative"}
	}
	if c.LocalAudio {
		if err := c.Audio.Validate(); err != nil {
			return &Error{Field: "Audio", Message: err.Error()}
		}
	}
	return nil
}

// Error represents a configuration validation error.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
