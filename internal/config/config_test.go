package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/clinicdesk/clinicvoice/pkg/audioio"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.MetricsAddr != ":9091" {
		t.Errorf("MetricsAddr = %q, want :9091", cfg.MetricsAddr)
	}
	if cfg.Provider != "gemini" {
		t.Errorf("Provider = %q, want gemini", cfg.Provider)
	}
	if cfg.BonusRate != 50 {
		t.Errorf("BonusRate = %v, want 50", cfg.BonusRate)
	}
	if cfg.Theme != "light" {
		t.Errorf("Theme = %q, want light", cfg.Theme)
	}
	if cfg.Audio.SampleRate != 24000 {
		t.Errorf("Audio.SampleRate = %d, want 24000", cfg.Audio.SampleRate)
	}
}

func TestLoadFileEmptyPath(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile(\"\") error = %v", err)
	}
	if cfg != Default() {
		t.Error("Empty path should return defaults unchanged")
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/clinicvoice.yaml")
	if err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
addr: ":9000"
provider: openai
bonus_rate: 75.5
theme: dark
local_audio: true
audio:
  backend: portaudio
  sample_rate: 16000
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Addr)
	}
	if cfg.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", cfg.Provider)
	}
	if cfg.BonusRate != 75.5 {
		t.Errorf("BonusRate = %v, want 75.5", cfg.BonusRate)
	}
	if cfg.Theme != "dark" {
		t.Errorf("Theme = %q, want dark", cfg.Theme)
	}
	if !cfg.LocalAudio {
		t.Error("LocalAudio = false, want true")
	}
	if cfg.Audio.Backend != audioio.BackendPortAudio {
		t.Errorf("Audio.Backend = %q, want portaudio", cfg.Audio.Backend)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Audio.SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}

	// Fields the file does not mention keep their defaults.
	if cfg.MetricsAddr != DefaultMetricsAddr {
		t.Errorf("MetricsAddr = %q, want default %q", cfg.MetricsAddr, DefaultMetricsAddr)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want default %q", cfg.LogLevel, DefaultLogLevel)
	}
}

func TestLoadFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("addr: [not closed"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("CLINICVOICE_ADDR", ":7070")
	t.Setenv("CLINICVOICE_PROVIDER", "openai")
	t.Setenv("CLINICVOICE_BONUS_RATE", "80")
	t.Setenv("CLINICVOICE_DEBUG", "true")
	t.Setenv("CLINICVOICE_THEME", "clinical")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "o-key")

	cfg := Default()
	cfg.LoadEnv()

	if cfg.Addr != ":7070" {
		t.Errorf("Addr = %q, want :7070", cfg.Addr)
	}
	if cfg.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", cfg.Provider)
	}
	if cfg.BonusRate != 80 {
		t.Errorf("BonusRate = %v, want 80", cfg.BonusRate)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if cfg.Theme != "clinical" {
		t.Errorf("Theme = %q, want clinical", cfg.Theme)
	}
	if cfg.GoogleAPIKey != "g-key" {
		t.Errorf("GoogleAPIKey = %q, want g-key", cfg.GoogleAPIKey)
	}
	if cfg.OpenAIKey != "o-key" {
		t.Errorf("OpenAIKey = %q, want o-key", cfg.OpenAIKey)
	}
}

func TestLoadEnvUnparseable(t *testing.T) {
	t.Setenv("CLINICVOICE_BONUS_RATE", "lots")
	t.Setenv("CLINICVOICE_DEBUG", "maybe")

	cfg := Default()
	cfg.LoadEnv()

	// Garbage values are ignored, not fatal.
	if cfg.BonusRate != DefaultBonusRate {
		t.Errorf("BonusRate = %v, want default %v", cfg.BonusRate, float64(DefaultBonusRate))
	}
	if cfg.Debug {
		t.Error("Debug = true, want false")
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.GoogleAPIKey = "g-key"

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:   "valid gemini",
			mutate: func(c *Config) {},
		},
		{
			name: "valid openai",
			mutate: func(c *Config) {
				c.Provider = "openai"
				c.OpenAIKey = "o-key"
			},
		},
		{
			name:      "missing addr",
			mutate:    func(c *Config) { c.Addr = "" },
			wantField: "Addr",
		},
		{
			name:      "gemini without key",
			mutate:    func(c *Config) { c.GoogleAPIKey = "" },
			wantField: "GoogleAPIKey",
		},
		{
			name: "openai without key",
			mutate: func(c *Config) {
				c.Provider = "openai"
				c.OpenAIKey = ""
			},
			wantField: "OpenAIKey",
		},
		{
			name:      "unknown provider",
			mutate:    func(c *Config) { c.Provider = "cortana" },
			wantField: "Provider",
		},
		{
			name:      "negative bonus rate",
			mutate:    func(c *Config) { c.BonusRate = -1 },
			wantField: "BonusRate",
		},
		{
			name: "local audio with bad sample rate",
			mutate: func(c *Config) {
				c.LocalAudio = true
				c.Audio.SampleRate = 0
			},
			wantField: "Audio",
		},
		{
			name: "bad audio ignored without local audio",
			mutate: func(c *Config) {
				c.LocalAudio = false
				c.Audio.SampleRate = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}

			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %v, want *config.Error", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.wantField)
			}
		})
	}
}
