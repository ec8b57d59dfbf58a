package voice

import (
	"errors"
	"time"
)

// Provider names a realtime speech backend.
type Provider string

const (
	// ProviderGemini uses Google's Gemini Live API (default).
	ProviderGemini Provider = "gemini"

	// ProviderOpenAI uses OpenAI's Realtime API.
	ProviderOpenAI Provider = "openai"
)

// Config holds the tunable parameters for a voice pipeline. A pipeline is
// built from a Config once; changing values afterwards has no effect on a
// live session.
type Config struct {
	Provider Provider

	// API keys (provider-specific)
	GoogleAPIKey string
	OpenAIKey    string

	// Model is the provider model name. Empty selects the provider default.
	Model string

	// Voice is the synthesis voice name. Empty selects the provider default.
	Voice string

	// SystemPrompt is sent once at connect time.
	SystemPrompt string

	// Audio settings. SendAudio expects mono PCM16 at InputSampleRate;
	// OnAudioOut delivers mono PCM16 at OutputSampleRate.
	InputSampleRate  int
	OutputSampleRate int

	// Temperature controls response randomness where the provider
	// supports it (0 uses the provider default).
	Temperature float64

	// Server-side turn detection, for providers that expose it.
	VADThreshold       float64       // speech trigger level, 0 to 1
	VADPrefixPadding   time.Duration // audio replayed from before speech onset
	VADSilenceDuration time.Duration // silence that closes a turn

	Debug          bool // verbose session tracing
	ProfileLatency bool // per-turn latency summaries
}

// DefaultConfig returns a Config with defaults for Gemini Live:
// 16kHz mono uplink, 24kHz mono downlink.
func DefaultConfig() Config {
	return Config{
		Provider:         ProviderGemini,
		Model:            "models/gemini-2.0-flash-exp",
		InputSampleRate:  16000,
		OutputSampleRate: 24000,

		VADThreshold:       0.5,
		VADPrefixPadding:   300 * time.Millisecond,
		VADSilenceDuration: 500 * time.Millisecond,
	}
}

// DefaultOpenAIConfig returns a Config with defaults for the OpenAI
// Realtime API, which runs 24kHz on both legs.
func DefaultOpenAIConfig() Config {
	cfg := DefaultConfig()
	cfg.Provider = ProviderOpenAI
	cfg.Model = "gpt-4o-realtime-preview-2024-12-17"
	cfg.InputSampleRate = 24000
	cfg.OutputSampleRate = 24000
	return cfg
}

// Validate reports the first problem that would keep a pipeline from
// starting.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.GoogleAPIKey == "" {
			return errors.New("voice: Google API key required")
		}
	case ProviderOpenAI:
		if c.OpenAIKey == "" {
			return errors.New("voice: OpenAI API key required")
		}
	default:
		return errors.New("voice: unknown provider: " + string(c.Provider))
	}

	if c.InputSampleRate <= 0 || c.OutputSampleRate <= 0 {
		return errors.New("voice: sample rates must be positive")
	}
	if c.VADThreshold < 0 || c.VADThreshold > 1 {
		return errors.New("voice: VAD threshold outside [0, 1]")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("voice: temperature outside [0, 2]")
	}
	return nil
}

// The With helpers return modified copies so call sites can chain
// overrides onto a default Config.

func (c Config) WithProvider(p Provider) Config {
	c.Provider = p
	return c
}

func (c Config) WithSystemPrompt(prompt string) Config {
	c.SystemPrompt = prompt
	return c
}

func (c Config) WithDebug(debug bool) Config {
	c.Debug = debug
	return c
}
