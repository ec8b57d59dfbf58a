package audioio

import (
	"fmt"
	"time"
)

// Backend selects an audio I/O implementation.
type Backend string

const (
	// BackendAuto picks the best backend for the platform.
	BackendAuto Backend = "auto"
	// BackendPortAudio drives local devices through PortAudio.
	BackendPortAudio Backend = "portaudio"
	// BackendMock generates and swallows audio for tests.
	BackendMock Backend = "mock"
)

// Config describes one leg of audio I/O. The same struct configures
// capture and playback; build one per direction when the rates differ.
type Config struct {
	// Backend names the implementation. Default "auto".
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate in Hz. Default 24000, the synthesized-speech downlink
	// rate, so playback needs no conversion.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels per frame. Default 1; everything upstream speaks mono.
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is how much audio one device buffer holds.
	// Default 20ms.
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device picks a capture/playback device by name substring. Empty
	// means the system default. The mock backend ignores it.
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns the playback-oriented defaults described above.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     24000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate reports the first setting that would keep a stream from
// opening.
func (c *Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("audioio: sample rate %d, want positive", c.SampleRate)
	case c.Channels <= 0:
		return fmt.Errorf("audioio: channel count %d, want positive", c.Channels)
	case c.BufferDuration <= 0:
		return fmt.Errorf("audioio: buffer duration %v, want positive", c.BufferDuration)
	}
	return nil
}

// BufferSize returns samples per channel per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the wire size of one buffer.
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
