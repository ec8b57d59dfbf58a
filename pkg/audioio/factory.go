package audioio

import (
	"fmt"
	"log/slog"
	"runtime"
)

// NewSource builds a Source for the configured backend. The device is not
// opened until Start, so construction cannot tell you whether capture will
// actually work.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	backend, logger, err := resolve(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("creating audio source", "backend", backend,
		"sample_rate", cfg.SampleRate, "channels", cfg.Channels)

	switch backend {
	case BackendPortAudio:
		return NewPortAudioSource(cfg, logger), nil
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	}
	return nil, fmt.Errorf("unsupported audio backend: %s", backend)
}

// NewSink builds a Sink for the configured backend.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	backend, logger, err := resolve(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("creating audio sink", "backend", backend,
		"sample_rate", cfg.SampleRate, "channels", cfg.Channels)

	switch backend {
	case BackendPortAudio:
		return NewPortAudioSink(cfg, logger), nil
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	}
	return nil, fmt.Errorf("unsupported audio backend: %s", backend)
}

// resolve validates cfg and pins down the backend and logger.
func resolve(cfg Config, logger *slog.Logger) (Backend, *slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return "", nil, fmt.Errorf("invalid audio config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == "" || backend == BackendAuto {
		// PortAudio covers every desktop platform this ships on;
		// anything else gets the mock so tests still run.
		switch runtime.GOOS {
		case "linux", "darwin", "windows":
			backend = BackendPortAudio
		default:
			backend = BackendMock
		}
	}
	return backend, logger, nil
}
