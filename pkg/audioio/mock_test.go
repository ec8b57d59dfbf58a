package audioio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func fastMockConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.BufferDuration = 10 * time.Millisecond
	return cfg
}

func TestMockSourceStartStopIdempotent(t *testing.T) {
	src := NewMockSource(fastMockConfig(), nil)
	defer src.Close()

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
}

func TestMockSourceReadDeliversConfiguredLayout(t *testing.T) {
	cfg := fastMockConfig()
	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if want := cfg.BufferSize() * cfg.Channels; len(chunk.Samples) != want {
		t.Errorf("Expected %d samples, got %d", want, len(chunk.Samples))
	}
	if chunk.SampleRate != cfg.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", cfg.SampleRate, chunk.SampleRate)
	}
	if chunk.Channels != cfg.Channels {
		t.Errorf("Expected %d channels, got %d", cfg.Channels, chunk.Channels)
	}
}

func TestMockSourceStreamKeepsCadence(t *testing.T) {
	src := NewMockSource(fastMockConfig(), nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			if count < 3 {
				t.Errorf("Expected at least 3 chunks in 100ms, got %d", count)
			}
			return
		case _, ok := <-src.Stream():
			if !ok {
				t.Fatalf("Stream closed early after %d chunks", count)
			}
			count++
		}
	}
}

func TestMockSourceSineWave(t *testing.T) {
	src := NewMockSource(fastMockConfig(), nil, WithSineWave(440, 0.5))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	var peak int16
	for _, s := range chunk.Samples {
		if s > peak {
			peak = s
		}
	}
	// 0.5 amplitude peaks near 16384; anything clearly nonzero proves the
	// generator ran.
	if peak < 1000 {
		t.Errorf("Expected audible sine wave, peak was %d", peak)
	}
}

func TestMockSourceRestart(t *testing.T) {
	src := NewMockSource(fastMockConfig(), nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := src.Read(ctx); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if _, err := src.Read(ctx); err != nil {
		t.Fatalf("Read after restart failed: %v", err)
	}
}

func TestMockSourceClosedForGood(t *testing.T) {
	src := NewMockSource(fastMockConfig(), nil)

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := src.Start(ctx); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Expected ErrClosedPipe after close, got: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}
}

func TestMockSourceStats(t *testing.T) {
	src := NewMockSource(fastMockConfig(), nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := src.Read(ctx); err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
	}

	stats := src.Stats()
	if stats.ChunksRead < 3 {
		t.Errorf("Expected at least 3 chunks read, got %d", stats.ChunksRead)
	}
	if !stats.Running {
		t.Error("Expected stats to report running")
	}
	if stats.Backend != "mock" {
		t.Errorf("Expected backend mock, got %q", stats.Backend)
	}
}

func TestMockSinkWriteFlushClear(t *testing.T) {
	sink := NewMockSink(fastMockConfig(), nil)
	defer sink.Close()

	ctx := context.Background()
	if err := sink.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk := AudioChunk{Samples: make([]int16, 480), SampleRate: 24000, Channels: 1}
	if err := sink.Write(ctx, chunk); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	stats := sink.Stats()
	if stats.ChunksWritten != 1 {
		t.Errorf("Expected 1 chunk written, got %d", stats.ChunksWritten)
	}
	if stats.BufferedSamples != 480 {
		t.Errorf("Expected 480 buffered samples, got %d", stats.BufferedSamples)
	}

	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := sink.Stats().BufferedSamples; got != 0 {
		t.Errorf("Expected empty buffer after flush, got %d samples", got)
	}

	if err := sink.Write(ctx, chunk); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := sink.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	// Clear drops the buffer but never the counters.
	stats = sink.Stats()
	if stats.ChunksWritten != 2 {
		t.Errorf("Expected 2 chunks written, got %d", stats.ChunksWritten)
	}
	if stats.BufferedSamples != 0 {
		t.Errorf("Expected empty buffer after clear, got %d samples", stats.BufferedSamples)
	}
}

func TestMockSinkRejectsWhenNotRunning(t *testing.T) {
	sink := NewMockSink(fastMockConfig(), nil)
	defer sink.Close()

	chunk := AudioChunk{Samples: make([]int16, 480), SampleRate: 24000, Channels: 1}
	if err := sink.Write(context.Background(), chunk); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Expected ErrClosedPipe before Start, got: %v", err)
	}
}
