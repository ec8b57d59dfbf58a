package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// signalFunc produces the sample value for frame n of a synthetic capture.
// A nil signalFunc means silence.
type signalFunc func(n int64) int16

// MockSource produces synthetic capture audio on the configured buffer
// cadence, so session logic and CI can run without a sound card. The
// default signal is silence; WithSineWave swaps in a tone.
type MockSource struct {
	cfg    Config
	logger *slog.Logger
	signal signalFunc

	mu      sync.Mutex
	running bool
	closed  bool
	stream  chan AudioChunk
	// stopFn closes the stop channel of the current generator goroutine.
	// Held as a closure so a restart gets a fresh channel without racing
	// the old loop.
	stopFn func()
	frame  int64

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave makes the source generate a tone instead of silence.
// Amplitude is 0 to 1 of full scale.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		rate := float64(m.cfg.SampleRate)
		m.signal = func(n int64) int16 {
			v := amplitude * math.Sin(2*math.Pi*frequency*float64(n)/rate)
			return int16(v * 32767)
		}
	}
}

// NewMockSource creates a stopped mock source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins generating audio. Starting a running source is a no-op.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return io.ErrClosedPipe
	case m.running:
		return nil
	}

	m.running = true
	m.stream = make(chan AudioChunk, 10)
	stop := make(chan struct{})
	m.stopFn = func() { close(stop) }

	go m.run(ctx, m.stream, stop)

	m.logger.Info("mock audio source started",
		"sample_rate", m.cfg.SampleRate, "buffer_ms", m.cfg.BufferDuration.Milliseconds())
	return nil
}

// run generates chunks until stopped. It owns out and closes it on exit so
// readers see EOF.
func (m *MockSource) run(ctx context.Context, out chan AudioChunk, stop chan struct{}) {
	defer close(out)

	tick := time.NewTicker(m.cfg.BufferDuration)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			go m.Stop()
			return
		case <-stop:
			return
		case <-tick.C:
		}

		chunk := m.nextChunk()
		select {
		case out <- chunk:
			m.chunksRead.Add(1)
			m.samplesRead.Add(int64(len(chunk.Samples)))
		case <-stop:
			return
		default:
			m.overruns.Add(1)
		}
	}
}

// nextChunk renders one buffer of the signal, advancing the frame cursor.
func (m *MockSource) nextChunk() AudioChunk {
	frames := m.cfg.BufferSize()
	samples := make([]int16, frames*m.cfg.Channels)

	m.mu.Lock()
	base := m.frame
	m.frame += int64(frames)
	sig := m.signal
	m.mu.Unlock()

	if sig != nil {
		for i := 0; i < frames; i++ {
			s := sig(base + int64(i))
			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[i*m.cfg.Channels+ch] = s
			}
		}
	}

	return AudioChunk{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels}
}

// Stop halts generation. The stream channel closes once the generator
// observes the stop.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	if m.stopFn != nil {
		m.stopFn()
		m.stopFn = nil
	}

	m.logger.Info("mock audio source stopped")
	return nil
}

// Read blocks for the next chunk.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream == nil {
		return AudioChunk{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-stream:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the capture channel.
func (m *MockSource) Stream() <-chan AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config { return m.cfg }

// Name returns "mock".
func (m *MockSource) Name() string { return "mock" }

// Close stops the source for good.
func (m *MockSource) Close() error {
	m.mu.Lock()
	wasClosed := m.closed
	m.closed = true
	m.mu.Unlock()
	if wasClosed {
		return nil
	}
	return m.Stop()
}

// Stats returns capture counters.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		Backend:     "mock",
		Running:     running,
		ChunksRead:  m.chunksRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
	}
}

var _ SourceWithStats = (*MockSource)(nil)

// MockSink swallows playback audio while counting it. Flush and Clear both
// empty the pretend buffer; the difference only matters on real devices.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	buffered int64

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// NewMockSink creates a stopped mock sink.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSink{cfg: cfg, logger: logger}
}

// Start opens the pretend device. Starting twice is harmless.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return io.ErrClosedPipe
	}
	m.running = true
	m.logger.Info("mock audio sink started")
	return nil
}

// Stop halts audio acceptance and drops whatever is buffered.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.buffered = 0
	m.logger.Info("mock audio sink stopped")
	return nil
}

// Write accepts and counts a chunk.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.running {
		return io.ErrClosedPipe
	}

	m.buffered += int64(len(chunk.Samples))
	m.chunksWritten.Add(1)
	m.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush empties the pretend buffer. Mock playback is instantaneous, so
// there is nothing to wait for.
func (m *MockSink) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.buffered = 0
	m.mu.Unlock()
	return nil
}

// Clear empties the pretend buffer.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	m.buffered = 0
	m.mu.Unlock()
	return nil
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config { return m.cfg }

// Name returns "mock".
func (m *MockSink) Name() string { return "mock" }

// Close stops the sink for good.
func (m *MockSink) Close() error {
	m.mu.Lock()
	wasClosed := m.closed
	m.closed = true
	m.mu.Unlock()
	if wasClosed {
		return nil
	}
	return m.Stop()
}

// Stats returns playback counters.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	running := m.running
	buffered := m.buffered
	m.mu.Unlock()

	return SinkStats{
		Backend:         "mock",
		Running:         running,
		ChunksWritten:   m.chunksWritten.Load(),
		SamplesWritten:  m.samplesWritten.Load(),
		BufferedSamples: buffered,
	}
}

var _ SinkWithStats = (*MockSink)(nil)
