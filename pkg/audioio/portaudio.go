package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource captures audio from a local input device. It is used in
// workstation mode, where the clinic terminal's own microphone drives the
// session instead of a browser.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan AudioChunk
	stopCh   chan struct{}
	stream   *portaudio.Stream

	// Stats
	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// NewPortAudioSource creates a source for the device named (by substring)
// in cfg.Device, or the system default input when empty. The device is not
// opened until Start.
func NewPortAudioSource(cfg Config, logger *slog.Logger) *PortAudioSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortAudioSource{
		cfg:    cfg,
		logger: logger,
	}
}

// Start opens the input device and begins capture. Open failures are
// reported as ErrPermissionDenied so callers can tell "no microphone" apart
// from transport problems.
func (s *PortAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initialize: %v", ErrPermissionDenied, err)
	}

	buf := make([]int16, s.cfg.BufferSize()*s.cfg.Channels)
	stream, err := openStream(s.cfg, true, buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: open input: %v", ErrPermissionDenied, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: start input: %v", ErrPermissionDenied, err)
	}

	s.stream = stream
	s.running = true
	s.stopCh = make(chan struct{})
	s.streamCh = make(chan AudioChunk, 10)

	go s.captureLoop(ctx, stream, buf, s.streamCh)

	s.logger.Info("portaudio source started",
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
		"device", s.cfg.Device,
	)

	return nil
}

// captureLoop reads device buffers until the source is stopped or the
// stream dies. It owns streamCh and closes it on exit so consumers see EOF.
func (s *PortAudioSource) captureLoop(ctx context.Context, stream *portaudio.Stream, buf []int16, out chan AudioChunk) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			go s.Stop()
			return
		case <-s.stopCh:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if err == portaudio.InputOverflowed {
				s.overruns.Add(1)
				continue
			}
			select {
			case <-s.stopCh:
				// Stop aborted the stream; the error is expected.
			default:
				s.logger.Warn("portaudio read failed", "error", err)
			}
			return
		}

		samples := make([]int16, len(buf))
		copy(samples, buf)
		chunk := AudioChunk{
			Samples:    samples,
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
		}

		select {
		case out <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(chunk.Samples)))
		case <-s.stopCh:
			return
		default:
			s.overruns.Add(1)
			s.logger.Debug("portaudio source: buffer full, dropping chunk")
		}
	}
}

// Stop halts capture and releases the device.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream != nil {
		stream.Abort()
		stream.Close()
		portaudio.Terminate()
	}

	s.logger.Info("portaudio source stopped")
	return nil
}

// Read reads the next audio chunk.
func (s *PortAudioSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()
	if ch == nil {
		return AudioChunk{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (s *PortAudioSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *PortAudioSource) Config() Config {
	return s.cfg
}

// Name returns "portaudio".
func (s *PortAudioSource) Name() string {
	return "portaudio"
}

// Close releases resources.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// Stats returns source statistics.
func (s *PortAudioSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "portaudio",
	}
}

// Ensure PortAudioSource implements SourceWithStats.
var _ SourceWithStats = (*PortAudioSource)(nil)

// PortAudioSink plays audio through a local output device.
type PortAudioSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	stream  *portaudio.Stream
	out     []int16
	pending []int16

	// Stats
	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	underruns      atomic.Int64
}

// NewPortAudioSink creates a sink for the device named (by substring) in
// cfg.Device, or the system default output when empty.
func NewPortAudioSink(cfg Config, logger *slog.Logger) *PortAudioSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortAudioSink{
		cfg:    cfg,
		logger: logger,
	}
}

// Start opens the output device. Open failures are reported as
// ErrPermissionDenied.
func (s *PortAudioSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initialize: %v", ErrPermissionDenied, err)
	}

	out := make([]int16, s.cfg.BufferSize()*s.cfg.Channels)
	stream, err := openStream(s.cfg, false, out)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: open output: %v", ErrPermissionDenied, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: start output: %v", ErrPermissionDenied, err)
	}

	s.stream = stream
	s.out = out
	s.pending = s.pending[:0]
	s.running = true

	s.logger.Info("portaudio sink started",
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
		"device", s.cfg.Device,
	)

	return nil
}

// Stop halts playback and releases the device.
func (s *PortAudioSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.pending = nil

	if s.stream != nil {
		s.stream.Abort()
		s.stream.Close()
		s.stream = nil
		portaudio.Terminate()
	}

	s.logger.Info("portaudio sink stopped")
	return nil
}

// Write queues a chunk for playback, converting it to the device rate and
// channel layout if they differ. Whole device buffers are written through
// synchronously, so Write provides natural backpressure.
func (s *PortAudioSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running || s.stream == nil {
		return io.ErrClosedPipe
	}

	// Rate conversion runs on the mono form so interpolation never
	// crosses channels.
	samples := chunk.Samples
	if chunk.Channels == 2 && s.cfg.Channels == 1 {
		samples = StereoToMono(samples)
	}
	if chunk.SampleRate != s.cfg.SampleRate && chunk.SampleRate > 0 {
		samples = Resample(samples, chunk.SampleRate, s.cfg.SampleRate)
	}
	if chunk.Channels == 1 && s.cfg.Channels == 2 {
		samples = MonoToStereo(samples)
	}
	s.pending = append(s.pending, samples...)

	for len(s.pending) >= len(s.out) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		copy(s.out, s.pending[:len(s.out)])
		if err := s.stream.Write(); err != nil {
			if err == portaudio.OutputUnderflowed {
				s.underruns.Add(1)
			} else {
				return fmt.Errorf("portaudio write: %w", err)
			}
		}
		s.pending = s.pending[len(s.out):]
	}

	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))

	return nil
}

// Flush pads the remaining samples to a whole device buffer and plays them.
func (s *PortAudioSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.stream == nil || len(s.pending) == 0 {
		return nil
	}

	for i := range s.out {
		if i < len(s.pending) {
			s.out[i] = s.pending[i]
		} else {
			s.out[i] = 0
		}
	}
	s.pending = s.pending[:0]

	if err := s.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
		return fmt.Errorf("portaudio flush: %w", err)
	}
	return nil
}

// Clear discards queued samples that have not reached the device yet.
func (s *PortAudioSink) Clear() error {
	s.mu.Lock()
	s.pending = s.pending[:0]
	s.mu.Unlock()

	s.logger.Debug("portaudio sink cleared")
	return nil
}

// Config returns the audio configuration.
func (s *PortAudioSink) Config() Config {
	return s.cfg
}

// Name returns "portaudio".
func (s *PortAudioSink) Name() string {
	return "portaudio"
}

// Close releases resources.
func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// Stats returns sink statistics.
func (s *PortAudioSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	buffered := int64(len(s.pending))
	s.mu.Unlock()

	return SinkStats{
		ChunksWritten:   s.chunksWritten.Load(),
		SamplesWritten:  s.samplesWritten.Load(),
		Underruns:       s.underruns.Load(),
		Running:         running,
		Backend:         "portaudio",
		BufferedSamples: buffered,
	}
}

// Ensure PortAudioSink implements SinkWithStats.
var _ SinkWithStats = (*PortAudioSink)(nil)

// openStream opens a portaudio stream over buf for the configured device.
// An empty device name uses the system default; otherwise the first device
// whose name contains cfg.Device (case-insensitive) wins.
func openStream(cfg Config, input bool, buf []int16) (*portaudio.Stream, error) {
	frames := cfg.BufferSize()

	if cfg.Device == "" {
		if input {
			return portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), frames, buf)
		}
		return portaudio.OpenDefaultStream(0, cfg.Channels, float64(cfg.SampleRate), frames, buf)
	}

	dev, err := findDevice(cfg.Device, input)
	if err != nil {
		return nil, err
	}

	var params portaudio.StreamParameters
	if input {
		params = portaudio.LowLatencyParameters(dev, nil)
		params.Input.Channels = cfg.Channels
	} else {
		params = portaudio.LowLatencyParameters(nil, dev)
		params.Output.Channels = cfg.Channels
	}
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = frames

	return portaudio.OpenStream(params, buf)
}

func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	needle := strings.ToLower(name)
	for _, dev := range devices {
		if !strings.Contains(strings.ToLower(dev.Name), needle) {
			continue
		}
		if input && dev.MaxInputChannels > 0 {
			return dev, nil
		}
		if !input && dev.MaxOutputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("no audio device matching %q", name)
}
