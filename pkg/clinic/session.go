package clinic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clinicdesk/clinicvoice/internal/log"
	"github.com/clinicdesk/clinicvoice/internal/metrics"
	"github.com/clinicdesk/clinicvoice/pkg/audio"
	"github.com/clinicdesk/clinicvoice/pkg/audioio"
	"github.com/clinicdesk/clinicvoice/pkg/debug"
	"github.com/clinicdesk/clinicvoice/pkg/records"
	"github.com/clinicdesk/clinicvoice/pkg/voice"
)

// SessionState is the lifecycle state of the voice session.
type SessionState string

const (
	// StateIdle means no session is open and no audio is flowing.
	StateIdle SessionState = "idle"
	// StateConnecting means the microphone is being acquired and the
	// streaming session is being negotiated.
	StateConnecting SessionState = "connecting"
	// StateActive means audio is streaming in both directions.
	StateActive SessionState = "active"
)

// ControllerConfig carries everything a session controller needs. All
// fields are required.
type ControllerConfig struct {
	// Voice is the pipeline configuration. Its SystemPrompt field is
	// overwritten at connect time with the rendered clinic prompt.
	Voice voice.Config

	Store      *records.Store
	Dispatcher *Dispatcher

	// Source and Sink are the capture and playback devices. The
	// controller starts them with the session and stops them with it.
	Source audioio.Source
	Sink   audioio.Sink
}

// Controller drives at most one voice session at a time through the
// Idle -> Connecting -> Active lifecycle. Start on an already-running
// session toggles it off; errors and remote closes tear the session down
// the same way Stop does. There are no retries: every failure lands back
// in Idle and waits for the next Start.
type Controller struct {
	cfg       ControllerConfig
	scheduler *audio.Scheduler

	mu        sync.Mutex
	state     SessionState
	epoch     int
	pipeline  voice.Pipeline
	cancel    context.CancelFunc
	startedAt time.Time

	onState        func(SessionState)
	onConversation func(role, text string, final bool)
}

// NewController creates a controller in the Idle state. The playback
// scheduler hands each buffer to the sink at its scheduled start time so
// chunks play back to back no matter how unevenly they arrive.
func NewController(cfg ControllerConfig) *Controller {
	c := &Controller{
		cfg:   cfg,
		state: StateIdle,
	}
	c.scheduler = audio.NewScheduler(func(buf *audio.Buffer) {
		var chunk audioio.AudioChunk
		chunk.FromBytes(buf.PCM16(), buf.SampleRate, buf.Channels)
		if err := cfg.Sink.Write(context.Background(), chunk); err != nil {
			debug.Log("🔇 playback write failed: %v\n", err)
		}
	})
	return c
}

// State returns the current session state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn to be called after every state transition.
// The callback runs outside the controller lock.
func (c *Controller) OnStateChange(fn func(SessionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// OnConversation registers fn to receive transcript text for both sides
// of the conversation. Role is "user" or "assistant"; non-final entries
// are streaming partials that will be replaced by a final one.
func (c *Controller) OnConversation(fn func(role, text string, final bool)) {
	c.mu.Lock()
	c.onConversation = fn
	c.mu.Unlock()
}

// Start opens a voice session: acquires the microphone, connects the
// pipeline with the prompt rendered from the store's current bonus rate
// and theme, and begins streaming capture audio. Calling Start while a
// session is connecting or active stops it instead, so a single UI button
// can toggle the assistant.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return c.Stop()
	}
	c.epoch++
	epoch := c.epoch
	c.state = StateConnecting
	notify := c.onState
	c.mu.Unlock()
	if notify != nil {
		notify(StateConnecting)
	}

	provider := string(c.cfg.Voice.Provider)

	sctx, cancel := context.WithCancel(ctx)

	if err := c.cfg.Source.Start(sctx); err != nil {
		cancel()
		if errors.Is(err, audioio.ErrPermissionDenied) {
			log.Warn("microphone permission denied", "source", c.cfg.Source.Name())
			metrics.VoiceSessions.WithLabelValues(provider, "permission_denied").Inc()
		} else {
			log.Error("microphone start failed", "source", c.cfg.Source.Name(), "error", err)
			metrics.VoiceSessions.WithLabelValues(provider, "connect_failed").Inc()
		}
		c.setState(StateIdle)
		return fmt.Errorf("clinic: microphone unavailable: %w", err)
	}

	if err := c.cfg.Sink.Start(sctx); err != nil {
		cancel()
		c.cfg.Source.Stop()
		log.Error("playback start failed", "sink", c.cfg.Sink.Name(), "error", err)
		metrics.VoiceSessions.WithLabelValues(provider, "connect_failed").Inc()
		c.setState(StateIdle)
		return fmt.Errorf("clinic: playback unavailable: %w", err)
	}

	// The prompt captures the bonus rate and theme as of right now; the
	// model re-learns later changes from tool confirmations.
	vcfg := c.cfg.Voice
	vcfg.SystemPrompt = SystemPrompt(c.cfg.Store.BonusRate(), c.cfg.Store.Theme())

	pipeline, err := voice.New(vcfg)
	if err != nil {
		cancel()
		c.cfg.Source.Stop()
		c.cfg.Sink.Stop()
		metrics.VoiceSessions.WithLabelValues(provider, "connect_failed").Inc()
		c.setState(StateIdle)
		return fmt.Errorf("clinic: pipeline setup failed: %w", err)
	}

	for _, tool := range Tools(c.cfg.Dispatcher) {
		pipeline.RegisterTool(tool)
	}
	c.wireCallbacks(pipeline, vcfg.OutputSampleRate)

	// Fresh session, fresh playback cursor. Without this the first
	// buffers of a new session would be scheduled after the tail of the
	// previous one.
	c.scheduler.Reset()

	if err := pipeline.Start(sctx); err != nil {
		cancel()
		c.cfg.Source.Stop()
		c.cfg.Sink.Stop()
		metrics.VoiceSessions.WithLabelValues(provider, "connect_failed").Inc()
		c.setState(StateIdle)
		return fmt.Errorf("clinic: session connect failed: %w", err)
	}

	c.mu.Lock()
	if c.epoch != epoch || c.state != StateConnecting {
		// Stopped while we were connecting. Tear down what we built.
		c.mu.Unlock()
		cancel()
		pipeline.Stop()
		c.cfg.Source.Stop()
		c.cfg.Sink.Stop()
		return nil
	}
	c.state = StateActive
	c.pipeline = pipeline
	c.cancel = cancel
	c.startedAt = time.Now()
	notify = c.onState
	c.mu.Unlock()
	if notify != nil {
		notify(StateActive)
	}

	metrics.VoiceSessions.WithLabelValues(provider, "active").Inc()
	log.Info("voice session active", "provider", provider)

	go c.pumpAudio(sctx, pipeline)
	return nil
}

// Stop tears the session down from any state: cancels pending playback,
// closes the pipeline, and releases the capture and playback devices. It
// is safe to call repeatedly and from pipeline callbacks.
func (c *Controller) Stop() error {
	c.mu.Lock()
	pipeline := c.pipeline
	cancel := c.cancel
	startedAt := c.startedAt
	wasIdle := c.state == StateIdle && pipeline == nil
	c.pipeline = nil
	c.cancel = nil
	c.startedAt = time.Time{}
	c.state = StateIdle
	notify := c.onState
	c.mu.Unlock()

	if wasIdle {
		return nil
	}
	if notify != nil {
		notify(StateIdle)
	}

	if cancel != nil {
		cancel()
	}
	c.scheduler.StopAll()
	if err := c.cfg.Sink.Clear(); err != nil {
		log.Warn("playback clear failed", "error", err)
	}

	var stopErr error
	if pipeline != nil {
		stopErr = pipeline.Stop()
	}
	if err := c.cfg.Source.Stop(); err != nil {
		log.Warn("microphone stop failed", "error", err)
	}
	if err := c.cfg.Sink.Stop(); err != nil {
		log.Warn("playback stop failed", "error", err)
	}

	if !startedAt.IsZero() {
		metrics.VoiceSessionSeconds.Observe(time.Since(startedAt).Seconds())
		log.Info("voice session closed", "duration", time.Since(startedAt).Round(time.Millisecond))
	}
	return stopErr
}

// setState moves to s and fires the state callback outside the lock.
func (c *Controller) setState(s SessionState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	notify := c.onState
	c.mu.Unlock()
	if notify != nil {
		notify(s)
	}
}

// wireCallbacks connects the pipeline events to playback, dispatch, and
// the conversation feed.
func (c *Controller) wireCallbacks(pipeline voice.Pipeline, outputRate int) {
	callbacks := voice.Callbacks{
		OnAudioOut: func(pcm16 []byte) {
			metrics.AudioChunksReceived.Inc()
			buf, err := audio.Reconstruct(pcm16, outputRate, 1)
			if err != nil {
				// A malformed chunk costs us that chunk, not the session.
				log.Warn("dropping malformed audio chunk", "error", err)
				return
			}
			c.scheduler.Schedule(buf)
			metrics.PlaybackScheduled.Inc()
		},
		OnSpeechStart: func() {
			// Barge-in: the user started talking over the assistant, so
			// everything queued for playback is stale.
			c.scheduler.StopAll()
			if err := c.cfg.Sink.Clear(); err != nil {
				debug.Log("🔇 playback clear failed: %v\n", err)
			}
			if err := pipeline.Interrupt(); err != nil {
				debug.Log("🛑 interrupt failed: %v\n", err)
			}
			debug.Logln("🛑 [interrupted]")
		},
		OnTranscript: func(text string, isFinal bool) {
			if isFinal {
				debug.Log("👤 User: %s\n", text)
			}
			c.emitConversation("user", text, isFinal)
		},
		OnResponse: func(text string, isFinal bool) {
			if isFinal {
				debug.Log("🤖 Assistant: %s\n", text)
			}
			c.emitConversation("assistant", text, isFinal)
		},
		OnToolCall: func(call voice.ToolCall) {
			// Dispatch synchronously against current state, answer
			// asynchronously; the model keeps talking either way.
			result := c.cfg.Dispatcher.HandleToolCall(call)
			go func() {
				if err := pipeline.SubmitToolResult(call.ID, result); err != nil {
					log.Warn("tool result send failed", "tool", call.Name, "error", err)
				}
			}()
		},
		OnError: func(err error) {
			log.Error("voice session error", "error", err)
			c.Stop()
		},
	}
	callbacks.Apply(pipeline)
}

// emitConversation forwards transcript text to the registered listener.
func (c *Controller) emitConversation(role, text string, final bool) {
	c.mu.Lock()
	fn := c.onConversation
	c.mu.Unlock()
	if fn != nil && text != "" {
		fn(role, text, final)
	}
}

// pumpAudio drains the capture source and streams fixed 50ms chunks to
// the pipeline at its uplink rate. The push is fire-and-forget: a chunk
// that fails to send is dropped and the next one goes out as usual.
func (c *Controller) pumpAudio(ctx context.Context, pipeline voice.Pipeline) {
	inputRate := pipeline.Config().InputSampleRate
	if inputRate == 0 {
		inputRate = 16000
	}
	chunkSize := inputRate / 20 // 50ms of samples

	var pending []int16
	var sentCount int

	debug.Logln("🎙️  Capture streaming started")

	for {
		select {
		case <-ctx.Done():
			debug.Logln("🎙️  Capture streaming stopped")
			return
		case chunk, ok := <-c.cfg.Source.Stream():
			if !ok {
				debug.Logln("🎙️  Capture source closed")
				return
			}

			samples := chunk.Samples
			if chunk.Channels == 2 {
				samples = audioio.StereoToMono(samples)
			}
			if chunk.SampleRate != inputRate {
				samples = audioio.Resample(samples, chunk.SampleRate, inputRate)
			}
			pending = append(pending, samples...)

			for len(pending) >= chunkSize {
				frame := audioio.SamplesToBytes(pending[:chunkSize])
				pending = pending[chunkSize:]

				if !pipeline.IsConnected() {
					continue
				}
				if err := pipeline.SendAudio(frame); err != nil {
					debug.Log("🎙️  SendAudio error: %v\n", err)
					continue
				}
				sentCount++
				metrics.AudioChunksSent.Inc()
				if sentCount == 1 {
					debug.Log("🎙️  First audio chunk sent (%d bytes)\n", len(frame))
				} else if sentCount%50 == 0 {
					debug.Log("🎙️  Capture stats: sent=%d chunks\n", sentCount)
				}
			}
		}
	}
}
