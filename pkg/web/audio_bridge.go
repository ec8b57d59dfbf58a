package web

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/clinicdesk/clinicvoice/internal/log"
	"github.com/clinicdesk/clinicvoice/pkg/audioio"
	"github.com/clinicdesk/clinicvoice/pkg/debug"
	"github.com/clinicdesk/clinicvoice/pkg/protocol"
)

// permissionTimeout bounds how long Start waits for the browser's
// microphone permission prompt. Browsers leave the prompt up until the
// user decides, so this is generous.
const permissionTimeout = 15 * time.Second

// streamBuffer is how many capture chunks may queue before the bridge
// starts dropping. At 50ms per chunk this is about three seconds.
const streamBuffer = 64

// AudioBridge adapts one browser WebSocket client to the audioio Source
// and Sink interfaces. The page streams microphone chunks up and receives
// synthesized speech, session state, and barge-in clears back down, so a
// session controller drives browser audio exactly like a local device.
//
// The bridge holds at most one client; a reconnecting page replaces the
// previous socket. The socket outlives voice sessions: Start and Stop
// gate the audio flow, not the connection.
type AudioBridge struct {
	cfg audioio.Config

	mu       sync.Mutex
	conn     *websocket.Conn
	stream   chan audioio.AudioChunk
	permCh   chan protocol.PermissionData
	running  bool
	closed   bool
	overruns int64

	writeMu sync.Mutex
}

// NewAudioBridge creates a bridge with no client attached.
func NewAudioBridge(cfg audioio.Config) *AudioBridge {
	return &AudioBridge{cfg: cfg}
}

// Serve attaches conn as the bridge's client and reads messages until the
// socket closes. Call it from the WebSocket handler; it blocks.
func (b *AudioBridge) Serve(conn *websocket.Conn) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	if b.conn != nil {
		// A reloaded page reconnects before its old socket times out.
		b.conn.Close()
	}
	b.conn = conn
	b.mu.Unlock()
	log.Info("browser audio client connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		msg, err := protocol.ParseMessage(raw)
		if err != nil {
			debug.Log("🔌 bad bridge message: %v\n", err)
			continue
		}
		b.handleMessage(msg)
	}

	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.mu.Unlock()
	log.Info("browser audio client disconnected")
}

// Connected reports whether a browser client is attached.
func (b *AudioBridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

func (b *AudioBridge) handleMessage(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeMic:
		mic, err := msg.PCM()
		if err != nil {
			debug.Log("🔌 bad mic payload: %v\n", err)
			return
		}
		pcm, err := mic.Decode()
		if err != nil {
			debug.Log("🔌 bad mic audio: %v\n", err)
			return
		}
		var chunk audioio.AudioChunk
		chunk.FromBytes(pcm, mic.SampleRate, mic.Channels)
		b.deliver(chunk)

	case protocol.TypePermission:
		perm, err := msg.Permission()
		if err != nil {
			return
		}
		b.mu.Lock()
		ch := b.permCh
		b.mu.Unlock()
		if ch != nil {
			select {
			case ch <- *perm:
			default:
			}
		}

	case protocol.TypePing:
		ping, err := msg.Ping()
		if err != nil {
			return
		}
		pong, err := protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli())
		if err != nil {
			return
		}
		if err := b.send(pong); err != nil {
			debug.Log("🔌 pong send failed: %v\n", err)
		}

	default:
		debug.Log("🔌 unexpected bridge message type: %s\n", msg.Type)
	}
}

// deliver hands a capture chunk to the session stream. Chunks arriving
// outside a session, or faster than the session consumes them, are
// dropped; the uplink is a best-effort live feed, not a queue.
func (b *AudioBridge) deliver(chunk audioio.AudioChunk) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running || b.stream == nil {
		return
	}
	select {
	case b.stream <- chunk:
	default:
		b.overruns++
		if b.overruns%100 == 1 {
			debug.Log("🔌 capture overrun, dropped %d chunks\n", b.overruns)
		}
	}
}

// send serializes one message to the attached client.
func (b *AudioBridge) send(msg *protocol.Message) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("web: no browser audio client attached")
	}
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// =============================================================================
// audioio.Source
// =============================================================================

// Start asks the attached page for microphone access and begins accepting
// capture chunks. With no page attached, or when the user declines the
// browser prompt, it fails with an error wrapping ErrPermissionDenied.
// Calling Start while already running is a no-op, which lets a controller
// start the bridge once as a source and once as a sink.
func (b *AudioBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("web: audio bridge closed")
	}
	if b.running {
		b.mu.Unlock()
		return nil
	}
	if b.conn == nil {
		b.mu.Unlock()
		return fmt.Errorf("web: no browser audio client: %w", audioio.ErrPermissionDenied)
	}
	permCh := make(chan protocol.PermissionData, 1)
	b.permCh = permCh
	b.mu.Unlock()

	clearPerm := func() {
		b.mu.Lock()
		b.permCh = nil
		b.mu.Unlock()
	}

	// Tell the page a session is starting; it responds with the outcome
	// of its getUserMedia prompt.
	msg, err := protocol.NewSessionMessage("connecting", "")
	if err != nil {
		clearPerm()
		return err
	}
	if err := b.send(msg); err != nil {
		clearPerm()
		return err
	}

	select {
	case perm := <-permCh:
		clearPerm()
		if !perm.Granted {
			reason := perm.Reason
			if reason == "" {
				reason = "denied by user"
			}
			return fmt.Errorf("web: microphone %s: %w", reason, audioio.ErrPermissionDenied)
		}
	case <-time.After(permissionTimeout):
		clearPerm()
		return fmt.Errorf("web: microphone permission timed out: %w", audioio.ErrPermissionDenied)
	case <-ctx.Done():
		clearPerm()
		return ctx.Err()
	}

	b.mu.Lock()
	b.stream = make(chan audioio.AudioChunk, streamBuffer)
	b.running = true
	b.overruns = 0
	b.mu.Unlock()
	return nil
}

// Stop ends the audio flow and tells the page to release its microphone.
// The socket stays attached for the next session.
func (b *AudioBridge) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	if b.stream != nil {
		close(b.stream)
		b.stream = nil
	}
	b.mu.Unlock()

	if msg, err := protocol.NewSessionMessage("idle", ""); err == nil {
		if err := b.send(msg); err != nil {
			debug.Log("🔌 session idle notify failed: %v\n", err)
		}
	}
	return nil
}

// Read returns the next capture chunk, blocking until one arrives, the
// context ends, or the source stops.
func (b *AudioBridge) Read(ctx context.Context) (audioio.AudioChunk, error) {
	b.mu.Lock()
	stream := b.stream
	b.mu.Unlock()
	if stream == nil {
		return audioio.AudioChunk{}, io.EOF
	}
	select {
	case chunk, ok := <-stream:
		if !ok {
			return audioio.AudioChunk{}, io.EOF
		}
		return chunk, nil
	case <-ctx.Done():
		return audioio.AudioChunk{}, ctx.Err()
	}
}

// Stream returns the capture channel. Before Start, or after Stop, the
// returned channel is closed.
func (b *AudioBridge) Stream() <-chan audioio.AudioChunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == nil {
		ch := make(chan audioio.AudioChunk)
		close(ch)
		return ch
	}
	return b.stream
}

// =============================================================================
// audioio.Sink
// =============================================================================

// Write forwards a playback chunk to the page.
func (b *AudioBridge) Write(ctx context.Context, chunk audioio.AudioChunk) error {
	msg, err := protocol.NewAudioMessage(chunk.Bytes(), chunk.SampleRate)
	if err != nil {
		return err
	}
	return b.send(msg)
}

// Flush is a no-op; the page's playback buffer is not observable from
// here.
func (b *AudioBridge) Flush(ctx context.Context) error {
	return nil
}

// Clear tells the page to drop everything it has queued for playback.
// With no client attached there is nothing queued anywhere, so a failed
// send is not an error.
func (b *AudioBridge) Clear() error {
	msg, err := protocol.NewClearMessage()
	if err != nil {
		return err
	}
	if err := b.send(msg); err != nil {
		debug.Log("🔌 clear notify failed: %v\n", err)
	}
	return nil
}

// Config returns the bridge audio configuration.
func (b *AudioBridge) Config() audioio.Config {
	return b.cfg
}

// Name returns the backend name.
func (b *AudioBridge) Name() string {
	return "bridge"
}

// Close detaches the client and makes the bridge unusable.
func (b *AudioBridge) Close() error {
	b.mu.Lock()
	b.closed = true
	conn := b.conn
	b.conn = nil
	if b.stream != nil {
		close(b.stream)
		b.stream = nil
	}
	b.running = false
	b.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

var (
	_ audioio.Source = (*AudioBridge)(nil)
	_ audioio.Sink   = (*AudioBridge)(nil)
)
