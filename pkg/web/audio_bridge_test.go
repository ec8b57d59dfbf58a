package web

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinicvoice/pkg/audioio"
	"github.com/clinicdesk/clinicvoice/pkg/protocol"
	"github.com/clinicdesk/clinicvoice/pkg/records"
)

func newTestBridge() *AudioBridge {
	return NewAudioBridge(audioio.Config{Backend: "bridge", SampleRate: 16000, Channels: 1})
}

func TestBridgeStartWithoutClient(t *testing.T) {
	b := newTestBridge()

	err := b.Start(context.Background())
	require.Error(t, err)
	// No page attached means no microphone; callers treat it like a
	// denied permission prompt.
	assert.True(t, errors.Is(err, audioio.ErrPermissionDenied))
}

func TestBridgeStartAfterClose(t *testing.T) {
	b := newTestBridge()
	require.NoError(t, b.Close())

	err := b.Start(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, audioio.ErrPermissionDenied))
}

func TestBridgeStopWhenNotRunning(t *testing.T) {
	b := newTestBridge()
	assert.NoError(t, b.Stop())
}

func TestBridgeStreamBeforeStart(t *testing.T) {
	b := newTestBridge()

	select {
	case _, ok := <-b.Stream():
		assert.False(t, ok, "expected closed channel before Start")
	case <-time.After(time.Second):
		t.Fatal("Stream() channel did not behave as closed")
	}
}

func TestBridgeReadBeforeStart(t *testing.T) {
	b := newTestBridge()

	_, err := b.Read(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestBridgeDeliverIgnoredWhenStopped(t *testing.T) {
	b := newTestBridge()

	// Mic chunks arriving outside a session are dropped silently.
	b.deliver(audioio.AudioChunk{Samples: make([]int16, 320), SampleRate: 16000, Channels: 1})

	select {
	case _, ok := <-b.Stream():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Stream() channel did not behave as closed")
	}
}

func TestBridgeClearWithoutClient(t *testing.T) {
	b := newTestBridge()
	assert.NoError(t, b.Clear())
}

func TestBridgeWriteWithoutClient(t *testing.T) {
	b := newTestBridge()

	err := b.Write(context.Background(), audioio.AudioChunk{
		Samples: make([]int16, 480), SampleRate: 24000, Channels: 1,
	})
	assert.Error(t, err)
}

func TestBridgeName(t *testing.T) {
	b := newTestBridge()
	assert.Equal(t, "bridge", b.Name())
	assert.Equal(t, 16000, b.Config().SampleRate)
}

// dialAudioWS starts the server, connects a fake browser page, and waits
// for the bridge to see it.
func dialAudioWS(t *testing.T, addr string) (*Server, *websocket.Conn) {
	t.Helper()

	s := NewServer(Config{
		Addr:      addr,
		StaticDir: t.TempDir(),
		Audio:     audioio.Config{Backend: "bridge", SampleRate: 16000, Channels: 1},
	})
	go s.Start()
	t.Cleanup(func() { s.Shutdown() })
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost"+addr+"/ws/audio", nil)
	require.NoError(t, err, "WebSocket dial")
	t.Cleanup(func() { ws.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for !s.Bridge().Connected() {
		if time.Now().After(deadline) {
			t.Fatal("bridge never saw the client")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s, ws
}

func readBridgeMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err, "read bridge message")
	msg, err := protocol.ParseMessage(raw)
	require.NoError(t, err, "parse bridge message")
	return msg
}

func TestBridgeSessionFlow(t *testing.T) {
	s, ws := dialAudioWS(t, ":18090")
	bridge := s.Bridge()

	// Start blocks on the permission handshake, so run it like the
	// session controller does and answer as the page.
	startErr := make(chan error, 1)
	go func() { startErr <- bridge.Start(context.Background()) }()

	msg := readBridgeMessage(t, ws)
	require.Equal(t, protocol.TypeSession, msg.Type)
	session, err := msg.Session()
	require.NoError(t, err)
	assert.Equal(t, "connecting", session.State)

	grant, err := protocol.NewPermissionMessage(true, "")
	require.NoError(t, err)
	data, err := grant.Bytes()
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))

	select {
	case err := <-startErr:
		require.NoError(t, err, "Start after permission granted")
	case <-time.After(2 * time.Second):
		t.Fatal("Start never returned")
	}

	// Uplink: mic chunks flow into the stream.
	pcm := make([]byte, 640) // 320 samples
	mic, err := protocol.NewMicMessage(pcm, 16000)
	require.NoError(t, err)
	data, err = mic.Bytes()
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))

	select {
	case chunk := <-bridge.Stream():
		assert.Equal(t, 16000, chunk.SampleRate)
		assert.Equal(t, 1, chunk.Channels)
		assert.Len(t, chunk.Samples, 320)
	case <-time.After(2 * time.Second):
		t.Fatal("mic chunk never reached the stream")
	}

	// Downlink: playback audio reaches the page.
	err = bridge.Write(context.Background(), audioio.AudioChunk{
		Samples: make([]int16, 480), SampleRate: 24000, Channels: 1,
	})
	require.NoError(t, err)

	msg = readBridgeMessage(t, ws)
	require.Equal(t, protocol.TypeAudio, msg.Type)
	audio, err := msg.PCM()
	require.NoError(t, err)
	assert.Equal(t, 24000, audio.SampleRate)

	// Barge-in clears the page's playback queue.
	require.NoError(t, bridge.Clear())
	msg = readBridgeMessage(t, ws)
	assert.Equal(t, protocol.TypeClear, msg.Type)

	// Stop releases the mic and closes the stream; the socket survives.
	require.NoError(t, bridge.Stop())
	msg = readBridgeMessage(t, ws)
	require.Equal(t, protocol.TypeSession, msg.Type)
	session, err = msg.Session()
	require.NoError(t, err)
	assert.Equal(t, "idle", session.State)

	select {
	case _, ok := <-bridge.Stream():
		assert.False(t, ok, "expected stream closed after Stop")
	case <-time.After(time.Second):
		t.Fatal("stream not closed after Stop")
	}
	assert.True(t, bridge.Connected(), "socket should outlive the session")
}

func TestBridgePermissionDenied(t *testing.T) {
	s, ws := dialAudioWS(t, ":18091")
	bridge := s.Bridge()

	startErr := make(chan error, 1)
	go func() { startErr <- bridge.Start(context.Background()) }()

	msg := readBridgeMessage(t, ws)
	require.Equal(t, protocol.TypeSession, msg.Type)

	deny, err := protocol.NewPermissionMessage(false, "denied by user")
	require.NoError(t, err)
	data, err := deny.Bytes()
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))

	select {
	case err := <-startErr:
		require.Error(t, err)
		assert.True(t, errors.Is(err, audioio.ErrPermissionDenied))
	case <-time.After(2 * time.Second):
		t.Fatal("Start never returned")
	}
}

func TestBridgePingPong(t *testing.T) {
	_, ws := dialAudioWS(t, ":18092")

	ping, err := protocol.NewPingMessage("ping-1")
	require.NoError(t, err)
	data, err := ping.Bytes()
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))

	msg := readBridgeMessage(t, ws)
	require.Equal(t, protocol.TypePong, msg.Type)
	pong, err := msg.Pong()
	require.NoError(t, err)
	assert.Equal(t, "ping-1", pong.ID)
}

func TestStateWSSendsSnapshotOnConnect(t *testing.T) {
	store := records.NewStore(50, records.ThemeLight)

	s := NewServer(Config{
		Addr:      ":18093",
		StaticDir: t.TempDir(),
		Audio:     audioio.Config{Backend: "bridge", SampleRate: 16000, Channels: 1},
	})
	store.OnChange(s.UpdateState)
	s.UpdateState(store.Snapshot())

	go s.Start()
	t.Cleanup(func() { s.Shutdown() })
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18093/ws/state", nil)
	require.NoError(t, err)
	defer ws.Close()

	// The hub replays the retained snapshot on register, so the first
	// frame also proves registration completed.
	var view StateView
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, ws.ReadJSON(&view))
	assert.Equal(t, float64(50), view.BonusRate)
	assert.Equal(t, "idle", view.VoiceState)

	// A store mutation pushes a fresh snapshot.
	store.AddRecord(records.Input{PatientName: "Asha"})

	require.NoError(t, ws.ReadJSON(&view))
	require.Len(t, view.Records, 1)
	assert.Equal(t, "Asha", view.Records[0].PatientName)
	assert.Equal(t, 1, view.PendingCount)
}
