package voice

import (
	"strings"
	"testing"
	"time"
)

func TestMetricsCollectorCounters(t *testing.T) {
	mc := NewMetricsCollector()

	mc.MarkConnected()
	mc.IncrementAudioIn()
	mc.IncrementAudioIn()
	mc.MarkAudioOut()
	mc.IncrementToolCalls()
	mc.MarkTurnComplete()

	m := mc.Current()
	if m.AudioChunksIn != 2 {
		t.Errorf("Expected 2 chunks in, got %d", m.AudioChunksIn)
	}
	if m.AudioChunksOut != 1 {
		t.Errorf("Expected 1 chunk out, got %d", m.AudioChunksOut)
	}
	if m.ToolCalls != 1 {
		t.Errorf("Expected 1 tool call, got %d", m.ToolCalls)
	}
	if m.Turns != 1 {
		t.Errorf("Expected 1 turn, got %d", m.Turns)
	}
	if m.ConnectedAt.IsZero() {
		t.Error("Expected ConnectedAt to be set")
	}
}

func TestMetricsCollectorTurnLatency(t *testing.T) {
	mc := NewMetricsCollector()

	mc.MarkConnected()
	mc.MarkSpeechEnd()
	time.Sleep(5 * time.Millisecond)
	mc.MarkAudioOut()

	m := mc.Current()
	if m.TurnLatency <= 0 {
		t.Errorf("Expected positive turn latency, got %v", m.TurnLatency)
	}
	if m.FirstAudioLatency <= 0 {
		t.Errorf("Expected positive first-audio latency, got %v", m.FirstAudioLatency)
	}

	// Further chunks in the same turn must not move the latency.
	got := m.TurnLatency
	time.Sleep(5 * time.Millisecond)
	mc.MarkAudioOut()
	if mc.Current().TurnLatency != got {
		t.Errorf("Expected turn latency stable at %v, got %v", got, mc.Current().TurnLatency)
	}

	// A new turn resolves a fresh measurement.
	mc.MarkSpeechEnd()
	time.Sleep(10 * time.Millisecond)
	mc.MarkAudioOut()
	if mc.Current().TurnLatency == got {
		t.Error("Expected new turn to produce a new latency")
	}

	if avg := mc.AverageTurnLatency(); avg <= 0 {
		t.Errorf("Expected positive average latency, got %v", avg)
	}
}

func TestMetricsCollectorConnectResets(t *testing.T) {
	mc := NewMetricsCollector()

	mc.MarkConnected()
	mc.IncrementAudioIn()
	mc.MarkTurnComplete()

	mc.MarkConnected()
	m := mc.Current()
	if m.AudioChunksIn != 0 || m.Turns != 0 {
		t.Errorf("Expected counters reset on reconnect, got in=%d turns=%d",
			m.AudioChunksIn, m.Turns)
	}
}

func TestMetricsCollectorOnUpdate(t *testing.T) {
	mc := NewMetricsCollector()

	updates := make(chan Metrics, 8)
	mc.OnUpdate(func(m Metrics) { updates <- m })

	mc.MarkConnected()
	mc.MarkTurnComplete()

	// Delivery is asynchronous; wait for a snapshot showing the turn.
	deadline := time.After(time.Second)
	for {
		select {
		case m := <-updates:
			if m.Turns == 1 {
				return
			}
		case <-deadline:
			t.Fatal("Expected an update snapshot with the completed turn")
		}
	}
}

func TestFormatLatency(t *testing.T) {
	m := Metrics{}
	s := m.FormatLatency()
	if !strings.Contains(s, "---ms") {
		t.Errorf("Expected placeholder for zero latency, got %q", s)
	}

	m = Metrics{
		TurnLatency:       450 * time.Millisecond,
		FirstAudioLatency: 2 * time.Second,
		AudioChunksIn:     10,
		AudioChunksOut:    4,
	}
	s = m.FormatLatency()
	if !strings.Contains(s, "450ms") {
		t.Errorf("Expected turn latency in output, got %q", s)
	}
	if !strings.Contains(s, "in 10") || !strings.Contains(s, "out 4") {
		t.Errorf("Expected chunk counters in output, got %q", s)
	}
}
