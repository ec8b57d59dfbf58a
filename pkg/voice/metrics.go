package voice

import (
	"strconv"
	"sync"
	"time"
)

// turnHistory bounds how many turn latencies feed the rolling average.
const turnHistory = 100

// Metrics describes one live session: connection timing, reply latency,
// and traffic counters. Counters accumulate for the lifetime of a session;
// TurnLatency reflects the most recent turn.
type Metrics struct {
	ConnectedAt   time.Time // session became ready
	SpeechEndTime time.Time // VAD closed the current turn

	FirstAudioLatency time.Duration // connect to first synthesized audio
	TurnLatency       time.Duration // speech end to first reply audio, last turn

	AudioChunksIn  int // chunks sent to the provider
	AudioChunksOut int // synthesized chunks received
	ToolCalls      int // tool invocations requested by the model
	Turns          int // completed model turns
}

// MetricsCollector accumulates Metrics for one session. Providers call the
// Mark and Increment methods from their socket read loops, so every method
// is safe for concurrent use and none of them block.
type MetricsCollector struct {
	mu      sync.Mutex
	current Metrics
	history []time.Duration // recent turn latencies

	turnAudioSeen bool

	onUpdate func(Metrics)
}

// NewMetricsCollector returns an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]time.Duration, 0, turnHistory),
	}
}

// OnUpdate registers a listener that receives a snapshot after each
// change worth reporting. Delivery is asynchronous.
func (m *MetricsCollector) OnUpdate(fn func(Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// MarkConnected resets the session metrics and stamps ConnectedAt.
func (m *MetricsCollector) MarkConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{ConnectedAt: time.Now()}
	m.turnAudioSeen = false
	m.notify()
}

// MarkSpeechEnd stamps the end of the user's turn. Turn latency is
// measured from here to the first reply audio.
func (m *MetricsCollector) MarkSpeechEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.SpeechEndTime = time.Now()
	m.turnAudioSeen = false
	m.notify()
}

// MarkAudioOut counts a synthesized chunk and, on the first chunk after a
// speech end, resolves the latency measurements.
func (m *MetricsCollector) MarkAudioOut() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.current.AudioChunksOut++

	if m.current.FirstAudioLatency == 0 && !m.current.ConnectedAt.IsZero() {
		m.current.FirstAudioLatency = now.Sub(m.current.ConnectedAt)
	}
	if !m.turnAudioSeen && !m.current.SpeechEndTime.IsZero() {
		m.turnAudioSeen = true
		m.current.TurnLatency = now.Sub(m.current.SpeechEndTime)
		m.history = append(m.history, m.current.TurnLatency)
		if len(m.history) > turnHistory {
			m.history = m.history[1:]
		}
		m.notify()
	}
}

// MarkTurnComplete counts a completed model turn.
func (m *MetricsCollector) MarkTurnComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Turns++
	m.notify()
}

// IncrementAudioIn counts a chunk sent to the provider.
func (m *MetricsCollector) IncrementAudioIn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksIn++
}

// IncrementToolCalls counts a tool invocation requested by the model.
func (m *MetricsCollector) IncrementToolCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ToolCalls++
	m.notify()
}

// Current returns a snapshot of the session metrics.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// AverageTurnLatency averages the reply latency over recent turns.
func (m *MetricsCollector) AverageTurnLatency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range m.history {
		sum += d
	}
	return sum / time.Duration(len(m.history))
}

// notify hands the listener its own snapshot on a fresh goroutine. Called
// with the mutex held; the listener must never see the lock.
func (m *MetricsCollector) notify() {
	if m.onUpdate != nil {
		snap := m.current
		go m.onUpdate(snap)
	}
}

// FormatLatency renders the latencies and counters as a one-line summary.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.TurnLatency) + " turn | " +
		formatDuration(m.FirstAudioLatency) + " first-audio | " +
		"in " + strconv.Itoa(m.AudioChunksIn) + " out " + strconv.Itoa(m.AudioChunksOut) +
		" tools " + strconv.Itoa(m.ToolCalls)
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
