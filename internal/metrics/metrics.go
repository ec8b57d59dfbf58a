// Package metrics defines the Prometheus collectors for clinicvoice and a
// standalone /metrics server kept off the application listener.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicdesk/clinicvoice/internal/log"
)

var (
	// RecordsCreated counts created medical records by source ("ui" or
	// "voice").
	RecordsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicvoice_records_created_total",
		Help: "Medical records created, by source.",
	}, []string{"source"})

	// RecordsUploaded counts records transitioned from pending to uploaded.
	RecordsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinicvoice_records_uploaded_total",
		Help: "Records uploaded.",
	})

	// BonusCredited accumulates the bonus amounts credited on upload.
	BonusCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinicvoice_bonus_credited_rupees_total",
		Help: "Total bonus credited, in Rupees.",
	})

	// ToolCalls counts dispatched tool calls by action and outcome
	// ("ok" or "unknown").
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicvoice_tool_calls_total",
		Help: "Tool calls dispatched, by action and outcome.",
	}, []string{"action", "outcome"})

	// VoiceSessions counts voice sessions by provider and result
	// ("active", "permission_denied", "connect_failed").
	VoiceSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicvoice_voice_sessions_total",
		Help: "Voice session attempts, by provider and result.",
	}, []string{"provider", "result"})

	// VoiceSessionSeconds observes the duration of completed sessions.
	VoiceSessionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clinicvoice_voice_session_seconds",
		Help:    "Duration of completed voice sessions.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// AudioChunksSent counts microphone chunks sent to the provider.
	AudioChunksSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinicvoice_audio_chunks_sent_total",
		Help: "Microphone audio chunks sent to the voice provider.",
	})

	// AudioChunksReceived counts synthesized chunks received.
	AudioChunksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinicvoice_audio_chunks_received_total",
		Help: "Synthesized audio chunks received from the voice provider.",
	})

	// PlaybackScheduled counts buffers handed to the playback scheduler.
	PlaybackScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinicvoice_playback_scheduled_total",
		Help: "Audio buffers scheduled for playback.",
	})

	// WSClients tracks connected WebSocket clients per channel.
	WSClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clinicvoice_ws_clients_connected",
		Help: "Connected WebSocket clients, by channel.",
	}, []string{"channel"})
)

// Serve starts the metrics HTTP server on addr and returns it for
// shutdown. Serving errors are logged, not fatal: the application works
// without metrics scraping.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()

	return srv
}
