// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks currently connected voice clients.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "healthvoice_active_connections",
		Help: "Number of connected voice gateway clients.",
	})

	// RecordingsTotal counts recording sessions by outcome.
	RecordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthvoice_recordings_total",
		Help: "Recording sessions by outcome.",
	}, []string{"outcome"})

	// RecordingDuration observes the audio length of completed
	// recordings in seconds.
	RecordingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "healthvoice_recording_duration_seconds",
		Help:    "Audio duration of completed recordings.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	// TranscriptionsTotal counts transcription attempts by result.
	TranscriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthvoice_transcriptions_total",
		Help: "Transcription attempts by result.",
	}, []string{"result"})

	// MessagesSentTotal counts chat sends by input type and result.
	MessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthvoice_messages_sent_total",
		Help: "Chat messages sent by input type and result.",
	}, []string{"type", "result"})

	// PlaybacksTotal counts started audio playbacks.
	PlaybacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "healthvoice_playbacks_total",
		Help: "Started audio playbacks.",
	})
)
