package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the dictation pipeline
type Metrics struct {
	// Capture metrics
	ChunksCaptured      prometheus.Counter
	UtterancesCut       prometheus.Counter
	UtterancesDropped   prometheus.Counter
	UtteranceQueueDepth prometheus.Gauge
	UtteranceDuration   prometheus.Histogram

	// Transcription metrics
	DecodeAttempts *prometheus.CounterVec
	Accepted       *prometheus.CounterVec
	RejectedFinal  prometheus.Counter
	NoSpeech       prometheus.Counter
	DecodeErrors   prometheus.Counter
	DecodeDuration prometheus.Histogram

	// Structuring metrics
	StructuringCalls    prometheus.Counter
	StructuringFailures prometheus.Counter
	StructuringDuration prometheus.Histogram
	PendingChars        prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Capture metrics
		ChunksCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunks_captured_total",
			Help: "Total number of audio chunks read from the signal source",
		}),
		UtterancesCut: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_utterances_total",
			Help: "Total number of utterances cut by the segmenter",
		}),
		UtterancesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_utterances_dropped_total",
			Help: "Total number of utterances dropped because the queue was full",
		}),
		UtteranceQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_utterance_queue_depth",
			Help: "Current number of utterances waiting for transcription",
		}),
		UtteranceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_utterance_duration_seconds",
			Help:    "Audio length of cut utterances",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),

		// Transcription metrics
		DecodeAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_decode_attempts_total",
			Help: "Total decode attempts by cascade phase",
		}, []string{"phase"}),
		Accepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_transcriptions_accepted_total",
			Help: "Total accepted transcriptions by accepting phase",
		}, []string{"phase"}),
		RejectedFinal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcriptions_rejected_total",
			Help: "Total utterances rejected by every cascade phase",
		}),
		NoSpeech: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_no_speech_total",
			Help: "Total utterances discarded as silence",
		}),
		DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_decode_errors_total",
			Help: "Total transcription transport failures",
		}),
		DecodeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_decode_duration_seconds",
			Help:    "Wall-clock time of the full cascade per utterance",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),

		// Structuring metrics
		StructuringCalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_structuring_calls_total",
			Help: "Total structuring calls dispatched",
		}),
		StructuringFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_structuring_failures_total",
			Help: "Total structuring calls that failed after retries",
		}),
		StructuringDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_structuring_duration_seconds",
			Help:    "Wall-clock time of structuring calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),
		PendingChars: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_pending_chars",
			Help: "Characters accumulated toward the next structuring trigger",
		}),
	}
}
