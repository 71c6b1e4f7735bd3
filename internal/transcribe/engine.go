package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yujixr/stream-scribe/internal/audio"
	"github.com/yujixr/stream-scribe/internal/config"
)

// ErrNoSpeech marks an utterance the decoder heard nothing in. It is a
// normal outcome for breath noise and room sounds, not a failure.
var ErrNoSpeech = errors.New("no speech detected")

// ErrRejected marks an utterance every cascade phase rejected.
var ErrRejected = errors.New("all phases rejected the transcription")

// Result is an accepted transcription.
type Result struct {
	Text           string
	Phase          string // name of the accepting phase
	Attempt        int    // 1-based attempt number
	Metrics        Metrics
	AudioSeconds   float64
	ProcessingTime time.Duration
}

// Engine runs the retry cascade over one utterance at a time. Phases escalate
// temperature while tightening acceptance; an early phase accepting
// short-circuits the rest.
type Engine struct {
	decoder Decoder
	filter  *Filter
	cfg     config.WhisperConfig
	logger  *slog.Logger
}

// NewEngine creates a cascade engine.
func NewEngine(decoder Decoder, filter *Filter, cfg config.WhisperConfig, logger *slog.Logger) *Engine {
	return &Engine{decoder: decoder, filter: filter, cfg: cfg, logger: logger}
}

// Transcribe runs the cascade. It returns ErrNoSpeech for silent audio,
// ErrRejected when every phase fails a gate or the hallucination filter, and
// the decode error otherwise; transport errors are structural and are not
// retried across phases.
func (e *Engine) Transcribe(ctx context.Context, u *audio.Utterance) (*Result, error) {
	wav, err := audio.EncodeWAV(u.Samples, u.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode utterance: %w", err)
	}
	start := time.Now()
	seconds := u.Seconds()

	var lastReason string
	for i, phase := range e.cfg.Phases {
		raw, err := e.decode(ctx, wav, phase)
		if err != nil {
			return nil, fmt.Errorf("phase %q: %w", phase.Name, err)
		}

		text := strings.TrimSpace(raw.Text)
		m := AggregateMetrics(raw.Segments)

		// Empty output means silence. No parameter change recovers speech
		// that is not there, so the cascade stops immediately.
		if text == "" {
			return nil, ErrNoSpeech
		}

		// Whisper's own silence rule: a high no-speech probability counts
		// only when confidence is also below the phase floor. That is
		// silence, not a quality failure, so the cascade stops here too.
		if m.Valid && m.NoSpeechProb > phase.NoSpeechThreshold && m.AvgLogProb < phase.MinAvgLogProb {
			return nil, ErrNoSpeech
		}

		reason := e.gate(text, m, phase, seconds)
		if reason == "" {
			res := &Result{
				Text:           text,
				Phase:          phase.Name,
				Attempt:        i + 1,
				Metrics:        m,
				AudioSeconds:   seconds,
				ProcessingTime: time.Since(start),
			}
			if i > 0 {
				e.logger.Info("transcription accepted after retries",
					slog.String("phase", phase.Name),
					slog.Int("attempt", res.Attempt))
			}
			return res, nil
		}

		lastReason = reason
		e.logger.Warn("transcription rejected",
			slog.String("phase", phase.Name),
			slog.Int("attempt", i+1),
			slog.Int("max_attempts", len(e.cfg.Phases)),
			slog.String("reason", reason),
			slog.Float64("avg_logprob", m.AvgLogProb),
			slog.Float64("compression_ratio", m.CompressionRatio))
	}
	return nil, fmt.Errorf("%w: %s", ErrRejected, lastReason)
}

func (e *Engine) decode(ctx context.Context, wav []byte, phase config.PhaseConfig) (*RawResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.GetTimeoutDuration())
	defer cancel()
	return e.decoder.Decode(ctx, wav, phase)
}

// gate applies the phase's quality thresholds, then the hallucination filter.
// Returns a rejection reason or "".
func (e *Engine) gate(text string, m Metrics, phase config.PhaseConfig, seconds float64) string {
	if m.Valid {
		if m.CompressionRatio > phase.MaxCompressionRatio {
			return fmt.Sprintf("compression ratio %.2f exceeds %.2f", m.CompressionRatio, phase.MaxCompressionRatio)
		}
		if m.AvgLogProb < phase.MinAvgLogProb {
			return fmt.Sprintf("avg_logprob %.2f below %.2f", m.AvgLogProb, phase.MinAvgLogProb)
		}
	}
	return e.filter.Evaluate(text, m, seconds)
}
