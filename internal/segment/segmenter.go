package segment

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/yujixr/stream-scribe/internal/audio"
	"github.com/yujixr/stream-scribe/internal/config"
	"github.com/yujixr/stream-scribe/internal/vad"
)

// State is the segmentation machine state.
type State int

const (
	// StateSilent means no speech is being tracked.
	StateSilent State = iota
	// StateSpeechCandidate means scores crossed the start threshold but the
	// minimum run has not yet confirmed real speech.
	StateSpeechCandidate
	// StateSpeaking means an utterance is open and chunks are being recorded.
	StateSpeaking
	// StateTailCandidate means scores dropped below the end threshold while
	// recording; the segment closes if silence persists.
	StateTailCandidate
)

func (s State) String() string {
	switch s {
	case StateSilent:
		return "silent"
	case StateSpeechCandidate:
		return "speech_candidate"
	case StateSpeaking:
		return "speaking"
	case StateTailCandidate:
		return "tail_candidate"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Segmenter drives the hysteresis machine over the incoming chunk stream.
// It is owned by the capture goroutine and is not safe for concurrent use.
type Segmenter struct {
	detector   vad.Detector
	logger     *slog.Logger
	cfg        config.VADConfig
	sampleRate int

	state      State
	ring       *audio.Ring
	buf        []float32 // open utterance samples, preroll included
	chunkIndex int64     // next chunk number, monotonic for the session
	startChunk int64     // first chunk of the open utterance (preroll included)
	speechRun  int       // consecutive above-start chunks in candidate state
	tailRun    int       // consecutive below-end chunks in tail state
	idleRun    int       // consecutive silent chunks since last activity
}

// New creates a segmenter. chunkSize is in samples.
func New(detector vad.Detector, cfg config.VADConfig, sampleRate, chunkSize int, logger *slog.Logger) *Segmenter {
	prerollChunks := cfg.PrerollChunks(sampleRate, chunkSize)
	return &Segmenter{
		detector:   detector,
		logger:     logger,
		cfg:        cfg,
		sampleRate: sampleRate,
		state:      StateSilent,
		ring:       audio.NewRing(prerollChunks),
	}
}

// State returns the current machine state.
func (s *Segmenter) State() State { return s.state }

// Process scores one chunk and advances the machine. It returns a completed
// utterance when trailing silence closes a segment, else nil.
func (s *Segmenter) Process(chunk []float32) (*audio.Utterance, error) {
	score, err := s.detector.Score(chunk)
	if err != nil {
		return nil, fmt.Errorf("failed to score chunk %d: %w", s.chunkIndex, err)
	}
	idx := s.chunkIndex
	s.chunkIndex++

	u, err := s.advance(idx, score, chunk)

	// The ring is fed in every state and never cleared, so an onset shortly
	// after a segment closes still gets its full preroll. Consecutive
	// utterances may overlap by up to the preroll window.
	s.ring.Push(chunk)
	return u, err
}

func (s *Segmenter) advance(idx int64, score float64, chunk []float32) (*audio.Utterance, error) {
	switch s.state {
	case StateSilent:
		if score >= s.cfg.StartThreshold {
			// Preroll snapshot first, then the triggering chunk.
			s.buf = append(s.ring.Snapshot(), chunk...)
			s.startChunk = idx - int64(s.ring.Len())
			s.speechRun = 1
			s.idleRun = 0
			s.setState(StateSpeechCandidate, score)
			return nil, nil
		}
		s.idleRun++
		if s.cfg.IdleResetChunks > 0 && s.idleRun >= s.cfg.IdleResetChunks {
			// Recurrent detector state degrades over long silence.
			s.detector.Reset()
			s.idleRun = 0
			s.logger.Debug("detector state reset after idle period",
				slog.Int64("chunk", idx))
		}
		return nil, nil

	case StateSpeechCandidate:
		s.buf = append(s.buf, chunk...)
		if score >= s.cfg.StartThreshold {
			s.speechRun++
			if s.speechRun >= s.cfg.MinSpeechChunks {
				s.setState(StateSpeaking, score)
			}
			return nil, nil
		}
		s.revertCandidate(score)
		return nil, nil

	case StateSpeaking:
		s.buf = append(s.buf, chunk...)
		if score < s.cfg.EndThreshold {
			s.tailRun = 1
			s.setState(StateTailCandidate, score)
		}
		return nil, nil

	case StateTailCandidate:
		s.buf = append(s.buf, chunk...)
		if score >= s.cfg.EndThreshold {
			s.tailRun = 0
			s.setState(StateSpeaking, score)
			return nil, nil
		}
		s.tailRun++
		if s.tailRun >= s.cfg.MaxTailChunks {
			return s.finish(idx, score), nil
		}
		return nil, nil
	}
	return nil, fmt.Errorf("invalid segmenter state %d", s.state)
}

// Flush closes any open utterance, returning it, or nil when idle. Used on
// shutdown so speech in progress is not lost. A pending candidate run shorter
// than the confirmation minimum is discarded as noise.
func (s *Segmenter) Flush() *audio.Utterance {
	switch s.state {
	case StateSpeaking, StateTailCandidate:
		return s.finish(s.chunkIndex-1, 0)
	case StateSpeechCandidate:
		s.revertCandidate(0)
	}
	return nil
}

func (s *Segmenter) finish(lastChunk int64, score float64) *audio.Utterance {
	end := time.Now()
	u := &audio.Utterance{
		Samples:    s.buf,
		SampleRate: s.sampleRate,
		StartChunk: s.startChunk,
		EndChunk:   lastChunk,
		EndTime:    end,
	}
	u.StartTime = end.Add(-u.Duration())

	s.buf = nil
	s.tailRun = 0
	s.speechRun = 0
	s.idleRun = 0
	s.detector.Reset()
	s.setState(StateSilent, score)

	s.logger.Debug("utterance closed",
		slog.Int64("start_chunk", u.StartChunk),
		slog.Int64("end_chunk", u.EndChunk),
		slog.Float64("seconds", u.Seconds()))
	return u
}

// revertCandidate abandons an unconfirmed onset. The held chunks were
// already fed to the ring on arrival, so they remain available as preroll.
func (s *Segmenter) revertCandidate(score float64) {
	s.buf = nil
	s.speechRun = 0
	s.setState(StateSilent, score)
}

func (s *Segmenter) setState(next State, score float64) {
	if s.state == next {
		return
	}
	s.logger.Debug("segmenter state change",
		slog.String("from", s.state.String()),
		slog.String("to", next.String()),
		slog.Float64("score", score))
	s.state = next
}
