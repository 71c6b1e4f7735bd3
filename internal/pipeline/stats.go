package pipeline

import (
	"time"

	"github.com/yujixr/stream-scribe/internal/segment"
)

// Stats is a point-in-time snapshot served by the status API.
type Stats struct {
	SessionID      string    `json:"session_id"`
	SessionStart   time.Time `json:"session_start"`
	Running        bool      `json:"running"`
	SegmenterState string    `json:"segmenter_state"`

	ChunksCaptured    int64 `json:"chunks_captured"`
	UtterancesCut     int64 `json:"utterances_cut"`
	UtterancesDropped int64 `json:"utterances_dropped"`
	QueueDepth        int   `json:"queue_depth"`

	SegmentsAccepted int64 `json:"segments_accepted"`
	NoSpeech         int64 `json:"no_speech"`
	Rejected         int64 `json:"rejected"`
	Errors           int   `json:"errors"`

	StructuringCalls int64 `json:"structuring_calls"`
	PendingChars     int   `json:"pending_chars"`
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	c := p.counts
	running := p.running
	p.mu.RUnlock()

	_, errs := p.sess.Counts()
	return Stats{
		SessionID:         p.sess.ID(),
		SessionStart:      p.sess.StartTime(),
		Running:           running,
		SegmenterState:    segment.State(p.segState.Load()).String(),
		ChunksCaptured:    c.chunks,
		UtterancesCut:     c.utterances,
		UtterancesDropped: c.dropped,
		QueueDepth:        len(p.utterances),
		SegmentsAccepted:  c.accepted,
		NoSpeech:          c.noSpeech,
		Rejected:          c.rejected,
		Errors:            errs,
		StructuringCalls:  c.structured,
		PendingChars:      p.acc.PendingRunes(),
	}
}
