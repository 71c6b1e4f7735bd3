package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Segment is one accepted transcription with its metadata.
type Segment struct {
	Text           string    `json:"text"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	AudioDuration  float64   `json:"audio_duration"`
	ProcessingTime float64   `json:"processing_time"`
	Phase          string    `json:"phase,omitempty"`
	Attempt        int       `json:"attempt,omitempty"`

	// Decoder confidence, absent when the backend returned no segments.
	AvgLogProb       *float64 `json:"avg_logprob,omitempty"`
	CompressionRatio *float64 `json:"compression_ratio,omitempty"`
	NoSpeechProb     *float64 `json:"no_speech_prob,omitempty"`
}

// ErrorRecord is one non-fatal failure kept for the session ledger.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// SummaryEntry is one intermediate or final structuring result.
type SummaryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// Session collects everything one run produces. Segments arrive from the
// transcription lane while summaries and errors arrive from others, so all
// access is mutex-guarded.
type Session struct {
	mu sync.RWMutex

	id           string
	startTime    time.Time
	segments     []Segment
	errors       []ErrorRecord
	summaries    []SummaryEntry
	finalSummary *SummaryEntry
}

// New starts an empty session.
func New() *Session {
	return &Session{
		id:        uuid.NewString(),
		startTime: time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// StartTime returns when the session began.
func (s *Session) StartTime() time.Time { return s.startTime }

// AddSegment appends an accepted segment.
func (s *Session) AddSegment(seg Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, seg)
}

// AddError appends to the error ledger.
func (s *Session) AddError(source, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, ErrorRecord{
		Timestamp: time.Now(),
		Source:    source,
		Message:   message,
	})
}

// AddSummary appends an intermediate structuring result.
func (s *Session) AddSummary(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, SummaryEntry{Timestamp: time.Now(), Content: content})
}

// SetFinalSummary records the shutdown summary.
func (s *Session) SetFinalSummary(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalSummary = &SummaryEntry{Timestamp: time.Now(), Content: content}
}

// Segments returns a copy of the accepted segments in arrival order.
func (s *Session) Segments() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Errors returns a copy of the error ledger.
func (s *Session) Errors() []ErrorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ErrorRecord, len(s.errors))
	copy(out, s.errors)
	return out
}

// Summaries returns a copy of the intermediate summary history.
func (s *Session) Summaries() []SummaryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SummaryEntry, len(s.summaries))
	copy(out, s.summaries)
	return out
}

// FinalSummary returns the shutdown summary, or "" if none was generated.
func (s *Session) FinalSummary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.finalSummary == nil {
		return ""
	}
	return s.finalSummary.Content
}

// Counts returns the segment and error totals.
func (s *Session) Counts() (segments, errors int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments), len(s.errors)
}

// Transcript renders all segments as numbered, timestamped lines for the
// final summary prompt.
func (s *Session) Transcript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var b strings.Builder
	for i, seg := range s.segments {
		fmt.Fprintf(&b, "[%d] %s %s\n", i+1, seg.StartTime.Format("15:04:05"), seg.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
