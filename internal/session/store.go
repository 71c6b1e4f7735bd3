package session

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/yujixr/stream-scribe/internal/structure"
)

// Store persists finished sessions as JSON files.
type Store struct {
	dir string
}

// NewStore creates a store writing into dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// record is the serialized session layout.
type record struct {
	SessionID     string            `json:"session_id"`
	SessionStart  time.Time         `json:"session_start"`
	SessionEnd    time.Time         `json:"session_end"`
	TotalSegments int               `json:"total_segments"`
	TotalErrors   int               `json:"total_errors"`
	Segments      []Segment         `json:"segments"`
	Errors        []ErrorRecord     `json:"errors"`
	Summaries     []SummaryEntry    `json:"summaries,omitempty"`
	Topics        []structure.Topic `json:"topics,omitempty"`
	Summary       string            `json:"structured_summary,omitempty"`
}

// Save writes the session and its final topic tree to a timestamped file and
// returns the path. The structured summary field prefers the shutdown
// summary, falling back to the last intermediate tree.
func (st *Store) Save(s *Session, tree structure.TopicTree) (string, error) {
	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	segments := s.Segments()
	for i := range segments {
		segments[i].AudioDuration = round2(segments[i].AudioDuration)
		segments[i].ProcessingTime = round2(segments[i].ProcessingTime)
		// Fresh pointers: the copies still alias the session's metric values.
		segments[i].AvgLogProb = roundMetric(segments[i].AvgLogProb)
		segments[i].CompressionRatio = roundMetric(segments[i].CompressionRatio)
		segments[i].NoSpeechProb = roundMetric(segments[i].NoSpeechProb)
	}

	summary := s.FinalSummary()
	if summary == "" {
		summary = tree.Markdown
	}

	rec := record{
		SessionID:    s.ID(),
		SessionStart: s.StartTime(),
		SessionEnd:   time.Now(),
		Segments:     segments,
		Errors:       s.Errors(),
		Summaries:    s.Summaries(),
		Topics:       tree.Topics,
		Summary:      summary,
	}
	rec.TotalSegments, rec.TotalErrors = len(rec.Segments), len(rec.Errors)
	if rec.Segments == nil {
		rec.Segments = []Segment{}
	}
	if rec.Errors == nil {
		rec.Errors = []ErrorRecord{}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize session: %w", err)
	}

	name := fmt.Sprintf("transcription_%s.json", s.StartTime().Format("20060102_150405"))
	path := filepath.Join(st.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write session file: %w", err)
	}
	return path, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundMetric(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*1000) / 1000
	return &r
}
