package segment

import (
	"io"
	"log/slog"
	"testing"

	"github.com/yujixr/stream-scribe/internal/config"
)

const testChunkSize = 8

// scriptDetector replays a fixed score sequence, repeating the final score
// once the script runs out.
type scriptDetector struct {
	scores []float64
	pos    int
	resets int
}

func (d *scriptDetector) Score(chunk []float32) (float64, error) {
	if d.pos >= len(d.scores) {
		return d.scores[len(d.scores)-1], nil
	}
	s := d.scores[d.pos]
	d.pos++
	return s, nil
}

func (d *scriptDetector) Reset() { d.resets++ }

func testVADConfig() config.VADConfig {
	return config.VADConfig{
		StartThreshold:  0.5,
		EndThreshold:    0.3,
		MinSpeechChunks: 3,
		MaxTailChunks:   25,
		IdleResetChunks: 1000,
		PrerollSec:      0, // most cases exercise the machine without preroll
	}
}

func newTestSegmenter(cfg config.VADConfig, det *scriptDetector) *Segmenter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(det, cfg, 16000, testChunkSize, logger)
}

func repeat(score float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = score
	}
	return out
}

func feed(t *testing.T, s *Segmenter, n int) (emitted int, lastLen int) {
	t.Helper()
	chunk := make([]float32, testChunkSize)
	for i := 0; i < n; i++ {
		u, err := s.Process(chunk)
		if err != nil {
			t.Fatalf("Process() error: %v", err)
		}
		if u != nil {
			emitted++
			lastLen = len(u.Samples)
		}
	}
	return emitted, lastLen
}

func TestShortBurstNeverConfirms(t *testing.T) {
	// Two loud chunks (64 ms) is below the three-chunk minimum.
	det := &scriptDetector{scores: append([]float64{0.9, 0.9}, repeat(0.0, 40)...)}
	s := newTestSegmenter(testVADConfig(), det)

	emitted, _ := feed(t, s, 42)
	if emitted != 0 {
		t.Fatalf("emitted %d utterances from a sub-minimum burst, want 0", emitted)
	}
	if s.State() != StateSilent {
		t.Errorf("state = %v, want silent", s.State())
	}
}

func TestSpeechThenTailEmitsOneUtterance(t *testing.T) {
	cfg := testVADConfig()
	// 3 confirming chunks + 30 speech + 25 tail silence, then quiet.
	scores := append(repeat(0.9, 33), repeat(0.1, 30)...)
	det := &scriptDetector{scores: scores}
	s := newTestSegmenter(cfg, det)

	emitted, lastLen := feed(t, s, 63)
	if emitted != 1 {
		t.Fatalf("emitted %d utterances, want 1", emitted)
	}
	// 33 speech chunks + 25 tail chunks, no preroll.
	want := (33 + 25) * testChunkSize
	if lastLen != want {
		t.Errorf("utterance has %d samples, want %d", lastLen, want)
	}
	if s.State() != StateSilent {
		t.Errorf("state after emission = %v, want silent", s.State())
	}
	if det.resets == 0 {
		t.Error("detector was not reset after emission")
	}
}

func TestBriefPauseDoesNotSplitUtterance(t *testing.T) {
	cfg := testVADConfig()
	// Speech, a 10-chunk dip (under the 25-chunk tail limit), more speech,
	// then a full tail.
	scores := repeat(0.9, 10)
	scores = append(scores, repeat(0.1, 10)...)
	scores = append(scores, repeat(0.9, 10)...)
	scores = append(scores, repeat(0.1, 25)...)
	det := &scriptDetector{scores: scores}
	s := newTestSegmenter(cfg, det)

	emitted, lastLen := feed(t, s, len(scores))
	if emitted != 1 {
		t.Fatalf("emitted %d utterances, want 1", emitted)
	}
	if want := 55 * testChunkSize; lastLen != want {
		t.Errorf("utterance has %d samples, want %d (pause must be included)", lastLen, want)
	}
}

func TestMidBandScoreHoldsSegmentOpen(t *testing.T) {
	// Scores between the end (0.3) and start (0.5) thresholds must keep an
	// open segment open.
	scores := append(repeat(0.9, 5), repeat(0.4, 40)...)
	det := &scriptDetector{scores: scores}
	s := newTestSegmenter(testVADConfig(), det)

	emitted, _ := feed(t, s, 45)
	if emitted != 0 {
		t.Fatalf("mid-band scores closed the segment, emitted %d", emitted)
	}
	if s.State() != StateSpeaking {
		t.Errorf("state = %v, want speaking", s.State())
	}
}

func TestMidBandScoreDoesNotStartSegment(t *testing.T) {
	det := &scriptDetector{scores: repeat(0.4, 20)}
	s := newTestSegmenter(testVADConfig(), det)
	feed(t, s, 20)
	if s.State() != StateSilent {
		t.Errorf("state = %v, want silent (0.4 is below the start threshold)", s.State())
	}
}

func TestPrerollIncludedInUtterance(t *testing.T) {
	cfg := testVADConfig()
	cfg.PrerollSec = float64(5*testChunkSize) / 16000 // ring of 5 chunks

	// 10 silent chunks fill the ring, then speech and tail.
	scores := append(repeat(0.0, 10), repeat(0.9, 10)...)
	scores = append(scores, repeat(0.1, 25)...)
	det := &scriptDetector{scores: scores}
	s := newTestSegmenter(cfg, det)

	emitted, lastLen := feed(t, s, len(scores))
	if emitted != 1 {
		t.Fatalf("emitted %d utterances, want 1", emitted)
	}
	if want := (5 + 10 + 25) * testChunkSize; lastLen != want {
		t.Errorf("utterance has %d samples, want %d (5 preroll chunks)", lastLen, want)
	}
}

func TestPrerollSurvivesPreviousUtterance(t *testing.T) {
	cfg := testVADConfig()
	cfg.PrerollSec = float64(5*testChunkSize) / 16000 // ring of 5 chunks

	// A full utterance, a 3-chunk gap, then a second onset. The ring must
	// still deliver five preroll chunks to the second utterance even though
	// most of them belong to the first utterance's tail.
	scores := append(repeat(0.0, 10), repeat(0.9, 10)...)
	scores = append(scores, repeat(0.1, 25)...)
	scores = append(scores, repeat(0.0, 3)...)
	scores = append(scores, repeat(0.9, 10)...)
	scores = append(scores, repeat(0.1, 25)...)
	det := &scriptDetector{scores: scores}
	s := newTestSegmenter(cfg, det)

	chunk := make([]float32, testChunkSize)
	var starts []int64
	var lastLen int
	for i := 0; i < len(scores); i++ {
		u, err := s.Process(chunk)
		if err != nil {
			t.Fatalf("Process() error: %v", err)
		}
		if u != nil {
			starts = append(starts, u.StartChunk)
			lastLen = len(u.Samples)
		}
	}
	if len(starts) != 2 {
		t.Fatalf("emitted %d utterances, want 2", len(starts))
	}
	if want := (5 + 10 + 25) * testChunkSize; lastLen != want {
		t.Errorf("second utterance has %d samples, want %d (full preroll)", lastLen, want)
	}
	// The gap starts at chunk 45; the onset at 48 reaches back 5 chunks.
	if starts[1] != 43 {
		t.Errorf("second utterance StartChunk = %d, want 43", starts[1])
	}
}

func TestIdleResetClearsDetectorState(t *testing.T) {
	cfg := testVADConfig()
	cfg.IdleResetChunks = 50
	det := &scriptDetector{scores: repeat(0.0, 1)}
	s := newTestSegmenter(cfg, det)

	feed(t, s, 125)
	if det.resets != 2 {
		t.Errorf("detector resets = %d, want 2 after 125 idle chunks at a 50-chunk threshold", det.resets)
	}
}

func TestFlushReturnsOpenUtterance(t *testing.T) {
	det := &scriptDetector{scores: repeat(0.9, 1)}
	s := newTestSegmenter(testVADConfig(), det)

	feed(t, s, 10)
	if s.State() != StateSpeaking {
		t.Fatalf("state = %v, want speaking", s.State())
	}
	u := s.Flush()
	if u == nil {
		t.Fatal("Flush() returned nil with a segment open")
	}
	if want := 10 * testChunkSize; len(u.Samples) != want {
		t.Errorf("flushed utterance has %d samples, want %d", len(u.Samples), want)
	}
	if s.State() != StateSilent {
		t.Errorf("state after Flush = %v, want silent", s.State())
	}
}

func TestFlushWhileIdleReturnsNil(t *testing.T) {
	det := &scriptDetector{scores: repeat(0.0, 1)}
	s := newTestSegmenter(testVADConfig(), det)
	feed(t, s, 5)
	if u := s.Flush(); u != nil {
		t.Errorf("Flush() = %v, want nil while idle", u)
	}
}

func TestUtteranceChunkBookkeeping(t *testing.T) {
	scores := append(repeat(0.0, 4), repeat(0.9, 10)...)
	scores = append(scores, repeat(0.1, 25)...)
	det := &scriptDetector{scores: scores}
	s := newTestSegmenter(testVADConfig(), det)

	chunk := make([]float32, testChunkSize)
	for i := 0; i < len(scores); i++ {
		u, err := s.Process(chunk)
		if err != nil {
			t.Fatalf("Process() error: %v", err)
		}
		if u != nil {
			if u.StartChunk != 4 {
				t.Errorf("StartChunk = %d, want 4", u.StartChunk)
			}
			if u.EndChunk != 38 {
				t.Errorf("EndChunk = %d, want 38", u.EndChunk)
			}
			return
		}
	}
	t.Fatal("no utterance emitted")
}
