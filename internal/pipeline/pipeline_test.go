package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/yujixr/stream-scribe/internal/audio"
	"github.com/yujixr/stream-scribe/internal/config"
	"github.com/yujixr/stream-scribe/internal/metrics"
	"github.com/yujixr/stream-scribe/internal/segment"
	"github.com/yujixr/stream-scribe/internal/session"
	"github.com/yujixr/stream-scribe/internal/structure"
	"github.com/yujixr/stream-scribe/internal/transcribe"
)

const testChunkSize = 8

var testMetrics = metrics.NewMetrics() // prometheus registration is global

// fakeSource emits a fixed number of chunks, then EOF.
type fakeSource struct {
	chunks int
	served int
}

func (f *fakeSource) Start(ctx context.Context) error { return nil }
func (f *fakeSource) Close() error                    { return nil }

func (f *fakeSource) NextChunk() ([]float32, error) {
	if f.served >= f.chunks {
		return nil, io.EOF
	}
	f.served++
	return make([]float32, testChunkSize), nil
}

// scriptDetector replays fixed scores, repeating the last one.
type scriptDetector struct {
	scores []float64
	pos    int
}

func (d *scriptDetector) Score(chunk []float32) (float64, error) {
	if d.pos >= len(d.scores) {
		return d.scores[len(d.scores)-1], nil
	}
	s := d.scores[d.pos]
	d.pos++
	return s, nil
}

func (d *scriptDetector) Reset() {}

// fixedDecoder accepts everything with one clean result.
type fixedDecoder struct{ text string }

func (d *fixedDecoder) Decode(ctx context.Context, wav []byte, phase config.PhaseConfig) (*transcribe.RawResult, error) {
	return &transcribe.RawResult{
		Text:     d.text,
		Segments: []transcribe.SegmentScore{{AvgLogProb: -0.3, CompressionRatio: 1.2, NoSpeechProb: 0.05}},
	}, nil
}

// flakyService fails a set number of times, then succeeds, recording inputs.
type flakyService struct {
	failures int
	calls    int
	inputs   []string
}

func (s *flakyService) Structure(ctx context.Context, newText string, prior structure.TopicTree) (structure.TopicTree, error) {
	s.calls++
	s.inputs = append(s.inputs, newText)
	if s.calls <= s.failures {
		return structure.TopicTree{}, errors.New("rate limited")
	}
	return structure.TopicTree{Markdown: "## 🌳 トピック・ツリー\n- **まとめ (進行中)**\n"}, nil
}

func (s *flakyService) Summarize(ctx context.Context, fullTranscript string) (string, error) {
	return "## 最終サマリ", nil
}

func testPipeline(t *testing.T, src audio.Source, det *scriptDetector, svc structure.Service) *Pipeline {
	t.Helper()
	cfg := config.Default()
	cfg.App.OutputDir = t.TempDir()
	cfg.Structuring.MaxRetries = 1
	cfg.Structuring.RetryDelaySec = 0.001

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	seg := segment.New(det, cfg.VAD, 16000, testChunkSize, logger)
	engine := transcribe.NewEngine(&fixedDecoder{text: "今日の予定を確認します"},
		transcribe.NewFilter(cfg.Hallucination), cfg.Whisper, logger)
	acc := structure.NewAccumulator(cfg.Structuring)
	return New(cfg, src, seg, engine, acc, svc, session.New(), testMetrics, logger)
}

func speechScores() []float64 {
	scores := make([]float64, 0, 40)
	for i := 0; i < 10; i++ {
		scores = append(scores, 0.9)
	}
	for i := 0; i < 30; i++ {
		scores = append(scores, 0.1)
	}
	return scores
}

func TestRunTranscribesAndPersists(t *testing.T) {
	// 10 speech chunks then silence: one utterance, transcribed and saved.
	p := testPipeline(t, &fakeSource{chunks: 45}, &scriptDetector{scores: speechScores()}, nil)

	var live []string
	p.OnTranscript = func(text string) { live = append(live, text) }

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	segs, errCount := p.sess.Counts()
	if segs != 1 || errCount != 0 {
		t.Fatalf("Counts() = %d segments, %d errors, want 1, 0", segs, errCount)
	}
	if len(live) != 1 || live[0] != "今日の予定を確認します" {
		t.Errorf("OnTranscript received %q", live)
	}

	files, err := filepath.Glob(filepath.Join(p.cfg.App.OutputDir, "transcription_*.json"))
	if err != nil || len(files) != 1 {
		t.Fatalf("persisted files = %v (err %v), want exactly one", files, err)
	}
	data, _ := os.ReadFile(files[0])
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("saved session is not valid JSON: %v", err)
	}
	if rec["total_segments"].(float64) != 1 {
		t.Errorf("total_segments = %v, want 1", rec["total_segments"])
	}
}

func TestRunEndsOpenUtteranceAtEOF(t *testing.T) {
	// Speech continues to the end of the source; the open segment must be
	// flushed and transcribed rather than lost.
	p := testPipeline(t, &fakeSource{chunks: 20}, &scriptDetector{scores: []float64{0.9}}, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if segs, _ := p.sess.Counts(); segs != 1 {
		t.Errorf("segments = %d, want 1 flushed at EOF", segs)
	}
}

func TestStructuringFailureRefundsAndRetries(t *testing.T) {
	svc := &flakyService{failures: 2}
	p := testPipeline(t, &fakeSource{}, &scriptDetector{scores: []float64{0}}, svc)

	// Three accumulation intervals; the first two dispatches fail.
	for _, text := range []string{"区間一の発言", "区間二の発言", "区間三の発言"} {
		p.acc.Add(text)
		p.dispatchStructuring(context.Background())
	}

	if svc.calls != 3 {
		t.Fatalf("service calls = %d, want 3", svc.calls)
	}
	if want := "区間一の発言 区間二の発言 区間三の発言"; svc.inputs[2] != want {
		t.Errorf("third call input = %q, want all intervals", svc.inputs[2])
	}
	if p.acc.PendingRunes() != 0 {
		t.Errorf("PendingRunes() = %d, want 0 after success", p.acc.PendingRunes())
	}
	if p.acc.Tree().Empty() {
		t.Error("topic tree not set after successful call")
	}
	if _, errCount := p.sess.Counts(); errCount != 2 {
		t.Errorf("error ledger has %d entries, want 2", errCount)
	}
}

func TestFinalizeGeneratesFinalSummary(t *testing.T) {
	svc := &flakyService{}
	p := testPipeline(t, &fakeSource{chunks: 45}, &scriptDetector{scores: speechScores()}, svc)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := p.sess.FinalSummary(); got != "## 最終サマリ" {
		t.Errorf("FinalSummary() = %q", got)
	}
	// Pending text from the single utterance was flushed through the
	// structuring service during finalize.
	if svc.calls == 0 {
		t.Error("pending text was not structured at shutdown")
	}
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	p := testPipeline(t, &fakeSource{}, &scriptDetector{scores: []float64{0}}, nil)
	u := &audio.Utterance{Samples: make([]float32, testChunkSize), SampleRate: 16000}

	for i := 0; i < p.cfg.App.UtteranceQueueSize+3; i++ {
		p.enqueue(u)
	}
	if got := len(p.utterances); got != p.cfg.App.UtteranceQueueSize {
		t.Errorf("queue depth = %d, want capacity %d", got, p.cfg.App.UtteranceQueueSize)
	}
	p.mu.RLock()
	dropped := p.counts.dropped
	p.mu.RUnlock()
	if dropped != 3 {
		t.Errorf("dropped = %d, want 3", dropped)
	}
	if _, errCount := p.sess.Counts(); errCount != 3 {
		t.Errorf("error ledger has %d entries, want 3 drop records", errCount)
	}
}

func TestStatsSnapshot(t *testing.T) {
	p := testPipeline(t, &fakeSource{chunks: 45}, &scriptDetector{scores: speechScores()}, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	st := p.Stats()
	if st.Running {
		t.Error("Running = true after Run returned")
	}
	if st.ChunksCaptured != 45 {
		t.Errorf("ChunksCaptured = %d, want 45", st.ChunksCaptured)
	}
	if st.UtterancesCut != 1 || st.SegmentsAccepted != 1 {
		t.Errorf("UtterancesCut/SegmentsAccepted = %d/%d, want 1/1", st.UtterancesCut, st.SegmentsAccepted)
	}
	if st.SessionID == "" {
		t.Error("SessionID missing")
	}
}
