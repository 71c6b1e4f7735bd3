package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yujixr/stream-scribe/internal/audio"
	"github.com/yujixr/stream-scribe/internal/config"
	"github.com/yujixr/stream-scribe/internal/metrics"
	"github.com/yujixr/stream-scribe/internal/segment"
	"github.com/yujixr/stream-scribe/internal/session"
	"github.com/yujixr/stream-scribe/internal/structure"
	"github.com/yujixr/stream-scribe/internal/transcribe"
)

// finalizeTimeout bounds the flush, final summary, and persistence work done
// after the lanes stop.
const finalizeTimeout = 2 * time.Minute

// Pipeline owns the session and runs the three lanes until shutdown.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger
	m      *metrics.Metrics

	source    audio.Source
	segmenter *segment.Segmenter
	engine    *transcribe.Engine
	acc       *structure.Accumulator
	svc       structure.Service // nil when structuring is disabled
	sess      *session.Session
	store     *session.Store

	// OnTranscript and OnSummary, when set, receive accepted text and
	// structuring output for live display. Called from worker goroutines.
	OnTranscript func(text string)
	OnSummary    func(markdown string)

	utterances chan *audio.Utterance
	segState   atomic.Int32 // mirror of the segmenter state for Stats
	stopOnce   sync.Once
	stop       chan struct{} // graceful: capture lane drains and exits
	cancel     context.CancelFunc
	fast       atomic.Bool

	mu      sync.RWMutex
	counts  laneCounts
	running bool
}

type laneCounts struct {
	chunks     int64
	utterances int64
	dropped    int64
	accepted   int64
	noSpeech   int64
	rejected   int64
	structured int64
}

// New assembles a pipeline from its lanes' components.
func New(cfg *config.Config, source audio.Source, segmenter *segment.Segmenter,
	engine *transcribe.Engine, acc *structure.Accumulator, svc structure.Service,
	sess *session.Session, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		m:          m,
		source:     source,
		segmenter:  segmenter,
		engine:     engine,
		acc:        acc,
		svc:        svc,
		sess:       sess,
		store:      session.NewStore(cfg.App.OutputDir),
		utterances: make(chan *audio.Utterance, cfg.App.UtteranceQueueSize),
		stop:       make(chan struct{}),
	}
}

// Run executes the pipeline until the source ends or a shutdown is requested,
// then finalizes the session. Fast shutdown skips finalization entirely.
func (p *Pipeline) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	defer cancel()

	if err := p.source.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start signal source: %w", err)
	}
	defer p.source.Close()

	p.setRunning(true)
	defer p.setRunning(false)

	var lanes sync.WaitGroup
	lanes.Add(2)
	go func() {
		defer lanes.Done()
		p.captureLoop(runCtx)
	}()
	go func() {
		defer lanes.Done()
		p.transcribeLoop(runCtx)
	}()

	var structLane sync.WaitGroup
	if p.svc != nil {
		structLane.Add(1)
		go func() {
			defer structLane.Done()
			p.structureLoop(runCtx)
		}()
	}

	lanes.Wait()
	cancel()
	structLane.Wait()

	if p.fast.Load() {
		p.logger.Info("fast shutdown, session not persisted")
		return nil
	}
	return p.finalize()
}

// Shutdown requests a graceful stop: the capture lane flushes any open
// utterance, queued utterances finish transcribing, pending text is
// structured, and the session is persisted.
func (p *Pipeline) Shutdown() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Abort requests a fast stop: all lanes exit as soon as possible and nothing
// is persisted.
func (p *Pipeline) Abort() {
	p.fast.Store(true)
	p.Shutdown()
	if p.cancel != nil {
		p.cancel()
	}
}

// captureLoop reads chunks at device pace and feeds the segmenter. It owns
// the utterance channel and closes it on exit.
func (p *Pipeline) captureLoop(ctx context.Context) {
	defer close(p.utterances)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			if u := p.segmenter.Flush(); u != nil {
				p.enqueue(u)
			}
			return
		default:
		}

		chunk, err := p.source.NextChunk()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Error("signal source failed", slog.String("error", err.Error()))
				p.sess.AddError("capture", err.Error())
			}
			// Source exhaustion ends the session the same way a graceful
			// shutdown does.
			if u := p.segmenter.Flush(); u != nil {
				p.enqueue(u)
			}
			return
		}
		p.m.ChunksCaptured.Inc()
		p.addCount(func(c *laneCounts) { c.chunks++ })

		u, err := p.segmenter.Process(chunk)
		p.segState.Store(int32(p.segmenter.State()))
		if err != nil {
			p.logger.Warn("segmentation error", slog.String("error", err.Error()))
			continue
		}
		if u != nil {
			p.enqueue(u)
		}
	}
}

// enqueue hands an utterance to the transcription lane without ever blocking
// capture. A full queue drops the utterance.
func (p *Pipeline) enqueue(u *audio.Utterance) {
	p.m.UtterancesCut.Inc()
	p.m.UtteranceDuration.Observe(u.Seconds())
	p.addCount(func(c *laneCounts) { c.utterances++ })

	select {
	case p.utterances <- u:
		p.m.UtteranceQueueDepth.Set(float64(len(p.utterances)))
	default:
		p.m.UtterancesDropped.Inc()
		p.addCount(func(c *laneCounts) { c.dropped++ })
		p.logger.Error("utterance queue full, dropping audio",
			slog.Float64("seconds", u.Seconds()),
			slog.Int("queue_size", p.cfg.App.UtteranceQueueSize))
		p.sess.AddError("capture", fmt.Sprintf("utterance dropped, queue full (%.1fs of audio)", u.Seconds()))
	}
}

// transcribeLoop processes utterances strictly one at a time.
func (p *Pipeline) transcribeLoop(ctx context.Context) {
	for u := range p.utterances {
		p.m.UtteranceQueueDepth.Set(float64(len(p.utterances)))
		if p.fast.Load() {
			continue // drain without decoding
		}
		p.handleUtterance(ctx, u)
	}
}

func (p *Pipeline) handleUtterance(ctx context.Context, u *audio.Utterance) {
	start := time.Now()
	res, err := p.engine.Transcribe(ctx, u)
	p.m.DecodeDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
	case errors.Is(err, transcribe.ErrNoSpeech):
		p.m.NoSpeech.Inc()
		p.addCount(func(c *laneCounts) { c.noSpeech++ })
		p.logger.Debug("utterance discarded as silence",
			slog.Float64("seconds", u.Seconds()))
		return
	case errors.Is(err, transcribe.ErrRejected):
		p.m.RejectedFinal.Inc()
		p.addCount(func(c *laneCounts) { c.rejected++ })
		p.logger.Info("utterance rejected by all phases",
			slog.Float64("seconds", u.Seconds()),
			slog.String("reason", err.Error()))
		p.sess.AddError("transcribe", err.Error())
		return
	default:
		if ctx.Err() != nil {
			return // shutdown, not a decode failure
		}
		p.m.DecodeErrors.Inc()
		p.logger.Error("transcription failed", slog.String("error", err.Error()))
		p.sess.AddError("transcribe", err.Error())
		return
	}

	p.m.Accepted.WithLabelValues(res.Phase).Inc()
	for i := 1; i <= res.Attempt; i++ {
		p.m.DecodeAttempts.WithLabelValues(p.cfg.Whisper.Phases[i-1].Name).Inc()
	}
	p.addCount(func(c *laneCounts) { c.accepted++ })

	seg := session.Segment{
		Text:           res.Text,
		StartTime:      u.StartTime,
		EndTime:        u.EndTime,
		AudioDuration:  res.AudioSeconds,
		ProcessingTime: res.ProcessingTime.Seconds(),
		Phase:          res.Phase,
		Attempt:        res.Attempt,
	}
	if res.Metrics.Valid {
		m := res.Metrics
		seg.AvgLogProb = &m.AvgLogProb
		seg.CompressionRatio = &m.CompressionRatio
		seg.NoSpeechProb = &m.NoSpeechProb
	}
	p.sess.AddSegment(seg)
	p.acc.Add(res.Text)
	p.m.PendingChars.Set(float64(p.acc.PendingRunes()))

	if p.OnTranscript != nil {
		p.OnTranscript(res.Text)
	}
}

// structureLoop evaluates the dispatch triggers on a fixed interval. The
// silence timeout must fire even when no new speech arrives, so this is a
// timer loop rather than an event handler.
func (p *Pipeline) structureLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.App.GetSilenceCheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if p.acc.Due(now) {
				p.dispatchStructuring(ctx)
			}
		}
	}
}

// dispatchStructuring runs one structuring call. Failures refund the text so
// the next trigger retries it; transcript data is never lost here.
func (p *Pipeline) dispatchStructuring(ctx context.Context) {
	text := p.acc.Take()
	if text == "" {
		return
	}
	p.m.PendingChars.Set(0)
	p.m.StructuringCalls.Inc()

	start := time.Now()
	tree, err := p.svc.Structure(ctx, text, p.acc.Tree())
	p.m.StructuringDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.acc.Refund(text)
		p.m.PendingChars.Set(float64(p.acc.PendingRunes()))
		p.m.StructuringFailures.Inc()
		if ctx.Err() == nil {
			p.logger.Warn("structuring failed, text retained for next trigger",
				slog.String("error", err.Error()))
			p.sess.AddError("structure", err.Error())
		}
		return
	}

	p.acc.SetTree(tree)
	p.sess.AddSummary(tree.Markdown)
	p.addCount(func(c *laneCounts) { c.structured++ })
	p.logger.Info("topic tree updated",
		slog.Int("topics", len(tree.Topics)),
		slog.Int("input_chars", len([]rune(text))))

	if p.OnSummary != nil {
		p.OnSummary(tree.Markdown)
	}
}

// finalize flushes pending structuring work, generates the final summary,
// and persists the session.
func (p *Pipeline) finalize() error {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if p.svc != nil {
		if p.acc.PendingRunes() > 0 {
			p.dispatchStructuring(ctx)
		}
		if segs, _ := p.sess.Counts(); segs > 0 {
			summary, err := p.svc.Summarize(ctx, p.sess.Transcript())
			if err != nil {
				p.logger.Warn("final summary failed", slog.String("error", err.Error()))
				p.sess.AddError("structure", err.Error())
			} else {
				p.sess.SetFinalSummary(summary)
				if p.OnSummary != nil {
					p.OnSummary(summary)
				}
			}
		}
	}

	if !p.cfg.App.SaveJSON {
		return nil
	}
	path, err := p.store.Save(p.sess, p.acc.Tree())
	if err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	segs, errs := p.sess.Counts()
	p.logger.Info("session saved",
		slog.String("path", path),
		slog.Int("segments", segs),
		slog.Int("errors", errs))
	return nil
}

func (p *Pipeline) setRunning(v bool) {
	p.mu.Lock()
	p.running = v
	p.mu.Unlock()
}

func (p *Pipeline) addCount(f func(*laneCounts)) {
	p.mu.Lock()
	f(&p.counts)
	p.mu.Unlock()
}
