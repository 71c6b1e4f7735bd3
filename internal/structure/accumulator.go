package structure

import (
	"strings"
	"sync"
	"time"

	"github.com/yujixr/stream-scribe/internal/config"
)

// Accumulator buffers accepted transcript text between structuring calls.
// Text is added from the transcription lane and drained from the structuring
// lane, so all state is mutex-guarded.
//
// A dispatch is due when the pending rune count reaches the trigger
// threshold, or when any text has been pending through a full silence
// timeout. Draining resets the count to zero atomically with the snapshot;
// a failed call refunds its text so transcript data is never lost.
type Accumulator struct {
	mu sync.Mutex

	cfg          config.StructuringConfig
	pending      []string
	pendingRunes int
	lastActivity time.Time
	tree         TopicTree
}

// NewAccumulator creates an accumulator with the given trigger settings.
func NewAccumulator(cfg config.StructuringConfig) *Accumulator {
	return &Accumulator{cfg: cfg, lastActivity: time.Now()}
}

// Add buffers one accepted transcript text.
func (a *Accumulator) Add(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, text)
	a.pendingRunes += len([]rune(text))
	a.lastActivity = time.Now()
}

// PendingRunes returns the buffered character count.
func (a *Accumulator) PendingRunes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pendingRunes
}

// Due reports whether a structuring call should be dispatched now. With an
// empty buffer it is always false, so an idle timer loop never dispatches
// no-op calls.
func (a *Accumulator) Due(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pendingRunes == 0 {
		return false
	}
	if a.pendingRunes >= a.cfg.TriggerThreshold {
		return true
	}
	return now.Sub(a.lastActivity) >= a.cfg.GetSilenceTimeout()
}

// Take drains the buffer, returning the joined pending text. The pending
// count is zero after Take returns, never partially decremented.
func (a *Accumulator) Take() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pending) == 0 {
		return ""
	}
	text := strings.Join(a.pending, " ")
	a.pending = nil
	a.pendingRunes = 0
	return text
}

// Refund returns text from a failed structuring call to the front of the
// buffer so the next trigger retries it ahead of newer speech.
func (a *Accumulator) Refund(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append([]string{text}, a.pending...)
	a.pendingRunes += len([]rune(text))
}

// Tree returns the current topic tree.
func (a *Accumulator) Tree() TopicTree {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree
}

// SetTree replaces the topic tree wholesale with a new structuring result.
func (a *Accumulator) SetTree(tree TopicTree) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tree = tree
}
