package transcribe

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yujixr/stream-scribe/internal/config"
)

// japanesePunctuation splits text on sentence punctuation and whitespace,
// including the full-width space.
var japanesePunctuation = regexp.MustCompile(`[。、！？\s　]+`)

// Metrics aggregates decoder confidence over all segments of one result.
// AvgLogProb is the mean; CompressionRatio and NoSpeechProb take the maximum,
// the most suspicious segment deciding for the whole result.
type Metrics struct {
	AvgLogProb       float64
	CompressionRatio float64
	NoSpeechProb     float64
	Valid            bool
}

// Filter detects hallucinated transcriptions. Whisper models under silence or
// noise emit banned stock phrases, degenerate repetitions, and contextless
// greetings; every check here targets one of those failure shapes.
type Filter struct {
	cfg config.HallucinationConfig
}

// NewFilter creates a filter from the tunables.
func NewFilter(cfg config.HallucinationConfig) *Filter {
	return &Filter{cfg: cfg}
}

// Evaluate returns a non-empty rejection reason when the text looks
// hallucinated, or "" when it is acceptable. Empty text is acceptable here;
// the cascade treats it as silence, not as a quality failure.
func (f *Filter) Evaluate(text string, m Metrics, audioSeconds float64) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if reason := f.checkBannedPhrases(text); reason != "" {
		return reason
	}
	if reason := f.checkCharRepetition(text); reason != "" {
		return reason
	}
	if reason := f.checkShortPatternRepetition(text); reason != "" {
		return reason
	}
	if reason := f.checkLongPatternRepetition(text); reason != "" {
		return reason
	}
	if reason := f.checkTokenRepetition(text); reason != "" {
		return reason
	}
	if reason := f.checkContextlessGreeting(text, m, audioSeconds); reason != "" {
		return reason
	}
	if m.Valid && m.AvgLogProb < f.cfg.ExtremeLowLogProb {
		return fmt.Sprintf("extreme low confidence (avg_logprob=%.2f)", m.AvgLogProb)
	}
	return ""
}

func (f *Filter) checkBannedPhrases(text string) string {
	for _, phrase := range f.cfg.BannedPhrases {
		if strings.Contains(text, phrase) {
			return fmt.Sprintf("banned phrase: %q", phrase)
		}
	}
	return ""
}

// checkCharRepetition catches runs of one character, e.g. "ああああああああああ".
func (f *Filter) checkCharRepetition(text string) string {
	runes := []rune(text)
	if len(runes) < f.cfg.MinCharRepetition {
		return ""
	}
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= f.cfg.MinCharRepetition {
				return fmt.Sprintf("character repetition: %q x%d+", runes[i], run)
			}
		} else {
			run = 1
		}
	}
	return ""
}

// checkShortPatternRepetition catches looped short phrases such as
// "ピリピリピリピリピリ". Patterns of 2..max runes are sampled from the first
// search positions; a pattern whose total occurrences cover at least the
// ratio threshold of the text rejects it.
func (f *Filter) checkShortPatternRepetition(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 20 {
		return ""
	}
	maxLen := f.cfg.ShortPatternMaxLength
	if limit := n / 3; limit < maxLen {
		maxLen = limit
	}
	for patLen := 2; patLen <= maxLen; patLen++ {
		maxStart := n - patLen*3 + 1
		if maxStart > f.cfg.PatternSearchPositions {
			maxStart = f.cfg.PatternSearchPositions
		}
		for start := 0; start < maxStart; start++ {
			pattern := string(runes[start : start+patLen])
			if strings.TrimSpace(pattern) == "" {
				continue
			}
			count := strings.Count(text, pattern)
			if count >= f.cfg.MinShortPatternRepetition &&
				float64(patLen*count) >= float64(n)*f.cfg.RepetitionRatioThreshold {
				return fmt.Sprintf("pattern repetition: %q x%d", pattern, count)
			}
		}
	}
	return ""
}

// checkLongPatternRepetition catches looped long phrases. Only text-prefix
// patterns are tried, in steps of 5 runes, to bound the cost.
func (f *Filter) checkLongPatternRepetition(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 60 {
		return ""
	}
	maxLen := f.cfg.LongPatternMaxLength
	if limit := n / 3; limit < maxLen {
		maxLen = limit
	}
	for patLen := f.cfg.LongPatternMinLength; patLen <= maxLen; patLen += 5 {
		pattern := string(runes[:patLen])
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		count := strings.Count(text, pattern)
		if count >= f.cfg.MinLongPatternRepetition &&
			float64(patLen*count) >= float64(n)*f.cfg.RepetitionRatioThreshold {
			return fmt.Sprintf("long phrase repetition: %q x%d", pattern, count)
		}
	}
	return ""
}

// checkTokenRepetition catches trailing loops like "はい。はい。はい。はい。はい。"
// by splitting on Japanese punctuation and requiring the last tokens to differ.
func (f *Filter) checkTokenRepetition(text string) string {
	var tokens []string
	for _, t := range japanesePunctuation.Split(text, -1) {
		if strings.TrimSpace(t) != "" {
			tokens = append(tokens, t)
		}
	}
	min := f.cfg.MinTokenRepetition
	if len(tokens) < min {
		return ""
	}
	last := tokens[len(tokens)-1]
	for i := 1; i <= min; i++ {
		if tokens[len(tokens)-i] != last {
			return ""
		}
	}
	return fmt.Sprintf("token repetition at end: %q x%d+", last, min)
}

// checkContextlessGreeting catches stock greetings emitted without context.
// A short normalized text containing a greeting is rejected when confidence
// is low or when it is all the model produced for long audio.
func (f *Filter) checkContextlessGreeting(text string, m Metrics, audioSeconds float64) string {
	normalized := japanesePunctuation.ReplaceAllString(text, "")
	var matched string
	for _, phrase := range f.cfg.ContextlessGreetings {
		if strings.Contains(normalized, phrase) {
			matched = phrase
			break
		}
	}
	if matched == "" {
		return ""
	}
	textLen := len([]rune(normalized))
	if textLen > f.cfg.GreetingShortText {
		return ""
	}
	if m.Valid && m.AvgLogProb < f.cfg.GreetingLowLogProb {
		return fmt.Sprintf("contextless greeting with low confidence: %q (avg_logprob=%.2f)", matched, m.AvgLogProb)
	}
	if audioSeconds >= f.cfg.GreetingLongAudioSec {
		return fmt.Sprintf("contextless greeting in long audio: %q (audio=%.1fs, text=%d chars)", matched, audioSeconds, textLen)
	}
	return ""
}
