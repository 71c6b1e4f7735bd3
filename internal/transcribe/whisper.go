package transcribe

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yujixr/stream-scribe/internal/config"
)

// RawResult is the output of one decode attempt.
type RawResult struct {
	Text     string
	Segments []SegmentScore
}

// SegmentScore carries the decoder confidence values of one output segment.
type SegmentScore struct {
	AvgLogProb       float64
	CompressionRatio float64
	NoSpeechProb     float64
}

// Decoder runs one speech-to-text decode with the given phase parameters.
type Decoder interface {
	Decode(ctx context.Context, wav []byte, phase config.PhaseConfig) (*RawResult, error)
}

// WhisperDecoder decodes through the OpenAI transcription API. The verbose
// response format exposes the per-segment confidence values the cascade and
// the hallucination filter gate on.
type WhisperDecoder struct {
	client        *openai.Client
	model         string
	language      string
	initialPrompt string
}

// NewWhisperDecoder creates a decoder bound to one model and language.
func NewWhisperDecoder(client *openai.Client, cfg config.WhisperConfig) *WhisperDecoder {
	return &WhisperDecoder{
		client:        client,
		model:         cfg.Model,
		language:      cfg.Language,
		initialPrompt: cfg.InitialPrompt,
	}
}

// Decode transcribes one WAV payload.
func (d *WhisperDecoder) Decode(ctx context.Context, wav []byte, phase config.PhaseConfig) (*RawResult, error) {
	req := openai.AudioRequest{
		Model:       d.model,
		FilePath:    "utterance.wav",
		Reader:      bytes.NewReader(wav),
		Language:    d.language,
		Temperature: phase.Temperature,
		Format:      openai.AudioResponseFormatVerboseJSON,
	}
	if phase.UseInitialPrompt {
		req.Prompt = d.initialPrompt
	}

	resp, err := d.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	raw := &RawResult{Text: resp.Text}
	for _, s := range resp.Segments {
		raw.Segments = append(raw.Segments, SegmentScore{
			AvgLogProb:       s.AvgLogprob,
			CompressionRatio: s.CompressionRatio,
			NoSpeechProb:     s.NoSpeechProb,
		})
	}
	return raw, nil
}

// AggregateMetrics folds per-segment scores into one Metrics value: mean
// logprob, worst-case compression ratio and no-speech probability.
func AggregateMetrics(segments []SegmentScore) Metrics {
	if len(segments) == 0 {
		return Metrics{}
	}
	m := Metrics{Valid: true}
	for i, s := range segments {
		m.AvgLogProb += s.AvgLogProb
		if i == 0 || s.CompressionRatio > m.CompressionRatio {
			m.CompressionRatio = s.CompressionRatio
		}
		if i == 0 || s.NoSpeechProb > m.NoSpeechProb {
			m.NoSpeechProb = s.NoSpeechProb
		}
	}
	m.AvgLogProb /= float64(len(segments))
	return m
}
