package structure

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yujixr/stream-scribe/internal/config"
)

// Service produces structured summaries from raw transcript text.
type Service interface {
	// Structure folds new transcript text into the prior topic tree and
	// returns the replacement tree.
	Structure(ctx context.Context, newText string, prior TopicTree) (TopicTree, error)
	// Summarize produces the one-shot final summary from a full transcript.
	Summarize(ctx context.Context, fullTranscript string) (string, error)
}

// OpenAIService implements Service over the chat completions API. Each call
// retries transient failures with jittered exponential backoff before the
// error is surfaced to the accumulator's refund path.
type OpenAIService struct {
	client *openai.Client
	cfg    config.StructuringConfig
	logger *slog.Logger
}

// NewOpenAIService creates a structuring service.
func NewOpenAIService(client *openai.Client, cfg config.StructuringConfig, logger *slog.Logger) *OpenAIService {
	return &OpenAIService{client: client, cfg: cfg, logger: logger}
}

// Structure implements Service.
func (s *OpenAIService) Structure(ctx context.Context, newText string, prior TopicTree) (TopicTree, error) {
	out, err := s.complete(ctx, realtimeSystemPrompt, buildRealtimeUserPrompt(prior.Markdown, newText))
	if err != nil {
		return TopicTree{}, fmt.Errorf("structuring call failed: %w", err)
	}
	return ParseTree(out), nil
}

// Summarize implements Service.
func (s *OpenAIService) Summarize(ctx context.Context, fullTranscript string) (string, error) {
	out, err := s.complete(ctx, finalSystemPrompt, buildFinalUserPrompt(fullTranscript))
	if err != nil {
		return "", fmt.Errorf("final summary failed: %w", err)
	}
	return out, nil
}

func (s *OpenAIService) complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, s.cfg.GetRetryDelay())
			s.logger.Warn("retrying structuring call",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", s.cfg.MaxRetries),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.GetTimeoutDuration())
		resp, err := s.client.CreateChatCompletion(callCtx, req)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("empty completion response")
			continue
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}
	return "", fmt.Errorf("%d attempts exhausted: %w", s.cfg.MaxRetries, lastErr)
}

const maxBackoff = 30 * time.Second

// backoffDelay doubles the base delay per attempt with up to 25% jitter.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if d > maxBackoff {
		d = maxBackoff
	}
	jitter := time.Duration(rand.Float64() * 0.25 * float64(d))
	return d + jitter
}
