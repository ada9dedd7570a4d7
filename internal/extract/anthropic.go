package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/resilience"
	"github.com/sells-group/mna-tracker/pkg/anthropic"
)

// ModelStrategy asks an Anthropic model for the deal fields.
type ModelStrategy struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	maxChars  int
	retry     resilience.RetryConfig
}

// NewModelStrategy creates a ModelStrategy. A nil client makes the strategy
// unavailable.
func NewModelStrategy(client anthropic.Client, modelID string, maxTokens, maxChars int) *ModelStrategy {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &ModelStrategy{
		client:    client,
		model:     modelID,
		maxTokens: int64(maxTokens),
		maxChars:  maxChars,
		retry:     modelRetry("anthropic"),
	}
}

// Name implements Strategy.
func (s *ModelStrategy) Name() string { return "anthropic" }

// Available reports whether a client is configured.
func (s *ModelStrategy) Available() bool { return s.client != nil }

// Parse implements Strategy.
func (s *ModelStrategy) Parse(ctx context.Context, text string, hint Hint) (model.DealDetails, error) {
	if s.client == nil {
		return model.DealDetails{}, ErrUnavailable
	}

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		System:      instruction,
		Messages:    []anthropic.Message{{Role: "user", Content: buildPrompt(text, hint, s.maxChars)}},
		Temperature: &temp,
	}
	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return model.DealDetails{}, eris.Wrap(err, "extract: anthropic request")
	}
	resp.Usage.LogCost(s.model, "extract")

	return parseReply(resp.Text())
}
