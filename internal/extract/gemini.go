package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/resilience"
	"github.com/sells-group/mna-tracker/pkg/gemini"
)

var replySchema = gemini.ObjectSchema(map[string]string{
	keyTransactionType:  "交易类型",
	keyAcquirer:         "收购方",
	keyTarget:           "标的公司或标的资产",
	keyTransactionPrice: "交易作价，含单位",
	keySummary:          "交易概要",
}, []string{keyTransactionType, keyAcquirer, keyTarget, keyTransactionPrice, keySummary})

// GeminiStrategy asks a Gemini model for the deal fields in JSON mode.
type GeminiStrategy struct {
	client   gemini.Client
	model    string
	maxChars int
	retry    resilience.RetryConfig
}

// NewGeminiStrategy creates a GeminiStrategy. A nil client makes the
// strategy unavailable.
func NewGeminiStrategy(client gemini.Client, modelID string, maxChars int) *GeminiStrategy {
	return &GeminiStrategy{client: client, model: modelID, maxChars: maxChars, retry: modelRetry("gemini")}
}

// Name implements Strategy.
func (s *GeminiStrategy) Name() string { return "gemini" }

// Available reports whether a client is configured.
func (s *GeminiStrategy) Available() bool { return s.client != nil }

// Parse implements Strategy.
func (s *GeminiStrategy) Parse(ctx context.Context, text string, hint Hint) (model.DealDetails, error) {
	if s.client == nil {
		return model.DealDetails{}, ErrUnavailable
	}

	var temp float32
	req := gemini.Request{
		Model:       s.model,
		System:      instruction,
		Prompt:      buildPrompt(text, hint, s.maxChars),
		Schema:      replySchema,
		Temperature: &temp,
	}
	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*gemini.Response, error) {
		return s.client.GenerateJSON(ctx, req)
	})
	if err != nil {
		return model.DealDetails{}, eris.Wrap(err, "extract: gemini request")
	}
	return parseReply(resp.Text)
}
