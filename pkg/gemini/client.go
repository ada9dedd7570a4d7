// Package gemini wraps the Google Gen AI SDK for single-shot JSON
// generation.
package gemini

import (
	"context"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/sells-group/mna-tracker/internal/resilience"
)

// Client defines the Gemini operations used by the extractor.
type Client interface {
	GenerateJSON(ctx context.Context, req Request) (*Response, error)
}

// Request is a single JSON-mode generation request.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Schema      *genai.Schema
	Temperature *float32
}

// Response carries the generated text and token usage.
type Response struct {
	Text  string
	Usage TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	PromptTokens    int32
	CandidateTokens int32
}

// Options configure the SDK client.
type Options struct {
	// BaseURL overrides the Gemini API endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

type sdkClient struct {
	client *genai.Client
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string, opts Options) (Client, error) {
	if apiKey == "" {
		return nil, eris.New("gemini: api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &sdkClient{client: c}, nil
}

func (c *sdkClient) GenerateJSON(ctx context.Context, req Request) (*Response, error) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: req.Prompt}},
	}}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
		Temperature:      req.Temperature,
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		wrapped := eris.Wrap(err, "gemini: generate content")
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.Code) {
			return nil, resilience.NewTransientError(wrapped, apiErr.Code)
		}
		return nil, wrapped
	}

	out := &Response{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.Usage = TokenUsage{
			PromptTokens:    resp.UsageMetadata.PromptTokenCount,
			CandidateTokens: resp.UsageMetadata.CandidatesTokenCount,
		}
	}
	zap.L().Debug("gemini usage",
		zap.String("model", req.Model),
		zap.Int32("prompt_tokens", out.Usage.PromptTokens),
		zap.Int32("candidate_tokens", out.Usage.CandidateTokens),
	)
	return out, nil
}

// ObjectSchema builds a flat object schema whose properties are all strings.
func ObjectSchema(descriptions map[string]string, required []string) *genai.Schema {
	props := make(map[string]*genai.Schema, len(descriptions))
	for name, desc := range descriptions {
		props[name] = &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   required,
	}
}
