package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/sells-group/mna-tracker/internal/resilience"
)

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), "", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")
}

func TestGenerateJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.5-flash:generateContent"), r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gen, ok := body["generationConfig"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "application/json", gen["responseMimeType"])
		assert.NotNil(t, body["systemInstruction"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": `{"target":"乙公司"}`}},
				},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{
				"promptTokenCount":     12,
				"candidatesTokenCount": 4,
			},
		})
	}))
	defer ts.Close()

	c, err := NewClient(context.Background(), "test-key", Options{BaseURL: ts.URL})
	require.NoError(t, err)

	resp, err := c.GenerateJSON(context.Background(), Request{
		Model:  "gemini-2.5-flash",
		System: "extract",
		Prompt: "正文",
		Schema: ObjectSchema(map[string]string{"target": "标的"}, []string{"target"}),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"target":"乙公司"}`, resp.Text)
	assert.Equal(t, int32(12), resp.Usage.PromptTokens)
	assert.Equal(t, int32(4), resp.Usage.CandidateTokens)
}

func TestGenerateJSON_Error(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`))
	}))
	defer ts.Close()

	c, err := NewClient(context.Background(), "test-key", Options{BaseURL: ts.URL})
	require.NoError(t, err)

	_, err = c.GenerateJSON(context.Background(), Request{Model: "gemini-2.5-flash", Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini: generate content")
	assert.False(t, resilience.IsTransient(err))
}

func TestGenerateJSON_UnavailableIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	c, err := NewClient(context.Background(), "test-key", Options{BaseURL: ts.URL})
	require.NoError(t, err)

	_, err = c.GenerateJSON(context.Background(), Request{Model: "gemini-2.5-flash", Prompt: "x"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestObjectSchema(t *testing.T) {
	s := ObjectSchema(map[string]string{"a": "first", "b": "second"}, []string{"a"})
	assert.Equal(t, genai.TypeObject, s.Type)
	require.Len(t, s.Properties, 2)
	assert.Equal(t, genai.TypeString, s.Properties["a"].Type)
	assert.Equal(t, "second", s.Properties["b"].Description)
	assert.Equal(t, []string{"a"}, s.Required)
}
