package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/internal/config"
)

const chatCompletionOK = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "gpt-4-0613",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "  Thank you for the kind words!  "}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 42, "completion_tokens": 11, "total_tokens": 53}
}`

func newFakeOpenAI(t *testing.T, handler http.HandlerFunc) config.OpenAIConfig {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return config.OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1",
		Timeout: 5 * time.Second,
	}
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	cfg := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionOK))
	})

	p := NewOpenAIProvider(cfg)
	out, err := p.Complete(context.Background(), Completion{
		Model:       "gpt-4",
		Prompt:      Prompt{System: "sys", User: "usr"},
		MaxTokens:   250,
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "Thank you for the kind words!", out.Text)
	assert.Equal(t, "gpt-4-0613", out.Model)
	assert.Equal(t, 42, out.PromptTokens)
	assert.Equal(t, 11, out.CompletionTokens)
	assert.Equal(t, 53, out.TotalTokens)

	assert.Equal(t, "gpt-4", got.Model)
	assert.Equal(t, 250, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 0.001)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "sys", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`,
			wantErr: ErrProviderBusy,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `{"error":{"message":"boom","type":"server_error"}}`,
			wantErr: ErrProviderUnavailable,
		},
		{
			name:    "unparseable gateway error",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantErr: ErrProviderUnavailable,
		},
		{
			name:    "no choices",
			status:  http.StatusOK,
			body:    `{"id":"x","model":"gpt-4","choices":[],"usage":{"total_tokens":3}}`,
			wantErr: ErrProviderEmptyResult,
		},
		{
			name:    "blank content",
			status:  http.StatusOK,
			body:    `{"id":"x","model":"gpt-4","choices":[{"index":0,"message":{"role":"assistant","content":"   "}}]}`,
			wantErr: ErrProviderEmptyResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := NewOpenAIProvider(cfg).Complete(context.Background(), Completion{Model: "gpt-4"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOpenAIProvider_TransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewOpenAIProvider(config.OpenAIConfig{APIKey: "sk-test", BaseURL: url + "/v1", Timeout: time.Second})
	_, err := p.Complete(context.Background(), Completion{Model: "gpt-4"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestOpenAIProvider_OutboundThrottle(t *testing.T) {
	calls := 0
	cfg := newFakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionOK))
	})
	cfg.MaxRPS = 1

	p := NewOpenAIProvider(cfg)
	_, err := p.Complete(context.Background(), Completion{Model: "gpt-4"})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), Completion{Model: "gpt-4"})
	assert.ErrorIs(t, err, ErrProviderBusy)
	assert.Equal(t, 1, calls)
}
