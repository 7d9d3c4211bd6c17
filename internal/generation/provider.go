package generation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/replypilot/replypilot/internal/config"
)

// Completion is one provider request.
type Completion struct {
	Model       string
	Prompt      Prompt
	MaxTokens   int
	Temperature float32
}

// Output is the generated text plus the provider's token accounting.
type Output struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider generates reply text. Implementations return errors wrapping
// ErrProviderBusy, ErrProviderEmptyResult or ErrProviderUnavailable.
type Provider interface {
	Complete(ctx context.Context, c Completion) (*Output, error)
}

// OpenAIProvider calls the chat completions API.
type OpenAIProvider struct {
	client  *openai.Client
	limiter *rate.Limiter
}

// NewOpenAIProvider builds a client bounded by cfg.Timeout. A positive
// cfg.MaxRPS caps outbound calls per second; calls over the cap are rejected
// locally as busy instead of queuing.
func NewOpenAIProvider(cfg config.OpenAIConfig) *OpenAIProvider {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	p := &OpenAIProvider{client: openai.NewClientWithConfig(oc)}
	if cfg.MaxRPS > 0 {
		burst := int(math.Ceil(cfg.MaxRPS))
		p.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}
	return p
}

func (p *OpenAIProvider) Complete(ctx context.Context, c Completion) (*Output, error) {
	if p.limiter != nil && !p.limiter.Allow() {
		return nil, fmt.Errorf("%w: outbound throttle", ErrProviderBusy)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.Prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: c.Prompt.User},
		},
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrProviderEmptyResult
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, ErrProviderEmptyResult
	}

	model := resp.Model
	if model == "" {
		model = c.Model
	}
	return &Output{
		Text:             text,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrProviderBusy, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrProviderBusy, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
