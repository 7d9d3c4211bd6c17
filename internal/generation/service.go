// Package generation runs the quota-gated reply pipeline: validate, check the
// daily quota, call the provider, then record usage.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/replypilot/replypilot/internal/metrics"
	"github.com/replypilot/replypilot/internal/plans"
	"github.com/replypilot/replypilot/internal/usage"
	"github.com/replypilot/replypilot/internal/users"
)

const (
	MaxReviewLength = 5000

	generateEndpoint = "/api/ai/generate-response"
)

// Ledger is the subset of usage.Ledger the pipeline depends on.
type Ledger interface {
	GetToday(ctx context.Context, userID uuid.UUID) (usage.Record, error)
	RecordUsage(ctx context.Context, userID uuid.UUID, tokens int) (usage.Record, error)
	AppendLog(ctx context.Context, entry usage.LogEntry) error
}

type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float32
}

type Request struct {
	ReviewText string `json:"reviewText"`
	Language   string `json:"language"`
	Tone       string `json:"tone"`
	Model      string `json:"model"`
}

type Result struct {
	Response string         `json:"response"`
	Usage    usage.Snapshot `json:"usage"`
	Model    string         `json:"model"`
}

type Service struct {
	provider Provider
	ledger   Ledger
	plans    *plans.Registry
	opts     Options
}

func NewService(provider Provider, ledger Ledger, registry *plans.Registry, opts Options) *Service {
	if opts.DefaultModel == "" || !isKnownModel(opts.DefaultModel) {
		opts.DefaultModel = "gpt-4"
	}
	return &Service{
		provider: provider,
		ledger:   ledger,
		plans:    registry,
		opts:     opts,
	}
}

// DefaultModel is the model used when a request names none or an unknown one.
func (s *Service) DefaultModel() string {
	return s.opts.DefaultModel
}

func (s *Service) Models() []Model {
	return AvailableModels()
}

func (s *Service) resolveModel(requested string) string {
	if isKnownModel(requested) {
		return requested
	}
	return s.opts.DefaultModel
}

func validateReview(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", &InputError{Reason: "Review text is required"}
	}
	if utf8.RuneCountInString(text) > MaxReviewLength {
		return "", &InputError{Reason: fmt.Sprintf("Review text is too long (max %d characters)", MaxReviewLength)}
	}
	return trimmed, nil
}

// Generate runs one request through the pipeline. Quota is checked before the
// provider call and consumed only after a successful one. Two concurrent
// requests from the same user can both pass the check; the ledger upsert
// keeps the counters exact, so the plan limit may be exceeded by the number
// of requests in flight.
func (s *Service) Generate(ctx context.Context, user *users.User, req Request) (*Result, error) {
	text, err := validateReview(req.ReviewText)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("invalid_input").Inc()
		return nil, err
	}

	plan := s.plans.Resolve(user.Plan)
	rec, err := s.ledger.GetToday(ctx, user.ID)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("reading today's usage: %w", err)
	}
	if snap := usage.NewSnapshot(rec, plan); snap.Exhausted() {
		metrics.GenerationsTotal.WithLabelValues("quota_exceeded").Inc()
		return nil, &QuotaExceededError{Used: snap.Used, Limit: snap.Limit, Plan: snap.Plan}
	}

	model := s.resolveModel(req.Model)
	prompt := BuildPrompt(text, req.Language, req.Tone)

	start := time.Now()
	out, err := s.provider.Complete(ctx, Completion{
		Model:       model,
		Prompt:      prompt,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	metrics.ProviderLatency.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		outcome, kind := classifyProviderError(err)
		metrics.GenerationsTotal.WithLabelValues(outcome).Inc()
		slog.Error("generation provider failed",
			"user_id", user.ID,
			"model", model,
			"outcome", outcome,
			"error", err,
		)
		return nil, kind
	}

	// The reply has been produced; finish bookkeeping even if the client left.
	writeCtx := context.WithoutCancel(ctx)

	recorded, err := s.ledger.RecordUsage(writeCtx, user.ID, out.TotalTokens)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("recording usage: %w", err)
	}
	metrics.TokensConsumedTotal.WithLabelValues(plan.ID).Add(float64(max(out.TotalTokens, 0)))

	if err := s.ledger.AppendLog(writeCtx, usage.LogEntry{
		UserID:       user.ID,
		Endpoint:     generateEndpoint,
		TokensInput:  out.PromptTokens,
		TokensOutput: out.CompletionTokens,
		Model:        model,
	}); err != nil {
		slog.Warn("writing request log", "user_id", user.ID, "error", err)
	}

	latest, err := s.ledger.GetToday(writeCtx, user.ID)
	if err != nil {
		slog.Warn("re-reading usage after generation", "user_id", user.ID, "error", err)
		latest = recorded
	}

	metrics.GenerationsTotal.WithLabelValues("ok").Inc()
	return &Result{
		Response: out.Text,
		Usage:    usage.NewSnapshot(latest, plan),
		Model:    model,
	}, nil
}

// UsageSnapshot reports today's usage against the user's plan without side effects.
func (s *Service) UsageSnapshot(ctx context.Context, user *users.User) (usage.Snapshot, error) {
	plan := s.plans.Resolve(user.Plan)
	rec, err := s.ledger.GetToday(ctx, user.ID)
	if err != nil {
		return usage.Snapshot{}, fmt.Errorf("reading today's usage: %w", err)
	}
	return usage.NewSnapshot(rec, plan), nil
}

func classifyProviderError(err error) (string, error) {
	switch {
	case errors.Is(err, ErrProviderBusy):
		return "provider_busy", ErrProviderBusy
	case errors.Is(err, ErrProviderEmptyResult):
		return "provider_empty", ErrProviderEmptyResult
	default:
		return "provider_unavailable", ErrProviderUnavailable
	}
}
