// Package usage tracks per-user daily request and token counters.
package usage

import (
	"time"

	"github.com/google/uuid"

	"github.com/replypilot/replypilot/internal/plans"
)

// Record is one user's counters for one UTC day.
type Record struct {
	RequestsCount int
	TokensUsed    int
}

// Snapshot is the client-facing view of today's usage against a plan.
type Snapshot struct {
	Used       int    `json:"used"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	TokensUsed int    `json:"tokensUsed"`
	Plan       string `json:"plan"`
}

func NewSnapshot(rec Record, plan plans.Plan) Snapshot {
	return Snapshot{
		Used:       rec.RequestsCount,
		Limit:      plan.DailyLimit,
		Remaining:  max(0, plan.DailyLimit-rec.RequestsCount),
		TokensUsed: rec.TokensUsed,
		Plan:       plan.ID,
	}
}

// Exhausted reports whether the plan admits no further request today.
func (s Snapshot) Exhausted() bool {
	return s.Used >= s.Limit
}

// LogEntry is an append-only analytics row for one successful generation.
type LogEntry struct {
	UserID       uuid.UUID
	Endpoint     string
	TokensInput  int
	TokensOutput int
	Model        string
	CreatedAt    time.Time
}
