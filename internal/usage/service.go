package usage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/replypilot/replypilot/internal/plans"
)

// Ledger is the usage API used by the generation pipeline and read-only views.
type Ledger struct {
	repo Repository
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// GetToday returns zero counters when the user has no row for today. It never
// creates one.
func (l *Ledger) GetToday(ctx context.Context, userID uuid.UUID) (Record, error) {
	return l.repo.GetToday(ctx, userID)
}

// RecordUsage counts one request and its tokens against today.
func (l *Ledger) RecordUsage(ctx context.Context, userID uuid.UUID, tokens int) (Record, error) {
	if tokens < 0 {
		tokens = 0
	}
	return l.repo.Increment(ctx, userID, tokens)
}

// AppendLog stores an analytics entry, stamping it when CreatedAt is unset.
func (l *Ledger) AppendLog(ctx context.Context, entry LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return l.repo.InsertLog(ctx, entry)
}

// Snapshot reads today's counters and relates them to plan. No side effects.
func (l *Ledger) Snapshot(ctx context.Context, userID uuid.UUID, plan plans.Plan) (Snapshot, error) {
	rec, err := l.repo.GetToday(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(rec, plan), nil
}
