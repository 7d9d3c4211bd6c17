package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	GetToday(ctx context.Context, userID uuid.UUID) (Record, error)
	Increment(ctx context.Context, userID uuid.UUID, tokens int) (Record, error)
	InsertLog(ctx context.Context, entry LogEntry) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

// today is evaluated by PostgreSQL so every server process shares one clock.
const today = `(now() AT TIME ZONE 'UTC')::date`

func (r *postgresRepository) GetToday(ctx context.Context, userID uuid.UUID) (Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx,
		`SELECT requests_count, tokens_used FROM daily_usage
		 WHERE user_id = $1 AND usage_date = `+today, userID,
	).Scan(&rec.RequestsCount, &rec.TokensUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("querying today's usage: %w", err)
	}
	return rec, nil
}

// Increment creates or bumps today's row in a single statement; concurrent
// callers serialize on the row lock so no update is lost.
func (r *postgresRepository) Increment(ctx context.Context, userID uuid.UUID, tokens int) (Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx,
		`INSERT INTO daily_usage (user_id, usage_date, requests_count, tokens_used)
		 VALUES ($1, `+today+`, 1, $2)
		 ON CONFLICT (user_id, usage_date) DO UPDATE
		 SET requests_count = daily_usage.requests_count + 1,
		     tokens_used = daily_usage.tokens_used + EXCLUDED.tokens_used,
		     updated_at = NOW()
		 RETURNING requests_count, tokens_used`, userID, tokens,
	).Scan(&rec.RequestsCount, &rec.TokensUsed)
	if err != nil {
		return Record{}, fmt.Errorf("incrementing usage: %w", err)
	}
	return rec, nil
}

func (r *postgresRepository) InsertLog(ctx context.Context, entry LogEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO request_logs (user_id, endpoint, tokens_input, tokens_output, model, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.UserID, entry.Endpoint, entry.TokensInput, entry.TokensOutput, entry.Model, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting request log: %w", err)
	}
	return nil
}
