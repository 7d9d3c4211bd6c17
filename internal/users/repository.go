package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	GetByBillingCustomer(ctx context.Context, customerRef string) (*User, error)
	SetBillingCustomer(ctx context.Context, id uuid.UUID, customerRef string) error
	UpdateSubscription(ctx context.Context, customerRef string, sub Subscription) (uuid.UUID, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const userColumns = `id, email, password_hash, name, plan, stripe_customer_id, stripe_subscription_id,
	subscription_status, subscription_current_period_end, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	var status string
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Plan,
		&user.BillingCustomerRef, &user.BillingSubscriptionRef, &status, &user.PeriodEnd,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.SubscriptionStatus = SubscriptionStatus(status)
	return user, nil
}

func (r *postgresRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, password_hash, name, plan, subscription_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Name, user.Plan,
		string(user.SubscriptionStatus), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

func (r *postgresRepository) GetByBillingCustomer(ctx context.Context, customerRef string) (*User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE stripe_customer_id = $1`, customerRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user by billing customer: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) SetBillingCustomer(ctx context.Context, id uuid.UUID, customerRef string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`, id, customerRef)
	if err != nil {
		return fmt.Errorf("storing billing customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSubscription overwrites all subscription fields in one statement,
// keyed by billing customer. Returns ErrNotFound for an unknown customer.
func (r *postgresRepository) UpdateSubscription(ctx context.Context, customerRef string, sub Subscription) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`UPDATE users
		 SET plan = $2,
		     stripe_subscription_id = $3,
		     subscription_status = $4,
		     subscription_current_period_end = $5,
		     updated_at = NOW()
		 WHERE stripe_customer_id = $1
		 RETURNING id`,
		customerRef, sub.Plan, sub.SubscriptionRef, string(sub.Status), sub.PeriodEnd,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("updating subscription: %w", err)
	}
	return id, nil
}
