package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo        Repository
	defaultPlan string
}

// NewService creates a user service. New accounts start on defaultPlan.
func NewService(repo Repository, defaultPlan string) *Service {
	return &Service{repo: repo, defaultPlan: defaultPlan}
}

// NormalizeEmail lowercases and trims an address before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Create(ctx context.Context, email, passwordHash, name string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:                 uuid.New(),
		Email:              NormalizeEmail(email),
		PasswordHash:       passwordHash,
		Plan:               s.defaultPlan,
		SubscriptionStatus: StatusNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if name = strings.TrimSpace(name); name != "" {
		user.Name = &name
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.repo.ExistsByEmail(ctx, NormalizeEmail(email))
}

func (s *Service) GetByBillingCustomer(ctx context.Context, customerRef string) (*User, error) {
	return s.repo.GetByBillingCustomer(ctx, customerRef)
}

func (s *Service) SetBillingCustomer(ctx context.Context, id uuid.UUID, customerRef string) error {
	return s.repo.SetBillingCustomer(ctx, id, customerRef)
}

// ApplySubscription overwrites the subscription fields of the user owning
// customerRef and returns that user's id.
func (s *Service) ApplySubscription(ctx context.Context, customerRef string, sub Subscription) (uuid.UUID, error) {
	return s.repo.UpdateSubscription(ctx, customerRef, sub)
}
