package users

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

// SubscriptionStatus mirrors the users.subscription_status column.
type SubscriptionStatus string

const (
	StatusNone     SubscriptionStatus = "none"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// User matches the users table schema.
type User struct {
	ID                     uuid.UUID
	Email                  string
	PasswordHash           string
	Name                   *string
	Plan                   string
	BillingCustomerRef     *string
	BillingSubscriptionRef *string
	SubscriptionStatus     SubscriptionStatus
	PeriodEnd              *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Subscription is the set of billing fields that change together.
type Subscription struct {
	Plan            string
	SubscriptionRef *string
	Status          SubscriptionStatus
	PeriodEnd       *time.Time
}

// View is the public JSON shape of a user.
type View struct {
	ID                 uuid.UUID          `json:"id"`
	Email              string             `json:"email"`
	Name               *string            `json:"name"`
	Plan               string             `json:"plan"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
	CreatedAt          time.Time          `json:"createdAt"`
}

func (u *User) View() View {
	return View{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		Plan:               u.Plan,
		SubscriptionStatus: u.SubscriptionStatus,
		CreatedAt:          u.CreatedAt,
	}
}
