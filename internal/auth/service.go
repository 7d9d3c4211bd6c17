package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/replypilot/replypilot/internal/users"
)

// ErrUnauthenticated covers a missing, invalid or revoked credential and a
// credential whose user no longer exists.
var ErrUnauthenticated = errors.New("unauthenticated")

// UserFinder loads the user a credential points to.
type UserFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}

type Service struct {
	jwt         *JWTManager
	users       UserFinder
	redisClient redis.Cmdable
}

func NewService(jwt *JWTManager, users UserFinder, redisClient redis.Cmdable) *Service {
	return &Service{
		jwt:         jwt,
		users:       users,
		redisClient: redisClient,
	}
}

// IssueCredential returns a signed token for userID.
func (s *Service) IssueCredential(userID uuid.UUID) (string, error) {
	return s.jwt.Issue(userID)
}

// VerifyCredential never errors: ok is false for any unusable token.
func (s *Service) VerifyCredential(token string) (uuid.UUID, bool) {
	return s.jwt.VerifyUserID(token)
}

// Authenticate resolves the bearer credential on r to a stored user.
func (s *Service) Authenticate(r *http.Request) (*users.User, *Claims, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, nil, ErrUnauthenticated
	}

	claims, err := s.jwt.Verify(token)
	if err != nil {
		return nil, nil, ErrUnauthenticated
	}

	ctx := r.Context()
	if s.isRevoked(ctx, claims.ID) {
		return nil, nil, ErrUnauthenticated
	}

	userID, _ := claims.UserUUID()
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading authenticated user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrUnauthenticated
	}
	return user, claims, nil
}

// AuthenticateOptional never fails; any problem yields no identity.
func (s *Service) AuthenticateOptional(r *http.Request) *users.User {
	user, _, err := s.Authenticate(r)
	if err != nil {
		if !errors.Is(err, ErrUnauthenticated) {
			slog.Warn("optional authentication failed", "error", err)
		}
		return nil
	}
	return user
}

// Revoke puts the token id on the deny list until the token would expire anyway.
func (s *Service) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := s.redisClient.Set(ctx, revokedKey(claims.ID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

func (s *Service) isRevoked(ctx context.Context, tokenID string) bool {
	if tokenID == "" {
		return false
	}
	n, err := s.redisClient.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		slog.Warn("auth: revocation check failed, allowing token", "error", err)
		return false
	}
	return n > 0
}

func revokedKey(tokenID string) string {
	return "auth:revoked:" + tokenID
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
