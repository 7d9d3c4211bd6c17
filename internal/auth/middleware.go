package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/replypilot/replypilot/internal/api"
	mw "github.com/replypilot/replypilot/internal/middleware"
	"github.com/replypilot/replypilot/internal/users"
)

type contextKey string

const (
	userKey   contextKey = "auth_user"
	claimsKey contextKey = "auth_claims"
)

// Middleware rejects requests without a valid credential for an existing user.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, claims, err := svc.Authenticate(r)
			if err != nil {
				if errors.Is(err, ErrUnauthenticated) {
					if _, ok := bearerToken(r); !ok {
						api.HandleError(w, api.ErrUnauthorized)
					} else {
						api.HandleError(w, api.ErrInvalidToken)
					}
					return
				}
				slog.Error("authenticating request", "error", err)
				api.HandleError(w, api.ErrInternalServer)
				return
			}

			mw.AnnotateUser(r.Context(), user.ID.String())
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, claims)))
		})
	}
}

// OptionalMiddleware attaches the user when a valid credential is present and
// lets every request through.
func OptionalMiddleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := svc.AuthenticateOptional(r); user != nil {
				mw.AnnotateUser(r.Context(), user.ID.String())
				r = r.WithContext(WithUser(r.Context(), user, nil))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUser stores the resolved identity in ctx.
func WithUser(ctx context.Context, user *users.User, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	if claims != nil {
		ctx = context.WithValue(ctx, claimsKey, claims)
	}
	return ctx
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(ctx context.Context) *users.User {
	user, _ := ctx.Value(userKey).(*users.User)
	return user
}

func CurrentClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}
