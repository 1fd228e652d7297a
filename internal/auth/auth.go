package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the caller identity. The subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for userID.
func GenerateToken(userID uuid.UUID, role, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

// Parse validates tokenString and returns the actor it names.
func Parse(tokenString, secret string) (transaction.Actor, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}

		return []byte(secret), nil
	})
	if err != nil {
		return transaction.Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !token.Valid {
		return transaction.Actor{}, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return transaction.Actor{}, fmt.Errorf("%w: subject: %w", ErrInvalidToken, err)
	}

	return transaction.Actor{ID: id, Admin: claims.Role == RoleAdmin}, nil
}

type ctxKey struct{}

func WithActor(ctx context.Context, a transaction.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func ActorFromContext(ctx context.Context) (transaction.Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(transaction.Actor)
	return a, ok
}

// Middleware rejects requests without a valid bearer token and stores the
// caller in the request context.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "authorization header is required", http.StatusUnauthorized)
				return
			}

			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			actor, err := Parse(tokenString, secret)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					http.Error(w, "token has expired", http.StatusUnauthorized)
					return
				}

				http.Error(w, "invalid token", http.StatusUnauthorized)

				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireAdmin lets only admin callers through.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		if !actor.Admin {
			http.Error(w, "forbidden: admin only", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
