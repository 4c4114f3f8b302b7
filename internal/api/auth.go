package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the token.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Claims is the bearer token payload. The subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   string
}

type identityKey struct{}

// IdentityFrom returns the caller attached by the auth middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// IssueToken signs an HS256 token for userID with the given role.
func IssueToken(secret, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

func (s *server) parseToken(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: token has expired", errUnauthorized)
		}
		return Identity{}, fmt.Errorf("%w: invalid token", errUnauthorized)
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: invalid token", errUnauthorized)
	}
	return Identity{UserID: claims.Subject, Role: claims.Role}, nil
}

// authenticate requires a bearer token. WebSocket clients that cannot set
// headers may pass it as the access_token query parameter.
func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.URL.Query().Get("access_token")
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			scheme, value, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				s.writeError(w, r, fmt.Errorf("%w: invalid Authorization header format", errUnauthorized))
				return
			}
			tokenString = value
		}
		if tokenString == "" {
			s.writeError(w, r, fmt.Errorf("%w: Authorization header required", errUnauthorized))
			return
		}

		id, err := s.parseToken(tokenString)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole rejects callers whose token carries a different role.
func (s *server) requireRole(role string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			s.writeError(w, r, errUnauthorized)
			return
		}
		if id.Role != role {
			s.writeError(w, r, fmt.Errorf("%w: %s role required", errForbidden, role))
			return
		}
		next(w, r)
	}
}
