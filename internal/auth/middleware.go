package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey struct{}

type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	Secret []byte
	Issuer string
}

// Parse validates an HS256 token and returns the caller identity.
func (v *Verifier) Parse(raw string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second), // small clock skew
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	var c Claims
	if _, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	}, opts...); err != nil {
		return Identity{}, err
	}
	if c.Subject == "" {
		return Identity{}, jwt.ErrTokenInvalidSubject
	}
	role, err := ParseRole(c.Role)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: c.Subject, Email: c.Email, Role: role}, nil
}

// Require checks the bearer token and that its role carries every capability.
func (v *Verifier) Require(caps ...Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				deny(w, http.StatusUnauthorized, "invalid_request", "missing bearer token")
				return
			}
			id, err := v.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				deny(w, http.StatusUnauthorized, "invalid_token", "invalid jwt")
				return
			}
			for _, c := range caps {
				if !id.Role.Can(c) {
					deny(w, http.StatusForbidden, "insufficient_scope", "role "+string(id.Role)+" cannot "+string(c))
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Sign issues a token; used by tests and local tooling, real tokens come from the auth service.
func (v *Verifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		Email: id.Email,
		Role:  string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    v.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.Secret)
}

func deny(w http.ResponseWriter, code int, errCode, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+errCode+`", error_description="`+desc+`"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": errCode, "error_description": desc})
}
