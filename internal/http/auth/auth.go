// Package auth verifies HS256 bearer tokens and exposes the token subject to handlers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type subjectKey struct{}

var errMissingToken = errors.New("missing bearer token")

// Middleware rejects requests without a valid token signed with secret.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := authenticate(r, secret)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="paycore"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)

				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

func authenticate(r *http.Request, secret []byte) (string, error) {
	header := r.Header.Get("Authorization")

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", errMissingToken
	}

	var claims jwt.RegisteredClaims

	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}

	if claims.Subject == "" {
		return "", errors.New("token without subject")
	}

	return claims.Subject, nil
}

func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// Subject returns the authenticated subject, or "" when auth is disabled.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
