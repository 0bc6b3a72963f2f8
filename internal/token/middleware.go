package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const subjectContextKey contextKey = "token_subject"

// SubjectFromContext reads the subject stashed by RequireBearerToken.
func SubjectFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectContextKey).(string)
	return v, ok
}

// RequireBearerToken validates an access token's signature and issuer
// and stores its subject in the request context, adapted from the
// teacher's internal/middleware/auth.go.
func (s *Service) RequireBearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			w.Header().Set("WWW-Authenticate", `Bearer realm="interaction-core"`)
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		rawToken := strings.TrimPrefix(header, "Bearer ")

		claims := &AccessTokenClaims{}
		parsed, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.keys.PublicKey, nil
		})

		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="token expired"`)
			}
			http.Error(w, "invalid access token", http.StatusUnauthorized)
			return
		}
		if !parsed.Valid || claims.Issuer != s.cfg.IssuerURL {
			http.Error(w, "invalid access token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), subjectContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
