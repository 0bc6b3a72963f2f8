// Package httpx re-architects the framework-attribute-driven filters
// (anti-forgery, no-cache headers) the original binds directly to its
// web framework into explicit middleware wrappers: each filter is a
// function that wraps a handler, composed onto the core's routes the
// way the teacher composes its own chi middleware stack.
package httpx

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
)

// NoCache is a middleware wrapper that marks every response as
// non-cacheable, matching the framework attribute the original source
// applies to every authorize/authenticate response.
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

const antiForgeryCookieName = "oidc_af"

// IssueAntiForgeryToken mints a fresh per-session nonce, sets it as a
// cookie, and returns the value to embed in the form as a hidden
// field — the double-submit pattern §6 requires.
func IssueAntiForgeryToken(w http.ResponseWriter, secure bool) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate anti-forgery token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     antiForgeryCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

// RequireAntiForgery is a middleware wrapper that rejects POSTs whose
// submitted token does not match the session-bound cookie, before any
// state change, per §8's anti-forgery invariant. The submitted value
// is read from a form field named "antiforgery".
func RequireAntiForgery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		cookie, err := r.Cookie(antiForgeryCookieName)
		if err != nil {
			http.Error(w, "missing anti-forgery cookie", http.StatusBadRequest)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed form body", http.StatusBadRequest)
			return
		}
		submitted := r.FormValue("antiforgery")
		if submitted == "" || submitted != cookie.Value {
			http.Error(w, "anti-forgery token mismatch", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}
