package cookie

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/claims"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/config"
)

// Scheme distinguishes the three authentication cookies §4.6
// describes: a full primary sign-in, an in-progress external-provider
// sign-in, and a partial sign-in awaiting resume.
type Scheme string

const (
	SchemePrimary  Scheme = "primary"
	SchemeExternal Scheme = "external"
	SchemePartial  Scheme = "partial"
)

var allSchemes = []Scheme{SchemePrimary, SchemeExternal, SchemePartial}

// AuthPayload is what an authentication cookie carries: the claim bag
// plus the bookkeeping the controller needs to evaluate process_login.
type AuthPayload struct {
	Subject          string
	IdentityProvider string
	AuthTime         time.Time
	Claims           []claims.Claim
}

// ToBag rehydrates the ordered claim bag from the wire payload.
func (p *AuthPayload) ToBag() *claims.Bag {
	return claims.NewBag(p.Claims...)
}

// AuthCookieManager issues and reads the primary/external/partial
// authentication cookies per §4.6's persistence policy.
type AuthCookieManager struct {
	codec  *securecookie.SecureCookie
	opts   config.CookieOptions
	secure bool
}

func NewAuthCookieManager(codec *securecookie.SecureCookie, opts config.CookieOptions, secure bool) *AuthCookieManager {
	return &AuthCookieManager{codec: codec, opts: opts, secure: secure}
}

func (m *AuthCookieManager) cookieName(scheme Scheme) string {
	return "oidc_auth." + string(scheme)
}

// ClearAll removes the primary, external, and partial cookies, one of
// the cookie-hygiene obligations of POST /logout (§8).
func (m *AuthCookieManager) ClearAll(w http.ResponseWriter) {
	for _, scheme := range allSchemes {
		http.SetCookie(w, &http.Cookie{
			Name:     m.cookieName(scheme),
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   m.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// Issue mints an authentication cookie for the given scheme. rememberMe
// is a tri-state: nil follows the configured server default, otherwise
// it overrides it when AllowRememberMe is set (and is ignored when it
// is not) — except for partial sign-ins, which per §4.6 are never
// persistent regardless of rememberMe.
//
// Before signing in, any existing primary/external/partial cookies are
// cleared to prevent claim accumulation across logins.
func (m *AuthCookieManager) Issue(w http.ResponseWriter, scheme Scheme, payload AuthPayload, rememberMe *bool) error {
	m.ClearAll(w)

	persistent := m.opts.IsPersistent
	if rememberMe != nil && m.opts.AllowRememberMe {
		persistent = *rememberMe
	}
	if scheme == SchemePartial {
		persistent = false
	}

	name := m.cookieName(scheme)
	encoded, err := m.codec.Encode(name, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s authentication cookie: %w", scheme, err)
	}

	c := &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if persistent {
		c.Expires = time.Now().Add(m.opts.RememberMeDuration)
	}
	http.SetCookie(w, c)
	return nil
}

// Read decodes the authentication cookie for the given scheme, if present.
func (m *AuthCookieManager) Read(r *http.Request, scheme Scheme) (*AuthPayload, bool) {
	name := m.cookieName(scheme)
	c, err := r.Cookie(name)
	if err != nil {
		return nil, false
	}
	var payload AuthPayload
	if err := m.codec.Decode(name, c.Value, &payload); err != nil {
		return nil, false
	}
	return &payload, true
}

// Clear removes a single scheme's cookie.
func (m *AuthCookieManager) Clear(w http.ResponseWriter, scheme Scheme) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName(scheme),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
