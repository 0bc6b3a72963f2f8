// Package cookie implements the browser-owned envelopes the core
// reads and mints: the MessageCookie pattern for sign-in/sign-out
// messages (§3), the session-id cookie, the remembered-username hint,
// and primary/external/partial authentication cookie issuance (§4.6).
//
// Encoding follows the teacher's securecookie usage in
// internal/session/session.go, generalized with the JSON serializer
// box-kube-applier's webserver/oidc/oidc.go uses for its userSession
// envelope — the closest pack precedent for a single-purpose,
// pre-authentication cookie payload.
package cookie

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// NewCodec derives a securecookie hash+block key pair from a single
// configured secret, matching the teacher's SessionSecret-derived
// approach but adding a block key so the envelope is encrypted as
// well as authenticated. maxAge bounds the cookie's cryptographic
// validity window — securecookie embeds and checks a timestamp on
// every Decode, so this is what actually enforces a TTL server-side;
// the maxAge a caller passes to MessageCookie/AuthCookieManager only
// sets the browser-facing http.Cookie.MaxAge, which a replayed raw
// cookie value ignores entirely. Each cookie purpose with a distinct
// TTL needs its own codec instance, since MaxAge is set once per
// *securecookie.SecureCookie.
func NewCodec(secret string, maxAge time.Duration) *securecookie.SecureCookie {
	hashKey := deriveKey([]byte(secret), "hash", 64)
	blockKey := deriveKey([]byte(secret), "block", 32)
	sc := securecookie.New(hashKey, blockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(int(maxAge.Seconds()))
	return sc
}

func deriveKey(secret []byte, purpose string, size int) []byte {
	h := sha256.New()
	h.Write(secret)
	h.Write([]byte(purpose))
	sum := h.Sum(nil)
	if size <= len(sum) {
		return sum[:size]
	}
	out := make([]byte, 0, size)
	for len(out) < size {
		h.Reset()
		h.Write(sum)
		h.Write([]byte(purpose))
		sum = h.Sum(nil)
		out = append(out, sum...)
	}
	return out[:size]
}

// MessageCookie is the short-lived opaque envelope for a typed message
// keyed by a random id: each id gets its own uniquely-named cookie, so
// concurrent flows (e.g. two tabs) never alias.
type MessageCookie[T any] struct {
	namePrefix string
	codec      *securecookie.SecureCookie
	maxAge     time.Duration
	secure     bool
}

// NewMessageCookie builds a MessageCookie for the given cookie-name
// prefix (e.g. "oidc_signin" for sign-in messages, "oidc_signout" for
// sign-out messages).
func NewMessageCookie[T any](namePrefix string, codec *securecookie.SecureCookie, maxAge time.Duration, secure bool) *MessageCookie[T] {
	return &MessageCookie[T]{namePrefix: namePrefix, codec: codec, maxAge: maxAge, secure: secure}
}

func (m *MessageCookie[T]) cookieName(id string) string {
	return m.namePrefix + "." + id
}

// Write mints the cookie carrying msg, keyed by id.
func (m *MessageCookie[T]) Write(w http.ResponseWriter, id string, msg T) error {
	name := m.cookieName(id)
	encoded, err := m.codec.Encode(name, msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s cookie: %w", m.namePrefix, err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read decodes the message for id. A MAC failure, expired encoding, or
// absent cookie are all treated as "absent" per §6's "MAC failure ->
// treat as absent" rule, never surfaced as a distinct error.
func (m *MessageCookie[T]) Read(r *http.Request, id string) (*T, bool) {
	name := m.cookieName(id)
	c, err := r.Cookie(name)
	if err != nil {
		return nil, false
	}
	var msg T
	if err := m.codec.Decode(name, c.Value, &msg); err != nil {
		return nil, false
	}
	return &msg, true
}

// Clear deletes the cookie for id, used on successful sign-in or when
// the authorize flow restarts for a new client.
func (m *MessageCookie[T]) Clear(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName(id),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionCookie issues and reads the opaque session-id cookie; the
// session record itself (user, idp, auth_time) lives in the store.
type SessionCookie struct {
	name   string
	codec  *securecookie.SecureCookie
	maxAge time.Duration
	secure bool
}

func NewSessionCookie(codec *securecookie.SecureCookie, maxAge time.Duration, secure bool) *SessionCookie {
	return &SessionCookie{name: "oidc_session", codec: codec, maxAge: maxAge, secure: secure}
}

func (s *SessionCookie) Write(w http.ResponseWriter, sessionID string) error {
	encoded, err := s.codec.Encode(s.name, sessionID)
	if err != nil {
		return fmt.Errorf("failed to encode session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(s.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *SessionCookie) Read(r *http.Request) (string, bool) {
	c, err := r.Cookie(s.name)
	if err != nil {
		return "", false
	}
	var sessionID string
	if err := s.codec.Decode(s.name, c.Value, &sessionID); err != nil {
		return "", false
	}
	return sessionID, true
}

func (s *SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// LastUsernameCookie remembers the last-used local username as a
// login-page hint. It is readable by JavaScript-free form pre-fill, so
// it is not HttpOnly, but is still signed to keep it from becoming an
// arbitrary injection vector into the login template.
type LastUsernameCookie struct {
	name   string
	codec  *securecookie.SecureCookie
	secure bool
}

func NewLastUsernameCookie(codec *securecookie.SecureCookie, secure bool) *LastUsernameCookie {
	return &LastUsernameCookie{name: "oidc_last_username", codec: codec, secure: secure}
}

func (l *LastUsernameCookie) Write(w http.ResponseWriter, username string) error {
	encoded, err := l.codec.Encode(l.name, username)
	if err != nil {
		return fmt.Errorf("failed to encode last-username cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     l.name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: false,
		Secure:   l.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (l *LastUsernameCookie) Read(r *http.Request) (string, bool) {
	c, err := r.Cookie(l.name)
	if err != nil {
		return "", false
	}
	var username string
	if err := l.codec.Decode(l.name, c.Value, &username); err != nil {
		return "", false
	}
	return username, true
}
