// Package config loads the process-wide options that shape the
// authorize/authenticate core: endpoint toggles, cookie persistence
// policy, and the small set of site-identity strings the views need.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CookieOptions controls persistence of the primary authentication
// cookie issued by IssueAuthenticationCookie.
type CookieOptions struct {
	AllowRememberMe    bool
	IsPersistent       bool
	RememberMeDuration time.Duration
}

// AuthenticationOptions groups the login/logout behavior knobs.
type AuthenticationOptions struct {
	EnableLocalLogin    bool
	EnableSignOutPrompt bool
	CookieOptions       CookieOptions
	LoginPageLinks      []string
}

// EndpointOptions toggles individual HTTP surfaces.
type EndpointOptions struct {
	EnableAuthorizeEndpoint bool
}

// EventsOptions gates EventService emission.
type EventsOptions struct {
	RaiseSuccessEvents bool
	RaiseFailureEvents bool
}

// Config is the root options object, the Go analogue of
// IdentityServerOptions.
type Config struct {
	IssuerURL            string
	DatabasePath         string
	Port                 string
	PrivateKeyPath       string
	SessionSecret        string
	SessionMaxAge        time.Duration
	TokenTTL             time.Duration
	AuthorizationCodeTTL time.Duration
	SignInMessageTTL     time.Duration
	SiteName             string
	ProtocolLogoutURLs   []string

	Endpoints      EndpointOptions
	Authentication AuthenticationOptions
	Events         EventsOptions
}

// Load builds a Config from the environment, falling back to
// development-friendly defaults for anything unset.
func Load() *Config {
	return &Config{
		IssuerURL:            getEnv("ISSUER_URL", "http://localhost:8080"),
		DatabasePath:         getEnv("DATABASE_PATH", "./interaction_core.db"),
		Port:                 getEnv("PORT", "8080"),
		PrivateKeyPath:       getEnv("PRIVATE_KEY_PATH", "./keys/private.pem"),
		SessionSecret:        getEnv("SESSION_SECRET", "dev-only-session-secret-change-me-32bytes"),
		SessionMaxAge:        getEnvDuration("SESSION_MAX_AGE", 24*time.Hour),
		TokenTTL:             getEnvDuration("TOKEN_TTL", time.Hour),
		AuthorizationCodeTTL: getEnvDuration("AUTHORIZATION_CODE_TTL", 60*time.Second),
		SignInMessageTTL:     getEnvDuration("SIGNIN_MESSAGE_TTL", 5*time.Minute),
		SiteName:             getEnv("SITE_NAME", "Interaction Core"),
		ProtocolLogoutURLs:   getEnvList("PROTOCOL_LOGOUT_URLS", nil),

		Endpoints: EndpointOptions{
			EnableAuthorizeEndpoint: getEnvBool("ENABLE_AUTHORIZE_ENDPOINT", true),
		},
		Authentication: AuthenticationOptions{
			EnableLocalLogin:    getEnvBool("ENABLE_LOCAL_LOGIN", true),
			EnableSignOutPrompt: getEnvBool("ENABLE_SIGN_OUT_PROMPT", true),
			CookieOptions: CookieOptions{
				AllowRememberMe:    getEnvBool("ALLOW_REMEMBER_ME", true),
				IsPersistent:       getEnvBool("COOKIE_IS_PERSISTENT", false),
				RememberMeDuration: getEnvDuration("REMEMBER_ME_DURATION", 30*24*time.Hour),
			},
			LoginPageLinks: getEnvList("LOGIN_PAGE_LINKS", nil),
		},
		Events: EventsOptions{
			RaiseSuccessEvents: getEnvBool("RAISE_SUCCESS_EVENTS", true),
			RaiseFailureEvents: getEnvBool("RAISE_FAILURE_EVENTS", true),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	v, exists := os.LookupEnv(key)
	if !exists || v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
