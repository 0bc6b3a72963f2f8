// Package model holds the data shapes shared across the
// authorize/authenticate core: the raw and validated request forms,
// the sign-in/sign-out message envelopes, and the authorize response.
package model

import (
	"net/url"
	"time"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/store"
)

// ResponseMode is the transport for an authorize response.
type ResponseMode string

const (
	ResponseModeQuery    ResponseMode = "query"
	ResponseModeFragment ResponseMode = "fragment"
	ResponseModeFormPost ResponseMode = "form_post"
)

// AuthorizeRequestRaw is the decoded query string of an incoming
// authorize request, keyed by parameter name.
type AuthorizeRequestRaw map[string]string

// ValidatedRequest is the post-validation form of an authorize
// request: a populated client, normalized scopes, and a concrete
// response mode.
type ValidatedRequest struct {
	Client *store.Client

	IdentityScopes []string
	ResourceScopes []string

	ResponseType string
	ResponseMode ResponseMode
	RedirectURI  string

	State        string
	Nonce        string
	PromptSet    map[string]bool
	ACRValues    []string
	MaxAge       *int
	LoginHint    string
	UILocales    string
	IDP          string

	CodeChallenge       string
	CodeChallengeMethod string

	Subject string

	Raw AuthorizeRequestRaw
}

// HasPrompt reports whether the given prompt value was requested.
func (v *ValidatedRequest) HasPrompt(prompt string) bool {
	if v.PromptSet == nil {
		return false
	}
	return v.PromptSet[prompt]
}

// ClearPrompt removes a prompt value, preventing login/consent loops
// once it has been honored once (per §4.2 process_login).
func (v *ValidatedRequest) ClearPrompt(prompt string) {
	delete(v.PromptSet, prompt)
}

// AllScopes returns the identity and resource scopes concatenated.
func (v *ValidatedRequest) AllScopes() []string {
	return append(append([]string{}, v.IdentityScopes...), v.ResourceScopes...)
}

// AuthorizeURL reconstructs the absolute authorize URL from the raw
// parameter map, used as the SignInMessage.ReturnURL so that login is
// resumable by redirect.
func (v *ValidatedRequest) AuthorizeURL(baseURL string) string {
	q := url.Values{}
	for k, val := range v.Raw {
		q.Set(k, val)
	}
	return baseURL + "?" + q.Encode()
}

// SignInMessage is the signed, encrypted envelope persisted in a
// short-lived cookie keyed by a random id, carrying everything needed
// to resume an authorize flow after login.
type SignInMessage struct {
	ID        string
	ReturnURL string
	ClientID  string
	IDP       string
	ACRValues []string
	Tenant    string
	UILocales string
	CreatedAt time.Time
}

// SignOutMessage mirrors SignInMessage for RP-initiated logout
// continuation.
type SignOutMessage struct {
	ID                  string
	ClientID             string
	PostLogoutRedirectURI string
	State                string
	CreatedAt            time.Time
}

// AuthenticateResultKind tags the variant of AuthenticateResult.
type AuthenticateResultKind int

const (
	AuthenticateResultFullSignIn AuthenticateResultKind = iota
	AuthenticateResultPartialSignIn
	AuthenticateResultError
)

// AuthenticateResult is the tagged variant {FullSignIn, PartialSignIn, Error}.
type AuthenticateResult struct {
	Kind AuthenticateResultKind

	Subject            string
	IdentityProvider   string
	AuthTime           time.Time

	PartialRedirectPath string // relative "~/..." path

	ErrorMessage string
}

// IsError reports whether the result is the Error variant.
func (a *AuthenticateResult) IsError() bool { return a.Kind == AuthenticateResultError }

// IsPartial reports whether the result is the PartialSignIn variant.
func (a *AuthenticateResult) IsPartial() bool { return a.Kind == AuthenticateResultPartialSignIn }

// UserConsent is a user's response to a consent prompt.
type UserConsent struct {
	Button           string // "yes" or "no"
	Scopes           []string
	RememberConsent  bool
}

// Allowed reports whether the user approved the request.
func (c *UserConsent) Allowed() bool { return c.Button == "yes" }

// AuthorizeResponse is either a success or error envelope, transported
// per ResponseMode.
type AuthorizeResponse struct {
	IsError bool

	Code        string
	AccessToken string
	IDToken     string

	Error            string
	ErrorDescription string

	State        string
	RedirectURI  string
	ResponseMode ResponseMode
}

// ExternalIdentity is the identity asserted by an external provider
// after a challenge/callback round trip.
type ExternalIdentity struct {
	Provider   string
	ProviderID string
	Claims     map[string]string
}
