// Package userservice implements the UserService collaborator §6
// describes: pre_authenticate (silent SSO), authenticate_local,
// authenticate_external, and sign_out. It is deliberately thin — the
// wire protocol to any individual upstream identity provider is out
// of this core's scope, so authenticate_external trusts the asserted
// ExternalIdentity it is handed rather than performing a protocol
// round trip of its own. An external identity with no matching local
// account yields a partial result rather than an auto-provisioned
// shadow account; the caller is expected to complete account linking
// and resume through AuthenticateExternal a second time.
//
// Grounded on the teacher's inline bcrypt check in its local-login
// handler, lifted out into an independently testable collaborator.
package userservice

import (
	"fmt"
	"time"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/model"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/store"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/pkg/password"
)

// Service implements the UserService operations against the durable store.
type Service struct {
	Store store.Storer
}

func New(st store.Storer) *Service {
	return &Service{Store: st}
}

// PreAuthenticate implements pre_authenticate(req): an opportunity for
// silent SSO ahead of rendering the login form. This core has no
// upstream session source of its own beyond the primary authentication
// cookie, which the authorize state machine already consults in
// process_login, so there is nothing left to check here and this
// always declines.
func (s *Service) PreAuthenticate(msg *model.SignInMessage) *model.AuthenticateResult {
	return nil
}

// AuthenticateLocal implements authenticate_local(username, password).
func (s *Service) AuthenticateLocal(username, plaintextPassword string) *model.AuthenticateResult {
	user, err := s.Store.GetUserByEmail(username)
	if err != nil {
		return &model.AuthenticateResult{Kind: model.AuthenticateResultError, ErrorMessage: fmt.Sprintf("lookup failed: %v", err)}
	}
	if user == nil || !password.CheckPasswordHash(plaintextPassword, user.PasswordHash) {
		return &model.AuthenticateResult{Kind: model.AuthenticateResultError, ErrorMessage: "invalid_credentials"}
	}
	return &model.AuthenticateResult{
		Kind:             model.AuthenticateResultFullSignIn,
		Subject:          user.ID,
		IdentityProvider: "local",
		AuthTime:         time.Now(),
	}
}

// AuthenticateExternal implements authenticate_external(identity). If
// the provider asserts an email matching an existing local user, that
// user's account is the subject of a full sign-in. Otherwise the
// external identity is not yet mapped to a local account: the result
// is partial, carrying a ~/register redirect, and the caller is
// expected to re-invoke authenticate_external once account linking
// has completed (e.g. via /resume after the user finishes
// registration).
func (s *Service) AuthenticateExternal(identity model.ExternalIdentity) *model.AuthenticateResult {
	if email, hasEmail := identity.Claims["email"]; hasEmail {
		existing, err := s.Store.GetUserByEmail(email)
		if err != nil {
			return &model.AuthenticateResult{Kind: model.AuthenticateResultError, ErrorMessage: fmt.Sprintf("lookup failed: %v", err)}
		}
		if existing != nil {
			return &model.AuthenticateResult{
				Kind:             model.AuthenticateResultFullSignIn,
				Subject:          existing.ID,
				IdentityProvider: identity.Provider,
				AuthTime:         time.Now(),
			}
		}
	}

	return &model.AuthenticateResult{
		Kind:                model.AuthenticateResultPartialSignIn,
		Subject:             identity.Provider + ":" + identity.ProviderID,
		IdentityProvider:    identity.Provider,
		AuthTime:            time.Now(),
		PartialRedirectPath: "~/register",
	}
}

// SignOut implements user.sign_out(subject). There is no server-side
// session record tied to the authentication cookie itself — the
// cookie carries the claims directly — so signing out is entirely a
// cookie-clearing concern the caller (AuthenticationController)
// already performs; this exists so a future session-backed revocation
// list has a seam to plug into.
func (s *Service) SignOut(subject string) error {
	return nil
}
