// Package interaction implements the InteractionGenerator component:
// the three login/consent decisions that drive the authorize state
// machine in §4.2.
//
// Grounded on the teacher's Authorize handler, which already branches
// on session presence and on h.store.GetGrant with a scope-subset
// comparison; this package lifts that branching logic out of the
// handler into an independently testable decision component.
package interaction

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/cookie"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/model"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/store"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/validator"
)

// DecisionKind tags the variant of a Decision.
type DecisionKind int

const (
	DecisionProceed DecisionKind = iota
	DecisionLogin
	DecisionConsent
	DecisionError
)

// Decision is the tagged {Error(kind, code), Login(SignInMessage),
// Consent(error_message?), Proceed} result §4.2 specifies.
type Decision struct {
	Kind DecisionKind

	Error *validator.AuthError

	SignInMessage *model.SignInMessage

	ConsentMessage string

	Scopes []string // narrowed scopes after a successful consent decision
}

// ConsentStore is the narrow collaborator interaction needs for
// remembered-consent lookups.
type ConsentStore interface {
	GetGrant(userID, clientID string) (*store.Grant, error)
	CreateOrUpdateGrant(grant *store.Grant) error
}

// Generator implements the three process_* operations.
type Generator struct {
	Consent ConsentStore
}

func New(consent ConsentStore) *Generator {
	return &Generator{Consent: consent}
}

// ProcessLogin implements process_login(req, current_user).
func (g *Generator) ProcessLogin(req *model.ValidatedRequest, principal *cookie.AuthPayload, returnURL string) Decision {
	if req.HasPrompt("login") || req.HasPrompt("select_account") {
		req.ClearPrompt("login")
		req.ClearPrompt("select_account")
		return Decision{Kind: DecisionLogin, SignInMessage: newSignInMessage(req, returnURL)}
	}

	if principal == nil {
		return Decision{Kind: DecisionLogin, SignInMessage: newSignInMessage(req, returnURL)}
	}

	if req.MaxAge != nil {
		maxAge := time.Duration(*req.MaxAge) * time.Second
		if time.Since(principal.AuthTime) > maxAge {
			return Decision{Kind: DecisionLogin, SignInMessage: newSignInMessage(req, returnURL)}
		}
	}

	if req.IDP != "" && principal.IdentityProvider != req.IDP {
		return Decision{Kind: DecisionLogin, SignInMessage: newSignInMessage(req, returnURL)}
	}

	return Decision{Kind: DecisionProceed}
}

// ProcessClientLogin implements process_client_login(req): a
// post-client-resolution pass enforcing the client's IdP restriction
// list.
func (g *Generator) ProcessClientLogin(req *model.ValidatedRequest) Decision {
	if req.IDP == "" || req.Client == nil {
		return Decision{Kind: DecisionProceed}
	}
	if !req.Client.AllowsIdP(req.IDP) {
		return Decision{Kind: DecisionError, Error: &validator.AuthError{
			Type:        validator.ErrorTypeClient,
			Code:        "unauthorized_client",
			Description: "requested identity provider is not permitted for this client",
		}}
	}
	return Decision{Kind: DecisionProceed}
}

// ProcessConsent implements process_consent(req, consent_submission?).
func (g *Generator) ProcessConsent(req *model.ValidatedRequest, userID string, submission *model.UserConsent) (Decision, error) {
	requested := req.AllScopes()

	if req.Client == nil || !req.Client.RequireConsent {
		return Decision{Kind: DecisionProceed, Scopes: requested}, nil
	}

	grant, err := g.Consent.GetGrant(userID, req.Client.ID)
	if err != nil {
		return Decision{}, err
	}
	if grant != nil && scopesSubset(requested, strings.Fields(grant.Scopes)) {
		return Decision{Kind: DecisionProceed, Scopes: requested}, nil
	}

	if submission == nil {
		return Decision{Kind: DecisionConsent}, nil
	}

	if !submission.Allowed() {
		return Decision{Kind: DecisionError, Error: &validator.AuthError{
			Type:        validator.ErrorTypeClient,
			Code:        "access_denied",
			Description: "the user denied the request",
		}}, nil
	}

	if len(submission.Scopes) == 0 || !scopesSubset(submission.Scopes, requested) {
		return Decision{Kind: DecisionConsent, ConsentMessage: "must_choose_one_permission"}, nil
	}

	if submission.RememberConsent {
		if err := g.Consent.CreateOrUpdateGrant(&store.Grant{
			ID:       uuid.NewString(),
			UserID:   userID,
			ClientID: req.Client.ID,
			Scopes:   strings.Join(submission.Scopes, " "),
		}); err != nil {
			return Decision{}, err
		}
	}

	return Decision{Kind: DecisionProceed, Scopes: submission.Scopes}, nil
}

func newSignInMessage(req *model.ValidatedRequest, returnURL string) *model.SignInMessage {
	msg := &model.SignInMessage{
		ID:        uuid.NewString(),
		ReturnURL: returnURL,
		ClientID:  req.Raw["client_id"],
		IDP:       req.IDP,
		ACRValues: req.ACRValues,
		Tenant:    req.Raw["tenant"],
		UILocales: req.UILocales,
		CreatedAt: time.Now(),
	}
	return msg
}

// scopesSubset reports whether every element of subset is present in superset.
func scopesSubset(subset, superset []string) bool {
	allowed := make(map[string]bool, len(superset))
	for _, s := range superset {
		allowed[s] = true
	}
	for _, s := range subset {
		if !allowed[s] {
			return false
		}
	}
	return true
}
