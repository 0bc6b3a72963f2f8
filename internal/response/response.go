// Package response implements the ResponseGenerator component: given a
// fully validated, authenticated, consented request, it produces the
// AuthorizeResponse envelope for the code, implicit/hybrid, and
// form-post flows, per §4.3.
//
// Grounded on the teacher's code-path in Authorize
// (generateSecureRandomString + store.CreateAuthorizationCode) for the
// code flow, and day59_oauth_provider's
// BuildAuthorizeRedirectURL/BuildErrorRedirectURL for the
// fragment/implicit case the teacher itself never implements.
package response

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/model"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/store"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/validator"
)

// TokenIssuer is the narrow collaborator that mints signed tokens;
// token minting/signing is out of scope for this core (§1) and lives
// in internal/token, which implements this interface.
type TokenIssuer interface {
	IssueAccessToken(clientID, subject string, scopes []string) (string, error)
	IssueIDToken(clientID, subject, nonce string, authTime time.Time, scopes []string) (string, error)
}

// CodeStore is the narrow collaborator for authorization-code persistence.
type CodeStore interface {
	CreateAuthorizationCode(code *store.AuthorizationCode) error
}

// Generator implements ResponseGenerator.
type Generator struct {
	Codes  CodeStore
	Tokens TokenIssuer
	CodeTTL time.Duration
}

func New(codes CodeStore, tokens TokenIssuer, codeTTL time.Duration) *Generator {
	return &Generator{Codes: codes, Tokens: tokens, CodeTTL: codeTTL}
}

// Generate produces the success AuthorizeResponse for a fully
// validated and authenticated request. scopes is the final,
// consent-narrowed scope list.
func (g *Generator) Generate(req *model.ValidatedRequest, subject string, authTime time.Time, scopes []string) (*model.AuthorizeResponse, error) {
	switch req.ResponseMode {
	case model.ResponseModeQuery, model.ResponseModeFragment, model.ResponseModeFormPost:
		// ok
	default:
		return nil, fmt.Errorf("unsupported response mode %q after validation: invariant violation", req.ResponseMode)
	}

	resp := &model.AuthorizeResponse{
		State:        req.State,
		RedirectURI:  req.RedirectURI,
		ResponseMode: req.ResponseMode,
	}

	parts := strings.Fields(req.ResponseType)
	var wantsCode, wantsToken, wantsIDToken bool
	for _, p := range parts {
		switch p {
		case "code":
			wantsCode = true
		case "token":
			wantsToken = true
		case "id_token":
			wantsIDToken = true
		}
	}

	if wantsCode {
		code, err := g.issueCode(req, subject, authTime, scopes)
		if err != nil {
			return nil, fmt.Errorf("failed to issue authorization code: %w", err)
		}
		resp.Code = code
	}
	if wantsToken {
		token, err := g.Tokens.IssueAccessToken(req.Client.ID, subject, scopes)
		if err != nil {
			return nil, fmt.Errorf("failed to issue access token: %w", err)
		}
		resp.AccessToken = token
	}
	if wantsIDToken {
		idToken, err := g.Tokens.IssueIDToken(req.Client.ID, subject, req.Nonce, authTime, scopes)
		if err != nil {
			return nil, fmt.Errorf("failed to issue id token: %w", err)
		}
		resp.IDToken = idToken
	}

	return resp, nil
}

// Error builds the error AuthorizeResponse per the ErrorType::Client
// redirect rule in §4.4.
func Error(req *model.ValidatedRequest, authErr *validator.AuthError) *model.AuthorizeResponse {
	return &model.AuthorizeResponse{
		IsError:          true,
		Error:            authErr.Code,
		ErrorDescription: authErr.Description,
		State:            req.State,
		RedirectURI:      req.RedirectURI,
		ResponseMode:     req.ResponseMode,
	}
}

func (g *Generator) issueCode(req *model.ValidatedRequest, subject string, authTime time.Time, scopes []string) (string, error) {
	codeValue, err := generateSecureRandomString(32)
	if err != nil {
		return "", err
	}

	var nonce, challenge, challengeMethod *string
	if req.Nonce != "" {
		nonce = &req.Nonce
	}
	if req.CodeChallenge != "" {
		challenge = &req.CodeChallenge
		challengeMethod = &req.CodeChallengeMethod
	}

	record := &store.AuthorizationCode{
		Code:                codeValue,
		ClientID:            req.Client.ID,
		UserID:              subject,
		RedirectURI:         req.RedirectURI,
		Scopes:              strings.Join(scopes, " "),
		Nonce:               nonce,
		CodeChallenge:       challenge,
		CodeChallengeMethod: challengeMethod,
		AuthTime:            authTime,
		ExpiresAt:           time.Now().Add(g.CodeTTL),
	}
	if err := g.Codes.CreateAuthorizationCode(record); err != nil {
		return "", err
	}
	return codeValue, nil
}

// generateSecureRandomString produces a URL-safe, high-entropy opaque
// token (>=128 bits), falling back to a UUID if the system random
// source fails, matching the teacher's own fallback strategy.
func generateSecureRandomString(numBytes int) (string, error) {
	buf := make([]byte, numBytes)
	if _, err := rand.Read(buf); err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", ""), nil
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
