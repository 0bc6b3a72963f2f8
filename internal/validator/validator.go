// Package validator implements the RequestValidator component: a
// stateless protocol-validation pass followed by a stateful
// client-validation pass that together produce a ValidatedRequest,
// per spec §4.1.
//
// Grounded on the teacher's inline validation block in
// internal/handler/oidc_handler.go's Authorize handler
// (response_type/scope/PKCE checks, exact redirect_uri match against
// Client.ParsedRedirectURIs), lifted into a standalone, independently
// testable component.
package validator

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/model"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/store"
)

// ErrorType classifies an AuthError as safe to redirect to the client
// or unsafe (must be rendered to the user instead).
type ErrorType int

const (
	ErrorTypeClient ErrorType = iota
	ErrorTypeUser
)

// AuthError is the validator's error result, tagged with how it must
// be surfaced.
type AuthError struct {
	Type        ErrorType
	Code        string
	Description string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func userError(code, description string) *AuthError {
	return &AuthError{Type: ErrorTypeUser, Code: code, Description: description}
}

func clientError(code, description string) *AuthError {
	return &AuthError{Type: ErrorTypeClient, Code: code, Description: description}
}

var knownResponseTypes = map[string]bool{
	"code":              true,
	"token":             true,
	"id_token":          true,
	"id_token token":    true,
	"code id_token":     true,
	"code token":        true,
	"code id_token token": true,
}

const maxParamLength = 2048

// RequestValidator implements the two-pass validation described in §4.1.
type RequestValidator struct {
	Clients ClientStore
}

// ClientStore is the narrow collaborator interface validate_client needs.
type ClientStore interface {
	GetClient(clientID string) (*store.Client, error)
}

func New(clients ClientStore) *RequestValidator {
	return &RequestValidator{Clients: clients}
}

// ValidateProtocol checks presence and syntactic form of required
// parameters and infers the response mode; it never resolves the
// client.
func (v *RequestValidator) ValidateProtocol(raw model.AuthorizeRequestRaw) (*model.ValidatedRequest, *AuthError) {
	for key, val := range raw {
		if len(val) > maxParamLength {
			return nil, clientError("invalid_request", fmt.Sprintf("parameter %s exceeds maximum length", key))
		}
	}

	clientID := raw["client_id"]
	if clientID == "" {
		return nil, userError("invalid_request", "client_id is required")
	}

	redirectURI := raw["redirect_uri"]
	if redirectURI == "" {
		return nil, userError("invalid_request", "redirect_uri is required")
	}
	parsedRedirect, err := url.ParseRequestURI(redirectURI)
	if err != nil || !parsedRedirect.IsAbs() {
		return nil, userError("invalid_request", "redirect_uri must be an absolute URI")
	}

	responseType := raw["response_type"]
	if !knownResponseTypes[responseType] {
		return nil, clientError("unsupported_response_type", "response_type is not supported")
	}

	responseMode, afErr := resolveResponseMode(responseType, raw["response_mode"])
	if afErr != nil {
		return nil, afErr
	}

	scope := raw["scope"]
	if scope == "" {
		return nil, clientError("invalid_scope", "scope is required")
	}
	identityScopes, resourceScopes := splitScopes(scope)

	req := &model.ValidatedRequest{
		IdentityScopes: identityScopes,
		ResourceScopes: resourceScopes,
		ResponseType:   responseType,
		ResponseMode:   responseMode,
		RedirectURI:    redirectURI,
		State:          raw["state"],
		Nonce:          raw["nonce"],
		PromptSet:      splitSet(raw["prompt"]),
		ACRValues:      strings.Fields(raw["acr_values"]),
		LoginHint:      raw["login_hint"],
		UILocales:      raw["ui_locales"],
		CodeChallenge:  raw["code_challenge"],
		CodeChallengeMethod: raw["code_challenge_method"],
		Raw:            raw,
	}
	req.Raw["client_id"] = clientID

	if req.CodeChallenge != "" && req.CodeChallengeMethod != "S256" {
		return nil, clientError("invalid_request", "code_challenge_method must be S256")
	}

	for _, acr := range req.ACRValues {
		if strings.HasPrefix(acr, "idp:") {
			req.IDP = strings.TrimPrefix(acr, "idp:")
		}
	}

	if maxAgeStr, ok := raw["max_age"]; ok && maxAgeStr != "" {
		maxAge, err := strconv.Atoi(maxAgeStr)
		if err != nil {
			return nil, clientError("invalid_request", "max_age must be an integer")
		}
		req.MaxAge = &maxAge
	}

	return req, nil
}

// ValidateClient resolves the client, verifies redirect_uri, scopes
// and response_type/response_mode compatibility, and binds the client
// record to the request. An unknown client or an unregistered
// redirect_uri is ErrorType::User (there is no verified place to
// redirect to); every other error here is ErrorType::Client.
func (v *RequestValidator) ValidateClient(req *model.ValidatedRequest) *AuthError {
	client, err := v.Clients.GetClient(req.Raw["client_id"])
	if err != nil {
		return clientError("server_error", "failed to resolve client")
	}
	if client == nil {
		return userError("unauthorized_client", "unknown client")
	}
	if !client.AllowsRedirectURI(req.RedirectURI) {
		return userError("invalid_request", "redirect_uri is not registered for this client")
	}
	if !client.AllowsResponseType(req.ResponseType) {
		return clientError("unauthorized_client", "response_type not permitted for this client")
	}
	for _, scope := range req.AllScopes() {
		if !client.AllowsScope(scope) {
			return clientError("invalid_scope", fmt.Sprintf("scope %q is not permitted for this client", scope))
		}
	}
	req.Client = client
	return nil
}

func resolveResponseMode(responseType, requested string) (model.ResponseMode, *AuthError) {
	defaultMode := model.ResponseModeQuery
	if responseType != "code" {
		defaultMode = model.ResponseModeFragment
	}
	if requested == "" {
		return defaultMode, nil
	}
	switch model.ResponseMode(requested) {
	case model.ResponseModeQuery, model.ResponseModeFragment, model.ResponseModeFormPost:
		return model.ResponseMode(requested), nil
	default:
		return "", clientError("invalid_request", "unsupported response_mode")
	}
}

func splitScopes(scope string) (identity []string, resource []string) {
	identitySet := map[string]bool{"openid": true, "profile": true, "email": true, "address": true, "phone": true, "offline_access": true}
	for _, s := range strings.Fields(scope) {
		if identitySet[s] {
			identity = append(identity, s)
		} else {
			resource = append(resource, s)
		}
	}
	return identity, resource
}

func splitSet(value string) map[string]bool {
	set := map[string]bool{}
	for _, v := range strings.Fields(value) {
		set[v] = true
	}
	return set
}
