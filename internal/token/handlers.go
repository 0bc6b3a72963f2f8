package token

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/store"
)

// Handlers groups the HTTP surface for token redemption, userinfo and
// the JWKS document.
type Handlers struct {
	service *Service
	store   store.Storer
}

func NewHandlers(service *Service, st store.Storer) *Handlers {
	return &Handlers{service: service, store: st}
}

// JWKS serves the signing key set at /jwks.
func (h *Handlers) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if err := json.NewEncoder(w).Encode(h.service.keys.Doc); err != nil {
		http.Error(w, "failed to encode JWKS", http.StatusInternalServerError)
	}
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeTokenError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(tokenErrorResponse{Error: code, ErrorDescription: description})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	IDToken     string `json:"id_token,omitempty"`
}

// Token implements POST /token: redeems a single-use authorization
// code for an access token and, for openid-scoped requests, an id
// token. Grounded on the teacher's Token handler.
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request) {
	client, err := h.authenticateClient(r)
	if err != nil {
		writeTokenError(w, http.StatusUnauthorized, "invalid_client", err.Error())
		return
	}

	if err := r.ParseForm(); err != nil {
		writeTokenError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	if r.FormValue("grant_type") != "authorization_code" {
		writeTokenError(w, http.StatusBadRequest, "unsupported_grant_type", "only authorization_code is supported")
		return
	}

	codeValue := r.FormValue("code")
	code, err := h.store.GetAuthorizationCode(codeValue)
	if err != nil {
		writeTokenError(w, http.StatusInternalServerError, "server_error", "failed to look up authorization code")
		return
	}
	if code == nil {
		writeTokenError(w, http.StatusBadRequest, "invalid_grant", "unknown or expired authorization code")
		return
	}
	if code.ClientID != client.ID {
		writeTokenError(w, http.StatusBadRequest, "invalid_grant", "authorization code was not issued to this client")
		return
	}
	if code.RedirectURI != r.FormValue("redirect_uri") {
		writeTokenError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri does not match")
		return
	}
	if code.CodeChallenge != nil {
		verifier := r.FormValue("code_verifier")
		method := ""
		if code.CodeChallengeMethod != nil {
			method = *code.CodeChallengeMethod
		}
		if !ValidatePKCE(verifier, *code.CodeChallenge, method) {
			writeTokenError(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
			return
		}
	}

	scopes := strings.Fields(code.Scopes)

	accessToken, err := h.service.IssueAccessToken(client.ID, code.UserID, scopes)
	if err != nil {
		writeTokenError(w, http.StatusInternalServerError, "server_error", "failed to issue access token")
		return
	}

	resp := tokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.service.cfg.TokenTTL.Seconds()),
	}

	if containsScope(scopes, "openid") {
		var nonce string
		if code.Nonce != nil {
			nonce = *code.Nonce
		}
		idToken, err := h.service.IssueIDToken(client.ID, code.UserID, nonce, code.AuthTime, scopes)
		if err != nil {
			writeTokenError(w, http.StatusInternalServerError, "server_error", "failed to issue id token")
			return
		}
		resp.IDToken = idToken
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}

// UserInfo implements GET /userinfo, reading the subject stashed in
// the request context by the bearer-token middleware.
func (h *Handlers) UserInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := SubjectFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := h.store.GetUserByID(userID)
	if err != nil || user == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"sub":   user.ID,
		"email": user.Email,
		"name":  user.Name,
	})
}

func (h *Handlers) authenticateClient(r *http.Request) (*store.Client, error) {
	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("malformed form body")
		}
		clientID = r.FormValue("client_id")
		clientSecret = r.FormValue("client_secret")
	}
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("client credentials required")
	}

	client, err := h.store.GetClient(clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("unknown client")
	}
	if bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)) != nil {
		return nil, fmt.Errorf("invalid client secret")
	}
	return client, nil
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
