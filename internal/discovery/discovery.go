// Package discovery serves the static OIDC discovery document. This is
// ambient surface any OIDC authorization server ships, not itself part
// of the interaction state machine (see SPEC_FULL.md §4); the teacher
// builds this same map[string]interface{} by hand in
// OIDCHandler.Discovery.
package discovery

import (
	"encoding/json"
	"net/http"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/config"
)

// Handler serves /.well-known/openid-configuration.
func Handler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]interface{}{
			"issuer":                                cfg.IssuerURL,
			"authorization_endpoint":                cfg.IssuerURL + "/connect/authorize",
			"token_endpoint":                         cfg.IssuerURL + "/token",
			"userinfo_endpoint":                      cfg.IssuerURL + "/userinfo",
			"jwks_uri":                               cfg.IssuerURL + "/jwks",
			"end_session_endpoint":                   cfg.IssuerURL + "/logout",
			"response_types_supported":               []string{"code", "token", "id_token", "code id_token", "code token", "id_token token", "code id_token token"},
			"response_modes_supported":               []string{"query", "fragment", "form_post"},
			"subject_types_supported":                []string{"public"},
			"id_token_signing_alg_values_supported":  []string{"RS256"},
			"scopes_supported":                       []string{"openid", "profile", "email"},
			"token_endpoint_auth_methods_supported":  []string{"client_secret_basic", "client_secret_post"},
			"code_challenge_methods_supported":       []string{"S256"},
			"claims_supported":                       []string{"sub", "email", "name"},
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(doc)
	}
}
