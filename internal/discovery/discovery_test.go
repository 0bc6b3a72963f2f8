package discovery

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/config"
)

func TestHandlerServesIssuerDerivedEndpoints(t *testing.T) {
	cfg := &config.Config{IssuerURL: "https://issuer.example.com"}

	rec := httptest.NewRecorder()
	Handler(cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to decode discovery document: %v", err)
	}

	wantEndpoints := map[string]string{
		"issuer":                  "https://issuer.example.com",
		"authorization_endpoint":  "https://issuer.example.com/connect/authorize",
		"token_endpoint":          "https://issuer.example.com/token",
		"userinfo_endpoint":       "https://issuer.example.com/userinfo",
		"jwks_uri":                "https://issuer.example.com/jwks",
		"end_session_endpoint":    "https://issuer.example.com/logout",
	}
	for key, want := range wantEndpoints {
		if got := doc[key]; got != want {
			t.Errorf("doc[%q] = %v, want %v", key, got, want)
		}
	}

	codeChallengeMethods, ok := doc["code_challenge_methods_supported"].([]interface{})
	if !ok || len(codeChallengeMethods) != 1 || codeChallengeMethods[0] != "S256" {
		t.Errorf("code_challenge_methods_supported = %v, want [\"S256\"]", doc["code_challenge_methods_supported"])
	}
}
