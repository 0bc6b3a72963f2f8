package token

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/config"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/store"
)

type fakeUserStore struct {
	users map[string]*store.User
}

func (f *fakeUserStore) GetUserByID(id string) (*store.User, error)       { return f.users[id], nil }
func (f *fakeUserStore) GetUserByEmail(email string) (*store.User, error) { return nil, nil }
func (f *fakeUserStore) CreateUser(user *store.User) error                { return nil }
func (f *fakeUserStore) GetClient(clientID string) (*store.Client, error) { return nil, nil }
func (f *fakeUserStore) CreateClient(client *store.Client) error          { return nil }
func (f *fakeUserStore) CreateSession(session *store.Session) error       { return nil }
func (f *fakeUserStore) GetSession(sessionID string) (*store.Session, error) {
	return nil, nil
}
func (f *fakeUserStore) DeleteSession(sessionID string) error { return nil }
func (f *fakeUserStore) TouchSession(sessionID string) error  { return nil }
func (f *fakeUserStore) CreateAuthorizationCode(code *store.AuthorizationCode) error {
	return nil
}
func (f *fakeUserStore) GetAuthorizationCode(code string) (*store.AuthorizationCode, error) {
	return nil, nil
}
func (f *fakeUserStore) DeleteAuthorizationCode(code string) error          { return nil }
func (f *fakeUserStore) GetGrant(userID, clientID string) (*store.Grant, error) { return nil, nil }
func (f *fakeUserStore) CreateOrUpdateGrant(grant *store.Grant) error           { return nil }

func testService(t *testing.T) (*Service, *KeySet) {
	t.Helper()
	keys, err := LoadOrGenerateKeys(filepath.Join(t.TempDir(), "signing.pem"))
	if err != nil {
		t.Fatalf("failed to generate keys: %v", err)
	}
	cfg := &config.Config{IssuerURL: "https://issuer.example.com", TokenTTL: time.Hour}
	st := &fakeUserStore{users: map[string]*store.User{
		"user-1": {ID: "user-1", Email: "user@example.com", Name: "Example User"},
	}}
	return NewService(cfg, st, keys), keys
}

func parseWithKey(t *testing.T, raw string, pub interface{}) jwt.MapClaims {
	t.Helper()
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		return pub, nil
	})
	if err != nil {
		t.Fatalf("failed to parse signed token: %v", err)
	}
	return claims
}

func TestIssueAccessTokenIsVerifiableAndCarriesScopes(t *testing.T) {
	svc, keys := testService(t)

	raw, err := svc.IssueAccessToken("client-1", "user-1", []string{"openid", "profile"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims := parseWithKey(t, raw, keys.PublicKey)
	if claims["scp"] != "openid profile" {
		t.Errorf("scp = %v, want \"openid profile\"", claims["scp"])
	}
	if claims["sub"] != "user-1" || claims["iss"] != "https://issuer.example.com" {
		t.Errorf("claims = %+v, want sub=user-1 iss=issuer.example.com", claims)
	}
}

func TestIssueAccessTokenSetsKeyIDHeader(t *testing.T) {
	svc, keys := testService(t)

	raw, err := svc.IssueAccessToken("client-1", "user-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		t.Fatalf("failed to parse token header: %v", err)
	}
	if parsed.Header["kid"] != keys.KeyID {
		t.Errorf("kid header = %v, want %v", parsed.Header["kid"], keys.KeyID)
	}
}

func TestIssueIDTokenIncludesProfileAndEmailWhenScoped(t *testing.T) {
	svc, keys := testService(t)

	raw, err := svc.IssueIDToken("client-1", "user-1", "nonce-abc", time.Now(), []string{"profile", "email"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims := parseWithKey(t, raw, keys.PublicKey)
	if claims["name"] != "Example User" || claims["email"] != "user@example.com" {
		t.Errorf("claims = %+v, want name/email populated from the granted scopes", claims)
	}
	if claims["nonce"] != "nonce-abc" {
		t.Errorf("nonce = %v, want nonce-abc", claims["nonce"])
	}
}

func TestIssueIDTokenOmitsProfileAndEmailWhenNotScoped(t *testing.T) {
	svc, keys := testService(t)

	raw, err := svc.IssueIDToken("client-1", "user-1", "", time.Now(), []string{"openid"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims := parseWithKey(t, raw, keys.PublicKey)
	if _, hasName := claims["name"]; hasName {
		t.Errorf("name should be omitted without the profile scope, got %v", claims["name"])
	}
	if _, hasEmail := claims["email"]; hasEmail {
		t.Errorf("email should be omitted without the email scope, got %v", claims["email"])
	}
}
