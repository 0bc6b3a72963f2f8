package token

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/config"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/store"
)

// IDTokenClaims is the ID token's claim set; profile/email claims are
// populated according to which scopes were granted, matching the
// teacher's TokenService.GenerateIDToken.
type IDTokenClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Nonce string `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenClaims is the access token's claim set.
type AccessTokenClaims struct {
	Scopes string `json:"scp"`
	jwt.RegisteredClaims
}

// Service implements response.TokenIssuer plus the /token and
// /userinfo HTTP surface.
type Service struct {
	cfg   *config.Config
	store store.Storer
	keys  *KeySet
}

func NewService(cfg *config.Config, st store.Storer, keys *KeySet) *Service {
	return &Service{cfg: cfg, store: st, keys: keys}
}

// IssueAccessToken implements response.TokenIssuer.
func (s *Service) IssueAccessToken(clientID, subject string, scopes []string) (string, error) {
	now := time.Now()
	claims := AccessTokenClaims{
		Scopes: joinScopes(scopes),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.IssuerURL,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	return s.sign(claims)
}

// IssueIDToken implements response.TokenIssuer.
func (s *Service) IssueIDToken(clientID, subject, nonce string, authTime time.Time, scopes []string) (string, error) {
	user, err := s.store.GetUserByID(subject)
	if err != nil {
		return "", fmt.Errorf("failed to load user for id token: %w", err)
	}

	claims := IDTokenClaims{
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.IssuerURL,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.cfg.TokenTTL)),
		},
	}
	if user != nil {
		for _, scope := range scopes {
			switch scope {
			case "profile":
				claims.Name = user.Name
			case "email":
				claims.Email = user.Email
			}
		}
	}
	return s.sign(claims)
}

func (s *Service) sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.keys.KeyID
	signed, err := t.SignedString(s.keys.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidatePKCE checks a code_verifier against a stored code_challenge,
// matching the S256 transform the validator requires.
func ValidatePKCE(verifier, challenge, method string) bool {
	if challenge == "" {
		return true
	}
	if method != "" && method != "S256" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return computed == challenge
}

func joinScopes(scopes []string) string {
	out := ""
	for i, s := range scopes {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}
