// Package token implements the out-of-core TokenIssuer collaborator:
// RSA-signed ID and access tokens, a JWKS document, and the /token and
// /userinfo HTTP endpoints that redeem an authorization code.
//
// Grounded on the teacher's internal/jwks/jwks.go (PEM loading,
// PKCS8/PKCS1 fallback, JWK construction) and
// internal/service/token_service.go (claims shapes, RS256 signing with
// a kid header); key generation-on-first-run is adapted from
// day59_oauth_provider/internal/services/crypto.go, the pack sibling
// that actually generates a key pair rather than requiring one to
// pre-exist on disk.
package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// JWK is a single JSON Web Key (RSA public key, signature use).
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// KeySet holds the loaded signing key and its derived JWKS document.
type KeySet struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	KeyID      string
	Doc        JWKS
}

// LoadOrGenerateKeys loads the RSA signing key from path, generating
// and persisting a fresh 2048-bit key pair if the file doesn't exist
// yet (useful for a first run / local development, same gap
// day59_oauth_provider's crypto.go fills for its own teacher).
func LoadOrGenerateKeys(path string) (*KeySet, error) {
	privateKey, err := readOrGenerate(path)
	if err != nil {
		return nil, err
	}

	publicKey := &privateKey.PublicKey
	keyID := thumbprint(publicKey)

	doc := JWKS{Keys: []JWK{{
		Kty: "RSA",
		Kid: keyID,
		Use: "sig",
		Alg: "RS256",
		N:   base64URLEncode(publicKey.N.Bytes()),
		E:   base64URLEncode(bigIntToBytes(publicKey.E)),
	}}}

	return &KeySet{PrivateKey: privateKey, PublicKey: publicKey, KeyID: keyID, Doc: doc}, nil
}

func readOrGenerate(path string) (*rsa.PrivateKey, error) {
	pemBytes, err := os.ReadFile(path)
	if err == nil {
		return parsePrivateKeyPEM(pemBytes)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	block := &pem.Block{Type: "PRIVATE KEY", Bytes: mustMarshalPKCS8(privateKey)}
	encoded := pem.EncodeToMemory(block)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create key directory: %w", err)
		}
	}
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist generated private key: %w", err)
	}

	return privateKey, nil
}

func mustMarshalPKCS8(key *rsa.PrivateKey) []byte {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal generated private key: %v", err))
	}
	return der
}

func parsePrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block containing private key")
	}

	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKCS8 private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not an RSA key")
	}
	return rsaKey, nil
}

// thumbprint derives a stable key id from the modulus, rather than the
// teacher's per-run random uuid.
func thumbprint(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return base64URLEncode(sum[:])[:16]
}

func base64URLEncode(data []byte) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(data)
}

func bigIntToBytes(i int) []byte {
	b := make([]byte, 4)
	b[0] = byte(i >> 24)
	b[1] = byte(i >> 16)
	b[2] = byte(i >> 8)
	b[3] = byte(i)
	for len(b) > 1 && b[0] == 0 {
		b = b[1:]
	}
	return b
}
