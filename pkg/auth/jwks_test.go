package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/agenda-sync/pkg/config"
)

const testIssuer = "https://auth.example.com"

// createTestToken creates an unsigned JWT (alg none) for dev mode.
func createTestToken(claims *Claims) string {
	header, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	payload, _ := json.Marshal(claims)
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "."
}

// rsaKeySet returns a private key and the JWKS document publishing it.
func rsaKeySet(t *testing.T, kid string) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	doc, err := json.Marshal(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	require.NoError(t, err)
	return key, doc
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func userClaims(issuer string, expires time.Time) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email: "sofia@retailmax.mx",
		Roles: []string{"scheduler"},
	}
}

func TestJWKSClient_DevModeParsesWithoutVerification(t *testing.T) {
	client, err := NewJWKSClient(context.Background(), config.AuthConfig{EnableVerification: false})
	require.NoError(t, err)

	claims, err := client.ValidateToken(createTestToken(userClaims(testIssuer, time.Now().Add(time.Hour))))
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "sofia@retailmax.mx", claims.Email)
	assert.Equal(t, []string{"scheduler"}, claims.Roles)
}

func TestJWKSClient_DevModeRejectsMalformed(t *testing.T) {
	client, err := NewJWKSClient(context.Background(), config.AuthConfig{})
	require.NoError(t, err)

	for _, token := range []string{"", "not-a-valid-token", "eyJhbGciOiJub25lIn0.!!!invalid!!!."} {
		_, err := client.ValidateToken(token)
		assert.Error(t, err, "token %q", token)
	}
}

func TestJWKSClient_VerifiesSignature(t *testing.T) {
	key, doc := rsaKeySet(t, "k1")
	client, err := NewStaticJWKSClient(map[string][]byte{testIssuer: doc})
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		claims, err := client.ValidateToken(signToken(t, key, "k1", userClaims(testIssuer, time.Now().Add(time.Hour))))
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.Subject)
	})

	t.Run("expired token", func(t *testing.T) {
		_, err := client.ValidateToken(signToken(t, key, "k1", userClaims(testIssuer, time.Now().Add(-time.Hour))))
		assert.Error(t, err)
	})

	t.Run("unknown issuer", func(t *testing.T) {
		_, err := client.ValidateToken(signToken(t, key, "k1", userClaims("https://evil.example.com", time.Now().Add(time.Hour))))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unauthorized issuer")
	})

	t.Run("wrong key", func(t *testing.T) {
		other, _ := rsaKeySet(t, "k1")
		_, err := client.ValidateToken(signToken(t, other, "k1", userClaims(testIssuer, time.Now().Add(time.Hour))))
		assert.Error(t, err)
	})

	t.Run("unsigned token", func(t *testing.T) {
		_, err := client.ValidateToken(createTestToken(userClaims(testIssuer, time.Now().Add(time.Hour))))
		assert.Error(t, err)
	})
}

func TestNewStaticJWKSClient_InvalidKeySet(t *testing.T) {
	_, err := NewStaticJWKSClient(map[string][]byte{testIssuer: []byte("{not json")})
	assert.Error(t, err)
}

func TestJWKSClient_FileEndpoint(t *testing.T) {
	key, doc := rsaKeySet(t, "file-key")
	path := filepath.Join(t.TempDir(), "jwks.json")
	require.NoError(t, os.WriteFile(path, doc, 0o600))

	client, err := NewJWKSClient(context.Background(), config.AuthConfig{
		EnableVerification: true,
		JWKSEndpoints:      map[string]string{testIssuer: "file://" + path},
	})
	require.NoError(t, err)

	claims, err := client.ValidateToken(signToken(t, key, "file-key", userClaims(testIssuer, time.Now().Add(time.Hour))))
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)

	_, err = NewJWKSClient(context.Background(), config.AuthConfig{
		EnableVerification: true,
		JWKSEndpoints:      map[string]string{testIssuer: "file://" + filepath.Join(t.TempDir(), "missing.json")},
	})
	assert.Error(t, err)
}
