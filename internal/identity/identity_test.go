package identity_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zines/internal/identity"
)

const testSecret = "test_jwt_secret"

func sign(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTVerifier_HS256(t *testing.T) {
	v, err := identity.NewJWTVerifier(identity.JWTConfig{Secret: testSecret})
	require.NoError(t, err)

	valid := sign(t, jwt.MapClaims{
		"user_id": "ext-123",
		"email":   "ana@example.com",
		"name":    "Ana",
		"picture": "https://img.example.com/ana.png",
		"exp":     jwt.TimeFunc().Add(time.Hour).Unix(),
	}, testSecret)
	p, err := v.Verify(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, "ext-123", p.ExternalID)
	assert.Equal(t, "ana@example.com", p.Email)
	assert.Equal(t, "Ana", p.DisplayName)
	assert.Equal(t, "https://img.example.com/ana.png", p.PictureURL)

	// Test invalid token (wrong secret)
	wrong := sign(t, jwt.MapClaims{"user_id": "ext-123", "exp": jwt.TimeFunc().Add(time.Hour).Unix()}, "other")
	_, err = v.Verify(context.Background(), wrong)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	_, err = v.Verify(context.Background(), "invalid.token.string")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	// Test expired token
	expired := sign(t, jwt.MapClaims{"user_id": "ext-123", "exp": jwt.TimeFunc().Add(-time.Hour).Unix()}, testSecret)
	_, err = v.Verify(context.Background(), expired)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	noExp := sign(t, jwt.MapClaims{"user_id": "ext-123"}, testSecret)
	_, err = v.Verify(context.Background(), noExp)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestJWTVerifier_FallsBackToSubject(t *testing.T) {
	v, err := identity.NewJWTVerifier(identity.JWTConfig{Secret: testSecret})
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), sign(t, jwt.MapClaims{"sub": "ext-sub", "exp": jwt.TimeFunc().Add(time.Hour).Unix()}, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "ext-sub", p.ExternalID)

	_, err = v.Verify(context.Background(), sign(t, jwt.MapClaims{"exp": jwt.TimeFunc().Add(time.Hour).Unix()}, testSecret))
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestJWTVerifier_IssuerAndAudience(t *testing.T) {
	v, err := identity.NewJWTVerifier(identity.JWTConfig{Secret: testSecret, Issuer: "https://issuer.example.com", Audience: "zines"})
	require.NoError(t, err)
	exp := jwt.TimeFunc().Add(time.Hour).Unix()

	ok := sign(t, jwt.MapClaims{"sub": "a", "exp": exp, "iss": "https://issuer.example.com", "aud": "zines"}, testSecret)
	_, err = v.Verify(context.Background(), ok)
	assert.NoError(t, err)

	badIss := sign(t, jwt.MapClaims{"sub": "a", "exp": exp, "iss": "https://evil.example.com", "aud": "zines"}, testSecret)
	_, err = v.Verify(context.Background(), badIss)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	badAud := sign(t, jwt.MapClaims{"sub": "a", "exp": exp, "iss": "https://issuer.example.com", "aud": "other"}, testSecret)
	_, err = v.Verify(context.Background(), badAud)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestJWTVerifier_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	v, err := identity.NewJWTVerifier(identity.JWTConfig{PublicKeyPEM: string(pemKey)})
	require.NoError(t, err)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "ext-rsa",
		"exp": jwt.TimeFunc().Add(time.Hour).Unix(),
	}).SignedString(key)
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "ext-rsa", p.ExternalID)

	// An HMAC token must not verify against an RSA configuration.
	hmacToken := sign(t, jwt.MapClaims{"sub": "ext-rsa", "exp": jwt.TimeFunc().Add(time.Hour).Unix()}, string(pemKey))
	_, err = v.Verify(context.Background(), hmacToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestNewJWTVerifierRequiresKey(t *testing.T) {
	_, err := identity.NewJWTVerifier(identity.JWTConfig{})
	assert.Error(t, err)
	_, err = identity.NewJWTVerifier(identity.JWTConfig{PublicKeyPEM: "not a key"})
	assert.Error(t, err)
}

func TestStaticVerifier(t *testing.T) {
	v := identity.NewStaticVerifier(map[string]identity.Principal{
		"dev-token": {ExternalID: "dev", Email: "dev@example.com"},
	})
	p, err := v.Verify(context.Background(), "dev-token")
	require.NoError(t, err)
	assert.Equal(t, "dev", p.ExternalID)

	_, err = v.Verify(context.Background(), "other")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}
