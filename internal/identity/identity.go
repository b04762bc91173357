// Package identity verifies identity-provider tokens and turns them into a
// Principal the account layer can find or create a user for.
package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/dgrijalva/jwt-go"
	"github.com/rs/zerolog/log"
)

// ErrInvalidToken means the token did not verify. Callers treat it as "no
// identity".
var ErrInvalidToken = errors.New("invalid token")

// Principal is the verified identity behind a token.
type Principal struct {
	ExternalID  string
	Email       string
	DisplayName string
	PictureURL  string
}

// Verifier turns a bearer token into a Principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// JWTConfig configures a JWTVerifier. PublicKeyPEM selects RS256; otherwise
// Secret selects HS256.
type JWTConfig struct {
	Secret       string
	PublicKeyPEM string
	Issuer       string
	Audience     string
}

// JWTVerifier verifies signed id tokens.
type JWTVerifier struct {
	hmacKey  []byte
	rsaKey   *rsa.PublicKey
	issuer   string
	audience string
}

// NewJWTVerifier creates a new instance of JWTVerifier.
func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	v := &JWTVerifier{issuer: cfg.Issuer, audience: cfg.Audience}
	switch {
	case cfg.PublicKeyPEM != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to parse token public key: %w", err)
		}
		v.rsaKey = key
	case cfg.Secret != "":
		v.hmacKey = []byte(cfg.Secret)
	default:
		return nil, errors.New("identity: a secret or public key is required")
	}
	return v, nil
}

// Verify parses and validates a token, returning the principal if valid.
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString, v.keyFunc)
	if err != nil {
		log.Debug().Err(err).Msg("token validation failed")
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, ok := claims["exp"]; !ok {
		return nil, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrInvalidToken)
	}

	principal := &Principal{
		ExternalID:  stringClaim(claims, "user_id"),
		Email:       stringClaim(claims, "email"),
		DisplayName: stringClaim(claims, "name"),
		PictureURL:  stringClaim(claims, "picture"),
	}
	if principal.ExternalID == "" {
		principal.ExternalID = stringClaim(claims, "sub")
	}
	if principal.ExternalID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return principal, nil
}

func (v *JWTVerifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if v.rsaKey != nil {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.rsaKey, nil
	}
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return v.hmacKey, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// StaticVerifier maps fixed tokens to principals. Development mode only.
type StaticVerifier struct {
	principals map[string]Principal
}

// NewStaticVerifier creates a new instance of StaticVerifier.
func NewStaticVerifier(principals map[string]Principal) *StaticVerifier {
	copied := make(map[string]Principal, len(principals))
	for token, p := range principals {
		copied[token] = p
	}
	return &StaticVerifier{principals: copied}
}

// Verify looks the token up.
func (v *StaticVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	p, ok := v.principals[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &p, nil
}
