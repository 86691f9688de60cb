package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

type GoogleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	jwt.RegisteredClaims
}

// IDTokenVerifier checks Google-issued OpenID Connect ID tokens for one OAuth client.
type IDTokenVerifier struct {
	keys     *JWKSClient
	clientID string
}

func NewIDTokenVerifier(keys *JWKSClient, clientID string) *IDTokenVerifier {
	return &IDTokenVerifier{keys: keys, clientID: clientID}
}

func (v *IDTokenVerifier) Verify(ctx context.Context, raw string) (GoogleClaims, error) {
	var claims GoogleClaims
	_, err := jwt.ParseWithClaims(raw, &claims, v.keys.Keyfunc(ctx),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return GoogleClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !googleIssuers[claims.Issuer] {
		return GoogleClaims{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if strings.TrimSpace(claims.Email) == "" {
		return GoogleClaims{}, errors.Join(ErrInvalidToken, errors.New("id token has no email"))
	}
	return claims, nil
}
