package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const stateAudience = "oauth-state"

// StateSigner issues the short-lived HS256 token passed as the OAuth "state" parameter.
// It binds the provider round trip to one verification session.
type StateSigner struct {
	secret []byte
	issuer string
}

func NewStateSigner(secret, issuer string) (*StateSigner, error) {
	if len(secret) < 16 {
		return nil, errors.New("oauth state secret must be at least 16 bytes")
	}
	return &StateSigner{secret: []byte(secret), issuer: issuer}, nil
}

func (s *StateSigner) Sign(sessionID string, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   sessionID,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse returns the session id carried by a state token.
func (s *StateSigner) Parse(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
