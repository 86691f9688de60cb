package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/salonbook/salonbook/libs/auth"
	"github.com/salonbook/salonbook/services/booking-service/internal/verification"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

type IDTokenVerifier interface {
	Verify(ctx context.Context, raw string) (auth.GoogleClaims, error)
}

// GoogleOAuth runs the authorization-code flow and trusts only the verified ID token.
type GoogleOAuth struct {
	cfg      *oauth2.Config
	verifier IDTokenVerifier
}

func NewGoogleOAuth(clientID, clientSecret, redirectURL string, verifier IDTokenVerifier) *GoogleOAuth {
	return &GoogleOAuth{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		verifier: verifier,
	}
}

func (g *GoogleOAuth) AuthURL(state, loginHint string) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("prompt", "select_account")}
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}
	return g.cfg.AuthCodeURL(state, opts...)
}

func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (verification.Identity, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return verification.Identity{}, fmt.Errorf("exchange code: %w", err)
	}
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return verification.Identity{}, errors.New("token response has no id_token")
	}
	claims, err := g.verifier.Verify(ctx, raw)
	if err != nil {
		return verification.Identity{}, err
	}
	return verification.Identity{Email: claims.Email, EmailVerified: claims.EmailVerified, Name: claims.Name}, nil
}
