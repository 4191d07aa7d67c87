package linkedin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL  = "https://www.linkedin.com/oauth/v2/authorization"
	DefaultTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
)

// Scopes requested on connect.
var Scopes = []string{"openid", "profile", "w_member_social"}

var (
	ErrClientIDMissing    = errors.New("LinkedIn Client ID not configured")
	ErrRedirectURIMissing = errors.New("LinkedIn Redirect URI not configured")
)

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
}

// OAuth builds authorize URLs and exchanges authorization codes.
type OAuth struct {
	cfg        oauth2.Config
	httpClient *http.Client
}

func NewOAuth(c OAuthConfig, httpClient *http.Client) *OAuth {
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	return &OAuth{
		cfg: oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   c.AuthURL,
				TokenURL:  c.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// Check reports the first missing setting needed to start a connect flow.
func (o *OAuth) Check() error {
	if o.cfg.ClientID == "" {
		return ErrClientIDMissing
	}
	if o.cfg.RedirectURL == "" {
		return ErrRedirectURIMissing
	}
	return nil
}

// AuthCodeURL returns the authorize URL carrying state.
func (o *OAuth) AuthCodeURL(state string) (string, error) {
	if err := o.Check(); err != nil {
		return "", err
	}
	return o.cfg.AuthCodeURL(state), nil
}

// Exchange trades an authorization code for an access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (*Token, error) {
	if o.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	}
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token exchange: %w", ErrMalformedResponse)
	}

	out := &Token{AccessToken: tok.AccessToken}
	if !tok.Expiry.IsZero() {
		out.ExpiresAt = tok.Expiry.UTC()
	} else if secs, ok := expiresIn(tok); ok {
		out.ExpiresAt = time.Now().Add(time.Duration(secs) * time.Second).UTC()
	}
	return out, nil
}

func expiresIn(tok *oauth2.Token) (int64, bool) {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}
