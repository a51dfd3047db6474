// Package sso provides OIDC-based admin login.
package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// UserInfo represents standardized user claims from an OIDC provider.
type UserInfo struct {
	Subject  string // "sub" claim - unique user identifier
	Email    string // User's email address
	Name     string // User's display name
	Verified bool   // Email verification status
}

// Config holds the static OIDC client configuration.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// stateTTL bounds how long a pending login may take.
const stateTTL = 10 * time.Minute

type pendingState struct {
	nonce     string
	expiresAt time.Time
}

// OIDCProvider handles the authorization code flow for admin login.
type OIDCProvider struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config

	mu     sync.Mutex
	states map[string]pendingState
}

// NewOIDCProvider creates a provider via OIDC discovery on the issuer URL.
func NewOIDCProvider(ctx context.Context, cfg Config) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("issuer URL is required for OIDC provider")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required for OIDC provider")
	}
	if err := validateOIDCURL(cfg.IssuerURL, "issuer URL"); err != nil {
		return nil, err
	}
	if err := validateOIDCURL(cfg.RedirectURL, "redirect URL"); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to perform OIDC discovery for %s: %w", cfg.IssuerURL, err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		RedirectURL:  cfg.RedirectURL,
	}

	return &OIDCProvider{
		verifier:     verifier,
		oauth2Config: oauth2Config,
		states:       make(map[string]pendingState),
	}, nil
}

// AuthorizationURL generates the provider login URL with a fresh
// state/nonce pair held until the callback returns.
func (p *OIDCProvider) AuthorizationURL() (string, error) {
	state, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	nonce, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	p.mu.Lock()
	now := time.Now()
	for s, pending := range p.states {
		if now.After(pending.expiresAt) {
			delete(p.states, s)
		}
	}
	p.states[state] = pendingState{nonce: nonce, expiresAt: now.Add(stateTTL)}
	p.mu.Unlock()

	return p.oauth2Config.AuthCodeURL(state, oidc.Nonce(nonce)), nil
}

// Exchange validates the callback state, redeems the code and verifies
// the ID token, returning the provider's user claims.
func (p *OIDCProvider) Exchange(ctx context.Context, state, code string) (*UserInfo, error) {
	p.mu.Lock()
	pending, ok := p.states[state]
	delete(p.states, state)
	p.mu.Unlock()

	if !ok || time.Now().After(pending.expiresAt) {
		return nil, fmt.Errorf("invalid or expired state")
	}

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("token response missing id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id_token: %w", err)
	}
	if idToken.Nonce != pending.nonce {
		return nil, fmt.Errorf("id_token nonce mismatch")
	}

	var claims struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Verified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse id_token claims: %w", err)
	}

	return &UserInfo{
		Subject:  idToken.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Verified: claims.Verified,
	}, nil
}

// validateOIDCURL requires https URLs (http allowed only for localhost).
func validateOIDCURL(rawURL, label string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", label, err)
	}
	if u.Scheme == "https" {
		return nil
	}
	if u.Scheme == "http" && (u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1") {
		return nil
	}
	return fmt.Errorf("%s must use https", label)
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
