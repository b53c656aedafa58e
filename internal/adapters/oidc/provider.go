package oidc

// Package oidc provides the OpenID Connect remote login scheme of the web front.

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"

	"github.com/target/webfront-auth/internal/ports"
)

// Provider implements ports.RemoteProvider with the authorization code flow.
// It keeps no state: the nonce is derived from the opaque state it is given.
type Provider struct {
	scheme     string
	config     *oauth2.Config
	httpClient *http.Client
	keyExpr    string
	nameExpr   string

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

var _ ports.RemoteProvider = (*Provider)(nil)

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	Scheme       string
	ClientID     string
	ClientSecret string
	// RedirectURL must match the registered callback. When empty, the callback
	// URL computed for each request is used.
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	// KeyExpr and NameExpr are JMESPath expressions over the merged claims.
	KeyExpr    string
	NameExpr   string
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider creates a new OIDC provider. It fetches the discovery document once.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.Scheme == "" {
		return nil, errors.New("scheme is required")
	}
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}
	keyExpr := firstNonEmpty(strings.TrimSpace(config.KeyExpr), "sub")
	nameExpr := firstNonEmpty(strings.TrimSpace(config.NameExpr), "preferred_username || email")
	for _, expr := range []string{keyExpr, nameExpr} {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("invalid claim expression %q: %w", expr, err)
		}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(gooidc.ClientContext(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &Provider{
		scheme:     config.Scheme,
		httpClient: httpClient,
		keyExpr:    keyExpr,
		nameExpr:   nameExpr,
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       strings.Fields(config.Scope),
			Endpoint:     op.Endpoint(),
		},
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
	}, nil
}

// Scheme returns the login scheme name.
func (p *Provider) Scheme() string { return p.scheme }

// Challenge builds the authorization URL carrying the state and its nonce.
func (p *Provider) Challenge(_ context.Context, in ports.ChallengeInput) (string, error) {
	if in.State == "" {
		return "", errors.New("state is required")
	}
	cfg := p.oauthConfig(in.RedirectURL)
	if cfg.RedirectURL == "" {
		return "", errors.New("redirect URL is required")
	}
	return cfg.AuthCodeURL(in.State,
		oauth2.SetAuthURLParam("nonce", nonceFor(in.State)),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	), nil
}

// Complete exchanges the code and maps the claims to {key, name, claims}.
func (p *Provider) Complete(ctx context.Context, in ports.CompleteInput) (ports.CompleteResult, error) {
	res := ports.CompleteResult{State: in.Query.Get("state")}
	if e := in.Query.Get("error"); e != "" {
		return res, fmt.Errorf("provider error: %s", firstNonEmpty(in.Query.Get("error_description"), e))
	}
	code := in.Query.Get("code")
	if code == "" {
		return res, errors.New("authorization code is required")
	}
	if res.State == "" {
		return res, errors.New("state is required")
	}

	ctx = gooidc.ClientContext(ctx, p.httpClient)
	token, err := p.oauthConfig(in.RedirectURL).Exchange(ctx, code)
	if err != nil {
		return res, fmt.Errorf("exchange code for token: %w", err)
	}

	claims, err := p.extractFromIDToken(ctx, token, nonceFor(res.State))
	if err != nil {
		return res, fmt.Errorf("extract id_token: %w", err)
	}
	if claimString(claims, p.keyExpr) == "" || claimString(claims, p.nameExpr) == "" {
		// userinfo is only required when the ID token lacks the key
		if fillErr := p.fillFromUserInfo(ctx, token, claims); fillErr != nil && claimString(claims, p.keyExpr) == "" {
			return res, fmt.Errorf("get user info: %w", fillErr)
		}
	}

	key := claimString(claims, p.keyExpr)
	if key == "" {
		return res, fmt.Errorf("claim expression %q yields no key", p.keyExpr)
	}
	res.Payload = map[string]any{
		"key":    key,
		"name":   claimString(claims, p.nameExpr),
		"claims": claims,
	}
	return res, nil
}

func (p *Provider) oauthConfig(redirectURL string) *oauth2.Config {
	if p.config.RedirectURL != "" || redirectURL == "" {
		return p.config
	}
	cfg := *p.config
	cfg.RedirectURL = redirectURL
	return &cfg
}

func (p *Provider) extractFromIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) (map[string]any, error) {
	claims := make(map[string]any)
	if !p.hasOpenIDScope() {
		return claims, nil
	}
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return nil, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}
	if idTok.Nonce != expectedNonce {
		return nil, errors.New("invalid nonce")
	}
	if err := idTok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse id_token claims: %w", err)
	}
	return claims, nil
}

// fillFromUserInfo adds the userinfo claims that the ID token does not carry.
func (p *Provider) fillFromUserInfo(ctx context.Context, tok *oauth2.Token, claims map[string]any) error {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	extra := make(map[string]any)
	if err := ui.Claims(&extra); err != nil {
		return fmt.Errorf("decode user info: %w", err)
	}
	for k, v := range extra {
		if _, ok := claims[k]; !ok {
			claims[k] = v
		}
	}
	return nil
}

// claimString evaluates expr against claims and renders scalars as strings.
func claimString(claims map[string]any, expr string) string {
	v, err := jmespath.Search(expr, claims)
	if err != nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// nonceFor binds the ID token to the state it was requested with.
func nonceFor(state string) string {
	sum := sha256.Sum256([]byte(state))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// hasOpenIDScope reports whether the configured scopes include "openid".
func (p *Provider) hasOpenIDScope() bool {
	for _, sc := range p.config.Scopes {
		if sc == "openid" {
			return true
		}
	}
	return false
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
