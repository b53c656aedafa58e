package devauth

// Package devauth provides a config-driven RemoteProvider for local development.

import (
	"context"
	"errors"
	"net/url"

	"github.com/target/webfront-auth/internal/ports"
)

// Config controls the dev auth provider behavior.
type Config struct {
	Scheme   string // default "Dev"
	UserKey  string
	UserName string
	// CallbackURL overrides the callback computed for each request.
	CallbackURL string
}

// Provider implements ports.RemoteProvider for local development.
// It short-circuits the remote round trip by redirecting straight back to our
// own callback with the state. Complete returns the configured identity.
type Provider struct {
	scheme      string
	payload     map[string]any
	callbackURL string
}

var _ ports.RemoteProvider = (*Provider)(nil)

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserKey == "" {
		return nil, errors.New("dev auth: UserKey is required")
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "Dev"
	}
	return &Provider{
		scheme:      scheme,
		payload:     map[string]any{"key": cfg.UserKey, "name": cfg.UserName},
		callbackURL: cfg.CallbackURL,
	}, nil
}

// Scheme returns the login scheme name.
func (p *Provider) Scheme() string { return p.scheme }

// Challenge returns the callback URL with the state and a fixed code.
func (p *Provider) Challenge(_ context.Context, in ports.ChallengeInput) (string, error) {
	target := p.callbackURL
	if target == "" {
		target = in.RedirectURL
	}
	if target == "" {
		return "", errors.New("dev auth: redirect URL is required")
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("code", "dev")
	q.Set("state", in.State)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Complete ignores the code and returns the dev identity.
func (p *Provider) Complete(_ context.Context, in ports.CompleteInput) (ports.CompleteResult, error) {
	res := ports.CompleteResult{State: in.Query.Get("state")}
	if in.Query.Get("code") != "dev" {
		return res, errors.New("dev auth: unexpected code")
	}
	res.Payload = map[string]any{"key": p.payload["key"], "name": p.payload["name"]}
	return res, nil
}
