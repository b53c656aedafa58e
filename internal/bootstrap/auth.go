package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"slices"

	"github.com/target/webfront-auth/config"
	"github.com/target/webfront-auth/internal/adapters/authroles"
	"github.com/target/webfront-auth/internal/adapters/devauth"
	"github.com/target/webfront-auth/internal/adapters/oidc"
	"github.com/target/webfront-auth/internal/core"
	"github.com/target/webfront-auth/internal/data/cryptoutil"
	"github.com/target/webfront-auth/internal/observability/metrics"
	"github.com/target/webfront-auth/internal/ports"
	"github.com/target/webfront-auth/internal/service"
)

// BuildProviders creates the enabled remote login providers.
func BuildProviders(ctx context.Context, cfg config.AuthConfig, logger *slog.Logger) ([]ports.RemoteProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var providers []ports.RemoteProvider

	if cfg.OIDC.Enabled {
		prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
			Scheme:       cfg.OIDC.Scheme,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
			Scope:        cfg.OIDC.Scope,
			DiscoveryURL: cfg.OIDC.DiscoveryURL,
			KeyExpr:      cfg.OIDC.KeyExpr,
			NameExpr:     cfg.OIDC.NameExpr,
		})
		if err != nil {
			return nil, fmt.Errorf("create OIDC provider: %w", err)
		}
		providers = append(providers, prov)
		logger.InfoContext(ctx, "login provider enabled", "scheme", cfg.OIDC.Scheme, "kind", "oidc")
	}

	if cfg.DevAuth.Enabled {
		prov, err := devauth.NewProvider(devauth.Config{
			Scheme:      cfg.DevAuth.Scheme,
			UserKey:     cfg.DevAuth.UserKey,
			UserName:    cfg.DevAuth.UserName,
			CallbackURL: cfg.DevAuth.CallbackURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create dev auth provider: %w", err)
		}
		providers = append(providers, prov)
		logger.WarnContext(ctx, "dev auth provider enabled; do not use in production", "scheme", cfg.DevAuth.Scheme)
	}

	return providers, nil
}

// NewUnsafeDirectLoginAllower allows unsafeDirectLogin for the listed schemes
// from peers inside networks. It returns nil, which hides the endpoint, when
// either list is empty.
//
//nolint:ireturn // a nil interface disables the endpoint.
func NewUnsafeDirectLoginAllower(schemes []string, networks []netip.Prefix) ports.UnsafeDirectLoginAllower {
	if len(schemes) == 0 || len(networks) == 0 {
		return nil
	}
	allowed := slices.Clone(schemes)
	nets := slices.Clone(networks)
	return ports.AllowUnsafeDirectLoginFunc(func(r *http.Request, scheme string) bool {
		if !slices.Contains(allowed, scheme) {
			return false
		}
		addr, ok := peerAddr(r)
		return ok && slices.ContainsFunc(nets, func(p netip.Prefix) bool { return p.Contains(addr) })
	})
}

func peerAddr(r *http.Request) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap(), true
	}
	addr, err := netip.ParseAddr(r.RemoteAddr)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// WebFrontDeps groups what BuildWebFrontService needs.
type WebFrontDeps struct {
	Config    *config.AppConfig
	Keys      *cryptoutil.KeyRing
	Users     core.UserRepository
	Providers []ports.RemoteProvider
	Metrics   *metrics.Recorder
	Clock     core.TimeProvider
	Logger    *slog.Logger
}

// BuildWebFrontService wires the login service, the impersonation policy and
// the remote providers into the authentication service.
func BuildWebFrontService(deps WebFrontDeps) (*service.WebFrontService, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.Users == nil {
		return nil, errors.New("user store is required")
	}
	cfg := deps.Config

	schemes := make([]string, 0, len(deps.Providers))
	for _, p := range deps.Providers {
		schemes = append(schemes, p.Scheme())
	}
	// Direct logins may target schemes without a redirect provider.
	for _, s := range cfg.WebFront.UnsafeDirectLoginSchemes {
		if !slices.Contains(schemes, s) {
			schemes = append(schemes, s)
		}
	}

	login := service.NewUserLoginService(service.UserLoginServiceOptions{
		Users:            deps.Users,
		ExternalSchemes:  schemes,
		BasicLogin:       cfg.Auth.Users.BasicLogin,
		AutoLinkExternal: cfg.Auth.Users.AutoLinkExternal,
		Clock:            deps.Clock,
		Logger:           deps.Logger,
	})

	var impersonation ports.ImpersonationService
	if len(cfg.Auth.Impersonators) > 0 {
		impersonation = authroles.ImpersonationPolicy{
			Impersonators: cfg.Auth.Impersonators,
			Users:         deps.Users,
		}
	}

	wf := cfg.WebFront
	return service.NewWebFrontService(service.WebFrontServiceOptions{
		Options: service.Options{
			ExpireTimeSpan:         wf.ExpireTimeSpan,
			SlidingExpirationTime:  wf.SlidingExpirationTime,
			CriticalExpireTimeSpan: wf.CriticalExpireTimeSpan,
			UnsafeExpireTimeSpan:   wf.UnsafeExpireTimeSpan,
			LoginTimeout:           wf.LoginTimeout,
			AllowedReturnOrigins:   wf.AllowedReturnOrigins,
			Version:                cfg.Version,
		},
		Keys:          deps.Keys,
		Login:         login,
		Impersonation: impersonation,
		Providers:     deps.Providers,
		Clock:         deps.Clock,
		Metrics:       deps.Metrics,
		Logger:        deps.Logger,
	})
}
