package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/target/webfront-auth/internal/core"
	"github.com/target/webfront-auth/internal/data/cryptoutil"
	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	"github.com/target/webfront-auth/internal/observability/metrics"
	"github.com/target/webfront-auth/internal/ports"
)

const tracerName = "github.com/target/webfront-auth/internal/service"

// Options holds the time spans and policies of the web front.
type Options struct {
	ExpireTimeSpan         time.Duration
	SlidingExpirationTime  time.Duration
	CriticalExpireTimeSpan time.Duration
	UnsafeExpireTimeSpan   time.Duration
	LoginTimeout           time.Duration
	AllowedReturnOrigins   []string
	Version                string
}

// WebFrontServiceOptions groups dependencies for WebFrontService.
type WebFrontServiceOptions struct {
	Options       Options
	Keys          *cryptoutil.KeyRing // Required
	Login         ports.LoginService  // Required
	Impersonation ports.ImpersonationService
	Providers     []ports.RemoteProvider
	Clock         core.TimeProvider
	Metrics       *metrics.Recorder
	Logger        *slog.Logger
}

// WebFrontService is the stateless authentication engine: it resolves credentials,
// slides expirations and runs the login flows. It is safe for concurrent use.
type WebFrontService struct {
	opts          Options
	envelope      *Envelope
	login         ports.LoginService
	impersonation ports.ImpersonationService
	providers     map[string]ports.RemoteProvider
	clock         core.TimeProvider
	metrics       *metrics.Recorder
	logger        *slog.Logger
	tracer        trace.Tracer
}

// NewWebFrontService constructs a WebFrontService.
func NewWebFrontService(opts WebFrontServiceOptions) (*WebFrontService, error) {
	if opts.Keys == nil {
		return nil, errors.New("key ring is required")
	}
	if opts.Login == nil {
		return nil, errors.New("login service is required")
	}
	if opts.Options.ExpireTimeSpan <= 0 {
		return nil, errors.New("expire time span must be positive")
	}
	if opts.Options.LoginTimeout <= 0 {
		opts.Options.LoginTimeout = 10 * time.Minute
	}
	origins := make([]string, 0, len(opts.Options.AllowedReturnOrigins))
	for _, o := range opts.Options.AllowedReturnOrigins {
		origins = append(origins, strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/")))
	}
	opts.Options.AllowedReturnOrigins = origins

	providers := make(map[string]ports.RemoteProvider, len(opts.Providers))
	for _, p := range opts.Providers {
		name := p.Scheme()
		if name == "" || name == domainauth.SchemeBasic {
			return nil, fmt.Errorf("invalid remote provider scheme %q", name)
		}
		if _, dup := providers[name]; dup {
			return nil, fmt.Errorf("duplicate remote provider scheme %q", name)
		}
		providers[name] = p
	}

	clock := opts.Clock
	if clock == nil {
		clock = core.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &WebFrontService{
		opts:          opts.Options,
		envelope:      NewEnvelope(opts.Keys, opts.Metrics),
		login:         opts.Login,
		impersonation: opts.Impersonation,
		providers:     providers,
		clock:         clock,
		metrics:       opts.Metrics,
		logger:        logger.With("component", "webfront_service"),
		tracer:        otel.Tracer(tracerName),
	}, nil
}

// Now returns the current instant of the service clock.
func (s *WebFrontService) Now() time.Time { return s.clock.Now() }

// Options returns the configured options.
func (s *WebFrontService) Options() Options { return s.opts }

// Envelope exposes the codec used for cookies, tokens and login data.
func (s *WebFrontService) Envelope() *Envelope { return s.envelope }

// HasBasicLogin reports whether the login service accepts user name and password.
func (s *WebFrontService) HasBasicLogin() bool { return s.login.HasBasicLogin() }

// HasImpersonation reports whether an impersonation service is configured.
func (s *WebFrontService) HasImpersonation() bool { return s.impersonation != nil }

// Schemes lists the login schemes of the login service and the remote providers.
func (s *WebFrontService) Schemes(ctx context.Context) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		if _, ok := seen[name]; !ok && name != "" {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	for _, name := range s.login.Schemes(ctx) {
		add(name)
	}
	remote := make([]string, 0, len(s.providers))
	for name := range s.providers {
		remote = append(remote, name)
	}
	sort.Strings(remote)
	for _, name := range remote {
		add(name)
	}
	return out
}

// CredentialSource tells where a Resolution came from.
type CredentialSource int

const (
	SourceNone CredentialSource = iota
	SourceToken
	SourceCookie
	SourceUnsafeCookie
)

func (c CredentialSource) String() string {
	switch c {
	case SourceToken:
		return "token"
	case SourceCookie:
		return "cookie"
	case SourceUnsafeCookie:
		return "unsafe_cookie"
	default:
		return "none"
	}
}

// Credentials are the raw sealed values presented by a request.
type Credentials struct {
	// Token is the bearer token. When set, cookies are ignored.
	Token        string
	Cookie       string
	UnsafeCookie string
}

// Resolution is the authentication resolved for one request.
type Resolution struct {
	Info   domainauth.AuthenticationInfo
	Source CredentialSource
	// Renewed is set when sliding expiration pushed Info's expiration.
	Renewed bool
	Now     time.Time
}

// Level is the level of the resolved info at resolution time.
func (r Resolution) Level() domainauth.Level { return r.Info.Level(r.Now) }

// Authenticate resolves credentials. A present but invalid token resolves to None
// without looking at cookies; an invalid or missing cookie falls back to the
// unsafe cookie.
func (s *WebFrontService) Authenticate(ctx context.Context, c Credentials) Resolution {
	now := s.clock.Now()
	res := Resolution{Info: domainauth.None, Now: now}

	switch {
	case c.Token != "":
		info, err := s.envelope.UnprotectInfo(cryptoutil.PurposeToken, c.Token)
		if err != nil {
			s.logger.DebugContext(ctx, "rejected bearer token", "error", err)
			return res
		}
		res.Info, res.Source = info, SourceToken
	case c.Cookie != "":
		info, err := s.envelope.UnprotectInfo(cryptoutil.PurposeCookie, c.Cookie)
		if err == nil {
			res.Info, res.Source = info, SourceCookie
			break
		}
		s.logger.DebugContext(ctx, "rejected authentication cookie", "error", err)
	}

	if res.Source == SourceNone && c.UnsafeCookie != "" {
		info, err := s.envelope.UnprotectInfo(cryptoutil.PurposeCookie, c.UnsafeCookie)
		if err != nil {
			s.logger.DebugContext(ctx, "rejected unsafe cookie", "error", err)
			return res
		}
		if info.Level(now) > domainauth.LevelUnsafe {
			info = info.SetExpires(&now)
		}
		res.Info, res.Source = info, SourceUnsafeCookie
	}

	res.Info, res.Renewed = s.slide(res.Info, now)
	return res
}

// slide pushes the expiration of a Normal or Critical info to now+sliding when
// it would otherwise expire sooner.
func (s *WebFrontService) slide(info domainauth.AuthenticationInfo, now time.Time) (domainauth.AuthenticationInfo, bool) {
	sliding := s.opts.SlidingExpirationTime
	if sliding <= 0 || info.Level(now) < domainauth.LevelNormal {
		return info, false
	}
	exp := info.Expires()
	if exp == nil {
		return info, false
	}
	next := now.Add(sliding)
	if !next.After(*exp) {
		return info, false
	}
	return info.SetExpires(&next), true
}

// trusted returns info when it carries at least Normal trust, None otherwise.
// Login services only ever see a prior identity the caller has proven.
func (s *WebFrontService) trusted(info domainauth.AuthenticationInfo, now time.Time) domainauth.AuthenticationInfo {
	if info.Level(now) < domainauth.LevelNormal {
		return domainauth.None
	}
	return info
}

// Refreshable reports whether a client should schedule a refresh for info.
func (s *WebFrontService) Refreshable(info domainauth.AuthenticationInfo, now time.Time) bool {
	return s.opts.SlidingExpirationTime > 0 && info.Level(now) >= domainauth.LevelNormal
}

// CreateToken seals info as a bearer token. None yields an empty token.
func (s *WebFrontService) CreateToken(info domainauth.AuthenticationInfo) (string, error) {
	if info.IsNone() {
		return "", nil
	}
	return s.envelope.ProtectInfo(cryptoutil.PurposeToken, info)
}

// NewLoginInfo is the info issued after a successful login of user at now.
func (s *WebFrontService) NewLoginInfo(user domainauth.UserInfo, now time.Time) domainauth.AuthenticationInfo {
	exp := now.Add(s.opts.ExpireTimeSpan)
	var cexp *time.Time
	if s.opts.CriticalExpireTimeSpan > 0 {
		c := now.Add(s.opts.CriticalExpireTimeSpan)
		cexp = &c
	}
	return domainauth.Create(user, &exp, cexp)
}

// CookieValues are the sealed cookie values to emit for an info.
// An empty Auth means the authentication cookie must be cleared; an empty
// Unsafe means the unsafe cookie is left untouched.
type CookieValues struct {
	Auth          string
	AuthExpires   *time.Time
	Unsafe        string
	UnsafeExpires time.Time
}

// IssueCookies seals info for the cookies. The authentication cookie carries
// Normal and Critical infos only. The unsafe cookie remembers the actual user
// with an already reached expiration so that it always restores as Unsafe.
func (s *WebFrontService) IssueCookies(info domainauth.AuthenticationInfo, now time.Time) (CookieValues, error) {
	var out CookieValues
	if info.Level(now) >= domainauth.LevelNormal {
		sealed, err := s.envelope.ProtectInfo(cryptoutil.PurposeCookie, info)
		if err != nil {
			return CookieValues{}, err
		}
		out.Auth, out.AuthExpires = sealed, info.Expires()
	}
	if actual := info.ActualUser(); !actual.IsAnonymous() && s.opts.UnsafeExpireTimeSpan > 0 {
		sealed, err := s.envelope.ProtectInfo(cryptoutil.PurposeCookie, domainauth.Create(actual, &now, nil))
		if err != nil {
			return CookieValues{}, err
		}
		out.Unsafe, out.UnsafeExpires = sealed, now.Add(s.opts.UnsafeExpireTimeSpan)
	}
	return out, nil
}
