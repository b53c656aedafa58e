package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// CookieMode selects where authentication cookies are visible.
type CookieMode string

const (
	// CookieModeWebFront scopes cookies to the protocol endpoints only.
	CookieModeWebFront CookieMode = "webfront"
	// CookieModeRoot scopes cookies to the whole site; any request can renew them.
	CookieModeRoot CookieMode = "root"
	// CookieModeNone disables cookies: the bearer token is the only carrier.
	CookieModeNone CookieMode = "none"
)

// UnmarshalText implements encoding.TextUnmarshaler for CookieMode.
func (m *CookieMode) UnmarshalText(text []byte) error {
	v := CookieMode(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case CookieModeWebFront, CookieModeRoot, CookieModeNone:
		*m = v
		return nil
	default:
		return fmt.Errorf("invalid CookieMode: %q (valid options: webfront, root, none)", v)
	}
}

// WebFrontConfig controls the authentication protocol.
type WebFrontConfig struct {
	// EntryPath roots every protocol endpoint.
	EntryPath string `env:"ENTRY_PATH" envDefault:"/.webfront"`

	CookieMode         CookieMode `env:"COOKIE_MODE"          envDefault:"webfront"`
	CookieName         string     `env:"COOKIE_NAME"          envDefault:".webFront"`
	UnsafeCookieName   string     `env:"UNSAFE_COOKIE_NAME"   envDefault:".webFrontLT"`
	CookieDomain       string     `env:"COOKIE_DOMAIN"        envDefault:""`
	CookieSecureAlways bool       `env:"COOKIE_SECURE_ALWAYS" envDefault:"false"`

	// ExpireTimeSpan is the lifetime of a fresh login.
	ExpireTimeSpan time.Duration `env:"EXPIRE_TIME_SPAN" envDefault:"20m"`
	// SlidingExpirationTime extends expiration on activity when positive.
	SlidingExpirationTime time.Duration `env:"SLIDING_EXPIRATION_TIME" envDefault:"0s"`
	// CriticalExpireTimeSpan stamps a critical expiration on fresh logins when positive.
	CriticalExpireTimeSpan time.Duration `env:"CRITICAL_EXPIRE_TIME_SPAN" envDefault:"0s"`
	// UnsafeExpireTimeSpan is the lifetime of the unsafe identity cookie.
	UnsafeExpireTimeSpan time.Duration `env:"UNSAFE_EXPIRE_TIME_SPAN" envDefault:"8784h"`
	// LoginTimeout bounds the time between startLogin and endLogin.
	LoginTimeout time.Duration `env:"LOGIN_TIMEOUT" envDefault:"10m"`

	// AllowedReturnOrigins lists origins accepted for absolute returnUrl values.
	AllowedReturnOrigins []string `env:"ALLOWED_RETURN_ORIGINS" envSeparator:","`

	// UnsafeDirectLoginSchemes enables unsafeDirectLogin for these schemes. Empty disables the endpoint.
	// A listed scheme logs in with its bare payload, so it must never name an
	// interactive provider (OIDC, dev auth); Validate rejects those.
	UnsafeDirectLoginSchemes []string `env:"UNSAFE_DIRECT_LOGIN_SCHEMES" envSeparator:","`
	// UnsafeDirectLoginNetworks are the CIDRs unsafeDirectLogin callers must connect from.
	// The peer address is used as is; forwarding headers are ignored.
	UnsafeDirectLoginNetworks []string `env:"UNSAFE_DIRECT_LOGIN_NETWORKS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`
}

// Sanitize normalises paths and lists.
func (c *WebFrontConfig) Sanitize() {
	c.EntryPath = "/" + strings.Trim(strings.TrimSpace(c.EntryPath), "/")
	if c.EntryPath == "/" {
		c.EntryPath = "/.webfront"
	}
	if c.CookieMode == "" {
		c.CookieMode = CookieModeWebFront
	}
	c.AllowedReturnOrigins = trimList(c.AllowedReturnOrigins, func(s string) string {
		return strings.ToLower(strings.TrimRight(s, "/"))
	})
	c.UnsafeDirectLoginSchemes = trimList(c.UnsafeDirectLoginSchemes, nil)
	c.UnsafeDirectLoginNetworks = trimList(c.UnsafeDirectLoginNetworks, nil)
	if c.SlidingExpirationTime < 0 {
		c.SlidingExpirationTime = 0
	}
	if c.CriticalExpireTimeSpan < 0 {
		c.CriticalExpireTimeSpan = 0
	}
}

// Validate checks durations and origins.
func (c *WebFrontConfig) Validate() error {
	var errs []error
	if c.ExpireTimeSpan <= 0 {
		errs = append(errs, errors.New("WEBFRONT_EXPIRE_TIME_SPAN must be positive"))
	}
	if c.LoginTimeout <= 0 {
		errs = append(errs, errors.New("WEBFRONT_LOGIN_TIMEOUT must be positive"))
	}
	if c.UnsafeExpireTimeSpan <= 0 {
		errs = append(errs, errors.New("WEBFRONT_UNSAFE_EXPIRE_TIME_SPAN must be positive"))
	}
	if c.CookieName == "" || c.UnsafeCookieName == "" || c.CookieName == c.UnsafeCookieName {
		errs = append(errs, errors.New("cookie names must be set and distinct"))
	}
	for _, o := range c.AllowedReturnOrigins {
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" || u.Path != "" {
			errs = append(errs, fmt.Errorf("invalid allowed return origin %q", o))
		}
	}
	for _, n := range c.UnsafeDirectLoginNetworks {
		if _, err := netip.ParsePrefix(n); err != nil {
			errs = append(errs, fmt.Errorf("invalid unsafe direct login network %q", n))
		}
	}
	return errors.Join(errs...)
}

// UnsafeDirectLoginPrefixes parses UnsafeDirectLoginNetworks, skipping invalid entries.
func (c *WebFrontConfig) UnsafeDirectLoginPrefixes() []netip.Prefix {
	out := make([]netip.Prefix, 0, len(c.UnsafeDirectLoginNetworks))
	for _, n := range c.UnsafeDirectLoginNetworks {
		if p, err := netip.ParsePrefix(n); err == nil {
			out = append(out, p.Masked())
		}
	}
	return out
}

// CookiePath returns the path cookies are scoped to.
func (c *WebFrontConfig) CookiePath() string {
	if c.CookieMode == CookieModeRoot {
		return "/"
	}
	return c.EntryPath + "/c/"
}

// KeySource selects where sealing keys come from.
type KeySource string

const (
	KeySourceEnv   KeySource = "env"
	KeySourceRedis KeySource = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for KeySource.
func (s *KeySource) UnmarshalText(text []byte) error {
	v := KeySource(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case KeySourceEnv, KeySourceRedis:
		*s = v
		return nil
	default:
		return fmt.Errorf("invalid KeySource: %q (valid options: env, redis)", v)
	}
}

// KeyRingConfig lists the sealing keys, newest first, as "id:base64url-secret".
type KeyRingConfig struct {
	Source KeySource `env:"SOURCE" envDefault:"env"`
	Keys   []string  `env:"LIST"   envSeparator:","`
	// RedisKey is the Redis list holding keys when Source=redis.
	RedisKey string `env:"REDIS_KEY" envDefault:"webfront:keyring"`
	// ReloadInterval re-reads the Redis list; zero loads once.
	ReloadInterval time.Duration `env:"RELOAD_INTERVAL" envDefault:"1m"`
	// GraceKeys is how many older keys rotate-key keeps next to the new one.
	GraceKeys int `env:"GRACE_KEYS" envDefault:"2"`
}

// Sanitize trims the key list.
func (c *KeyRingConfig) Sanitize() {
	c.Keys = trimList(c.Keys, nil)
	if c.GraceKeys < 0 {
		c.GraceKeys = 0
	}
	if c.ReloadInterval < 0 {
		c.ReloadInterval = 0
	}
}

// Validate requires static keys outside dev mode when reading from env.
func (c *KeyRingConfig) Validate(isDev bool) error {
	if c.Source == KeySourceEnv && len(c.Keys) == 0 && !isDev {
		return errors.New("WEBFRONT_KEYS_LIST is required outside dev mode")
	}
	return nil
}

func trimList(in []string, norm func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if norm != nil {
			s = norm(s)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
