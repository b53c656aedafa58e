package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/target/webfront-auth/config"
	"github.com/target/webfront-auth/internal/service"
)

// CookieConfig describes the authentication cookies.
type CookieConfig struct {
	Mode       config.CookieMode
	Name       string
	UnsafeName string
	Path       string
	Domain     string
	// SecureAlways marks cookies Secure even on plain HTTP requests.
	SecureAlways bool
	// TrustForwardedProto honours X-Forwarded-Proto when deciding Secure.
	TrustForwardedProto bool
}

// CookieConfigFrom builds a CookieConfig from the application config.
func CookieConfigFrom(wf config.WebFrontConfig, trustForwardedProto bool) CookieConfig {
	return CookieConfig{
		Mode:                wf.CookieMode,
		Name:                wf.CookieName,
		UnsafeName:          wf.UnsafeCookieName,
		Path:                wf.CookiePath(),
		Domain:              wf.CookieDomain,
		SecureAlways:        wf.CookieSecureAlways,
		TrustForwardedProto: trustForwardedProto,
	}
}

// Enabled reports whether cookies are written at all.
func (c CookieConfig) Enabled() bool { return c.Mode != config.CookieModeNone }

// isSecure reports whether the request reached us over HTTPS.
func (c CookieConfig) isSecure(r *http.Request) bool {
	if c.SecureAlways || r.TLS != nil {
		return true
	}
	return c.TrustForwardedProto && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// credentials extracts the bearer token and the cookies of r.
func (c CookieConfig) credentials(r *http.Request) service.Credentials {
	var creds service.Credentials
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		creds.Token = strings.TrimSpace(h[7:])
	}
	if !c.Enabled() {
		return creds
	}
	if ck, err := r.Cookie(c.Name); err == nil {
		creds.Cookie = ck.Value
	}
	if ck, err := r.Cookie(c.UnsafeName); err == nil {
		creds.UnsafeCookie = ck.Value
	}
	return creds
}

func (c CookieConfig) cookie(r *http.Request, name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.Path,
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.isSecure(r),
		SameSite: http.SameSiteLaxMode,
	}
}

// write emits the sealed values. An empty Auth clears the authentication cookie;
// an empty Unsafe leaves the unsafe cookie as it is.
func (c CookieConfig) write(w http.ResponseWriter, r *http.Request, v service.CookieValues) {
	if !c.Enabled() {
		return
	}
	if v.Auth == "" {
		c.clear(w, r, c.Name)
	} else {
		ck := c.cookie(r, c.Name, v.Auth)
		if v.AuthExpires != nil {
			ck.Expires = v.AuthExpires.UTC()
		}
		http.SetCookie(w, ck)
	}
	if v.Unsafe != "" {
		ck := c.cookie(r, c.UnsafeName, v.Unsafe)
		ck.Expires = v.UnsafeExpires.UTC()
		http.SetCookie(w, ck)
	}
}

// clear expires a cookie with the attributes it was set with.
func (c CookieConfig) clear(w http.ResponseWriter, r *http.Request, name string) {
	if !c.Enabled() {
		return
	}
	ck := c.cookie(r, name, "")
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0).UTC()
	http.SetCookie(w, ck)
}
