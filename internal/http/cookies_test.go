package httpx

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/webfront-auth/config"
	"github.com/target/webfront-auth/internal/service"
)

func testCookieConfig(mode config.CookieMode) CookieConfig {
	return CookieConfig{Mode: mode, Name: ".webFront", UnsafeName: ".webFrontLT", Path: "/.webfront/c/"}
}

func TestCookieConfigFrom(t *testing.T) {
	wf := config.WebFrontConfig{
		EntryPath:        "/.webfront",
		CookieMode:       config.CookieModeRoot,
		CookieName:       "a",
		UnsafeCookieName: "b",
		CookieDomain:     "example.com",
	}
	c := CookieConfigFrom(wf, true)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, "a", c.Name)
	assert.Equal(t, "b", c.UnsafeName)
	assert.Equal(t, "example.com", c.Domain)
	assert.True(t, c.TrustForwardedProto)
	assert.True(t, c.Enabled())
}

func TestCookieConfig_Credentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer tok")
	req.AddCookie(&http.Cookie{Name: ".webFront", Value: "c"})
	req.AddCookie(&http.Cookie{Name: ".webFrontLT", Value: "u"})

	creds := testCookieConfig(config.CookieModeWebFront).credentials(req)
	assert.Equal(t, service.Credentials{Token: "tok", Cookie: "c", UnsafeCookie: "u"}, creds)

	creds = testCookieConfig(config.CookieModeNone).credentials(req)
	assert.Equal(t, service.Credentials{Token: "tok"}, creds, "cookies are ignored when disabled")

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, testCookieConfig(config.CookieModeWebFront).credentials(req).Token)
}

func TestCookieConfig_Secure(t *testing.T) {
	c := testCookieConfig(config.CookieModeWebFront)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	assert.False(t, c.isSecure(req), "forwarded proto is not trusted by default")

	c.TrustForwardedProto = true
	assert.True(t, c.isSecure(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	assert.True(t, testCookieConfig(config.CookieModeWebFront).isSecure(req))
}

func TestCookieConfig_Write(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	c := testCookieConfig(config.CookieModeWebFront)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := httptest.NewRecorder()
	c.write(rec, req, service.CookieValues{Auth: "a", AuthExpires: &exp, Unsafe: "u", UnsafeExpires: exp})
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "a", cookies[0].Value)
	assert.True(t, exp.Equal(cookies[0].Expires))
	assert.Equal(t, "/.webfront/c/", cookies[0].Path)
	assert.Equal(t, ".webFrontLT", cookies[1].Name)

	rec = httptest.NewRecorder()
	c.write(rec, req, service.CookieValues{})
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1, "the unsafe cookie is left untouched")
	assert.Equal(t, ".webFront", cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)

	rec = httptest.NewRecorder()
	testCookieConfig(config.CookieModeNone).write(rec, req, service.CookieValues{Auth: "a"})
	assert.Empty(t, rec.Result().Cookies())
}
