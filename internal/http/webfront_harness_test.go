package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/publicsuffix"

	"github.com/target/webfront-auth/config"
	"github.com/target/webfront-auth/internal/core"
	"github.com/target/webfront-auth/internal/data/cryptoutil"
	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	"github.com/target/webfront-auth/internal/domain/model"
	authmocks "github.com/target/webfront-auth/internal/mocks/auth"
	"github.com/target/webfront-auth/internal/observability/metrics"
	"github.com/target/webfront-auth/internal/ports"
	"github.com/target/webfront-auth/internal/service"
	"github.com/target/webfront-auth/internal/testutil"
)

const entry = "/.webfront"

// harness runs the router on a test server with a cookie-aware client.
// The clock starts at the real time so that the jar keeps the cookies.
type harness struct {
	srv      *httptest.Server
	client   *http.Client
	clock    *core.FixedTimeProvider
	svc      *service.WebFrontService
	users    *authmocks.MemoryUserRepository
	provider *authmocks.MockRemoteProvider
	albert   domainauth.UserInfo
	paula    domainauth.UserInfo
}

type harnessConfig struct {
	options       service.Options
	basicLogin    bool
	mode          config.CookieMode
	allower       ports.UnsafeDirectLoginAllower
	impersonation ports.ImpersonationService
	app           http.Handler
	registry      *prometheus.Registry
}

type harnessOption func(*harnessConfig)

func withSliding(d time.Duration) harnessOption {
	return func(c *harnessConfig) { c.options.SlidingExpirationTime = d }
}

func withoutBasicLogin() harnessOption {
	return func(c *harnessConfig) { c.basicLogin = false }
}

func withCookieMode(m config.CookieMode) harnessOption {
	return func(c *harnessConfig) { c.mode = m }
}

func withAllower(a ports.UnsafeDirectLoginAllower) harnessOption {
	return func(c *harnessConfig) { c.allower = a }
}

func withApp(h http.Handler) harnessOption {
	return func(c *harnessConfig) { c.app = h }
}

func withRegistry(reg *prometheus.Registry) harnessOption {
	return func(c *harnessConfig) { c.registry = reg }
}

func withStaticImpersonation() harnessOption {
	return func(c *harnessConfig) { c.impersonation = &authmocks.StaticImpersonation{} }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{
		options: service.Options{
			ExpireTimeSpan:       20 * time.Minute,
			UnsafeExpireTimeSpan: 24 * time.Hour,
			LoginTimeout:         10 * time.Minute,
			AllowedReturnOrigins: []string{"https://app.example.com"},
			Version:              "test",
		},
		basicLogin: true,
		mode:       config.CookieModeWebFront,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := core.NewFixedTimeProvider(time.Now().UTC().Truncate(time.Second))
	users := authmocks.NewMemoryUserRepository()
	albert := createTestUser(t, users, "Albert", "success")
	paula := createTestUser(t, users, "Paula", "")
	require.NoError(t, users.LinkExternal(context.Background(), &model.ExternalLogin{UserID: albert.ID, Scheme: "Oidc", Key: "albert-sub"}))

	if imp, ok := cfg.impersonation.(*authmocks.StaticImpersonation); ok {
		imp.Impersonators = []string{"Albert"}
		imp.Users = []domainauth.UserInfo{albert.UserInfo(), paula.UserInfo()}
	}

	var recorder *metrics.Recorder
	if cfg.registry != nil {
		recorder = metrics.NewRecorder(nil, cfg.registry)
	}

	provider := authmocks.NewMockRemoteProvider("Oidc", "albert-sub")
	svc, err := service.NewWebFrontService(service.WebFrontServiceOptions{
		Options: cfg.options,
		Keys:    testKeyRing(t),
		Login: service.NewUserLoginService(service.UserLoginServiceOptions{
			Users:           users,
			ExternalSchemes: []string{"Oidc"},
			BasicLogin:      cfg.basicLogin,
			Clock:           clock,
		}),
		Impersonation: cfg.impersonation,
		Providers:     []ports.RemoteProvider{provider},
		Clock:         clock,
		Metrics:       recorder,
	})
	require.NoError(t, err)

	path := entry + "/c/"
	if cfg.mode == config.CookieModeRoot {
		path = "/"
	}
	services := RouterServices{
		WebFront: svc,
		Cookies: CookieConfig{
			Mode:       cfg.mode,
			Name:       ".webFront",
			UnsafeName: ".webFrontLT",
			Path:       path,
		},
		EntryPath: entry,
		Allower:   cfg.allower,
		Metrics:   recorder,
		App:       cfg.app,
		Logger:    discardLogger(),
	}
	if cfg.registry != nil {
		services.Gatherer = cfg.registry
	}
	srv := httptest.NewServer(NewRouter(services))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Timeout: 10 * time.Second,
	}

	return &harness{
		srv:      srv,
		client:   client,
		clock:    clock,
		svc:      svc,
		users:    users,
		provider: provider,
		albert:   albert.UserInfo(),
		paula:    paula.UserInfo(),
	}
}

func createTestUser(t *testing.T, users *authmocks.MemoryUserRepository, name, password string) *model.User {
	t.Helper()
	var hash string
	if password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		hash = string(b)
	}
	u, err := users.Create(context.Background(), &model.CreateUserRequest{Name: name, PasswordHash: hash})
	require.NoError(t, err)
	return u
}

func testKeyRing(t *testing.T) *cryptoutil.KeyRing {
	t.Helper()
	return testutil.TestKeyRing(t)
}

type response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Cookies []*http.Cookie
}

// do sends a request. Extra headers are given as name, value pairs.
func (h *harness) do(t *testing.T, method, path string, body io.Reader, contentType string, headers ...string) response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, h.srv.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{Status: resp.StatusCode, Header: resp.Header, Body: data, Cookies: resp.Cookies()}
}

func (h *harness) get(t *testing.T, path string, headers ...string) response {
	t.Helper()
	return h.do(t, http.MethodGet, path, nil, "", headers...)
}

func (h *harness) postJSON(t *testing.T, path, body string, headers ...string) response {
	t.Helper()
	return h.do(t, http.MethodPost, path, strings.NewReader(body), "application/json", headers...)
}

func (h *harness) postForm(t *testing.T, path string, form url.Values) response {
	t.Helper()
	return h.do(t, http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

// wireResponse decodes the refresh-shaped body.
type wireResponse struct {
	Info               *domainauth.AuthenticationInfo `json:"info"`
	Token              *string                        `json:"token"`
	Refreshable        bool                           `json:"refreshable"`
	Schemes            []string                       `json:"schemes"`
	Version            string                         `json:"version"`
	LoginFailureCode   int                            `json:"loginFailureCode"`
	LoginFailureReason string                         `json:"loginFailureReason"`
	ErrorID            string                         `json:"errorId"`
	ErrorText          string                         `json:"errorText"`
	InitialScheme      string                         `json:"initialScheme"`
	CallingScheme      string                         `json:"callingScheme"`
	UserData           map[string]string              `json:"userData"`
}

func decodeWire(t *testing.T, body []byte) wireResponse {
	t.Helper()
	var w wireResponse
	require.NoError(t, json.Unmarshal(body, &w), string(body))
	return w
}

func (h *harness) refresh(t *testing.T, query string, headers ...string) wireResponse {
	t.Helper()
	resp := h.get(t, entry+"/c/refresh"+query, headers...)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	return decodeWire(t, resp.Body)
}

func (h *harness) basicLogin(t *testing.T, userName, password string) wireResponse {
	t.Helper()
	body, err := json.Marshal(map[string]string{"userName": userName, "password": password})
	require.NoError(t, err)
	resp := h.postJSON(t, entry+"/c/basicLogin", string(body))
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	return decodeWire(t, resp.Body)
}

var (
	completionField = regexp.MustCompile(`name="s" value="([^"]*)"`)
	returnURLField  = regexp.MustCompile(`name="r" value="([^"]*)"`)
)

// remoteLogin drives startLogin and the provider callback and returns the
// form the callback page posts to endLogin.
func (h *harness) remoteLogin(t *testing.T, startQuery url.Values, callbackExtra url.Values) url.Values {
	t.Helper()
	start := h.get(t, entry+"/c/startLogin?"+startQuery.Encode())
	require.Equal(t, http.StatusFound, start.Status, string(start.Body))
	loc, err := url.Parse(start.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "mock-idp", loc.Host)

	q := url.Values{"state": {loc.Query().Get("state")}}
	for k, v := range callbackExtra {
		q[k] = v
	}
	cb := h.get(t, entry+"/c/callback/Oidc?"+q.Encode())
	require.Equal(t, http.StatusOK, cb.Status, string(cb.Body))

	s := completionField.FindSubmatch(cb.Body)
	require.NotNil(t, s, string(cb.Body))
	r := returnURLField.FindSubmatch(cb.Body)
	require.NotNil(t, r, string(cb.Body))
	return url.Values{"s": {string(s[1])}, "r": {html.UnescapeString(string(r[1]))}}
}

// postedMessage extracts the data of the postMessage page.
func postedMessage(t *testing.T, body []byte) wireResponse {
	t.Helper()
	m := regexp.MustCompile(`(?s)data:\s*(\{.*\})\s*\};`).FindSubmatch(body)
	require.NotNil(t, m, string(body))
	return decodeWire(t, bytes.TrimSpace(m[1]))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
