package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/webfront-auth/config"
	"github.com/target/webfront-auth/internal/data/cryptoutil"
	"github.com/target/webfront-auth/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DEV", "true")
	t.Setenv("WEBFRONT_ENTRY_PATH", "auth/")
	t.Setenv("WEBFRONT_COOKIE_MODE", "Root")
	t.Setenv("USERS_SOURCE", "file")
	t.Setenv("IMPERSONATORS", " admin , ,root")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsDev)
	assert.Equal(t, "/auth", cfg.WebFront.EntryPath)
	assert.Equal(t, config.CookieModeRoot, cfg.WebFront.CookieMode)
	assert.Equal(t, "/", cfg.WebFront.CookiePath())
	assert.Equal(t, config.UserSourceFile, cfg.Auth.Users.Source)
	assert.Equal(t, []string{"admin", "root"}, cfg.Auth.Impersonators)
	assert.False(t, cfg.NeedsPostgres())
	assert.False(t, cfg.NeedsRedis())
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("DEV", "false")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("WEBFRONT_KEYS_LIST", "")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "WEBFRONT_KEYS_LIST")
}

func TestBuildKeyRing_Env(t *testing.T) {
	ctx := context.Background()
	k1, err := cryptoutil.GenerateKey()
	require.NoError(t, err)
	k2, err := cryptoutil.GenerateKey()
	require.NoError(t, err)

	res, err := BuildKeyRing(ctx, KeyRingDeps{
		Config: config.KeyRingConfig{Source: config.KeySourceEnv, Keys: []string{k1.String(), k2.String()}},
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	assert.Nil(t, res.Store)
	assert.Equal(t, []string{k1.ID, k2.ID}, res.Ring.IDs())

	_, err = BuildKeyRing(ctx, KeyRingDeps{
		Config: config.KeyRingConfig{Source: config.KeySourceEnv, Keys: []string{"nope"}},
		Logger: discardLogger(),
	})
	require.Error(t, err)

	_, err = BuildKeyRing(ctx, KeyRingDeps{Config: config.KeyRingConfig{Source: config.KeySourceEnv}, Logger: discardLogger()})
	require.Error(t, err)

	res, err = BuildKeyRing(ctx, KeyRingDeps{Config: config.KeyRingConfig{Source: config.KeySourceEnv}, IsDev: true, Logger: discardLogger()})
	require.NoError(t, err)
	assert.Len(t, res.Ring.IDs(), 1)

	_, err = BuildKeyRing(ctx, KeyRingDeps{Config: config.KeyRingConfig{Source: config.KeySourceRedis}, Logger: discardLogger()})
	require.ErrorContains(t, err, "redis client")
}

func TestBuildKeyRing_RedisAndReload(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	cfg := config.KeyRingConfig{Source: config.KeySourceRedis, RedisKey: "test:bootstrap:keyring", GraceKeys: 1}
	res, err := BuildKeyRing(ctx, KeyRingDeps{Config: cfg, Redis: client, Logger: discardLogger()})
	require.NoError(t, err)
	require.NotNil(t, res.Store)
	first := res.Ring.IDs()
	require.Len(t, first, 1)

	// A second instance sees the seeded key instead of minting its own.
	again, err := BuildKeyRing(ctx, KeyRingDeps{Config: cfg, Redis: client, Logger: discardLogger()})
	require.NoError(t, err)
	assert.Equal(t, first, again.Ring.IDs())

	k, err := cryptoutil.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, res.Store.Push(ctx, k))
	require.NoError(t, reloadOnce(ctx, res.Ring, res.Store))
	assert.Equal(t, []string{k.ID, first[0]}, res.Ring.IDs())
}

func TestReloadKeys_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- ReloadKeys(ctx, testutil.TestKeyRing(t), nil, time.Hour, discardLogger()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ReloadKeys did not stop")
	}
	require.NoError(t, ReloadKeys(context.Background(), nil, nil, 0, nil))
}

func TestBuildProviders(t *testing.T) {
	ctx := context.Background()
	providers, err := BuildProviders(ctx, config.AuthConfig{}, discardLogger())
	require.NoError(t, err)
	assert.Empty(t, providers)

	providers, err = BuildProviders(ctx, config.AuthConfig{
		DevAuth: config.DevAuthConfig{Enabled: true, Scheme: "Dev", UserKey: "dev-user", UserName: "dev"},
	}, discardLogger())
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "Dev", providers[0].Scheme())

	_, err = BuildProviders(ctx, config.AuthConfig{
		DevAuth: config.DevAuthConfig{Enabled: true, Scheme: "Dev"},
	}, discardLogger())
	require.Error(t, err)

	idp := httptest.NewServer(http.NotFoundHandler())
	defer idp.Close()
	_, err = BuildProviders(ctx, config.AuthConfig{
		OIDC: config.OIDCConfig{
			Enabled:      true,
			Scheme:       "Oidc",
			ClientID:     "client",
			ClientSecret: "secret",
			DiscoveryURL: idp.URL,
		},
	}, discardLogger())
	require.ErrorContains(t, err, "OIDC provider")
}

func TestNewUnsafeDirectLoginAllower(t *testing.T) {
	loopback := []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("::1/128")}
	assert.Nil(t, NewUnsafeDirectLoginAllower(nil, loopback))
	assert.Nil(t, NewUnsafeDirectLoginAllower([]string{"Custom"}, nil))

	allower := NewUnsafeDirectLoginAllower([]string{"Basic", "Custom"}, loopback)
	require.NotNil(t, allower)
	req := httptest.NewRequest(http.MethodPost, "/.webfront/c/unsafeDirectLogin", nil)

	tests := []struct {
		remote string
		scheme string
		want   bool
	}{
		{remote: "127.0.0.1:5555", scheme: "Custom", want: true},
		{remote: "[::1]:5555", scheme: "Custom", want: true},
		{remote: "[::ffff:127.0.0.1]:5555", scheme: "Custom", want: true},
		{remote: "127.0.0.1:5555", scheme: "custom", want: false},
		{remote: "127.0.0.1:5555", scheme: "Dev", want: false},
		{remote: "192.0.2.1:1234", scheme: "Custom", want: false},
		{remote: "garbage", scheme: "Custom", want: false},
	}
	for _, tt := range tests {
		req.RemoteAddr = tt.remote
		assert.Equal(t, tt.want, allower.AllowUnsafeDirectLogin(req, tt.scheme), "%s %s", tt.remote, tt.scheme)
	}
}

func TestBuildUserStore(t *testing.T) {
	_, err := BuildUserStore(config.UsersConfig{Source: config.UserSourcePostgres}, nil)
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  - id: 1\n    name: Albert\n"), 0o600))
	store, err := BuildUserStore(config.UsersConfig{Source: config.UserSourceFile, FilePath: path}, nil)
	require.NoError(t, err)
	u, err := store.GetByName(context.Background(), "Albert")
	require.NoError(t, err)
	assert.Equal(t, 1, u.ID)

	require.NoError(t, os.WriteFile(path, []byte("users: ["), 0o600))
	_, err = BuildUserStore(config.UsersConfig{Source: config.UserSourceFile, FilePath: path}, nil)
	require.Error(t, err)
}

func TestBuildObservability(t *testing.T) {
	obs := BuildObservability(context.Background(), config.ObservabilityConfig{}, "1.0", discardLogger())
	assert.Nil(t, obs.Sink)
	assert.Nil(t, obs.Registry)
	require.NotNil(t, obs.Recorder)
	require.NoError(t, obs.Close())

	cfg := config.ObservabilityConfig{Metrics: config.ObservabilityMetricsConfig{PrometheusEnabled: true}}
	obs = BuildObservability(context.Background(), cfg, "1.0", discardLogger())
	require.NotNil(t, obs.Registry)
	families, err := obs.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func testAppConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users: []\n"), 0o600))

	cfg := &config.AppConfig{
		IsDev:   true,
		Version: "1.2.3",
		WebFront: config.WebFrontConfig{
			EntryPath:            "/.webfront",
			CookieMode:           config.CookieModeWebFront,
			CookieName:           ".webFront",
			UnsafeCookieName:     ".webFrontLT",
			ExpireTimeSpan:       20 * time.Minute,
			UnsafeExpireTimeSpan: 24 * time.Hour,
			LoginTimeout:         10 * time.Minute,
		},
		Keys: config.KeyRingConfig{Source: config.KeySourceEnv},
		Auth: config.AuthConfig{
			DevAuth:       config.DevAuthConfig{Enabled: true, Scheme: "Dev", UserKey: "dev-user", UserName: "dev"},
			Users:         config.UsersConfig{Source: config.UserSourceFile, FilePath: path, BasicLogin: true, AutoLinkExternal: false},
			Impersonators: []string{"admin"},
		},
		HTTP: config.HTTPConfig{Addr: "127.0.0.1:0"},
		Observability: config.ObservabilityConfig{
			Metrics: config.ObservabilityMetricsConfig{PrometheusEnabled: true},
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildApp(t *testing.T) {
	cfg := testAppConfig(t)
	infra, err := InitInfrastructure(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, infra.DB)
	assert.Nil(t, infra.Redis)

	app, err := BuildApp(context.Background(), cfg, infra, discardLogger())
	require.NoError(t, err)
	srv := httptest.NewServer(app.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/.webfront/c/refresh?schemes&full")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Info    any      `json:"info"`
		Schemes []string `json:"schemes"`
		Version string   `json:"version"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Nil(t, body.Info)
	assert.Equal(t, []string{"Basic", "Dev"}, body.Schemes)
	assert.Equal(t, "1.2.3", body.Version)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)

	// No allowed schemes: the direct login endpoint is hidden.
	direct, err := http.Post(srv.URL+"/.webfront/c/unsafeDirectLogin", "application/json", nil)
	require.NoError(t, err)
	defer direct.Body.Close()
	assert.Equal(t, http.StatusNotFound, direct.StatusCode)
}

func TestServerLifecycle(t *testing.T) {
	server := NewHTTPServer(config.HTTPConfig{Addr: "127.0.0.1:0", ReadTimeout: time.Second, WriteTimeout: time.Second}, http.NotFoundHandler())
	assert.Equal(t, "127.0.0.1:0", server.Addr)
	assert.Equal(t, ":8080", NewHTTPServer(config.HTTPConfig{}, nil).Addr)

	done := make(chan error, 1)
	go func() { done <- ServeHTTP(server, discardLogger()) }()

	// Shutdown may race the listener start; both orders end ServeHTTP cleanly.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, ShutdownHTTPServer(context.Background(), ShutdownConfig{Server: server, Timeout: time.Second, Logger: discardLogger()}))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	require.NoError(t, ShutdownHTTPServer(context.Background(), ShutdownConfig{}))
}
