package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/target/webfront-auth/internal/core"
	"github.com/target/webfront-auth/internal/data/cryptoutil"
	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	"github.com/target/webfront-auth/internal/domain/model"
	authmocks "github.com/target/webfront-auth/internal/mocks/auth"
	"github.com/target/webfront-auth/internal/ports"
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *WebFrontService
	clock    *core.FixedTimeProvider
	users    *authmocks.MemoryUserRepository
	provider *authmocks.MockRemoteProvider
	keys     *cryptoutil.KeyRing
	albert   domainauth.UserInfo
	paula    domainauth.UserInfo
}

type fixtureOption func(*WebFrontServiceOptions)

func withOptions(fn func(*Options)) fixtureOption {
	return func(o *WebFrontServiceOptions) { fn(&o.Options) }
}

func withLogin(login ports.LoginService) fixtureOption {
	return func(o *WebFrontServiceOptions) { o.Login = login }
}

func withImpersonation(imp ports.ImpersonationService) fixtureOption {
	return func(o *WebFrontServiceOptions) { o.Impersonation = imp }
}

func testKeyRing(t *testing.T) *cryptoutil.KeyRing {
	t.Helper()
	key, err := cryptoutil.NewKey("test", bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	ring, err := cryptoutil.NewKeyRing(key)
	require.NoError(t, err)
	return ring
}

func createUser(t *testing.T, users *authmocks.MemoryUserRepository, name, password string) *model.User {
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

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	clock := core.NewFixedTimeProvider(testStart)
	users := authmocks.NewMemoryUserRepository()
	albert := createUser(t, users, "Albert", "correct horse")
	paula := createUser(t, users, "Paula", "")
	require.NoError(t, users.LinkExternal(context.Background(), &model.ExternalLogin{UserID: albert.ID, Scheme: "Oidc", Key: "albert-sub"}))

	provider := authmocks.NewMockRemoteProvider("Oidc", "albert-sub")
	keys := testKeyRing(t)

	wf := WebFrontServiceOptions{
		Options: Options{
			ExpireTimeSpan:       20 * time.Minute,
			UnsafeExpireTimeSpan: 24 * time.Hour,
			LoginTimeout:         10 * time.Minute,
			AllowedReturnOrigins: []string{"https://app.example.com"},
		},
		Keys: keys,
		Login: NewUserLoginService(UserLoginServiceOptions{
			Users:           users,
			ExternalSchemes: []string{"Oidc"},
			BasicLogin:      true,
			Clock:           clock,
		}),
		Providers: []ports.RemoteProvider{provider},
		Clock:     clock,
	}
	for _, opt := range opts {
		opt(&wf)
	}
	svc, err := NewWebFrontService(wf)
	require.NoError(t, err)

	return &fixture{
		svc:      svc,
		clock:    clock,
		users:    users,
		provider: provider,
		keys:     keys,
		albert:   albert.UserInfo(),
		paula:    paula.UserInfo(),
	}
}

// loginInfo returns a fresh Normal info for u.
func (f *fixture) loginInfo(u domainauth.UserInfo) domainauth.AuthenticationInfo {
	return f.svc.NewLoginInfo(u, f.clock.Now())
}

func (f *fixture) cookieFor(t *testing.T, info domainauth.AuthenticationInfo) string {
	t.Helper()
	sealed, err := f.svc.Envelope().ProtectInfo(cryptoutil.PurposeCookie, info)
	require.NoError(t, err)
	return sealed
}

func (f *fixture) tokenFor(t *testing.T, info domainauth.AuthenticationInfo) string {
	t.Helper()
	token, err := f.svc.CreateToken(info)
	require.NoError(t, err)
	return token
}
