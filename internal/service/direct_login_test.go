package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	apperrors "github.com/target/webfront-auth/internal/errors"
	"github.com/target/webfront-auth/internal/mocks"
	"github.com/target/webfront-auth/internal/ports"
)

func TestBasicLogin_Success(t *testing.T) {
	f := newFixture(t)
	outcome, err := f.svc.BasicLogin(context.Background(), "Albert", "correct horse")
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())
	assert.Equal(t, f.albert.ID, outcome.Info.User().ID)
	assert.Equal(t, "Basic", outcome.Info.User().Schemes[0].Name)
	assert.NotEmpty(t, outcome.Token)
	assert.Equal(t, domainauth.LoginFailureNone, outcome.FailureCode)
}

func TestBasicLogin_Rejected(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct{ user, password string }{
		{"Albert", "wrong"},
		{"Nobody", "whatever"},
		{"Paula", "no password set"},
	} {
		outcome, err := f.svc.BasicLogin(context.Background(), tc.user, tc.password)
		require.NoError(t, err)
		assert.False(t, outcome.Succeeded())
		assert.Equal(t, domainauth.LoginFailureInvalidCredentials, outcome.FailureCode, tc.user)
		assert.Empty(t, outcome.Token)
	}
}

func TestBasicLogin_DisabledUser(t *testing.T) {
	f := newFixture(t)
	f.users.SetDisabled(f.albert.ID, true)
	outcome, err := f.svc.BasicLogin(context.Background(), "Albert", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, domainauth.LoginFailureDisabled, outcome.FailureCode)
}

func TestBasicLogin_BadInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.BasicLogin(context.Background(), " ", "x")
	assert.True(t, apperrors.IsValidation(err))
	_, err = f.svc.BasicLogin(context.Background(), "Albert", "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestBasicLogin_NotAvailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	login := mocks.NewMockLoginService(ctrl)
	login.EXPECT().HasBasicLogin().Return(false)

	f := newFixture(t, withLogin(login))
	_, err := f.svc.BasicLogin(context.Background(), "Albert", "correct horse")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestBasicLogin_ServiceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	login := mocks.NewMockLoginService(ctrl)
	login.EXPECT().HasBasicLogin().Return(true)
	login.EXPECT().BasicLogin(gomock.Any(), "Albert", "pw").Return(domainauth.LoginResult{}, errors.New("db down"))

	f := newFixture(t, withLogin(login))
	_, err := f.svc.BasicLogin(context.Background(), "Albert", "pw")
	assert.True(t, apperrors.IsUpstream(err))
}

func TestUnsafeDirectLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.svc.UnsafeDirectLogin(ctx, "Oidc", map[string]any{"KEY": "albert-sub"}, domainauth.None)
	require.NoError(t, err)
	require.True(t, outcome.Succeeded())
	assert.Equal(t, "Albert", outcome.Info.User().Name)
	assert.Equal(t, "Oidc", outcome.CallingScheme)

	outcome, err = f.svc.UnsafeDirectLogin(ctx, "Basic", map[string]any{"username": "Albert", "Password": "correct horse"}, domainauth.None)
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())

	outcome, err = f.svc.UnsafeDirectLogin(ctx, "Oidc", map[string]any{"key": "unknown"}, domainauth.None)
	require.NoError(t, err)
	assert.Equal(t, domainauth.LoginFailureUnregisteredUser, outcome.FailureCode)

	_, err = f.svc.UnsafeDirectLogin(ctx, "Oidc", "not an object", domainauth.None)
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.UnsafeDirectLogin(ctx, "", nil, domainauth.None)
	assert.True(t, apperrors.IsValidation(err))
}

func TestUnsafeDirectLogin_ErrorMapping(t *testing.T) {
	ctrl := gomock.NewController(t)
	login := mocks.NewMockLoginService(ctrl)
	gomock.InOrder(
		login.EXPECT().Login(gomock.Any(), gomock.Any()).
			Return(domainauth.LoginResult{}, fmt.Errorf("%w: bad shape", ports.ErrInvalidPayload)),
		login.EXPECT().Login(gomock.Any(), gomock.Any()).
			Return(domainauth.LoginResult{}, errors.New("ldap unreachable")),
	)

	f := newFixture(t, withLogin(login))
	_, err := f.svc.UnsafeDirectLogin(context.Background(), "Ldap", map[string]any{}, domainauth.None)
	assert.True(t, apperrors.IsValidation(err))
	assert.ErrorIs(t, err, ports.ErrInvalidPayload)

	_, err = f.svc.UnsafeDirectLogin(context.Background(), "Ldap", map[string]any{}, domainauth.None)
	assert.True(t, apperrors.IsUpstream(err))
}

func TestUnsafeDirectLogin_PassesCurrentInfo(t *testing.T) {
	ctrl := gomock.NewController(t)
	login := mocks.NewMockLoginService(ctrl)
	f := newFixture(t, withLogin(login))
	current := f.loginInfo(f.paula)

	login.EXPECT().Login(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.LoginRequest) (domainauth.LoginResult, error) {
			assert.Equal(t, "Custom", req.Scheme)
			assert.True(t, req.Current.Equal(current))
			return domainauth.LoginSucceeded(f.albert), nil
		})

	outcome, err := f.svc.UnsafeDirectLogin(context.Background(), "Custom", map[string]any{"a": 1}, current)
	require.NoError(t, err)
	assert.Equal(t, "Albert", outcome.Info.User().Name)
}

func TestUnsafeDirectLogin_UntrustedCurrentIsNone(t *testing.T) {
	ctrl := gomock.NewController(t)
	login := mocks.NewMockLoginService(ctrl)
	f := newFixture(t, withLogin(login))
	past := f.clock.Now().Add(-time.Minute)
	current := domainauth.Create(f.paula, &past, nil)
	require.Equal(t, domainauth.LevelUnsafe, current.Level(f.clock.Now()))

	login.EXPECT().Login(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.LoginRequest) (domainauth.LoginResult, error) {
			assert.True(t, req.Current.IsNone())
			return domainauth.LoginFailed(domainauth.LoginFailureUnregisteredUser, ""), nil
		})

	outcome, err := f.svc.UnsafeDirectLogin(context.Background(), "Custom", map[string]any{"key": "x"}, current)
	require.NoError(t, err)
	assert.False(t, outcome.Succeeded())
}
