package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/target/webfront-auth/internal/core"
	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	"github.com/target/webfront-auth/internal/domain/model"
	"github.com/target/webfront-auth/internal/ports"
)

// Payload keys understood by UserLoginService. Lookup is case insensitive.
const (
	PayloadUserName = "userName"
	PayloadPassword = "password"
	PayloadKey      = "key"
	PayloadName     = "name"
)

// dummyHash is compared against when the user does not exist so that unknown
// names and wrong passwords take the same time.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("webfront-dummy-password"), bcrypt.DefaultCost)

// HashPassword hashes a clear text password after checking its strength.
func HashPassword(password string) (string, error) {
	if err := model.ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// UserLoginServiceOptions groups dependencies for UserLoginService.
type UserLoginServiceOptions struct {
	Users core.UserRepository // Required
	// ExternalSchemes are the schemes resolved through external keys.
	ExternalSchemes []string
	BasicLogin      bool
	// AutoLinkExternal binds an unknown external key to the user already logged in.
	AutoLinkExternal bool
	Clock            core.TimeProvider
	Logger           *slog.Logger
}

// UserLoginService is the ports.LoginService backed by a user repository.
type UserLoginService struct {
	users           core.UserRepository
	externalSchemes []string
	basicLogin      bool
	autoLink        bool
	clock           core.TimeProvider
	logger          *slog.Logger
}

var _ ports.LoginService = (*UserLoginService)(nil)

// NewUserLoginService constructs a UserLoginService.
func NewUserLoginService(opts UserLoginServiceOptions) *UserLoginService {
	clock := opts.Clock
	if clock == nil {
		clock = core.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UserLoginService{
		users:           opts.Users,
		externalSchemes: append([]string(nil), opts.ExternalSchemes...),
		basicLogin:      opts.BasicLogin,
		autoLink:        opts.AutoLinkExternal,
		clock:           clock,
		logger:          logger.With("component", "user_login_service"),
	}
}

// Schemes lists Basic when enabled followed by the external schemes.
func (s *UserLoginService) Schemes(_ context.Context) []string {
	out := make([]string, 0, len(s.externalSchemes)+1)
	if s.basicLogin {
		out = append(out, domainauth.SchemeBasic)
	}
	return append(out, s.externalSchemes...)
}

// HasBasicLogin reports whether password logins are enabled.
func (s *UserLoginService) HasBasicLogin() bool { return s.basicLogin }

// BasicLogin checks the password of userName.
func (s *UserLoginService) BasicLogin(ctx context.Context, userName, password string) (domainauth.LoginResult, error) {
	if !s.basicLogin {
		return domainauth.LoginFailed(domainauth.LoginFailureUnspecified, "Basic login is disabled."), nil
	}
	user, err := s.users.GetByName(ctx, strings.TrimSpace(userName))
	if errors.Is(err, core.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return domainauth.LoginFailed(domainauth.LoginFailureInvalidCredentials, ""), nil
	}
	if err != nil {
		return domainauth.LoginResult{}, fmt.Errorf("get user by name: %w", err)
	}
	if user.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return domainauth.LoginFailed(domainauth.LoginFailureInvalidCredentials, ""), nil
	}
	return s.accept(ctx, user, domainauth.SchemeBasic)
}

// Login resolves a payload. Basic payloads carry userName and password; other
// schemes carry the external key and optionally a display name.
func (s *UserLoginService) Login(ctx context.Context, req ports.LoginRequest) (domainauth.LoginResult, error) {
	if req.Scheme == domainauth.SchemeBasic {
		userName, okName := payloadString(req.Payload, PayloadUserName)
		password, okPass := payloadString(req.Payload, PayloadPassword)
		if !okName || !okPass || strings.TrimSpace(userName) == "" {
			return domainauth.LoginResult{}, fmt.Errorf("%w: userName and password are required", ports.ErrInvalidPayload)
		}
		return s.BasicLogin(ctx, userName, password)
	}

	if !s.isExternal(req.Scheme) {
		return domainauth.LoginFailed(domainauth.LoginFailureUnspecified, "Unknown login scheme."), nil
	}
	key, ok := payloadString(req.Payload, PayloadKey)
	if !ok || strings.TrimSpace(key) == "" {
		return domainauth.LoginResult{}, fmt.Errorf("%w: %s payload requires a key", ports.ErrInvalidPayload, req.Scheme)
	}

	user, err := s.users.GetByExternalKey(ctx, req.Scheme, key)
	if errors.Is(err, core.ErrUserNotFound) {
		return s.autoLinkExternal(ctx, req, key)
	}
	if err != nil {
		return domainauth.LoginResult{}, fmt.Errorf("get user by external key: %w", err)
	}
	return s.accept(ctx, user, req.Scheme)
}

func (s *UserLoginService) autoLinkExternal(ctx context.Context, req ports.LoginRequest, key string) (domainauth.LoginResult, error) {
	actual := req.Current.ActualUser()
	if !s.autoLink || actual.IsAnonymous() || req.Current.Level(s.clock.Now()) < domainauth.LevelNormal {
		return domainauth.LoginFailed(domainauth.LoginFailureUnregisteredUser, ""), nil
	}
	user, err := s.users.GetByID(ctx, actual.ID)
	if errors.Is(err, core.ErrUserNotFound) {
		return domainauth.LoginFailed(domainauth.LoginFailureUnregisteredUser, ""), nil
	}
	if err != nil {
		return domainauth.LoginResult{}, fmt.Errorf("get user by id: %w", err)
	}
	if err := s.users.LinkExternal(ctx, &model.ExternalLogin{UserID: user.ID, Scheme: req.Scheme, Key: key}); err != nil {
		return domainauth.LoginResult{}, fmt.Errorf("link external login: %w", err)
	}
	s.logger.InfoContext(ctx, "linked external login", "user_id", user.ID, "scheme", req.Scheme)
	return s.accept(ctx, user, req.Scheme)
}

func (s *UserLoginService) accept(ctx context.Context, user *model.User, scheme string) (domainauth.LoginResult, error) {
	if user.Disabled {
		return domainauth.LoginFailed(domainauth.LoginFailureDisabled, ""), nil
	}
	touched, err := s.users.TouchScheme(ctx, core.TouchSchemeParams{UserID: user.ID, Scheme: scheme, At: s.clock.Now()})
	if err != nil {
		return domainauth.LoginResult{}, fmt.Errorf("touch scheme: %w", err)
	}
	return domainauth.LoginSucceeded(touched.UserInfo()), nil
}

func (s *UserLoginService) isExternal(scheme string) bool {
	for _, name := range s.externalSchemes {
		if name == scheme {
			return true
		}
	}
	return false
}

// payloadString reads key from a JSON object payload, ignoring case.
func payloadString(payload any, key string) (string, bool) {
	switch m := payload.(type) {
	case map[string]any:
		for k, v := range m {
			if strings.EqualFold(k, key) {
				s, ok := v.(string)
				return s, ok
			}
		}
	case map[string]string:
		for k, v := range m {
			if strings.EqualFold(k, key) {
				return v, true
			}
		}
	}
	return "", false
}
