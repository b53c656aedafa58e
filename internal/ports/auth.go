package ports

// Package ports defines interfaces (hexagonal ports) for web front authentication.
// Implementations live in internal/adapters and internal/service; orchestration in internal/service.

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	domainauth "github.com/target/webfront-auth/internal/domain/auth"
)

// ErrInvalidPayload is wrapped by login services when a payload is unusable.
var ErrInvalidPayload = errors.New("invalid login payload")

// ChallengeInput carries inputs for sending the browser to a remote provider.
type ChallengeInput struct {
	// State is opaque to the provider and must come back unchanged on the callback.
	State       string
	RedirectURL string
}

// CompleteInput carries the provider callback.
type CompleteInput struct {
	Query       url.Values
	RedirectURL string
}

// CompleteResult is what a provider extracted from its callback.
// State is set whenever the callback carried one, even on error.
type CompleteResult struct {
	State   string
	Payload map[string]any
}

// RemoteProvider is a login scheme that requires a browser round trip.
type RemoteProvider interface {
	Scheme() string

	// Challenge returns the URL the browser must be redirected to.
	Challenge(ctx context.Context, in ChallengeInput) (string, error)

	// Complete finishes the exchange and returns the provider payload for the login service.
	Complete(ctx context.Context, in CompleteInput) (CompleteResult, error)
}

// LoginRequest asks a login service to resolve a provider payload into a user.
type LoginRequest struct {
	Scheme  string
	Payload any
	// Current is the caller's authentication before this login. It is None unless
	// the caller was at least at Normal level.
	Current domainauth.AuthenticationInfo
}

// LoginService resolves credentials and provider payloads into users.
// Implementations must be safe for concurrent use.
type LoginService interface {
	// Schemes lists the schemes users can log in with.
	Schemes(ctx context.Context) []string

	HasBasicLogin() bool

	BasicLogin(ctx context.Context, userName, password string) (domainauth.LoginResult, error)

	// Login resolves a payload. Errors wrapping ErrInvalidPayload denote caller mistakes.
	Login(ctx context.Context, req LoginRequest) (domainauth.LoginResult, error)
}

// ImpersonationService resolves impersonation targets. A nil user means not found
// or not allowed for actual.
type ImpersonationService interface {
	ImpersonateByName(ctx context.Context, actual domainauth.UserInfo, userName string) (*domainauth.UserInfo, error)
	ImpersonateByID(ctx context.Context, actual domainauth.UserInfo, userID int) (*domainauth.UserInfo, error)
}

// UnsafeDirectLoginAllower decides whether a request may log in directly with scheme.
type UnsafeDirectLoginAllower interface {
	AllowUnsafeDirectLogin(r *http.Request, scheme string) bool
}

// AllowUnsafeDirectLoginFunc adapts a function to UnsafeDirectLoginAllower.
type AllowUnsafeDirectLoginFunc func(r *http.Request, scheme string) bool

// AllowUnsafeDirectLogin calls f.
func (f AllowUnsafeDirectLoginFunc) AllowUnsafeDirectLogin(r *http.Request, scheme string) bool {
	return f(r, scheme)
}
