package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/target/webfront-auth/internal/core"
	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	"github.com/target/webfront-auth/internal/domain/model"
	"github.com/target/webfront-auth/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.RemoteProvider       = (*MockRemoteProvider)(nil)
	_ ports.ImpersonationService = (*StaticImpersonation)(nil)
	_ core.UserRepository        = (*MemoryUserRepository)(nil)
)

// MockRemoteProvider simulates an IdP. Challenge redirects to AuthURL with the
// state in the query; Complete echoes the state and returns Payload.
type MockRemoteProvider struct {
	Name         string
	AuthURL      string
	Payload      map[string]any
	ChallengeErr error
	CompleteErr  error

	mu         sync.Mutex
	challenges []ports.ChallengeInput
}

// NewMockRemoteProvider creates a MockRemoteProvider answering with key as external key.
func NewMockRemoteProvider(scheme, key string) *MockRemoteProvider {
	return &MockRemoteProvider{
		Name:    scheme,
		AuthURL: "https://mock-idp/auth",
		Payload: map[string]any{"key": key},
	}
}

func (m *MockRemoteProvider) Scheme() string { return m.Name }

func (m *MockRemoteProvider) Challenge(_ context.Context, in ports.ChallengeInput) (string, error) {
	m.mu.Lock()
	m.challenges = append(m.challenges, in)
	m.mu.Unlock()
	if m.ChallengeErr != nil {
		return "", m.ChallengeErr
	}
	u, err := url.Parse(m.AuthURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("state", in.State)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (m *MockRemoteProvider) Complete(_ context.Context, in ports.CompleteInput) (ports.CompleteResult, error) {
	res := ports.CompleteResult{State: in.Query.Get("state")}
	if m.CompleteErr != nil {
		return res, m.CompleteErr
	}
	if e := in.Query.Get("error"); e != "" {
		return res, errors.New(e)
	}
	res.Payload = m.Payload
	return res, nil
}

// Challenges returns the inputs Challenge was called with.
func (m *MockRemoteProvider) Challenges() []ports.ChallengeInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.ChallengeInput(nil), m.challenges...)
}

// StaticImpersonation allows Impersonators to impersonate any user of Users.
type StaticImpersonation struct {
	Impersonators []string
	Users         []domainauth.UserInfo
	Err           error
}

func (s StaticImpersonation) allowed(actual domainauth.UserInfo) bool {
	for _, name := range s.Impersonators {
		if name == actual.Name {
			return true
		}
	}
	return false
}

func (s StaticImpersonation) ImpersonateByName(_ context.Context, actual domainauth.UserInfo, userName string) (*domainauth.UserInfo, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if !s.allowed(actual) {
		return nil, nil
	}
	for _, u := range s.Users {
		if u.Name == userName {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

func (s StaticImpersonation) ImpersonateByID(_ context.Context, actual domainauth.UserInfo, userID int) (*domainauth.UserInfo, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if !s.allowed(actual) {
		return nil, nil
	}
	for _, u := range s.Users {
		if u.ID == userID {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

// MemoryUserRepository is an in-memory core.UserRepository.
type MemoryUserRepository struct {
	mu       sync.RWMutex
	nextID   int
	users    map[int]*model.User
	external map[string]int
	// Err, when set, is returned by every method.
	Err error
}

// NewMemoryUserRepository creates an empty repository. Ids start at 1.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[int]*model.User), external: make(map[string]int)}
}

func externalKey(scheme, key string) string { return scheme + "\x00" + key }

func (r *MemoryUserRepository) Create(_ context.Context, req *model.CreateUserRequest) (*model.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.TrimSpace(req.Name)
	for _, u := range r.users {
		if strings.EqualFold(u.Name, name) {
			return nil, errors.New("user name already exists")
		}
	}
	r.nextID++
	u := &model.User{ID: r.nextID, Name: name, PasswordHash: req.PasswordHash, CreatedAt: time.Now().UTC()}
	r.users[u.ID] = u
	return clone(u), nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id int) (*model.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	return clone(u), nil
}

func (r *MemoryUserRepository) GetByName(_ context.Context, name string) (*model.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Name, name) {
			return clone(u), nil
		}
	}
	return nil, core.ErrUserNotFound
}

func (r *MemoryUserRepository) GetByExternalKey(_ context.Context, scheme, key string) (*model.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.external[externalKey(scheme, key)]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	return clone(r.users[id]), nil
}

func (r *MemoryUserRepository) LinkExternal(_ context.Context, login *model.ExternalLogin) error {
	if r.Err != nil {
		return r.Err
	}
	if err := login.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[login.UserID]; !ok {
		return core.ErrUserNotFound
	}
	r.external[externalKey(login.Scheme, login.Key)] = login.UserID
	return nil
}

func (r *MemoryUserRepository) SetPassword(_ context.Context, userID int, passwordHash string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return core.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r *MemoryUserRepository) TouchScheme(_ context.Context, p core.TouchSchemeParams) (*model.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[p.UserID]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	u.Schemes = u.UserInfo().WithSchemeUsed(p.Scheme, p.At).Schemes
	return clone(u), nil
}

// SetDisabled toggles the disabled flag of a user.
func (r *MemoryUserRepository) SetDisabled(id int, disabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Disabled = disabled
	}
}

// Names returns the sorted user names.
func (r *MemoryUserRepository) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u.Name)
	}
	sort.Strings(out)
	return out
}

func clone(u *model.User) *model.User {
	c := *u
	c.Schemes = append([]domainauth.SchemeUsage(nil), u.Schemes...)
	return &c
}
