// Package yamlusers stores users in a YAML file. It suits development and small
// deployments where running Postgres is not worth it.
package yamlusers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/target/webfront-auth/internal/core"
	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	"github.com/target/webfront-auth/internal/domain/model"
)

// ErrDuplicateName is returned by Create when the name is taken.
var ErrDuplicateName = errors.New("user name already exists")

type fileScheme struct {
	Name     string    `yaml:"name"`
	LastUsed time.Time `yaml:"last_used"`
}

type fileUser struct {
	ID           int               `yaml:"id"`
	Name         string            `yaml:"name"`
	PasswordHash string            `yaml:"password_hash,omitempty"`
	Disabled     bool              `yaml:"disabled,omitempty"`
	CreatedAt    time.Time         `yaml:"created_at"`
	External     map[string]string `yaml:"external,omitempty"` // scheme -> key
	Schemes      []fileScheme      `yaml:"schemes,omitempty"`
}

type fileDoc struct {
	Users []*fileUser `yaml:"users"`
}

// Store implements core.UserRepository over a YAML document. Every write
// rewrites the whole file.
type Store struct {
	mu    sync.RWMutex
	path  string
	users []*fileUser
}

var _ core.UserRepository = (*Store)(nil)

// Open loads path. A missing file yields an empty store that is created on first write.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	seen := make(map[int]bool, len(doc.Users))
	for _, u := range doc.Users {
		if u == nil || u.ID <= 0 || strings.TrimSpace(u.Name) == "" {
			return nil, errors.New("users file: every user needs a positive id and a name")
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("users file: duplicate id %d", u.ID)
		}
		seen[u.ID] = true
	}
	s.users = doc.Users
	return s, nil
}

// Create adds a user with the next free id.
func (s *Store) Create(_ context.Context, req *model.CreateUserRequest) (*model.User, error) {
	if req == nil {
		return nil, errors.New("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.TrimSpace(req.Name)
	if s.byName(name) != nil {
		return nil, ErrDuplicateName
	}
	next := 1
	for _, u := range s.users {
		if u.ID >= next {
			next = u.ID + 1
		}
	}
	u := &fileUser{ID: next, Name: name, PasswordHash: req.PasswordHash, CreatedAt: time.Now().UTC()}
	s.users = append(s.users, u)
	if err := s.save(); err != nil {
		s.users = s.users[:len(s.users)-1]
		return nil, err
	}
	return u.toModel(), nil
}

func (s *Store) GetByID(_ context.Context, id int) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u := s.byID(id); u != nil {
		return u.toModel(), nil
	}
	return nil, core.ErrUserNotFound
}

func (s *Store) GetByName(_ context.Context, name string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u := s.byName(strings.TrimSpace(name)); u != nil {
		return u.toModel(), nil
	}
	return nil, core.ErrUserNotFound
}

func (s *Store) GetByExternalKey(_ context.Context, scheme, key string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		for sc, k := range u.External {
			if strings.EqualFold(sc, scheme) && k == key {
				return u.toModel(), nil
			}
		}
	}
	return nil, core.ErrUserNotFound
}

// LinkExternal binds the key, replacing any previous key of the user for that scheme.
func (s *Store) LinkExternal(_ context.Context, login *model.ExternalLogin) error {
	if login == nil {
		return errors.New("login is required")
	}
	if err := login.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byID(login.UserID)
	if u == nil {
		return core.ErrUserNotFound
	}
	for _, other := range s.users {
		if other != u && other.External[login.Scheme] == login.Key {
			return fmt.Errorf("external key already linked to user %d", other.ID)
		}
	}
	prev, had := u.External[login.Scheme]
	if u.External == nil {
		u.External = make(map[string]string)
	}
	u.External[login.Scheme] = login.Key
	if err := s.save(); err != nil {
		if had {
			u.External[login.Scheme] = prev
		} else {
			delete(u.External, login.Scheme)
		}
		return err
	}
	return nil
}

func (s *Store) SetPassword(_ context.Context, userID int, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byID(userID)
	if u == nil {
		return core.ErrUserNotFound
	}
	prev := u.PasswordHash
	u.PasswordHash = passwordHash
	if err := s.save(); err != nil {
		u.PasswordHash = prev
		return err
	}
	return nil
}

func (s *Store) TouchScheme(_ context.Context, p core.TouchSchemeParams) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byID(p.UserID)
	if u == nil {
		return nil, core.ErrUserNotFound
	}
	prev := u.Schemes
	updated := u.toModel().UserInfo().WithSchemeUsed(p.Scheme, p.At).Schemes
	u.Schemes = make([]fileScheme, 0, len(updated))
	for _, sc := range updated {
		u.Schemes = append(u.Schemes, fileScheme{Name: sc.Name, LastUsed: sc.LastUsed})
	}
	if err := s.save(); err != nil {
		u.Schemes = prev
		return nil, err
	}
	return u.toModel(), nil
}

// SetDisabled toggles the disabled flag.
func (s *Store) SetDisabled(_ context.Context, userID int, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.byID(userID)
	if u == nil {
		return core.ErrUserNotFound
	}
	prev := u.Disabled
	u.Disabled = disabled
	if err := s.save(); err != nil {
		u.Disabled = prev
		return err
	}
	return nil
}

func (s *Store) byID(id int) *fileUser {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (s *Store) byName(name string) *fileUser {
	for _, u := range s.users {
		if strings.EqualFold(u.Name, name) {
			return u
		}
	}
	return nil
}

// save writes the document atomically. Callers hold the write lock.
func (s *Store) save() error {
	sorted := append([]*fileUser(nil), s.users...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	data, err := yaml.Marshal(fileDoc{Users: sorted})
	if err != nil {
		return fmt.Errorf("marshal users: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".users-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp users file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write users file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod users file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close users file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace users file: %w", err)
	}
	return nil
}

func (u *fileUser) toModel() *model.User {
	out := &model.User{
		ID:           u.ID,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Disabled:     u.Disabled,
		CreatedAt:    u.CreatedAt,
	}
	for _, sc := range u.Schemes {
		out.Schemes = append(out.Schemes, domainauth.SchemeUsage{Name: sc.Name, LastUsed: sc.LastUsed})
	}
	return out
}
