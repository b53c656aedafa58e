//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	domainauth "github.com/target/webfront-auth/internal/domain/auth"
)

const (
	maxUserNameLen = 127
	minPasswordLen = 8
)

var userNameRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.@-]*$`)

func validateUserName(name string) error {
	n := strings.TrimSpace(name)
	if n == "" {
		return errors.New("user name is required and cannot be empty")
	}
	if utf8.RuneCountInString(n) > maxUserNameLen {
		return errors.New("user name cannot exceed 127 characters")
	}
	if !userNameRe.MatchString(n) {
		return errors.New("user name must start with a letter, digit, or underscore and contain no spaces")
	}
	return nil
}

// User is a registered account. PasswordHash is a bcrypt hash, empty when the
// account can only log in through external schemes.
type User struct {
	ID           int                      `json:"id"         db:"id"`
	Name         string                   `json:"name"       db:"user_name"`
	PasswordHash string                   `json:"-"          db:"password_hash"`
	Disabled     bool                     `json:"disabled"   db:"disabled"`
	CreatedAt    time.Time                `json:"created_at" db:"created_at"`
	Schemes      []domainauth.SchemeUsage `json:"schemes"`
}

// UserInfo projects the account into the authentication model.
func (u *User) UserInfo() domainauth.UserInfo {
	if u == nil {
		return domainauth.Anonymous
	}
	return domainauth.NewUserInfo(u.ID, u.Name, u.Schemes)
}

// CreateUserRequest contains fields to register a new user.
type CreateUserRequest struct {
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
}

// Validate checks the user name.
func (r *CreateUserRequest) Validate() error {
	return validateUserName(r.Name)
}

// ValidatePassword checks a clear text password before it is hashed.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// ExternalLogin binds a provider specific key to a user for one scheme.
type ExternalLogin struct {
	UserID int    `json:"user_id" db:"user_id"`
	Scheme string `json:"scheme"  db:"scheme"`
	Key    string `json:"key"     db:"external_key"`
}

// Validate checks that every field is set.
func (e *ExternalLogin) Validate() error {
	if e.UserID <= 0 {
		return errors.New("user_id must be positive")
	}
	if strings.TrimSpace(e.Scheme) == "" {
		return errors.New("scheme is required")
	}
	if strings.TrimSpace(e.Key) == "" {
		return errors.New("external key is required")
	}
	return nil
}
