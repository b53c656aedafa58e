package config

import (
	"errors"
	"fmt"
	"strings"
)

// UserSource selects the user store backing the login service.
type UserSource string

const (
	// UserSourcePostgres reads users from the database.
	UserSourcePostgres UserSource = "postgres"
	// UserSourceFile reads users from a YAML file (development and small deployments).
	UserSourceFile UserSource = "file"
)

// UnmarshalText implements encoding.TextUnmarshaler for UserSource.
func (s *UserSource) UnmarshalText(text []byte) error {
	v := UserSource(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case UserSourcePostgres, UserSourceFile:
		*s = v
		return nil
	default:
		return fmt.Errorf("invalid UserSource: %q (valid options: postgres, file)", v)
	}
}

// OIDCConfig contains the OpenID Connect remote provider configuration.
type OIDCConfig struct {
	Enabled      bool   `env:"ENABLED"       envDefault:"false"`
	Scheme       string `env:"SCHEME"        envDefault:"Oidc"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/.webfront/c/callback/Oidc"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	// KeyExpr and NameExpr are JMESPath expressions evaluated against the ID token claims.
	KeyExpr  string `env:"KEY_EXPR"  envDefault:"sub"`
	NameExpr string `env:"NAME_EXPR" envDefault:"preferred_username || email"`
}

// DevAuthConfig controls the development login scheme that skips any IdP round trip.
type DevAuthConfig struct {
	Enabled     bool   `env:"ENABLED"      envDefault:"false"`
	Scheme      string `env:"SCHEME"       envDefault:"Dev"`
	UserKey     string `env:"USER_KEY"     envDefault:"dev-user"`
	UserName    string `env:"USER_NAME"    envDefault:"dev"`
	CallbackURL string `env:"CALLBACK_URL" envDefault:"http://localhost:8080/.webfront/c/callback/Dev"`
}

// UsersConfig controls the user store and the login service.
type UsersConfig struct {
	Source   UserSource `env:"SOURCE"    envDefault:"postgres"`
	FilePath string     `env:"FILE_PATH" envDefault:"users.yaml"`
	// BasicLogin enables userName/password logins.
	BasicLogin bool `env:"BASIC_LOGIN" envDefault:"true"`
	// AutoLinkExternal binds an unknown external key to the caller's current user.
	AutoLinkExternal bool `env:"AUTO_LINK_EXTERNAL" envDefault:"false"`
}

// AuthConfig groups login providers, the user store and impersonation.
type AuthConfig struct {
	OIDC    OIDCConfig    `envPrefix:"OIDC_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
	Users   UsersConfig   `envPrefix:"USERS_"`

	// Impersonators lists user names allowed to impersonate other users.
	Impersonators []string `env:"IMPERSONATORS" envSeparator:","`
}

// Sanitize trims lists and identifiers.
func (c *AuthConfig) Sanitize() {
	c.Impersonators = trimList(c.Impersonators, nil)
	c.OIDC.Scheme = strings.TrimSpace(c.OIDC.Scheme)
	c.DevAuth.Scheme = strings.TrimSpace(c.DevAuth.Scheme)
	if c.Users.Source == "" {
		c.Users.Source = UserSourcePostgres
	}
}

// Validate checks the enabled providers.
func (c *AuthConfig) Validate() error {
	var errs []error
	if c.OIDC.Enabled {
		if c.OIDC.DiscoveryURL == "" || c.OIDC.ClientID == "" {
			errs = append(errs, errors.New("OIDC_DISCOVERY_URL and OIDC_CLIENT_ID are required when OIDC is enabled"))
		}
		if c.OIDC.Scheme == "" {
			errs = append(errs, errors.New("OIDC_SCHEME cannot be empty"))
		}
	}
	if c.DevAuth.Enabled && c.DevAuth.Scheme == "" {
		errs = append(errs, errors.New("DEV_AUTH_SCHEME cannot be empty"))
	}
	if c.OIDC.Enabled && c.DevAuth.Enabled && strings.EqualFold(c.OIDC.Scheme, c.DevAuth.Scheme) {
		errs = append(errs, errors.New("OIDC and dev auth schemes must differ"))
	}
	if c.Users.Source == UserSourceFile && strings.TrimSpace(c.Users.FilePath) == "" {
		errs = append(errs, errors.New("USERS_FILE_PATH is required when USERS_SOURCE=file"))
	}
	return errors.Join(errs...)
}
