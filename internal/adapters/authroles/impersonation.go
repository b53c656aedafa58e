package authroles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/target/webfront-auth/internal/core"
	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	"github.com/target/webfront-auth/internal/domain/model"
	"github.com/target/webfront-auth/internal/ports"
)

// ImpersonationPolicy lets a static list of user names impersonate any enabled user.
type ImpersonationPolicy struct {
	Impersonators []string
	Users         core.UserRepository
}

var _ ports.ImpersonationService = ImpersonationPolicy{}

func (p ImpersonationPolicy) allowed(actual domainauth.UserInfo) bool {
	if actual.IsAnonymous() {
		return false
	}
	for _, name := range p.Impersonators {
		if strings.EqualFold(name, actual.Name) {
			return true
		}
	}
	return false
}

// ImpersonateByName resolves userName when actual is an impersonator.
func (p ImpersonationPolicy) ImpersonateByName(ctx context.Context, actual domainauth.UserInfo, userName string) (*domainauth.UserInfo, error) {
	if !p.allowed(actual) {
		return nil, nil
	}
	return p.resolve(p.Users.GetByName(ctx, userName))
}

// ImpersonateByID resolves userID when actual is an impersonator.
func (p ImpersonationPolicy) ImpersonateByID(ctx context.Context, actual domainauth.UserInfo, userID int) (*domainauth.UserInfo, error) {
	if !p.allowed(actual) || userID <= 0 {
		return nil, nil
	}
	return p.resolve(p.Users.GetByID(ctx, userID))
}

func (p ImpersonationPolicy) resolve(user *model.User, err error) (*domainauth.UserInfo, error) {
	if errors.Is(err, core.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve impersonation target: %w", err)
	}
	if user.Disabled {
		return nil, nil
	}
	info := user.UserInfo()
	return &info, nil
}
