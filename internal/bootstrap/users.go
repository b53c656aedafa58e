package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/webfront-auth/config"
	"github.com/target/webfront-auth/internal/adapters/yamlusers"
	"github.com/target/webfront-auth/internal/core"
	"github.com/target/webfront-auth/internal/data"
)

// BuildUserStore opens the configured user store. DB is only used by the
// postgres source.
//
//nolint:ireturn // the store is picked at runtime.
func BuildUserStore(cfg config.UsersConfig, db *sql.DB) (core.UserRepository, error) {
	switch cfg.Source {
	case config.UserSourceFile:
		store, err := yamlusers.Open(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("open users file: %w", err)
		}
		return store, nil
	default:
		if db == nil {
			return nil, errors.New("postgres user store requires a database")
		}
		return data.NewUserRepo(db), nil
	}
}
