package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/target/webfront-auth/internal/core"
	"github.com/target/webfront-auth/internal/data/pgxutil"
	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	"github.com/target/webfront-auth/internal/domain/model"
	apperrors "github.com/target/webfront-auth/internal/errors"
)

// UserRepo provides database operations for users and their login bindings.
type UserRepo struct {
	DB *sql.DB
}

var _ core.UserRepository = (*UserRepo)(nil)

// NewUserRepo creates a new user repository.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

const userColumns = `u.id, u.user_name, u.password_hash, u.disabled, u.created_at`

// Create inserts a user. Names are unique regardless of case.
func (r *UserRepo) Create(ctx context.Context, req *model.CreateUserRequest) (*model.User, error) {
	if req == nil {
		return nil, errors.New("create user request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}

	var user *model.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		query := `
			INSERT INTO users AS u (user_name, password_hash)
			VALUES ($1, $2)
			RETURNING ` + userColumns
		rows, err := conn.Query(ctx, query, strings.TrimSpace(req.Name), req.PasswordHash)
		if err != nil {
			return err
		}
		user, err = pgx.CollectOneRow(rows, scanUser)
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return user, nil
}

// GetByID retrieves a user and its scheme usage.
func (r *UserRepo) GetByID(ctx context.Context, id int) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id)
}

// GetByName retrieves a user by case-insensitive name.
func (r *UserRepo) GetByName(ctx context.Context, name string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.ErrUserNotFound
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users u WHERE lower(u.user_name) = lower($1)`, name)
}

// GetByExternalKey retrieves the user bound to key for scheme.
func (r *UserRepo) GetByExternalKey(ctx context.Context, scheme, key string) (*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		JOIN user_external_logins x ON x.user_id = u.id
		WHERE x.scheme = $1 AND x.external_key = $2`
	return r.getOne(ctx, query, scheme, key)
}

// LinkExternal binds a key to a user, replacing the user's previous key for the scheme.
func (r *UserRepo) LinkExternal(ctx context.Context, login *model.ExternalLogin) error {
	if login == nil {
		return errors.New("external login is required")
	}
	if err := login.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO user_external_logins (scheme, external_key, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, scheme) DO UPDATE SET external_key = EXCLUDED.external_key`,
		login.Scheme, login.Key, login.UserID)
	if isForeignKeyViolation(err) {
		return core.ErrUserNotFound
	}
	return apperrors.MapDBError(err)
}

// SetPassword replaces the password hash. An empty hash disables basic login for the user.
func (r *UserRepo) SetPassword(ctx context.Context, userID int, passwordHash string) error {
	return r.updateUser(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, passwordHash)
}

// SetDisabled toggles the disabled flag.
func (r *UserRepo) SetDisabled(ctx context.Context, userID int, disabled bool) error {
	return r.updateUser(ctx, `UPDATE users SET disabled = $2 WHERE id = $1`, userID, disabled)
}

// TouchScheme upserts the scheme usage and returns the refreshed user.
func (r *UserRepo) TouchScheme(ctx context.Context, p core.TouchSchemeParams) (*model.User, error) {
	if strings.TrimSpace(p.Scheme) == "" {
		return nil, errors.New("scheme is required")
	}
	var user *model.User
	err := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO user_schemes (user_id, scheme, last_used)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, scheme) DO UPDATE SET last_used = GREATEST(user_schemes.last_used, EXCLUDED.last_used)`,
			p.UserID, p.Scheme, p.At.UTC())
		if err != nil {
			return err
		}
		user, err = queryUser(ctx, tx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, p.UserID)
		return err
	})
	if isForeignKeyViolation(err) || errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return user, nil
}

func (r *UserRepo) updateUser(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	var user *model.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var err error
		user, err = queryUser(ctx, conn, query, args...)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return user, nil
}

// queryUser reads one user row and its scheme usage.
func queryUser(ctx context.Context, q pgxutil.Querier, query string, args ...any) (*model.User, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	user, err := pgx.CollectOneRow(rows, scanUser)
	if err != nil {
		return nil, err
	}
	user.Schemes, err = loadSchemes(ctx, q, user.ID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func loadSchemes(ctx context.Context, q pgxutil.Querier, userID int) ([]domainauth.SchemeUsage, error) {
	rows, err := q.Query(ctx,
		`SELECT scheme, last_used FROM user_schemes WHERE user_id = $1 ORDER BY last_used DESC, scheme`, userID)
	if err != nil {
		return nil, err
	}
	schemes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domainauth.SchemeUsage, error) {
		var s domainauth.SchemeUsage
		err := row.Scan(&s.Name, &s.LastUsed)
		s.LastUsed = s.LastUsed.UTC()
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("load schemes: %w", err)
	}
	return schemes, nil
}

func scanUser(row pgx.CollectableRow) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Name, &u.PasswordHash, &u.Disabled, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}
