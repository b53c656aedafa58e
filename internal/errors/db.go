package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts field name from unique violation detail: "Key (field)=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// MapDBError maps database errors to AppError instances:
// pgx.ErrNoRows → NotFound, unique violations → Conflict, foreign key violations → ForeignKey,
// check and NOT NULL violations → Validation, context errors → Timeout/Canceled.
// Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "Request timed out. Please try again.")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "Request was canceled.")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "Resource not found")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		appErr := Wrap(pgErr, ErrCodeConflict, "This value already exists. Please choose a different one.")
		appErr.Field = uniqueField(pgErr)
		return appErr
	case pgerrcode.ForeignKeyViolation:
		return Wrap(pgErr, ErrCodeForeignKey, foreignKeyMessage(pgErr))
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		appErr := Wrap(pgErr, ErrCodeValidation, "Invalid data. Please check your input.")
		appErr.Field = pgErr.ColumnName
		return appErr
	default:
		return Wrap(pgErr, ErrCodeInternal, "A database error occurred. Please try again.")
	}
}

// uniqueField prefers column metadata, then the Detail message, then the constraint name.
func uniqueField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return m[1]
	}
	// "users_name_key" → "name"; longer names are multi-column and ambiguous.
	parts := strings.Split(pgErr.ConstraintName, "_")
	if len(parts) == 3 && parts[1] != "lower" && parts[1] != "upper" {
		return parts[1]
	}
	return ""
}

func foreignKeyMessage(pgErr *pgconn.PgError) string {
	name := strings.ToLower(pgErr.ConstraintName)
	switch {
	case strings.Contains(pgErr.Detail, "is still referenced"):
		return "Cannot delete user because logins are bound to it."
	case strings.Contains(name, "user"):
		return "Cannot complete operation because the user does not exist."
	default:
		return "Cannot complete operation because this item is in use."
	}
}
