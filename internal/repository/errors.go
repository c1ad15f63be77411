package repository

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup matches no row. It wraps sql.ErrNoRows.
var ErrNotFound = fmt.Errorf("record not found: %w", sql.ErrNoRows)

// IsNotFound reports whether err describes a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
