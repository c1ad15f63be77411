package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for primary keys. IDs are
// produced in Go so the same models work on PostgreSQL and SQLite.
//
// It panics only when the system entropy source fails.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
