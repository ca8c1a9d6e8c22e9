// Package repositories implements SQLite persistence for tunedeck.
//
// Key Implementations:
//   - [KVRepository] : durable key/value entries, used as a credential storage backend
//   - [NotificationRepository] : log of live notifications recorded by `notifications watch --record`
//
// Tables are created by the embedded migrations in package shared.
package repositories

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// scanErr converts sql.ErrNoRows into [ErrNotFound] and wraps other failures.
func scanErr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("failed to scan %s: %w", what, err)
}
