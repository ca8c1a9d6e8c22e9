package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunedeck/internal/credentials"
	"github.com/desertthunder/tunedeck/internal/shared"
)

// KVRepository stores string values by name in the kv_store table.
//
// It satisfies [credentials.Storage].
type KVRepository struct {
	db *sql.DB
}

// NewKVRepository creates a new KVRepository with the given database connection
func NewKVRepository(db *sql.DB) *KVRepository {
	return &KVRepository{db: db}
}

var _ credentials.Storage = (*KVRepository)(nil)

// GetItem returns the value stored under key or [credentials.ErrItemNotFound].
func (r *KVRepository) GetItem(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE name = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", credentials.ErrItemNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %v", shared.ErrStorage, key, err)
	}
	return value, nil
}

// SetItem inserts or replaces the value under key.
func (r *KVRepository) SetItem(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_store (name, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", shared.ErrStorage, key, err)
	}
	return nil
}

// RemoveItem deletes key. Removing a missing key is not an error.
func (r *KVRepository) RemoveItem(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM kv_store WHERE name = ?", key); err != nil {
		return fmt.Errorf("%w: failed to remove %s: %v", shared.ErrStorage, key, err)
	}
	return nil
}

// Keys lists every stored name in order.
func (r *KVRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name FROM kv_store ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, scanErr(err, "key")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
