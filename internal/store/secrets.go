package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetSecret stores or replaces a secret value.
func (s *Store) SetSecret(ctx context.Context, name, value string) error {
	const q = `INSERT INTO secrets (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, name, value); err != nil {
		return fmt.Errorf("set secret: %w", err)
	}
	return nil
}

// DeleteSecret removes a secret.
func (s *Store) DeleteSecret(ctx context.Context, name string) error {
	n, err := s.execCount(ctx, "DELETE FROM secrets WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSecretNames returns the names of stored secrets, sorted. Values are
// never listed.
func (s *Store) ListSecretNames(ctx context.Context) ([]string, error) {
	names := []string{}
	if err := s.db.SelectContext(ctx, &names, "SELECT name FROM secrets ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	return names, nil
}

// Lookup implements secrets.Store.
func (s *Store) Lookup(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM secrets WHERE name = ?", name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lookup secret: %w", err)
	}
	return value, value != "", nil
}
