package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Postgres reads settings from the settings table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// GetParam returns the stored value or def when the key is absent.
func (s *Postgres) GetParam(ctx context.Context, key, def string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("get settings param %s: %w", key, err)
	}
	return value, nil
}

func (s *Postgres) SetParam(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	if err != nil {
		return fmt.Errorf("set settings param %s: %w", key, err)
	}
	return nil
}
