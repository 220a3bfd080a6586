package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SettingsRepository reads the operator settings table.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs a new repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Values fetches the requested setting keys. Missing keys are simply
// absent from the result; callers fall back to configured defaults.
func (r *SettingsRepository) Values(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	q, args, err := sqlx.In(`SELECT setting_key, setting_value FROM settings WHERE setting_key IN (?)`, keys)
	if err != nil {
		return nil, fmt.Errorf("settings repo: build query: %w", err)
	}
	q = r.db.Rebind(q)

	rows, err := r.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("settings repo: query: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, len(keys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("settings repo: scan: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settings repo: rows err: %w", err)
	}
	return values, nil
}
