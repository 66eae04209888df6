package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"conftickets/internal/model"
)

const apiKeyColumns = `id, name, key, type, is_active, expires_at, last_used_at, created_at, updated_at`

func scanAPIKey(row rowScanner) (*model.APIKey, error) {
	var k model.APIKey
	err := row.Scan(&k.ID, &k.Name, &k.Key, &k.Type, &k.IsActive, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// InsertAPIKeyIfMissing reports true when a new record was created.
func (r *repository) InsertAPIKeyIfMissing(ctx context.Context, k *model.APIKey) (bool, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO api_keys (name, key, type, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO NOTHING
		RETURNING id, created_at, updated_at
	`, k.Name, k.Key, k.Type, k.IsActive, k.ExpiresAt).Scan(&k.ID, &k.CreatedAt, &k.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert api key %s: %w", k.Key, err)
	}
	return true, nil
}

// FindAPIKeyByType returns the best candidate for a type: active and unexpired first.
func (r *repository) FindAPIKeyByType(ctx context.Context, keyType string) (*model.APIKey, error) {
	k, err := scanAPIKey(r.db.QueryRowContext(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		WHERE type = $1
		ORDER BY is_active DESC, (expires_at IS NULL OR expires_at > NOW()) DESC, updated_at DESC
		LIMIT 1
	`, keyType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find api key for %s: %w", keyType, err)
	}
	return k, nil
}

func (r *repository) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

func (r *repository) TouchAPIKey(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}
