package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"conftickets/internal/model"
)

// EnsureAdmin inserts the admin unless the email is taken; true means created.
func (r *repository) EnsureAdmin(ctx context.Context, a *model.Admin) (bool, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO admins (email, name, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, created_at
	`, strings.ToLower(a.Email), a.Name, a.PasswordHash, a.Role).Scan(&a.ID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to ensure admin: %w", err)
	}
	a.IsActive = true
	return true, nil
}

func (r *repository) GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	var a model.Admin
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, role, is_active, created_at
		FROM admins
		WHERE email = $1
	`, strings.ToLower(email)).Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.IsActive, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdminNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return &a, nil
}
