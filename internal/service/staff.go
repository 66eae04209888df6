package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"conftickets/internal/model"
	"conftickets/internal/repo"
)

const RoleAdmin = "admin"

// AuthenticateStaff checks email and password against the admins table.
func (s *service) AuthenticateStaff(ctx context.Context, email, password string) (*model.Admin, error) {
	if email == "" || password == "" {
		return nil, ErrUnauthorized
	}
	a, err := s.repo.GetAdminByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repo.ErrAdminNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load admin: %w", err)
	}
	if !a.IsActive {
		return nil, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}
	return a, nil
}

// EnsureBootstrapAdmin creates the configured admin when it does not exist yet.
// An existing account is left as-is.
func (s *service) EnsureBootstrapAdmin(ctx context.Context, email, name, password string) error {
	if email == "" || password == "" {
		s.log.Warn().Msg("no bootstrap admin configured, code scans will be refused")
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	created, err := s.repo.EnsureAdmin(ctx, &model.Admin{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         RoleAdmin,
	})
	if err != nil {
		return err
	}
	if created {
		s.log.Info().Str("email", email).Msg("bootstrap admin created")
	}
	return nil
}
