// Package apikeys keeps the registry of external credentials. Records hold a
// reference name only; the secret is looked up in process configuration.
package apikeys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"conftickets/internal/dto"
	"conftickets/internal/model"
	"conftickets/internal/repo"
)

const (
	TypeEmail   = "email"
	TypeWebhook = "webhook"
	TypePayment = "payment"
	TypeAuth    = "auth"
	TypeSMTP    = "smtp"

	StatusHealthy  = "healthy"
	StatusExpired  = "expired"
	StatusInactive = "inactive"
)

var (
	ErrKeyNotFound   = errors.New("api key not registered")
	ErrKeyInactive   = errors.New("api key is inactive")
	ErrKeyExpired    = errors.New("api key expired")
	ErrSecretMissing = errors.New("api key secret is not configured")
)

// Defaults are the records seeded on startup. Key is the configuration
// reference the secret is read from.
var Defaults = []model.APIKey{
	{Name: "resend_main", Key: "RESEND_API_KEY", Type: TypeEmail, IsActive: true},
	{Name: "resend_webhook", Key: "RESEND_WEBHOOK_SECRET", Type: TypeWebhook, IsActive: true},
	{Name: "mp_production", Key: "MP_ACCESS_TOKEN", Type: TypePayment, IsActive: true},
	{Name: "jwt_secret", Key: "JWT_SECRET", Type: TypeAuth, IsActive: true},
	{Name: "smtp_main", Key: "SMTP_PASSWORD", Type: TypeSMTP, IsActive: true},
}

// Store is the part of repo.Repository the registry needs.
type Store interface {
	InsertAPIKeyIfMissing(ctx context.Context, k *model.APIKey) (bool, error)
	FindAPIKeyByType(ctx context.Context, keyType string) (*model.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]model.APIKey, error)
	TouchAPIKey(ctx context.Context, id int64, at time.Time) error
}

type Registry struct {
	store   Store
	secrets map[string]string
	log     *zerolog.Logger
	now     func() time.Time
}

// NewRegistry takes the secrets indexed by reference name.
func NewRegistry(store Store, secrets map[string]string, log *zerolog.Logger) *Registry {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Registry{store: store, secrets: secrets, log: log, now: time.Now}
}

func (r *Registry) Seed(ctx context.Context) error {
	for _, d := range Defaults {
		k := d
		created, err := r.store.InsertAPIKeyIfMissing(ctx, &k)
		if err != nil {
			return fmt.Errorf("seed %s: %w", k.Name, err)
		}
		if created {
			r.log.Info().Str("name", k.Name).Str("type", k.Type).Msg("api key record created")
		}
	}
	return nil
}

// Resolve returns the secret for the best record of keyType and marks it used.
func (r *Registry) Resolve(ctx context.Context, keyType string) (string, error) {
	k, err := r.store.FindAPIKeyByType(ctx, keyType)
	if errors.Is(err, repo.ErrAPIKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, keyType)
	}
	if err != nil {
		return "", err
	}

	now := r.now()
	switch status(k, now) {
	case StatusInactive:
		return "", fmt.Errorf("%w: %s", ErrKeyInactive, k.Name)
	case StatusExpired:
		return "", fmt.Errorf("%w: %s", ErrKeyExpired, k.Name)
	}

	secret := r.secrets[k.Key]
	if secret == "" {
		return "", fmt.Errorf("%w: %s (%s)", ErrSecretMissing, k.Name, k.Key)
	}
	if err := r.store.TouchAPIKey(ctx, k.ID, now); err != nil {
		r.log.Warn().Err(err).Str("name", k.Name).Msg("failed to record api key usage")
	}
	return secret, nil
}

// Info lists every record with its masked secret and health.
func (r *Registry) Info(ctx context.Context) ([]dto.APIKeyResponse, error) {
	keys, err := r.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, err
	}
	now := r.now()
	out := make([]dto.APIKeyResponse, 0, len(keys))
	for i := range keys {
		k := &keys[i]
		out = append(out, dto.APIKeyResponse{
			ID:         k.ID,
			Name:       k.Name,
			Key:        k.Key,
			Type:       k.Type,
			IsActive:   k.IsActive,
			PartialKey: Mask(r.secrets[k.Key]),
			Status:     status(k, now),
			ExpiresAt:  k.ExpiresAt,
			LastUsedAt: k.LastUsedAt,
			CreatedAt:  k.CreatedAt,
			UpdatedAt:  k.UpdatedAt,
		})
	}
	return out, nil
}

func status(k *model.APIKey, now time.Time) string {
	if !k.IsActive {
		return StatusInactive
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return StatusExpired
	}
	return StatusHealthy
}

// Mask keeps the first and last four characters of a secret.
func Mask(secret string) string {
	if len(secret) < 8 {
		return "****-****-****-****"
	}
	var b strings.Builder
	b.WriteString(secret[:4])
	b.WriteString("****-****")
	b.WriteString(secret[len(secret)-4:])
	return b.String()
}
