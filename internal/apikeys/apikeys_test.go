package apikeys

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conftickets/internal/model"
	"conftickets/internal/repo"
)

type memStore struct {
	mu      sync.Mutex
	keys    []model.APIKey
	touched map[int64]time.Time
}

func (m *memStore) InsertAPIKeyIfMissing(_ context.Context, k *model.APIKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.keys {
		if e.Key == k.Key {
			return false, nil
		}
	}
	k.ID = int64(len(m.keys) + 1)
	m.keys = append(m.keys, *k)
	return true, nil
}

func (m *memStore) FindAPIKeyByType(_ context.Context, keyType string) (*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.Type == keyType {
			cp := k
			return &cp, nil
		}
	}
	return nil, repo.ErrAPIKeyNotFound
}

func (m *memStore) ListAPIKeys(context.Context) ([]model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.APIKey(nil), m.keys...), nil
}

func (m *memStore) TouchAPIKey(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touched == nil {
		m.touched = map[int64]time.Time{}
	}
	m.touched[id] = at
	return nil
}

func TestMask(t *testing.T) {
	assert.Equal(t, "re_1****-****wxyz", Mask("re_123456789wxyz"))
	assert.Equal(t, "abcd****-****efgh", Mask("abcdefgh"))
	assert.Equal(t, "****-****-****-****", Mask("short"))
	assert.Equal(t, "****-****-****-****", Mask(""))
}

func TestSeedIsIdempotent(t *testing.T) {
	store := &memStore{}
	r := NewRegistry(store, nil, nil)

	require.NoError(t, r.Seed(context.Background()))
	require.NoError(t, r.Seed(context.Background()))
	assert.Len(t, store.keys, len(Defaults))
}

func TestResolve(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	store := &memStore{keys: []model.APIKey{
		{ID: 1, Name: "mp_production", Key: "MP_ACCESS_TOKEN", Type: TypePayment, IsActive: true},
		{ID: 2, Name: "resend_main", Key: "RESEND_API_KEY", Type: TypeEmail, IsActive: true, ExpiresAt: &past},
		{ID: 3, Name: "smtp_main", Key: "SMTP_PASSWORD", Type: TypeSMTP, IsActive: false},
		{ID: 4, Name: "jwt_secret", Key: "JWT_SECRET", Type: TypeAuth, IsActive: true},
	}}
	r := NewRegistry(store, map[string]string{
		"MP_ACCESS_TOKEN": "APP_USR-123",
		"RESEND_API_KEY":  "re_abc",
		"SMTP_PASSWORD":   "pw",
	}, nil)
	r.now = func() time.Time { return now }

	secret, err := r.Resolve(context.Background(), TypePayment)
	require.NoError(t, err)
	assert.Equal(t, "APP_USR-123", secret)
	assert.Equal(t, now, store.touched[1])

	tests := []struct {
		keyType string
		want    error
	}{
		{TypeEmail, ErrKeyExpired},
		{TypeSMTP, ErrKeyInactive},
		{TypeAuth, ErrSecretMissing},
		{TypeWebhook, ErrKeyNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.keyType, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tt.keyType)
			assert.True(t, errors.Is(err, tt.want), err)
		})
	}
	assert.Len(t, store.touched, 1)
}

func TestInfo(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	store := &memStore{keys: []model.APIKey{
		{ID: 1, Name: "mp_production", Key: "MP_ACCESS_TOKEN", Type: TypePayment, IsActive: true},
		{ID: 2, Name: "resend_main", Key: "RESEND_API_KEY", Type: TypeEmail, IsActive: true, ExpiresAt: &past},
		{ID: 3, Name: "smtp_main", Key: "SMTP_PASSWORD", Type: TypeSMTP},
	}}
	r := NewRegistry(store, map[string]string{"MP_ACCESS_TOKEN": "APP_USR-1234567890"}, nil)
	r.now = func() time.Time { return now }

	infos, err := r.Info(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, StatusHealthy, infos[0].Status)
	assert.Equal(t, "APP_****-****7890", infos[0].PartialKey)
	assert.Equal(t, "MP_ACCESS_TOKEN", infos[0].Key)
	assert.NotContains(t, infos[0].PartialKey, "123456")

	assert.Equal(t, StatusExpired, infos[1].Status)
	assert.Equal(t, "****-****-****-****", infos[1].PartialKey)

	assert.Equal(t, StatusInactive, infos[2].Status)
}
