package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"foodforge/internal/store"
)

// RefreshStore records issued refresh tokens by jti.
type RefreshStore interface {
	Save(ctx context.Context, jti, subject string, expiresAt time.Time) error
	// Revoke marks jti revoked. It reports false when jti is unknown or was
	// already revoked, so a token can be spent only once.
	Revoke(ctx context.Context, jti string) (bool, error)
}

// SQLRefreshStore keeps refresh tokens in the refresh_tokens table.
type SQLRefreshStore struct {
	db *store.DB
}

func NewSQLRefreshStore(db *store.DB) *SQLRefreshStore {
	return &SQLRefreshStore{db: db}
}

// Save stores a refresh token for rotation checks.
func (s *SQLRefreshStore) Save(ctx context.Context, jti, subject string, expiresAt time.Time) error {
	if jti == "" || subject == "" {
		return errors.New("auth: jti and subject required")
	}
	_, err := s.db.Client.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO refresh_tokens (jti, user_id, expires_at)
		VALUES ($1, $2, $3)
	`), jti, subject, expiresAt.UTC())
	return err
}

// Revoke flips revoked in a single statement so concurrent refreshes of the
// same token cannot both win.
func (s *SQLRefreshStore) Revoke(ctx context.Context, jti string) (bool, error) {
	res, err := s.db.Client.ExecContext(ctx, s.db.Rebind(`
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE jti = $1 AND NOT revoked
	`), jti)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MemoryRefreshStore is a process-local RefreshStore.
type MemoryRefreshStore struct {
	mu     sync.Mutex
	tokens map[string]bool
}

func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{tokens: make(map[string]bool)}
}

func (m *MemoryRefreshStore) Save(_ context.Context, jti, subject string, _ time.Time) error {
	if jti == "" || subject == "" {
		return errors.New("auth: jti and subject required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[jti] = false
	return nil
}

func (m *MemoryRefreshStore) Revoke(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	revoked, ok := m.tokens[jti]
	if !ok || revoked {
		return false, nil
	}
	m.tokens[jti] = true
	return true, nil
}
