package identity

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store, used in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]Identity
	byEmail map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]Identity),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, id Identity) error {
	id.Email = NormalizeEmail(id.Email)
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now()
	}
	id.CreatedAt = id.CreatedAt.UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byEmail[id.Email]; taken {
		return ErrEmailTaken
	}
	m.byID[id.ID] = id
	m.byEmail[id.Email] = id.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found, ok := m.byID[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return found, nil
}

func (m *MemoryStore) GetByEmail(ctx context.Context, email string) (Identity, error) {
	m.mu.RLock()
	id, ok := m.byEmail[NormalizeEmail(email)]
	m.mu.RUnlock()
	if !ok {
		return Identity{}, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *MemoryStore) ListByRole(_ context.Context, role Role) ([]Identity, error) {
	m.mu.RLock()
	res := []Identity{}
	for _, id := range m.byID {
		if id.Role == role {
			res = append(res, id)
		}
	}
	m.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) FullName(ctx context.Context, id string) (string, error) {
	found, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return found.FullName, nil
}
