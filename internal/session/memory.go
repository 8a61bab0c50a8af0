package session

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is a bounded in-process cache. The least recently used entry is
// evicted once capacity is reached.
type MemoryStore struct {
	cache *lru.Cache[string, memEntry]
	Now   func() time.Time
}

func NewMemoryStore(capacity int) (*MemoryStore, error) {
	c, err := lru.New[string, memEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: c, Now: time.Now}, nil
}

func memKey(user, kind string) string {
	return user + "\x00" + kind
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MemoryStore) Get(_ context.Context, user, kind string) ([]byte, bool, error) {
	key := memKey(user, kind)
	e, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.cache.Remove(key)
		return nil, false, nil
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, true, nil
}

func (m *MemoryStore) Set(_ context.Context, user, kind string, data []byte, ttl time.Duration) error {
	e := memEntry{data: append([]byte(nil), data...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.cache.Add(memKey(user, kind), e)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, user, kind string) error {
	m.cache.Remove(memKey(user, kind))
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, user, kind string) (bool, error) {
	_, ok, err := m.Get(ctx, user, kind)
	return ok, err
}

// Len reports the number of cached entries, expired ones included.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
