package session

import (
	"context"
	"errors"
	"time"

	"taskbot/internal/repo"
)

// SQLStore keeps contexts in the chat_contexts table so they survive
// restarts. Expired rows are treated as absent and dropped lazily.
type SQLStore struct {
	Repo repo.Repo
	Now  func() time.Time
}

func NewSQLStore(r repo.Repo) *SQLStore {
	return &SQLStore{Repo: r, Now: time.Now}
}

func (s *SQLStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SQLStore) Get(ctx context.Context, user, kind string) ([]byte, bool, error) {
	c, err := s.Repo.GetContext(ctx, user, kind)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if c.Expired(s.now()) {
		if err := s.Repo.DeleteContext(ctx, user, kind); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return []byte(c.DataJSON), true, nil
}

func (s *SQLStore) Set(ctx context.Context, user, kind string, data []byte, ttl time.Duration) error {
	now := s.now().UTC()
	c := repo.ChatContext{
		Phone:     user,
		Kind:      kind,
		DataJSON:  string(data),
		UpdatedAt: now.Format(time.RFC3339Nano),
	}
	if ttl > 0 {
		exp := now.Add(ttl).Format(time.RFC3339Nano)
		c.ExpiresAt = &exp
	}
	return s.Repo.UpsertContext(ctx, c)
}

func (s *SQLStore) Clear(ctx context.Context, user, kind string) error {
	return s.Repo.DeleteContext(ctx, user, kind)
}

func (s *SQLStore) Exists(ctx context.Context, user, kind string) (bool, error) {
	_, ok, err := s.Get(ctx, user, kind)
	return ok, err
}
