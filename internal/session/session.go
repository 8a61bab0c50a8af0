// Package session keeps per-user conversation contexts. A context is keyed by
// the sender's phone number and a context kind; writing a kind replaces any
// earlier value of that kind, and expired entries read as absent.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskbot/internal/config"
)

// Store is the raw key-value contract. All methods are safe to call when no
// state exists: Get reports absent and Clear is a no-op.
type Store interface {
	Get(ctx context.Context, user, kind string) ([]byte, bool, error)
	Set(ctx context.Context, user, kind string, data []byte, ttl time.Duration) error
	Clear(ctx context.Context, user, kind string) error
	Exists(ctx context.Context, user, kind string) (bool, error)
}

// Payload is implemented by every typed context value.
type Payload interface {
	Kind() string
}

// Kinds lists every context kind in a stable order.
var Kinds = []string{
	config.KindPendingTasks,
	config.KindGuidedFlow,
	config.KindDeadlineEdit,
	config.KindPendingTaskAssign,
	config.KindTaskList,
	config.KindDeadlineEditTask,
}

// Sessions pairs a Store with the per-kind expiry table.
type Sessions struct {
	Store Store
	TTL   func(kind string) time.Duration
}

func New(store Store, cfg *config.Config) Sessions {
	return Sessions{Store: store, TTL: cfg.TTL}
}

// Save serializes p and writes it under its kind.
func (s Sessions) Save(ctx context.Context, user string, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.Kind(), err)
	}
	var ttl time.Duration
	if s.TTL != nil {
		ttl = s.TTL(p.Kind())
	}
	return s.Store.Set(ctx, user, p.Kind(), data, ttl)
}

func (s Sessions) Clear(ctx context.Context, user string, kinds ...string) error {
	for _, kind := range kinds {
		if err := s.Store.Clear(ctx, user, kind); err != nil {
			return fmt.Errorf("clear %s: %w", kind, err)
		}
	}
	return nil
}

func (s Sessions) Exists(ctx context.Context, user, kind string) (bool, error) {
	return s.Store.Exists(ctx, user, kind)
}

// Load reads the context of P's kind for user.
func Load[P Payload](ctx context.Context, s Sessions, user string) (P, bool, error) {
	var p P
	data, ok, err := s.Store.Get(ctx, user, p.Kind())
	if err != nil || !ok {
		return p, false, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, false, fmt.Errorf("decode %s: %w", p.Kind(), err)
	}
	return p, true, nil
}

// Snapshot returns the raw JSON of every live context for user.
func (s Sessions) Snapshot(ctx context.Context, user string) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	for _, kind := range Kinds {
		data, ok, err := s.Store.Get(ctx, user, kind)
		if err != nil {
			return nil, err
		}
		if ok {
			out[kind] = json.RawMessage(data)
		}
	}
	return out, nil
}

// ClearAll drops every context kind for user.
func (s Sessions) ClearAll(ctx context.Context, user string) error {
	return s.Clear(ctx, user, Kinds...)
}
