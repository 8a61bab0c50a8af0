package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ChatContext is one stored conversation context row, keyed by phone and kind.
type ChatContext struct {
	Phone     string  `json:"phone"`
	Kind      string  `json:"kind"`
	DataJSON  string  `json:"data_json"`
	ExpiresAt *string `json:"expires_at,omitempty" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

// Expired reports whether the row's expiry lies at or before now.
func (c ChatContext) Expired(now time.Time) bool {
	if c.ExpiresAt == nil || *c.ExpiresAt == "" {
		return false
	}
	exp, err := time.Parse(time.RFC3339Nano, *c.ExpiresAt)
	if err != nil {
		return true
	}
	return !now.Before(exp)
}

// UpsertContext writes a context row, replacing any row with the same phone and kind.
func (r Repo) UpsertContext(ctx context.Context, c ChatContext) error {
	if strings.TrimSpace(c.Phone) == "" {
		return errors.New("phone required")
	}
	if c.Kind == "" {
		return errors.New("kind required")
	}
	if c.UpdatedAt == "" {
		c.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO chat_contexts(phone,kind,data_json,expires_at,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(phone,kind) DO UPDATE SET data_json=excluded.data_json, expires_at=excluded.expires_at, updated_at=excluded.updated_at`,
		c.Phone, c.Kind, c.DataJSON, nullableStringPtr(c.ExpiresAt), c.UpdatedAt)
	return err
}

// GetContext returns the row for phone and kind, expired or not.
func (r Repo) GetContext(ctx context.Context, phone, kind string) (ChatContext, error) {
	var c ChatContext
	var expires sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT phone,kind,data_json,expires_at,updated_at FROM chat_contexts WHERE phone=? AND kind=?`, phone, kind).
		Scan(&c.Phone, &c.Kind, &c.DataJSON, &expires, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return ChatContext{}, ErrNotFound
	}
	if err != nil {
		return ChatContext{}, err
	}
	if expires.Valid {
		c.ExpiresAt = &expires.String
	}
	return c, nil
}

// ListContexts returns every context row stored for phone.
func (r Repo) ListContexts(ctx context.Context, phone string) ([]ChatContext, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT phone,kind,data_json,expires_at,updated_at FROM chat_contexts WHERE phone=? ORDER BY kind`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ChatContext
	for rows.Next() {
		var c ChatContext
		var expires sql.NullString
		if err := rows.Scan(&c.Phone, &c.Kind, &c.DataJSON, &expires, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if expires.Valid {
			c.ExpiresAt = &expires.String
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// DeleteContext removes a row; deleting a missing row is not an error.
func (r Repo) DeleteContext(ctx context.Context, phone, kind string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM chat_contexts WHERE phone=? AND kind=?`, phone, kind)
	return err
}
