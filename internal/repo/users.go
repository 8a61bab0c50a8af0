package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"taskbot/internal/domain"
)

const userColumns = `id,COALESCE(full_name,''),COALESCE(email,''),COALESCE(mobile_no,''),enabled,user_type`

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var enabled int
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.MobileNo, &enabled, &u.UserType)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	u.Enabled = enabled == 1
	return u, err
}

// UpsertUser inserts or replaces a directory entry.
func (r Repo) UpsertUser(ctx context.Context, u domain.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("id required")
	}
	if u.UserType == "" {
		u.UserType = "System User"
	}
	enabled := 0
	if u.Enabled {
		enabled = 1
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,full_name,email,mobile_no,enabled,user_type,created_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET full_name=excluded.full_name, email=excluded.email, mobile_no=excluded.mobile_no, enabled=excluded.enabled, user_type=excluded.user_type`,
		u.ID, nullable(u.FullName), nullable(strings.ToLower(u.Email)), nullable(u.MobileNo), enabled, u.UserType, now)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

// FindUserByMobile returns the first enabled user whose mobile number ends
// with digits.
func (r Repo) FindUserByMobile(ctx context.Context, digits string) (domain.User, error) {
	if digits == "" {
		return domain.User{}, ErrNotFound
	}
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users
WHERE enabled=1 AND REPLACE(REPLACE(REPLACE(mobile_no,' ',''),'-',''),'+','') LIKE ? ORDER BY id LIMIT 1`, "%"+digits))
}

func (r Repo) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE enabled=1 AND email=? LIMIT 1`, strings.ToLower(email)))
}

// FindUserByFullName matches the full name case-insensitively.
func (r Repo) FindUserByFullName(ctx context.Context, name string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE enabled=1 AND LOWER(full_name)=LOWER(?) ORDER BY id LIMIT 1`, name))
}

type UserFilters struct {
	EnabledOnly bool
	UserType    string
	Limit       int
}

func (r Repo) ListUsers(ctx context.Context, f UserFilters) ([]domain.User, error) {
	var clauses []string
	var args []any
	if f.EnabledOnly {
		clauses = append(clauses, "enabled=1")
	}
	if f.UserType != "" {
		clauses = append(clauses, "user_type=?")
		args = append(args, f.UserType)
	}
	query := `SELECT ` + userColumns + ` FROM users`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
