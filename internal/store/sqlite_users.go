package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/seantiz/showcase/internal/model"
)

// CreateUser inserts an administrative user.
func (t *sqlTx) CreateUser(ctx context.Context, u *model.User) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO users (id, first_name, last_name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (t *sqlTx) GetUser(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	err := t.q.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, password_hash, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers returns all users ordered by ID.
func (t *sqlTx) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, first_name, last_name, email, password_hash, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// DeleteUser removes a user.
func (t *sqlTx) DeleteUser(ctx context.Context, id string) error {
	result, err := t.q.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return checkAffected(result, "user "+id)
}

// CountUsers returns the number of users.
func (t *sqlTx) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := t.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// isUniqueViolation reports whether err is a SQLite primary key or unique
// constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
