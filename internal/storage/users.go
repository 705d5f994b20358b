package storage

import (
	"context"
	"fmt"
)

// CreateUser inserts a new user and sets u.ID. A taken username or email
// yields ErrDuplicate.
func (d *DB) CreateUser(ctx context.Context, u *User) error {
	err := d.queryRow(ctx,
		`INSERT INTO users (username, email, password_hash, created_at)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		u.Username, u.Email, u.PasswordHash, u.CreatedAt,
	).Scan(&u.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("create user: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const userColumns = `id, username, email, password_hash, created_at`

// GetUser retrieves a user by ID.
func (d *DB) GetUser(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	err := d.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get user")
	}
	return u, nil
}

// GetUserByUsername retrieves a user by exact username.
func (d *DB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	err := d.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get user by username")
	}
	return u, nil
}

// GetUserByLogin retrieves a user whose username or email equals login.
// A username match wins over an email match.
func (d *DB) GetUserByLogin(ctx context.Context, login string) (*User, error) {
	u := &User{}
	err := d.queryRow(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE username = ? OR email = ?
		 ORDER BY CASE WHEN username = ? THEN 0 ELSE 1 END
		 LIMIT 1`, login, login, login,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get user by login")
	}
	return u, nil
}

// ListUsers returns all users ordered by username.
func (d *DB) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := d.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdatePasswordHash replaces the stored hash for a user.
func (d *DB) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := d.exec(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return expectOne(res, "update password hash")
}

// DeleteUser removes a user. Albums, photos and grants go with it through
// the ON DELETE CASCADE constraints.
func (d *DB) DeleteUser(ctx context.Context, id int64) error {
	res, err := d.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectOne(res, "delete user")
}
