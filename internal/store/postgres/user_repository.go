// Copyright 2026 The CredVault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/credvault/credvault/internal/identity"
	"github.com/jackc/pgx/v5"
)

// UserRepository implements identity.UserRepository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO users (
			id, username, email, password_hash, role, is_active,
			login_attempts, lock_until, last_login, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.IsActive,
		user.LoginAttempts, user.LockUntil, user.LastLogin, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetByEmail retrieves a user by normalized email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	return r.getOne(ctx, `WHERE email = $1`, email)
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	return r.getOne(ctx, `WHERE username = $1`, username)
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*identity.User, error) {
	var user identity.User
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, role, is_active,
			login_attempts, lock_until, last_login, created_at, updated_at
		FROM users `+where,
		arg,
	).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.IsActive,
		&user.LoginAttempts, &user.LockUntil, &user.LastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := r.loadMemberships(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) loadMemberships(ctx context.Context, user *identity.User) error {
	rows, err := r.db.pool.Query(ctx, `
		SELECT organizational_unit_id FROM user_organizational_units WHERE user_id = $1
	`, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load unit memberships: %w", err)
	}
	user.OrganizationalUnitIDs, err = collectIDs(rows)
	if err != nil {
		return err
	}

	rows, err = r.db.pool.Query(ctx, `
		SELECT division_id FROM user_divisions WHERE user_id = $1
	`, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load division memberships: %w", err)
	}
	user.DivisionIDs, err = collectIDs(rows)
	return err
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Update persists role, assignment and activation changes. Membership sets
// are replaced wholesale inside one transaction.
func (r *UserRepository) Update(ctx context.Context, user *identity.User) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET username = $2, email = $3, role = $4, is_active = $5, updated_at = $6
			WHERE id = $1
		`, user.ID, user.Username, user.Email, user.Role, user.IsActive, user.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return identity.ErrUserNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM user_organizational_units WHERE user_id = $1`, user.ID); err != nil {
			return fmt.Errorf("failed to clear unit memberships: %w", err)
		}
		for _, unitID := range user.OrganizationalUnitIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO user_organizational_units (user_id, organizational_unit_id) VALUES ($1, $2)
			`, user.ID, unitID); err != nil {
				return fmt.Errorf("failed to insert unit membership: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM user_divisions WHERE user_id = $1`, user.ID); err != nil {
			return fmt.Errorf("failed to clear division memberships: %w", err)
		}
		for _, divisionID := range user.DivisionIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO user_divisions (user_id, division_id) VALUES ($1, $2)
			`, user.ID, divisionID); err != nil {
				return fmt.Errorf("failed to insert division membership: %w", err)
			}
		}
		return nil
	})
}

// UpdateLockout updates failed-attempt state
func (r *UserRepository) UpdateLockout(ctx context.Context, userID string, attempts int, lockUntil *time.Time) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users SET login_attempts = $2, lock_until = $3, updated_at = NOW() WHERE id = $1
	`, userID, attempts, lockUntil)
	if err != nil {
		return fmt.Errorf("failed to update lockout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// RecordLogin clears lockout state and stamps the last login time
func (r *UserRepository) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users
		SET login_attempts = 0, lock_until = NULL, last_login = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, at)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// UpdatePassword replaces the stored password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// List returns users matching the filter plus the total match count
func (r *UserRepository) List(ctx context.Context, filter identity.ListFilter) ([]*identity.User, int, error) {
	where := `WHERE 1=1`
	args := []any{}
	n := 0

	if filter.Role != "" {
		n++
		where += fmt.Sprintf(` AND role = $%d`, n)
		args = append(args, filter.Role)
	}
	if filter.Search != "" {
		n++
		where += fmt.Sprintf(` AND (username ILIKE $%d OR email ILIKE $%d)`, n, n)
		args = append(args, "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `
		SELECT id, username, email, password_hash, role, is_active,
			login_attempts, lock_until, last_login, created_at, updated_at
		FROM users ` + where + fmt.Sprintf(`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, n+1, n+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*identity.User
	for rows.Next() {
		var user identity.User
		if err := rows.Scan(
			&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.IsActive,
			&user.LoginAttempts, &user.LockUntil, &user.LastLogin, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}

	for _, user := range users {
		if err := r.loadMemberships(ctx, user); err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}
