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

	"github.com/credvault/credvault/internal/identity"
	"github.com/jackc/pgx/v5"
)

// ResetTokenRepository implements identity.ResetTokenRepository
type ResetTokenRepository struct {
	db *DB
}

// NewResetTokenRepository creates a new reset token repository
func NewResetTokenRepository(db *DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Create stores a new token
func (r *ResetTokenRepository) Create(ctx context.Context, token *identity.ResetToken) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, token.ID, token.UserID, token.Token, token.ExpiresAt, token.Used, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reset token: %w", err)
	}
	return nil
}

// GetByToken retrieves a token by its opaque value
func (r *ResetTokenRepository) GetByToken(ctx context.Context, token string) (*identity.ResetToken, error) {
	var t identity.ResetToken
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, user_id, token, expires_at, used, created_at
		FROM password_reset_tokens
		WHERE token = $1
	`, token).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrResetTokenInvalid
		}
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}
	return &t, nil
}

// MarkUsed invalidates a token after successful use
func (r *ResetTokenRepository) MarkUsed(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE password_reset_tokens SET used = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark reset token used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrResetTokenInvalid
	}
	return nil
}

// DeleteExpired purges tokens past their expiry
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM password_reset_tokens WHERE expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
