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

	"github.com/credvault/credvault/internal/vault"
	"github.com/jackc/pgx/v5"
)

// VaultRepository implements vault.RepositoryStore. The aggregate spans the
// credential_repositories row and its credentials rows; writes go through a
// compare-and-swap on the version column.
type VaultRepository struct {
	db *DB
}

// NewVaultRepository creates a new vault repository store
func NewVaultRepository(db *DB) *VaultRepository {
	return &VaultRepository{db: db}
}

// Create stores a new empty repository
func (r *VaultRepository) Create(ctx context.Context, repo *vault.Repository) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO credential_repositories (id, division_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, repo.ID, repo.DivisionID, repo.Version, repo.CreatedAt, repo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert repository: %w", err)
	}
	return nil
}

// GetByDivision retrieves the repository owned by the division
func (r *VaultRepository) GetByDivision(ctx context.Context, divisionID string) (*vault.Repository, error) {
	return r.getOne(ctx, `WHERE division_id = $1`, divisionID)
}

// GetByCredential retrieves the repository containing the credential
func (r *VaultRepository) GetByCredential(ctx context.Context, credentialID string) (*vault.Repository, error) {
	return r.getOne(ctx, `WHERE id = (SELECT repository_id FROM credentials WHERE id = $1)`, credentialID)
}

func (r *VaultRepository) getOne(ctx context.Context, where string, arg any) (*vault.Repository, error) {
	var repo vault.Repository
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, division_id, version, created_at, updated_at
		FROM credential_repositories `+where,
		arg,
	).Scan(&repo.ID, &repo.DivisionID, &repo.Version, &repo.CreatedAt, &repo.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, vault.ErrRepositoryNotFound
		}
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}

	creds, err := r.loadCredentials(ctx, []string{repo.ID})
	if err != nil {
		return nil, err
	}
	repo.Credentials = creds[repo.ID]
	return &repo, nil
}

// Update persists the aggregate if its version is unchanged since the read.
// The version bump and every credential upsert commit atomically.
func (r *VaultRepository) Update(ctx context.Context, repo *vault.Repository) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE credential_repositories
			SET version = version + 1, updated_at = $3
			WHERE id = $1 AND version = $2
		`, repo.ID, repo.Version, repo.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update repository: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return vault.ErrVersionConflict
		}

		// Credentials are never removed from the aggregate, so an upsert
		// per credential covers appends, edits and soft deletes
		for _, cred := range repo.Credentials {
			if _, err := tx.Exec(ctx, `
				INSERT INTO credentials (
					id, repository_id, title, category, url, username, password,
					notes, tags, created_by, last_updated_by, last_accessed,
					access_count, expires_at, is_active,
					created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
				ON CONFLICT (id) DO UPDATE SET
					title = EXCLUDED.title,
					category = EXCLUDED.category,
					url = EXCLUDED.url,
					username = EXCLUDED.username,
					password = EXCLUDED.password,
					notes = EXCLUDED.notes,
					tags = EXCLUDED.tags,
					last_updated_by = EXCLUDED.last_updated_by,
					last_accessed = EXCLUDED.last_accessed,
					access_count = EXCLUDED.access_count,
					expires_at = EXCLUDED.expires_at,
					is_active = EXCLUDED.is_active,
					updated_at = EXCLUDED.updated_at
			`,
				cred.ID, repo.ID, cred.Title, cred.Category, cred.URL, cred.Username, cred.Password,
				cred.Notes, cred.Tags, cred.CreatedByID, nullable(cred.LastUpdatedByID), cred.LastAccessed,
				cred.AccessCount, cred.ExpiresAt, cred.IsActive,
				cred.CreatedAt, cred.UpdatedAt,
			); err != nil {
				return fmt.Errorf("failed to upsert credential %s: %w", cred.ID, err)
			}
		}

		repo.Version++
		return nil
	})
}

// ListByDivisions retrieves the repositories of the given divisions with
// their credentials
func (r *VaultRepository) ListByDivisions(ctx context.Context, divisionIDs []string) ([]*vault.Repository, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, division_id, version, created_at, updated_at
		FROM credential_repositories
		WHERE division_id = ANY($1)
	`, divisionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer rows.Close()

	var repos []*vault.Repository
	var repoIDs []string
	for rows.Next() {
		var repo vault.Repository
		if err := rows.Scan(&repo.ID, &repo.DivisionID, &repo.Version, &repo.CreatedAt, &repo.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan repository: %w", err)
		}
		repos = append(repos, &repo)
		repoIDs = append(repoIDs, repo.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate repositories: %w", err)
	}
	if len(repos) == 0 {
		return repos, nil
	}

	creds, err := r.loadCredentials(ctx, repoIDs)
	if err != nil {
		return nil, err
	}
	for _, repo := range repos {
		repo.Credentials = creds[repo.ID]
	}
	return repos, nil
}

func (r *VaultRepository) loadCredentials(ctx context.Context, repoIDs []string) (map[string][]*vault.Credential, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, repository_id, title, category, url, username, password,
			notes, tags, created_by, COALESCE(last_updated_by::text, ''), last_accessed,
			access_count, expires_at, is_active,
			created_at, updated_at
		FROM credentials
		WHERE repository_id = ANY($1)
		ORDER BY created_at
	`, repoIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]*vault.Credential)
	for rows.Next() {
		var cred vault.Credential
		var repoID string
		if err := rows.Scan(
			&cred.ID, &repoID, &cred.Title, &cred.Category, &cred.URL, &cred.Username, &cred.Password,
			&cred.Notes, &cred.Tags, &cred.CreatedByID, &cred.LastUpdatedByID, &cred.LastAccessed,
			&cred.AccessCount, &cred.ExpiresAt, &cred.IsActive,
			&cred.CreatedAt, &cred.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		out[repoID] = append(out[repoID], &cred)
	}
	return out, rows.Err()
}
