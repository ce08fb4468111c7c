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
	"encoding/json"
	"fmt"
	"time"

	"github.com/credvault/credvault/internal/audit"
)

// AuditRepository implements audit.EntryRepository
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit trail repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends an entry to the trail
func (r *AuditRepository) Insert(ctx context.Context, entry *audit.Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}
	if entry.Details == nil {
		details = []byte("{}")
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO audit_entries (
			id, user_id, username, action, resource_type, resource_id,
			division_id, details, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		entry.ID, nullable(entry.UserID), entry.Username, entry.Action,
		entry.ResourceType, entry.ResourceID, entry.DivisionID,
		details, entry.IPAddress, entry.UserAgent, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// List returns entries matching the filter, newest first, plus the total
// match count
func (r *AuditRepository) List(ctx context.Context, filter audit.ListFilter) ([]*audit.Entry, int, error) {
	where := `WHERE 1=1`
	args := []any{}
	n := 0

	add := func(clause string, value any) {
		n++
		where += fmt.Sprintf(clause, n)
		args = append(args, value)
	}
	if filter.UserID != "" {
		add(` AND user_id = $%d`, filter.UserID)
	}
	if filter.Action != "" {
		add(` AND action = $%d`, filter.Action)
	}
	if filter.ResourceType != "" {
		add(` AND resource_type = $%d`, filter.ResourceType)
	}
	if filter.DivisionID != "" {
		add(` AND division_id = $%d`, filter.DivisionID)
	}
	if !filter.From.IsZero() {
		add(` AND created_at >= $%d`, filter.From)
	}
	if !filter.To.IsZero() {
		add(` AND created_at <= $%d`, filter.To)
	}

	var total int
	if err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, COALESCE(user_id::text, ''), username, action, resource_type,
			resource_id, division_id, details, ip_address, user_agent, created_at
		FROM audit_entries ` + where + fmt.Sprintf(`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, n+1, n+2)
	args = append(args, limit, filter.Offset)

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		var entry audit.Entry
		var details []byte
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.Username, &entry.Action, &entry.ResourceType,
			&entry.ResourceID, &entry.DivisionID, &details, &entry.IPAddress, &entry.UserAgent,
			&entry.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal details: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	return entries, total, rows.Err()
}

// DeleteOlderThan purges entries created before the cutoff
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM audit_entries WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
