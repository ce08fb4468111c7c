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

	"github.com/credvault/credvault/internal/stats"
)

// StatsRepository implements stats.MetricsSource with SQL aggregates
type StatsRepository struct {
	db *DB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// CountUsers returns the total and active user counts
func (r *StatsRepository) CountUsers(ctx context.Context) (int, int, error) {
	var total, active int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM users
	`).Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count users: %w", err)
	}
	return total, active, nil
}

// CountUsersByRole tallies users per role, largest first
func (r *StatsRepository) CountUsersByRole(ctx context.Context) ([]stats.RoleCount, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT role, COUNT(*) FROM users GROUP BY role ORDER BY COUNT(*) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count users by role: %w", err)
	}
	defer rows.Close()

	var out []stats.RoleCount
	for rows.Next() {
		var rc stats.RoleCount
		if err := rows.Scan(&rc.Role, &rc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan role count: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// CountCredentials returns the total and active credential counts
func (r *StatsRepository) CountCredentials(ctx context.Context) (int, int, error) {
	var total, active int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM credentials
	`).Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count credentials: %w", err)
	}
	return total, active, nil
}

// CountCredentialsByCategory tallies active credentials per category,
// largest first
func (r *StatsRepository) CountCredentialsByCategory(ctx context.Context) ([]stats.CategoryCount, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT category, COUNT(*) FROM credentials
		WHERE is_active
		GROUP BY category ORDER BY COUNT(*) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count credentials by category: %w", err)
	}
	defer rows.Close()

	var out []stats.CategoryCount
	for rows.Next() {
		var cc stats.CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// CountCredentialsExpiringWithin counts active credentials whose expiry
// falls inside the window from now
func (r *StatsRepository) CountCredentialsExpiringWithin(ctx context.Context, window time.Duration) (int, error) {
	var n int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM credentials
		WHERE is_active
		  AND expires_at IS NOT NULL
		  AND expires_at >= NOW()
		  AND expires_at <= NOW() + make_interval(secs => $1)
	`, window.Seconds()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count expiring credentials: %w", err)
	}
	return n, nil
}

// CountStructure returns the active organizational unit and division counts
func (r *StatsRepository) CountStructure(ctx context.Context) (int, int, error) {
	var units, divisions int
	err := r.db.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM organizational_units WHERE is_active),
			(SELECT COUNT(*) FROM divisions WHERE is_active)
	`).Scan(&units, &divisions)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count structure: %w", err)
	}
	return units, divisions, nil
}
