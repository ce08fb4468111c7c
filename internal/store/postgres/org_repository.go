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
	"database/sql"
	"fmt"

	"github.com/credvault/credvault/internal/org"
	"github.com/jackc/pgx/v5"
)

// UnitRepository implements org.UnitRepository
type UnitRepository struct {
	db *DB
}

// NewUnitRepository creates a new organizational unit repository
func NewUnitRepository(db *DB) *UnitRepository {
	return &UnitRepository{db: db}
}

// Create creates an organizational unit
func (r *UnitRepository) Create(ctx context.Context, unit *org.OrganizationalUnit) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO organizational_units (
			id, name, code, description, manager_id, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		unit.ID, unit.Name, unit.Code, unit.Description, nullable(unit.ManagerID),
		unit.IsActive, unit.CreatedAt, unit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert organizational unit: %w", err)
	}
	return nil
}

// GetByID retrieves an organizational unit by ID
func (r *UnitRepository) GetByID(ctx context.Context, id string) (*org.OrganizationalUnit, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetByCode retrieves an organizational unit by code
func (r *UnitRepository) GetByCode(ctx context.Context, code string) (*org.OrganizationalUnit, error) {
	return r.getOne(ctx, `WHERE code = $1`, code)
}

func (r *UnitRepository) getOne(ctx context.Context, where string, arg any) (*org.OrganizationalUnit, error) {
	var unit org.OrganizationalUnit
	var managerID sql.NullString
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, code, description, manager_id, is_active, created_at, updated_at
		FROM organizational_units `+where,
		arg,
	).Scan(
		&unit.ID, &unit.Name, &unit.Code, &unit.Description, &managerID,
		&unit.IsActive, &unit.CreatedAt, &unit.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, org.ErrUnitNotFound
		}
		return nil, fmt.Errorf("failed to get organizational unit: %w", err)
	}
	unit.ManagerID = managerID.String
	return &unit, nil
}

// List lists organizational units
func (r *UnitRepository) List(ctx context.Context, activeOnly bool) ([]*org.OrganizationalUnit, error) {
	query := `
		SELECT id, name, code, description, manager_id, is_active, created_at, updated_at
		FROM organizational_units`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`

	rows, err := r.db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizational units: %w", err)
	}
	defer rows.Close()

	var units []*org.OrganizationalUnit
	for rows.Next() {
		var unit org.OrganizationalUnit
		var managerID sql.NullString
		if err := rows.Scan(
			&unit.ID, &unit.Name, &unit.Code, &unit.Description, &managerID,
			&unit.IsActive, &unit.CreatedAt, &unit.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan organizational unit: %w", err)
		}
		unit.ManagerID = managerID.String
		units = append(units, &unit)
	}
	return units, rows.Err()
}

// CountByIDs counts how many of the given IDs exist
func (r *UnitRepository) CountByIDs(ctx context.Context, ids []string) (int, error) {
	var n int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM organizational_units WHERE id = ANY($1)
	`, ids).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count organizational units: %w", err)
	}
	return n, nil
}

// DivisionRepository implements org.DivisionRepository
type DivisionRepository struct {
	db *DB
}

// NewDivisionRepository creates a new division repository
func NewDivisionRepository(db *DB) *DivisionRepository {
	return &DivisionRepository{db: db}
}

// Create creates a division
func (r *DivisionRepository) Create(ctx context.Context, division *org.Division) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO divisions (
			id, name, code, organizational_unit_id, description, lead_id,
			is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		division.ID, division.Name, division.Code, division.OrganizationalUnitID,
		division.Description, nullable(division.LeadID),
		division.IsActive, division.CreatedAt, division.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert division: %w", err)
	}
	return nil
}

// GetByID retrieves a division by ID
func (r *DivisionRepository) GetByID(ctx context.Context, id string) (*org.Division, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetByCode retrieves a division by code
func (r *DivisionRepository) GetByCode(ctx context.Context, code string) (*org.Division, error) {
	return r.getOne(ctx, `WHERE code = $1`, code)
}

func (r *DivisionRepository) getOne(ctx context.Context, where string, arg any) (*org.Division, error) {
	var division org.Division
	var leadID sql.NullString
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, code, organizational_unit_id, description, lead_id,
			is_active, created_at, updated_at
		FROM divisions `+where,
		arg,
	).Scan(
		&division.ID, &division.Name, &division.Code, &division.OrganizationalUnitID,
		&division.Description, &leadID,
		&division.IsActive, &division.CreatedAt, &division.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, org.ErrDivisionNotFound
		}
		return nil, fmt.Errorf("failed to get division: %w", err)
	}
	division.LeadID = leadID.String
	return &division, nil
}

// List lists divisions
func (r *DivisionRepository) List(ctx context.Context, activeOnly bool) ([]*org.Division, error) {
	query := `
		SELECT id, name, code, organizational_unit_id, description, lead_id,
			is_active, created_at, updated_at
		FROM divisions`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`
	return r.list(ctx, query)
}

// ListByUnit lists the divisions of one organizational unit
func (r *DivisionRepository) ListByUnit(ctx context.Context, unitID string) ([]*org.Division, error) {
	return r.list(ctx, `
		SELECT id, name, code, organizational_unit_id, description, lead_id,
			is_active, created_at, updated_at
		FROM divisions
		WHERE organizational_unit_id = $1 AND is_active
		ORDER BY name`, unitID)
}

func (r *DivisionRepository) list(ctx context.Context, query string, args ...any) ([]*org.Division, error) {
	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list divisions: %w", err)
	}
	defer rows.Close()

	var divisions []*org.Division
	for rows.Next() {
		var division org.Division
		var leadID sql.NullString
		if err := rows.Scan(
			&division.ID, &division.Name, &division.Code, &division.OrganizationalUnitID,
			&division.Description, &leadID,
			&division.IsActive, &division.CreatedAt, &division.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan division: %w", err)
		}
		division.LeadID = leadID.String
		divisions = append(divisions, &division)
	}
	return divisions, rows.Err()
}

// CountByIDs counts how many of the given IDs exist
func (r *DivisionRepository) CountByIDs(ctx context.Context, ids []string) (int, error) {
	var n int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM divisions WHERE id = ANY($1)
	`, ids).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count divisions: %w", err)
	}
	return n, nil
}

// nullable maps the empty string to SQL NULL for optional UUID columns
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
