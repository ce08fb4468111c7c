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

package org

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/credvault/credvault/internal/id"
)

// Service provides organizational structure business logic. It also backs
// identity assignment validation via the StructureValidator interface.
type Service struct {
	units     UnitRepository
	divisions DivisionRepository
}

// NewService creates a new org service
func NewService(units UnitRepository, divisions DivisionRepository) *Service {
	return &Service{units: units, divisions: divisions}
}

// CreateUnit creates an organizational unit. The name must belong to the
// closed unit name set and the code must be unique.
func (s *Service) CreateUnit(ctx context.Context, name, code, description, managerID string) (*OrganizationalUnit, error) {
	if !ValidUnitName(name) {
		return nil, ErrInvalidUnitName
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrMissingCode
	}
	if existing, err := s.units.GetByCode(ctx, code); err == nil && existing != nil {
		return nil, ErrDuplicateCode
	}

	now := time.Now()
	unit := &OrganizationalUnit{
		ID:          id.NewUUIDv7(),
		Name:        name,
		Code:        code,
		Description: description,
		ManagerID:   managerID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.units.Create(ctx, unit); err != nil {
		return nil, fmt.Errorf("failed to create organizational unit: %w", err)
	}
	return unit, nil
}

// CreateDivision creates a division under an existing organizational unit
func (s *Service) CreateDivision(ctx context.Context, name, code, unitID, description, leadID string) (*Division, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrMissingName
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrMissingCode
	}

	unit, err := s.units.GetByID(ctx, unitID)
	if err != nil || unit == nil {
		return nil, ErrUnitNotFound
	}
	if existing, err := s.divisions.GetByCode(ctx, code); err == nil && existing != nil {
		return nil, ErrDuplicateCode
	}

	now := time.Now()
	division := &Division{
		ID:                   id.NewUUIDv7(),
		Name:                 name,
		Code:                 code,
		OrganizationalUnitID: unit.ID,
		Description:          description,
		LeadID:               leadID,
		IsActive:             true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.divisions.Create(ctx, division); err != nil {
		return nil, fmt.Errorf("failed to create division: %w", err)
	}
	return division, nil
}

// GetUnit retrieves an organizational unit by ID
func (s *Service) GetUnit(ctx context.Context, unitID string) (*OrganizationalUnit, error) {
	unit, err := s.units.GetByID(ctx, unitID)
	if err != nil || unit == nil {
		return nil, ErrUnitNotFound
	}
	return unit, nil
}

// GetDivision retrieves a division by ID
func (s *Service) GetDivision(ctx context.Context, divisionID string) (*Division, error) {
	division, err := s.divisions.GetByID(ctx, divisionID)
	if err != nil || division == nil {
		return nil, ErrDivisionNotFound
	}
	return division, nil
}

// ListUnits lists organizational units
func (s *Service) ListUnits(ctx context.Context, activeOnly bool) ([]*OrganizationalUnit, error) {
	return s.units.List(ctx, activeOnly)
}

// ListDivisions lists divisions
func (s *Service) ListDivisions(ctx context.Context, activeOnly bool) ([]*Division, error) {
	return s.divisions.List(ctx, activeOnly)
}

// Structure returns every active unit hydrated with its divisions
func (s *Service) Structure(ctx context.Context) ([]*UnitWithDivisions, error) {
	units, err := s.units.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}

	out := make([]*UnitWithDivisions, 0, len(units))
	for _, unit := range units {
		divisions, err := s.divisions.ListByUnit(ctx, unit.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list divisions for unit %s: %w", unit.ID, err)
		}
		out = append(out, &UnitWithDivisions{Unit: unit, Divisions: divisions})
	}
	return out, nil
}

// OrganizationalUnitsExist reports whether every referenced unit exists.
// Implements identity.StructureValidator.
func (s *Service) OrganizationalUnitsExist(ctx context.Context, ids []string) (bool, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return true, nil
	}
	n, err := s.units.CountByIDs(ctx, unique)
	if err != nil {
		return false, fmt.Errorf("failed to count units: %w", err)
	}
	return n == len(unique), nil
}

// DivisionsExist reports whether every referenced division exists.
// Implements identity.StructureValidator.
func (s *Service) DivisionsExist(ctx context.Context, ids []string) (bool, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return true, nil
	}
	n, err := s.divisions.CountByIDs(ctx, unique)
	if err != nil {
		return false, fmt.Errorf("failed to count divisions: %w", err)
	}
	return n == len(unique), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
