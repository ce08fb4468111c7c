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
	"errors"
	"time"
)

// Domain errors
var (
	ErrUnitNotFound     = errors.New("organizational unit not found")
	ErrDivisionNotFound = errors.New("division not found")
	ErrInvalidUnitName  = errors.New("unknown organizational unit name")
	ErrDuplicateCode    = errors.New("code is already in use")
	ErrMissingCode      = errors.New("code is required")
	ErrMissingName      = errors.New("name is required")
)

// UnitNames is the closed set of organizational unit names. The structure
// of the publishing organization is fixed; new unit names are a schema
// change, not runtime data.
var UnitNames = []string{
	"News Management",
	"Software Reviews",
	"Hardware Reviews",
	"Opinion Publishing",
}

// ValidUnitName reports whether name belongs to the closed set
func ValidUnitName(name string) bool {
	for _, n := range UnitNames {
		if n == name {
			return true
		}
	}
	return false
}

// OrganizationalUnit is a top-level branch of the organization
type OrganizationalUnit struct {
	ID          string
	Name        string
	Code        string
	Description string
	ManagerID   string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Division is a working group inside an organizational unit. Each division
// owns exactly one credential repository.
type Division struct {
	ID                   string
	Name                 string
	Code                 string
	OrganizationalUnitID string
	Description          string
	LeadID               string
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// UnitWithDivisions is a unit hydrated with its divisions for structure views
type UnitWithDivisions struct {
	Unit      *OrganizationalUnit
	Divisions []*Division
}

// UnitRepository defines the interface for organizational unit persistence
type UnitRepository interface {
	Create(ctx context.Context, unit *OrganizationalUnit) error
	GetByID(ctx context.Context, id string) (*OrganizationalUnit, error)
	GetByCode(ctx context.Context, code string) (*OrganizationalUnit, error)
	List(ctx context.Context, activeOnly bool) ([]*OrganizationalUnit, error)
	CountByIDs(ctx context.Context, ids []string) (int, error)
}

// DivisionRepository defines the interface for division persistence
type DivisionRepository interface {
	Create(ctx context.Context, division *Division) error
	GetByID(ctx context.Context, id string) (*Division, error)
	GetByCode(ctx context.Context, code string) (*Division, error)
	List(ctx context.Context, activeOnly bool) ([]*Division, error)
	ListByUnit(ctx context.Context, unitID string) ([]*Division, error)
	CountByIDs(ctx context.Context, ids []string) (int, error)
}
