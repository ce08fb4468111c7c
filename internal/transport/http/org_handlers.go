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

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/credvault/credvault/internal/observability/logger"
	"github.com/credvault/credvault/internal/org"
)

// UnitView is the wire shape of an organizational unit with its divisions
type UnitView struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Code        string         `json:"code"`
	Description string         `json:"description,omitempty"`
	IsActive    bool           `json:"isActive"`
	Divisions   []DivisionView `json:"divisions,omitempty"`
}

// GetStructure returns the full organizational tree: active units with
// their active divisions
func (h *Handler) GetStructure(w http.ResponseWriter, r *http.Request) {
	units, err := h.orgService.Structure(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load organizational structure", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load structure")
		return
	}

	views := make([]UnitView, 0, len(units))
	for _, u := range units {
		view := UnitView{
			ID:          u.Unit.ID,
			Name:        u.Unit.Name,
			Code:        u.Unit.Code,
			Description: u.Unit.Description,
			IsActive:    u.Unit.IsActive,
		}
		for _, d := range u.Divisions {
			view.Divisions = append(view.Divisions, toDivisionView(d))
		}
		views = append(views, view)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"organizationalUnits": views,
	})
}

// CreateUnitRequest carries organizational unit data
type CreateUnitRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
	ManagerID   string `json:"managerId"`
}

// CreateUnit creates an organizational unit. Unit names come from a
// closed set.
func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var req CreateUnitRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	unit, err := h.orgService.CreateUnit(r.Context(), req.Name, req.Code, req.Description, req.ManagerID)
	if err != nil {
		h.respondOrgError(w, r, err, "failed to create organizational unit")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"organizationalUnit": UnitView{
			ID:          unit.ID,
			Name:        unit.Name,
			Code:        unit.Code,
			Description: unit.Description,
			IsActive:    unit.IsActive,
		},
	})
}

// CreateDivisionRequest carries division data
type CreateDivisionRequest struct {
	Name                 string `json:"name"`
	Code                 string `json:"code"`
	OrganizationalUnitID string `json:"organizationalUnitId"`
	Description          string `json:"description"`
	LeadID               string `json:"leadId"`
}

// CreateDivision creates a division under an existing organizational unit
func (h *Handler) CreateDivision(w http.ResponseWriter, r *http.Request) {
	var req CreateDivisionRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	division, err := h.orgService.CreateDivision(r.Context(), req.Name, req.Code, req.OrganizationalUnitID, req.Description, req.LeadID)
	if err != nil {
		h.respondOrgError(w, r, err, "failed to create division")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"division": toDivisionView(division),
	})
}

// respondOrgError maps organizational structure errors onto HTTP status
// codes
func (h *Handler) respondOrgError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, org.ErrUnitNotFound):
		respondError(w, http.StatusNotFound, "organizational unit not found")
	case errors.Is(err, org.ErrDivisionNotFound):
		respondError(w, http.StatusNotFound, "division not found")
	case errors.Is(err, org.ErrInvalidUnitName):
		respondError(w, http.StatusBadRequest, "organizational unit name is not in the allowed set")
	case errors.Is(err, org.ErrMissingName):
		respondError(w, http.StatusBadRequest, "name is required")
	case errors.Is(err, org.ErrMissingCode):
		respondError(w, http.StatusBadRequest, "code is required")
	case errors.Is(err, org.ErrDuplicateCode):
		respondError(w, http.StatusConflict, "code already in use")
	default:
		slog.ErrorContext(r.Context(), fallback, logger.Error(err))
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
