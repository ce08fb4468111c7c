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
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/credvault/credvault/internal/audit"
	"github.com/credvault/credvault/internal/identity"
	"github.com/credvault/credvault/internal/observability/logger"
)

// ListUsers returns a paginated user listing with optional role and
// search filters
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	users, total, err := h.identityService.ListUsers(r.Context(), identity.ListFilter{
		Role:   identity.Role(q.Get("role")),
		Search: q.Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list users", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"users": views,
		"total": total,
	})
}

// CreateUserRequest carries admin-side user provisioning data
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// CreateUser provisions an account on behalf of an admin, optionally with
// an elevated role
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := CurrentUser(r.Context())
	user, err := h.identityService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.respondIdentityError(w, r, err, "failed to create user")
		return
	}

	if req.Role != "" && identity.Role(req.Role) != identity.RoleUser {
		user, err = h.identityService.ChangeRole(r.Context(), actor.ID, user.ID, identity.Role(req.Role))
		if err != nil {
			h.respondIdentityError(w, r, err, "failed to assign role")
			return
		}
	}

	h.record(r, audit.Entry{
		Action:       audit.ActionUserCreate,
		ResourceType: audit.ResourceUser,
		ResourceID:   user.ID,
		Details:      map[string]any{"email": user.Email, "role": string(user.Role)},
	})

	respondJSON(w, http.StatusCreated, map[string]any{
		"user": toUserView(user),
	})
}

// GetUser returns a single user by ID
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.identityService.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondIdentityError(w, r, err, "failed to load user")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user": toUserView(user),
	})
}

// ChangeRoleRequest carries a role assignment
type ChangeRoleRequest struct {
	Role string `json:"role"`
}

// ChangeUserRole assigns a new role to a user. Admins cannot change
// their own role.
func (h *Handler) ChangeUserRole(w http.ResponseWriter, r *http.Request) {
	var req ChangeRoleRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := CurrentUser(r.Context())
	user, err := h.identityService.ChangeRole(r.Context(), actor.ID, chi.URLParam(r, "userID"), identity.Role(req.Role))
	if err != nil {
		h.respondIdentityError(w, r, err, "failed to change role")
		return
	}

	h.record(r, audit.Entry{
		Action:       audit.ActionRoleChange,
		ResourceType: audit.ResourceUser,
		ResourceID:   user.ID,
		Details:      map[string]any{"role": string(user.Role)},
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"user": toUserView(user),
	})
}

// SetActiveRequest carries an activation toggle
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// SetUserActive activates or deactivates an account. Deactivation cuts
// off token-based access on the next request.
func (h *Handler) SetUserActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.SetActive(r.Context(), chi.URLParam(r, "userID"), req.Active)
	if err != nil {
		h.respondIdentityError(w, r, err, "failed to update user")
		return
	}

	h.record(r, audit.Entry{
		Action:       audit.ActionUserUpdate,
		ResourceType: audit.ResourceUser,
		ResourceID:   user.ID,
		Details:      map[string]any{"isActive": user.IsActive},
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"user": toUserView(user),
	})
}

// AssignmentsRequest carries organizational unit and division ID sets
type AssignmentsRequest struct {
	OrganizationalUnits []string `json:"organizationalUnits"`
	Divisions           []string `json:"divisions"`
}

// AddAssignments grants a user membership in organizational units and
// divisions. Every ID must name an existing structure element.
func (h *Handler) AddAssignments(w http.ResponseWriter, r *http.Request) {
	var req AssignmentsRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.AddAssignments(r.Context(), chi.URLParam(r, "userID"), req.OrganizationalUnits, req.Divisions)
	if err != nil {
		h.respondIdentityError(w, r, err, "failed to add assignments")
		return
	}

	h.record(r, audit.Entry{
		Action:       audit.ActionAssignmentAdd,
		ResourceType: audit.ResourceUser,
		ResourceID:   user.ID,
		Details: map[string]any{
			"organizationalUnits": req.OrganizationalUnits,
			"divisions":           req.Divisions,
		},
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"user": toUserView(user),
	})
}

// RemoveAssignments revokes memberships. Removing an absent membership
// is a no-op.
func (h *Handler) RemoveAssignments(w http.ResponseWriter, r *http.Request) {
	var req AssignmentsRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.RemoveAssignments(r.Context(), chi.URLParam(r, "userID"), req.OrganizationalUnits, req.Divisions)
	if err != nil {
		h.respondIdentityError(w, r, err, "failed to remove assignments")
		return
	}

	h.record(r, audit.Entry{
		Action:       audit.ActionAssignmentRemove,
		ResourceType: audit.ResourceUser,
		ResourceID:   user.ID,
		Details: map[string]any{
			"organizationalUnits": req.OrganizationalUnits,
			"divisions":           req.Divisions,
		},
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"user": toUserView(user),
	})
}

// respondIdentityError maps identity errors onto HTTP status codes
func (h *Handler) respondIdentityError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, identity.ErrDuplicateIdentity):
		respondError(w, http.StatusConflict, "username or email already in use")
	case errors.Is(err, identity.ErrInvalidUsername):
		respondError(w, http.StatusBadRequest, "username must be between 3 and 30 characters")
	case errors.Is(err, identity.ErrInvalidEmail):
		respondError(w, http.StatusBadRequest, "invalid email address")
	case errors.Is(err, identity.ErrWeakPassword):
		respondError(w, http.StatusBadRequest, "password does not meet length requirements")
	case errors.Is(err, identity.ErrInvalidRole):
		respondError(w, http.StatusBadRequest, "unknown role")
	case errors.Is(err, identity.ErrSelfRoleChange):
		respondError(w, http.StatusBadRequest, "cannot change your own role")
	case errors.Is(err, identity.ErrUnknownAssignment):
		respondError(w, http.StatusBadRequest, "assignment references an unknown organizational unit or division")
	default:
		slog.ErrorContext(r.Context(), fallback, logger.Error(err))
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
