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
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/credvault/credvault/internal/audit"
	"github.com/credvault/credvault/internal/authz"
	"github.com/credvault/credvault/internal/observability/logger"
	"github.com/credvault/credvault/internal/vault"
)

// ListAccessibleDivisions returns the divisions whose repositories the
// caller may open
func (h *Handler) ListAccessibleDivisions(w http.ResponseWriter, r *http.Request) {
	actor := CurrentUser(r.Context())

	divisions, err := h.vaultService.ListAccessible(r.Context(), actor)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list accessible divisions", logger.Error(err), logger.UserID(actor.ID))
		respondError(w, http.StatusInternalServerError, "failed to list divisions")
		return
	}

	views := make([]DivisionView, 0, len(divisions))
	for _, d := range divisions {
		views = append(views, toDivisionView(d))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"divisions": views,
	})
}

// GetRepository returns a division's repository with its active
// credentials. Passwords stay encrypted at rest and are omitted here;
// plaintext flows only through the access endpoint.
func (h *Handler) GetRepository(w http.ResponseWriter, r *http.Request) {
	actor := CurrentUser(r.Context())
	divisionID := chi.URLParam(r, "divisionID")

	repo, err := h.vaultService.GetRepository(r.Context(), actor, divisionID)
	if err != nil {
		h.respondVaultError(w, r, err, "failed to load repository")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"repository": map[string]any{
			"id":          repo.ID,
			"divisionId":  repo.DivisionID,
			"credentials": toCredentialViews(repo.ActiveCredentials()),
		},
	})
}

// CredentialRequest carries the fields for creating a credential
type CredentialRequest struct {
	Title     string     `json:"title"`
	Category  string     `json:"category"`
	URL       string     `json:"url"`
	Username  string     `json:"username"`
	Password  string     `json:"password"`
	Notes     string     `json:"notes"`
	Tags      []string   `json:"tags"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// AddCredential stores a new credential in a division's repository
func (h *Handler) AddCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := CurrentUser(r.Context())
	divisionID := chi.URLParam(r, "divisionID")

	ref, err := h.vaultService.AddCredential(r.Context(), actor, divisionID, vault.CredentialInput{
		Title:     req.Title,
		Category:  vault.Category(req.Category),
		URL:       req.URL,
		Username:  req.Username,
		Password:  req.Password,
		Notes:     req.Notes,
		Tags:      req.Tags,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		h.respondVaultError(w, r, err, "failed to add credential")
		return
	}

	h.record(r, audit.Entry{
		Action:       audit.ActionCredentialAdd,
		ResourceType: audit.ResourceCredential,
		ResourceID:   ref.Credential.ID,
		DivisionID:   ref.DivisionID,
		Details:      map[string]any{"title": ref.Credential.Title},
	})

	respondJSON(w, http.StatusCreated, map[string]any{
		"credential": toCredentialView(ref.Credential, false),
	})
}

// CredentialPatchRequest carries a partial credential update; absent
// fields are left untouched
type CredentialPatchRequest struct {
	Title     *string    `json:"title"`
	Category  *string    `json:"category"`
	URL       *string    `json:"url"`
	Username  *string    `json:"username"`
	Password  *string    `json:"password"`
	Notes     *string    `json:"notes"`
	Tags      *[]string  `json:"tags"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// UpdateCredential applies a partial update to a credential
func (h *Handler) UpdateCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialPatchRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := CurrentUser(r.Context())
	credentialID := chi.URLParam(r, "credentialID")

	patch := vault.CredentialPatch{
		Title:     req.Title,
		URL:       req.URL,
		Username:  req.Username,
		Password:  req.Password,
		Notes:     req.Notes,
		Tags:      req.Tags,
		ExpiresAt: req.ExpiresAt,
	}
	if req.Category != nil {
		category := vault.Category(*req.Category)
		patch.Category = &category
	}

	ref, err := h.vaultService.UpdateCredential(r.Context(), actor, credentialID, patch)
	if err != nil {
		h.respondVaultError(w, r, err, "failed to update credential")
		return
	}

	h.record(r, audit.Entry{
		Action:       audit.ActionCredentialEdit,
		ResourceType: audit.ResourceCredential,
		ResourceID:   ref.Credential.ID,
		DivisionID:   ref.DivisionID,
		Details:      map[string]any{"title": ref.Credential.Title},
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"credential": toCredentialView(ref.Credential, false),
	})
}

// DeleteCredential soft-deletes a credential; the record stays in the
// repository for the audit trail
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	actor := CurrentUser(r.Context())
	credentialID := chi.URLParam(r, "credentialID")

	ref, err := h.vaultService.SoftDeleteCredential(r.Context(), actor, credentialID)
	if err != nil {
		h.respondVaultError(w, r, err, "failed to delete credential")
		return
	}

	h.record(r, audit.Entry{
		Action:       audit.ActionCredentialDelete,
		ResourceType: audit.ResourceCredential,
		ResourceID:   ref.Credential.ID,
		DivisionID:   ref.DivisionID,
		Details:      map[string]any{"title": ref.Credential.Title},
	})

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "credential deleted",
	})
}

// AccessCredential decrypts a credential for viewing. Every access is
// counted and audited.
func (h *Handler) AccessCredential(w http.ResponseWriter, r *http.Request) {
	actor := CurrentUser(r.Context())
	credentialID := chi.URLParam(r, "credentialID")

	ref, err := h.vaultService.AccessCredential(r.Context(), actor, credentialID)
	if err != nil {
		h.respondVaultError(w, r, err, "failed to access credential")
		return
	}

	h.record(r, audit.Entry{
		Action:       audit.ActionCredentialView,
		ResourceType: audit.ResourceCredential,
		ResourceID:   ref.Credential.ID,
		DivisionID:   ref.DivisionID,
		Details:      map[string]any{"title": ref.Credential.Title},
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"credential": toCredentialView(ref.Credential, true),
	})
}

// SearchResultView annotates a credential match with where it lives
type SearchResultView struct {
	Credential   CredentialView `json:"credential"`
	RepositoryID string         `json:"repositoryId"`
	Division     DivisionView   `json:"division"`
}

// SearchCredentials searches across every repository the caller can open
func (h *Handler) SearchCredentials(w http.ResponseWriter, r *http.Request) {
	actor := CurrentUser(r.Context())
	query := r.URL.Query().Get("q")

	results, total, err := h.vaultService.Search(r.Context(), actor, query)
	if err != nil {
		slog.ErrorContext(r.Context(), "credential search failed", logger.Error(err), logger.UserID(actor.ID))
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	views := make([]SearchResultView, 0, len(results))
	for _, res := range results {
		views = append(views, SearchResultView{
			Credential:   toCredentialView(res.Credential, false),
			RepositoryID: res.RepositoryID,
			Division:     toDivisionView(res.Division),
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"credentials": views,
		"total":       total,
	})
}

// respondVaultError maps vault and authorization errors onto HTTP status
// codes, logging only the unexpected ones
func (h *Handler) respondVaultError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, authz.ErrForbidden):
		respondError(w, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, vault.ErrDivisionNotFound):
		respondError(w, http.StatusNotFound, "division not found")
	case errors.Is(err, vault.ErrRepositoryNotFound):
		respondError(w, http.StatusNotFound, "repository not found")
	case errors.Is(err, vault.ErrCredentialNotFound):
		respondError(w, http.StatusNotFound, "credential not found")
	case errors.Is(err, vault.ErrInvalidCredential):
		respondError(w, http.StatusBadRequest, "title, username and password are required")
	case errors.Is(err, vault.ErrInvalidCategory):
		respondError(w, http.StatusBadRequest, "unknown credential category")
	case errors.Is(err, vault.ErrNotesTooLong):
		respondError(w, http.StatusBadRequest, "notes exceed the maximum length")
	case errors.Is(err, vault.ErrVersionConflict):
		respondError(w, http.StatusConflict, "repository was modified concurrently, retry the operation")
	default:
		slog.ErrorContext(r.Context(), fallback, logger.Error(err))
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
