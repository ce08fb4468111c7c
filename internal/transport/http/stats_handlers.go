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
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/credvault/credvault/internal/audit"
	"github.com/credvault/credvault/internal/observability/logger"
	"github.com/credvault/credvault/internal/stats"
)

// AuditEntryView is the wire shape of an audit trail entry
type AuditEntryView struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId,omitempty"`
	Username     string         `json:"username,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId,omitempty"`
	DivisionID   string         `json:"divisionId,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

func toAuditEntryViews(entries []*audit.Entry) []AuditEntryView {
	views := make([]AuditEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, AuditEntryView{
			ID:           e.ID,
			UserID:       e.UserID,
			Username:     e.Username,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			DivisionID:   e.DivisionID,
			Details:      e.Details,
			IPAddress:    e.IPAddress,
			CreatedAt:    e.CreatedAt,
		})
	}
	return views
}

// Dashboard returns the admin dashboard aggregates
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.statsService.Dashboard(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to assemble dashboard", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}

	byRole := make([]map[string]any, 0, len(board.Users.ByRole))
	for _, rc := range board.Users.ByRole {
		byRole = append(byRole, map[string]any{"role": rc.Role, "count": rc.Count})
	}
	byCategory := make([]map[string]any, 0, len(board.Credentials.ByCategory))
	for _, cc := range board.Credentials.ByCategory {
		byCategory = append(byCategory, map[string]any{"category": cc.Category, "count": cc.Count})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"users": map[string]any{
			"total":    board.Users.Total,
			"active":   board.Users.Active,
			"inactive": board.Users.Inactive,
			"byRole":   byRole,
		},
		"credentials": map[string]any{
			"total":      board.Credentials.Total,
			"active":     board.Credentials.Active,
			"inactive":   board.Credentials.Inactive,
			"expiring":   board.Credentials.Expiring,
			"byCategory": byCategory,
		},
		"structure": map[string]any{
			"organizationalUnits": board.Structure.OrganizationalUnits,
			"divisions":           board.Structure.Divisions,
		},
		"recentActivity": toAuditEntryViews(board.RecentActivity),
	})
}

// Activity returns a filtered, paginated view of the audit trail
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	entries, pagination, err := h.statsService.Activity(r.Context(), stats.ActivityFilter{
		UserID: q.Get("user_id"),
		Action: q.Get("action"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list audit activity", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load activity")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"entries": toAuditEntryViews(entries),
		"pagination": map[string]int{
			"page":  pagination.Page,
			"limit": pagination.Limit,
			"total": pagination.Total,
			"pages": pagination.Pages,
		},
	})
}
