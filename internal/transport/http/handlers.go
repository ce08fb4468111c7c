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
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/credvault/credvault/internal/audit"
	"github.com/credvault/credvault/internal/identity"
	"github.com/credvault/credvault/internal/observability/metrics"
	"github.com/credvault/credvault/internal/org"
	"github.com/credvault/credvault/internal/stats"
	"github.com/credvault/credvault/internal/token"
	"github.com/credvault/credvault/internal/vault"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService *identity.Service
	vaultService    *vault.Service
	orgService      *org.Service
	statsService    *stats.Service
	tokens          *token.Issuer
	recorder        audit.Recorder
	environment     string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	identityService *identity.Service,
	vaultService *vault.Service,
	orgService *org.Service,
	statsService *stats.Service,
	tokens *token.Issuer,
	recorder audit.Recorder,
	environment string,
) *Handler {
	return &Handler{
		identityService: identityService,
		vaultService:    vaultService,
		orgService:      orgService,
		statsService:    statsService,
		tokens:          tokens,
		recorder:        recorder,
		environment:     environment,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, httpMetrics *metrics.HTTPMetrics) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware(httpMetrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Public authentication endpoints
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/refresh", h.Refresh)
		r.Post("/auth/forgot-password", h.ForgotPassword)
		r.Post("/auth/reset-password", h.ResetPassword)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Post("/auth/logout", h.Logout)
			r.Get("/auth/me", h.GetCurrentUser)
			r.Put("/auth/profile", h.UpdateProfile)
			r.Put("/auth/change-password", h.ChangePassword)

			// Credential repositories (division-scoped)
			r.Route("/repositories", func(r chi.Router) {
				r.Get("/accessible", h.ListAccessibleDivisions)
				r.Get("/search", h.SearchCredentials)
				r.Get("/{divisionID}", h.GetRepository)
				r.Post("/{divisionID}/credentials", h.AddCredential)
				r.Put("/credentials/{credentialID}", h.UpdateCredential)
				r.Delete("/credentials/{credentialID}", h.DeleteCredential)
				r.Get("/credentials/{credentialID}/access", h.AccessCredential)
			})

			// Organizational structure, read side open to all members
			r.Get("/structure", h.GetStructure)

			// Admin-only surface
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(identity.RoleAdmin))

				r.Route("/users", func(r chi.Router) {
					r.Get("/", h.ListUsers)
					r.Post("/", h.CreateUser)
					r.Get("/{userID}", h.GetUser)
					r.Put("/{userID}/role", h.ChangeUserRole)
					r.Put("/{userID}/active", h.SetUserActive)
					r.Post("/{userID}/assignments", h.AddAssignments)
					r.Delete("/{userID}/assignments", h.RemoveAssignments)
				})

				r.Get("/organizational-structure", h.GetStructure)
				r.Route("/structure", func(r chi.Router) {
					r.Post("/units", h.CreateUnit)
					r.Post("/divisions", h.CreateDivision)
				})
			})

			// Statistics (admin dashboard)
			r.Route("/statistics", func(r chi.Router) {
				r.Use(RequireRole(identity.RoleAdmin))

				r.Get("/dashboard", h.Dashboard)
				r.Get("/activity", h.Activity)
			})
		})
	})

	return r
}

// HealthCheck returns service health status
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "credvault",
	})
}

// record queues an audit entry for a completed operation, stamping the
// request's client address and user agent. Only successful operations
// reach this point.
func (h *Handler) record(r *http.Request, entry audit.Entry) {
	entry.IPAddress = getIPAddress(r)
	entry.UserAgent = r.UserAgent()
	if user := CurrentUser(r.Context()); user != nil && entry.UserID == "" {
		entry.UserID = user.ID
		entry.Username = user.Username
	}
	h.recorder.Record(r.Context(), entry)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
