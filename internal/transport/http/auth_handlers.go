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

	"github.com/credvault/credvault/internal/audit"
	"github.com/credvault/credvault/internal/identity"
	"github.com/credvault/credvault/internal/observability/logger"
)

// RegisterRequest represents registration data
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles user self-registration. New accounts always start with
// the base role; elevation is an admin action.
// @Summary Register a new user
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration Data"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /api/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrDuplicateIdentity):
			respondError(w, http.StatusBadRequest, "username or email already in use")
		case errors.Is(err, identity.ErrInvalidUsername):
			respondError(w, http.StatusBadRequest, "username must be between 3 and 30 characters")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet length requirements")
		default:
			slog.ErrorContext(r.Context(), "failed to register user",
				logger.Error(err),
				logger.Email(req.Email),
			)
			respondError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	accessToken, refreshToken, expiresAt, err := h.issueTokenPair(user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue tokens", logger.Error(err), logger.UserID(user.ID))
		respondError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.record(r, audit.Entry{
		UserID:       user.ID,
		Username:     user.Username,
		Action:       audit.ActionUserCreate,
		ResourceType: audit.ResourceUser,
		ResourceID:   user.ID,
		Details:      map[string]any{"email": user.Email},
	})

	respondJSON(w, http.StatusCreated, map[string]any{
		"token":        accessToken,
		"refreshToken": refreshToken,
		"expiresAt":    expiresAt,
		"user":         toUserView(user),
	})
}

func (h *Handler) issueTokenPair(userID string) (access, refresh string, expiresAt time.Time, err error) {
	access, expiresAt, err = h.tokens.IssueAccess(userID)
	if err != nil {
		return "", "", time.Time{}, err
	}
	refresh, _, err = h.tokens.IssueRefresh(userID)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return access, refresh, expiresAt, nil
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a user and issues an access/refresh token pair
// @Summary Login
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Router /api/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrAccountLocked):
			respondError(w, http.StatusUnauthorized, "account temporarily locked due to repeated failed logins")
		case errors.Is(err, identity.ErrAccountDeactivated):
			respondError(w, http.StatusUnauthorized, "account is deactivated")
		case errors.Is(err, identity.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			slog.ErrorContext(r.Context(), "authentication failed",
				logger.Error(err),
				logger.Email(req.Email),
			)
			respondError(w, http.StatusInternalServerError, "failed to authenticate")
		}
		return
	}

	accessToken, refreshToken, expiresAt, err := h.issueTokenPair(user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue tokens", logger.Error(err), logger.UserID(user.ID))
		respondError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	h.record(r, audit.Entry{
		UserID:       user.ID,
		Username:     user.Username,
		Action:       audit.ActionLogin,
		ResourceType: audit.ResourceSession,
		ResourceID:   user.ID,
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"token":        accessToken,
		"refreshToken": refreshToken,
		"expiresAt":    expiresAt,
		"user":         toUserView(user),
	})
}

// RefreshRequest carries a refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh secret is distinct from the access secret, so an access token
// can never be replayed here.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := h.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	user, err := h.identityService.GetUser(r.Context(), userID)
	if err != nil || !user.IsActive {
		respondError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	accessToken, expiresAt, err := h.tokens.IssueAccess(user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue access token", logger.Error(err), logger.UserID(user.ID))
		respondError(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"token":     accessToken,
		"expiresAt": expiresAt,
	})
}

// Logout records the end of a session. Tokens are stateless, so logout is
// an audit event; clients discard their tokens.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	h.record(r, audit.Entry{
		Action:       audit.ActionLogout,
		ResourceType: audit.ResourceSession,
		ResourceID:   user.ID,
	})

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out",
	})
}

// GetCurrentUser returns the authenticated user's profile
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"user": toUserView(user),
	})
}

// UpdateProfileRequest carries editable profile fields
type UpdateProfileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UpdateProfile updates the authenticated user's username and email
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := CurrentUser(r.Context())
	user, err := h.identityService.UpdateProfile(r.Context(), actor.ID, req.Username, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrDuplicateIdentity):
			respondError(w, http.StatusConflict, "username or email already in use")
		case errors.Is(err, identity.ErrInvalidUsername):
			respondError(w, http.StatusBadRequest, "username must be between 3 and 30 characters")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		default:
			slog.ErrorContext(r.Context(), "failed to update profile", logger.Error(err), logger.UserID(actor.ID))
			respondError(w, http.StatusInternalServerError, "failed to update profile")
		}
		return
	}

	h.record(r, audit.Entry{
		Action:       audit.ActionProfileUpdate,
		ResourceType: audit.ResourceUser,
		ResourceID:   user.ID,
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"user": toUserView(user),
	})
}

// ChangePasswordRequest carries a password rotation
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword verifies the current password and sets a new one
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := CurrentUser(r.Context())
	if err := h.identityService.ChangePassword(r.Context(), actor.ID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "current password is incorrect")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet length requirements")
		default:
			slog.ErrorContext(r.Context(), "failed to change password", logger.Error(err), logger.UserID(actor.ID))
			respondError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	h.record(r, audit.Entry{
		Action:       audit.ActionPasswordChange,
		ResourceType: audit.ResourceUser,
		ResourceID:   actor.ID,
	})

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "password changed",
	})
}

// ForgotPasswordRequest carries the account email
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword issues a reset token. The response never reveals whether
// the email matched an account. Outside production the token is returned
// in the body so the flow can be exercised without a mail delivery setup.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload := map[string]any{
		"message": "if the account exists, a reset link has been sent",
	}

	reset, err := h.identityService.CreateResetToken(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, identity.ErrUserNotFound) {
			slog.ErrorContext(r.Context(), "failed to create reset token", logger.Error(err), logger.Email(req.Email))
		}
	} else if h.environment != "production" {
		payload["resetToken"] = reset.Token
	}

	respondJSON(w, http.StatusOK, payload)
}

// ResetPasswordRequest carries a reset token and the replacement password
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"password"`
}

// ResetPassword consumes a reset token and sets the new password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.identityService.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, identity.ErrResetTokenInvalid):
			respondError(w, http.StatusBadRequest, "invalid or expired reset token")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet length requirements")
		default:
			slog.ErrorContext(r.Context(), "failed to reset password", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to reset password")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "password reset",
	})
}
