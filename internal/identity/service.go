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

package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/credvault/credvault/internal/id"
)

// Service provides identity-related business logic
type Service struct {
	repo               UserRepository
	resetTokens        ResetTokenRepository
	hasher             *PasswordHasher
	structure          StructureValidator
	lockoutMaxAttempts int
	lockoutDuration    time.Duration
	minPasswordLength  int
	resetTokenTTL      time.Duration
}

// NewService creates a new identity service
func NewService(
	repo UserRepository,
	resetTokens ResetTokenRepository,
	hasher *PasswordHasher,
	structure StructureValidator,
	lockoutMaxAttempts int,
	lockoutDuration time.Duration,
	minPasswordLength int,
	resetTokenTTL time.Duration,
) *Service {
	return &Service{
		repo:               repo,
		resetTokens:        resetTokens,
		hasher:             hasher,
		structure:          structure,
		lockoutMaxAttempts: lockoutMaxAttempts,
		lockoutDuration:    lockoutDuration,
		minPasswordLength:  minPasswordLength,
		resetTokenTTL:      resetTokenTTL,
	}
}

// Register creates a new user account. The role is always "user"; elevated
// roles are granted afterwards by an administrator.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 30 {
		return nil, ErrInvalidUsername
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidEmail
	}

	if len(password) < s.minPasswordLength {
		return nil, ErrWeakPassword
	}

	// Duplicate checks cover both unique identities
	if existing, err := s.repo.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrDuplicateIdentity
	}
	if existing, err := s.repo.GetByUsername(ctx, username); err == nil && existing != nil {
		return nil, ErrDuplicateIdentity
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &User{
		ID:           id.NewUUIDv7(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Authenticate verifies an email/password pair.
//
// Lockout state is checked before the password, so a locked account rejects
// even the correct password until the lock expires. Failed attempts past the
// configured maximum lock the account for the configured duration.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetByEmail(ctx, normalized)
	if err != nil || user == nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}

	if user.IsLocked() {
		return nil, ErrAccountLocked
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		// An expired lock means the previous failure streak already ran its
		// course; start counting again from zero.
		attempts := user.LoginAttempts
		if user.LockUntil != nil && !user.IsLocked() {
			attempts = 0
		}
		attempts++

		// The attempt that crosses the threshold still reports invalid
		// credentials; the lock surfaces on the next attempt.
		var lockUntil *time.Time
		if attempts >= s.lockoutMaxAttempts {
			until := time.Now().Add(s.lockoutDuration)
			lockUntil = &until
		}

		_ = s.repo.UpdateLockout(ctx, user.ID, attempts, lockUntil)

		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.repo.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	user.LoginAttempts = 0
	user.LockUntil = nil
	user.LastLogin = &now

	return user, nil
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile updates the username and email of an account
func (s *Service) UpdateProfile(ctx context.Context, userID, username, email string) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}

	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 30 {
		return nil, ErrInvalidUsername
	}

	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidEmail
	}

	if normalized != user.Email {
		if existing, err := s.repo.GetByEmail(ctx, normalized); err == nil && existing != nil {
			return nil, ErrDuplicateIdentity
		}
	}
	if username != user.Username {
		if existing, err := s.repo.GetByUsername(ctx, username); err == nil && existing != nil {
			return nil, ErrDuplicateIdentity
		}
	}

	user.Username = username
	user.Email = normalized
	user.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// ChangePassword changes a user's password after verifying the current one
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil || user == nil {
		return ErrUserNotFound
	}

	valid, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil || !valid {
		return ErrInvalidCredentials
	}

	if len(newPassword) < s.minPasswordLength {
		return ErrWeakPassword
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.repo.UpdatePassword(ctx, userID, newHash)
}

// CreateResetToken issues a single-use password reset token for the account
// registered under email. Callers must not reveal to the requester whether
// the account exists.
func (s *Service) CreateResetToken(ctx context.Context, email string) (*ResetToken, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrUserNotFound
	}

	user, err := s.repo.GetByEmail(ctx, normalized)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate reset token: %w", err)
	}

	token := &ResetToken{
		ID:        id.NewUUIDv7(),
		UserID:    user.ID,
		Token:     hex.EncodeToString(raw),
		ExpiresAt: time.Now().Add(s.resetTokenTTL),
		CreatedAt: time.Now(),
	}

	if err := s.resetTokens.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store reset token: %w", err)
	}

	return token, nil
}

// ResetPassword consumes a reset token and replaces the account password.
// A used or expired token is rejected; consumption also clears any lockout.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	stored, err := s.resetTokens.GetByToken(ctx, token)
	if err != nil || stored == nil {
		return ErrResetTokenInvalid
	}

	if stored.Used || stored.ExpiresAt.Before(time.Now()) {
		return ErrResetTokenInvalid
	}

	if len(newPassword) < s.minPasswordLength {
		return ErrWeakPassword
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, stored.UserID, newHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.resetTokens.MarkUsed(ctx, stored.ID); err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}

	// A successful reset proves account ownership
	_ = s.repo.UpdateLockout(ctx, stored.UserID, 0, nil)

	return nil
}

// ChangeRole assigns a new role to the target user. Actors can never change
// their own role, which keeps at least one admin grant deliberate.
func (s *Service) ChangeRole(ctx context.Context, actorID, targetID string, role Role) (*User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if actorID == targetID {
		return nil, ErrSelfRoleChange
	}

	user, err := s.repo.GetByID(ctx, targetID)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}

	user.Role = role
	user.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	return user, nil
}

// AddAssignments grants organizational unit and division memberships to a
// user after verifying every referenced unit exists
func (s *Service) AddAssignments(ctx context.Context, userID string, ouIDs, divisionIDs []string) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}

	if len(ouIDs) > 0 {
		ok, err := s.structure.OrganizationalUnitsExist(ctx, ouIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to validate organizational units: %w", err)
		}
		if !ok {
			return nil, ErrUnknownAssignment
		}
	}
	if len(divisionIDs) > 0 {
		ok, err := s.structure.DivisionsExist(ctx, divisionIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to validate divisions: %w", err)
		}
		if !ok {
			return nil, ErrUnknownAssignment
		}
	}

	user.OrganizationalUnitIDs = mergeIDs(user.OrganizationalUnitIDs, ouIDs)
	user.DivisionIDs = mergeIDs(user.DivisionIDs, divisionIDs)
	user.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update assignments: %w", err)
	}
	return user, nil
}

// RemoveAssignments revokes organizational unit and division memberships.
// Unknown IDs are ignored; revocation is idempotent.
func (s *Service) RemoveAssignments(ctx context.Context, userID string, ouIDs, divisionIDs []string) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}

	user.OrganizationalUnitIDs = removeIDs(user.OrganizationalUnitIDs, ouIDs)
	user.DivisionIDs = removeIDs(user.DivisionIDs, divisionIDs)
	user.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update assignments: %w", err)
	}
	return user, nil
}

// SetActive activates or deactivates an account. Deactivation ends the
// user's ability to authenticate but preserves their audit history.
func (s *Service) SetActive(ctx context.Context, userID string, active bool) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}

	user.IsActive = active
	user.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// ListUsers returns users matching the filter plus the total match count
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) ([]*User, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

// PurgeExpiredResetTokens removes reset tokens past expiry
func (s *Service) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	return s.resetTokens.DeleteExpired(ctx)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", err
	}
	return email, nil
}

func mergeIDs(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, id := range existing {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range added {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func removeIDs(existing, removed []string) []string {
	drop := make(map[string]struct{}, len(removed))
	for _, id := range removed {
		drop[id] = struct{}{}
	}
	out := make([]string, 0, len(existing))
	for _, id := range existing {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
