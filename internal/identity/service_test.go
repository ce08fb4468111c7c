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
	"strings"
	"testing"
	"time"
)

// MockUserRepository is a simple in-memory implementation of UserRepository
type MockUserRepository struct {
	users map[string]*User
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*User)}
}

func (m *MockUserRepository) Create(ctx context.Context, user *User) error {
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockUserRepository) Update(ctx context.Context, user *User) error {
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) UpdateLockout(ctx context.Context, userID string, attempts int, lockUntil *time.Time) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.LoginAttempts = attempts
	u.LockUntil = lockUntil
	return nil
}

func (m *MockUserRepository) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.LoginAttempts = 0
	u.LockUntil = nil
	u.LastLogin = &at
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *MockUserRepository) List(ctx context.Context, filter ListFilter) ([]*User, int, error) {
	var matched []*User
	for _, u := range m.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(u.Username), needle) &&
				!strings.Contains(strings.ToLower(u.Email), needle) {
				continue
			}
		}
		matched = append(matched, u)
	}
	total := len(matched)
	if filter.Offset > len(matched) {
		matched = nil
	} else {
		matched = matched[filter.Offset:]
	}
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

// MockResetTokenRepository is an in-memory implementation of ResetTokenRepository
type MockResetTokenRepository struct {
	tokens map[string]*ResetToken
}

func NewMockResetTokenRepository() *MockResetTokenRepository {
	return &MockResetTokenRepository{tokens: make(map[string]*ResetToken)}
}

func (m *MockResetTokenRepository) Create(ctx context.Context, token *ResetToken) error {
	m.tokens[token.ID] = token
	return nil
}

func (m *MockResetTokenRepository) GetByToken(ctx context.Context, token string) (*ResetToken, error) {
	for _, t := range m.tokens {
		if t.Token == token {
			return t, nil
		}
	}
	return nil, ErrResetTokenInvalid
}

func (m *MockResetTokenRepository) MarkUsed(ctx context.Context, id string) error {
	t, ok := m.tokens[id]
	if !ok {
		return ErrResetTokenInvalid
	}
	t.Used = true
	return nil
}

func (m *MockResetTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	var n int64
	for id, t := range m.tokens {
		if t.ExpiresAt.Before(time.Now()) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

// MockStructureValidator accepts a fixed set of known unit and division IDs
type MockStructureValidator struct {
	units     map[string]bool
	divisions map[string]bool
}

func (m *MockStructureValidator) OrganizationalUnitsExist(ctx context.Context, ids []string) (bool, error) {
	for _, id := range ids {
		if !m.units[id] {
			return false, nil
		}
	}
	return true, nil
}

func (m *MockStructureValidator) DivisionsExist(ctx context.Context, ids []string) (bool, error) {
	for _, id := range ids {
		if !m.divisions[id] {
			return false, nil
		}
	}
	return true, nil
}

func newTestService(repo *MockUserRepository, tokens *MockResetTokenRepository) *Service {
	hasher := NewPasswordHasher(65536, 3, 4, 16, 32)
	structure := &MockStructureValidator{
		units:     map[string]bool{"ou-1": true},
		divisions: map[string]bool{"div-1": true, "div-2": true},
	}
	return NewService(repo, tokens, hasher, structure, 5, 30*time.Minute, 8, time.Hour)
}

// TestPurpose: Validates the authentication flow, including success, failure, and account lockout after five failed attempts.
// Scope: Unit Test
// Security: Authentication mechanisms and Brute-force protection (lockout)
// Expected: Successful login for correct credentials, invalid-credential errors up to and including the locking attempt, and rejection of the correct password while locked.
// Test Case ID: IDN-01
func TestIdentity_Service_Authenticate_Lockout(t *testing.T) {
	repo := NewMockUserRepository()
	s := newTestService(repo, NewMockResetTokenRepository())
	ctx := context.Background()

	password := "SecurePassword123"
	user, err := s.Register(ctx, "alice", "alice@example.com", password)
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	authed, err := s.Authenticate(ctx, "Alice@Example.com", password)
	if err != nil {
		t.Fatalf("expected success, got err: %v", err)
	}
	if authed.ID != user.ID {
		t.Errorf("expected user ID %s, got %s", user.ID, authed.ID)
	}
	if authed.LastLogin == nil {
		t.Error("expected last login to be stamped")
	}

	// Five consecutive failures; the fifth crosses the threshold but still
	// reports invalid credentials.
	for i := 1; i <= 5; i++ {
		_, err = s.Authenticate(ctx, "alice@example.com", "WrongPassword")
		if err != ErrInvalidCredentials {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	// The sixth attempt fails even with the correct password
	_, err = s.Authenticate(ctx, "alice@example.com", password)
	if err != ErrAccountLocked {
		t.Errorf("expected ErrAccountLocked, got %v", err)
	}
}

// TestPurpose: Validates that authentication distinguishes unknown accounts, deactivated accounts, and expired locks.
// Scope: Unit Test
// Security: Account state enforcement
// Expected: ErrInvalidCredentials for unknown accounts, ErrAccountDeactivated for inactive ones, and a fresh failure streak once a lock expires.
// Test Case ID: IDN-02
func TestIdentity_Service_Authenticate_AccountState(t *testing.T) {
	repo := NewMockUserRepository()
	s := newTestService(repo, NewMockResetTokenRepository())
	ctx := context.Background()

	_, err := s.Authenticate(ctx, "ghost@example.com", "whatever")
	if err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for unknown account, got %v", err)
	}

	user, err := s.Register(ctx, "bob", "bob@example.com", "SecurePassword123")
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	if _, err := s.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("failed to deactivate: %v", err)
	}
	_, err = s.Authenticate(ctx, "bob@example.com", "SecurePassword123")
	if err != ErrAccountDeactivated {
		t.Errorf("expected ErrAccountDeactivated, got %v", err)
	}

	if _, err := s.SetActive(ctx, user.ID, true); err != nil {
		t.Fatalf("failed to reactivate: %v", err)
	}

	// An expired lock no longer blocks login and the attempt counter restarts
	past := time.Now().Add(-time.Minute)
	repo.users[user.ID].LoginAttempts = 5
	repo.users[user.ID].LockUntil = &past

	_, err = s.Authenticate(ctx, "bob@example.com", "WrongPassword")
	if err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials after lock expiry, got %v", err)
	}
	if got := repo.users[user.ID].LoginAttempts; got != 1 {
		t.Errorf("expected attempt counter to restart at 1, got %d", got)
	}

	if _, err := s.Authenticate(ctx, "bob@example.com", "SecurePassword123"); err != nil {
		t.Errorf("expected login after lock expiry, got %v", err)
	}
}

// TestPurpose: Validates registration input rules and duplicate-identity rejection.
// Scope: Unit Test
// Security: Data Integrity and Unique Constraint Enforcement
// Expected: Validation errors for bad input; ErrDuplicateIdentity when email or username is taken; new accounts always get the user role.
// Test Case ID: IDN-03
func TestIdentity_Service_Register(t *testing.T) {
	repo := NewMockUserRepository()
	s := newTestService(repo, NewMockResetTokenRepository())
	ctx := context.Background()

	if _, err := s.Register(ctx, "ab", "short@example.com", "SecurePassword123"); err != ErrInvalidUsername {
		t.Errorf("expected ErrInvalidUsername, got %v", err)
	}
	if _, err := s.Register(ctx, "carol", "not-an-email", "SecurePassword123"); err != ErrInvalidEmail {
		t.Errorf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := s.Register(ctx, "carol", "carol@example.com", "short"); err != ErrWeakPassword {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}

	user, err := s.Register(ctx, "carol", "Carol@Example.com", "SecurePassword123")
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if user.Role != RoleUser {
		t.Errorf("expected role user, got %s", user.Role)
	}
	if user.Email != "carol@example.com" {
		t.Errorf("expected normalized email, got %s", user.Email)
	}

	if _, err := s.Register(ctx, "carol2", "carol@example.com", "SecurePassword123"); err != ErrDuplicateIdentity {
		t.Errorf("expected ErrDuplicateIdentity for email, got %v", err)
	}
	if _, err := s.Register(ctx, "carol", "other@example.com", "SecurePassword123"); err != ErrDuplicateIdentity {
		t.Errorf("expected ErrDuplicateIdentity for username, got %v", err)
	}
}

// TestPurpose: Validates the password reset lifecycle with a single-use token.
// Scope: Unit Test
// Security: Credential recovery and token invalidation
// Expected: A valid token resets the password exactly once; reuse and unknown tokens are rejected.
// Test Case ID: IDN-04
func TestIdentity_Service_ResetPassword(t *testing.T) {
	repo := NewMockUserRepository()
	tokens := NewMockResetTokenRepository()
	s := newTestService(repo, tokens)
	ctx := context.Background()

	_, err := s.Register(ctx, "dave", "dave@example.com", "OriginalPass123")
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	if _, err := s.CreateResetToken(ctx, "ghost@example.com"); err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound for unknown email, got %v", err)
	}

	token, err := s.CreateResetToken(ctx, "dave@example.com")
	if err != nil {
		t.Fatalf("failed to create reset token: %v", err)
	}

	if err := s.ResetPassword(ctx, token.Token, "ReplacementPass456"); err != nil {
		t.Fatalf("failed to reset password: %v", err)
	}

	if _, err := s.Authenticate(ctx, "dave@example.com", "ReplacementPass456"); err != nil {
		t.Errorf("expected login with new password, got %v", err)
	}
	if _, err := s.Authenticate(ctx, "dave@example.com", "OriginalPass123"); err != ErrInvalidCredentials {
		t.Errorf("expected old password rejected, got %v", err)
	}

	// Token is single-use
	if err := s.ResetPassword(ctx, token.Token, "AnotherPass789"); err != ErrResetTokenInvalid {
		t.Errorf("expected ErrResetTokenInvalid on reuse, got %v", err)
	}

	// Expired tokens are rejected and purged
	expired, err := s.CreateResetToken(ctx, "dave@example.com")
	if err != nil {
		t.Fatalf("failed to create reset token: %v", err)
	}
	tokens.tokens[expired.ID].ExpiresAt = time.Now().Add(-time.Minute)

	if err := s.ResetPassword(ctx, expired.Token, "AnotherPass789"); err != ErrResetTokenInvalid {
		t.Errorf("expected ErrResetTokenInvalid for expired token, got %v", err)
	}
	if n, _ := s.PurgeExpiredResetTokens(ctx); n != 1 {
		t.Errorf("expected 1 purged token, got %d", n)
	}
}

// TestPurpose: Validates role changes, including the self-change guard.
// Scope: Unit Test
// Security: Privilege escalation prevention
// Expected: Admins can change other users' roles but never their own; unknown roles are rejected.
// Test Case ID: IDN-05
func TestIdentity_Service_ChangeRole(t *testing.T) {
	repo := NewMockUserRepository()
	s := newTestService(repo, NewMockResetTokenRepository())
	ctx := context.Background()

	admin, _ := s.Register(ctx, "admin", "admin@example.com", "SecurePassword123")
	repo.users[admin.ID].Role = RoleAdmin
	target, _ := s.Register(ctx, "erin", "erin@example.com", "SecurePassword123")

	if _, err := s.ChangeRole(ctx, admin.ID, target.ID, Role("superuser")); err != ErrInvalidRole {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := s.ChangeRole(ctx, admin.ID, admin.ID, RoleUser); err != ErrSelfRoleChange {
		t.Errorf("expected ErrSelfRoleChange, got %v", err)
	}

	updated, err := s.ChangeRole(ctx, admin.ID, target.ID, RoleManagement)
	if err != nil {
		t.Fatalf("failed to change role: %v", err)
	}
	if updated.Role != RoleManagement {
		t.Errorf("expected management role, got %s", updated.Role)
	}
}

// TestPurpose: Validates assignment management against the organizational structure.
// Scope: Unit Test
// Security: Membership integrity (division scoping relies on these ID sets)
// Expected: Assignments referencing unknown units are rejected; grants deduplicate; revocation is idempotent.
// Test Case ID: IDN-06
func TestIdentity_Service_Assignments(t *testing.T) {
	repo := NewMockUserRepository()
	s := newTestService(repo, NewMockResetTokenRepository())
	ctx := context.Background()

	user, _ := s.Register(ctx, "frank", "frank@example.com", "SecurePassword123")

	if _, err := s.AddAssignments(ctx, user.ID, nil, []string{"div-unknown"}); err != ErrUnknownAssignment {
		t.Errorf("expected ErrUnknownAssignment, got %v", err)
	}

	updated, err := s.AddAssignments(ctx, user.ID, []string{"ou-1"}, []string{"div-1", "div-2", "div-1"})
	if err != nil {
		t.Fatalf("failed to add assignments: %v", err)
	}
	if len(updated.DivisionIDs) != 2 {
		t.Errorf("expected 2 division memberships, got %v", updated.DivisionIDs)
	}
	if !updated.MemberOfDivision("div-1") || !updated.MemberOfDivision("div-2") {
		t.Error("expected membership of div-1 and div-2")
	}

	updated, err = s.RemoveAssignments(ctx, user.ID, nil, []string{"div-1", "div-missing"})
	if err != nil {
		t.Fatalf("failed to remove assignments: %v", err)
	}
	if updated.MemberOfDivision("div-1") {
		t.Error("expected div-1 membership revoked")
	}
	if !updated.MemberOfDivision("div-2") {
		t.Error("expected div-2 membership retained")
	}
}
