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
	"errors"
	"time"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateIdentity  = errors.New("user already exists with this email or username")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("username must be between 3 and 30 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrSelfRoleChange     = errors.New("cannot change your own role")
	ErrInvalidRole        = errors.New("invalid role")
	ErrUnknownAssignment  = errors.New("one or more assignments reference unknown units")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
)

// Role is the system-wide access level of a user
type Role string

// Roles ordered by capability. Admins additionally bypass division scoping.
const (
	RoleUser       Role = "user"
	RoleManagement Role = "management"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleManagement, RoleAdmin:
		return true
	}
	return false
}

// User represents an authenticated principal.
//
// Division and organizational unit memberships are held as plain identifier
// sets; membership checks always compare identifiers, never hydrated objects.
type User struct {
	ID                      string
	Username                string
	Email                   string
	PasswordHash            string
	Role                    Role
	OrganizationalUnitIDs   []string
	DivisionIDs             []string
	IsActive                bool
	LoginAttempts           int
	LockUntil               *time.Time
	LastLogin               *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// IsLocked reports whether the account is currently locked out.
// A lock in the past has expired and does not block authentication.
func (u *User) IsLocked() bool {
	return u.LockUntil != nil && u.LockUntil.After(time.Now())
}

// MemberOfDivision reports whether the user is assigned to the division
func (u *User) MemberOfDivision(divisionID string) bool {
	for _, id := range u.DivisionIDs {
		if id == divisionID {
			return true
		}
	}
	return false
}

// ListFilter narrows admin user listings
type ListFilter struct {
	Role   Role
	Search string // matches username or email, case-insensitive
	Limit  int
	Offset int
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail retrieves a user by normalized email
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByUsername retrieves a user by username
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Update persists role, assignment and activation changes
	Update(ctx context.Context, user *User) error

	// UpdateLockout updates failed-attempt state
	UpdateLockout(ctx context.Context, userID string, attempts int, lockUntil *time.Time) error

	// RecordLogin clears lockout state and stamps the last login time
	RecordLogin(ctx context.Context, userID string, at time.Time) error

	// UpdatePassword replaces the stored password hash
	UpdatePassword(ctx context.Context, userID, passwordHash string) error

	// List returns users matching the filter plus the total match count
	List(ctx context.Context, filter ListFilter) ([]*User, int, error)
}

// ResetToken is a single-use password reset token
type ResetToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// ResetTokenRepository defines the interface for reset token persistence
type ResetTokenRepository interface {
	// Create stores a new token
	Create(ctx context.Context, token *ResetToken) error

	// GetByToken retrieves a token by its opaque value
	GetByToken(ctx context.Context, token string) (*ResetToken, error)

	// MarkUsed invalidates a token after successful use
	MarkUsed(ctx context.Context, id string) error

	// DeleteExpired purges tokens past their expiry
	DeleteExpired(ctx context.Context) (int64, error)
}

// StructureValidator verifies that assignment targets exist. Implemented by
// the org service; declared here so identity does not depend on org.
type StructureValidator interface {
	OrganizationalUnitsExist(ctx context.Context, ids []string) (bool, error)
	DivisionsExist(ctx context.Context, ids []string) (bool, error)
}
