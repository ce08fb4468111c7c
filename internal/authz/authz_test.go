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

package authz_test

import (
	"testing"

	"github.com/credvault/credvault/internal/authz"
	"github.com/credvault/credvault/internal/identity"
)

// TestPurpose: Validates role gating across the three-level role hierarchy.
// Scope: Unit Test
// Security: Role-based access control
// Expected: Each role satisfies its own level and below; unknown roles and nil users are rejected.
// Test Case ID: AZN-01
func TestAuthz_RequireRole(t *testing.T) {
	tests := []struct {
		name    string
		role    identity.Role
		minimum identity.Role
		wantErr bool
	}{
		{"user meets user", identity.RoleUser, identity.RoleUser, false},
		{"user below management", identity.RoleUser, identity.RoleManagement, true},
		{"management meets management", identity.RoleManagement, identity.RoleManagement, false},
		{"management below admin", identity.RoleManagement, identity.RoleAdmin, true},
		{"admin meets everything", identity.RoleAdmin, identity.RoleUser, false},
		{"unknown role rejected", identity.Role("superuser"), identity.RoleUser, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &identity.User{Role: tt.role}
			err := authz.RequireRole(u, tt.minimum)
			if (err != nil) != tt.wantErr {
				t.Errorf("RequireRole(%s, %s) = %v, wantErr %v", tt.role, tt.minimum, err, tt.wantErr)
			}
		})
	}

	if err := authz.RequireRole(nil, identity.RoleUser); err != authz.ErrForbidden {
		t.Errorf("expected ErrForbidden for nil user, got %v", err)
	}
}

// TestPurpose: Validates division scoping, including the admin bypass.
// Scope: Unit Test
// Security: Tenant isolation between division repositories
// Expected: Members access only their own divisions; admins access any division; non-members are rejected.
// Test Case ID: AZN-02
func TestAuthz_RequireDivisionAccess(t *testing.T) {
	member := &identity.User{
		Role:        identity.RoleUser,
		DivisionIDs: []string{"div-1", "div-2"},
	}

	if err := authz.RequireDivisionAccess(member, "div-1"); err != nil {
		t.Errorf("expected member access to div-1, got %v", err)
	}
	if err := authz.RequireDivisionAccess(member, "div-3"); err != authz.ErrForbidden {
		t.Errorf("expected ErrForbidden for div-3, got %v", err)
	}

	admin := &identity.User{Role: identity.RoleAdmin}
	if err := authz.RequireDivisionAccess(admin, "div-3"); err != nil {
		t.Errorf("expected admin bypass, got %v", err)
	}
}

// TestPurpose: Validates the combined write gate for credential mutations.
// Scope: Unit Test
// Security: Write access requires both elevated role and division membership
// Expected: Plain users never write; management writes only inside their divisions; admins write anywhere.
// Test Case ID: AZN-03
func TestAuthz_RequireCredentialWrite(t *testing.T) {
	user := &identity.User{Role: identity.RoleUser, DivisionIDs: []string{"div-1"}}
	if err := authz.RequireCredentialWrite(user, "div-1"); err != authz.ErrForbidden {
		t.Errorf("expected ErrForbidden for user role, got %v", err)
	}

	manager := &identity.User{Role: identity.RoleManagement, DivisionIDs: []string{"div-1"}}
	if err := authz.RequireCredentialWrite(manager, "div-1"); err != nil {
		t.Errorf("expected manager write in own division, got %v", err)
	}
	if err := authz.RequireCredentialWrite(manager, "div-2"); err != authz.ErrForbidden {
		t.Errorf("expected ErrForbidden outside division, got %v", err)
	}

	admin := &identity.User{Role: identity.RoleAdmin}
	if err := authz.RequireCredentialWrite(admin, "div-2"); err != nil {
		t.Errorf("expected admin write anywhere, got %v", err)
	}
}
