package authz

import (
	"errors"

	"github.com/credvault/credvault/internal/identity"
)

// ErrForbidden is returned when the actor lacks the role or membership an
// operation requires
var ErrForbidden = errors.New("insufficient permissions")

// roleRank orders roles by capability. Unknown roles rank below user.
func roleRank(r identity.Role) int {
	switch r {
	case identity.RoleAdmin:
		return 3
	case identity.RoleManagement:
		return 2
	case identity.RoleUser:
		return 1
	}
	return 0
}

// RequireRole checks that the user holds at least the minimum role
func RequireRole(user *identity.User, minimum identity.Role) error {
	if user == nil || roleRank(user.Role) < roleRank(minimum) {
		return ErrForbidden
	}
	return nil
}

// RequireDivisionAccess checks that the user may touch the division's
// repository. Admins bypass division scoping; everyone else must hold a
// membership for exactly that division ID.
func RequireDivisionAccess(user *identity.User, divisionID string) error {
	if user == nil {
		return ErrForbidden
	}
	if user.Role == identity.RoleAdmin {
		return nil
	}
	if !user.MemberOfDivision(divisionID) {
		return ErrForbidden
	}
	return nil
}

// RequireCredentialWrite checks that the user may create, modify or delete
// credentials in the division: management role or above plus division access
func RequireCredentialWrite(user *identity.User, divisionID string) error {
	if err := RequireRole(user, identity.RoleManagement); err != nil {
		return err
	}
	return RequireDivisionAccess(user, divisionID)
}

// IsAdmin reports whether the user holds the admin role
func IsAdmin(user *identity.User) bool {
	return user != nil && user.Role == identity.RoleAdmin
}
