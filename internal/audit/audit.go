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

package audit

import (
	"context"
	"strings"
	"time"
)

// Actions recorded in the audit trail
const (
	ActionLogin            = "login"
	ActionLogout           = "logout"
	ActionCredentialView   = "credential_view"
	ActionCredentialAdd    = "credential_add"
	ActionCredentialEdit   = "credential_edit"
	ActionCredentialDelete = "credential_delete"
	ActionUserCreate       = "user_create"
	ActionUserUpdate       = "user_update"
	ActionUserDelete       = "user_delete"
	ActionAssignmentAdd    = "assignment_add"
	ActionAssignmentRemove = "assignment_remove"
	ActionRoleChange       = "role_change"
	ActionPasswordChange   = "password_change"
	ActionProfileUpdate    = "profile_update"
)

// Resource types an entry can reference
const (
	ResourceCredential         = "credential"
	ResourceUser               = "user"
	ResourceDivision           = "division"
	ResourceOrganizationalUnit = "organizational_unit"
	ResourceSession            = "session"
)

// Entry is one immutable record in the audit trail. Entries are only ever
// inserted; nothing in the system updates or deletes them except the
// retention sweep.
type Entry struct {
	ID           string
	UserID       string
	Username     string
	Action       string
	ResourceType string
	ResourceID   string
	DivisionID   string
	Details      map[string]any
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}

// ListFilter narrows audit trail listings
type ListFilter struct {
	UserID       string
	Action       string
	ResourceType string
	DivisionID   string
	From         time.Time
	To           time.Time
	Limit        int
	Offset       int
}

// Recorder accepts audit entries. Recording never fails from the caller's
// perspective; implementations deal with persistence errors themselves.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// EntryRepository defines the interface for audit trail persistence
type EntryRepository interface {
	// Insert appends an entry to the trail
	Insert(ctx context.Context, entry *Entry) error

	// List returns entries matching the filter, newest first, plus the
	// total match count
	List(ctx context.Context, filter ListFilter) ([]*Entry, int, error)

	// DeleteOlderThan purges entries created before the cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Redact replaces values under secret-smelling detail keys so plaintext
// credentials can never leak into the trail
func Redact(details map[string]any) map[string]any {
	if len(details) == 0 {
		return details
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if isSecret(k) {
			out[k] = "[REDACTED]"
		} else {
			out[k] = v
		}
	}
	return out
}

func isSecret(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range []string{"password", "secret", "token", "key", "authorization"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
