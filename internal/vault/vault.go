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

package vault

import (
	"context"
	"errors"
	"time"

	"github.com/credvault/credvault/internal/org"
)

// Domain errors
var (
	ErrRepositoryNotFound = errors.New("credential repository not found")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrDivisionNotFound   = errors.New("division not found")
	ErrInvalidCredential  = errors.New("credential validation failed")
	ErrInvalidCategory    = errors.New("unknown credential category")
	ErrNotesTooLong       = errors.New("notes cannot exceed 500 characters")
	ErrVersionConflict    = errors.New("repository was modified concurrently")
)

// MaxNotesLength caps the free-text notes field
const MaxNotesLength = 500

// MaxSearchResults caps how many matches a search returns. The reported
// total still reflects every match.
const MaxSearchResults = 20

// MinSearchLength is the shortest query that triggers a search; anything
// shorter returns empty without touching the store
const MinSearchLength = 2

// Category classifies a credential
type Category string

// Known categories. Uncategorized credentials default to Other.
const (
	CategoryWordPress Category = "WordPress"
	CategoryServer    Category = "Server"
	CategoryDatabase  Category = "Database"
	CategoryFinancial Category = "Financial"
	CategoryAPI       Category = "API"
	CategoryOther     Category = "Other"
)

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case CategoryWordPress, CategoryServer, CategoryDatabase,
		CategoryFinancial, CategoryAPI, CategoryOther:
		return true
	}
	return false
}

// Credential is one stored secret. The Password field holds the encrypted
// envelope at rest; only AccessCredential ever returns it decrypted.
type Credential struct {
	ID              string
	Title           string
	Category        Category
	URL             string
	Username        string
	Password        string
	Notes           string
	Tags            []string
	CreatedByID     string
	LastUpdatedByID string
	LastAccessed    *time.Time
	AccessCount     int
	ExpiresAt       *time.Time
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Repository is the credential store owned by exactly one division. The
// Version field implements optimistic concurrency: updates carry the
// version they read, and the store rejects stale writes.
type Repository struct {
	ID          string
	DivisionID  string
	Version     int64
	Credentials []*Credential
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Credential returns the credential with the given ID, active or not
func (r *Repository) Credential(credentialID string) *Credential {
	for _, c := range r.Credentials {
		if c.ID == credentialID {
			return c
		}
	}
	return nil
}

// ActiveCredentials returns the credentials not soft-deleted
func (r *Repository) ActiveCredentials() []*Credential {
	out := make([]*Credential, 0, len(r.Credentials))
	for _, c := range r.Credentials {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out
}

// SearchResult is a credential match annotated with its location
type SearchResult struct {
	Credential   *Credential
	RepositoryID string
	Division     *org.Division
}

// RepositoryStore defines the interface for repository persistence
type RepositoryStore interface {
	// Create stores a new empty repository
	Create(ctx context.Context, repo *Repository) error

	// GetByDivision retrieves the repository owned by the division
	GetByDivision(ctx context.Context, divisionID string) (*Repository, error)

	// GetByCredential retrieves the repository containing the credential
	GetByCredential(ctx context.Context, credentialID string) (*Repository, error)

	// Update persists the repository if its version is unchanged since the
	// read, returns ErrVersionConflict otherwise
	Update(ctx context.Context, repo *Repository) error

	// ListByDivisions retrieves the repositories of the given divisions
	ListByDivisions(ctx context.Context, divisionIDs []string) ([]*Repository, error)
}

// DivisionDirectory is the slice of the org service the vault needs.
// Implemented by org.Service.
type DivisionDirectory interface {
	GetDivision(ctx context.Context, divisionID string) (*org.Division, error)
	ListDivisions(ctx context.Context, activeOnly bool) ([]*org.Division, error)
}
