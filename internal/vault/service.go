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
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/credvault/credvault/internal/authz"
	"github.com/credvault/credvault/internal/cipher"
	"github.com/credvault/credvault/internal/id"
	"github.com/credvault/credvault/internal/identity"
	"github.com/credvault/credvault/internal/org"
)

// casRetries bounds how often a mutation re-reads and retries after losing
// an optimistic-versioning race
const casRetries = 3

// Service provides credential repository business logic. Division scoping
// and role gates are enforced here so no caller can reach a credential
// without passing them.
type Service struct {
	store     RepositoryStore
	divisions DivisionDirectory
	box       *cipher.Cipher
}

// NewService creates a new vault service
func NewService(store RepositoryStore, divisions DivisionDirectory, box *cipher.Cipher) *Service {
	return &Service{store: store, divisions: divisions, box: box}
}

// CredentialInput carries the fields for a new credential
type CredentialInput struct {
	Title     string
	Category  Category
	URL       string
	Username  string
	Password  string
	Notes     string
	Tags      []string
	ExpiresAt *time.Time
}

// CredentialPatch carries a partial update; nil fields are left untouched
type CredentialPatch struct {
	Title     *string
	Category  *Category
	URL       *string
	Username  *string
	Password  *string
	Notes     *string
	Tags      *[]string
	ExpiresAt *time.Time
}

// CredentialRef is a credential annotated with its owning repository and
// division, so callers know where a by-ID lookup landed
type CredentialRef struct {
	Credential   *Credential
	RepositoryID string
	DivisionID   string
}

// GetRepository returns the division's repository, creating it empty on
// first touch. Creation is idempotent: losing the create race falls back
// to the repository the winner created.
func (s *Service) GetRepository(ctx context.Context, actor *identity.User, divisionID string) (*Repository, error) {
	if err := authz.RequireDivisionAccess(actor, divisionID); err != nil {
		return nil, err
	}
	return s.getOrCreate(ctx, divisionID)
}

func (s *Service) getOrCreate(ctx context.Context, divisionID string) (*Repository, error) {
	repo, err := s.store.GetByDivision(ctx, divisionID)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, ErrRepositoryNotFound) {
		return nil, fmt.Errorf("failed to load repository: %w", err)
	}

	division, err := s.divisions.GetDivision(ctx, divisionID)
	if err != nil || division == nil {
		return nil, ErrDivisionNotFound
	}

	now := time.Now()
	repo = &Repository{
		ID:         id.NewUUIDv7(),
		DivisionID: division.ID,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, repo); err != nil {
		// Lost the race to another first touch
		if existing, gerr := s.store.GetByDivision(ctx, divisionID); gerr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}
	return repo, nil
}

// ListAccessible returns the active divisions whose repositories the actor
// may open. Admins see every active division.
func (s *Service) ListAccessible(ctx context.Context, actor *identity.User) ([]*org.Division, error) {
	if authz.IsAdmin(actor) {
		return s.divisions.ListDivisions(ctx, true)
	}

	out := make([]*org.Division, 0, len(actor.DivisionIDs))
	for _, divisionID := range actor.DivisionIDs {
		division, err := s.divisions.GetDivision(ctx, divisionID)
		if err != nil || division == nil || !division.IsActive {
			// Stale membership; skip rather than fail the listing
			continue
		}
		out = append(out, division)
	}
	return out, nil
}

// AddCredential stores a new credential in the division's repository. Any
// role may add within its own divisions.
func (s *Service) AddCredential(ctx context.Context, actor *identity.User, divisionID string, input CredentialInput) (*CredentialRef, error) {
	if err := authz.RequireDivisionAccess(actor, divisionID); err != nil {
		return nil, err
	}
	if err := validateInput(&input); err != nil {
		return nil, err
	}

	encrypted, err := s.box.EncryptField(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password: %w", err)
	}

	now := time.Now()
	cred := &Credential{
		ID:          id.NewUUIDv7(),
		Title:       input.Title,
		Category:    input.Category,
		URL:         input.URL,
		Username:    input.Username,
		Password:    encrypted,
		Notes:       input.Notes,
		Tags:        input.Tags,
		CreatedByID: actor.ID,
		ExpiresAt:   input.ExpiresAt,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var ref *CredentialRef
	err = s.mutate(ctx, func(ctx context.Context) (*Repository, error) {
		return s.getOrCreate(ctx, divisionID)
	}, func(repo *Repository) error {
		repo.Credentials = append(repo.Credentials, cred)
		ref = &CredentialRef{Credential: cred, RepositoryID: repo.ID, DivisionID: repo.DivisionID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// UpdateCredential applies a partial update to a credential located by ID.
// Requires the management role or above plus division access.
func (s *Service) UpdateCredential(ctx context.Context, actor *identity.User, credentialID string, patch CredentialPatch) (*CredentialRef, error) {
	var ref *CredentialRef
	err := s.mutate(ctx, func(ctx context.Context) (*Repository, error) {
		return s.locate(ctx, credentialID)
	}, func(repo *Repository) error {
		if err := authz.RequireCredentialWrite(actor, repo.DivisionID); err != nil {
			return err
		}
		cred := repo.Credential(credentialID)
		if cred == nil {
			return ErrCredentialNotFound
		}
		if err := s.applyPatch(cred, patch); err != nil {
			return err
		}
		cred.LastUpdatedByID = actor.ID
		cred.UpdatedAt = time.Now()
		ref = &CredentialRef{Credential: cred, RepositoryID: repo.ID, DivisionID: repo.DivisionID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// SoftDeleteCredential deactivates a credential. The record stays in the
// repository for the audit trail; listings and search no longer show it.
// Requires the management role or above plus division access.
func (s *Service) SoftDeleteCredential(ctx context.Context, actor *identity.User, credentialID string) (*CredentialRef, error) {
	var ref *CredentialRef
	err := s.mutate(ctx, func(ctx context.Context) (*Repository, error) {
		return s.locate(ctx, credentialID)
	}, func(repo *Repository) error {
		if err := authz.RequireCredentialWrite(actor, repo.DivisionID); err != nil {
			return err
		}
		cred := repo.Credential(credentialID)
		if cred == nil {
			return ErrCredentialNotFound
		}
		cred.IsActive = false
		cred.LastUpdatedByID = actor.ID
		cred.UpdatedAt = time.Now()
		ref = &CredentialRef{Credential: cred, RepositoryID: repo.ID, DivisionID: repo.DivisionID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// AccessCredential is the only path that returns a plaintext password. It
// stamps the access time, increments the access counter and returns a copy
// of the credential with the password decrypted; the stored envelope is
// never weakened.
func (s *Service) AccessCredential(ctx context.Context, actor *identity.User, credentialID string) (*CredentialRef, error) {
	var ref *CredentialRef
	err := s.mutate(ctx, func(ctx context.Context) (*Repository, error) {
		return s.locate(ctx, credentialID)
	}, func(repo *Repository) error {
		if err := authz.RequireDivisionAccess(actor, repo.DivisionID); err != nil {
			return err
		}
		cred := repo.Credential(credentialID)
		if cred == nil {
			return ErrCredentialNotFound
		}

		now := time.Now()
		cred.LastAccessed = &now
		cred.AccessCount++

		plaintext, err := s.box.DecryptField(cred.Password)
		if err != nil {
			return fmt.Errorf("failed to decrypt password: %w", err)
		}

		exposed := *cred
		exposed.Password = plaintext
		ref = &CredentialRef{Credential: &exposed, RepositoryID: repo.ID, DivisionID: repo.DivisionID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// Search matches active credentials across the actor's accessible
// repositories. Queries under two characters return empty without touching
// the store. Matching is a case-insensitive substring test over title,
// username, URL, category, notes and tags. At most MaxSearchResults results
// are returned; the second return value is the true match count.
func (s *Service) Search(ctx context.Context, actor *identity.User, query string) ([]*SearchResult, int, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinSearchLength {
		return []*SearchResult{}, 0, nil
	}
	needle := strings.ToLower(query)

	divisions, err := s.ListAccessible(ctx, actor)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to resolve accessible divisions: %w", err)
	}
	if len(divisions) == 0 {
		return []*SearchResult{}, 0, nil
	}

	byID := make(map[string]*org.Division, len(divisions))
	ids := make([]string, 0, len(divisions))
	for _, d := range divisions {
		byID[d.ID] = d
		ids = append(ids, d.ID)
	}

	repos, err := s.store.ListByDivisions(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load repositories: %w", err)
	}

	var matches []*SearchResult
	for _, repo := range repos {
		for _, cred := range repo.Credentials {
			if !cred.IsActive || !matchesCredential(cred, needle) {
				continue
			}
			matches = append(matches, &SearchResult{
				Credential:   cred,
				RepositoryID: repo.ID,
				Division:     byID[repo.DivisionID],
			})
		}
	}

	total := len(matches)
	if total > MaxSearchResults {
		matches = matches[:MaxSearchResults]
	}
	return matches, total, nil
}

// locate finds the repository containing a credential
func (s *Service) locate(ctx context.Context, credentialID string) (*Repository, error) {
	repo, err := s.store.GetByCredential(ctx, credentialID)
	if err != nil {
		if errors.Is(err, ErrRepositoryNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to locate credential: %w", err)
	}
	return repo, nil
}

// mutate runs load-modify-store under optimistic versioning, re-reading
// and retrying a bounded number of times when the store reports a stale
// version
func (s *Service) mutate(ctx context.Context, load func(context.Context) (*Repository, error), apply func(*Repository) error) error {
	for attempt := 0; ; attempt++ {
		repo, err := load(ctx)
		if err != nil {
			return err
		}
		if err := apply(repo); err != nil {
			return err
		}
		repo.UpdatedAt = time.Now()

		err = s.store.Update(ctx, repo)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= casRetries-1 {
			return err
		}
	}
}

func (s *Service) applyPatch(cred *Credential, patch CredentialPatch) error {
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return fmt.Errorf("%w: title is required", ErrInvalidCredential)
		}
		cred.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Category != nil {
		if !patch.Category.Valid() {
			return ErrInvalidCategory
		}
		cred.Category = *patch.Category
	}
	if patch.URL != nil {
		if strings.TrimSpace(*patch.URL) == "" {
			return fmt.Errorf("%w: url is required", ErrInvalidCredential)
		}
		cred.URL = strings.TrimSpace(*patch.URL)
	}
	if patch.Username != nil {
		if strings.TrimSpace(*patch.Username) == "" {
			return fmt.Errorf("%w: username is required", ErrInvalidCredential)
		}
		cred.Username = strings.TrimSpace(*patch.Username)
	}
	if patch.Password != nil {
		if *patch.Password == "" {
			return fmt.Errorf("%w: password is required", ErrInvalidCredential)
		}
		encrypted, err := s.box.EncryptField(*patch.Password)
		if err != nil {
			return fmt.Errorf("failed to encrypt password: %w", err)
		}
		cred.Password = encrypted
	}
	if patch.Notes != nil {
		if len(*patch.Notes) > MaxNotesLength {
			return ErrNotesTooLong
		}
		cred.Notes = *patch.Notes
	}
	if patch.Tags != nil {
		cred.Tags = *patch.Tags
	}
	if patch.ExpiresAt != nil {
		cred.ExpiresAt = patch.ExpiresAt
	}
	return nil
}

func validateInput(input *CredentialInput) error {
	input.Title = strings.TrimSpace(input.Title)
	input.URL = strings.TrimSpace(input.URL)
	input.Username = strings.TrimSpace(input.Username)

	if input.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidCredential)
	}
	if input.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidCredential)
	}
	if input.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidCredential)
	}
	if input.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidCredential)
	}
	if input.Category == "" {
		input.Category = CategoryOther
	}
	if !input.Category.Valid() {
		return ErrInvalidCategory
	}
	if len(input.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

func matchesCredential(cred *Credential, needle string) bool {
	if strings.Contains(strings.ToLower(cred.Title), needle) ||
		strings.Contains(strings.ToLower(cred.Username), needle) ||
		strings.Contains(strings.ToLower(cred.URL), needle) ||
		strings.Contains(strings.ToLower(string(cred.Category)), needle) ||
		strings.Contains(strings.ToLower(cred.Notes), needle) {
		return true
	}
	for _, tag := range cred.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}
