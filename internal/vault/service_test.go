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
	"testing"

	"github.com/credvault/credvault/internal/authz"
	"github.com/credvault/credvault/internal/cipher"
	"github.com/credvault/credvault/internal/identity"
	"github.com/credvault/credvault/internal/org"
)

// MockRepositoryStore is an in-memory RepositoryStore with optimistic
// versioning semantics
type MockRepositoryStore struct {
	repos     map[string]*Repository // keyed by division ID
	listCalls int
	conflicts int // inject this many version conflicts before accepting
}

func NewMockRepositoryStore() *MockRepositoryStore {
	return &MockRepositoryStore{repos: make(map[string]*Repository)}
}

func (m *MockRepositoryStore) Create(ctx context.Context, repo *Repository) error {
	if _, ok := m.repos[repo.DivisionID]; ok {
		return errors.New("duplicate repository")
	}
	m.repos[repo.DivisionID] = clone(repo)
	return nil
}

func (m *MockRepositoryStore) GetByDivision(ctx context.Context, divisionID string) (*Repository, error) {
	repo, ok := m.repos[divisionID]
	if !ok {
		return nil, ErrRepositoryNotFound
	}
	return clone(repo), nil
}

func (m *MockRepositoryStore) GetByCredential(ctx context.Context, credentialID string) (*Repository, error) {
	for _, repo := range m.repos {
		if repo.Credential(credentialID) != nil {
			return clone(repo), nil
		}
	}
	return nil, ErrRepositoryNotFound
}

func (m *MockRepositoryStore) Update(ctx context.Context, repo *Repository) error {
	if m.conflicts > 0 {
		m.conflicts--
		return ErrVersionConflict
	}
	stored, ok := m.repos[repo.DivisionID]
	if !ok {
		return ErrRepositoryNotFound
	}
	if stored.Version != repo.Version {
		return ErrVersionConflict
	}
	next := clone(repo)
	next.Version++
	m.repos[repo.DivisionID] = next
	return nil
}

func (m *MockRepositoryStore) ListByDivisions(ctx context.Context, divisionIDs []string) ([]*Repository, error) {
	m.listCalls++
	var out []*Repository
	for _, id := range divisionIDs {
		if repo, ok := m.repos[id]; ok {
			out = append(out, clone(repo))
		}
	}
	return out, nil
}

func clone(repo *Repository) *Repository {
	c := *repo
	c.Credentials = make([]*Credential, len(repo.Credentials))
	for i, cred := range repo.Credentials {
		cc := *cred
		c.Credentials[i] = &cc
	}
	return &c
}

// MockDivisionDirectory serves a fixed division set
type MockDivisionDirectory struct {
	divisions map[string]*org.Division
}

func NewMockDivisionDirectory(ids ...string) *MockDivisionDirectory {
	m := &MockDivisionDirectory{divisions: make(map[string]*org.Division)}
	for _, id := range ids {
		m.divisions[id] = &org.Division{ID: id, Name: "Division " + id, Code: strings.ToUpper(id), IsActive: true}
	}
	return m
}

func (m *MockDivisionDirectory) GetDivision(ctx context.Context, divisionID string) (*org.Division, error) {
	d, ok := m.divisions[divisionID]
	if !ok {
		return nil, org.ErrDivisionNotFound
	}
	return d, nil
}

func (m *MockDivisionDirectory) ListDivisions(ctx context.Context, activeOnly bool) ([]*org.Division, error) {
	var out []*org.Division
	for _, d := range m.divisions {
		if activeOnly && !d.IsActive {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func newTestService(t *testing.T, store *MockRepositoryStore, dirs *MockDivisionDirectory) *Service {
	t.Helper()
	box, err := cipher.New(cipher.StaticKey("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("failed to build cipher: %v", err)
	}
	return NewService(store, dirs, box)
}

func member(divisionIDs ...string) *identity.User {
	return &identity.User{ID: "user-1", Role: identity.RoleUser, DivisionIDs: divisionIDs}
}

func manager(divisionIDs ...string) *identity.User {
	return &identity.User{ID: "mgr-1", Role: identity.RoleManagement, DivisionIDs: divisionIDs}
}

func admin() *identity.User {
	return &identity.User{ID: "adm-1", Role: identity.RoleAdmin}
}

// TestPurpose: Validates lazy repository creation on first touch.
// Scope: Unit Test
// Security: Division scoping on repository access
// Expected: First access creates an empty repository; repeated access returns the same one; unknown divisions and foreign divisions are rejected.
// Test Case ID: VLT-01
func TestVault_Service_GetRepository(t *testing.T) {
	store := NewMockRepositoryStore()
	s := newTestService(t, store, NewMockDivisionDirectory("div-1"))
	ctx := context.Background()

	repo, err := s.GetRepository(ctx, member("div-1"), "div-1")
	if err != nil {
		t.Fatalf("failed to get repository: %v", err)
	}
	if repo.DivisionID != "div-1" || len(repo.Credentials) != 0 {
		t.Errorf("expected empty repository for div-1, got %+v", repo)
	}

	again, err := s.GetRepository(ctx, member("div-1"), "div-1")
	if err != nil {
		t.Fatalf("failed on second access: %v", err)
	}
	if again.ID != repo.ID {
		t.Errorf("expected same repository, got %s and %s", repo.ID, again.ID)
	}

	if _, err := s.GetRepository(ctx, admin(), "div-ghost"); err != ErrDivisionNotFound {
		t.Errorf("expected ErrDivisionNotFound, got %v", err)
	}
	if _, err := s.GetRepository(ctx, member("div-2"), "div-1"); err != authz.ErrForbidden {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

// TestPurpose: Validates credential creation, input validation and encryption at rest.
// Scope: Unit Test
// Security: Plaintext passwords must never be stored
// Expected: Required fields enforced; category defaults to Other; the stored password carries the encryption envelope, not the plaintext.
// Test Case ID: VLT-02
func TestVault_Service_AddCredential(t *testing.T) {
	store := NewMockRepositoryStore()
	s := newTestService(t, store, NewMockDivisionDirectory("div-1"))
	ctx := context.Background()
	actor := member("div-1")

	if _, err := s.AddCredential(ctx, actor, "div-1", CredentialInput{URL: "u", Username: "n", Password: "p"}); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("expected ErrInvalidCredential for missing title, got %v", err)
	}
	if _, err := s.AddCredential(ctx, actor, "div-1", CredentialInput{Title: "t", URL: "u", Username: "n", Password: "p", Category: "Printer"}); err != ErrInvalidCategory {
		t.Errorf("expected ErrInvalidCategory, got %v", err)
	}
	if _, err := s.AddCredential(ctx, actor, "div-1", CredentialInput{Title: "t", URL: "u", Username: "n", Password: "p", Notes: strings.Repeat("x", MaxNotesLength+1)}); err != ErrNotesTooLong {
		t.Errorf("expected ErrNotesTooLong, got %v", err)
	}

	ref, err := s.AddCredential(ctx, actor, "div-1", CredentialInput{
		Title:    "Production WordPress",
		URL:      "https://example.com/wp-admin",
		Username: "editor",
		Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("failed to add credential: %v", err)
	}
	if ref.Credential.Category != CategoryOther {
		t.Errorf("expected default category Other, got %s", ref.Credential.Category)
	}
	if ref.Credential.CreatedByID != actor.ID {
		t.Errorf("expected creator %s, got %s", actor.ID, ref.Credential.CreatedByID)
	}

	stored, _ := store.GetByDivision(ctx, "div-1")
	pw := stored.Credentials[0].Password
	if !strings.HasPrefix(pw, cipher.Sentinel) {
		t.Errorf("expected stored password to carry envelope sentinel, got %q", pw)
	}
	if strings.Contains(pw, "hunter2") {
		t.Error("plaintext password leaked into the store")
	}
}

// TestPurpose: Validates role and division gates on credential mutations.
// Scope: Unit Test
// Security: Write access requires management role plus division membership; admins bypass membership only.
// Expected: Plain users cannot update or delete; managers act only inside their divisions; admins act anywhere.
// Test Case ID: VLT-03
func TestVault_Service_MutationAuthorization(t *testing.T) {
	store := NewMockRepositoryStore()
	s := newTestService(t, store, NewMockDivisionDirectory("div-1", "div-2"))
	ctx := context.Background()

	ref, err := s.AddCredential(ctx, member("div-1"), "div-1", CredentialInput{Title: "t", URL: "u", Username: "n", Password: "p"})
	if err != nil {
		t.Fatalf("failed to add credential: %v", err)
	}
	credID := ref.Credential.ID
	title := "renamed"

	if _, err := s.UpdateCredential(ctx, member("div-1"), credID, CredentialPatch{Title: &title}); err != authz.ErrForbidden {
		t.Errorf("expected ErrForbidden for user role, got %v", err)
	}
	if _, err := s.UpdateCredential(ctx, manager("div-2"), credID, CredentialPatch{Title: &title}); err != authz.ErrForbidden {
		t.Errorf("expected ErrForbidden outside division, got %v", err)
	}
	if _, err := s.SoftDeleteCredential(ctx, member("div-1"), credID); err != authz.ErrForbidden {
		t.Errorf("expected ErrForbidden for user delete, got %v", err)
	}

	updated, err := s.UpdateCredential(ctx, manager("div-1"), credID, CredentialPatch{Title: &title})
	if err != nil {
		t.Fatalf("expected manager update, got %v", err)
	}
	if updated.Credential.Title != "renamed" {
		t.Errorf("expected renamed title, got %s", updated.Credential.Title)
	}

	if _, err := s.SoftDeleteCredential(ctx, admin(), credID); err != nil {
		t.Errorf("expected admin delete, got %v", err)
	}
}

// TestPurpose: Validates the access operation as the single plaintext path.
// Scope: Unit Test
// Security: Decryption coupled to access tracking
// Expected: Access returns the plaintext, bumps the counter and stamps the time; the stored envelope stays encrypted.
// Test Case ID: VLT-04
func TestVault_Service_AccessCredential(t *testing.T) {
	store := NewMockRepositoryStore()
	s := newTestService(t, store, NewMockDivisionDirectory("div-1"))
	ctx := context.Background()
	actor := member("div-1")

	ref, _ := s.AddCredential(ctx, actor, "div-1", CredentialInput{Title: "t", URL: "u", Username: "n", Password: "hunter2"})

	got, err := s.AccessCredential(ctx, actor, ref.Credential.ID)
	if err != nil {
		t.Fatalf("failed to access credential: %v", err)
	}
	if got.Credential.Password != "hunter2" {
		t.Errorf("expected plaintext password, got %q", got.Credential.Password)
	}
	if got.Credential.AccessCount != 1 || got.Credential.LastAccessed == nil {
		t.Errorf("expected access tracking, got count=%d last=%v", got.Credential.AccessCount, got.Credential.LastAccessed)
	}

	if got, err = s.AccessCredential(ctx, actor, ref.Credential.ID); err != nil || got.Credential.AccessCount != 2 {
		t.Errorf("expected second access to count 2, got %d err %v", got.Credential.AccessCount, err)
	}

	stored, _ := store.GetByDivision(ctx, "div-1")
	if !strings.HasPrefix(stored.Credentials[0].Password, cipher.Sentinel) {
		t.Error("expected stored password to remain encrypted after access")
	}

	if _, err := s.AccessCredential(ctx, member("div-2"), ref.Credential.ID); err != authz.ErrForbidden {
		t.Errorf("expected ErrForbidden for foreign division, got %v", err)
	}
	if _, err := s.AccessCredential(ctx, actor, "cred-ghost"); err != ErrCredentialNotFound {
		t.Errorf("expected ErrCredentialNotFound, got %v", err)
	}
}

// TestPurpose: Validates soft deletion semantics.
// Scope: Unit Test
// Security: Deleted credentials disappear from listings and search but stay on record
// Expected: A deleted credential is absent from ActiveCredentials and search results while remaining in the aggregate.
// Test Case ID: VLT-05
func TestVault_Service_SoftDelete(t *testing.T) {
	store := NewMockRepositoryStore()
	s := newTestService(t, store, NewMockDivisionDirectory("div-1"))
	ctx := context.Background()

	ref, _ := s.AddCredential(ctx, member("div-1"), "div-1", CredentialInput{Title: "doomed", URL: "u", Username: "n", Password: "p"})

	if _, err := s.SoftDeleteCredential(ctx, manager("div-1"), ref.Credential.ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	repo, _ := s.GetRepository(ctx, member("div-1"), "div-1")
	if len(repo.ActiveCredentials()) != 0 {
		t.Error("expected no active credentials after delete")
	}
	if repo.Credential(ref.Credential.ID) == nil {
		t.Error("expected deleted credential to remain in the aggregate")
	}

	results, total, err := s.Search(ctx, member("div-1"), "doomed")
	if err != nil || total != 0 || len(results) != 0 {
		t.Errorf("expected deleted credential out of search, got %d results err %v", total, err)
	}

	// Direct access by id still works for the retained record
	accessed, err := s.AccessCredential(ctx, member("div-1"), ref.Credential.ID)
	if err != nil {
		t.Fatalf("failed to access deleted credential by id: %v", err)
	}
	if accessed.Credential.IsActive {
		t.Error("expected accessed credential to remain inactive")
	}
}

// TestPurpose: Validates search scoping, the short-query floor and the result cap.
// Scope: Unit Test
// Security: Search must not cross division boundaries
// Expected: Queries under two characters skip the store entirely; matches respect division membership; results cap at 20 with a true total.
// Test Case ID: VLT-06
func TestVault_Service_Search(t *testing.T) {
	store := NewMockRepositoryStore()
	s := newTestService(t, store, NewMockDivisionDirectory("div-1", "div-2"))
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		if _, err := s.AddCredential(ctx, member("div-1"), "div-1", CredentialInput{
			Title:    fmt.Sprintf("wordpress site %d", i),
			URL:      "https://example.com",
			Username: "editor",
			Password: "p",
			Tags:     []string{"CMS"},
		}); err != nil {
			t.Fatalf("failed to seed credential %d: %v", i, err)
		}
	}
	if _, err := s.AddCredential(ctx, member("div-2"), "div-2", CredentialInput{
		Title: "wordpress other division", URL: "u", Username: "n", Password: "p",
	}); err != nil {
		t.Fatalf("failed to seed div-2: %v", err)
	}

	// Short queries never reach the store
	before := store.listCalls
	results, total, err := s.Search(ctx, member("div-1"), " w ")
	if err != nil || total != 0 || len(results) != 0 {
		t.Errorf("expected empty result for short query, got %d err %v", total, err)
	}
	if store.listCalls != before {
		t.Error("expected short query to skip the store")
	}

	// The floor counts characters, not bytes
	if _, err := s.AddCredential(ctx, member("div-1"), "div-1", CredentialInput{
		Title: "résumé portal", URL: "u", Username: "n", Password: "p",
	}); err != nil {
		t.Fatalf("failed to seed multibyte credential: %v", err)
	}
	before = store.listCalls
	results, total, err = s.Search(ctx, member("div-1"), "é")
	if err != nil || total != 0 || len(results) != 0 {
		t.Errorf("expected empty result for one-character multibyte query, got %d err %v", total, err)
	}
	if store.listCalls != before {
		t.Error("expected one-character multibyte query to skip the store")
	}

	// Division scoping with a capped result set and true total
	results, total, err = s.Search(ctx, member("div-1"), "WordPress")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if total != 25 {
		t.Errorf("expected true total 25, got %d", total)
	}
	if len(results) != MaxSearchResults {
		t.Errorf("expected %d capped results, got %d", MaxSearchResults, len(results))
	}
	for _, r := range results {
		if r.Division == nil || r.Division.ID != "div-1" {
			t.Fatalf("result leaked outside div-1: %+v", r.Division)
		}
	}

	// Admins search everything; tags match case-insensitively
	_, total, err = s.Search(ctx, admin(), "wordpress")
	if err != nil || total != 26 {
		t.Errorf("expected admin total 26, got %d err %v", total, err)
	}
	_, total, err = s.Search(ctx, member("div-1"), "cms")
	if err != nil || total != 25 {
		t.Errorf("expected tag match total 25, got %d err %v", total, err)
	}
}

// TestPurpose: Validates the bounded retry around optimistic versioning.
// Scope: Unit Test
// Security: Concurrent updates must not silently drop writes
// Expected: A transient version conflict is retried and succeeds; persistent conflicts surface ErrVersionConflict.
// Test Case ID: VLT-07
func TestVault_Service_VersionConflictRetry(t *testing.T) {
	store := NewMockRepositoryStore()
	s := newTestService(t, store, NewMockDivisionDirectory("div-1"))
	ctx := context.Background()

	store.conflicts = 2
	ref, err := s.AddCredential(ctx, member("div-1"), "div-1", CredentialInput{Title: "t", URL: "u", Username: "n", Password: "p"})
	if err != nil {
		t.Fatalf("expected retry to absorb transient conflicts, got %v", err)
	}

	store.conflicts = casRetries + 1
	title := "renamed"
	if _, err := s.UpdateCredential(ctx, manager("div-1"), ref.Credential.ID, CredentialPatch{Title: &title}); err != ErrVersionConflict {
		t.Errorf("expected ErrVersionConflict after exhausting retries, got %v", err)
	}
}
