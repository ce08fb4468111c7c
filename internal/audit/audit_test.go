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
	"errors"
	"sync"
	"testing"
	"time"
)

// MockEntryRepository is an in-memory implementation of EntryRepository
type MockEntryRepository struct {
	mu      sync.Mutex
	entries []*Entry
	failing bool
}

func (m *MockEntryRepository) Insert(ctx context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("store unavailable")
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockEntryRepository) List(ctx context.Context, filter ListFilter) ([]*Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries, len(m.entries), nil
}

func (m *MockEntryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*Entry
	var n int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return n, nil
}

func (m *MockEntryRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// TestPurpose: Validates that every recorded entry reaches the store with identifiers and timestamps filled in.
// Scope: Unit Test
// Security: Audit trail completeness
// Expected: N recorded entries produce N stored rows after Close, each with a generated ID and timestamp.
// Test Case ID: AUD-01
func TestAudit_AsyncRecorder_PersistsAll(t *testing.T) {
	repo := &MockEntryRepository{}
	rec := NewAsyncRecorder(repo, 64)

	ctx := context.Background()
	for i := 0; i < 25; i++ {
		rec.Record(ctx, Entry{
			UserID:       "user-1",
			Action:       ActionCredentialView,
			ResourceType: ResourceCredential,
			ResourceID:   "cred-1",
		})
	}
	rec.Close()

	if got := repo.count(); got != 25 {
		t.Fatalf("expected 25 entries, got %d", got)
	}
	for _, e := range repo.entries {
		if e.ID == "" {
			t.Error("expected generated entry ID")
		}
		if e.CreatedAt.IsZero() {
			t.Error("expected entry timestamp")
		}
	}
}

// TestPurpose: Validates that recording never blocks or errors when the store is down or the queue overflows.
// Scope: Unit Test
// Security: Audit failures must not take down the primary operation
// Expected: Record returns immediately against a failing store; entries after Close are dropped silently.
// Test Case ID: AUD-02
func TestAudit_AsyncRecorder_NeverFails(t *testing.T) {
	repo := &MockEntryRepository{failing: true}
	rec := NewAsyncRecorder(repo, 4)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			rec.Record(ctx, Entry{Action: ActionLogin})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked against a failing store")
	}
	rec.Close()

	// Recording after Close is a no-op, not a panic
	rec.Record(ctx, Entry{Action: ActionLogout})

	if got := repo.count(); got != 0 {
		t.Errorf("expected no persisted entries, got %d", got)
	}
}

// TestPurpose: Validates redaction of secret-bearing detail keys.
// Scope: Unit Test
// Security: Plaintext secrets must never enter the audit trail
// Expected: Keys containing password, token, secret, key or authorization are masked; other keys pass through.
// Test Case ID: AUD-03
func TestAudit_Redact(t *testing.T) {
	details := Redact(map[string]any{
		"password":      "hunter2",
		"refresh_token": "abc",
		"api_key":       "xyz",
		"title":         "Production DB",
	})

	for _, k := range []string{"password", "refresh_token", "api_key"} {
		if details[k] != "[REDACTED]" {
			t.Errorf("expected %s redacted, got %v", k, details[k])
		}
	}
	if details["title"] != "Production DB" {
		t.Errorf("expected title untouched, got %v", details["title"])
	}
}
