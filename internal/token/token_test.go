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

package token

import (
	"testing"
	"time"
)

// TestPurpose: Validates issue/verify round trips for both token kinds.
// Scope: Unit Test
// Security: Session integrity
// Expected: Each token verifies against its own secret and carries the subject user ID.
// Test Case ID: TOK-01
func TestToken_Issuer_RoundTrip(t *testing.T) {
	issuer := NewIssuer([]byte("access-secret-0123456789abcdef01"), []byte("refresh-secret-0123456789abcdef0"), 30*time.Minute, 7*24*time.Hour)

	access, exp, err := issuer.IssueAccess("user-1")
	if err != nil {
		t.Fatalf("failed to issue access token: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Error("expected future expiry")
	}
	if sub, err := issuer.VerifyAccess(access); err != nil || sub != "user-1" {
		t.Errorf("expected subject user-1, got %q err %v", sub, err)
	}

	refresh, _, err := issuer.IssueRefresh("user-1")
	if err != nil {
		t.Fatalf("failed to issue refresh token: %v", err)
	}
	if sub, err := issuer.VerifyRefresh(refresh); err != nil || sub != "user-1" {
		t.Errorf("expected subject user-1, got %q err %v", sub, err)
	}
}

// TestPurpose: Validates that the two token kinds are not interchangeable and that bad tokens fail uniformly.
// Scope: Unit Test
// Security: Secret separation between access and refresh tokens
// Expected: Cross-verification, tampering, expiry and garbage all yield ErrInvalidToken.
// Test Case ID: TOK-02
func TestToken_Issuer_Rejection(t *testing.T) {
	issuer := NewIssuer([]byte("access-secret-0123456789abcdef01"), []byte("refresh-secret-0123456789abcdef0"), 30*time.Minute, 7*24*time.Hour)

	access, _, _ := issuer.IssueAccess("user-1")
	refresh, _, _ := issuer.IssueRefresh("user-1")

	if _, err := issuer.VerifyRefresh(access); err != ErrInvalidToken {
		t.Errorf("expected access token rejected as refresh, got %v", err)
	}
	if _, err := issuer.VerifyAccess(refresh); err != ErrInvalidToken {
		t.Errorf("expected refresh token rejected as access, got %v", err)
	}
	if _, err := issuer.VerifyAccess(access + "x"); err != ErrInvalidToken {
		t.Errorf("expected tampered token rejected, got %v", err)
	}
	if _, err := issuer.VerifyAccess("not-a-jwt"); err != ErrInvalidToken {
		t.Errorf("expected garbage rejected, got %v", err)
	}

	expired := NewIssuer([]byte("access-secret-0123456789abcdef01"), []byte("refresh-secret-0123456789abcdef0"), -time.Minute, -time.Minute)
	tok, _, _ := expired.IssueAccess("user-1")
	if _, err := issuer.VerifyAccess(tok); err != ErrInvalidToken {
		t.Errorf("expected expired token rejected, got %v", err)
	}
}
