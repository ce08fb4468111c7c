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

// Package token issues and verifies the HS256 JWT pair used for API access.
// Access and refresh tokens are signed with separate secrets so a leaked
// access secret cannot mint refresh tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
// Expired, malformed, wrong-secret and wrong-algorithm tokens are
// deliberately indistinguishable to callers.
var ErrInvalidToken = errors.New("invalid token")

// Issuer mints and verifies access/refresh token pairs
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewIssuer creates a token issuer
func NewIssuer(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccess creates a signed access token for the user
func (i *Issuer) IssueAccess(userID string) (string, time.Time, error) {
	return sign(userID, i.accessSecret, i.accessTTL)
}

// IssueRefresh creates a signed refresh token for the user
func (i *Issuer) IssueRefresh(userID string) (string, time.Time, error) {
	return sign(userID, i.refreshSecret, i.refreshTTL)
}

// VerifyAccess verifies an access token and returns its subject user ID
func (i *Issuer) VerifyAccess(token string) (string, error) {
	return verify(token, i.accessSecret)
}

// VerifyRefresh verifies a refresh token and returns its subject user ID
func (i *Issuer) VerifyRefresh(token string) (string, error) {
	return verify(token, i.refreshSecret)
}

func sign(userID string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

func verify(token string, secret []byte) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
