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

package http

import (
	"time"

	"github.com/credvault/credvault/internal/identity"
	"github.com/credvault/credvault/internal/org"
	"github.com/credvault/credvault/internal/vault"
)

// UserView is the wire shape of a user. The password hash never leaves
// the service layer.
type UserView struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	Role                string     `json:"role"`
	OrganizationalUnits []string   `json:"organizationalUnits"`
	Divisions           []string   `json:"divisions"`
	IsActive            bool       `json:"isActive"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}

func toUserView(u *identity.User) UserView {
	return UserView{
		ID:                  u.ID,
		Username:            u.Username,
		Email:               u.Email,
		Role:                string(u.Role),
		OrganizationalUnits: emptyIfNil(u.OrganizationalUnitIDs),
		Divisions:           emptyIfNil(u.DivisionIDs),
		IsActive:            u.IsActive,
		LastLogin:           u.LastLogin,
		CreatedAt:           u.CreatedAt,
	}
}

// CredentialView is the wire shape of a credential. Password is present
// only on the dedicated access endpoint, as plaintext; listings omit it
// entirely so ciphertext never leaks.
type CredentialView struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Category        string     `json:"category"`
	URL             string     `json:"url,omitempty"`
	Username        string     `json:"username"`
	Password        string     `json:"password,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Tags            []string   `json:"tags"`
	CreatedByID     string     `json:"createdBy,omitempty"`
	LastUpdatedByID string     `json:"lastUpdatedBy,omitempty"`
	LastAccessed    *time.Time `json:"lastAccessed,omitempty"`
	AccessCount     int        `json:"accessCount"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	IsActive        bool       `json:"isActive"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func toCredentialView(c *vault.Credential, includePassword bool) CredentialView {
	view := CredentialView{
		ID:              c.ID,
		Title:           c.Title,
		Category:        string(c.Category),
		URL:             c.URL,
		Username:        c.Username,
		Notes:           c.Notes,
		Tags:            emptyIfNil(c.Tags),
		CreatedByID:     c.CreatedByID,
		LastUpdatedByID: c.LastUpdatedByID,
		LastAccessed:    c.LastAccessed,
		AccessCount:     c.AccessCount,
		ExpiresAt:       c.ExpiresAt,
		IsActive:        c.IsActive,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if includePassword {
		view.Password = c.Password
	}
	return view
}

func toCredentialViews(creds []*vault.Credential) []CredentialView {
	views := make([]CredentialView, 0, len(creds))
	for _, c := range creds {
		views = append(views, toCredentialView(c, false))
	}
	return views
}

// DivisionView is the wire shape of a division
type DivisionView struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Code                 string `json:"code"`
	OrganizationalUnitID string `json:"organizationalUnitId"`
	Description          string `json:"description,omitempty"`
	IsActive             bool   `json:"isActive"`
}

func toDivisionView(d *org.Division) DivisionView {
	return DivisionView{
		ID:                   d.ID,
		Name:                 d.Name,
		Code:                 d.Code,
		OrganizationalUnitID: d.OrganizationalUnitID,
		Description:          d.Description,
		IsActive:             d.IsActive,
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
