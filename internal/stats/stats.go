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

// Package stats assembles the admin dashboard aggregates and the activity
// listing over the audit trail.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/credvault/credvault/internal/audit"
)

// ExpiryWindow is how far ahead the dashboard looks for expiring credentials
const ExpiryWindow = 30 * 24 * time.Hour

// recentActivityLimit bounds the dashboard's activity preview
const recentActivityLimit = 10

// RoleCount is a per-role user tally
type RoleCount struct {
	Role  string
	Count int
}

// CategoryCount is a per-category credential tally
type CategoryCount struct {
	Category string
	Count    int
}

// UserStats summarizes the user population
type UserStats struct {
	Total    int
	Active   int
	Inactive int
	ByRole   []RoleCount
}

// CredentialStats summarizes stored credentials
type CredentialStats struct {
	Total      int
	Active     int
	Inactive   int
	Expiring   int
	ByCategory []CategoryCount
}

// StructureStats counts the active organizational structure
type StructureStats struct {
	OrganizationalUnits int
	Divisions           int
}

// Dashboard is the full admin dashboard payload
type Dashboard struct {
	Users          UserStats
	Credentials    CredentialStats
	Structure      StructureStats
	RecentActivity []*audit.Entry
}

// Pagination describes one page of a listing
type Pagination struct {
	Page  int
	Limit int
	Total int
	Pages int
}

// ActivityFilter narrows the activity listing
type ActivityFilter struct {
	UserID string
	Action string
	Page   int
	Limit  int
}

// MetricsSource provides the raw aggregates the dashboard is built from.
// Implemented by the postgres store so counting happens in SQL, not in Go.
type MetricsSource interface {
	CountUsers(ctx context.Context) (total, active int, err error)
	CountUsersByRole(ctx context.Context) ([]RoleCount, error)
	CountCredentials(ctx context.Context) (total, active int, err error)
	CountCredentialsByCategory(ctx context.Context) ([]CategoryCount, error)
	CountCredentialsExpiringWithin(ctx context.Context, window time.Duration) (int, error)
	CountStructure(ctx context.Context) (units, divisions int, err error)
}

// Service provides reporting business logic
type Service struct {
	source MetricsSource
	trail  audit.EntryRepository
}

// NewService creates a new stats service
func NewService(source MetricsSource, trail audit.EntryRepository) *Service {
	return &Service{source: source, trail: trail}
}

// Dashboard assembles the admin dashboard
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	totalUsers, activeUsers, err := s.source.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	byRole, err := s.source.CountUsersByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users by role: %w", err)
	}

	totalCreds, activeCreds, err := s.source.CountCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count credentials: %w", err)
	}
	byCategory, err := s.source.CountCredentialsByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count credentials by category: %w", err)
	}
	expiring, err := s.source.CountCredentialsExpiringWithin(ctx, ExpiryWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to count expiring credentials: %w", err)
	}

	units, divisions, err := s.source.CountStructure(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count structure: %w", err)
	}

	recent, _, err := s.trail.List(ctx, audit.ListFilter{Limit: recentActivityLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent activity: %w", err)
	}

	return &Dashboard{
		Users: UserStats{
			Total:    totalUsers,
			Active:   activeUsers,
			Inactive: totalUsers - activeUsers,
			ByRole:   byRole,
		},
		Credentials: CredentialStats{
			Total:      totalCreds,
			Active:     activeCreds,
			Inactive:   totalCreds - activeCreds,
			Expiring:   expiring,
			ByCategory: byCategory,
		},
		Structure: StructureStats{
			OrganizationalUnits: units,
			Divisions:           divisions,
		},
		RecentActivity: recent,
	}, nil
}

// Activity returns one page of the audit trail, newest first
func (s *Service) Activity(ctx context.Context, filter ActivityFilter) ([]*audit.Entry, Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}

	entries, total, err := s.trail.List(ctx, audit.ListFilter{
		UserID: filter.UserID,
		Action: filter.Action,
		Limit:  filter.Limit,
		Offset: (filter.Page - 1) * filter.Limit,
	})
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to list activity: %w", err)
	}

	pages := total / filter.Limit
	if total%filter.Limit != 0 {
		pages++
	}
	return entries, Pagination{
		Page:  filter.Page,
		Limit: filter.Limit,
		Total: total,
		Pages: pages,
	}, nil
}
