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

// Command seed provisions the organizational structure and the first
// admin account. Safe to re-run: existing units and users are left alone.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/credvault/credvault/internal/config"
	"github.com/credvault/credvault/internal/identity"
	"github.com/credvault/credvault/internal/org"
	"github.com/credvault/credvault/internal/store/postgres"
)

var unitCodes = map[string]string{
	"News Management":    "NEWS",
	"Software Reviews":   "SOFT",
	"Hardware Reviews":   "HARD",
	"Opinion Publishing": "OPIN",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	unitRepo := postgres.NewUnitRepository(db)
	divisionRepo := postgres.NewDivisionRepository(db)
	orgService := org.NewService(unitRepo, divisionRepo)

	for _, name := range org.UnitNames {
		if _, err := orgService.CreateUnit(ctx, name, unitCodes[name], "", ""); err != nil {
			if errors.Is(err, org.ErrDuplicateCode) {
				continue
			}
			fmt.Fprintf(os.Stderr, "Failed to create organizational unit %q: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("Created organizational unit %q\n", name)
	}

	adminEmail := strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL"))
	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminEmail == "" || adminPassword == "" {
		fmt.Println("SEED_ADMIN_EMAIL / SEED_ADMIN_PASSWORD not set, skipping admin account.")
		return
	}

	userRepo := postgres.NewUserRepository(db)
	resetTokenRepo := postgres.NewResetTokenRepository(db)
	hasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	identityService := identity.NewService(
		userRepo,
		resetTokenRepo,
		hasher,
		orgService,
		cfg.Security.LockoutMaxAttempts,
		cfg.Security.LockoutDuration,
		cfg.Security.MinPasswordLength,
		cfg.Auth.ResetTokenTTL,
	)

	user, err := identityService.Register(ctx, "admin", adminEmail, adminPassword)
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateIdentity) {
			fmt.Println("Admin account already exists.")
			return
		}
		fmt.Fprintf(os.Stderr, "Failed to create admin account: %v\n", err)
		os.Exit(1)
	}

	// Registration always yields the base role; promote directly.
	user.Role = identity.RoleAdmin
	if err := userRepo.Update(ctx, user); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to promote admin account: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created admin account %s\n", adminEmail)
}
