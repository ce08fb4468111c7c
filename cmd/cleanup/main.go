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

// Command cleanup prunes expired reset tokens and audit entries past the
// configured retention. Meant to run from cron where the server's own
// hourly sweep is not enough.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/credvault/credvault/internal/config"
	"github.com/credvault/credvault/internal/store/postgres"
)

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

	resetTokens := postgres.NewResetTokenRepository(db)
	purged, err := resetTokens.DeleteExpired(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to purge reset tokens: %v\n", err)
		os.Exit(1)
	}

	trail := postgres.NewAuditRepository(db)
	cutoff := time.Now().Add(-cfg.Audit.Retention)
	pruned, err := trail.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to prune audit trail: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Purged %d reset tokens, pruned %d audit entries older than %s.\n", purged, pruned, cutoff.Format(time.RFC3339))
}
