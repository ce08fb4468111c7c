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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/credvault/credvault/internal/audit"
	"github.com/credvault/credvault/internal/cipher"
	"github.com/credvault/credvault/internal/config"
	"github.com/credvault/credvault/internal/identity"
	"github.com/credvault/credvault/internal/observability/logger"
	"github.com/credvault/credvault/internal/observability/metrics"
	"github.com/credvault/credvault/internal/observability/tracing"
	"github.com/credvault/credvault/internal/org"
	"github.com/credvault/credvault/internal/stats"
	"github.com/credvault/credvault/internal/store/postgres"
	"github.com/credvault/credvault/internal/token"
	transportHTTP "github.com/credvault/credvault/internal/transport/http"
	"github.com/credvault/credvault/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting credvault")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	} else {
		defer tracer.Shutdown(ctx)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize request metrics", logger.Error(err))
	}

	// Initialize database
	db, err := postgres.New(ctx, databaseConfig(cfg))
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		slog.Error("failed to run migrations", logger.Error(err))
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	resetTokenRepo := postgres.NewResetTokenRepository(db)
	unitRepo := postgres.NewUnitRepository(db)
	divisionRepo := postgres.NewDivisionRepository(db)
	vaultRepo := postgres.NewVaultRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	statsRepo := postgres.NewStatsRepository(db)

	// Initialize helpers
	passwordHasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)

	box, err := cipher.New(cipher.StaticKey(cfg.Encryption.Key))
	if err != nil {
		slog.Error("failed to initialize credential encryption", logger.Error(err))
		os.Exit(1)
	}

	issuer := token.NewIssuer(
		[]byte(cfg.Auth.AccessSecret),
		[]byte(cfg.Auth.RefreshSecret),
		cfg.Auth.AccessTTL,
		cfg.Auth.RefreshTTL,
	)

	recorder := audit.NewAsyncRecorder(auditRepo, cfg.Audit.QueueSize)
	defer recorder.Close()

	// Initialize services
	orgService := org.NewService(unitRepo, divisionRepo)
	identityService := identity.NewService(
		userRepo,
		resetTokenRepo,
		passwordHasher,
		orgService,
		cfg.Security.LockoutMaxAttempts,
		cfg.Security.LockoutDuration,
		cfg.Security.MinPasswordLength,
		cfg.Auth.ResetTokenTTL,
	)
	vaultService := vault.NewService(vaultRepo, orgService, box)
	statsService := stats.NewService(statsRepo, auditRepo)

	// Rate limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		identityService,
		vaultService,
		orgService,
		statsService,
		issuer,
		recorder,
		cfg.Environment,
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter, httpMetrics)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Retention sweep: expired reset tokens and audit entries past retention
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if n, err := identityService.PurgeExpiredResetTokens(ctx); err != nil {
				slog.ErrorContext(ctx, "failed to purge expired reset tokens", logger.Error(err))
			} else if n > 0 {
				slog.InfoContext(ctx, "purged expired reset tokens", "count", n)
			}

			cutoff := time.Now().Add(-cfg.Audit.Retention)
			if n, err := auditRepo.DeleteOlderThan(ctx, cutoff); err != nil {
				slog.ErrorContext(ctx, "failed to prune audit trail", logger.Error(err))
			} else if n > 0 {
				slog.InfoContext(ctx, "pruned audit trail", "count", n)
			}
		}
	}()

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func databaseConfig(cfg *config.Config) postgres.Config {
	return postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	}
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, databaseConfig(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}

	slog.Info("migrations applied")
	return nil
}
