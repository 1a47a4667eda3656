package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"ipamd/internal/auth"
	appdb "ipamd/internal/db"
	"ipamd/internal/domain"
	apihttp "ipamd/internal/http"
	"ipamd/internal/metrics"
)

func Run(ctx context.Context, cfg Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	pool, err := appdb.NewPool(ctx, cfg.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := appdb.Migrate(ctx, pool); err != nil {
		return err
	}

	txm := appdb.NewTxManager(pool)
	subnets := appdb.NewSubnetRepository(pool)
	ips := appdb.NewIPRepository(pool)
	auditRepo := appdb.NewAuditRepository(pool)
	users := appdb.NewUserRepository(pool)

	if err := ensureAdmin(ctx, logger, users, cfg); err != nil {
		return err
	}

	auditSvc := domain.NewAuditService(logger, auditRepo)
	detector := domain.NewConflictDetector(txm, ips, auditSvc)
	network := domain.NewNetworkService(txm, subnets, ips, detector, auditSvc, cfg.HostCeiling)
	allocations := domain.NewLoggingAllocationService(logger,
		domain.NewAllocationService(txm, ips, subnets, detector, auditSvc, cfg.BulkCeiling))

	tokens := auth.NewTokenService([]byte(cfg.SigningKey), cfg.AccessTTL, cfg.RefreshTTL)
	m := metrics.New()

	api := apihttp.NewAPI(logger, pool, network, allocations, auditSvc, users, tokens, m,
		cfg.RateLimit, cfg.RateBurst)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      api.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("serving", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen and serve", "err", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

// ensureAdmin seeds the initial admin account so a fresh deployment is
// reachable. An existing user with the configured name is left untouched.
func ensureAdmin(ctx context.Context, logger *slog.Logger, users domain.UserRepository, cfg Config) error {
	if _, err := users.FindByUsername(ctx, cfg.AdminUser); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	_, err = users.Create(ctx, domain.User{
		Username:     cfg.AdminUser,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	logger.Info("seeded admin user", "username", cfg.AdminUser)
	return nil
}
