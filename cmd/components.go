package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/config"
	"github.com/halcyonsec/scangate/internal/notify"
	"github.com/halcyonsec/scangate/internal/orchestrator"
	"github.com/halcyonsec/scangate/internal/scanner"
	"github.com/halcyonsec/scangate/internal/service"
	"github.com/halcyonsec/scangate/internal/source"
	"github.com/halcyonsec/scangate/internal/store"
)

// components holds the wired scan pipeline for one command invocation.
type components struct {
	Service *service.ScanService
	Store   *store.Store // Nil when no database is configured.
	pool    *pgxpool.Pool
}

// Shutdown releases the database pool, if any.
func (c *components) Shutdown() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// buildAdapters constructs the enabled tool adapters in their canonical
// order; the first SAST tool doubles as the scan's primary tool.
func buildAdapters(cfg *config.Config, logger *zap.Logger) []scanner.Adapter {
	var adapters []scanner.Adapter
	tempDir := cfg.Scanners.TempDir

	if cfg.Scanners.Semgrep.Enabled {
		adapters = append(adapters, scanner.NewSemgrepAdapter(cfg.Scanners.Semgrep, tempDir, logger))
	}
	if cfg.Scanners.Trivy.Enabled {
		adapters = append(adapters, scanner.NewTrivyAdapter(cfg.Scanners.Trivy, tempDir, logger))
	}
	if cfg.Scanners.Gitleaks.Enabled {
		adapters = append(adapters, scanner.NewGitleaksAdapter(cfg.Scanners.Gitleaks, tempDir, logger))
	}
	if cfg.Scanners.NPMAudit.Enabled {
		adapters = append(adapters, scanner.NewNPMAuditAdapter(cfg.Scanners.NPMAudit, tempDir, logger))
	}
	if cfg.Scanners.Bandit.Enabled {
		adapters = append(adapters, scanner.NewBanditAdapter(cfg.Scanners.Bandit, tempDir, logger))
	}
	return adapters
}

// initializeComponents wires the scan pipeline. The store is optional: with
// no database URL configured, scans run and report but are not persisted.
// requireStore makes a missing database fatal, for commands that cannot work
// without one.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, requireStore bool) (*components, error) {
	adapters := buildAdapters(cfg, logger)
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no scanner tools are enabled")
	}

	resolver := source.NewResolver(cfg.Source, logger)
	orch, err := orchestrator.New(resolver, adapters, logger,
		orchestrator.WithConcurrency(cfg.Scanners.Concurrency))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	c := &components{}
	if cfg.Database.URL != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid database URL: %w", err)
		}
		if cfg.Database.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		st, err := store.New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
		c.pool = pool
		c.Store = st
	} else if requireStore {
		return nil, fmt.Errorf("this command requires a database; set database.url or SCANGATE_DATABASE_URL")
	}

	notifier := notify.NewLogNotifier(logger)

	// Assign through the interface only when a store exists, so a nil
	// *store.Store never hides inside a non-nil interface value.
	var scanStore schemas.ScanStore
	if c.Store != nil {
		scanStore = c.Store
	}
	svc, err := service.New(orch, scanStore, notifier, cfg.Gate, logger)
	if err != nil {
		c.Shutdown()
		return nil, fmt.Errorf("failed to initialize scan service: %w", err)
	}
	c.Service = svc
	return c, nil
}
