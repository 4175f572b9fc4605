package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/config"
	"github.com/xkilldash9x/codebouncer/internal/llmclient"
	"github.com/xkilldash9x/codebouncer/internal/observability"
	"github.com/xkilldash9x/codebouncer/internal/store"
)

// errNoDatabase is returned by a storeProvider when no database URL is set.
var errNoDatabase = errors.New("database URL is not configured (BOUNCER_DATABASE_URL or DATABASE_URL)")

// scanStore is everything the CLI needs from persistence.
type scanStore interface {
	schemas.FindingStore
	GetScan(ctx context.Context, scanID string) (*schemas.ScanRecord, error)
	GetFindingsByScanID(ctx context.Context, scanID string) ([]schemas.Finding, error)
}

// storeProvider creates the store. Tests inject an in-memory implementation
// instead of a live database connection.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its resources.
	Create(ctx context.Context, cfg *config.Config) (scanStore, func(), error)
}

// defaultStoreProvider connects to PostgreSQL and makes sure the schema exists.
type defaultStoreProvider struct{}

func (defaultStoreProvider) Create(ctx context.Context, cfg *config.Config) (scanStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database.URL == "" {
		return nil, nil, errNoDatabase
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storeService, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}
	if err := storeService.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return storeService, cleanup, nil
}

// clientProvider builds the tiered model client.
type clientProvider func(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error)

func defaultClientProvider(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	router, err := llmclient.NewRouterFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return router, nil
}
