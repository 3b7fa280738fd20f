// Package bootstrap provides the database wiring shared by every process in
// the pipeline: open the pool, wrap it in a voicedb.Gateway, apply the
// schema. It also offers NewStorageBackend, which picks a storage.Backend
// from configuration. Each cmd/ main still wires its other domain-specific
// collaborators (tts.Client, screenshot.Client, audioprobe.Prober,
// mux.Muxer) directly, since those differ per service.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragnarcb/chatclip/internal/storage"
	"github.com/ragnarcb/chatclip/internal/voicedb"
)

// Dependencies holds the pool and gateway every service needs at startup.
type Dependencies struct {
	Pool    *pgxpool.Pool
	Gateway voicedb.Gateway
}

// NewDependencies opens a pgx pool against dsn, wraps it in a
// PostgresGateway, and applies Migrate before returning. Callers are
// responsible for closing Dependencies.Pool.
func NewDependencies(ctx context.Context, dsn string, logger *slog.Logger) (*Dependencies, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open postgres pool: %w", err)
	}

	gateway := voicedb.NewPostgresGateway(pool)
	if err := gateway.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: migrate: %w", err)
	}

	logger.Info("postgres pool initialized and schema migrated")

	return &Dependencies{Pool: pool, Gateway: gateway}, nil
}

// StorageConfig selects and configures one of the three storage.Backend
// implementations.
type StorageConfig struct {
	UseLocal bool
	LocalDir string

	// HTTP backend (used when not local and S3 is not configured).
	HTTPBaseURL string

	// S3 backend, used when Bucket is non-empty.
	S3 storage.S3Config
}

// NewStorageBackend picks LocalBackend, S3Backend, or HTTPBackend from cfg,
// mirroring the teacher's initStorage branch-on-config shape.
func NewStorageBackend(ctx context.Context, cfg StorageConfig, logger *slog.Logger) (storage.Backend, error) {
	if cfg.UseLocal {
		backend, err := storage.NewLocalBackend(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: create local storage: %w", err)
		}
		logger.Info("local storage backend configured", slog.String("base_dir", cfg.LocalDir))
		return backend, nil
	}

	if cfg.S3.Bucket != "" {
		backend, err := storage.NewS3Backend(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: create S3 storage: %w", err)
		}
		logger.Info("S3 storage backend configured",
			slog.String("bucket", cfg.S3.Bucket),
			slog.String("region", cfg.S3.Region),
		)
		return backend, nil
	}

	backend, err := storage.NewHTTPBackend(cfg.HTTPBaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create HTTP storage: %w", err)
	}
	logger.Info("HTTP storage backend configured", slog.String("base_url", cfg.HTTPBaseURL))
	return backend, nil
}
