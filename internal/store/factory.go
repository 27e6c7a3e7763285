package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/family-session/internal/config"
)

// Open builds the credential store selected by configuration. The returned
// closer releases backend resources; it is a no-op for backends without any.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		return NewMemoryStore(), func() {}, nil
	case config.StoreBackendFile:
		fs, err := NewFileStore(cfg.Store.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	case config.StoreBackendRedis:
		rs := NewRedisStore(cfg.Redis, logger)
		return rs, rs.Close, nil
	case config.StoreBackendPostgres:
		ps, err := NewPostgresStore(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		return ps, ps.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}
