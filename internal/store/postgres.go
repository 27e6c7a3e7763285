package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/family-session/internal/config"
)

const credentialSchema = `
CREATE TABLE IF NOT EXISTS credentials (
    kind TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists credentials in a single-row-per-kind table. Meant
// for server-side deployments of the engine where a shared durable store is
// already available.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore establishes a connection pool and ensures the schema.
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("POSTGRES_DSN required for the postgres store backend")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, credentialSchema); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres")
	return &PostgresStore{pool: pool}, nil
}

// Close releases pool resources.
func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Save upserts the value for the kind.
func (s *PostgresStore) Save(ctx context.Context, kind Kind, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials (kind, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (kind) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		string(kind), value)
	return err
}

// Load returns the stored value and whether it was present.
func (s *PostgresStore) Load(ctx context.Context, kind Kind) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM credentials WHERE kind = $1`, string(kind)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Clear removes the given kinds in one statement.
func (s *PostgresStore) Clear(ctx context.Context, kinds ...Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, string(kind))
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE kind = ANY($1)`, names)
	return err
}

// ClearAll removes every enumerated kind in one statement.
func (s *PostgresStore) ClearAll(ctx context.Context) error {
	return s.Clear(ctx, AllKinds()...)
}
