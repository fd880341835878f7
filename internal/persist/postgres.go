package persist

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-catalog/db"
)

var _ Medium = (*PostgresMedium)(nil)

// NewPool creates a pgxpool.Pool for databaseURL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}
	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

// PostgresMedium stores values in the catalog_state table.
type PostgresMedium struct {
	pool *pgxpool.Pool
	// owned pools are closed by Close.
	owned bool
}

// NewPostgresMedium uses an existing pool. The caller keeps ownership of it
// and must have run RunMigrations.
func NewPostgresMedium(pool *pgxpool.Pool) *PostgresMedium {
	return &PostgresMedium{pool: pool}
}

// OpenPostgres connects to databaseURL and applies the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresMedium, error) {
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresMedium{pool: pool, owned: true}, nil
}

const (
	selectStateSQL = `SELECT value::text FROM catalog_state WHERE key = $1`
	upsertStateSQL = `INSERT INTO catalog_state (key, value, updated_at)
VALUES ($1, $2::json, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
)

func (m *PostgresMedium) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	if err := m.pool.QueryRow(ctx, selectStateSQL, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoState
		}
		return nil, errors.Wrapf(err, "select %q", key)
	}
	return []byte(value), nil
}

func (m *PostgresMedium) Put(ctx context.Context, key string, value []byte) error {
	if _, err := m.pool.Exec(ctx, upsertStateSQL, key, string(value)); err != nil {
		return errors.Wrapf(err, "upsert %q", key)
	}
	return nil
}

func (m *PostgresMedium) Ping(ctx context.Context) error {
	return m.pool.Ping(ctx)
}

func (m *PostgresMedium) Close() error {
	if m.owned {
		m.pool.Close()
	}
	return nil
}
