package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps blobs in a single table. Put is one upsert
// statement, so a reader never sees a partial body.
type PostgresStore struct {
	db    Querier
	table string
}

var _ BlobStore = (*PostgresStore)(nil)

// NewPostgresStore uses table (created by EnsureSchema)
func NewPostgresStore(db Querier, table string) *PostgresStore {
	if table == "" {
		table = "dataset_blobs"
	}
	return &PostgresStore{db: db, table: table}
}

// Name returns the backend name
func (p *PostgresStore) Name() string { return "postgres" }

// EnsureSchema creates the blob table if needed
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			body       BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, pgx.Identifier{p.table}.Sanitize()))
	if err != nil {
		return fmt.Errorf("create %s: %w", p.table, err)
	}
	return nil
}

// Get reads the body stored at key
func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := p.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT body FROM %s WHERE key = $1`, pgx.Identifier{p.table}.Sanitize()),
		key,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return body, nil
}

// Put upserts the body at key
func (p *PostgresStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := p.db.Exec(ctx,
		fmt.Sprintf(`
			INSERT INTO %s (key, body, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`,
			pgx.Identifier{p.table}.Sanitize()),
		key, data,
	)
	if err != nil {
		return fmt.Errorf("postgres put %s: %w", key, err)
	}
	return nil
}
