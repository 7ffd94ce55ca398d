package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool the Postgres store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	createArtifactTable = `CREATE TABLE IF NOT EXISTS artifact_cache (
	key TEXT PRIMARY KEY,
	artifact BYTEA NOT NULL,
	stored_at TIMESTAMPTZ NOT NULL
)`
	// An existing row is only replaced once it is older than the ttl cutoff
	// ($4); a NULL cutoff keeps the first write forever.
	insertArtifact = `INSERT INTO artifact_cache (key, artifact, stored_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET artifact = EXCLUDED.artifact, stored_at = EXCLUDED.stored_at
WHERE artifact_cache.stored_at <= $4::timestamptz`
	selectArtifact = `SELECT artifact, stored_at FROM artifact_cache WHERE key = $1 AND ($2::timestamptz IS NULL OR stored_at > $2)`
	deleteArtifact = `DELETE FROM artifact_cache WHERE key = $1`
)

// Postgres keeps entries in the artifact_cache table. A positive ttl hides
// rows older than ttl from reads and lets the next Set replace them.
type Postgres struct {
	db  Querier
	ttl time.Duration
}

func NewPostgres(db Querier, ttl time.Duration) *Postgres {
	return &Postgres{db: db, ttl: ttl}
}

// EnsureSchema creates the table when it is missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createArtifactTable); err != nil {
		return fmt.Errorf("cache: create table: %w", err)
	}
	return nil
}

func (p *Postgres) cutoff() *time.Time {
	if p.ttl <= 0 {
		return nil
	}
	c := now().UTC().Add(-p.ttl)
	return &c
}

func (p *Postgres) Get(ctx context.Context, key string) (*Entry, bool, error) {
	e := Entry{Key: key}
	err := p.db.QueryRow(ctx, selectArtifact, key, p.cutoff()).Scan(&e.Artifact, &e.StoredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: select entry: %w", err)
	}
	return &e, true, nil
}

func (p *Postgres) Set(ctx context.Context, key string, artifact []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	e := newEntry(key, artifact)
	if _, err := p.db.Exec(ctx, insertArtifact, e.Key, e.Artifact, e.StoredAt, p.cutoff()); err != nil {
		return fmt.Errorf("cache: insert entry: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.db.Exec(ctx, deleteArtifact, key); err != nil {
		return fmt.Errorf("cache: delete entry: %w", err)
	}
	return nil
}
