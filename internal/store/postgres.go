package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/admission/internal/ratelimit"
)

const rateLimitSchema = `
	CREATE TABLE IF NOT EXISTS rate_limit_records (
		key        TEXT PRIMARY KEY,
		record     JSONB NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS rate_limit_records_expires_at_idx ON rate_limit_records (expires_at);
`

// PostgresStore is a PostgreSQL implementation of ratelimit.Store.
// Each update runs in a transaction holding a per-key advisory lock.
// Expired rows read as absent until Sweep deletes them.
type PostgresStore struct {
	pool          *pgxpool.Pool
	clock         func() time.Time
	maxLogEntries int
}

// NewPostgresStore creates a new PostgreSQL-backed rate limit store.
func NewPostgresStore(pool *pgxpool.Pool, maxLogEntries int) *PostgresStore {
	return &PostgresStore{
		pool:          pool,
		clock:         time.Now,
		maxLogEntries: maxLogEntries,
	}
}

// EnsureSchema creates the records table when missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, rateLimitSchema)

	return err
}

func (p *PostgresStore) Get(ctx context.Context, key string) (ratelimit.Record, error) {
	query := `
		SELECT record
		FROM rate_limit_records
		WHERE key = $1 AND expires_at > $2
	`

	var data []byte

	err := p.pool.QueryRow(ctx, query, key, p.clock()).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ratelimit.ErrNotFound
		}

		return nil, err
	}

	return ratelimit.UnmarshalRecord(data)
}

func (p *PostgresStore) Update(
	ctx context.Context, key string, ttl time.Duration, fn ratelimit.Transition,
) (ratelimit.Record, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	// The advisory lock also covers keys that have no row yet.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}

	now := p.clock()

	prev, err := p.lockedRecord(ctx, tx, key, now)
	if err != nil {
		return nil, err
	}

	next, err := fn(prev)
	if err != nil {
		return nil, err
	}

	next = ratelimit.BoundLog(next, p.maxLogEntries)

	data, err := ratelimit.MarshalRecord(next)
	if err != nil {
		return nil, err
	}

	upsert := `
		INSERT INTO rate_limit_records (key, record, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET record = EXCLUDED.record, expires_at = EXCLUDED.expires_at
	`

	if _, err := tx.Exec(ctx, upsert, key, data, now.Add(ttl)); err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return next, nil
}

func (p *PostgresStore) lockedRecord(
	ctx context.Context, tx pgx.Tx, key string, now time.Time,
) (ratelimit.Record, error) {
	var (
		data      []byte
		expiresAt time.Time
	)

	err := tx.QueryRow(ctx, `SELECT record, expires_at FROM rate_limit_records WHERE key = $1`, key).
		Scan(&data, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("select: %w", err)
	}

	if !expiresAt.After(now) {
		return nil, nil
	}

	return ratelimit.UnmarshalRecord(data)
}

// Sweep deletes expired rows and returns how many were deleted.
func (p *PostgresStore) Sweep(ctx context.Context) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM rate_limit_records WHERE expires_at <= $1`, p.clock())
	if err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}

// Ping checks PostgreSQL connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Shutdown is a no-op for PostgresStore (pool managed externally).
func (p *PostgresStore) Shutdown() error {
	return nil
}

// Compile-time check.
var _ ratelimit.Store = (*PostgresStore)(nil)
