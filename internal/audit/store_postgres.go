package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists audit entries in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Schema creates the audit table. Applied at startup; idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id         UUID PRIMARY KEY,
	ts         TIMESTAMPTZ NOT NULL,
	action     TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	uid        TEXT NOT NULL DEFAULT '',
	tenant     TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_entries_email_idx ON audit_entries (email);
CREATE INDEX IF NOT EXISTS audit_entries_ts_idx ON audit_entries (ts);
`

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Record(ctx context.Context, entry Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_entries (id, ts, action, email, uid, tenant, request_id, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.Timestamp, entry.Action, entry.Email, entry.UID, entry.Tenant, entry.RequestID, entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// FindByEmail returns entries for an email, newest first.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ts, action, email, uid, tenant, request_id, detail
		 FROM audit_entries WHERE email = $1 ORDER BY ts DESC LIMIT $2`,
		email, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Action, &e.Email, &e.UID, &e.Tenant, &e.RequestID, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
