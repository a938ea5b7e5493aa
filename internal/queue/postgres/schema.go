package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const schemaVersion = 1

// ErrSchemaMismatch reports a database created by an incompatible release.
var ErrSchemaMismatch = errors.New("postgres schema version mismatch")

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
        version INTEGER NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS meetings (
        id BIGSERIAL PRIMARY KEY,
        name TEXT NOT NULL,
        platform TEXT NOT NULL,
        url TEXT,
        platform_id TEXT,
        password TEXT,
        owner_id UUID NOT NULL,
        status TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL,
        start_date TIMESTAMPTZ,
        end_date TIMESTAMPTZ,
        transcription_filename TEXT,
        report_filename TEXT,
        last_heartbeat TIMESTAMPTZ,
        CHECK (url IS NULL OR (platform_id IS NULL AND password IS NULL))
    )`,
	`CREATE INDEX IF NOT EXISTS idx_meetings_status_id ON meetings(status, id)`,
	`CREATE TABLE IF NOT EXISTS transition_records (
        id BIGSERIAL PRIMARY KEY,
        meeting_id BIGINT NOT NULL REFERENCES meetings(id),
        status TEXT NOT NULL,
        event TEXT NOT NULL,
        actor TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL,
        predicted_next_at TIMESTAMPTZ
    )`,
	`CREATE INDEX IF NOT EXISTS idx_transition_records_meeting ON transition_records(meeting_id, id)`,
	`CREATE OR REPLACE FUNCTION transition_records_append_only() RETURNS trigger AS $$
    BEGIN
        RAISE EXCEPTION 'transition_records is append-only';
    END;
    $$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS transition_records_no_update ON transition_records`,
	`CREATE TRIGGER transition_records_no_update
        BEFORE UPDATE OR DELETE ON transition_records
        FOR EACH ROW EXECUTE FUNCTION transition_records_append_only()`,
}

func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize schema setup between hosts starting at the same time.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('meetingflow_schema'))`); err != nil {
		return fmt.Errorf("lock schema: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	var version int
	err = tx.QueryRow(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: database has %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return tx.Commit(ctx)
}
