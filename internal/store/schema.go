package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

const idColumn = "{id}"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		client_id TEXT PRIMARY KEY,
		raw_transcript TEXT NOT NULL DEFAULT '',
		is_complete INTEGER NOT NULL DEFAULT 0,
		message_count INTEGER NOT NULL DEFAULT 0,
		extracted_data TEXT,
		created_at_ms BIGINT NOT NULL,
		updated_at_ms BIGINT NOT NULL,
		completed_at_ms BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		{id},
		client_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at_ms BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_by_client ON messages(client_id, id)`,
	`CREATE TABLE IF NOT EXISTS integration_events (
		{id},
		client_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		created_at_ms BIGINT NOT NULL,
		updated_at_ms BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS integration_events_by_client ON integration_events(client_id, kind)`,
}

// Migrate creates missing tables and indexes. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	id := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == Postgres {
		id = "id BIGSERIAL PRIMARY KEY"
	}
	for _, st := range schema {
		if _, err := s.db.ExecContext(ctx, strings.Replace(st, idColumn, id, 1)); err != nil {
			return errors.Wrap(err, "store: migrate")
		}
	}
	return nil
}
