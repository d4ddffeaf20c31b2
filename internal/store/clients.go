package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/Vovarama1992/rental-intake-bot/internal/intake"
)

const clientColumns = `client_id, raw_transcript, is_complete, message_count, extracted_data, created_at_ms, updated_at_ms, completed_at_ms`

func (s *Store) LoadClient(ctx context.Context, clientID string) (intake.ClientRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+clientColumns+`
		FROM clients
		WHERE client_id = ?
	`), clientID)

	rec, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return intake.ClientRecord{}, false, nil
	}
	if err != nil {
		return intake.ClientRecord{}, false, errors.Wrapf(err, "store: load client %s", clientID)
	}
	return rec, true, nil
}

// SaveClient upserts the whole record in one statement.
func (s *Store) SaveClient(ctx context.Context, rec intake.ClientRecord) error {
	data, err := encodeData(rec.ExtractedData)
	if err != nil {
		return errors.Wrapf(err, "store: encode extracted data for %s", rec.ClientID)
	}

	var completedAt sql.NullInt64
	if rec.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: rec.CompletedAt.UnixMilli(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id) DO UPDATE SET
			raw_transcript = excluded.raw_transcript,
			is_complete = excluded.is_complete,
			message_count = excluded.message_count,
			extracted_data = excluded.extracted_data,
			created_at_ms = excluded.created_at_ms,
			updated_at_ms = excluded.updated_at_ms,
			completed_at_ms = excluded.completed_at_ms
	`),
		rec.ClientID,
		rec.RawTranscript,
		boolToInt(rec.IsComplete),
		rec.MessageCount,
		data,
		rec.CreatedAt.UnixMilli(),
		rec.UpdatedAt.UnixMilli(),
		completedAt,
	)
	return errors.Wrapf(err, "store: save client %s", rec.ClientID)
}

func (s *Store) ListClientIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT client_id FROM clients ORDER BY client_id`)
	if err != nil {
		return nil, errors.Wrap(err, "store: list clients")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "store: list clients")
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "store: list clients")
}

func (s *Store) CountAll(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM clients`)
}

func (s *Store) CountCompleted(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM clients WHERE is_complete = 1`)
}

func (s *Store) count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "store: count")
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (intake.ClientRecord, error) {
	var (
		rec         intake.ClientRecord
		isComplete  int64
		data        sql.NullString
		createdAt   int64
		updatedAt   int64
		completedAt sql.NullInt64
	)
	if err := row.Scan(
		&rec.ClientID,
		&rec.RawTranscript,
		&isComplete,
		&rec.MessageCount,
		&data,
		&createdAt,
		&updatedAt,
		&completedAt,
	); err != nil {
		return intake.ClientRecord{}, err
	}

	rec.IsComplete = isComplete != 0
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64)
		rec.CompletedAt = &t
	}
	if data.Valid {
		m, err := decodeData(data.String)
		if err != nil {
			return intake.ClientRecord{}, errors.Wrapf(err, "decode extracted data of %s", rec.ClientID)
		}
		rec.ExtractedData = m
	}
	return rec, nil
}

// encodeData keeps the nil / empty distinction: nil is NULL, empty is "{}".
func encodeData(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeData(s string) (map[string]any, error) {
	out := map[string]any{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
