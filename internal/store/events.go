package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/Vovarama1992/rental-intake-bot/internal/intake"
)

func (s *Store) RecordIntegrationEvent(ctx context.Context, ev intake.IntegrationEvent) (int64, error) {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, errors.Wrap(err, "store: encode event payload")
	}
	if ev.Status == "" {
		ev.Status = intake.EventPending
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	var id int64
	err = s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO integration_events (client_id, kind, payload, status, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`),
		ev.ClientID,
		ev.Kind,
		string(b),
		string(ev.Status),
		ev.CreatedAt.UnixMilli(),
		ev.CreatedAt.UnixMilli(),
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "store: record %s event for %s", ev.Kind, ev.ClientID)
	}
	return id, nil
}

// ListIntegrationEvents returns events of a client in insertion order; an
// empty kind matches every kind.
func (s *Store) ListIntegrationEvents(ctx context.Context, clientID, kind string) ([]intake.IntegrationEvent, error) {
	query := `
		SELECT id, client_id, kind, payload, status, created_at_ms
		FROM integration_events
		WHERE client_id = ?`
	args := []any{clientID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "store: list events of %s", clientID)
	}
	defer rows.Close()

	var out []intake.IntegrationEvent
	for rows.Next() {
		var (
			ev      intake.IntegrationEvent
			payload string
			status  string
			ts      int64
		)
		if err := rows.Scan(&ev.ID, &ev.ClientID, &ev.Kind, &payload, &status, &ts); err != nil {
			return nil, errors.Wrapf(err, "store: list events of %s", clientID)
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, errors.Wrapf(err, "store: decode payload of event %d", ev.ID)
		}
		ev.Status = intake.EventStatus(status)
		ev.CreatedAt = time.UnixMilli(ts)
		out = append(out, ev)
	}
	return out, errors.Wrapf(rows.Err(), "store: list events of %s", clientID)
}

func (s *Store) UpdateIntegrationEventStatus(ctx context.Context, id int64, status intake.EventStatus) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE integration_events SET status = ?, updated_at_ms = ? WHERE id = ?
	`), string(status), time.Now().UnixMilli(), id)
	if err != nil {
		return errors.Wrapf(err, "store: update event %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "store: update event %d", id)
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "event %d", id)
	}
	return nil
}
