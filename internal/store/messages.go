package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/Vovarama1992/rental-intake-bot/internal/intake"
)

func (s *Store) AppendMessage(ctx context.Context, msg intake.MessageLog) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO messages (client_id, sender, content, created_at_ms)
		VALUES (?, ?, ?, ?)
	`),
		msg.ClientID,
		string(msg.Sender),
		msg.Content,
		msg.Timestamp.UnixMilli(),
	)
	return errors.Wrapf(err, "store: append message for %s", msg.ClientID)
}

// ListMessages returns up to limit latest messages at or after since, oldest
// first. limit <= 0 means no limit.
func (s *Store) ListMessages(ctx context.Context, clientID string, since time.Time, limit int) ([]intake.MessageLog, error) {
	query := `
		SELECT id, client_id, sender, content, created_at_ms
		FROM messages
		WHERE client_id = ? AND created_at_ms >= ?
		ORDER BY id DESC`
	args := []any{clientID, since.UnixMilli()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "store: list messages of %s", clientID)
	}
	defer rows.Close()

	var out []intake.MessageLog
	for rows.Next() {
		var (
			m      intake.MessageLog
			sender string
			ts     int64
		)
		if err := rows.Scan(&m.ID, &m.ClientID, &sender, &m.Content, &ts); err != nil {
			return nil, errors.Wrapf(err, "store: list messages of %s", clientID)
		}
		m.Sender = intake.Sender(sender)
		m.Timestamp = time.UnixMilli(ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "store: list messages of %s", clientID)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM messages WHERE sender = 'client'`)
}
