// internal/state/thread.go
package state

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/user/ohime/internal/types"
	"github.com/user/ohime/pkg/llm"
)

// ThreadStore is the append-only per-chat message log.
type ThreadStore struct {
	d *DB
}

// Append inserts one turn stamped with the current time. The stamp never goes
// backwards within a chat even if the wall clock does.
func (s *ThreadStore) Append(ctx context.Context, chatID types.ChatID, role, content string) error {
	now := s.d.now().UnixMilli()
	_, err := s.d.db.ExecContext(ctx, `
		INSERT INTO threads (chat_id, role, content, created_at_ms)
		SELECT ?, ?, ?, MAX(?, COALESCE((SELECT MAX(created_at_ms) FROM threads WHERE chat_id = ?), 0))`,
		int64(chatID), role, content, now, int64(chatID))
	if err != nil {
		return errors.Wrapf(err, "append thread message for chat %d", chatID)
	}
	return nil
}

// Thread returns every turn of the chat, oldest first.
func (s *ThreadStore) Thread(ctx context.Context, chatID types.ChatID) ([]llm.Message, error) {
	rows, err := s.d.db.QueryContext(ctx,
		`SELECT role, content FROM threads WHERE chat_id = ? ORDER BY id ASC`, int64(chatID))
	if err != nil {
		return nil, errors.Wrapf(err, "query thread for chat %d", chatID)
	}
	defer rows.Close()

	var out []llm.Message
	for rows.Next() {
		var m llm.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, errors.Wrap(err, "scan thread row")
		}
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "iterate thread rows")
}

// Messages returns the chat's turns with their timestamps, oldest first.
func (s *ThreadStore) Messages(ctx context.Context, chatID types.ChatID) ([]types.ThreadMessage, error) {
	rows, err := s.d.db.QueryContext(ctx,
		`SELECT role, content, created_at_ms FROM threads WHERE chat_id = ? ORDER BY id ASC`, int64(chatID))
	if err != nil {
		return nil, errors.Wrapf(err, "query thread for chat %d", chatID)
	}
	defer rows.Close()

	var out []types.ThreadMessage
	for rows.Next() {
		var (
			m  types.ThreadMessage
			ms int64
		)
		if err := rows.Scan(&m.Role, &m.Content, &ms); err != nil {
			return nil, errors.Wrap(err, "scan thread row")
		}
		m.ChatID = chatID
		m.CreatedAt = time.UnixMilli(ms)
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "iterate thread rows")
}

// IsActive reports whether the chat has a message newer than now-staleness.
// A message stamped exactly at the cutoff does not count.
func (s *ThreadStore) IsActive(ctx context.Context, chatID types.ChatID, staleness time.Duration) (bool, error) {
	cutoff := s.d.now().Add(-staleness).UnixMilli()
	var n int
	err := s.d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM threads WHERE chat_id = ? AND created_at_ms > ?`, int64(chatID), cutoff).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "check activity for chat %d", chatID)
	}
	return n > 0, nil
}

// Clear deletes every turn of the chat.
func (s *ThreadStore) Clear(ctx context.Context, chatID types.ChatID) error {
	if _, err := s.d.db.ExecContext(ctx, `DELETE FROM threads WHERE chat_id = ?`, int64(chatID)); err != nil {
		return errors.Wrapf(err, "clear thread for chat %d", chatID)
	}
	return nil
}

// Count returns the number of turns stored for the chat.
func (s *ThreadStore) Count(ctx context.Context, chatID types.ChatID) (int64, error) {
	var n int64
	err := s.d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads WHERE chat_id = ?`, int64(chatID)).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(err, "count thread for chat %d", chatID)
	}
	return n, nil
}
