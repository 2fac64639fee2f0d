// internal/state/conversation.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/user/ohime/internal/types"
)

// ConversationStore persists one ConversationState and at most one alarm per chat.
type ConversationStore struct {
	d *DB
}

// SaveState replaces the chat's state.
func (s *ConversationStore) SaveState(ctx context.Context, st *types.ConversationState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "marshal conversation state")
	}
	_, err = s.d.db.ExecContext(ctx, `
		INSERT INTO conversations (chat_id, state_json, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET state_json = excluded.state_json, updated_at_ms = excluded.updated_at_ms`,
		int64(st.ChatID), string(data), s.d.now().UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "save state for chat %d", st.ChatID)
	}
	return nil
}

// LoadState returns the chat's state, or nil, nil if none is stored.
func (s *ConversationStore) LoadState(ctx context.Context, chatID types.ChatID) (*types.ConversationState, error) {
	var data string
	err := s.d.db.QueryRowContext(ctx,
		`SELECT state_json FROM conversations WHERE chat_id = ?`, int64(chatID)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load state for chat %d", chatID)
	}
	var st types.ConversationState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, errors.Wrapf(err, "decode state for chat %d", chatID)
	}
	return &st, nil
}

// DeleteState removes the chat's state.
func (s *ConversationStore) DeleteState(ctx context.Context, chatID types.ChatID) error {
	if _, err := s.d.db.ExecContext(ctx, `DELETE FROM conversations WHERE chat_id = ?`, int64(chatID)); err != nil {
		return errors.Wrapf(err, "delete state for chat %d", chatID)
	}
	return nil
}

// SetAlarm records the chat's pending alarm, replacing any previous one.
func (s *ConversationStore) SetAlarm(ctx context.Context, chatID types.ChatID, due time.Time) error {
	_, err := s.d.db.ExecContext(ctx, `
		INSERT INTO alarms (chat_id, due_ms) VALUES (?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET due_ms = excluded.due_ms`,
		int64(chatID), due.UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "set alarm for chat %d", chatID)
	}
	return nil
}

// GetAlarm returns the chat's pending alarm, if any.
func (s *ConversationStore) GetAlarm(ctx context.Context, chatID types.ChatID) (time.Time, bool, error) {
	var ms int64
	err := s.d.db.QueryRowContext(ctx, `SELECT due_ms FROM alarms WHERE chat_id = ?`, int64(chatID)).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "get alarm for chat %d", chatID)
	}
	return time.UnixMilli(ms), true, nil
}

// DeleteAlarm clears the chat's pending alarm.
func (s *ConversationStore) DeleteAlarm(ctx context.Context, chatID types.ChatID) error {
	if _, err := s.d.db.ExecContext(ctx, `DELETE FROM alarms WHERE chat_id = ?`, int64(chatID)); err != nil {
		return errors.Wrapf(err, "delete alarm for chat %d", chatID)
	}
	return nil
}

// ClaimAlarm deletes the chat's alarm, reporting whether one was there.
func (s *ConversationStore) ClaimAlarm(ctx context.Context, chatID types.ChatID) (bool, error) {
	res, err := s.d.db.ExecContext(ctx, `DELETE FROM alarms WHERE chat_id = ?`, int64(chatID))
	if err != nil {
		return false, errors.Wrapf(err, "claim alarm for chat %d", chatID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "claim alarm for chat %d", chatID)
	}
	return n > 0, nil
}

// PendingAlarms lists every stored alarm, earliest first.
func (s *ConversationStore) PendingAlarms(ctx context.Context) ([]types.Alarm, error) {
	rows, err := s.d.db.QueryContext(ctx, `SELECT chat_id, due_ms FROM alarms ORDER BY due_ms ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "query alarms")
	}
	defer rows.Close()

	var out []types.Alarm
	for rows.Next() {
		var chatID, ms int64
		if err := rows.Scan(&chatID, &ms); err != nil {
			return nil, errors.Wrap(err, "scan alarm row")
		}
		out = append(out, types.Alarm{ChatID: types.ChatID(chatID), Due: time.UnixMilli(ms)})
	}
	return out, errors.Wrap(rows.Err(), "iterate alarm rows")
}
