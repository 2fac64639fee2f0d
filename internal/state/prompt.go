// internal/state/prompt.go
package state

import (
	"context"

	"github.com/pkg/errors"

	"github.com/user/ohime/pkg/llm"
)

// PromptStore holds operator-configured prompt entries keyed by id. Entries
// keep their insertion position across updates.
type PromptStore struct {
	d *DB
}

// Upsert creates or replaces the entry with the given id.
func (s *PromptStore) Upsert(ctx context.Context, id, role, content string) error {
	_, err := s.d.db.ExecContext(ctx, `
		INSERT INTO prompts (id, role, content) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET role = excluded.role, content = excluded.content`,
		id, role, content)
	if err != nil {
		return errors.Wrapf(err, "upsert prompt %q", id)
	}
	return nil
}

// Delete removes the entry with the given id.
func (s *PromptStore) Delete(ctx context.Context, id string) error {
	res, err := s.d.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete prompt %q", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "prompt %q", id)
	}
	return nil
}

// List returns all entries in insertion order.
func (s *PromptStore) List(ctx context.Context) ([]llm.Message, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out, nil
}

// PromptEntry is a stored prompt row.
type PromptEntry struct {
	ID string `json:"id"`
	llm.Message
}

// Entries returns all rows with their ids in insertion order.
func (s *PromptStore) Entries(ctx context.Context) ([]PromptEntry, error) {
	rows, err := s.d.db.QueryContext(ctx, `SELECT id, role, content FROM prompts ORDER BY rowid ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "query prompts")
	}
	defer rows.Close()

	var out []PromptEntry
	for rows.Next() {
		var e PromptEntry
		if err := rows.Scan(&e.ID, &e.Role, &e.Content); err != nil {
			return nil, errors.Wrap(err, "scan prompt row")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate prompt rows")
}
