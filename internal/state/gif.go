// internal/state/gif.go
package state

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/user/ohime/internal/types"
)

// GifStore is the catalogue of animations the model may reference by id.
type GifStore struct {
	d *DB
}

// Get looks a gif up by its decimal id. It returns nil, nil when the id is
// malformed or unknown.
func (s *GifStore) Get(ctx context.Context, id string) (*types.Gif, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return nil, nil
	}
	g := &types.Gif{}
	err = s.d.db.QueryRowContext(ctx,
		`SELECT id, file_id, description FROM gifs WHERE id = ?`, n).Scan(&g.ID, &g.FileID, &g.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get gif %d", n)
	}
	return g, nil
}

// Add stores a gif. Adding a known file id updates its description.
func (s *GifStore) Add(ctx context.Context, fileID, description string) (*types.Gif, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, errors.New("add gif: empty file id")
	}
	_, err := s.d.db.ExecContext(ctx, `
		INSERT INTO gifs (file_id, description) VALUES (?, ?)
		ON CONFLICT(file_id) DO UPDATE SET description = excluded.description`,
		fileID, description)
	if err != nil {
		return nil, errors.Wrap(err, "add gif")
	}
	g := &types.Gif{}
	err = s.d.db.QueryRowContext(ctx,
		`SELECT id, file_id, description FROM gifs WHERE file_id = ?`, fileID).Scan(&g.ID, &g.FileID, &g.Description)
	if err != nil {
		return nil, errors.Wrap(err, "reload gif")
	}
	return g, nil
}

// List returns all gifs ordered by id.
func (s *GifStore) List(ctx context.Context) ([]*types.Gif, error) {
	rows, err := s.d.db.QueryContext(ctx, `SELECT id, file_id, description FROM gifs ORDER BY id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "query gifs")
	}
	defer rows.Close()

	var out []*types.Gif
	for rows.Next() {
		g := &types.Gif{}
		if err := rows.Scan(&g.ID, &g.FileID, &g.Description); err != nil {
			return nil, errors.Wrap(err, "scan gif row")
		}
		out = append(out, g)
	}
	return out, errors.Wrap(rows.Err(), "iterate gif rows")
}
