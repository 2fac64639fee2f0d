// Package sticker resolves emoji keys against the configured sticker sets.
package sticker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/user/ohime/internal/types"
)

// Fetcher loads one sticker set by name from the chat platform.
type Fetcher interface {
	StickerSet(ctx context.Context, name string) (*types.StickerSet, error)
}

// Resolver caches the configured sticker sets and maps emoji to stickers.
type Resolver struct {
	fetcher Fetcher
	names   []string
	intn    func(n int) int

	mu     sync.RWMutex
	sets   []types.StickerSet
	loaded bool
}

// NewResolver creates a Resolver over the named sets.
func NewResolver(fetcher Fetcher, names []string) *Resolver {
	return &Resolver{fetcher: fetcher, names: names, intn: rand.IntN}
}

// Refresh reloads every configured set. The cache is replaced only when all
// sets load.
func (r *Resolver) Refresh(ctx context.Context) error {
	sets := make([]types.StickerSet, 0, len(r.names))
	for _, name := range r.names {
		set, err := r.fetcher.StickerSet(ctx, name)
		if err != nil {
			return fmt.Errorf("load sticker set %q: %w", name, err)
		}
		sets = append(sets, *set)
	}
	r.mu.Lock()
	r.sets = sets
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// Sets returns the cached sets, loading them on first use.
func (r *Resolver) Sets(ctx context.Context) ([]types.StickerSet, error) {
	r.mu.RLock()
	sets, loaded := r.sets, r.loaded
	r.mu.RUnlock()
	if loaded {
		return sets, nil
	}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sets, nil
}

// Resolve returns the file id of a sticker whose emoji equals emoji, picked
// uniformly among all matches across every set. ok is false when nothing
// matches.
func (r *Resolver) Resolve(ctx context.Context, emoji string) (fileID string, ok bool, err error) {
	sets, err := r.Sets(ctx)
	if err != nil {
		return "", false, err
	}
	var matches []string
	for _, set := range sets {
		for _, s := range set.Stickers {
			if s.Emoji == emoji {
				matches = append(matches, s.FileID)
			}
		}
	}
	if len(matches) == 0 {
		return "", false, nil
	}
	return matches[r.intn(len(matches))], true, nil
}
