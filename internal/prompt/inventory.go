package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/ohime/internal/types"
	"github.com/user/ohime/pkg/llm"
)

// Prompt store ids of the generated inventory entries.
const (
	StickersPromptID = "stickers"
	GifsPromptID     = "gifs"
)

// StickerPrompt renders the sticker inventory entry.
func StickerPrompt(sets []types.StickerSet) string {
	var b strings.Builder
	b.WriteString("Available stickers:")
	for _, set := range sets {
		emojis := make([]string, 0, len(set.Stickers))
		for _, s := range set.Stickers {
			emojis = append(emojis, s.Emoji)
		}
		fmt.Fprintf(&b, "\n%s (%s): %s", set.Title, set.Name, strings.Join(emojis, ","))
	}
	return b.String()
}

// GifPrompt renders the gif inventory entry.
func GifPrompt(gifs []*types.Gif) string {
	var b strings.Builder
	b.WriteString("Available gifs:")
	for _, g := range gifs {
		fmt.Fprintf(&b, "\n%d - %s", g.ID, g.Description)
	}
	return b.String()
}

// StickerSource lists the configured sticker sets.
type StickerSource interface {
	Sets(ctx context.Context) ([]types.StickerSet, error)
}

// Inventory keeps the sticker and gif inventory entries of the prompt store
// in sync with their sources.
type Inventory struct {
	prompts  types.PromptStore
	gifs     types.GifStore
	stickers StickerSource
}

// NewInventory returns an Inventory. stickers may be nil.
func NewInventory(prompts types.PromptStore, gifs types.GifStore, stickers StickerSource) *Inventory {
	return &Inventory{prompts: prompts, gifs: gifs, stickers: stickers}
}

// RefreshGifs rewrites the gif inventory entry.
func (i *Inventory) RefreshGifs(ctx context.Context) error {
	gifs, err := i.gifs.List(ctx)
	if err != nil {
		return fmt.Errorf("list gifs: %w", err)
	}
	return i.prompts.Upsert(ctx, GifsPromptID, llm.RoleSystem, GifPrompt(gifs))
}

// RefreshStickers rewrites the sticker inventory entry.
func (i *Inventory) RefreshStickers(ctx context.Context) error {
	if i.stickers == nil {
		return nil
	}
	sets, err := i.stickers.Sets(ctx)
	if err != nil {
		return fmt.Errorf("load sticker sets: %w", err)
	}
	return i.prompts.Upsert(ctx, StickersPromptID, llm.RoleSystem, StickerPrompt(sets))
}

// Refresh rewrites both inventory entries.
func (i *Inventory) Refresh(ctx context.Context) error {
	if err := i.RefreshStickers(ctx); err != nil {
		return err
	}
	return i.RefreshGifs(ctx)
}
