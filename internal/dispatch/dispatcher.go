// Package dispatch delivers a parsed model reply to the chat.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/ohime/internal/completion"
	"github.com/user/ohime/internal/plugin"
	"github.com/user/ohime/internal/types"
)

// Sender is the outbound surface the dispatcher needs.
type Sender interface {
	SendMessage(ctx context.Context, msg types.OutboundText) (*types.SentMessage, error)
	SendSticker(ctx context.Context, msg types.OutboundMedia) error
	SendAnimation(ctx context.Context, msg types.OutboundMedia) error
	// SendJSON sends raw as a formatted code block.
	SendJSON(ctx context.Context, msg types.OutboundText) error
}

// StickerResolver maps an emoji key to a sticker file id.
type StickerResolver interface {
	Resolve(ctx context.Context, emoji string) (fileID string, ok bool, err error)
}

// GifLookup finds a stored gif by id; nil means unknown.
type GifLookup interface {
	Get(ctx context.Context, id string) (*types.Gif, error)
}

// PostProcessor runs the plugin chain over text the bot just sent.
type PostProcessor interface {
	Run(ctx context.Context, inv plugin.Invocation) (matched bool, err error)
}

// Options address one delivery.
type Options struct {
	ChatID               types.ChatID
	ReplyTo              int
	BusinessConnectionID string
	RawFallback          bool
	PostProcessing       bool
}

// Dispatcher sends the text, sticker and gif parts of a reply.
type Dispatcher struct {
	sender   Sender
	stickers StickerResolver
	gifs     GifLookup
	post     PostProcessor
	logger   *slog.Logger
}

// New creates a Dispatcher. post may be nil to disable post-processing.
func New(sender Sender, stickers StickerResolver, gifs GifLookup, post PostProcessor, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: sender, stickers: stickers, gifs: gifs, post: post, logger: logger}
}

// Send delivers resp. An invalid reply is shown as raw JSON only with
// RawFallback. Every present part of a valid reply is attempted even if an
// earlier one fails; the failures are returned joined.
func (d *Dispatcher) Send(ctx context.Context, resp completion.Response, opts Options) error {
	if !resp.Valid {
		if !opts.RawFallback {
			return nil
		}
		return d.sender.SendJSON(ctx, types.OutboundText{
			ChatID:               opts.ChatID,
			BusinessConnectionID: opts.BusinessConnectionID,
			ReplyTo:              opts.ReplyTo,
			Text:                 resp.Raw,
		})
	}

	var errs []error
	if resp.Text != "" {
		if err := d.sendText(ctx, resp.Text, opts); err != nil {
			errs = append(errs, err)
		}
	}
	if resp.Sticker != "" {
		if err := d.sendSticker(ctx, resp.Sticker, opts); err != nil {
			errs = append(errs, err)
		}
	}
	if resp.GIF != "" {
		if err := d.sendGif(ctx, resp.GIF, opts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) sendText(ctx context.Context, text string, opts Options) error {
	sent, err := d.sender.SendMessage(ctx, types.OutboundText{
		ChatID:               opts.ChatID,
		BusinessConnectionID: opts.BusinessConnectionID,
		ReplyTo:              opts.ReplyTo,
		Text:                 text,
	})
	if err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	if !opts.PostProcessing || d.post == nil {
		return nil
	}
	if sent == nil || sent.Text == "" {
		return errors.New("post-process: sent message has no text")
	}

	// Plugins act on behalf of the message just sent, so they thread their
	// output under it.
	matched, err := d.post.Run(ctx, plugin.Invocation{
		Text:                 sent.Text,
		ChatID:               opts.ChatID,
		MessageID:            sent.MessageID,
		ReplyToID:            sent.MessageID,
		BusinessConnectionID: opts.BusinessConnectionID,
		InitiatorID:          sent.FromID,
		InitiatorName:        sent.FromUsername,
	})
	if err != nil {
		return fmt.Errorf("post-process: %w", err)
	}
	if matched {
		d.logger.Debug("post-processing plugin ran", "chat_id", opts.ChatID, "message_id", sent.MessageID)
	}
	return nil
}

func (d *Dispatcher) sendSticker(ctx context.Context, emoji string, opts Options) error {
	fileID, ok, err := d.stickers.Resolve(ctx, emoji)
	if err != nil {
		d.logger.Warn("sticker lookup failed, sending emoji", "chat_id", opts.ChatID, "error", err)
	}
	if ok {
		if err := d.sender.SendSticker(ctx, types.OutboundMedia{
			ChatID:               opts.ChatID,
			BusinessConnectionID: opts.BusinessConnectionID,
			Media:                fileID,
		}); err != nil {
			return fmt.Errorf("send sticker: %w", err)
		}
		return nil
	}
	if _, err := d.sender.SendMessage(ctx, types.OutboundText{
		ChatID:               opts.ChatID,
		BusinessConnectionID: opts.BusinessConnectionID,
		Text:                 emoji,
	}); err != nil {
		return fmt.Errorf("send sticker emoji: %w", err)
	}
	return nil
}

func (d *Dispatcher) sendGif(ctx context.Context, id string, opts Options) error {
	gif, err := d.gifs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("look up gif %s: %w", id, err)
	}
	if gif == nil {
		d.logger.Debug("gif not found, skipping", "chat_id", opts.ChatID, "gif", id)
		return nil
	}
	if err := d.sender.SendAnimation(ctx, types.OutboundMedia{
		ChatID:               opts.ChatID,
		BusinessConnectionID: opts.BusinessConnectionID,
		Media:                gif.FileID,
	}); err != nil {
		return fmt.Errorf("send gif: %w", err)
	}
	return nil
}
