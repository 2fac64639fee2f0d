package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/ohime/internal/metrics"
	"github.com/user/ohime/internal/plugin"
	"github.com/user/ohime/internal/types"
)

const (
	storeGifCommand = "/storegif"
	pollTimeout     = 30
)

// Handler receives routed conversation work. The gateway implements it.
type Handler interface {
	Reply(p *types.ReplyPayload) error
	ReplyWithDelay(p *types.ReplyPayload) error
	Reset(chatID types.ChatID, messageID int) error
}

// Messenger is the outbound surface commands reply through.
type Messenger interface {
	SendMessage(ctx context.Context, msg types.OutboundText) (*types.SentMessage, error)
	SendJSON(ctx context.Context, msg types.OutboundText) error
}

// PluginRunner runs the first plugin matching an invocation.
type PluginRunner interface {
	Run(ctx context.Context, inv plugin.Invocation) (matched bool, err error)
}

// GifRefresher rebuilds the gif inventory prompt.
type GifRefresher interface {
	RefreshGifs(ctx context.Context) error
}

// AdapterDeps are the collaborators of an Adapter. Plugins, Gifs, Inventory,
// Media and Metrics may be nil.
type AdapterDeps struct {
	Messenger Messenger
	Handler   Handler
	Threads   types.ThreadStore
	Plugins   PluginRunner
	Gifs      types.GifStore
	Inventory GifRefresher
	Media     MediaDecoder
	Reporter  *Reporter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// Username is the bot's username without the leading @.
	Username string
	// Staleness is how recent the last turn must be for the bot to join a
	// group conversation unprompted.
	Staleness time.Duration
	// ResetCommand is the plain-text reset trigger, e.g. "!restart".
	ResetCommand string
}

// Adapter routes Telegram updates to commands, plugins and conversations.
type Adapter struct {
	AdapterDeps
}

// NewAdapter creates an Adapter.
func NewAdapter(deps AdapterDeps) *Adapter {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Username = strings.TrimPrefix(deps.Username, "@")
	return &Adapter{AdapterDeps: deps}
}

// Poll long-polls getUpdates until ctx is cancelled. Failed polls back off
// with the client's retry policy.
func (a *Adapter) Poll(ctx context.Context, client *Client) {
	offset := 0
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := client.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			delay := client.retry.delayFor(err, failures)
			a.Logger.Warn("get updates failed", "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		failures = 0
		for i := range updates {
			a.HandleUpdate(ctx, &updates[i])
			offset = updates[i].UpdateID + 1
		}
	}
}

// HandleUpdate routes one update. Failures are logged or reported to the
// chat, never returned.
func (a *Adapter) HandleUpdate(ctx context.Context, u *Update) {
	if m := u.business(); m != nil {
		a.handleBusiness(ctx, m)
		return
	}
	if u.Message == nil || u.Message.Chat == nil || u.Message.From == nil {
		a.Metrics.Inbound("ignored")
		return
	}
	a.handleMessage(ctx, u.Message)
}

// handleBusiness schedules a delayed reply to messages written by the
// counterpart of a business chat. Messages the account owner sends are
// ignored.
func (a *Adapter) handleBusiness(ctx context.Context, m *Message) {
	if m.From == nil || m.Chat == nil || m.From.ID != m.Chat.ID {
		a.Metrics.Inbound("ignored")
		return
	}
	text, ok := FormatMessage(ctx, m, a.Media)
	if !ok {
		a.Logger.Debug("business message ignored", "chat_id", m.Chat.ID, "message_id", m.MessageID)
		a.Metrics.Inbound("ignored")
		return
	}
	a.Metrics.Inbound("business")
	err := a.Handler.ReplyWithDelay(&types.ReplyPayload{
		Text:                 text,
		ChatID:               types.ChatID(m.Chat.ID),
		MessageID:            m.MessageID,
		BusinessConnectionID: m.BusinessConnectionID,
		Reset:                a.isReset(m),
	})
	if err != nil {
		a.Logger.Error("schedule business reply", "chat_id", m.Chat.ID, "error", err)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, m *Message) {
	chatID := types.ChatID(m.Chat.ID)

	if a.isStoreGif(m) {
		a.Metrics.Inbound("command")
		a.storeGif(ctx, m)
		return
	}
	if a.isReset(m) {
		a.Metrics.Inbound("reset")
		if err := a.Handler.Reset(chatID, m.MessageID); err != nil {
			a.Logger.Error("enqueue reset", "chat_id", chatID, "error", err)
		}
		return
	}
	if m.IsCommand() {
		a.Metrics.Inbound("command")
		a.handleCommand(ctx, m)
		return
	}
	if m.Text != "" && a.Plugins != nil {
		matched, err := a.Plugins.Run(ctx, a.invocation(m))
		if matched {
			a.Metrics.Inbound("plugin")
			if err != nil {
				a.report(ctx, m, err)
			}
			return
		}
	}
	if !a.addressed(ctx, m) {
		a.Metrics.Inbound("ignored")
		return
	}

	text, ok := FormatMessage(ctx, m, a.Media)
	if !ok {
		a.Metrics.Inbound("ignored")
		return
	}
	p := &types.ReplyPayload{
		Text:           text,
		ChatID:         chatID,
		MessageID:      m.MessageID,
		ReplyTo:        m.MessageID,
		DisplayErrors:  m.isPrivate(),
		RawFallback:    true,
		PostProcessing: true,
	}
	if m.isGroup() {
		p.ChatTitle = m.Chat.Title
	}
	a.Metrics.Inbound("reply")
	if err := a.Handler.Reply(p); err != nil {
		a.Logger.Error("enqueue reply", "chat_id", chatID, "error", err)
	}
}

func (a *Adapter) invocation(m *Message) plugin.Invocation {
	inv := plugin.Invocation{
		Text:          m.Text,
		ChatID:        types.ChatID(m.Chat.ID),
		MessageID:     m.MessageID,
		InitiatorID:   m.From.ID,
		InitiatorName: m.From.UserName,
	}
	if inv.InitiatorName == "" {
		inv.InitiatorName = m.From.FirstName
	}
	if r := m.ReplyToMessage; r != nil {
		inv.ReplyToID = r.MessageID
		inv.ReplyToText = r.Text
		inv.Caption = r.Caption
	}
	return inv
}

// addressed decides whether a regular message is meant for the bot: it
// mentions or replies to the bot, it is a private chat, or the chat is
// active and nobody else is being addressed.
func (a *Adapter) addressed(ctx context.Context, m *Message) bool {
	text := m.plainText()
	mention := "@" + a.Username
	mentioned := a.Username != "" && strings.Contains(text, mention)
	if mentioned || m.isPrivate() {
		return true
	}
	if r := m.ReplyToMessage; r != nil {
		if r.From != nil && a.Username != "" && r.From.UserName == a.Username {
			return true
		}
		return false
	}
	if otherMention(text) {
		return false
	}

	active, err := a.Threads.IsActive(ctx, types.ChatID(m.Chat.ID), a.Staleness)
	if err != nil {
		a.Logger.Error("thread activity check", "chat_id", m.Chat.ID, "error", err)
		return false
	}
	return active
}

// otherMention reports whether text contains an @ followed by a word
// character.
func otherMention(text string) bool {
	for i := 0; i < len(text)-1; i++ {
		if text[i] != '@' {
			continue
		}
		c := text[i+1]
		if c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			return true
		}
	}
	return false
}

func (a *Adapter) isReset(m *Message) bool {
	if m.IsCommand() && m.Command() == "reset" {
		return true
	}
	return a.ResetCommand != "" && strings.TrimSpace(m.Text) == a.ResetCommand
}

func (a *Adapter) isStoreGif(m *Message) bool {
	return m.Animation != nil && m.isPrivate() &&
		m.ReplyToMessage != nil && m.ReplyToMessage.Text == storeGifCommand
}

func (a *Adapter) handleCommand(ctx context.Context, m *Message) {
	chatID := types.ChatID(m.Chat.ID)

	switch m.Command() {
	case "start":
		a.reply(ctx, m, "Hi! Mention me or reply to one of my messages to talk.")

	case "status":
		count, err := a.Threads.Count(ctx, chatID)
		if err != nil {
			a.report(ctx, m, fmt.Errorf("count thread: %w", err))
			return
		}
		a.reply(ctx, m, fmt.Sprintf("Chat: %d\nMessages: %d", chatID, count))

	case "storegif":
		if !m.isPrivate() {
			return
		}
		a.reply(ctx, m, "Reply to this message with an animation to store it.")

	default:
		a.Logger.Debug("unknown command", "chat_id", chatID, "command", m.Command())
	}
}

type storedGif struct {
	ID          int64  `json:"id"`
	FileID      string `json:"file_id"`
	Description string `json:"description"`
}

// storeGif saves an animation sent in reply to /storegif and refreshes the
// gif inventory prompt.
func (a *Adapter) storeGif(ctx context.Context, m *Message) {
	if a.Gifs == nil {
		return
	}
	var description string
	if a.Media != nil && m.Animation.Thumbnail != nil {
		description = a.Media.DescribeImage(ctx, m.Animation.Thumbnail.FileID)
	}
	if description == "" {
		description = m.Caption
	}
	if description == "" {
		description = m.Animation.FileName
	}
	gif, err := a.Gifs.Add(ctx, m.Animation.FileID, description)
	if err != nil {
		a.report(ctx, m, fmt.Errorf("store gif: %w", err))
		return
	}
	if a.Inventory != nil {
		if err := a.Inventory.RefreshGifs(ctx); err != nil {
			a.Logger.Error("refresh gif inventory", "error", err)
		}
	}
	body, err := json.MarshalIndent(storedGif{ID: gif.ID, FileID: gif.FileID, Description: gif.Description}, "", "  ")
	if err != nil {
		return
	}
	err = a.Messenger.SendJSON(ctx, types.OutboundText{
		ChatID:  types.ChatID(m.Chat.ID),
		ReplyTo: m.MessageID,
		Text:    string(body),
	})
	if err != nil {
		a.Logger.Warn("send stored gif", "chat_id", m.Chat.ID, "error", err)
	}
}

func (a *Adapter) reply(ctx context.Context, m *Message, text string) {
	_, err := a.Messenger.SendMessage(ctx, types.OutboundText{
		ChatID:  types.ChatID(m.Chat.ID),
		ReplyTo: m.MessageID,
		Text:    text,
	})
	if err != nil {
		a.Logger.Warn("send reply", "chat_id", m.Chat.ID, "error", err)
	}
}

func (a *Adapter) report(ctx context.Context, m *Message, err error) {
	a.Logger.Error("handle message", "chat_id", m.Chat.ID, "message_id", m.MessageID, "error", err)
	if a.Reporter == nil {
		return
	}
	_ = a.Reporter.SendError(ctx, types.ChatID(m.Chat.ID), m.MessageID, err)
}
