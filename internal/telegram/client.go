// Package telegram talks to the Telegram Bot API: outbound sends, presence
// signals, update polling, inbound normalization and routing.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/user/ohime/internal/types"
)

const maxTelegramMessage = 4096

// allowedUpdates are the update kinds requested from getUpdates and setWebhook.
var allowedUpdates = []string{"message", "business_message", "edited_business_message"}

// Client wraps the Bot API with an outbound rate limit. Calls go through
// MakeRequest so methods newer than the library's typed configs work too.
type Client struct {
	bot          *tgbotapi.BotAPI
	httpClient   *http.Client
	fileEndpoint string
	limiter      *rate.Limiter
	retry        *RetryPolicy
	logger       *slog.Logger
}

type clientOptions struct {
	endpoint     string
	fileEndpoint string
	httpClient   *http.Client
	rps        float64
	retry      *RetryPolicy
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

// WithAPIEndpoint overrides the Bot API endpoint format
// (default "https://api.telegram.org/bot%s/%s").
func WithAPIEndpoint(endpoint string) ClientOption {
	return func(o *clientOptions) { o.endpoint = endpoint }
}

// WithFileEndpoint overrides the file download endpoint format
// (default "https://api.telegram.org/file/bot%s/%s").
func WithFileEndpoint(endpoint string) ClientOption {
	return func(o *clientOptions) { o.fileEndpoint = endpoint }
}

// WithHTTPClient sets the HTTP client used for Bot API calls.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithRateLimit caps outbound calls per second. Zero or less disables the cap.
func WithRateLimit(rps float64) ClientOption {
	return func(o *clientOptions) { o.rps = rps }
}

// WithRetryPolicy sets the policy used for bootstrap and polling.
func WithRetryPolicy(p *RetryPolicy) ClientOption {
	return func(o *clientOptions) { o.retry = p }
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// NewClient authenticates with getMe, retrying transient failures.
func NewClient(ctx context.Context, token string, opts ...ClientOption) (*Client, error) {
	o := clientOptions{
		endpoint:     tgbotapi.APIEndpoint,
		fileEndpoint: tgbotapi.FileEndpoint,
		httpClient:   &http.Client{},
		rps:          25,
		retry:        DefaultRetryPolicy(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}

	var bot *tgbotapi.BotAPI
	err := o.retry.Execute(ctx, func() error {
		var err error
		bot, err = tgbotapi.NewBotAPIWithClient(token, o.endpoint, o.httpClient)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	limit := rate.Inf
	burst := 1
	if o.rps > 0 {
		limit = rate.Limit(o.rps)
		burst = int(o.rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		bot:          bot,
		httpClient:   o.httpClient,
		fileEndpoint: o.fileEndpoint,
		limiter:      rate.NewLimiter(limit, burst),
		retry:        o.retry,
		logger:       o.logger,
	}, nil
}

// Username is the bot's own username, without the leading @.
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

func (c *Client) call(ctx context.Context, method string, params tgbotapi.Params) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.bot.MakeRequest(method, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return resp.Result, nil
}

func addTarget(p tgbotapi.Params, chatID types.ChatID, businessConnectionID string, replyTo int) {
	p.AddNonZero64("chat_id", int64(chatID))
	p.AddNonEmpty("business_connection_id", businessConnectionID)
	if replyTo != 0 {
		p.AddNonZero("reply_to_message_id", replyTo)
		p.AddBool("allow_sending_without_reply", true)
	}
}

// SendMessage sends text, splitting it at the Bot API length limit. Only the
// first part is threaded; the first sent message is returned.
func (c *Client) SendMessage(ctx context.Context, msg types.OutboundText) (*types.SentMessage, error) {
	var first *types.SentMessage
	for i, part := range splitMessage(msg.Text) {
		p := tgbotapi.Params{}
		replyTo := msg.ReplyTo
		if i > 0 {
			replyTo = 0
		}
		addTarget(p, msg.ChatID, msg.BusinessConnectionID, replyTo)
		p["text"] = part
		p.AddNonEmpty("parse_mode", msg.ParseMode)
		p.AddBool("disable_notification", msg.DisableNotification)

		raw, err := c.call(ctx, "sendMessage", p)
		if err != nil {
			return first, err
		}
		if first == nil {
			var sent tgbotapi.Message
			if err := json.Unmarshal(raw, &sent); err != nil {
				return nil, fmt.Errorf("decode sent message: %w", err)
			}
			first = toSentMessage(&sent)
		}
	}
	return first, nil
}

func toSentMessage(m *tgbotapi.Message) *types.SentMessage {
	sent := &types.SentMessage{MessageID: m.MessageID, Text: m.Text}
	if m.Chat != nil {
		sent.ChatID = types.ChatID(m.Chat.ID)
	}
	if m.From != nil {
		sent.FromID = m.From.ID
		sent.FromUsername = m.From.UserName
	}
	return sent
}

const (
	codeOpen  = "```json\n"
	codeClose = "\n```"
)

// SendJSON sends raw inside a json code block. Long text goes out as several
// blocks, each closed on its own; only the first is threaded.
func (c *Client) SendJSON(ctx context.Context, msg types.OutboundText) error {
	for i, body := range splitCode(msg.Text, maxTelegramMessage-len(codeOpen)-len(codeClose)) {
		part := msg
		part.Text = codeOpen + body + codeClose
		part.ParseMode = tgbotapi.ModeMarkdownV2
		if i > 0 {
			part.ReplyTo = 0
		}
		if _, err := c.SendMessage(ctx, part); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) sendMedia(ctx context.Context, method, field string, msg types.OutboundMedia) error {
	p := tgbotapi.Params{}
	addTarget(p, msg.ChatID, msg.BusinessConnectionID, msg.ReplyTo)
	p[field] = msg.Media
	p.AddNonEmpty("caption", msg.Caption)
	p.AddBool("disable_notification", msg.DisableNotification)
	_, err := c.call(ctx, method, p)
	return err
}

// SendSticker sends a sticker by file id.
func (c *Client) SendSticker(ctx context.Context, msg types.OutboundMedia) error {
	return c.sendMedia(ctx, "sendSticker", "sticker", msg)
}

// SendAnimation sends an animation by file id or URL.
func (c *Client) SendAnimation(ctx context.Context, msg types.OutboundMedia) error {
	return c.sendMedia(ctx, "sendAnimation", "animation", msg)
}

// SendPhoto sends a photo by file id or URL.
func (c *Client) SendPhoto(ctx context.Context, msg types.OutboundMedia) error {
	return c.sendMedia(ctx, "sendPhoto", "photo", msg)
}

// SendTyping shows the typing indicator.
func (c *Client) SendTyping(ctx context.Context, chatID types.ChatID, businessConnectionID string) error {
	p := tgbotapi.Params{"action": tgbotapi.ChatTyping}
	addTarget(p, chatID, businessConnectionID, 0)
	_, err := c.call(ctx, "sendChatAction", p)
	return err
}

// ReadBusinessMessage marks a message in a business chat as read.
func (c *Client) ReadBusinessMessage(ctx context.Context, businessConnectionID string, chatID types.ChatID, messageID int) error {
	p := tgbotapi.Params{}
	addTarget(p, chatID, businessConnectionID, 0)
	p.AddNonZero("message_id", messageID)
	_, err := c.call(ctx, "readBusinessMessage", p)
	return err
}

type reactionType struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

// React sets a single emoji reaction on a message.
func (c *Client) React(ctx context.Context, chatID types.ChatID, messageID int, emoji string) error {
	p := tgbotapi.Params{}
	p.AddNonZero64("chat_id", int64(chatID))
	p.AddNonZero("message_id", messageID)
	if err := p.AddInterface("reaction", []reactionType{{Type: "emoji", Emoji: emoji}}); err != nil {
		return err
	}
	_, err := c.call(ctx, "setMessageReaction", p)
	return err
}

// StickerSet fetches a sticker set by name.
func (c *Client) StickerSet(ctx context.Context, name string) (*types.StickerSet, error) {
	raw, err := c.call(ctx, "getStickerSet", tgbotapi.Params{"name": name})
	if err != nil {
		return nil, err
	}
	var set tgbotapi.StickerSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode sticker set %s: %w", name, err)
	}
	out := &types.StickerSet{Name: set.Name, Title: set.Title}
	for _, s := range set.Stickers {
		out.Stickers = append(out.Stickers, types.Sticker{FileID: s.FileID, Emoji: s.Emoji})
	}
	return out, nil
}

// maxDownload is the largest file the Bot API serves to bots.
const maxDownload = 20 << 20

// DownloadFile resolves fileID with getFile and fetches its contents. The
// returned path is the server-side file path, whose extension names the
// format.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	raw, err := c.call(ctx, "getFile", tgbotapi.Params{"file_id": fileID})
	if err != nil {
		return nil, "", err
	}
	var file tgbotapi.File
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, "", fmt.Errorf("decode file %s: %w", fileID, err)
	}
	if file.FilePath == "" {
		return nil, "", fmt.Errorf("file %s has no path", fileID)
	}
	if file.FileSize > maxDownload {
		return nil, "", fmt.Errorf("file %s is %d bytes, over the download limit", fileID, file.FileSize)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(c.fileEndpoint, c.bot.Token, file.FilePath), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", file.FilePath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: status %d", file.FilePath, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", file.FilePath, err)
	}
	if len(data) > maxDownload {
		return nil, "", fmt.Errorf("download %s: over the download limit", file.FilePath)
	}
	return data, file.FilePath, nil
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset, timeout int) ([]Update, error) {
	p := tgbotapi.Params{}
	p.AddNonZero("offset", offset)
	p.AddNonZero("timeout", timeout)
	if err := p.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, "getUpdates", p)
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

// SetWebhook registers url as the update destination.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	p := tgbotapi.Params{"url": url}
	if err := p.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return err
	}
	return c.retry.Execute(ctx, func() error {
		_, err := c.call(ctx, "setWebhook", p)
		return err
	})
}

// DeleteWebhook switches the bot back to getUpdates delivery.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.call(ctx, "deleteWebhook", tgbotapi.Params{})
	return err
}

// escapeCode escapes the characters MarkdownV2 treats specially inside code
// blocks.
func escapeCode(s string) string {
	return strings.NewReplacer(`\`, `\\`, "`", "\\`").Replace(s)
}

// splitCode escapes text for a code block and cuts the result into parts of
// at most limit bytes. An escape sequence is never cut in two.
func splitCode(text string, limit int) []string {
	var parts []string
	var b strings.Builder
	for _, r := range text {
		esc := escapeCode(string(r))
		if b.Len() > 0 && b.Len()+len(esc) > limit {
			parts = append(parts, b.String())
			b.Reset()
		}
		b.WriteString(esc)
	}
	if b.Len() > 0 || len(parts) == 0 {
		parts = append(parts, b.String())
	}
	return parts
}

// splitMessage cuts text into parts of at most maxTelegramMessage bytes
// without splitting a rune.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end >= len(text) {
			end = len(text)
		} else {
			for end > 0 && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
