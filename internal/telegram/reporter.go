package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/user/ohime/internal/types"
)

const redacted = "<REDACTED>"

// minSecretLen keeps very short values from redacting unrelated text.
const minSecretLen = 6

// JSONSender sends text as a formatted code block.
type JSONSender interface {
	SendJSON(ctx context.Context, msg types.OutboundText) error
}

// Reporter shows errors to the user as a JSON code block with every
// configured secret replaced.
type Reporter struct {
	sender   JSONSender
	replacer *strings.Replacer
	logger   *slog.Logger
}

// NewReporter creates a Reporter that redacts the given secrets.
func NewReporter(sender JSONSender, secrets []string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	// Longest first so a secret containing another is replaced whole.
	kept := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if len(s) >= minSecretLen {
			kept = append(kept, s)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return len(kept[i]) > len(kept[j]) })
	pairs := make([]string, 0, 2*len(kept))
	for _, s := range kept {
		pairs = append(pairs, s, redacted)
	}
	return &Reporter{sender: sender, replacer: strings.NewReplacer(pairs...), logger: logger}
}

// Sanitize replaces every configured secret in s.
func (r *Reporter) Sanitize(s string) string {
	return r.replacer.Replace(s)
}

type errorReport struct {
	Error string `json:"error"`
}

// SendError reports err to the chat, threaded under replyTo, silently.
func (r *Reporter) SendError(ctx context.Context, chatID types.ChatID, replyTo int, err error) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(errorReport{Error: r.Sanitize(err.Error())}); encErr != nil {
		return encErr
	}
	sendErr := r.sender.SendJSON(ctx, types.OutboundText{
		ChatID:              chatID,
		ReplyTo:             replyTo,
		Text:                strings.TrimSpace(body.String()),
		DisableNotification: true,
	})
	if sendErr != nil {
		r.logger.Warn("report error to chat", "chat_id", chatID, "error", sendErr)
	}
	return sendErr
}
