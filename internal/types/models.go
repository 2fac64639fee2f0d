// internal/types/models.go
package types

import (
	"time"
)

// ThreadMessage is one turn in a conversation's append-only log.
type ThreadMessage struct {
	ChatID    ChatID    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ReplyPayload is a normalized inbound event handed to the conversation actor.
type ReplyPayload struct {
	Text                 string `json:"text"`
	ChatID               ChatID `json:"chat_id"`
	MessageID            int    `json:"message_id"`
	ReplyTo              int    `json:"reply_to,omitempty"`
	BusinessConnectionID string `json:"business_connection_id,omitempty"`
	ChatTitle            string `json:"chat_title,omitempty"`
	DisplayErrors        bool   `json:"display_errors"`
	RawFallback          bool   `json:"raw_fallback"`
	PostProcessing       bool   `json:"post_processing"`
	Reset                bool   `json:"reset,omitempty"`
}

// ConversationState is the durable continuation state of one conversation.
// At most one is live per chat; a newer event replaces it wholesale.
type ConversationState struct {
	ChatID               ChatID `json:"chat_id"`
	MessageID            int    `json:"message_id"`
	ReplyTo              int    `json:"reply_to,omitempty"`
	BusinessConnectionID string `json:"business_connection_id,omitempty"`
	ChatTitle            string `json:"chat_title,omitempty"`
	DisplayErrors        bool   `json:"display_errors"`
	RawFallback          bool   `json:"raw_fallback"`
	PostProcessing       bool   `json:"post_processing"`
	ShouldRead           bool   `json:"should_read"`
}

// StateFromPayload copies the continuation fields of p.
func StateFromPayload(p *ReplyPayload) *ConversationState {
	return &ConversationState{
		ChatID:               p.ChatID,
		MessageID:            p.MessageID,
		ReplyTo:              p.ReplyTo,
		BusinessConnectionID: p.BusinessConnectionID,
		ChatTitle:            p.ChatTitle,
		DisplayErrors:        p.DisplayErrors,
		RawFallback:          p.RawFallback,
		PostProcessing:       p.PostProcessing,
	}
}

// Alarm is a persisted pending timer.
type Alarm struct {
	ChatID ChatID    `json:"chat_id"`
	Due    time.Time `json:"due"`
}

// Gif is a stored animation the model may reference by id.
type Gif struct {
	ID          int64  `json:"id"`
	FileID      string `json:"file_id"`
	Description string `json:"description"`
}

type Sticker struct {
	FileID string `json:"file_id"`
	Emoji  string `json:"emoji"`
}

type StickerSet struct {
	Name     string    `json:"name"`
	Title    string    `json:"title"`
	Stickers []Sticker `json:"stickers"`
}

// OutboundText is a text message to send.
type OutboundText struct {
	ChatID               ChatID
	BusinessConnectionID string
	ReplyTo              int
	Text                 string
	ParseMode            string
	DisableNotification  bool
}

// OutboundMedia is a sticker, animation or photo to send. Media is a file id or URL.
type OutboundMedia struct {
	ChatID               ChatID
	BusinessConnectionID string
	ReplyTo              int
	Media                string
	Caption              string
	DisableNotification  bool
}

// SentMessage is the platform's echo of a message we sent.
type SentMessage struct {
	MessageID    int
	ChatID       ChatID
	Text         string
	FromID       int64
	FromUsername string
}
