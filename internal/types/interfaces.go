// internal/types/interfaces.go
package types

import (
	"context"
	"time"

	"github.com/user/ohime/pkg/llm"
)

type ThreadStore interface {
	Append(ctx context.Context, chatID ChatID, role, content string) error
	Thread(ctx context.Context, chatID ChatID) ([]llm.Message, error)
	IsActive(ctx context.Context, chatID ChatID, staleness time.Duration) (bool, error)
	Clear(ctx context.Context, chatID ChatID) error
	Count(ctx context.Context, chatID ChatID) (int64, error)
}

type PromptStore interface {
	Upsert(ctx context.Context, id, role, content string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]llm.Message, error)
}

type GifStore interface {
	Get(ctx context.Context, id string) (*Gif, error)
	Add(ctx context.Context, fileID, description string) (*Gif, error)
	List(ctx context.Context) ([]*Gif, error)
}

// ConversationStore is the durable side of the conversation actor: one
// state object and at most one pending alarm per chat.
type ConversationStore interface {
	SaveState(ctx context.Context, state *ConversationState) error
	LoadState(ctx context.Context, chatID ChatID) (*ConversationState, error)
	DeleteState(ctx context.Context, chatID ChatID) error
	SetAlarm(ctx context.Context, chatID ChatID, due time.Time) error
	GetAlarm(ctx context.Context, chatID ChatID) (time.Time, bool, error)
	DeleteAlarm(ctx context.Context, chatID ChatID) error
	// ClaimAlarm deletes the chat's alarm and reports whether this call
	// removed it. Only one of several concurrent claims succeeds.
	ClaimAlarm(ctx context.Context, chatID ChatID) (bool, error)
	PendingAlarms(ctx context.Context) ([]Alarm, error)
}
