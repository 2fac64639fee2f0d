// Package state provides the durable stores behind the relay: the per-chat
// thread log, operator prompts, the gif catalogue, and conversation actor
// state with its pending alarms.
package state

import (
	"errors"

	"github.com/user/ohime/internal/types"
)

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("not found")

// Compile-time interface compliance checks.
var _ types.ThreadStore = (*ThreadStore)(nil)
var _ types.PromptStore = (*PromptStore)(nil)
var _ types.GifStore = (*GifStore)(nil)
var _ types.ConversationStore = (*ConversationStore)(nil)
var _ types.ConversationStore = (*RedisConversationStore)(nil)
