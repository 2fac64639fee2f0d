package gateway

import (
	"context"
	"time"

	"github.com/user/ohime/internal/types"
)

// RunKind says which actor operation a Run performs.
type RunKind string

const (
	RunReply          RunKind = "reply"
	RunReplyWithDelay RunKind = "reply_with_delay"
	RunFire           RunKind = "fire"
	RunReset          RunKind = "reset"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one unit of work on a chat's lane.
type Run struct {
	ID        types.RunID
	ChatID    types.ChatID
	Kind      RunKind
	Payload   *types.ReplyPayload
	MessageID int
	Status    RunStatus
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     error
	Ctx       context.Context
}

// NewRun creates a Run in the Queued state.
func NewRun(chatID types.ChatID, kind RunKind) *Run {
	return &Run{
		ID:        types.NewRunID(),
		ChatID:    chatID,
		Kind:      kind,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
	}
}
