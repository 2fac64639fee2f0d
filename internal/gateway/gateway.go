// Package gateway serializes work per chat before it reaches the
// conversation actors.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/ohime/internal/types"
)

// Handler is the conversation actor surface the gateway drives.
type Handler interface {
	Reply(ctx context.Context, p *types.ReplyPayload) error
	ReplyWithDelay(ctx context.Context, p *types.ReplyPayload) error
	Fire(ctx context.Context, chatID types.ChatID) error
	Reset(ctx context.Context, chatID types.ChatID, messageID int) error
}

// Gateway turns inbound payloads and alarm firings into runs on per-chat
// lanes, so a chat's actor never sees two calls at once.
type Gateway struct {
	handler Handler
	Queue   *Queue
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway with the given concurrency limit for simultaneous
// run processing across chats.
func New(handler Handler, logger *slog.Logger, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 4
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		handler: handler,
		Queue:   NewQueue(concurrency),
		logger:  logger,
	}
	g.Queue.SetProcessor(g.process)
	return g
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context and stops the queue.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// Reply enqueues an immediate reply.
func (g *Gateway) Reply(p *types.ReplyPayload) error {
	run := NewRun(p.ChatID, RunReply)
	run.Payload = p
	return g.Queue.Enqueue(run)
}

// ReplyWithDelay enqueues a delayed reply.
func (g *Gateway) ReplyWithDelay(p *types.ReplyPayload) error {
	run := NewRun(p.ChatID, RunReplyWithDelay)
	run.Payload = p
	return g.Queue.Enqueue(run)
}

// Reset enqueues a conversation reset.
func (g *Gateway) Reset(chatID types.ChatID, messageID int) error {
	run := NewRun(chatID, RunReset)
	run.MessageID = messageID
	return g.Queue.Enqueue(run)
}

// Fire enqueues an alarm firing. An error means the run was not queued and
// the caller still owns the alarm.
func (g *Gateway) Fire(chatID types.ChatID) error {
	if err := g.Queue.Enqueue(NewRun(chatID, RunFire)); err != nil {
		return fmt.Errorf("enqueue alarm firing: %w", err)
	}
	return nil
}

func (g *Gateway) process(run *Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	switch run.Kind {
	case RunReply:
		return g.handler.Reply(ctx, run.Payload)
	case RunReplyWithDelay:
		return g.handler.ReplyWithDelay(ctx, run.Payload)
	case RunFire:
		return g.handler.Fire(ctx, run.ChatID)
	case RunReset:
		return g.handler.Reset(ctx, run.ChatID, run.MessageID)
	default:
		return fmt.Errorf("unknown run kind %q", run.Kind)
	}
}
