// Package actor implements the per-conversation reply scheduler.
//
// Each chat owns one logical actor. Its continuation state and pending alarm
// are persisted before any timer is armed, so a timer may fire in a process
// that has never seen the chat before. An in-memory cache fronts the durable
// store and may be dropped at any time.
package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/ohime/internal/completion"
	"github.com/user/ohime/internal/dispatch"
	"github.com/user/ohime/internal/metrics"
	"github.com/user/ohime/internal/types"
	"github.com/user/ohime/pkg/llm"
)

// ErrMissingState is returned when a reply is processed for a chat with no
// stored continuation state.
var ErrMissingState = errors.New("missing conversation state")

// ResetReaction is the reaction placed on a reset command.
const ResetReaction = "👍"

// Completer produces a model reply for a thread.
type Completer interface {
	Completion(ctx context.Context, thread []llm.Message, pinned ...llm.Message) (completion.Response, error)
}

// Dispatcher delivers a model reply.
type Dispatcher interface {
	Send(ctx context.Context, resp completion.Response, opts dispatch.Options) error
}

// ChatPrompter renders the chat-title context entry.
type ChatPrompter interface {
	ChatPrompt(title string) llm.Message
}

// Presence sends best-effort humanlike signals.
type Presence interface {
	SendTyping(ctx context.Context, chatID types.ChatID, businessConnectionID string) error
	ReadBusinessMessage(ctx context.Context, businessConnectionID string, chatID types.ChatID, messageID int) error
	React(ctx context.Context, chatID types.ChatID, messageID int, emoji string) error
}

// ErrorReporter shows a sanitized diagnostic to the user.
type ErrorReporter interface {
	SendError(ctx context.Context, chatID types.ChatID, replyTo int, err error) error
}

// Deps are the collaborators of Conversations. Errors and Metrics may be nil.
type Deps struct {
	Threads    types.ThreadStore
	Store      types.ConversationStore
	Prompts    ChatPrompter
	Completer  Completer
	Dispatcher Dispatcher
	Presence   Presence
	Errors     ErrorReporter
	Metrics    *metrics.Metrics
	Policy     Policy
	Logger     *slog.Logger
}

// Option configures Conversations.
type Option func(*Conversations)

// WithResetCommand treats inbound text equal to cmd as a reset.
func WithResetCommand(cmd string) Option {
	return func(c *Conversations) { c.resetCommand = cmd }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Conversations) { c.now = now }
}

// WithSleep overrides how the actor waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Conversations) { c.sleep = sleep }
}

// WithRand overrides the random source used to pick delays.
func WithRand(intn func(int) int) Option {
	return func(c *Conversations) { c.intn = intn }
}

// Conversations is the set of conversation actors. Calls for the same chat
// are serialized; different chats proceed independently.
type Conversations struct {
	Deps
	alarms       *Alarms
	resetCommand string
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
	intn         func(int) int

	mu     sync.Mutex
	locks  map[types.ChatID]*sync.Mutex
	cache  map[types.ChatID]*types.ConversationState
	onFire func(types.ChatID) error
}

// New creates the actor set. By default an expired alarm calls Fire on the
// timer goroutine; see SetFireHandler.
func New(deps Deps, opts ...Option) *Conversations {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	c := &Conversations{
		Deps:  deps,
		now:   time.Now,
		sleep: sleepContext,
		locks: make(map[types.ChatID]*sync.Mutex),
		cache: make(map[types.ChatID]*types.ConversationState),
	}
	for _, o := range opts {
		o(c)
	}
	c.alarms = NewAlarms(c.fire)
	c.alarms.now = c.now
	c.alarms.logger = c.Logger
	return c
}

// SetFireHandler routes expired alarms to fn instead of calling Fire
// directly. The gateway uses this to run firings on the chat's lane. An
// error from fn means the firing was not accepted; the alarm is retried.
func (c *Conversations) SetFireHandler(fn func(types.ChatID) error) {
	c.mu.Lock()
	c.onFire = fn
	c.mu.Unlock()
}

// Alarms exposes the in-process timers.
func (c *Conversations) Alarms() *Alarms {
	return c.alarms
}

func (c *Conversations) fire(chatID types.ChatID) error {
	c.mu.Lock()
	fn := c.onFire
	c.mu.Unlock()
	if fn != nil {
		return fn(chatID)
	}
	// The stored alarm is gone once Fire starts processing, so a failure
	// here is logged rather than retried.
	if err := c.Fire(context.Background(), chatID); err != nil {
		c.Logger.Error("alarm firing failed", "chat_id", chatID, "error", err)
	}
	return nil
}

// getLock returns the per-chat mutex, creating one if it doesn't exist.
func (c *Conversations) getLock(chatID types.ChatID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	if lock, ok := c.locks[chatID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	c.locks[chatID] = lock
	return lock
}

// Evict drops the chat's cached state, as if the actor had been unloaded.
func (c *Conversations) Evict(chatID types.ChatID) {
	c.mu.Lock()
	delete(c.cache, chatID)
	c.mu.Unlock()
}

func (c *Conversations) isReset(p *types.ReplyPayload) bool {
	return p.Reset || (c.resetCommand != "" && strings.TrimSpace(p.Text) == c.resetCommand)
}

// Reply appends the inbound turn and answers immediately.
func (c *Conversations) Reply(ctx context.Context, p *types.ReplyPayload) error {
	if c.isReset(p) {
		return c.Reset(ctx, p.ChatID, p.MessageID)
	}
	lock := c.getLock(p.ChatID)
	lock.Lock()
	defer lock.Unlock()

	st := types.StateFromPayload(p)
	if err := c.Threads.Append(ctx, p.ChatID, llm.RoleUser, p.Text); err != nil {
		return fmt.Errorf("append user turn: %w", err)
	}
	if err := c.saveState(ctx, st); err != nil {
		return err
	}
	c.Metrics.Reply("eager")
	return c.processReply(ctx, p.ChatID)
}

// ReplyWithDelay appends the inbound turn and schedules a reply after a
// humanlike delay. While an alarm is pending further turns only accumulate;
// the pending alarm is neither moved nor duplicated.
func (c *Conversations) ReplyWithDelay(ctx context.Context, p *types.ReplyPayload) error {
	if c.isReset(p) {
		return c.Reset(ctx, p.ChatID, p.MessageID)
	}
	lock := c.getLock(p.ChatID)
	lock.Lock()
	defer lock.Unlock()

	st := types.StateFromPayload(p)
	_, armed, err := c.Store.GetAlarm(ctx, p.ChatID)
	if err != nil {
		return fmt.Errorf("get alarm: %w", err)
	}

	// Activity is judged before this turn lands, otherwise every
	// conversation would look warm.
	var active bool
	if armed {
		prev, err := c.loadState(ctx, p.ChatID)
		if err != nil {
			return err
		}
		if prev != nil {
			st.ShouldRead = prev.ShouldRead
		}
	} else {
		active, err = c.Threads.IsActive(ctx, p.ChatID, c.Policy.Staleness)
		if err != nil {
			return fmt.Errorf("check activity: %w", err)
		}
		if active && p.BusinessConnectionID != "" {
			c.markRead(ctx, st)
		} else {
			st.ShouldRead = true
		}
	}

	if err := c.Threads.Append(ctx, p.ChatID, llm.RoleUser, p.Text); err != nil {
		return fmt.Errorf("append user turn: %w", err)
	}
	if err := c.saveState(ctx, st); err != nil {
		return err
	}
	if armed {
		c.Metrics.Reply("coalesced")
		return nil
	}

	delay := c.Policy.ReplyDelay(active).Pick(c.intn)
	due := c.now().Add(delay)
	if err := c.Store.SetAlarm(ctx, p.ChatID, due); err != nil {
		return fmt.Errorf("set alarm: %w", err)
	}
	c.alarms.Arm(p.ChatID, due)
	c.Metrics.Reply("scheduled")
	c.Logger.Debug("reply scheduled", "chat_id", p.ChatID, "delay", delay, "active", active)
	return nil
}

// Fire processes the chat's pending alarm. A chat with no stored alarm, for
// instance one reset after the timer started, is ignored.
func (c *Conversations) Fire(ctx context.Context, chatID types.ChatID) error {
	lock := c.getLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	claimed, err := c.Store.ClaimAlarm(ctx, chatID)
	if err != nil {
		return fmt.Errorf("claim alarm: %w", err)
	}
	if !claimed {
		c.Logger.Debug("alarm fired with nothing pending", "chat_id", chatID)
		return nil
	}
	c.Metrics.Reply("fired")
	return c.processReply(ctx, chatID)
}

// Reset cancels the pending alarm, drops the stored state, clears the thread
// and acknowledges messageID with a reaction when it is non-zero.
func (c *Conversations) Reset(ctx context.Context, chatID types.ChatID, messageID int) error {
	lock := c.getLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	c.alarms.Cancel(chatID)
	c.Evict(chatID)
	if err := c.Store.DeleteAlarm(ctx, chatID); err != nil {
		return fmt.Errorf("delete alarm: %w", err)
	}
	if err := c.Store.DeleteState(ctx, chatID); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	if err := c.Threads.Clear(ctx, chatID); err != nil {
		return fmt.Errorf("clear thread: %w", err)
	}
	c.Metrics.Reset()
	c.Logger.Info("conversation reset", "chat_id", chatID)

	if messageID != 0 && c.Presence != nil {
		if err := c.Presence.React(ctx, chatID, messageID, ResetReaction); err != nil {
			c.Logger.Warn("reset reaction failed", "chat_id", chatID, "error", err)
		}
	}
	return nil
}

// Recover re-arms every stored alarm. Overdue alarms fire at once.
func (c *Conversations) Recover(ctx context.Context) (int, error) {
	pending, err := c.Store.PendingAlarms(ctx)
	if err != nil {
		return 0, fmt.Errorf("list alarms: %w", err)
	}
	for _, a := range pending {
		c.alarms.Arm(a.ChatID, a.Due)
	}
	if len(pending) > 0 {
		c.Logger.Info("recovered pending replies", "count", len(pending))
	}
	return len(pending), nil
}

// Stop cancels in-process timers. Stored alarms survive for Recover.
func (c *Conversations) Stop() {
	c.alarms.Stop()
}

func (c *Conversations) saveState(ctx context.Context, st *types.ConversationState) error {
	if err := c.Store.SaveState(ctx, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	c.mu.Lock()
	c.cache[st.ChatID] = st
	c.mu.Unlock()
	return nil
}

func (c *Conversations) loadState(ctx context.Context, chatID types.ChatID) (*types.ConversationState, error) {
	c.mu.Lock()
	st, ok := c.cache[chatID]
	c.mu.Unlock()
	if ok {
		return st, nil
	}
	st, err := c.Store.LoadState(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if st != nil {
		c.mu.Lock()
		c.cache[chatID] = st
		c.mu.Unlock()
	}
	return st, nil
}

// processReply runs one reply cycle for the chat. Caller must hold the chat lock.
func (c *Conversations) processReply(ctx context.Context, chatID types.ChatID) error {
	st, err := c.loadState(ctx, chatID)
	if err != nil {
		return err
	}
	if st == nil {
		c.Logger.Error("missing conversation state", "chat_id", chatID)
		c.Metrics.Reply("missing_state")
		return ErrMissingState
	}

	if err := c.respond(ctx, st); err != nil {
		c.Metrics.Reply("failed")
		c.Logger.Error("reply failed", "chat_id", chatID, "error", err)
		if st.DisplayErrors && c.Errors != nil {
			if rerr := c.Errors.SendError(ctx, chatID, st.ReplyTo, err); rerr != nil {
				c.Logger.Error("error report failed", "chat_id", chatID, "error", rerr)
			}
		}
		return err
	}
	return nil
}

func (c *Conversations) respond(ctx context.Context, st *types.ConversationState) error {
	if st.ShouldRead && st.BusinessConnectionID != "" {
		c.markRead(ctx, st)
		if err := c.sleep(ctx, c.Policy.Read.Pick(c.intn)); err != nil {
			return err
		}
	}

	typing := c.Policy.Typing.Pick(c.intn)
	if c.Presence != nil {
		if err := c.Presence.SendTyping(ctx, st.ChatID, st.BusinessConnectionID); err != nil {
			c.Logger.Warn("typing signal failed", "chat_id", st.ChatID, "error", err)
		}
	}

	// The reply waits for both the model and the typing floor.
	var resp completion.Response
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resp, err = c.complete(gctx, st)
		return err
	})
	g.Go(func() error {
		return c.sleep(gctx, typing)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if !resp.Valid {
		c.Logger.Info("invalid model output", "chat_id", st.ChatID)
	}

	sendErr := c.Dispatcher.Send(ctx, resp, dispatch.Options{
		ChatID:               st.ChatID,
		ReplyTo:              st.ReplyTo,
		BusinessConnectionID: st.BusinessConnectionID,
		RawFallback:          st.RawFallback,
		PostProcessing:       st.PostProcessing,
	})
	if sendErr != nil {
		sendErr = fmt.Errorf("dispatch: %w", sendErr)
	}

	// The assistant turn is recorded even when a dispatch branch failed.
	if err := c.Threads.Append(ctx, st.ChatID, llm.RoleAssistant, resp.Raw); err != nil {
		return errors.Join(sendErr, fmt.Errorf("append assistant turn: %w", err))
	}
	return sendErr
}

func (c *Conversations) complete(ctx context.Context, st *types.ConversationState) (completion.Response, error) {
	thread, err := c.Threads.Thread(ctx, st.ChatID)
	if err != nil {
		return completion.Response{}, fmt.Errorf("read thread: %w", err)
	}
	if st.ChatTitle != "" {
		return c.Completer.Completion(ctx, thread, c.Prompts.ChatPrompt(st.ChatTitle))
	}
	return c.Completer.Completion(ctx, thread)
}

func (c *Conversations) markRead(ctx context.Context, st *types.ConversationState) {
	if c.Presence == nil {
		return
	}
	if err := c.Presence.ReadBusinessMessage(ctx, st.BusinessConnectionID, st.ChatID, st.MessageID); err != nil {
		c.Logger.Warn("read receipt failed", "chat_id", st.ChatID, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
