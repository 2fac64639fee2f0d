// Package completion turns a conversation thread into a parsed model reply.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/ohime/pkg/llm"
)

// SystemPrompter supplies the entries placed before every thread.
type SystemPrompter interface {
	SystemPrompt(ctx context.Context) ([]llm.Message, error)
}

// Observer receives completion timings and outcomes. Nil-safe callers only.
type Observer interface {
	ObserveCompletion(d time.Duration, valid bool, err error)
}

// Client calls the model with the composed prompt and the given thread.
// It never writes to the thread store.
type Client struct {
	provider llm.Provider
	prompts  SystemPrompter
	fit      func(system, thread []llm.Message) []llm.Message
	observer Observer
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithFit installs a trimming function applied to the thread before the call.
func WithFit(fit func(system, thread []llm.Message) []llm.Message) Option {
	return func(c *Client) { c.fit = fit }
}

// WithObserver reports every completion to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client.
func NewClient(provider llm.Provider, prompts SystemPrompter, opts ...Option) *Client {
	c := &Client{provider: provider, prompts: prompts, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Completion sends [system prompt..., pinned..., thread...] requesting a
// JSON object and parses the reply. Pinned entries count against the budget
// like the system prompt, so only the thread is trimmed. An empty model reply
// is a normal outcome and yields Valid=false with Raw "null". Prompt and
// transport failures are returned.
func (c *Client) Completion(ctx context.Context, thread []llm.Message, pinned ...llm.Message) (Response, error) {
	start := time.Now()
	resp, err := c.complete(ctx, thread, pinned)
	if c.observer != nil {
		c.observer.ObserveCompletion(time.Since(start), resp.Valid, err)
	}
	return resp, err
}

func (c *Client) complete(ctx context.Context, thread, pinned []llm.Message) (Response, error) {
	system, err := c.prompts.SystemPrompt(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("compose prompt: %w", err)
	}
	head := make([]llm.Message, 0, len(system)+len(pinned))
	head = append(head, system...)
	head = append(head, pinned...)
	if c.fit != nil {
		thread = c.fit(head, thread)
	}

	messages := make([]llm.Message, 0, len(head)+len(thread))
	messages = append(messages, head...)
	messages = append(messages, thread...)

	out, err := c.provider.Complete(ctx, &llm.Request{
		Messages:       messages,
		ResponseFormat: llm.ResponseFormatJSON,
	})
	if err != nil {
		return Response{}, fmt.Errorf("model completion: %w", err)
	}
	if out == nil || out.Content == "" {
		c.logger.Warn("model returned no content")
		return Response{Raw: emptyRaw}, nil
	}

	resp := Parse(out.Content)
	if !resp.Valid {
		c.logger.Info("model returned invalid reply", "raw", resp.Raw)
	}
	return resp, nil
}
