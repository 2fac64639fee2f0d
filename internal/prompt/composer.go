// Package prompt assembles the model input that precedes a conversation
// thread: few-shot turns, operator system entries and chat context.
package prompt

import (
	"context"
	"fmt"

	"github.com/user/ohime/internal/types"
	"github.com/user/ohime/pkg/llm"
)

// Composer builds the system prompt from the prompt store and demo turns.
type Composer struct {
	store      types.PromptStore
	demo       *Demo
	aggressive bool
}

// NewComposer returns a Composer. A nil demo means no few-shot turns.
// aggressive toggles the aggressive demo block.
func NewComposer(store types.PromptStore, demo *Demo, aggressive bool) *Composer {
	if demo == nil {
		demo = &Demo{}
	}
	return &Composer{store: store, demo: demo, aggressive: aggressive}
}

// SystemPrompt returns basic demo turns, stored entries and aggressive demo
// turns, with every system entry moved ahead of the rest. Relative order is
// preserved on both sides.
func (c *Composer) SystemPrompt(ctx context.Context) ([]llm.Message, error) {
	dynamic, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}

	all := make([]llm.Message, 0, len(c.demo.Basic)+len(dynamic)+len(c.demo.Aggressive))
	all = append(all, c.demo.Basic...)
	all = append(all, dynamic...)
	if c.aggressive {
		all = append(all, c.demo.Aggressive...)
	}
	return partitionSystemFirst(all), nil
}

// ChatPrompt returns the context entry naming the chat.
func (c *Composer) ChatPrompt(title string) llm.Message {
	return llm.Message{Role: llm.RoleSystem, Content: "Chat name: " + title}
}

func partitionSystemFirst(msgs []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsSystem() {
			out = append(out, m)
		}
	}
	for _, m := range msgs {
		if !m.IsSystem() {
			out = append(out, m)
		}
	}
	return out
}
