package prompt

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/ohime/pkg/llm"
)

// perMessageOverhead approximates the role and separator tokens the chat
// format adds to every message.
const perMessageOverhead = 4

// Budget keeps a completion request inside the model's context window by
// dropping the oldest thread turns.
type Budget struct {
	count     func(string) int
	maxTokens int
	reserve   int
}

// NewBudget creates a budget for the given model. maxTokens is the context
// window; reserve is kept free for the reply. A non-positive maxTokens
// disables trimming.
func NewBudget(model string, maxTokens, reserve int) (*Budget, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Budget{
		count:     func(s string) int { return len(enc.Encode(s, nil, nil)) },
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

// Tokens returns the approximate token cost of msgs.
func (b *Budget) Tokens(msgs []llm.Message) int {
	n := 0
	for _, m := range msgs {
		n += b.count(m.Content) + perMessageOverhead
	}
	return n
}

// Fit returns the longest suffix of thread that fits next to system. The
// newest turn is always kept.
func (b *Budget) Fit(system, thread []llm.Message) []llm.Message {
	if b == nil || b.maxTokens <= 0 || len(thread) == 0 {
		return thread
	}
	remaining := b.maxTokens - b.reserve - b.Tokens(system)

	start := len(thread)
	for start > 0 {
		cost := b.count(thread[start-1].Content) + perMessageOverhead
		if cost > remaining && start < len(thread) {
			break
		}
		remaining -= cost
		start--
	}
	return thread[start:]
}
