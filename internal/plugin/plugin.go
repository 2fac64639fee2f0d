// Package plugin implements content lookups triggered by message text, such
// as "pic cats" or "video lofi". Plugins run in a fixed order and the first
// one whose pattern matches handles the message.
package plugin

import (
	"context"
	"fmt"
	"regexp"

	"github.com/user/ohime/internal/types"
)

// Invocation is the message a plugin is asked to handle.
type Invocation struct {
	Text                 string
	ChatID               types.ChatID
	MessageID            int
	ReplyToID            int
	BusinessConnectionID string
	InitiatorID          int64
	InitiatorName        string
	// ReplyToText is the text of the message Text replied to, used as the
	// query when Text carries none.
	ReplyToText string
	Caption     string
}

// replyTarget is the message plugin output is threaded under.
func (inv Invocation) replyTarget() int {
	if inv.ReplyToID != 0 {
		return inv.ReplyToID
	}
	return inv.MessageID
}

// Plugin is one matchable content lookup.
type Plugin interface {
	Name() string
	Match(inv Invocation) bool
	Run(ctx context.Context, inv Invocation) error
}

// Sender is the outbound surface plugins reply through.
type Sender interface {
	SendMessage(ctx context.Context, msg types.OutboundText) (*types.SentMessage, error)
	SendPhoto(ctx context.Context, msg types.OutboundMedia) error
	SendAnimation(ctx context.Context, msg types.OutboundMedia) error
}

// Chain is an ordered list of plugins; the first match wins.
type Chain struct {
	plugins []Plugin
}

// NewChain creates a chain that tries plugins in the given order.
func NewChain(plugins ...Plugin) *Chain {
	return &Chain{plugins: plugins}
}

// Match returns the first plugin that matches inv.
func (c *Chain) Match(inv Invocation) (Plugin, bool) {
	if c == nil {
		return nil, false
	}
	for _, p := range c.plugins {
		if p.Match(inv) {
			return p, true
		}
	}
	return nil, false
}

// Run executes the first matching plugin. matched is false when none matched.
func (c *Chain) Run(ctx context.Context, inv Invocation) (matched bool, err error) {
	p, ok := c.Match(inv)
	if !ok {
		return false, nil
	}
	if err := p.Run(ctx, inv); err != nil {
		return true, fmt.Errorf("plugin %s: %w", p.Name(), err)
	}
	return true, nil
}

// Names lists the plugins in order.
func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.plugins))
	for i, p := range c.plugins {
		out[i] = p.Name()
	}
	return out
}

// NotFoundText is sent when a lookup has no result.
const NotFoundText = "Nothing found \U0001F614"

// trigger matches "<keyword>[ <query>]" and extracts the query.
type trigger struct {
	re            *regexp.Regexp
	queryRequired bool
}

func newTrigger(pattern string) trigger {
	return trigger{re: regexp.MustCompile(pattern), queryRequired: true}
}

func (t trigger) match(inv Invocation) bool {
	return t.re.MatchString(inv.Text) && (!t.queryRequired || t.query(inv) != "")
}

// query returns the text after the keyword, or the replied-to text when the
// keyword stands alone.
func (t trigger) query(inv Invocation) string {
	m := t.re.FindStringSubmatch(inv.Text)
	if m == nil {
		return ""
	}
	if len(m) > 1 && m[1] != "" {
		return m[1]
	}
	return inv.ReplyToText
}

func notFound(ctx context.Context, s Sender, inv Invocation) error {
	_, err := s.SendMessage(ctx, types.OutboundText{
		ChatID:               inv.ChatID,
		BusinessConnectionID: inv.BusinessConnectionID,
		ReplyTo:              inv.replyTarget(),
		Text:                 NotFoundText,
		DisableNotification:  true,
	})
	return err
}
