package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/user/ohime/internal/types"
)

type fakeSender struct {
	mu         sync.Mutex
	texts      []types.OutboundText
	photos     []types.OutboundMedia
	animations []types.OutboundMedia
	photoErrs  []error
}

func (f *fakeSender) SendMessage(_ context.Context, msg types.OutboundText) (*types.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, msg)
	return &types.SentMessage{MessageID: 1, ChatID: msg.ChatID, Text: msg.Text}, nil
}

func (f *fakeSender) SendPhoto(_ context.Context, msg types.OutboundMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, msg)
	if len(f.photoErrs) > 0 {
		err := f.photoErrs[0]
		f.photoErrs = f.photoErrs[1:]
		return err
	}
	return nil
}

func (f *fakeSender) SendAnimation(_ context.Context, msg types.OutboundMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.animations = append(f.animations, msg)
	return nil
}

type stubPlugin struct {
	name    string
	matches bool
	ran     int
	err     error
}

func (s *stubPlugin) Name() string          { return s.name }
func (s *stubPlugin) Match(Invocation) bool { return s.matches }
func (s *stubPlugin) Run(context.Context, Invocation) error {
	s.ran++
	return s.err
}

func TestChainFirstMatchWins(t *testing.T) {
	a := &stubPlugin{name: "a"}
	b := &stubPlugin{name: "b", matches: true}
	c := &stubPlugin{name: "c", matches: true}
	chain := NewChain(a, b, c)

	matched, err := chain.Run(context.Background(), Invocation{Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if !matched {
		t.Fatal("expected a match")
	}
	if a.ran != 0 || b.ran != 1 || c.ran != 0 {
		t.Errorf("unexpected runs a=%d b=%d c=%d", a.ran, b.ran, c.ran)
	}
}

func TestChainNoMatch(t *testing.T) {
	chain := NewChain(&stubPlugin{name: "a"})
	matched, err := chain.Run(context.Background(), Invocation{})
	if err != nil || matched {
		t.Fatalf("expected no match, got matched=%v err=%v", matched, err)
	}

	var nilChain *Chain
	if _, ok := nilChain.Match(Invocation{}); ok {
		t.Error("nil chain should not match")
	}
}

func TestChainWrapsPluginError(t *testing.T) {
	chain := NewChain(&stubPlugin{name: "broken", matches: true, err: errors.New("boom")})
	matched, err := chain.Run(context.Background(), Invocation{})
	if !matched {
		t.Fatal("expected match")
	}
	if err == nil || err.Error() != "plugin broken: boom" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestChainNames(t *testing.T) {
	s := &fakeSender{}
	chain := NewChain(NewImageSearch("", "", s, nil), NewVideoSearch("", s), NewGifSearch("", s))
	names := chain.Names()
	want := []string{"image_search", "video_search", "gif_search"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestTriggerQuery(t *testing.T) {
	tr := newTrigger(`(?i)^(?:video|видео)(?: (.+))?$`)
	tests := []struct {
		name  string
		inv   Invocation
		match bool
		query string
	}{
		{"keyword and query", Invocation{Text: "video cats"}, true, "cats"},
		{"case insensitive", Invocation{Text: "VIDEO Cats"}, true, "Cats"},
		{"cyrillic keyword", Invocation{Text: "видео котики"}, true, "котики"},
		{"bare keyword without reply", Invocation{Text: "video"}, false, ""},
		{"bare keyword uses replied text", Invocation{Text: "video", ReplyToText: "lofi"}, true, "lofi"},
		{"explicit query beats replied text", Invocation{Text: "video a", ReplyToText: "b"}, true, "a"},
		{"keyword mid sentence", Invocation{Text: "a video cats"}, false, ""},
		{"keyword prefix only", Invocation{Text: "videos cats"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.match(tt.inv); got != tt.match {
				t.Errorf("match = %v, want %v", got, tt.match)
			}
			if got := tr.query(tt.inv); got != tt.query {
				t.Errorf("query = %q, want %q", got, tt.query)
			}
		})
	}
}

func TestReplyTarget(t *testing.T) {
	if got := (Invocation{MessageID: 5}).replyTarget(); got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
	if got := (Invocation{MessageID: 5, ReplyToID: 9}).replyTarget(); got != 9 {
		t.Errorf("expected 9, got %d", got)
	}
}
