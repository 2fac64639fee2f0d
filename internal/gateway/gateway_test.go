package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/ohime/internal/types"
)

type call struct {
	kind      RunKind
	chatID    types.ChatID
	text      string
	messageID int
}

type recordingHandler struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (h *recordingHandler) record(c call) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, c)
	return h.err
}

func (h *recordingHandler) Reply(_ context.Context, p *types.ReplyPayload) error {
	return h.record(call{kind: RunReply, chatID: p.ChatID, text: p.Text})
}

func (h *recordingHandler) ReplyWithDelay(_ context.Context, p *types.ReplyPayload) error {
	return h.record(call{kind: RunReplyWithDelay, chatID: p.ChatID, text: p.Text})
}

func (h *recordingHandler) Fire(_ context.Context, chatID types.ChatID) error {
	return h.record(call{kind: RunFire, chatID: chatID})
}

func (h *recordingHandler) Reset(_ context.Context, chatID types.ChatID, messageID int) error {
	return h.record(call{kind: RunReset, chatID: chatID, messageID: messageID})
}

func (h *recordingHandler) snapshot() []call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]call(nil), h.calls...)
}

func TestGatewayRoutesRunKinds(t *testing.T) {
	h := &recordingHandler{}
	gw := New(h, nil, 2)
	gw.Start(context.Background())
	defer gw.Stop()

	if err := gw.Reply(&types.ReplyPayload{ChatID: 1, Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := gw.ReplyWithDelay(&types.ReplyPayload{ChatID: 1, Text: "later"}); err != nil {
		t.Fatal(err)
	}
	if err := gw.Fire(1); err != nil {
		t.Fatal(err)
	}
	if err := gw.Reset(1, 99); err != nil {
		t.Fatal(err)
	}

	if !waitFor(func() bool { return len(h.snapshot()) == 4 }, time.Second) {
		t.Fatalf("expected 4 calls, got %d", len(h.snapshot()))
	}

	want := []call{
		{kind: RunReply, chatID: 1, text: "hi"},
		{kind: RunReplyWithDelay, chatID: 1, text: "later"},
		{kind: RunFire, chatID: 1},
		{kind: RunReset, chatID: 1, messageID: 99},
	}
	got := h.snapshot()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestGatewayHandlerErrorDoesNotStopLane(t *testing.T) {
	h := &recordingHandler{err: errors.New("boom")}
	gw := New(h, nil)
	gw.Start(context.Background())
	defer gw.Stop()

	for i := 0; i < 3; i++ {
		gw.Fire(5)
	}

	if !waitFor(func() bool { return len(h.snapshot()) == 3 }, time.Second) {
		t.Errorf("expected 3 calls after errors, got %d", len(h.snapshot()))
	}
}

func TestGatewayStopped(t *testing.T) {
	gw := New(&recordingHandler{}, nil)
	gw.Start(context.Background())
	gw.Stop()

	if err := gw.Reply(&types.ReplyPayload{ChatID: 1}); err == nil {
		t.Error("expected error after stop")
	}
	if err := gw.Fire(1); err == nil {
		t.Error("expected alarm firing to be refused after stop")
	}
}
