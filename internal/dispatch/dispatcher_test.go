package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/ohime/internal/completion"
	"github.com/user/ohime/internal/plugin"
	"github.com/user/ohime/internal/types"
)

type call struct {
	kind  string
	text  types.OutboundText
	media types.OutboundMedia
}

type fakeSender struct {
	calls      []call
	sent       *types.SentMessage
	textErr    error
	stickerErr error
}

func (f *fakeSender) SendMessage(_ context.Context, msg types.OutboundText) (*types.SentMessage, error) {
	f.calls = append(f.calls, call{kind: "text", text: msg})
	if f.textErr != nil {
		return nil, f.textErr
	}
	if f.sent != nil {
		return f.sent, nil
	}
	return &types.SentMessage{MessageID: 100, ChatID: msg.ChatID, Text: msg.Text, FromID: 1, FromUsername: "bot"}, nil
}

func (f *fakeSender) SendSticker(_ context.Context, msg types.OutboundMedia) error {
	f.calls = append(f.calls, call{kind: "sticker", media: msg})
	return f.stickerErr
}

func (f *fakeSender) SendAnimation(_ context.Context, msg types.OutboundMedia) error {
	f.calls = append(f.calls, call{kind: "animation", media: msg})
	return nil
}

func (f *fakeSender) SendJSON(_ context.Context, msg types.OutboundText) error {
	f.calls = append(f.calls, call{kind: "json", text: msg})
	return nil
}

type mapStickers map[string]string

func (m mapStickers) Resolve(_ context.Context, emoji string) (string, bool, error) {
	id, ok := m[emoji]
	return id, ok, nil
}

type mapGifs map[string]*types.Gif

func (m mapGifs) Get(_ context.Context, id string) (*types.Gif, error) { return m[id], nil }

type recordingPost struct {
	invs []plugin.Invocation
}

func (r *recordingPost) Run(_ context.Context, inv plugin.Invocation) (bool, error) {
	r.invs = append(r.invs, inv)
	return true, nil
}

func newDispatcher(s *fakeSender, post PostProcessor) *Dispatcher {
	return New(s,
		mapStickers{"👍": "sticker-thumb"},
		mapGifs{"1": {ID: 1, FileID: "gif-file"}},
		post, nil)
}

func TestInvalidWithoutFallbackSendsNothing(t *testing.T) {
	s := &fakeSender{}
	err := newDispatcher(s, nil).Send(context.Background(),
		completion.Response{Raw: "malformed"}, Options{ChatID: 1})
	require.NoError(t, err)
	require.Empty(t, s.calls)
}

func TestInvalidWithFallbackSendsRaw(t *testing.T) {
	s := &fakeSender{}
	err := newDispatcher(s, nil).Send(context.Background(),
		completion.Response{Raw: "malformed"}, Options{ChatID: 1, ReplyTo: 7, RawFallback: true})
	require.NoError(t, err)
	require.Len(t, s.calls, 1)
	require.Equal(t, "json", s.calls[0].kind)
	require.Equal(t, types.OutboundText{ChatID: 1, ReplyTo: 7, Text: "malformed"}, s.calls[0].text)
}

func TestTextThreadedToReplyTo(t *testing.T) {
	s := &fakeSender{}
	err := newDispatcher(s, nil).Send(context.Background(),
		completion.Response{Valid: true, Text: "hi"},
		Options{ChatID: 1, ReplyTo: 9, BusinessConnectionID: "bc"})
	require.NoError(t, err)
	require.Equal(t, []call{{kind: "text", text: types.OutboundText{ChatID: 1, ReplyTo: 9, BusinessConnectionID: "bc", Text: "hi"}}}, s.calls)
}

func TestPostProcessingUsesSentMessage(t *testing.T) {
	s := &fakeSender{sent: &types.SentMessage{MessageID: 555, Text: "video cats", FromID: 42, FromUsername: "ohime_bot"}}
	post := &recordingPost{}
	err := newDispatcher(s, post).Send(context.Background(),
		completion.Response{Valid: true, Text: "video cats"},
		Options{ChatID: 1, ReplyTo: 9, PostProcessing: true})
	require.NoError(t, err)
	require.Equal(t, []plugin.Invocation{{
		Text:          "video cats",
		ChatID:        1,
		MessageID:     555,
		ReplyToID:     555,
		InitiatorID:   42,
		InitiatorName: "ohime_bot",
	}}, post.invs)
}

func TestPostProcessingDisabled(t *testing.T) {
	post := &recordingPost{}
	err := newDispatcher(&fakeSender{}, post).Send(context.Background(),
		completion.Response{Valid: true, Text: "video cats"}, Options{ChatID: 1})
	require.NoError(t, err)
	require.Empty(t, post.invs)
}

func TestPostProcessingRequiresEchoText(t *testing.T) {
	s := &fakeSender{sent: &types.SentMessage{MessageID: 1}}
	err := newDispatcher(s, &recordingPost{}).Send(context.Background(),
		completion.Response{Valid: true, Text: "hi"}, Options{ChatID: 1, PostProcessing: true})
	require.Error(t, err)
}

func TestStickerResolvedAndFallback(t *testing.T) {
	s := &fakeSender{}
	d := newDispatcher(s, nil)

	require.NoError(t, d.Send(context.Background(), completion.Response{Valid: true, Sticker: "👍"}, Options{ChatID: 2, ReplyTo: 4}))
	require.NoError(t, d.Send(context.Background(), completion.Response{Valid: true, Sticker: "🦫"}, Options{ChatID: 2, ReplyTo: 4}))

	require.Equal(t, []call{
		{kind: "sticker", media: types.OutboundMedia{ChatID: 2, Media: "sticker-thumb"}},
		{kind: "text", text: types.OutboundText{ChatID: 2, Text: "🦫"}},
	}, s.calls)
}

func TestGifFoundAndMissing(t *testing.T) {
	s := &fakeSender{}
	d := newDispatcher(s, nil)

	require.NoError(t, d.Send(context.Background(), completion.Response{Valid: true, GIF: "1"}, Options{ChatID: 3}))
	require.NoError(t, d.Send(context.Background(), completion.Response{Valid: true, GIF: "99"}, Options{ChatID: 3}))

	require.Equal(t, []call{{kind: "animation", media: types.OutboundMedia{ChatID: 3, Media: "gif-file"}}}, s.calls)
}

func TestAllBranchesRunAndErrorsJoin(t *testing.T) {
	s := &fakeSender{textErr: errors.New("text down"), stickerErr: errors.New("sticker down")}
	err := newDispatcher(s, nil).Send(context.Background(),
		completion.Response{Valid: true, Text: "hi", Sticker: "👍", GIF: "1"}, Options{ChatID: 1})
	require.ErrorContains(t, err, "text down")
	require.ErrorContains(t, err, "sticker down")

	kinds := make([]string, len(s.calls))
	for i, c := range s.calls {
		kinds[i] = c.kind
	}
	require.Equal(t, []string{"text", "sticker", "animation"}, kinds)
}
