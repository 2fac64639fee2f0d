package plugin

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/user/ohime/internal/types"
)

// VideoSearch replies with a YouTube watch link.
type VideoSearch struct {
	trigger
	apiKey  string
	baseURL string
	client  *http.Client
	sender  Sender
}

// NewVideoSearch creates the video search plugin.
func NewVideoSearch(apiKey string, sender Sender) *VideoSearch {
	return &VideoSearch{
		trigger: newTrigger(`(?i)^(?:видео|video|youtube|ютуб)(?: (.+))?$`),
		apiKey:  apiKey,
		baseURL: "https://www.googleapis.com/youtube/v3/search",
		client:  &http.Client{Timeout: 15 * time.Second},
		sender:  sender,
	}
}

func (p *VideoSearch) Name() string              { return "video_search" }
func (p *VideoSearch) Match(inv Invocation) bool { return p.match(inv) }

type videoSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

func (p *VideoSearch) Run(ctx context.Context, inv Invocation) error {
	params := url.Values{}
	params.Set("type", "video")
	params.Set("q", p.query(inv))
	params.Set("key", p.apiKey)
	params.Set("maxResults", "50")
	params.Set("safeSearch", "none")
	params.Set("fields", "items.id.videoId")

	var resp videoSearchResponse
	if err := getJSON(ctx, p.client, p.baseURL, params, &resp); err != nil {
		return err
	}
	if len(resp.Items) == 0 || resp.Items[0].ID.VideoID == "" {
		return notFound(ctx, p.sender, inv)
	}

	text := "https://www.youtube.com/watch?v=" + resp.Items[0].ID.VideoID
	if inv.Caption != "" {
		text = inv.Caption + "\n" + text
	}
	_, err := p.sender.SendMessage(ctx, types.OutboundText{
		ChatID:               inv.ChatID,
		BusinessConnectionID: inv.BusinessConnectionID,
		ReplyTo:              inv.replyTarget(),
		Text:                 text,
		DisableNotification:  true,
	})
	return err
}
