package plugin

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/user/ohime/internal/types"
)

// GifSearch replies with an mp4 animation found through Tenor.
type GifSearch struct {
	trigger
	apiKey    string
	clientKey string
	baseURL   string
	client    *http.Client
	sender    Sender
}

// NewGifSearch creates the gif search plugin.
func NewGifSearch(apiKey string, sender Sender) *GifSearch {
	return &GifSearch{
		trigger:   newTrigger(`(?i)^(?:gif|гиф|гифка)(?: (.+))?$`),
		apiKey:    apiKey,
		clientKey: "ohime",
		baseURL:   "https://tenor.googleapis.com/v2/search",
		client:    &http.Client{Timeout: 15 * time.Second},
		sender:    sender,
	}
}

func (p *GifSearch) Name() string              { return "gif_search" }
func (p *GifSearch) Match(inv Invocation) bool { return p.match(inv) }

type tenorResponse struct {
	Results []struct {
		MediaFormats struct {
			MP4 struct {
				URL string `json:"url"`
			} `json:"mp4"`
		} `json:"media_formats"`
	} `json:"results"`
}

func (p *GifSearch) Run(ctx context.Context, inv Invocation) error {
	params := url.Values{}
	params.Set("q", p.query(inv))
	params.Set("key", p.apiKey)
	params.Set("limit", "50")
	params.Set("contentfilter", "off")
	params.Set("media_filter", "mp4")
	params.Set("client_key", p.clientKey)

	var resp tenorResponse
	if err := getJSON(ctx, p.client, p.baseURL, params, &resp); err != nil {
		return err
	}
	if len(resp.Results) == 0 || resp.Results[0].MediaFormats.MP4.URL == "" {
		return notFound(ctx, p.sender, inv)
	}
	return p.sender.SendAnimation(ctx, types.OutboundMedia{
		ChatID:               inv.ChatID,
		BusinessConnectionID: inv.BusinessConnectionID,
		ReplyTo:              inv.replyTarget(),
		Media:                resp.Results[0].MediaFormats.MP4.URL,
		Caption:              inv.Caption,
		DisableNotification:  true,
	})
}
