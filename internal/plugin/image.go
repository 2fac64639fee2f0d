package plugin

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/user/ohime/internal/types"
)

const (
	imagesPerPage   = 10
	maxImageRetries = 5
)

// ImageSearch replies with a photo found through Google Custom Search.
type ImageSearch struct {
	trigger
	apiKey   string
	engineID string
	baseURL  string
	client   *http.Client
	sender   Sender
	logger   *slog.Logger
}

// NewImageSearch creates the image search plugin.
func NewImageSearch(apiKey, engineID string, sender Sender, logger *slog.Logger) *ImageSearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageSearch{
		trigger:  newTrigger(`(?i)^(?:пик|пикча|img|image|pic|picture)(?: (.+))?$`),
		apiKey:   apiKey,
		engineID: engineID,
		baseURL:  "https://www.googleapis.com/customsearch/v1",
		client:   &http.Client{Timeout: 15 * time.Second},
		sender:   sender,
		logger:   logger,
	}
}

func (p *ImageSearch) Name() string              { return "image_search" }
func (p *ImageSearch) Match(inv Invocation) bool { return p.match(inv) }

type imageSearchResponse struct {
	Items []struct {
		Link string `json:"link"`
	} `json:"items"`
}

// Run sends the first image result. A photo the platform refuses is skipped
// in favour of the next result, a bounded number of times.
func (p *ImageSearch) Run(ctx context.Context, inv Invocation) error {
	query := p.query(inv)
	for n, retry := 0, 0; ; n++ {
		link, err := p.result(ctx, query, n)
		if err != nil {
			return err
		}
		if link == "" {
			return notFound(ctx, p.sender, inv)
		}
		err = p.sender.SendPhoto(ctx, types.OutboundMedia{
			ChatID:               inv.ChatID,
			BusinessConnectionID: inv.BusinessConnectionID,
			ReplyTo:              inv.replyTarget(),
			Media:                link,
			Caption:              inv.Caption,
			DisableNotification:  true,
		})
		if err == nil {
			return nil
		}
		retry++
		if retry > maxImageRetries {
			return err
		}
		p.logger.Warn("image send failed, trying next result", "retry", retry, "error", err)
	}
}

// result returns the link of the n-th result, or "" when there is none.
func (p *ImageSearch) result(ctx context.Context, query string, n int) (string, error) {
	start := (n/imagesPerPage)*imagesPerPage + 1
	params := url.Values{}
	params.Set("searchType", "image")
	params.Set("q", query)
	params.Set("key", p.apiKey)
	params.Set("cx", p.engineID)
	params.Set("num", strconv.Itoa(imagesPerPage))
	params.Set("start", strconv.Itoa(start))
	params.Set("safe", "off")
	params.Set("fields", "items.link,queries.nextPage")

	var resp imageSearchResponse
	if err := getJSON(ctx, p.client, p.baseURL, params, &resp); err != nil {
		return "", err
	}
	i := n % imagesPerPage
	if i >= len(resp.Items) {
		return "", nil
	}
	return resp.Items[i].Link, nil
}
