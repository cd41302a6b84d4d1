// Package gif searches a GIF provider for the picker.
package gif

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	pageSize = 20
	rating   = "pg"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("gif provider not configured")

type GIF struct {
	ID         string `json:"id"`
	PreviewURL string `json:"previewUrl"`
	FullURL    string `json:"fullUrl"`
}

type giphyImage struct {
	URL string `json:"url"`
}

type giphyItem struct {
	ID     string `json:"id"`
	Images struct {
		FixedHeightSmall giphyImage `json:"fixed_height_small"`
		FixedHeight      giphyImage `json:"fixed_height"`
		Original         giphyImage `json:"original"`
	} `json:"images"`
}

type giphyResponse struct {
	Data []giphyItem `json:"data"`
}

// Giphy talks to the Giphy REST API and caches answers briefly.
type Giphy struct {
	client *resty.Client
	apiKey string
	cache  *expirable.LRU[string, []GIF]
}

type Options struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

func NewGiphy(opts Options) *Giphy {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 2 * time.Minute
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r != nil && r.StatusCode() >= 500
	})
	return &Giphy{
		client: client,
		apiKey: opts.APIKey,
		cache:  expirable.NewLRU[string, []GIF](256, nil, opts.CacheTTL),
	}
}

func (g *Giphy) Enabled() bool {
	return g != nil && g.apiKey != ""
}

// Search returns GIFs matching query; a blank query returns trending ones.
func (g *Giphy) Search(ctx context.Context, query string) ([]GIF, error) {
	if !g.Enabled() {
		return nil, ErrDisabled
	}
	query = strings.TrimSpace(query)
	key := strings.ToLower(query)
	if cached, ok := g.cache.Get(key); ok {
		return clone(cached), nil
	}

	req := g.client.R().
		SetContext(ctx).
		SetQueryParam("api_key", g.apiKey).
		SetQueryParam("limit", fmt.Sprint(pageSize)).
		SetQueryParam("rating", rating).
		SetResult(&giphyResponse{})
	path := "/trending"
	if query != "" {
		path = "/search"
		req.SetQueryParam("q", query)
	}
	resp, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("giphy %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("giphy %s: status %d", path, resp.StatusCode())
	}
	parsed, ok := resp.Result().(*giphyResponse)
	if !ok || parsed == nil {
		return nil, fmt.Errorf("giphy %s: unexpected response", path)
	}
	out := make([]GIF, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		full := firstNonBlank(item.Images.FixedHeight.URL, item.Images.Original.URL)
		if full == "" {
			continue
		}
		out = append(out, GIF{
			ID:         item.ID,
			PreviewURL: firstNonBlank(item.Images.FixedHeightSmall.URL, item.Images.FixedHeight.URL, full),
			FullURL:    full,
		})
	}
	g.cache.Add(key, out)
	return clone(out), nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func clone(in []GIF) []GIF {
	out := make([]GIF, len(in))
	copy(out, in)
	return out
}
