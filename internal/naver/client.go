// Package naver implements the search provider client against the Naver
// Open API blog search.
package naver

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/metrics"
	"github.com/blogboost/ranktracker/internal/rank"
)

const (
	// DefaultEndpoint is the Naver blog search endpoint.
	DefaultEndpoint = "https://openapi.naver.com/v1/search/blog.json"

	maxDisplay = 100
)

// Config holds the provider credentials and endpoint.
type Config struct {
	ClientID     string
	ClientSecret string
	Endpoint     string
	Timeout      time.Duration
}

// Client queries the Naver blog search API and enriches each result with
// fetched page content. It implements rank.SearchClient.
type Client struct {
	cfg     Config
	client  *http.Client
	fetcher rank.ContentFetcher
	strip   *bluemonday.Policy
	logger  *zap.Logger
}

// New creates a Client. The fetcher enriches each result item; pass a noop
// fetcher to skip enrichment.
func New(cfg Config, fetcher rank.ContentFetcher, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		fetcher: fetcher,
		strip:   bluemonday.StrictPolicy(),
		logger:  logger,
	}
}

// response mirrors the top-level Naver search JSON response.
type response struct {
	Total   int64  `json:"total"`
	Start   int    `json:"start"`
	Display int    `json:"display"`
	Items   []item `json:"items"`
}

// item mirrors a single Naver blog search result.
type item struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	BloggerName string `json:"bloggername"`
	BloggerLink string `json:"bloggerlink"`
	PostDate    string `json:"postdate"`
}

// Search performs one provider call for the keyword and returns the ranked,
// enriched result list. The count is clamped to the provider's 1..100
// display bounds. Individual content-fetch failures degrade to empty
// excerpts; only the provider call itself can fail the batch.
func (c *Client) Search(ctx context.Context, keyword string, count int) (rank.SearchResult, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return rank.SearchResult{}, fmt.Errorf("keyword must not be empty")
	}
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return rank.SearchResult{}, rank.ErrMissingCredentials
	}
	if count < 1 {
		count = 1
	}
	if count > maxDisplay {
		count = maxDisplay
	}

	raw, err := c.query(ctx, keyword, count)
	if err != nil {
		return rank.SearchResult{}, err
	}

	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return rank.SearchResult{}, &rank.ProviderError{Err: fmt.Errorf("decode response: %w", err)}
	}

	result := rank.SearchResult{
		Total: resp.Total,
		Items: make([]rank.SearchItem, len(resp.Items)),
		Raw:   raw,
	}
	for i, it := range resp.Items {
		result.Items[i] = rank.SearchItem{
			Rank:        i + 1,
			Title:       c.clean(it.Title),
			Link:        it.Link,
			Description: c.clean(it.Description),
			AuthorName:  it.BloggerName,
			AuthorLink:  it.BloggerLink,
			PostedAt:    it.PostDate,
		}
	}

	c.enrich(ctx, result.Items)

	c.logger.Debug("provider search finished",
		zap.String("keyword", keyword),
		zap.Int64("total", result.Total),
		zap.Int("items", len(result.Items)))
	return result, nil
}

// query performs the single HTTP call and returns the raw body.
func (c *Client) query(ctx context.Context, keyword string, count int) ([]byte, error) {
	params := url.Values{}
	params.Set("query", keyword)
	params.Set("display", strconv.Itoa(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Naver-Client-Id", c.cfg.ClientID)
	req.Header.Set("X-Naver-Client-Secret", c.cfg.ClientSecret)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveProviderRequest(0, time.Since(start))
		return nil, &rank.ProviderError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.ObserveProviderRequest(resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &rank.ProviderError{Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("provider returned non-200",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(body, 256)))
		return nil, &rank.ProviderError{StatusCode: resp.StatusCode}
	}
	return body, nil
}

// enrich fans out one content fetch per item. Items are written by index
// so no locking is needed.
func (c *Client) enrich(ctx context.Context, items []rank.SearchItem) {
	if c.fetcher == nil {
		return
	}
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := c.fetcher.Fetch(ctx, items[i].Link)
			items[i].Content = res.Excerpt
			items[i].ResolvedURL = res.ResolvedURL
		}(i)
	}
	wg.Wait()
}

// clean strips provider markup (Naver wraps matches in <b> tags) and
// unescapes HTML entities.
func (c *Client) clean(s string) string {
	return html.UnescapeString(c.strip.Sanitize(s))
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
