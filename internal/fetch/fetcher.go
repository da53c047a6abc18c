// Package fetch retrieves blog posts and extracts bounded plain-text
// excerpts. Fetch failures degrade to an empty excerpt; rank data must
// survive content loss.
package fetch

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/metrics"
	"github.com/blogboost/ranktracker/internal/rank"
)

// Config controls fetch behavior.
type Config struct {
	UserAgent       string
	Timeout         time.Duration
	ExcerptMaxChars int
}

// Detector decides whether a fetched body warrants a headless render.
type Detector interface {
	ShouldPromote(body []byte) bool
}

// Renderer renders a page in a real browser and returns the resulting DOM.
type Renderer interface {
	Render(ctx context.Context, rawURL string) ([]byte, error)
}

// Fetcher implements rank.ContentFetcher using the Colly collector. With a
// detector and renderer attached, bodies that look like client-rendered
// shells are rendered once in headless Chrome before extraction.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	detector      Detector
	renderer      Renderer
	logger        *zap.Logger
}

// New builds a Fetcher. Detector and renderer may be nil, which disables
// headless promotion.
func New(cfg Config, detector Detector, renderer Renderer, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ExcerptMaxChars <= 0 {
		cfg.ExcerptMaxChars = 5000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		detector:      detector,
		renderer:      renderer,
		logger:        logger,
	}
}

// Fetch resolves the viewer URL, performs a single GET and extracts the
// excerpt. Any failure yields an empty excerpt, never an error.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) rank.FetchResult {
	target := ViewerURL(pageURL)

	body, finalURL, err := f.get(ctx, target)
	if err != nil {
		f.logger.Debug("content fetch failed",
			zap.String("url", target),
			zap.Error(err))
		metrics.ObserveContentFetch("error")
		return rank.FetchResult{ResolvedURL: target}
	}

	rendered := false
	if f.detector != nil && f.renderer != nil && f.detector.ShouldPromote(body) {
		if renderedBody, renderErr := f.renderer.Render(ctx, finalURL); renderErr == nil && len(renderedBody) > 0 {
			body = renderedBody
			rendered = true
		} else if renderErr != nil {
			f.logger.Debug("headless render failed, keeping static body",
				zap.String("url", finalURL),
				zap.Error(renderErr))
		}
	}

	excerpt := Extract(body, f.cfg.ExcerptMaxChars)
	switch {
	case rendered:
		metrics.ObserveContentFetch("rendered")
	case excerpt == "":
		metrics.ObserveContentFetch("empty")
	default:
		metrics.ObserveContentFetch("ok")
	}

	return rank.FetchResult{
		Excerpt:     excerpt,
		ResolvedURL: finalURL,
		Rendered:    rendered,
	}
}

// get executes a single HTTP GET using a cloned collector. finalURL is the
// URL after any redirects.
func (f *Fetcher) get(ctx context.Context, target string) (body []byte, finalURL string, err error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var fetchErr error
	finalURL = target
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		finalURL = r.Request.URL.String()
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, target, ctx.Err()
	case visitErr := <-done:
		if visitErr != nil {
			return nil, target, visitErr
		}
		if fetchErr != nil {
			return nil, target, fetchErr
		}
		return body, finalURL, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
