// Package collyfetcher implements parsing.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/leadharvest/contactcrawler/internal/parsing"
)

// Config controls collector and retry behavior.
type Config struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Fetcher implements parsing.Fetcher using the Colly collector. The
// underlying transport is shared across all fetches so connections are
// pooled per host; it is safe for concurrent use.
type Fetcher struct {
	cfg       Config
	transport *http.Transport
	base      *colly.Collector
	retry     *retryPolicy
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(transport)

	return &Fetcher{
		cfg:       cfg,
		transport: transport,
		base:      c,
		retry:     newRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax),
	}
}

// Fetch executes an HTTP GET with bounded retries. Transient errors
// (timeouts, resets, 5xx, 429) back off and retry; 4xx responses and
// DNS failures return immediately.
func (f *Fetcher) Fetch(ctx context.Context, request parsing.FetchRequest) (parsing.FetchResponse, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := f.fetchOnce(ctx, request)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !f.retry.ShouldRetry(err, attempt) {
			break
		}
		select {
		case <-ctx.Done():
			return parsing.FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
		case <-time.After(f.retry.Backoff(attempt)):
		}
	}
	return parsing.FetchResponse{}, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, request parsing.FetchRequest) (parsing.FetchResponse, error) {
	var (
		result   parsing.FetchResponse
		fetchErr error
	)
	start := time.Now()

	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.ReadTimeout)
	collector.WithTransport(f.transport)

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range request.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = parsing.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 400 {
			fetchErr = &StatusError{Code: r.StatusCode}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return parsing.FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return parsing.FetchResponse{}, fetchErr
		}
		if err != nil {
			return parsing.FetchResponse{}, fmt.Errorf("visit %s: %w", request.URL, err)
		}
		return result, nil
	}
}
