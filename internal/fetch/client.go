package fetch

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Page is the raw result of one static HTTP fetch.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// ClientConfig captures the static HTTP client knobs.
type ClientConfig struct {
	Timeout      time.Duration
	Delay        time.Duration
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	UserAgents   []string
	MaxBodyBytes int64
}

// Client performs polite static fetches: connection reuse, a hard
// per-request delay, bounded retries on transient failures, and a
// randomized user agent per request.
type Client struct {
	base    *colly.Collector
	limiter *rate.Limiter
	retry   *RetryPolicy
	agents  []string
	logger  *zap.Logger
}

// NewClient constructs a configured colly-backed Client.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if len(cfg.UserAgents) == 0 {
		return nil, errors.New("at least one user agent is required")
	}
	opts := []colly.CollectorOption{
		colly.MaxBodySize(int(cfg.MaxBodyBytes)),
		colly.IgnoreRobotsTxt(),
	}
	base := colly.NewCollector(opts...)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)

	// The politeness delay is a hard floor between outbound requests, not
	// an adaptive budget. rate.Every(0) would mean no limit.
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}

	return &Client{
		base:    base,
		limiter: limiter,
		retry:   NewRetryPolicy(cfg.MaxRetries, cfg.BackoffBase, cfg.BackoffMax),
		agents:  append([]string(nil), cfg.UserAgents...),
		logger:  logger,
	}, nil
}

// Wait blocks until the politeness delay allows the next request.
func (c *Client) Wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.New("politeness wait interrupted: " + err.Error())
	}
	return nil
}

// Get fetches a single URL, retrying transient failures with backoff. The
// returned Page may carry a non-2xx status code; classification is the
// caller's concern.
func (c *Client) Get(ctx context.Context, rawURL string, creds Credentials) (Page, error) {
	var (
		page    Page
		lastErr error
	)
	for attempt := 0; ; attempt++ {
		page, lastErr = c.getOnce(ctx, rawURL, creds)
		if lastErr == nil && page.StatusCode < 500 {
			return page, nil
		}
		if !c.retry.ShouldRetry(lastErr, page.StatusCode, attempt) {
			break
		}
		backoff := c.retry.Backoff(attempt)
		c.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr),
		)
		if err := sleepCtx(ctx, backoff); err != nil {
			return page, err
		}
	}
	return page, lastErr
}

func (c *Client) getOnce(ctx context.Context, rawURL string, creds Credentials) (Page, error) {
	collector := c.base.Clone()
	collector.UserAgent = c.agents[rand.IntN(len(c.agents))]

	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnRequest(func(r *colly.Request) {
		if cookie := creds.CookieHeader(); cookie != "" {
			r.Headers.Set("Cookie", cookie)
		}
		if creds.Bearer != "" {
			r.Headers.Set("Authorization", "Bearer "+creds.Bearer)
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	})

	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{page: pageFromResponse(rawURL, r)})
	})

	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown fetch error")
		}
		res := fetchResult{err: err}
		if r != nil && r.StatusCode != 0 {
			// Keep the status so the orchestrator can classify 4xx/5xx;
			// err stays nil so a status-bearing page always wins over the
			// transport error colly wraps around it.
			res.page = pageFromResponse(rawURL, r)
			res.err = nil
		}
		send(res)
	})

	// Visit surfaces non-2xx responses as errors too; the OnError handler
	// has already stashed those as classified pages, so the channel wins.
	visitErr := collector.Visit(rawURL)
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return Page{}, err
		}
		return res.page, res.err
	default:
		if visitErr != nil {
			return Page{}, visitErr
		}
		return Page{}, errors.New("fetch produced no result")
	}
}

func pageFromResponse(rawURL string, r *colly.Response) Page {
	headers := http.Header{}
	if r.Headers != nil {
		for k, v := range *r.Headers {
			cp := make([]string, len(v))
			copy(cp, v)
			headers[k] = cp
		}
	}
	finalURL := rawURL
	if r.Request != nil && r.Request.URL != nil {
		finalURL = r.Request.URL.String()
	}
	return Page{
		URL:        rawURL,
		FinalURL:   finalURL,
		StatusCode: r.StatusCode,
		Headers:    headers,
		Body:       append([]byte(nil), r.Body...),
	}
}

type fetchResult struct {
	page Page
	err  error
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
