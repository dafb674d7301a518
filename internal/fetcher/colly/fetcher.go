// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/ogimet-history/internal/crawler"
	"github.com/JakeFAU/ogimet-history/internal/metrics"
	"github.com/JakeFAU/ogimet-history/internal/policy/ratelimit"
)

// Defaults for Config. New applies the attempt and timeout defaults to zero
// fields; a zero Backoff retries without waiting.
const (
	DefaultMaxAttempts = 10
	DefaultBackoff     = 5 * time.Second
	DefaultTimeout     = 5 * time.Second
)

// Config controls collector and retry behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	// Backoff is the fixed wait after a connection or timeout error.
	// Non-200 responses are retried without waiting.
	Backoff time.Duration
	// RequestsPerSecond paces every attempt, retries included. Zero disables it.
	RequestsPerSecond float64
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       *ratelimit.Limiter
	pause         func(ctx context.Context, d time.Duration) error
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// attemptOutcome tags the result of a single fetch attempt.
type attemptOutcome int

const (
	attemptSuccess attemptOutcome = iota
	attemptRetryNow
	attemptRetryAfterBackoff
)

// attemptResult captures what one Visit produced.
type attemptResult struct {
	statusCode int
	body       []byte
	err        error
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	// Retries hit the same URL; non-2xx bodies are handed to OnResponse so
	// the status can be inspected here rather than surfacing as errors.
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       ratelimit.New(ratelimit.Config{RPS: cfg.RequestsPerSecond}),
		pause:         sleep,
		logger:        logger,
	}
}

// Fetch retrieves url, retrying transient failures, and parses the body.
// It returns crawler.ErrFetchExhausted once every attempt has failed.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	remaining := f.cfg.MaxAttempts
	var last attemptResult
	for remaining > 0 {
		remaining--
		if err := f.limiter.Wait(ctx, url); err != nil {
			return nil, fmt.Errorf("fetch canceled: %w", err)
		}
		start := time.Now()
		res := f.attempt(ctx, url)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch canceled: %w", ctxErr)
		}
		last = res

		switch classify(res) {
		case attemptSuccess:
			metrics.ObserveFetch(metrics.FetchOK, time.Since(start))
			return parseDocument(res.body)
		case attemptRetryNow:
			metrics.ObserveFetch(metrics.FetchStatus, time.Since(start))
			f.logger.Debug("unexpected status, retrying",
				zap.String("url", url),
				zap.Int("status_code", res.statusCode),
				zap.Int("remaining", remaining),
			)
		case attemptRetryAfterBackoff:
			metrics.ObserveFetch(metrics.FetchTransport, time.Since(start))
			f.logger.Warn("request failed, backing off",
				zap.String("url", url),
				zap.Error(res.err),
				zap.Bool("timeout", isTimeout(res.err)),
				zap.Duration("backoff", f.cfg.Backoff),
				zap.Int("remaining", remaining),
			)
			if remaining > 0 {
				if err := f.pause(ctx, f.cfg.Backoff); err != nil {
					return nil, fmt.Errorf("fetch canceled: %w", err)
				}
			}
		}
	}

	metrics.ObserveFetch(metrics.FetchExhausted, 0)
	if last.err != nil {
		return nil, fmt.Errorf("%w after %d attempts: %w", crawler.ErrFetchExhausted, f.cfg.MaxAttempts, last.err)
	}
	return nil, fmt.Errorf("%w after %d attempts: last status %d", crawler.ErrFetchExhausted, f.cfg.MaxAttempts, last.statusCode)
}

func classify(res attemptResult) attemptOutcome {
	switch {
	case res.err != nil:
		return attemptRetryAfterBackoff
	case res.statusCode != http.StatusOK:
		return attemptRetryNow
	default:
		return attemptSuccess
	}
}

// attempt performs exactly one GET with a fresh collector clone.
func (f *Fetcher) attempt(ctx context.Context, url string) attemptResult {
	var res attemptResult
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, &res)
	if err := runCollector(ctx, collector, url); err != nil {
		if ctx.Err() != nil {
			// The visit goroutine may still be writing into res.
			return attemptResult{err: err}
		}
		if res.err == nil {
			res.err = err
		}
	}
	return res
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, res *attemptResult) {
	hooks.OnResponse(func(r *colly.Response) {
		res.statusCode = r.StatusCode
		res.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			res.statusCode = r.StatusCode
		}
		res.err = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func parseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrMalformedDocument, err)
	}
	return doc, nil
}

func sleep(ctx context.Context, d time.Duration) error {
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

// isTimeout reports whether err came from a network timeout.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
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
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
