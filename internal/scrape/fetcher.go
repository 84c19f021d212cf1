// Package scrape fetches vendor product pages and reduces them to
// classifier-sized excerpts.
package scrape

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Options configures the Fetcher.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Result is the outcome of one fetch. A timed-out fetch is a Result with
// TimedOut set, not an error: slowness is never evidence of absence.
type Result struct {
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string
	Body        []byte
	TimedOut    bool
	Duration    time.Duration
}

// Status returns the numeric status code as text.
func (r *Result) Status() string {
	return strconv.Itoa(r.StatusCode)
}

// Fetcher retrieves vendor pages over plain HTTP with a hard per-request
// deadline and per-host rate limiting.
type Fetcher struct {
	client  *http.Client
	limiter *HostLimiter
	opts    Options
}

// NewFetcher creates a Fetcher. A nil limiter disables host spacing.
func NewFetcher(opts Options, limiter *HostLimiter) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 1024 * 1024
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "StockwatchBot/1.0"
	}
	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		limiter: limiter,
		opts:    opts,
	}
}

// Fetch retrieves rawURL. Redirects are followed. The per-request
// deadline resolves to a typed timeout Result rather than an error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: parse url")
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, u.Hostname()); err != nil {
			return nil, eris.Wrap(err, "scrape: host limiter")
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return &Result{URL: rawURL, TimedOut: true, Duration: time.Since(start)}, nil
		}
		return nil, eris.Wrapf(err, "scrape: fetch %s", u.Hostname())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return &Result{URL: rawURL, TimedOut: true, Duration: time.Since(start)}, nil
		}
		return nil, eris.Wrap(err, "scrape: read body")
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Result{
		URL:         finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Duration:    time.Since(start),
	}, nil
}

// isTimeout reports whether err is a request deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// url.Error wraps the causes above but some transports stringify.
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
