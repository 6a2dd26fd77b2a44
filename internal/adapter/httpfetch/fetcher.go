// Package httpfetch fetches pages and probes link targets over plain HTTP.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/user/seo-audit-service/internal/repository"
)

type Options struct {
	FetchTimeout  time.Duration
	ProbeTimeout  time.Duration
	MaxRedirects  int
	MaxBodyBytes  int64
	HostRateLimit float64
	UserAgent     string
	Proxies       []string
}

// Client implements repository.PageFetcher and repository.LinkProber.
type Client struct {
	client       *http.Client
	rotator      *Rotator
	limiter      *hostLimiter
	fetchTimeout time.Duration
	probeTimeout time.Duration
	maxRedirects int
	maxBodyBytes int64
}

func New(opts Options) (*Client, error) {
	rotator, err := NewRotator(opts.Proxies, opts.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = rotator.Proxy
	transport.MaxIdleConnsPerHost = 10

	return &Client{
		client:       &http.Client{Transport: transport},
		rotator:      rotator,
		limiter:      newHostLimiter(opts.HostRateLimit),
		fetchTimeout: opts.FetchTimeout,
		probeTimeout: opts.ProbeTimeout,
		maxRedirects: opts.MaxRedirects,
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

// Fetch downloads one page. Non-2xx responses are results, not errors. A body above the
// size ceiling is discarded and flagged TooLarge.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*repository.FetchResult, error) {
	resp, hops, elapsed, cancel, err := c.do(ctx, http.MethodGet, rawURL, c.fetchTimeout)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	result := &repository.FetchResult{
		RequestedURL: rawURL,
		FinalURL:     resp.Request.URL.String(),
		StatusCode:   resp.StatusCode,
		Header:       resp.Header,
		ContentType:  resp.Header.Get("Content-Type"),
		RedirectHops: hops,
		ResponseTime: elapsed,
	}

	if c.maxBodyBytes > 0 && resp.ContentLength > c.maxBodyBytes {
		result.TooLarge = true
		result.SizeBytes = resp.ContentLength
		return result, nil
	}

	reader := io.Reader(resp.Body)
	if c.maxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, c.maxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, classify(rawURL, err)
	}
	result.SizeBytes = int64(len(body))
	if c.maxBodyBytes > 0 && result.SizeBytes > c.maxBodyBytes {
		result.TooLarge = true
		return result, nil
	}
	result.Body = body
	return result, nil
}

// Probe checks a link target with HEAD and falls back to GET for servers that refuse HEAD.
// The GET body is never read.
func (c *Client) Probe(ctx context.Context, rawURL string) (*repository.ProbeResult, error) {
	resp, hops, _, cancel, err := c.do(ctx, http.MethodHead, rawURL, c.probeTimeout)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		resp.Body.Close()
		cancel()
		resp, hops, _, cancel, err = c.do(ctx, http.MethodGet, rawURL, c.probeTimeout)
		if err != nil {
			return nil, err
		}
	}
	defer cancel()
	defer resp.Body.Close()

	return &repository.ProbeResult{
		StatusCode:   resp.StatusCode,
		FinalURL:     resp.Request.URL.String(),
		RedirectHops: hops,
	}, nil
}

// do sends one request on a per-call copy of the client whose redirect policy counts hops.
// The returned cancel must be called once the body is consumed.
func (c *Client) do(ctx context.Context, method, rawURL string, timeout time.Duration) (*http.Response, int, time.Duration, context.CancelFunc, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, 0, nil, fmt.Errorf("%w: %v", repository.ErrFetchFailed, err)
	}
	if err := c.limiter.Wait(ctx, u.Host); err != nil {
		return nil, 0, 0, nil, classify(rawURL, err)
	}

	reqCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, nil)
	if err != nil {
		cancel()
		return nil, 0, 0, nil, fmt.Errorf("%w: %v", repository.ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", c.rotator.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	hops := 0
	client := *c.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > c.maxRedirects {
			return repository.ErrTooManyRedirects
		}
		hops = len(via)
		return nil
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, 0, 0, nil, classify(rawURL, err)
	}
	return resp, hops, time.Since(start), cancel, nil
}

func classify(rawURL string, err error) error {
	if errors.Is(err, repository.ErrTooManyRedirects) {
		return fmt.Errorf("%w: %s", repository.ErrTooManyRedirects, rawURL)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s", repository.ErrFetchTimeout, rawURL)
	}
	return fmt.Errorf("%w: %s: %v", repository.ErrFetchFailed, rawURL, err)
}

var (
	_ repository.PageFetcher = (*Client)(nil)
	_ repository.LinkProber  = (*Client)(nil)
)
