package rss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBodySize bounds how much of a response is read.
const maxBodySize = 10 << 20

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// ProxyURL is the base of the proxy, e.g. https://allorigins.hexlet.app.
	// Empty fetches feed URLs directly.
	ProxyURL  string
	UserAgent string
	// Client defaults to a client without its own timeout; callers bound
	// requests with context deadlines.
	Client *http.Client
	// PerHost and HostDelay tune FetchLimited.
	PerHost   int
	HostDelay time.Duration
}

// Fetcher retrieves raw feed content.
type Fetcher struct {
	client    *http.Client
	proxyURL  string
	userAgent string
	limiter   *hostLimiter
}

// NewFetcher creates a fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "rssagg/1.0"
	}
	delay := cfg.HostDelay
	if delay == 0 {
		delay = DelayBetweenHostRequests
	}
	return &Fetcher{
		client:    client,
		proxyURL:  strings.TrimRight(cfg.ProxyURL, "/"),
		userAgent: ua,
		limiter:   newHostLimiter(cfg.PerHost, delay),
	}
}

// ProxyURL wraps feedURL in the proxy's /get endpoint with caching disabled.
func ProxyURL(proxy, feedURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(proxy, "/") + "/get")
	if err != nil {
		return "", fmt.Errorf("proxy url: %w", err)
	}
	q := u.Query()
	q.Set("url", feedURL)
	q.Set("disableCache", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type proxyResponse struct {
	Contents *string `json:"contents"`
}

// Fetch returns the raw content of feedURL.
// All transport failures are reported as *NetworkError.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (string, error) {
	target := feedURL
	if f.proxyURL != "" {
		var err error
		if target, err = ProxyURL(f.proxyURL, feedURL); err != nil {
			return "", &NetworkError{URL: feedURL, Err: err}
		}
	}

	body, err := f.get(ctx, feedURL, target)
	if err != nil {
		return "", err
	}
	if f.proxyURL == "" {
		return string(body), nil
	}

	var pr proxyResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return "", &NetworkError{URL: feedURL, Err: fmt.Errorf("decode proxy response: %w", err)}
	}
	if pr.Contents == nil {
		return "", &NetworkError{URL: feedURL, Err: errors.New("proxy response has no contents")}
	}
	return *pr.Contents, nil
}

// FetchLimited is Fetch with per-host concurrency and spacing limits.
func (f *Fetcher) FetchLimited(ctx context.Context, feedURL string) (string, error) {
	host := hostOf(feedURL)
	if err := f.limiter.acquire(ctx, host); err != nil {
		return "", &NetworkError{URL: feedURL, Err: fmt.Errorf("rate limit wait: %w", err)}
	}
	defer f.limiter.release(host)
	return f.Fetch(ctx, feedURL)
}

// FetchChannel fetches and parses feedURL.
func (f *Fetcher) FetchChannel(ctx context.Context, feedURL string) (*Channel, error) {
	content, err := f.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	return Parse(content)
}

func (f *Fetcher) get(ctx context.Context, feedURL, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &NetworkError{URL: feedURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{URL: feedURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &NetworkError{URL: feedURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
