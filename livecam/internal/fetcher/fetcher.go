// Package fetcher downloads capture images with cache busting: a
// timestamp query parameter that changes on every request plus
// no-cache request headers.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/yihou/highway-crawler/guard"
)

// FetchError reports a non-success HTTP status.
type FetchError struct {
	Status int
	URL    string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetcher: HTTP %d for %s", e.Status, e.URL)
}

// Config configures the fetcher.
type Config struct {
	Timeout  time.Duration // per request. Default: 30s.
	MaxBytes int64         // response body cap. Default: 20MB.
	// CacheBustParam is the query parameter overwritten with the request
	// time. Default: "t".
	CacheBustParam string
	UserAgent      string
	// URLValidator runs before every request. Default: guard.ValidateScheme.
	URLValidator func(string) error
	Client       *http.Client
	Logger       *slog.Logger
	// Now is the clock for cache-buster values. Default: time.Now.
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 20 << 20
	}
	if c.CacheBustParam == "" {
		c.CacheBustParam = "t"
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"
	}
	if c.URLValidator == nil {
		c.URLValidator = guard.ValidateScheme
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Fetcher issues cache-busted GETs.
type Fetcher struct {
	client *http.Client
	config Config

	mu       sync.Mutex
	lastBust int64
}

// New creates a Fetcher. Redirect targets are validated like the requested URL.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	client := cfg.Client
	if client == nil {
		validate := cfg.URLValidator
		client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
				ForceAttemptHTTP2: true,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		}
	}
	return &Fetcher{client: client, config: cfg}
}

// Bust returns rawURL with param set to value, replacing any existing value.
func Bust(rawURL, param string, value int64) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("fetcher: parse %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Set(param, strconv.FormatInt(value, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// nextBust returns the current epoch milliseconds, bumped so that it is
// strictly greater than the previous value handed out.
func (f *Fetcher) nextBust() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.config.Now().UnixMilli()
	if v <= f.lastBust {
		v = f.lastBust + 1
	}
	f.lastBust = v
	return v
}

// Fetch downloads rawURL and returns the full body. Non-2xx responses fail
// with *FetchError. There is no retry; the next tick is the retry.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.config.URLValidator(rawURL); err != nil {
		return nil, fmt.Errorf("fetcher: URL rejected: %w", err)
	}

	target, err := Bust(rawURL, f.config.CacheBustParam, f.nextBust())
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Cache-Control", "no-cache, no-store, max-age=0")
	req.Header.Set("Pragma", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{Status: resp.StatusCode, URL: target}
	}

	body, err := guard.LimitedReadAll(resp.Body, f.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("fetcher: read body: %w", err)
	}

	f.config.Logger.Debug("fetcher: fetched",
		"url", target, "status", resp.StatusCode,
		"size", len(body), "content_type", resp.Header.Get("Content-Type"))
	return body, nil
}
