package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/yihou/highway-crawler/guard"
)

// Static is the browserless page: every lookup re-downloads the HTML and
// queries it with goquery. It suits pages that render the image tag
// server-side; script-driven pages need a Tab.
type Static struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	poll      time.Duration

	mu      sync.Mutex
	target  string // last navigated URL
	current string // final URL after redirects
	closed  bool
}

// StaticConfig configures a Static page.
type StaticConfig struct {
	Client       *http.Client
	UserAgent    string
	MaxBytes     int64         // HTML cap. Default: 5MB.
	PollInterval time.Duration // WaitElement re-fetch interval. Default: 1s.
}

// NewStatic creates a Static page.
func NewStatic(cfg StaticConfig) *Static {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5 << 20
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Static{
		client:    cfg.Client,
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
		poll:      cfg.PollInterval,
	}
}

// Navigate fetches url once to check it is reachable and records it.
func (s *Static) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	s.target = url
	s.mu.Unlock()
	_, err := s.load(ctx)
	return err
}

// WaitElement re-fetches the page until selector matches or ctx ends.
func (s *Static) WaitElement(ctx context.Context, selector string) error {
	for {
		doc, err := s.load(ctx)
		if err == nil && doc.Find(selector).Length() > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("browser: wait %s: %w (last error: %v)", selector, ctx.Err(), err)
			}
			return fmt.Errorf("browser: wait %s: %w", selector, ctx.Err())
		case <-time.After(s.poll):
		}
	}
}

// Attribute downloads the page and reads name from the first match.
func (s *Static) Attribute(ctx context.Context, selector, name string) (string, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", ErrNoElement
	}
	v, _ := sel.Attr(name)
	return v, nil
}

// URL returns the final URL of the last successful load.
func (s *Static) URL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return "", fmt.Errorf("browser: page not loaded")
	}
	return s.current, nil
}

// Close drops idle connections. Safe to call more than once.
func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.client.CloseIdleConnections()
	}
	return nil
}

func (s *Static) load(ctx context.Context) (*goquery.Document, error) {
	s.mu.Lock()
	target, closed := s.target, s.closed
	s.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("browser: page closed")
	}
	if target == "" {
		return nil, fmt.Errorf("browser: no page navigated")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: new request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browser: get %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("browser: get %s: HTTP %d", target, resp.StatusCode)
	}

	body, err := guard.LimitedReadAll(resp.Body, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("browser: read %s: %w", target, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("browser: parse %s: %w", target, err)
	}

	s.mu.Lock()
	s.current = resp.Request.URL.String()
	s.mu.Unlock()
	return doc, nil
}
