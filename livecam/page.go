package livecam

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yihou/highway-crawler/livecam/internal/browser"
)

// Page is the live page the session reads image URLs from. The session owns
// it exclusively and closes it exactly once when it stops.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitElement(ctx context.Context, selector string) error
	Attribute(ctx context.Context, selector, name string) (string, error)
	URL(ctx context.Context) (string, error)
	Close() error
}

var (
	_ Page = (*browser.Tab)(nil)
	_ Page = (*browser.Static)(nil)
)

// OpenPage creates a blank page for the configured browser mode. Headless
// and headful modes launch (or attach to) Chrome; http mode needs no browser.
func OpenPage(ctx context.Context, cfg BrowserConfig, logger *slog.Logger) (Page, error) {
	mode, err := browser.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if mode == browser.ModeHTTP {
		return browser.NewStatic(browser.StaticConfig{UserAgent: cfg.UserAgent}), nil
	}

	mgr := browser.NewManager(browser.Config{
		Mode:             mode,
		RemoteURL:        cfg.Remote,
		UserAgent:        cfg.UserAgent,
		ResourceBlocking: cfg.ResourceBlocking,
		NoSandbox:        cfg.NoSandbox,
		XvfbDisplay:      cfg.XvfbDisplay,
		Logger:           logger,
	})
	tab, err := browser.OpenTab(ctx, mgr)
	if err != nil {
		return nil, fmt.Errorf("livecam: open tab: %w", err)
	}
	return tab, nil
}
