package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// attributeJS reads one attribute of the first element matching a selector,
// returning null when the element or the attribute is missing.
const attributeJS = `(sel, name) => {
	const el = document.querySelector(sel);
	return el ? el.getAttribute(name) : null;
}`

// ErrNoElement is returned by Attribute when the selector matches nothing.
var ErrNoElement = errors.New("browser: element not found")

// Tab is a Rod page owned by a single capture session. Closing the tab
// also shuts down the browser it runs in.
type Tab struct {
	page   *rod.Page
	mgr    *Manager
	router *rod.HijackRouter

	closeOnce sync.Once
	closeErr  error
}

// OpenTab starts the manager's browser and creates a blank stealth tab.
// Navigation is left to the caller.
func OpenTab(ctx context.Context, mgr *Manager) (*Tab, error) {
	b, err := mgr.Start(ctx)
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		mgr.Close()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if ua := mgr.cfg.UserAgent; ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			mgr.cfg.Logger.Warn("browser: set user agent failed", "error", err)
		}
	}

	return &Tab{
		page:   page,
		mgr:    mgr,
		router: applyResourceBlocking(page, mgr.cfg.ResourceBlocking),
	}, nil
}

// Navigate loads url and waits for the DOM to be ready.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	p := t.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		// Slow subresources are not fatal; WaitElement decides readiness.
		t.mgr.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// WaitElement blocks until selector matches an element or ctx ends.
func (t *Tab) WaitElement(ctx context.Context, selector string) error {
	if _, err := t.page.Context(ctx).Element(selector); err != nil {
		return fmt.Errorf("browser: wait %s: %w", selector, err)
	}
	return nil
}

// Attribute evaluates the attribute lookup in page context.
func (t *Tab) Attribute(ctx context.Context, selector, name string) (string, error) {
	res, err := t.page.Context(ctx).Eval(attributeJS, selector, name)
	if err != nil {
		return "", fmt.Errorf("browser: eval attribute: %w", err)
	}
	if res.Value.Nil() {
		return "", ErrNoElement
	}
	return res.Value.Str(), nil
}

// URL returns the page's current address, the base for relative srcs.
func (t *Tab) URL(ctx context.Context) (string, error) {
	info, err := t.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

// Close closes the tab and the browser. Later calls return the first result.
func (t *Tab) Close() error {
	t.closeOnce.Do(func() {
		var errs []error
		if t.router != nil {
			if err := t.router.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("browser: stop hijack: %w", err))
			}
		}
		if err := t.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("browser: close tab: %w", err))
		}
		if err := t.mgr.Close(); err != nil {
			errs = append(errs, err)
		}
		t.closeErr = errors.Join(errs...)
	})
	return t.closeErr
}
