// Package locator resolves the current image URL from a live page.
//
// The page mutates the element's src continuously, so every tick reads it
// afresh. A miss is not an error: Resolve reports false and the caller
// decides what to fetch instead.
package locator

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable is logged when the attribute cannot be read.
var ErrUnavailable = errors.New("locator: resource unavailable")

// Page is the slice of the page capability the locator needs.
type Page interface {
	Attribute(ctx context.Context, selector, name string) (string, error)
	URL(ctx context.Context) (string, error)
}

// Locator reads one attribute of one element.
type Locator struct {
	Selector  string        // CSS selector. Default: "#main_image".
	Attribute string        // Default: "src".
	Timeout   time.Duration // bound on the page read. Default: 5s.
	Logger    *slog.Logger
}

func (l *Locator) defaults() {
	if l.Selector == "" {
		l.Selector = "#main_image"
	}
	if l.Attribute == "" {
		l.Attribute = "src"
	}
	if l.Timeout <= 0 {
		l.Timeout = 5 * time.Second
	}
	if l.Logger == nil {
		l.Logger = slog.Default()
	}
}

// New returns a Locator with defaults applied.
func New(l Locator) *Locator {
	l.defaults()
	return &l
}

// Resolve returns the absolute URL held by the attribute, or false when the
// element is missing, the read fails or times out, or the value is empty.
func (l *Locator) Resolve(ctx context.Context, page Page) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	raw, err := page.Attribute(ctx, l.Selector, l.Attribute)
	if err != nil {
		l.miss("attribute read failed", err)
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		l.miss("attribute empty", nil)
		return "", false
	}

	base, err := page.URL(ctx)
	if err != nil {
		l.miss("page url unavailable", err)
		return "", false
	}

	abs, err := Absolute(base, raw)
	if err != nil {
		l.miss("unresolvable value", err)
		return "", false
	}
	return abs, true
}

func (l *Locator) miss(reason string, err error) {
	attrs := []any{"selector", l.Selector, "attribute", l.Attribute, "reason", reason}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	l.Logger.Debug(ErrUnavailable.Error(), attrs...)
}

// Absolute resolves ref against base. Relative values such as
// "images/image10.jpg?123" become absolute on the page's host.
func Absolute(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	u := b.ResolveReference(r)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("locator: resolved URL is not http(s): " + u.String())
	}
	return u.String(), nil
}
