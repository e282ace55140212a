package locator

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakePage struct {
	value   string
	err     error
	base    string
	baseErr error
	block   bool
}

func (p *fakePage) Attribute(ctx context.Context, selector, name string) (string, error) {
	if p.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return p.value, p.err
}

func (p *fakePage) URL(ctx context.Context) (string, error) {
	return p.base, p.baseErr
}

func TestResolve_RelativeSrc(t *testing.T) {
	l := New(Locator{})
	page := &fakePage{value: "images/image10.jpg?1699999", base: "https://visitaso.com/livecam/030/view4x.html"}

	got, ok := l.Resolve(context.Background(), page)
	if !ok {
		t.Fatal("expected resolution")
	}
	if want := "https://visitaso.com/livecam/030/images/image10.jpg?1699999"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolve_AbsoluteSrc(t *testing.T) {
	l := New(Locator{})
	page := &fakePage{value: "https://cdn.example.com/cam.jpg", base: "https://example.com/view.html"}
	got, ok := l.Resolve(context.Background(), page)
	if !ok || got != "https://cdn.example.com/cam.jpg" {
		t.Errorf("got %q, %v", got, ok)
	}
}

func TestResolve_Misses(t *testing.T) {
	// WHAT: every failure mode reports false instead of an error.
	// WHY: fallback policy belongs to the capture tick.
	cases := map[string]*fakePage{
		"read error": {err: errors.New("no element"), base: "https://example.com/"},
		"empty":      {value: "   ", base: "https://example.com/"},
		"no base":    {value: "a.jpg", baseErr: errors.New("detached")},
		"data uri":   {value: "data:image/png;base64,AAAA", base: "https://example.com/"},
	}
	l := New(Locator{})
	for name, page := range cases {
		if got, ok := l.Resolve(context.Background(), page); ok {
			t.Errorf("%s: got %q, want miss", name, got)
		}
	}
}

func TestResolve_Timeout(t *testing.T) {
	l := New(Locator{Timeout: 20 * time.Millisecond})
	start := time.Now()
	if _, ok := l.Resolve(context.Background(), &fakePage{block: true}); ok {
		t.Fatal("expected miss on timeout")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout not enforced")
	}
}

func TestDefaults(t *testing.T) {
	l := New(Locator{})
	if l.Selector != "#main_image" || l.Attribute != "src" {
		t.Errorf("defaults = %q/%q", l.Selector, l.Attribute)
	}
}
