package livecam

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yihou/highway-crawler/idgen"
	"github.com/yihou/highway-crawler/livecam/event"
)

const testPageURL = "https://visitaso.com/livecam/030/view4x.html"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakePage serves a fixed attribute value.
type fakePage struct {
	mu       sync.Mutex
	src      string
	srcErr   error
	panicMsg string
	navErr   error
	waitErr  error
	closeErr error

	navigated []string
	closes    atomic.Int32
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return p.navErr
}

func (p *fakePage) WaitElement(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

func (p *fakePage) Attribute(_ context.Context, _, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	return p.src, p.srcErr
}

func (p *fakePage) URL(context.Context) (string, error) { return testPageURL, nil }

func (p *fakePage) Close() error {
	p.closes.Add(1)
	return p.closeErr
}

func (p *fakePage) setSrc(src string) {
	p.mu.Lock()
	p.src = src
	p.mu.Unlock()
}

// fakeClock advances only when the scheduler waits, so a run of any
// length completes instantly.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock(t0 time.Time) *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// stuckClock never fires, so only Stop ends a wait.
type stuckClock struct{ fakeClock }

func (c *stuckClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

// imageServer serves fake JPEG bytes and records every request.
type imageServer struct {
	*httptest.Server
	failNext atomic.Int32

	mu    sync.Mutex
	paths []string
	busts []string
}

func newImageServer(t *testing.T) *imageServer {
	t.Helper()
	s := &imageServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.paths = append(s.paths, r.URL.Path)
		s.busts = append(s.busts, r.URL.Query().Get("t"))
		s.mu.Unlock()
		if s.failNext.Add(-1) >= 0 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("\xff\xd8\xff" + r.URL.Path))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *imageServer) requests() (paths, busts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...), append([]string(nil), s.busts...)
}

// eventLog collects events through a callback sink.
type eventLog struct {
	mu     sync.Mutex
	events []event.Capture
}

func (l *eventLog) sink() Sink {
	return NewCallbackSink(func(_ context.Context, ev event.Capture) error {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
		return nil
	})
}

func (l *eventLog) all() []event.Capture {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event.Capture(nil), l.events...)
}

func testOptions(t *testing.T, page Page, clk Clock, fallback string) Options {
	t.Helper()
	return Options{
		Page:        page,
		PageURL:     testPageURL,
		FallbackURL: fallback,
		Root:        t.TempDir(),
		Prefix:      "aso",
		Clock:       clk,
		IDs:         idgen.Sequence("cap"),
		Logger:      discard,
	}
}

// archived lists the files under root relative to it, skipping temp files.
func archived(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(files)
	return files
}
