package livecam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/yihou/highway-crawler/guard"
	"github.com/yihou/highway-crawler/idgen"
	"github.com/yihou/highway-crawler/livecam/event"
	"github.com/yihou/highway-crawler/livecam/internal/archive"
	"github.com/yihou/highway-crawler/livecam/internal/fetcher"
	"github.com/yihou/highway-crawler/livecam/internal/locator"
	"github.com/yihou/highway-crawler/livecam/internal/sink"
)

// Resource is the image URL chosen for one tick and where it came from.
type Resource struct {
	URL    string
	Source event.Source
}

// Outcome is the result of one tick. Ticks never return errors past their
// boundary; Err is informational.
type Outcome struct {
	Capture        event.Capture
	Err            error
	CeilingReached bool // this tick's write reached MaxCaptures
}

// Skipped reports whether the tick did nothing because the session was stopping.
func (o Outcome) Skipped() bool { return o.Capture.Outcome == event.OutcomeSkipped }

// Written reports whether the tick stored a file.
func (o Outcome) Written() bool { return o.Capture.Outcome == event.OutcomeOK }

func (o *Outcome) fail(stage event.Stage, err error) {
	o.Capture.Outcome = event.OutcomeFailed
	o.Capture.Stage = stage
	o.Capture.Error = err.Error()
	o.Err = err
}

// Session holds everything one capture tick needs. Ticks must not run
// concurrently; the stopping flag and counters may be read from anywhere.
type Session struct {
	page        Page
	fallbackURL string
	maxCaptures uint64

	locator *locator.Locator
	fetcher *fetcher.Fetcher
	archive *archive.Builder
	sinks   *sink.Router
	ids     idgen.Generator
	clock   Clock
	logger  *slog.Logger

	ticks    atomic.Uint64
	count    atomic.Uint64
	stopping atomic.Bool
}

// NewSession validates opts and assembles a Session. It does not touch the
// page or the filesystem.
func NewSession(opts Options) (*Session, error) {
	opts.defaults()
	if opts.Page == nil {
		return nil, errors.New("livecam: nil page")
	}
	if err := guard.ValidateScheme(opts.FallbackURL); err != nil {
		return nil, fmt.Errorf("livecam: fallback url: %w", err)
	}
	if opts.MaxCaptures < 0 {
		return nil, fmt.Errorf("livecam: negative max captures %d", opts.MaxCaptures)
	}
	b, err := archive.New(opts.Root, opts.Prefix, opts.Extension)
	if err != nil {
		return nil, err
	}

	validate := guard.ValidateScheme
	if opts.BlockPrivate {
		validate = guard.ValidateURL
	}

	return &Session{
		page:        opts.Page,
		fallbackURL: opts.FallbackURL,
		maxCaptures: uint64(opts.MaxCaptures),
		locator: locator.New(locator.Locator{
			Selector:  opts.Selector,
			Attribute: opts.Attribute,
			Timeout:   opts.LocateTimeout,
			Logger:    opts.Logger,
		}),
		fetcher: fetcher.New(fetcher.Config{
			Timeout:        opts.FetchTimeout,
			MaxBytes:       opts.MaxBytes,
			CacheBustParam: opts.CacheBustParam,
			UserAgent:      opts.UserAgent,
			URLValidator:   validate,
			Client:         opts.HTTPClient,
			Logger:         opts.Logger,
			Now:            opts.Clock.Now,
		}),
		archive: b,
		sinks:   sink.NewRouter(opts.Logger, opts.Sinks...),
		ids:     opts.IDs,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}, nil
}

// Count returns the number of files written.
func (s *Session) Count() uint64 { return s.count.Load() }

// Ticks returns the number of ticks started, including failed ones.
func (s *Session) Ticks() uint64 { return s.ticks.Load() }

// Stopping reports whether the session refuses new ticks.
func (s *Session) Stopping() bool { return s.stopping.Load() }

// Root returns the archive root.
func (s *Session) Root() string { return s.archive.Root() }

// Locate reads the current image URL from the page, substituting the
// fallback URL when the page yields nothing.
func (s *Session) Locate(ctx context.Context) Resource {
	if u, ok := s.locator.Resolve(ctx, s.page); ok {
		return Resource{URL: u, Source: event.SourceLive}
	}
	s.logger.Info("livecam: image not found on page, using fallback", "url", s.fallbackURL)
	return Resource{URL: s.fallbackURL, Source: event.SourceFallback}
}

// Tick performs one capture: locate, build the archive path, fetch, write.
// Every failure is logged and reported in the Outcome; the archive simply
// has a gap for this tick. Exactly one event is emitted per call.
func (s *Session) Tick(ctx context.Context) (out Outcome) {
	now := s.clock.Now()
	out.Capture = event.Capture{
		ID:        s.ids(),
		Seq:       s.ticks.Add(1),
		Timestamp: now.UnixMilli(),
	}

	defer func() {
		if r := recover(); r != nil {
			out.CeilingReached = false
			out.fail(event.StageTick, fmt.Errorf("livecam: tick panic: %v", r))
			s.logger.Error("livecam: tick panicked", "seq", out.Capture.Seq, "panic", r)
		}
		out.Capture.DurationMs = s.clock.Now().Sub(now).Milliseconds()
		s.emit(ctx, out.Capture)
	}()

	if s.stopping.Load() {
		out.Capture.Outcome = event.OutcomeSkipped
		return out
	}

	res := s.Locate(ctx)
	out.Capture.Source = res.Source
	out.Capture.URL = res.URL

	dir, name, err := s.archive.Build(now)
	if err != nil {
		out.fail(event.StagePersist, err)
		s.logger.Error("livecam: archive path failed", "seq", out.Capture.Seq, "error", err)
		return out
	}

	data, err := s.fetcher.Fetch(ctx, res.URL)
	if err != nil {
		out.fail(event.StageFetch, err)
		s.logger.Warn("livecam: fetch failed", "seq", out.Capture.Seq, "url", res.URL, "error", err)
		return out
	}

	if err := s.archive.Write(dir, name, data); err != nil {
		out.fail(event.StagePersist, err)
		s.logger.Error("livecam: write failed", "seq", out.Capture.Seq, "error", err)
		return out
	}

	n := s.count.Add(1)
	out.Capture.Outcome = event.OutcomeOK
	out.Capture.Path = s.archive.Rel(dir, name)
	out.Capture.Bytes = len(data)
	s.logger.Info("livecam: saved",
		"path", out.Capture.Path, "bytes", len(data), "source", res.Source, "count", n)

	if s.maxCaptures > 0 && n >= s.maxCaptures {
		out.CeilingReached = true
	}
	return out
}

func (s *Session) emit(ctx context.Context, ev event.Capture) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("livecam: sink panicked", "seq", ev.Seq, "panic", r)
		}
	}()
	s.sinks.Send(ctx, ev)
}

func (s *Session) closeSinks() {
	if err := s.sinks.Close(); err != nil {
		s.logger.Warn("livecam: close sinks", "error", err)
	}
}
