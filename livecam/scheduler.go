package livecam

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yihou/highway-crawler/livecam/event"
	"github.com/yihou/highway-crawler/livecam/internal/status"
)

// State is the scheduler lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Scheduler drives a Session: one tick, then a fixed wait, until stopped.
// Ticks never overlap, and a tick in flight when Stop is called runs to
// completion. The page is released exactly once, before Run returns.
type Scheduler struct {
	session *Session
	page    Page

	pageURL         string
	selector        string
	navigateTimeout time.Duration
	readyTimeout    time.Duration
	interval        time.Duration
	maxCaptures     int
	clock           Clock
	logger          *slog.Logger

	state   atomic.Int32
	started atomic.Bool
	looping atomic.Bool

	stopOnce    sync.Once
	wake        chan struct{}
	releaseOnce sync.Once
	done        chan struct{}

	mu     sync.Mutex
	reason string
	last   *event.Capture
}

// New builds a Scheduler in the Idle state.
func New(opts Options) (*Scheduler, error) {
	opts.defaults()
	if opts.PageURL == "" {
		return nil, fmt.Errorf("livecam: empty page url")
	}
	sess, err := NewSession(opts)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		session:         sess,
		page:            opts.Page,
		pageURL:         opts.PageURL,
		selector:        opts.Selector,
		navigateTimeout: opts.NavigateTimeout,
		readyTimeout:    opts.ReadyTimeout,
		interval:        opts.Interval,
		maxCaptures:     opts.MaxCaptures,
		clock:           opts.Clock,
		logger:          opts.Logger,
		wake:            make(chan struct{}),
		done:            make(chan struct{}),
	}, nil
}

// Session returns the session driven by the scheduler.
func (s *Scheduler) Session() *Session { return s.session }

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Count returns the number of files written so far.
func (s *Scheduler) Count() uint64 { return s.session.Count() }

// Done is closed once the page has been released.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// StopReason returns the reason given to the first Stop call.
func (s *Scheduler) StopReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Last returns the most recent tick event, or nil before the first tick.
func (s *Scheduler) Last() *event.Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	ev := *s.last
	return &ev
}

// Report implements the status server's reporter.
func (s *Scheduler) Report() status.Report {
	return status.Report{
		State:       s.State().String(),
		Ticks:       s.session.Ticks(),
		Captures:    s.session.Count(),
		MaxCaptures: s.maxCaptures,
		StopReason:  s.StopReason(),
		Last:        s.Last(),
	}
}

// Start creates the archive root, navigates to the page and waits for the
// image element. On failure the page is released, the state becomes
// Stopped and a *StartupError is returned. A Stop or ctx cancellation
// during startup makes Start release the page and return nil.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if s.session.Stopping() {
		s.finish()
		return nil
	}

	if err := s.startup(ctx); err != nil {
		interrupted := s.session.Stopping() || ctx.Err() != nil
		s.finish()
		if interrupted {
			s.logger.Info("livecam: startup interrupted", "error", err)
			return nil
		}
		s.logger.Error("livecam: startup failed", "stage", err.Stage, "error", err.Err)
		return err
	}

	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		s.finish()
		return nil
	}
	s.logger.Info("livecam: running",
		"page", s.pageURL, "root", s.session.Root(),
		"interval", s.interval, "max_captures", s.maxCaptures)
	return nil
}

func (s *Scheduler) startup(ctx context.Context) *StartupError {
	root := s.session.Root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return &StartupError{Stage: "archive", Err: &PersistenceError{Op: "mkdir", Path: root, Err: err}}
	}

	navCtx, cancel := context.WithTimeout(ctx, s.navigateTimeout)
	defer cancel()
	if err := s.page.Navigate(navCtx, s.pageURL); err != nil {
		return &StartupError{Stage: "navigate", Err: err}
	}

	readyCtx, cancelReady := context.WithTimeout(ctx, s.readyTimeout)
	defer cancelReady()
	if err := s.page.WaitElement(readyCtx, s.selector); err != nil {
		return &StartupError{Stage: "ready", Err: err}
	}
	return nil
}

// Run starts the scheduler if it is Idle, then ticks until Stop is called,
// ctx is cancelled or the capture ceiling is reached. Cancelling ctx is a
// stop request: the tick in flight finishes on a detached context bounded
// by its own timeouts. Run returns after the page is released; the only
// error is a startup failure.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.started.Load() {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}
	if !s.looping.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer s.finish()

	unwatch := context.AfterFunc(ctx, func() { s.Stop("context cancelled") })
	defer unwatch()

	tickCtx := context.WithoutCancel(ctx)
	for s.shouldContinue() {
		out := s.session.Tick(tickCtx)
		s.record(out.Capture)
		if out.CeilingReached {
			s.Stop(fmt.Sprintf("reached %d captures", s.maxCaptures))
			break
		}
		if !s.sleep() {
			break
		}
	}
	return nil
}

func (s *Scheduler) shouldContinue() bool {
	return s.State() == StateRunning && !s.session.Stopping()
}

// sleep waits one interval. It returns false when woken by Stop.
func (s *Scheduler) sleep() bool {
	select {
	case <-s.wake:
		return false
	case <-s.clock.After(s.interval):
		return true
	}
}

func (s *Scheduler) record(ev event.Capture) {
	s.mu.Lock()
	s.last = &ev
	s.mu.Unlock()
}

// Stop asks the scheduler to stop. It never blocks on the tick in flight
// and is safe to call any number of times from any goroutine; only the
// first reason is kept. Stopping a scheduler that was never started
// releases the page immediately.
func (s *Scheduler) Stop(reason string) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()

		s.session.stopping.Store(true)
		s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
		s.state.CompareAndSwap(int32(StateIdle), int32(StateStopping))
		close(s.wake)
		s.logger.Info("livecam: stopping", "reason", reason, "captures", s.session.Count())

		if !s.started.Load() {
			s.finish()
		}
	})
}

// Wait blocks until the page is released or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish moves to Stopped, releasing the page and closing sinks once.
// Release errors are logged and swallowed.
func (s *Scheduler) finish() {
	s.releaseOnce.Do(func() {
		s.session.stopping.Store(true)
		s.state.Store(int32(StateStopping))
		if err := s.page.Close(); err != nil {
			s.logger.Warn("livecam: release page failed", "error", err)
		}
		s.session.closeSinks()
		s.state.Store(int32(StateStopped))
		close(s.done)
		s.logger.Info("livecam: stopped",
			"captures", s.session.Count(), "ticks", s.session.Ticks(), "reason", s.StopReason())
	})
}

var _ status.Reporter = (*Scheduler)(nil)
