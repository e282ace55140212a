package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yihou/highway-crawler/livecam/event"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("sink: closed")

// Webhook POSTs each event to a URL from its own goroutine. Send only
// enqueues: when the queue is full the event is dropped, so a slow or
// failing receiver never holds up a tick. Transport errors, 429 and 5xx
// are retried with doubling backoff while the sink is open; other statuses
// are final. The event ID is sent as X-Livecam-Event so receivers can drop
// duplicates.
type Webhook struct {
	url          string
	client       *http.Client
	retries      int
	backoff      time.Duration
	queueSize    int
	drainTimeout time.Duration
	logger       *slog.Logger

	queue   chan event.Capture
	closing chan struct{}
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets how many times a delivery is retried. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.retries = n }
}

// WithWebhookBackoff sets the first retry delay. Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookClient replaces the default 10s-timeout client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// WithWebhookQueue sets how many events may wait for delivery. Default: 64.
func WithWebhookQueue(n int) WebhookOption {
	return func(w *Webhook) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithWebhookDrainTimeout bounds how long Close waits for queued events.
// Default: 2s.
func WithWebhookDrainTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) {
		if d > 0 {
			w.drainTimeout = d
		}
	}
}

// WithWebhookLogger sets the logger. A nil logger is ignored.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWebhook creates a Webhook sink targeting url and starts its sender.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:          url,
		client:       &http.Client{Timeout: 10 * time.Second},
		retries:      3,
		backoff:      time.Second,
		queueSize:    64,
		drainTimeout: 2 * time.Second,
		logger:       slog.Default(),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	w.queue = make(chan event.Capture, w.queueSize)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	go w.loop()
	return w
}

// Send queues ev for delivery. It never blocks.
func (w *Webhook) Send(_ context.Context, ev event.Capture) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.queue <- ev:
		return nil
	default:
		w.dropped.Add(1)
		return fmt.Errorf("webhook: queue full, seq %d dropped", ev.Seq)
	}
}

func (w *Webhook) loop() {
	defer close(w.done)
	for ev := range w.queue {
		if err := w.deliver(ev); err != nil {
			w.failed.Add(1)
			w.logger.Warn("webhook: event not delivered", "seq", ev.Seq, "error", err)
			continue
		}
		w.delivered.Add(1)
	}
}

func (w *Webhook) deliver(ev event.Capture) error {
	body, err := wrap(ev)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}

	delay := w.backoff
	var lastErr error
	for attempt := 1; attempt <= w.retries+1; attempt++ {
		retry, err := w.post(ev.ID, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt > w.retries {
			break
		}
		w.logger.Warn("webhook: delivery failed, retrying",
			"seq", ev.Seq, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-w.closing:
			return fmt.Errorf("webhook: seq %d abandoned on close: %w", ev.Seq, lastErr)
		}
		delay *= 2
	}
	return fmt.Errorf("webhook: seq %d not delivered: %w", ev.Seq, lastErr)
}

// post sends one attempt and reports whether a failure is worth retrying.
func (w *Webhook) post(id string, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(w.ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if id != "" {
		req.Header.Set("X-Livecam-Event", id)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return true, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("status %d", resp.StatusCode)
	}
}

// Close stops accepting events and gives each queued event one more
// attempt, without backoff. Requests still running after the drain timeout
// are cancelled.
func (w *Webhook) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		close(w.closing)
		w.mu.Unlock()

		timer := time.NewTimer(w.drainTimeout)
		defer timer.Stop()
		select {
		case <-w.done:
		case <-timer.C:
			w.cancel()
			<-w.done
			w.closeErr = fmt.Errorf("webhook: drain timed out after %s", w.drainTimeout)
		}
		w.cancel()
		w.logger.Info("webhook: closed",
			"delivered", w.delivered.Load(), "failed", w.failed.Load(), "dropped", w.dropped.Load())
	})
	return w.closeErr
}
