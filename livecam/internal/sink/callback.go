package sink

import (
	"context"

	"github.com/yihou/highway-crawler/livecam/event"
)

// Func is called for each event, in-process.
type Func func(ctx context.Context, ev event.Capture) error

// Callback delivers events through a Go function call.
type Callback struct {
	fn Func
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn Func) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, ev event.Capture) error {
	if c.fn != nil {
		return c.fn(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
