// Package sink delivers capture events to observers.
package sink

import (
	"context"

	"github.com/yihou/highway-crawler/livecam/event"
)

// Sink receives one event per tick. Implementations must not block the
// capture loop for long; a failing sink never fails the tick.
type Sink interface {
	Send(ctx context.Context, ev event.Capture) error
	Close() error
}
