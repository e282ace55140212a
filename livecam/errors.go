package livecam

import (
	"errors"
	"fmt"

	"github.com/yihou/highway-crawler/livecam/internal/archive"
	"github.com/yihou/highway-crawler/livecam/internal/fetcher"
	"github.com/yihou/highway-crawler/livecam/internal/locator"
)

// ErrLocatorUnavailable is logged when the page yields no image URL. It is
// never returned: the tick falls back to the configured URL.
var ErrLocatorUnavailable = locator.ErrUnavailable

// ErrAlreadyStarted is returned by Start or Run on a second call.
var ErrAlreadyStarted = errors.New("livecam: scheduler already started")

// FetchError reports a non-success HTTP status from the image host.
type FetchError = fetcher.FetchError

// PersistenceError reports a failed archive write.
type PersistenceError = archive.PersistenceError

// StartupError is fatal: the page could not be brought to a ready state.
// Stage is one of "config", "browser", "archive", "navigate", "ready".
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("livecam: startup %s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }
