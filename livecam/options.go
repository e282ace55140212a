package livecam

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yihou/highway-crawler/idgen"
)

// Options configures a Scheduler and the Session it drives. Page, PageURL
// and FallbackURL are required.
type Options struct {
	Page Page

	PageURL     string
	FallbackURL string // fetched when the page yields no URL
	Selector    string // Default: "#main_image".
	Attribute   string // Default: "src".

	NavigateTimeout time.Duration // Default: 60s.
	ReadyTimeout    time.Duration // wait for Selector after navigation. Default: 30s.
	LocateTimeout   time.Duration // per-tick attribute read. Default: 5s.

	Root      string // archive root. Default: "snapshots".
	Prefix    string // file name prefix. Default: "cam".
	Extension string // Default: ".jpg".

	Interval    time.Duration // between the end of one tick and the next. Default: 10s.
	MaxCaptures int           // successful writes before stopping. 0 = unbounded.

	FetchTimeout   time.Duration // Default: 30s.
	MaxBytes       int64         // Default: 20MB.
	CacheBustParam string        // Default: "t".
	UserAgent      string
	BlockPrivate   bool // refuse image URLs resolving to private addresses
	HTTPClient     *http.Client

	// Sinks receive one event per tick. They are closed when the session stops.
	Sinks []Sink

	IDs    idgen.Generator // Default: idgen.Default.
	Clock  Clock           // Default: SystemClock.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.NavigateTimeout <= 0 {
		o.NavigateTimeout = 60 * time.Second
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 30 * time.Second
	}
	if o.Selector == "" {
		o.Selector = "#main_image"
	}
	if o.Attribute == "" {
		o.Attribute = "src"
	}
	if o.Root == "" {
		o.Root = "snapshots"
	}
	if o.Prefix == "" {
		o.Prefix = "cam"
	}
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.IDs == nil {
		o.IDs = idgen.Default
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}
