package livecam

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yihou/highway-crawler/livecam/internal/index"
	"github.com/yihou/highway-crawler/livecam/internal/sink"
)

// Sink receives one capture event per tick.
type Sink = sink.Sink

// Index is the SQLite capture index. It is a Sink.
type Index = index.Store

// IndexStats summarises the index.
type IndexStats = index.Stats

// Metrics exports tick counters to Prometheus. It is a Sink.
type Metrics = sink.Metrics

// CaptureFunc is called in-process for each event.
type CaptureFunc = sink.Func

// NewStdoutSink creates a JSON-lines sink. A nil w means os.Stdout.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink. Delivery and its retries run
// on the sink's own goroutine; Send only queues.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process sink.
func NewCallbackSink(fn CaptureFunc) Sink {
	return sink.NewCallback(fn)
}

// OpenIndex opens or creates the capture index at path.
func OpenIndex(path string) (*Index, error) {
	return index.Open(path)
}

// NewMetricsSink registers the livecam collectors on reg.
func NewMetricsSink(reg prometheus.Registerer) (*Metrics, error) {
	return sink.NewMetrics(reg)
}

// SinksFromConfig builds the configured sinks. The index, when configured,
// is also returned so it can back the status server; the first index entry
// wins. An unknown type is an error, as in Config.Validate. On error every
// sink already opened is closed.
func SinksFromConfig(cfgs []SinkConfig, logger *slog.Logger) ([]Sink, *Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		sinks []Sink
		idx   *Index
	)
	for i, sc := range cfgs {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, logger))
		case "index":
			store, err := OpenIndex(sc.Path)
			if err != nil {
				sink.NewRouter(logger, sinks...).Close()
				return nil, nil, fmt.Errorf("livecam: sinks[%d]: %w", i, err)
			}
			if idx == nil {
				idx = store
			}
			sinks = append(sinks, store)
		default:
			sink.NewRouter(logger, sinks...).Close()
			return nil, nil, fmt.Errorf("livecam: sinks[%d]: unknown type %q", i, sc.Type)
		}
	}
	return sinks, idx, nil
}
