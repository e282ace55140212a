// Package event defines the records emitted once per capture tick.
// Sinks (stdout, webhook, index, metrics) and any in-process observer
// import this package to consume them; the capture engine never reads them back.
package event

import (
	"encoding/json"
	"time"
)

// Outcome classifies one tick.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"      // file written
	OutcomeFailed  Outcome = "failed"  // fetch or write failed, archive has a gap
	OutcomeSkipped Outcome = "skipped" // session was stopping
)

// Source records where the fetched URL came from.
type Source string

const (
	SourceLive     Source = "live"     // read from the page
	SourceFallback Source = "fallback" // configured default
)

// Stage names the step of a tick that failed.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StagePersist Stage = "persist"
	StageTick    Stage = "tick" // recovered panic
)

// Capture is the outcome of one tick.
type Capture struct {
	ID         string  `json:"id"`  // UUIDv7
	Seq        uint64  `json:"seq"` // tick number, starting at 1
	Outcome    Outcome `json:"outcome"`
	Source     Source  `json:"source,omitempty"`
	URL        string  `json:"url,omitempty"`
	Path       string  `json:"path,omitempty"` // relative to the archive root
	Bytes      int     `json:"bytes,omitempty"`
	Stage      Stage   `json:"stage,omitempty"`
	Error      string  `json:"error,omitempty"`
	Timestamp  int64   `json:"timestamp"` // epoch milliseconds of the tick's "now"
	DurationMs int64   `json:"duration_ms"`
}

// Time returns the tick timestamp as a time.Time in UTC.
func (c Capture) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// OK reports whether the tick wrote a file.
func (c Capture) OK() bool {
	return c.Outcome == OutcomeOK
}

// Marshal serialises a Capture to JSON.
func Marshal(c *Capture) ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserialises a Capture from JSON.
func Unmarshal(data []byte) (*Capture, error) {
	var c Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
