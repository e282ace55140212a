package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/yihou/highway-crawler/livecam/event"
)

// envelope wraps every serialised event so consumers reading a mixed stream
// can dispatch on Type.
type envelope struct {
	Type string        `json:"type"`
	Data event.Capture `json:"data"`
}

func wrap(ev event.Capture) ([]byte, error) {
	return json.Marshal(envelope{Type: "capture", Data: ev})
}

// Stdout prints one JSON line per event, e.g. for piping into jq.
type Stdout struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdout writes to w, or os.Stdout when w is nil.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{w: w}
}

func (s *Stdout) Send(_ context.Context, ev event.Capture) error {
	line, err := wrap(ev)
	if err != nil {
		return fmt.Errorf("stdout: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(line)
	return err
}

func (s *Stdout) Close() error { return nil }
