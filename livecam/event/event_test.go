package event

import (
	"strings"
	"testing"
	"time"
)

func TestCaptureJSONFieldNames(t *testing.T) {
	c := &Capture{
		ID:        "0190-test",
		Seq:       3,
		Outcome:   OutcomeOK,
		Source:    SourceFallback,
		URL:       "https://example.com/cam.jpg?t=1",
		Path:      "2025-11-03/aso-2025-11-03T10-00-00-000Z.jpg",
		Bytes:     2048,
		Timestamp: 1762164000000,
	}
	data, err := Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"outcome":"ok"`, `"source":"fallback"`, `"bytes":2048`, `"seq":3`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("missing %s in %s", want, data)
		}
	}
	if strings.Contains(string(data), `"error"`) {
		t.Errorf("empty error should be omitted: %s", data)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *c {
		t.Errorf("roundtrip mismatch: %+v vs %+v", got, c)
	}
}

func TestCaptureTime(t *testing.T) {
	now := time.Date(2025, 11, 3, 10, 0, 0, 123e6, time.UTC)
	c := Capture{Timestamp: now.UnixMilli()}
	if !c.Time().Equal(now) {
		t.Errorf("Time() = %v, want %v", c.Time(), now)
	}
}

func TestCaptureOK(t *testing.T) {
	if !(Capture{Outcome: OutcomeOK}).OK() {
		t.Error("ok outcome should report OK")
	}
	if (Capture{Outcome: OutcomeFailed}).OK() {
		t.Error("failed outcome should not report OK")
	}
}
