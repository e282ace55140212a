package livecam

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite"

	"github.com/yihou/highway-crawler/livecam/event"
)

// camSite mimics a live-cam page whose image element points at a relative
// path, plus the image and a fallback frame.
func camSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/livecam/030/view4x.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><body><img id="main_image" src="images/image10.jpg?123"></body></html>`)
	})
	mux.HandleFunc("/livecam/030/images/image10.jpg", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("\xff\xd8\xfflive"))
	})
	mux.HandleFunc("/livecam/030/view4x.jpg", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("\xff\xd8\xfffallback"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFromConfig_HTTPPage(t *testing.T) {
	// WHAT: a config-built scheduler in http mode reads the relative src
	// from served HTML, archives one frame and reports it to every sink.
	// WHY: exercises page, locator, fetcher, archive, index and metrics
	// together without a browser.
	srv := camSite(t)
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Browser.Mode = "http"
	cfg.Target.PageURL = srv.URL + "/livecam/030/view4x.html"
	cfg.Target.FallbackURL = srv.URL + "/livecam/030/view4x.jpg"
	cfg.Archive.Root = filepath.Join(dir, "aso_snapshots")
	cfg.Archive.Prefix = "aso"
	cfg.Schedule.MaxCaptures = 1
	cfg.Sinks = []SinkConfig{{Type: "index", Path: filepath.Join(dir, "captures.db")}}

	sinks, idx, err := SinksFromConfig(cfg.Sinks, discard)
	if err != nil {
		t.Fatal(err)
	}
	if idx == nil {
		t.Fatal("index sink not returned")
	}
	reg := prometheus.NewRegistry()
	metrics, err := NewMetricsSink(reg)
	if err != nil {
		t.Fatal(err)
	}
	sinks = append(sinks, metrics)

	sched, err := FromConfig(context.Background(), cfg, discard, sinks...)
	if err != nil {
		t.Fatal(err)
	}
	// The scheduler closes its sinks on stop; read the index before that.
	var last event.Capture
	sched.session.sinks.Add(NewCallbackSink(func(ctx context.Context, ev event.Capture) error {
		last = ev
		stats, err := idx.Stats(ctx)
		if err != nil {
			return err
		}
		if stats.Total != 1 || stats.OK != 1 {
			t.Errorf("index stats = %+v", stats)
		}
		return nil
	}))

	if err := sched.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !last.OK() || last.Source != event.SourceLive {
		t.Fatalf("event = %+v", last)
	}
	if last.URL != srv.URL+"/livecam/030/images/image10.jpg?123" {
		t.Errorf("url = %q", last.URL)
	}
	files := archived(t, cfg.Archive.Root)
	if len(files) != 1 || !strings.HasPrefix(filepath.Base(files[0]), "aso-") {
		t.Errorf("files = %v", files)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var ticks float64
	for _, mf := range mfs {
		if mf.GetName() == "livecam_ticks_total" {
			for _, m := range mf.GetMetric() {
				ticks += m.GetCounter().GetValue()
			}
		}
	}
	if ticks != 1 {
		t.Errorf("livecam_ticks_total = %v", ticks)
	}
}

func TestFromConfig_Invalid(t *testing.T) {
	cfg := DefaultConfig()
	_, err := FromConfig(context.Background(), cfg, discard)
	var se *StartupError
	if !errors.As(err, &se) || se.Stage != "config" {
		t.Fatalf("err = %v", err)
	}

	cfg.Target.PageURL = "https://example.com/view.html"
	cfg.Target.FallbackURL = "https://example.com/view.jpg"
	cfg.Browser.Mode = "firefox"
	if _, err := FromConfig(context.Background(), cfg, discard); !errors.As(err, &se) || se.Stage != "browser" {
		t.Fatalf("err = %v", err)
	}
}

func TestSinksFromConfig_UnknownRejected(t *testing.T) {
	// WHAT: an unknown sink type fails here exactly as it fails Validate.
	// WHY: callers that skip Validate must not silently lose a sink.
	sinks, idx, err := SinksFromConfig([]SinkConfig{{Type: "stdout"}, {Type: "carrier-pigeon"}}, nil)
	if err == nil {
		t.Fatal("expected error for unknown sink type")
	}
	if !strings.Contains(err.Error(), `sinks[1]: unknown type "carrier-pigeon"`) {
		t.Errorf("err = %v", err)
	}
	if sinks != nil || idx != nil {
		t.Errorf("sinks = %v, idx = %v", sinks, idx)
	}

	cfg := DefaultConfig()
	cfg.Target.PageURL = "https://example.com/cam"
	cfg.Target.FallbackURL = "https://example.com/cam.jpg"
	cfg.Sinks = []SinkConfig{{Type: "carrier-pigeon"}}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted an unknown sink type")
	}
}

func TestServeStatus(t *testing.T) {
	srv := newImageServer(t)
	page := &fakePage{src: srv.URL + "/cam.jpg"}
	sched := newTestScheduler(t, page, newFakeClock(time.Unix(1_700_000_000, 0)), srv, func(o *Options) {
		o.MaxCaptures = 1
	})
	if err := sched.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	st, err := ServeStatus("127.0.0.1:0", sched, nil, prometheus.NewRegistry(), discard)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Shutdown(context.Background())

	resp, err := http.Get("http://" + st.Addr() + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var rep StatusReport
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.State != "stopped" || rep.Captures != 1 {
		t.Errorf("report = %+v", rep)
	}

	// No index: /captures is not mounted.
	resp2, err := http.Get("http://" + st.Addr() + "/captures")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("/captures = %d", resp2.StatusCode)
	}
}

func TestServeStatus_IndexStats(t *testing.T) {
	// WHAT: with an index configured, /captures/stats reports its totals.
	// WHY: the status surface is how an operator checks a long unattended run.
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "captures.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()
	for _, ev := range []event.Capture{
		{ID: "a", Seq: 1, Outcome: event.OutcomeOK, Source: event.SourceLive, Bytes: 100, Timestamp: 1_700_000_000_000},
		{ID: "b", Seq: 2, Outcome: event.OutcomeFailed, Source: event.SourceFallback, Stage: event.StageFetch, Timestamp: 1_700_000_010_000},
	} {
		if err := idx.Send(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	srv := newImageServer(t)
	page := &fakePage{src: srv.URL + "/cam.jpg"}
	sched := newTestScheduler(t, page, newFakeClock(time.Unix(1_700_000_000, 0)), srv, nil)

	st, err := ServeStatus("127.0.0.1:0", sched, idx, nil, discard)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Shutdown(ctx)

	resp, err := http.Get("http://" + st.Addr() + "/captures/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("code = %d", resp.StatusCode)
	}
	var stats IndexStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.OK != 1 || stats.Failed != 1 || stats.Fallback != 1 || stats.Bytes != 100 {
		t.Errorf("stats = %+v", stats)
	}
}
