// Package status serves a read-only HTTP view of a running capture session.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yihou/highway-crawler/idgen"
	"github.com/yihou/highway-crawler/livecam/event"
	"github.com/yihou/highway-crawler/livecam/internal/index"
)

// Report is the point-in-time state of a session.
type Report struct {
	State       string         `json:"state"`
	Ticks       uint64         `json:"ticks"`
	Captures    uint64         `json:"captures"`
	MaxCaptures int            `json:"max_captures"`
	StopReason  string         `json:"stop_reason,omitempty"`
	Last        *event.Capture `json:"last,omitempty"`
}

// Reporter produces Reports. Implemented by the scheduler.
type Reporter interface {
	Report() Report
}

// History lists recent capture events, newest first, and totals over all
// of them. Implemented by the index sink.
type History interface {
	Recent(ctx context.Context, limit int) ([]event.Capture, error)
	Stats(ctx context.Context) (index.Stats, error)
}

// Handlers configures the router. Reporter is required; History and
// Gatherer disable their routes when nil.
type Handlers struct {
	Reporter Reporter
	History  History
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	IDs      idgen.Generator // request IDs. Default: idgen.Default.
}

// NewRouter builds the status routes.
func NewRouter(h Handlers) http.Handler {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if h.IDs == nil {
		h.IDs = idgen.Default
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(headToGet)
	r.Use(noStore)
	r.Use(requestLog(h.Logger, h.IDs))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, h.Reporter.Report())
	})

	if h.History != nil {
		r.Get("/captures", func(w http.ResponseWriter, req *http.Request) {
			limit := 50
			if s := req.URL.Query().Get("limit"); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil || n <= 0 || n > 1000 {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be 1..1000"})
					return
				}
				limit = n
			}
			caps, err := h.History.Recent(req.Context(), limit)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			if caps == nil {
				caps = []event.Capture{}
			}
			writeJSON(w, http.StatusOK, caps)
		})

		r.Get("/captures/stats", func(w http.ResponseWriter, req *http.Request) {
			st, err := h.History.Stats(req.Context())
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, st)
		})
	}

	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Server is the status HTTP listener.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// Listen binds addr and serves h in a background goroutine.
func Listen(addr string, h http.Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status: serve failed", "error", err)
		}
	}()
	logger.Info("status: listening", "addr", ln.Addr().String())
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown stops the listener, waiting up to the context deadline for
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
