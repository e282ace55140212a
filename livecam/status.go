package livecam

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yihou/highway-crawler/livecam/internal/status"
)

// StatusServer serves /healthz, /status, /captures, /captures/stats and
// /metrics.
type StatusServer = status.Server

// StatusReport is the JSON body of /status.
type StatusReport = status.Report

// ServeStatus starts the status listener on addr. idx and g are optional.
func ServeStatus(addr string, sched *Scheduler, idx *Index, g prometheus.Gatherer, logger *slog.Logger) (*StatusServer, error) {
	h := status.Handlers{Reporter: sched, Gatherer: g}
	if idx != nil {
		h.History = idx
	}
	h.Logger = logger
	return status.Listen(addr, status.NewRouter(h), logger)
}
