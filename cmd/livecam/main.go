// Command livecam archives frames from a live camera page.
//
// Usage:
//
//	livecam -config livecam.yaml
//	livecam -url https://visitaso.com/livecam/030/view4x.html \
//	        -fallback https://visitaso.com/livecam/030/view4x.jpg \
//	        -out aso_snapshots -prefix aso -interval 10s
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "modernc.org/sqlite"

	"github.com/yihou/highway-crawler/livecam"
)

type flags struct {
	config   string
	url      string
	selector string
	fallback string
	out      string
	prefix   string
	interval time.Duration
	max      int
	mode     string
	remote   string
	status   string
	index    string
	logLevel string
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "path to livecam.yaml config file")
	flag.StringVar(&f.url, "url", "", "live cam page URL")
	flag.StringVar(&f.selector, "selector", "", "CSS selector of the image element (default #main_image)")
	flag.StringVar(&f.fallback, "fallback", "", "image URL fetched when the page yields none")
	flag.StringVar(&f.out, "out", "", "archive root directory (default snapshots)")
	flag.StringVar(&f.prefix, "prefix", "", "file name prefix (default cam)")
	flag.DurationVar(&f.interval, "interval", 0, "time between captures (default 10s)")
	flag.IntVar(&f.max, "max", -1, "stop after this many captures, 0 = unbounded")
	flag.StringVar(&f.mode, "mode", "", "page driver: headless, headful or http")
	flag.StringVar(&f.remote, "remote", "", "DevTools WebSocket URL of an existing Chrome")
	flag.StringVar(&f.status, "status", "", "status server listen address, e.g. 127.0.0.1:9090")
	flag.StringVar(&f.index, "index", "", "SQLite capture index path")
	flag.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch f.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, f); err != nil {
		logger.Error("livecam: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		flag.Usage()
		return err
	}

	sinks, idx, err := livecam.SinksFromConfig(cfg.Sinks, logger)
	if err != nil {
		return fmt.Errorf("sinks: %w", err)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, livecam.NewStdoutSink(nil))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := livecam.NewMetricsSink(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	sinks = append(sinks, metrics)

	sched, err := livecam.FromConfig(ctx, cfg, logger, sinks...)
	if err != nil {
		for _, s := range sinks {
			s.Close()
		}
		return err
	}

	if cfg.Status.Listen != "" {
		st, err := livecam.ServeStatus(cfg.Status.Listen, sched, idx, reg, logger)
		if err != nil {
			sched.Stop("status listener failed")
			return fmt.Errorf("status: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			st.Shutdown(sctx)
		}()
	}

	if err := sched.Run(ctx); err != nil {
		return err
	}
	logger.Info("livecam: done", "captures", sched.Count(), "reason", sched.StopReason())
	return nil
}

// loadConfig reads the optional YAML file and applies flag overrides.
func loadConfig(f flags) (*livecam.Config, error) {
	cfg := livecam.DefaultConfig()
	if f.config != "" {
		var err error
		if cfg, err = livecam.LoadConfigFile(f.config); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if f.url != "" {
		cfg.Target.PageURL = f.url
	}
	if f.selector != "" {
		cfg.Target.Selector = f.selector
	}
	if f.fallback != "" {
		cfg.Target.FallbackURL = f.fallback
	}
	if f.out != "" {
		cfg.Archive.Root = f.out
	}
	if f.prefix != "" {
		cfg.Archive.Prefix = f.prefix
	}
	if f.interval > 0 {
		cfg.Schedule.Interval = f.interval
	}
	if f.max >= 0 {
		cfg.Schedule.MaxCaptures = f.max
	}
	if f.mode != "" {
		cfg.Browser.Mode = f.mode
	}
	if f.remote != "" {
		cfg.Browser.Remote = f.remote
	}
	if f.status != "" {
		cfg.Status.Listen = f.status
	}
	if f.index != "" {
		cfg.Sinks = append(cfg.Sinks, livecam.SinkConfig{Type: "index", Path: f.index})
	}
	if os.Geteuid() == 0 {
		cfg.Browser.NoSandbox = true
	}
	return cfg, nil
}
