package livecam

import (
	"context"
	"log/slog"

	"github.com/yihou/highway-crawler/livecam/internal/config"
)

// Config is the top-level livecam configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls how the page is driven.
type BrowserConfig = config.BrowserConfig

// TargetConfig names the page, the element and the fallback image.
type TargetConfig = config.TargetConfig

// ArchiveConfig controls the on-disk layout.
type ArchiveConfig = config.ArchiveConfig

// ScheduleConfig controls tick pacing.
type ScheduleConfig = config.ScheduleConfig

// FetchConfig controls image downloads.
type FetchConfig = config.FetchConfig

// SinkConfig defines an event output.
type SinkConfig = config.SinkConfig

// StatusConfig controls the HTTP status listener.
type StatusConfig = config.StatusConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with defaults and no target.
func DefaultConfig() *Config {
	return config.Default()
}

// OptionsFromConfig maps a configuration onto Options. Page, sinks and
// clock are left to the caller.
func OptionsFromConfig(cfg *Config, logger *slog.Logger) Options {
	return Options{
		PageURL:         cfg.Target.PageURL,
		FallbackURL:     cfg.Target.FallbackURL,
		Selector:        cfg.Target.Selector,
		Attribute:       cfg.Target.Attribute,
		NavigateTimeout: cfg.Target.NavigateTimeout,
		ReadyTimeout:    cfg.Target.ReadyTimeout,
		LocateTimeout:   cfg.Target.LocateTimeout,
		Root:            cfg.Archive.Root,
		Prefix:          cfg.Archive.Prefix,
		Extension:       cfg.Archive.Extension,
		Interval:        cfg.Schedule.Interval,
		MaxCaptures:     cfg.Schedule.MaxCaptures,
		FetchTimeout:    cfg.Fetch.Timeout,
		MaxBytes:        cfg.Fetch.MaxBytes,
		CacheBustParam:  cfg.Fetch.CacheBustParam,
		UserAgent:       cfg.Fetch.UserAgent,
		BlockPrivate:    cfg.Fetch.BlockPrivate,
		Logger:          logger,
	}
}

// FromConfig validates cfg, opens the page and returns an Idle scheduler.
// The page is closed again if assembly fails.
func FromConfig(ctx context.Context, cfg *Config, logger *slog.Logger, sinks ...Sink) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &StartupError{Stage: "config", Err: err}
	}
	page, err := OpenPage(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, &StartupError{Stage: "browser", Err: err}
	}

	opts := OptionsFromConfig(cfg, logger)
	opts.Page = page
	opts.Sinks = sinks
	sched, err := New(opts)
	if err != nil {
		page.Close()
		return nil, &StartupError{Stage: "config", Err: err}
	}
	return sched, nil
}
