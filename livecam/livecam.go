// Package livecam archives frames from a live camera page.
//
// A Scheduler opens the page once, then on a fixed interval reads the
// current image URL from a script-mutated element, downloads it with a
// cache buster and writes it to root/YYYY-MM-DD/prefix-TIMESTAMP.jpg.
// Failed ticks leave a gap in the archive and never stop the loop. Each
// tick emits one event.Capture to the configured sinks.
//
//	page, _ := livecam.OpenPage(ctx, cfg.Browser, logger)
//	sched, _ := livecam.New(livecam.Options{Page: page, PageURL: u, FallbackURL: f})
//	err := sched.Run(ctx)
package livecam
