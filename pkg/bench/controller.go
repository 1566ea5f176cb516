// Package bench runs a timed race between sources and ranks them.
package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shivanshkc/feedrace/pkg/race"
)

// Listener is a long-lived producer of detections for one source.
//
// Listen blocks until the listener's stream ends or fails, or ctx is done.
// A returned error is terminal for that listener only.
type Listener interface {
	Name() string
	Listen(ctx context.Context, rec race.Recorder) error
}

// Options configure a benchmark run.
type Options struct {
	// Duration is the length of the benchmark window. Required.
	Duration time.Duration
	// PendingTTL, when positive, purges pending entries older than this.
	PendingTTL time.Duration
	// Progress, when set, is called at the start and then once a second with the time left.
	Progress func(remaining time.Duration)
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ListenerExit records a listener that stopped before the window closed.
type ListenerExit struct {
	Name string
	Err  error
}

// Outcome is everything known when the benchmark window closes.
type Outcome struct {
	Stats   race.Stats
	Started time.Time
	Ended   time.Time
	// Interrupted is true when the parent context ended the window early.
	Interrupted bool
	// Stopped lists the listeners that exited during the window, in exit order.
	Stopped []ListenerExit
}

// Run starts every listener concurrently, waits for the window to close, then
// closes the table and returns its aggregates.
//
// The window is a soft cutoff: after it closes the table rejects detections, so
// the returned Stats are final even if listeners are still reading. Listeners are
// canceled when Run returns.
//
// If ctx ends the window early, the partial Outcome is returned together with ctx's error.
func Run(ctx context.Context, table *race.Table, listeners []Listener, opts Options) (Outcome, error) {
	if opts.Duration <= 0 {
		return Outcome{}, fmt.Errorf("benchmark duration must be positive, got %s", opts.Duration)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Context for managing listener goroutines.
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exits := make(chan ListenerExit, len(listeners))
	for _, l := range listeners {
		go func(l Listener) {
			err := l.Listen(listenCtx, table)
			exits <- ListenerExit{Name: l.Name(), Err: err}
		}(l)
	}

	started := time.Now()
	deadline := time.NewTimer(opts.Duration)
	defer deadline.Stop()

	var progress <-chan time.Time
	if opts.Progress != nil {
		opts.Progress(opts.Duration)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		progress = ticker.C
	}

	var prune <-chan time.Time
	if opts.PendingTTL > 0 {
		ticker := time.NewTicker(max(opts.PendingTTL/2, time.Millisecond))
		defer ticker.Stop()
		prune = ticker.C
	}

	outcome := Outcome{Started: started}
	running := len(listeners)

wait:
	for {
		select {
		case <-deadline.C:
			break wait
		case <-ctx.Done():
			outcome.Interrupted = true
			break wait
		case <-progress:
			opts.Progress(max(time.Until(started.Add(opts.Duration)), 0))
		case now := <-prune:
			if n := table.Prune(now.Add(-opts.PendingTTL)); n > 0 {
				logger.Debug("expired pending entries", slog.Int("count", n))
			}
		case exit := <-exits:
			running--
			outcome.Stopped = append(outcome.Stopped, exit)
			logListenerExit(logger, exit)
			if running == 0 {
				logger.Warn("all listeners stopped, waiting for the window to close")
			}
		}
	}

	// Stop consuming. Anything recorded from here on is rejected.
	table.Close()
	outcome.Ended = time.Now()
	outcome.Stats = table.Snapshot()

	if outcome.Interrupted {
		return outcome, ctx.Err()
	}
	return outcome, nil
}

func logListenerExit(logger *slog.Logger, exit ListenerExit) {
	switch {
	case exit.Err == nil:
		logger.Warn("listener stream ended", slog.String("source", exit.Name))
	case errors.Is(exit.Err, context.Canceled):
		logger.Debug("listener canceled", slog.String("source", exit.Name))
	default:
		logger.Error("listener stopped", slog.String("source", exit.Name), slog.String("error", exit.Err.Error()))
	}
}
