package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shivanshkc/feedrace/pkg/race"
)

// Listener streams one source's notifications into a race.Recorder.
// It subscribes once and never reconnects.
type Listener struct {
	source Source
	filter Filter
	logger *slog.Logger
	opts   []Option
}

// NewListener creates a Listener. A nil logger means slog.Default().
func NewListener(source Source, filter Filter, logger *slog.Logger, opts ...Option) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("source", source.Name), slog.String("endpoint", source.URL))
	return &Listener{source: source, filter: filter, logger: logger, opts: opts}
}

// Name is the source name.
func (l *Listener) Name() string { return l.source.Name }

// Listen subscribes and records one detection per transaction notification
// until the stream ends, fails, or ctx is done.
//
// A clean end of stream, and a recorder that stopped accepting detections,
// return nil. Failures wrap ErrConnection, ErrSubscription or ErrStream.
func (l *Listener) Listen(ctx context.Context, rec race.Recorder) error {
	sub, err := Subscribe(ctx, l.source, l.filter, l.opts...)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	l.logger.Info("subscribed")

	for {
		n, ok, err := sub.NextContext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if n.Err != nil {
			return l.source.wrap(ErrStream, n.Err)
		}

		result, err := rec.RecordDetection(n.Key, l.source.Name, n.ReceivedAt)
		switch {
		case errors.Is(err, race.ErrClosed):
			return nil
		case errors.Is(err, race.ErrDuplicateDetection):
			l.logger.Debug("duplicate notification dropped", slog.String("signature", n.Key))
		case err != nil:
			return fmt.Errorf("failed to record detection: %w", err)
		case result != nil:
			l.logger.Debug("race resolved",
				slog.String("signature", result.Key),
				slog.String("winner", result.Winner),
				slog.Float64("average_delay_ns", result.AverageDelayNanos))
		}
	}
}
