package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/grafana/pyroscope-go"
)

// newLogger builds the structured logger for diagnostics. The level string is
// expected to have passed validateRootFlags.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	_ = lvl.UnmarshalText([]byte(level))
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// startProfiler starts continuous profiling when a server URL is configured.
// The returned function stops it and is never nil.
func startProfiler(serverURL, runID string, logger *slog.Logger) func() {
	if serverURL == "" {
		return func() {}
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "feedrace",
		ServerAddress:   serverURL,
		Tags:            map[string]string{"run": runID},
		Logger:          pyroscopeLogger{logger: logger},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		logger.Warn("profiler not started", slog.String("error", err.Error()))
		return func() {}
	}

	return func() { _ = profiler.Stop() }
}

// pyroscopeLogger routes the profiler's printf-style logs into slog.
type pyroscopeLogger struct {
	logger *slog.Logger
}

func (p pyroscopeLogger) Infof(format string, args ...any) {
	p.logger.Debug("pyroscope", slog.String("msg", fmt.Sprintf(format, args...)))
}

func (p pyroscopeLogger) Debugf(format string, args ...any) {
	p.logger.Debug("pyroscope", slog.String("msg", fmt.Sprintf(format, args...)))
}

func (p pyroscopeLogger) Errorf(format string, args ...any) {
	p.logger.Warn("pyroscope", slog.String("msg", fmt.Sprintf(format, args...)))
}
