package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/shivanshkc/feedrace/internal/config"
	"github.com/shivanshkc/feedrace/pkg/bench"
	"github.com/shivanshkc/feedrace/pkg/feed"
	"github.com/shivanshkc/feedrace/pkg/race"
	"github.com/shivanshkc/feedrace/pkg/utils/miscutils"
)

var (
	benchDuration time.Duration
	benchAddress  string
	benchOutput   string
)

// benchCmd races every configured source for the configured window and prints
// the ranking.
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Race all configured sources and rank them.",
	Long: `Subscribes to every configured source with the same filter, matches transactions
by signature across the streams, and ranks the sources by how often they delivered first.`,
	Run: func(cmd *cobra.Command, args []string) {
		if message := validateBenchFlags(); message != "" {
			fmt.Println(message)
			os.Exit(1)
		}

		cfg, err := loadBenchConfig(cmd)
		if err != nil {
			fmt.Println(text.FgRed.Sprint("[-] ", err))
			os.Exit(1)
		}

		runID := uuid.NewString()
		logger := newLogger(os.Stderr, rootLogLevel).With(slog.String("run", runID))
		stopProfiler := startProfiler(rootPyroscopeURL, runID, logger)
		defer stopProfiler()

		// Keep stdout machine-readable in JSON mode.
		progress := io.Writer(os.Stdout)
		if benchOutput == outputJSON {
			progress = os.Stderr
		}

		r, err := runBench(cmd.Context(), benchParams{
			config:   cfg,
			runID:    runID,
			logger:   logger,
			progress: progress,
		})
		if r != nil {
			if rerr := r.render(os.Stdout, benchOutput); rerr != nil {
				logger.Error("failed to render report", slog.String("error", rerr.Error()))
			}
		}
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				fmt.Println(text.FgRed.Sprint("[-] ", err))
			}
			stopProfiler()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().DurationVarP(&benchDuration, "duration", "d",
		0, "Length of the benchmark window. Overrides the config file when set.")

	benchCmd.Flags().StringVarP(&benchAddress, "address", "a",
		"", "Account to watch. Overrides the config file when set.")

	benchCmd.Flags().StringVarP(&benchOutput, "output", "o",
		outputText, "Report format: text or json.")
}

// loadBenchConfig loads the config file, applies flag overrides and validates the result.
func loadBenchConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(rootConfigPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("duration") {
		cfg.Duration = benchDuration
	}
	if cmd.Flags().Changed("address") {
		cfg.Address = benchAddress
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// benchParams are the inputs of a single benchmark run.
type benchParams struct {
	// config must already be validated.
	config *config.Config
	runID  string
	logger *slog.Logger
	// progress receives the banner and countdown. Nil disables them.
	progress io.Writer
	// sourceOptions are extra dial options, keyed by source name.
	sourceOptions map[string][]feed.Option
}

// runBench races the configured sources and builds the report.
//
// When ctx is canceled mid-run the partial report is returned along with ctx's error.
func runBench(ctx context.Context, p benchParams) (*report, error) {
	table, err := race.New(p.config.SourceNames())
	if err != nil {
		return nil, fmt.Errorf("failed to create race table: %w", err)
	}

	filter := p.config.Filter()
	listeners := make([]bench.Listener, len(p.config.Sources))
	for i, src := range p.config.Sources {
		listeners[i] = feed.NewListener(src, filter, p.logger, p.sourceOptions[src.Name]...)
	}

	opts := bench.Options{
		Duration:   p.config.Duration,
		PendingTTL: p.config.PendingTTL,
		Logger:     p.logger,
	}
	if p.progress != nil {
		fmt.Fprintln(p.progress, text.FgBlue.Sprintf("[+] Testing %d sources for %s...", len(listeners), p.config.Duration))
		opts.Progress = func(remaining time.Duration) {
			fmt.Fprintf(p.progress, "\r[+] Time Left: %2ds", miscutils.CeilSeconds(remaining))
		}
	}

	outcome, runErr := bench.Run(ctx, table, listeners, opts)
	if p.progress != nil {
		fmt.Fprintln(p.progress)
	}
	if runErr != nil && !outcome.Interrupted {
		return nil, runErr
	}

	r, err := newReport(p.runID, outcome)
	if err != nil {
		return nil, err
	}
	return r, runErr
}
