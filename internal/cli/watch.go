package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/shivanshkc/feedrace/internal/config"
	"github.com/shivanshkc/feedrace/pkg/feed"
)

var (
	watchSource string
	watchCount  int
)

// watchCmd tails a single source, which is handy for checking credentials and
// filters before a race.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the transactions a single source delivers.",
	Long:  "Subscribes to one configured source with the benchmark filter and prints every transaction it delivers.",
	Run: func(cmd *cobra.Command, args []string) {
		if message := validateWatchFlags(); message != "" {
			fmt.Println(message)
			os.Exit(1)
		}

		cfg, err := config.Load(rootConfigPath)
		if err != nil {
			fmt.Println(text.FgRed.Sprint("[-] ", err))
			os.Exit(1)
		}
		// A single source is enough to watch.
		if err := cfg.Validate(); err != nil && !errors.Is(err, config.ErrTooFewSources) {
			fmt.Println(text.FgRed.Sprint("[-] ", err))
			os.Exit(1)
		}

		src, ok := findSource(cfg, watchSource)
		if !ok {
			fmt.Println(text.FgRed.Sprintf("[-] No source named %q in %s", watchSource, rootConfigPath))
			os.Exit(1)
		}

		if err := watch(cmd.Context(), os.Stdout, src, cfg.Filter(), watchCount); err != nil {
			if !errors.Is(err, context.Canceled) {
				fmt.Println(text.FgRed.Sprint("[-] ", err))
				os.Exit(1)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchSource, "source", "s",
		"", "Name of the configured source to watch.")

	watchCmd.Flags().IntVarP(&watchCount, "count", "n",
		0, "Stop after this many transactions. Zero means until interrupted.")
}

func findSource(cfg *config.Config, name string) (feed.Source, bool) {
	for _, src := range cfg.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return feed.Source{}, false
}

// watch prints notifications from src until count of them were printed, the
// stream ends or ctx is done. A count of zero means no limit.
func watch(ctx context.Context, w io.Writer, src feed.Source, filter feed.Filter, count int, opts ...feed.Option) error {
	sub, err := feed.Subscribe(ctx, src, filter, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	fmt.Fprintln(w, text.FgBlue.Sprintf("[+] Watching %s for transactions mentioning %s...", src.Name, filter.Account))

	for printed := 0; count == 0 || printed < count; {
		n, ok, err := sub.NextContext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if n.Err != nil {
			return n.Err
		}

		printed++
		fmt.Fprintf(w, "%s %s %s\n",
			text.FgHiBlack.Sprint(n.ReceivedAt.Format("15:04:05.000")),
			text.FgGreen.Sprintf("slot=%d", n.Slot),
			n.Key)
	}
	return nil
}
