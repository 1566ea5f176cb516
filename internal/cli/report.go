package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/shivanshkc/feedrace/pkg/bench"
	"github.com/shivanshkc/feedrace/pkg/utils/miscutils"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// report is the final, printable result of a benchmark run.
type report struct {
	RunID       string          `json:"run_id"`
	Started     time.Time       `json:"started"`
	Ended       time.Time       `json:"ended"`
	Interrupted bool            `json:"interrupted"`
	TotalRaces  int64           `json:"total_transactions"`
	Pending     int             `json:"pending"`
	Expired     int             `json:"expired"`
	Ranking     []bench.Rank    `json:"ranking"`
	Stopped     []stoppedSource `json:"stopped,omitempty"`
}

// stoppedSource is a source whose listener exited before the window closed.
type stoppedSource struct {
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

// newReport builds the report from a finished (or interrupted) run.
func newReport(runID string, outcome bench.Outcome) (*report, error) {
	r := &report{
		RunID:       runID,
		Started:     outcome.Started,
		Ended:       outcome.Ended,
		Interrupted: outcome.Interrupted,
		TotalRaces:  outcome.Stats.TotalRaces,
		Pending:     outcome.Stats.Pending,
		Expired:     outcome.Stats.Expired,
		Ranking:     []bench.Rank{},
	}

	for _, exit := range outcome.Stopped {
		s := stoppedSource{Name: exit.Name}
		if exit.Err != nil {
			s.Error = exit.Err.Error()
		}
		r.Stopped = append(r.Stopped, s)
	}

	ranks, err := bench.Ranking(outcome.Stats)
	if err != nil && !errors.Is(err, bench.ErrNoRaces) {
		return nil, fmt.Errorf("failed to rank sources: %w", err)
	}
	if ranks != nil {
		r.Ranking = ranks
	}

	return r, nil
}

// render writes the report in the given output format.
func (r *report) render(w io.Writer, output string) error {
	if output == outputJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r)
	}

	r.renderText(w)
	return nil
}

func (r *report) renderText(w io.Writer) {
	if r.Interrupted {
		fmt.Fprintln(w, text.FgYellow.Sprint("[!] Interrupted, showing partial results."))
	}

	if r.TotalRaces == 0 {
		fmt.Fprintln(w, text.FgRed.Sprint("[-] No transactions detected."))
		r.renderStopped(w)
		return
	}

	printer := message.NewPrinter(language.English)
	fmt.Fprintln(w, printer.Sprintf("Total Transactions: %d", r.TotalRaces))

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Rank", "Name", "Came First", "Winrate", "Average Delay", "p50 Lag", "p90 Lag", "Duplicates"})
	for _, rank := range r.Ranking {
		tw.AppendRow(table.Row{
			rank.Position,
			rank.Name,
			printer.Sprintf("%d", rank.Wins),
			fmt.Sprintf("%.2f%%", rank.WinRate),
			fmt.Sprintf("%.2f ms", rank.AverageDelayMs),
			formatLag(rank.LagP50, rank.Losses),
			formatLag(rank.LagP90, rank.Losses),
			rank.Duplicates,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	tw.Render()

	if r.Pending > 0 || r.Expired > 0 {
		fmt.Fprintln(w, printer.Sprintf("Unresolved: %d pending, %d expired", r.Pending, r.Expired))
	}
	r.renderStopped(w)
}

func (r *report) renderStopped(w io.Writer) {
	for _, s := range r.Stopped {
		line := "[-] " + s.Name + " stopped early"
		if s.Error != "" {
			line += ": " + s.Error
		}
		fmt.Fprintln(w, text.FgRed.Sprint(line))
	}
}

// formatLag prints "-" for a source that never lost a race.
func formatLag(d time.Duration, losses int) string {
	if losses == 0 {
		return "-"
	}
	return miscutils.FormatDuration(d)
}
