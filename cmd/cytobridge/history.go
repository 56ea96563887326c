package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/cytobridge/client/internal/history"
	"github.com/spf13/cobra"
)

var (
	historySession string
	historyLimit   int
	historyJSON    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List journaled analysis runs",
	Long: `List analyses recorded in the run history database (history.path),
newest first. Runs made by "serve" and "gate" are both recorded.

Examples:
  cytobridge history
  cytobridge history --limit 5 --json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historySession, "session", "", "Only list runs of this session")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print runs as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.HistoryEnabled() {
		return fmt.Errorf("run history is disabled (history.enabled)")
	}

	store, err := history.NewStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(historySession, historyLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		if runs == nil {
			runs = []*history.Run{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tFILE\tAXES\tMODE\tOUTCOME\tEVENTS\tPOPS\tDURATION")
	for _, r := range runs {
		mode := "auto"
		if !r.AutoDetect {
			mode = fmt.Sprintf("k=%d", r.NPopulations)
		}
		outcome := string(r.Outcome)
		if r.Outcome == history.OutcomeFailed {
			outcome = fmt.Sprintf("failed (%s)", r.ErrorKind)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\t%s\t%d\t%d\t%s\n",
			r.FinishedAt.Local().Format(time.DateTime),
			r.FileName,
			r.ChannelX, r.ChannelY,
			mode,
			outcome,
			r.Events,
			r.Populations,
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
		)
	}
	return tw.Flush()
}
