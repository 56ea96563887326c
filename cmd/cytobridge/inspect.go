package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cytobridge/client/internal/export"
	"github.com/spf13/cobra"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Summarize populations in an exported CSV",
	Long: `Read a gated CSV written by "gate" or the export endpoint and print the
event count per population. Gzip and zstd compressed files are detected
from their content.

Examples:
  cytobridge inspect CytoBridge_Gated_Results_3_Pops.csv
  cytobridge inspect results.csv.zst --json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Print the summary as JSON")
}

func runInspect(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	summary, err := export.Inspect(f)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	if inspectJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Fprintf(out, "Columns: %d  Events: %d  Populations: %d\n",
		len(summary.Columns), summary.Events, len(summary.Populations))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPOPULATION\tCOLOR\tEVENTS")
	for _, p := range summary.Populations {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", p.ID, p.Label, p.Color, p.Count)
	}
	return tw.Flush()
}
