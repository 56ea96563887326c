package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/cytobridge/client/internal/export"
	"github.com/cytobridge/client/internal/gating"
	"github.com/cytobridge/client/internal/service"
	"github.com/spf13/cobra"
)

var (
	gateX        string
	gateY        string
	gateClusters int
	gateAuto     bool
	gateOut      string
	gateCompress string
	gateFormats  []string
	gateService  string
)

var gateCmd = &cobra.Command{
	Use:   "gate FILE",
	Short: "Gate one file and write the results",
	Long: `Upload FILE to the gating service and write the gated events as CSV
together with PNG and HTML scatter plots of the chosen axes.

By default the service estimates the number of populations. Passing
--clusters switches to manual mode unless --auto is given explicitly.

Examples:
  cytobridge gate sample.fcs
  cytobridge gate sample.fcs --x FL1-A --y FL2-A --clusters 4
  cytobridge gate sample.fcs --out results --compress gzip --format csv`,
	Args: cobra.ExactArgs(1),
	RunE: runGate,
}

func init() {
	rootCmd.AddCommand(gateCmd)

	gateCmd.Flags().StringVar(&gateX, "x", "", "X axis channel (default from config)")
	gateCmd.Flags().StringVar(&gateY, "y", "", "Y axis channel (default from config)")
	gateCmd.Flags().IntVar(&gateClusters, "clusters", 0, fmt.Sprintf("Manual population count (%d-%d)", gating.MinClusters, gating.MaxClusters))
	gateCmd.Flags().BoolVar(&gateAuto, "auto", true, "Let the service detect the population count")
	gateCmd.Flags().StringVarP(&gateOut, "out", "o", ".", "Output directory")
	gateCmd.Flags().StringVar(&gateCompress, "compress", "none", "CSV compression: none, gzip or zstd")
	gateCmd.Flags().StringSliceVar(&gateFormats, "format", []string{"csv", "png", "html"}, "Outputs to write")
	gateCmd.Flags().StringVar(&gateService, "service", "", "Gating service base URL (overrides service.base_url)")
}

// gateSelectionPatch turns the command line into a selection update.
func gateSelectionPatch(cmd *cobra.Command) (service.SelectionPatch, error) {
	var patch service.SelectionPatch
	if gateX != "" {
		patch.X = &gateX
	}
	if gateY != "" {
		patch.Y = &gateY
	}
	if cmd.Flags().Changed("clusters") {
		patch.Clusters = &gateClusters
		if !cmd.Flags().Changed("auto") {
			manual := false
			patch.AutoDetect = &manual
		}
	}
	if cmd.Flags().Changed("auto") {
		patch.AutoDetect = &gateAuto
	}
	return patch, patch.Validate()
}

func runGate(cmd *cobra.Command, args []string) error {
	codec, err := export.ParseCodec(gateCompress)
	if err != nil {
		return err
	}
	patch, err := gateSelectionPatch(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if gateService != "" {
		cfg.Service.BaseURL = gateService
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	st, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := st.service
	sess := st.registry.Create()
	id := sess.ID()
	if _, err := svc.UpdateSelection(id, patch); err != nil {
		return err
	}
	if _, err := svc.Upload(id, filepath.Base(path), data); err != nil {
		return err
	}

	sel := sess.Selection()
	mode := "auto"
	if !sel.AutoDetect {
		mode = fmt.Sprintf("manual, %d populations", sel.ClusterCount)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Gating %s on %s vs %s (%s)...\n", path, sel.X, sel.Y, mode)

	snap, err := svc.Run(context.Background(), id)
	if err != nil {
		return fmt.Errorf("analysis failed: %s", snap.Status.Message)
	}

	if err := os.MkdirAll(gateOut, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	written, err := writeGateOutputs(cmd, svc, id, codec)
	if err != nil {
		return err
	}

	legend, err := svc.Legend(id)
	if err != nil {
		return err
	}
	printLegend(cmd, snap.Selection, legend)
	for _, f := range written {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", f)
	}
	return nil
}

func writeGateOutputs(cmd *cobra.Command, svc *service.GatingService, id string, codec export.Codec) ([]string, error) {
	var written []string
	for _, format := range gateFormats {
		var (
			data []byte
			name string
			err  error
		)
		switch strings.ToLower(strings.TrimSpace(format)) {
		case "csv":
			var ok bool
			data, name, ok, err = svc.Export(id, codec)
			if err == nil && !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), "No events returned; skipping CSV")
				continue
			}
		case service.FormatPNG, service.FormatHTML:
			data, err = svc.Plot(id, format)
			name = plotFilename(svc, id, format)
		default:
			return written, fmt.Errorf("unknown output format %q", format)
		}
		if err != nil {
			return written, err
		}

		target := filepath.Join(gateOut, name)
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", target, err)
		}
		written = append(written, target)
	}
	return written, nil
}

func plotFilename(svc *service.GatingService, id, format string) string {
	sess, err := svc.Session(id)
	if err != nil {
		return "plot." + format
	}
	base := strings.TrimSuffix(gating.ExportFilename(sess.Selection().ClusterCount), ".csv")
	return base + "." + format
}

func printLegend(cmd *cobra.Command, sel gating.Selection, legend []service.LegendItem) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Populations: %d (x=%s, y=%s)\n", len(legend), sel.X, sel.Y)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POPULATION\tCOLOR\tEVENTS\tFRACTION\tCENTROID")
	for _, item := range legend {
		centroid := "-"
		if item.X != nil && item.Y != nil {
			centroid = fmt.Sprintf("(%.4g, %.4g)", *item.X, *item.Y)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.1f%%\t%s\n", item.Label, item.Color, item.Count, item.Fraction*100, centroid)
	}
	tw.Flush()
}
