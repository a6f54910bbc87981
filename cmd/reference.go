package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/geodensity/internal/pipeline"
	"github.com/sells-group/geodensity/internal/refgeo"
)

var referenceCmd = &cobra.Command{
	Use:   "reference [path]",
	Short: "Load a reference geography and report what was loaded and skipped",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			cfg.Reference.Path = args[0]
		}
		f := cmd.Flags()
		if f.Changed("format") {
			cfg.Reference.Format, _ = f.GetString("format")
		}
		if f.Changed("code-field") {
			cfg.Reference.CodeField, _ = f.GetString("code-field")
		}
		if err := cfg.Validate("reference"); err != nil {
			return err
		}

		ref, rep, err := pipeline.LoadReference(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		preview, _ := f.GetInt("preview")
		formatReferenceReport(os.Stdout, ref, rep, preview)
		return nil
	},
}

// formatReferenceReport writes load counts, skip reasons and a preview of
// loaded codes with their centroids.
func formatReferenceReport(out io.Writer, ref *refgeo.Geography, rep *refgeo.Report, preview int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Source:\t%s\n", rep.Source)
	_, _ = fmt.Fprintf(w, "Format:\t%s\n", rep.Format)
	_, _ = fmt.Fprintf(w, "Loaded:\t%d\n", rep.Loaded)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", rep.SkippedTotal())
	for _, reason := range rep.SkipReasons() {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", reason, rep.Skipped[reason])
	}
	if preview > 0 && ref.Len() > 0 {
		_, _ = fmt.Fprintln(w, "\nCODE\tLAT\tLON")
		for _, code := range ref.Codes(preview) {
			p, _ := ref.Lookup(code)
			_, _ = fmt.Fprintf(w, "%s\t%.5f\t%.5f\n", code, p.Lat, p.Lon)
		}
	}
	_ = w.Flush()
}

func init() {
	referenceCmd.Flags().String("format", "", "force the file format (csv, xlsx, geojson, shapefile)")
	referenceCmd.Flags().String("code-field", "", "code column or property name")
	referenceCmd.Flags().Int("preview", 5, "number of loaded entries to print")
	rootCmd.AddCommand(referenceCmd)
}
