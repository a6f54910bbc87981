package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geodensity/internal/export"
	"github.com/sells-group/geodensity/internal/pipeline"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Sample the record source and write the sampled rows as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd, cfg)
		if err := cfg.Validate("sample"); err != nil {
			return err
		}

		res, err := pipeline.Sample(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if err := export.WriteSampleCSV(out, res.Header, res.Records); err != nil {
			return eris.Wrap(err, "sample")
		}

		fmt.Fprintf(os.Stderr, "Sampled %d rows with %s strategy (scanned %d, malformed %d) -> %s\n",
			len(res.Records), res.Strategy, res.RowsScanned, res.Malformed, out)
		if res.FallbackReason != "" {
			fmt.Fprintf(os.Stderr, "Fallback reason: %s\n", res.FallbackReason)
		}
		return nil
	},
}

func init() {
	f := sampleCmd.Flags()
	f.String("source", "", "record source CSV (overrides source.path)")
	f.StringSlice("code-columns", nil, "location-code columns, origin first")
	f.Int("sample-size", 0, "target sample size")
	f.Int64("seed", 0, "random seed")
	f.String("out", "sample.csv", "output CSV path")
	rootCmd.AddCommand(sampleCmd)
}
