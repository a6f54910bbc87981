package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geodensity/internal/config"
	"github.com/sells-group/geodensity/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline and write density grids and routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		applyRunFlags(cmd, cfg)
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		runID, _ := cmd.Flags().GetString("run-id")
		writeSample, _ := cmd.Flags().GetBool("write-sample")
		requireData, _ := cmd.Flags().GetBool("require-data")

		result, err := pipeline.New(cfg, st).Run(ctx, pipeline.Options{
			RunID:       runID,
			WriteSample: writeSample || cfg.Output.WriteSample,
		})
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", result.RunID),
			zap.Bool("empty", result.Empty),
			zap.Int("geocoded", result.Summary.Geocoded),
			zap.Strings("files", result.Files),
		)

		if err := printRunResult(os.Stdout, result); err != nil {
			return err
		}
		if requireData {
			return pipeline.RequireData(result)
		}
		return nil
	},
}

// applyRunFlags copies explicitly set flags over the loaded config.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("source") {
		c.Source.Path, _ = f.GetString("source")
	}
	if f.Changed("reference") {
		c.Reference.Path, _ = f.GetString("reference")
	}
	if f.Changed("code-columns") {
		c.Source.CodeColumns, _ = f.GetStringSlice("code-columns")
	}
	if f.Changed("out") {
		c.Output.Dir, _ = f.GetString("out")
	}
	if f.Changed("format") {
		c.Output.Formats, _ = f.GetStringSlice("format")
	}
	if f.Changed("overlay") {
		c.Overlay.Path, _ = f.GetString("overlay")
	}
	if f.Changed("sample-size") {
		c.Pipeline.SampleSize, _ = f.GetInt("sample-size")
	}
	if f.Changed("seed") {
		c.Pipeline.RandomSeed, _ = f.GetInt64("seed")
	}
	if f.Changed("no-jitter") {
		noJitter, _ := f.GetBool("no-jitter")
		c.Pipeline.Jitter = !noJitter
	}
	if f.Changed("grid") {
		c.Pipeline.Grid.Mode, _ = f.GetString("grid")
	}
}

// runOutput is the JSON printed after a run.
type runOutput struct {
	RunID       string   `json:"run_id"`
	Empty       bool     `json:"empty"`
	Summary     any      `json:"summary"`
	Diagnostics any      `json:"diagnostics"`
	Files       []string `json:"files"`
}

func printRunResult(w io.Writer, r *pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(runOutput{
		RunID:       r.RunID,
		Empty:       r.Empty,
		Summary:     r.Summary,
		Diagnostics: r.Diagnostics,
		Files:       r.Files,
	})
}

func init() {
	f := runCmd.Flags()
	f.String("source", "", "record source CSV (overrides source.path)")
	f.String("reference", "", "reference geography file (overrides reference.path)")
	f.StringSlice("code-columns", nil, "location-code columns, origin first")
	f.String("out", "", "output directory (overrides output.dir)")
	f.StringSlice("format", nil, "output formats: csv, yaml, xlsx")
	f.String("overlay", "", "heavy-hitters overlay CSV")
	f.Int("sample-size", 0, "target sample size")
	f.Int64("seed", 0, "random seed")
	f.Bool("no-jitter", false, "skip the privacy jitter")
	f.String("grid", "", "grid bounds mode: fixed, dynamic or centered")
	f.String("run-id", "", "run id (generated when empty)")
	f.Bool("write-sample", false, "also write the sampled rows")
	f.Bool("require-data", false, "exit non-zero when nothing survives geocoding")
	rootCmd.AddCommand(runCmd)
}
