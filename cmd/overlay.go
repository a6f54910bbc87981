package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geodensity/internal/overlay"
)

var overlayCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Manage the heavy-hitters overlay file",
}

var overlayDrainCmd = &cobra.Command{
	Use:   "drain [path]",
	Short: "Truncate an overlay file to its header row",
	Long:  "Removes every data row from an overlay CSV, keeping the header. Runs never do this on their own.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Overlay.Path
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return eris.New("overlay drain: no path given and overlay.path is not set")
		}

		n, err := overlay.Drain(path)
		if err != nil {
			return eris.Wrap(err, "overlay drain")
		}
		fmt.Fprintf(os.Stderr, "Drained %d rows from %s\n", n, path)
		return nil
	},
}

func init() {
	overlayCmd.AddCommand(overlayDrainCmd)
	rootCmd.AddCommand(overlayCmd)
}
