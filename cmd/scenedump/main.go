// Command scenedump composes one scene frame offline and prints its layers
// as JSON, for inspecting generator output without a browser.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/urbanscope/urbanscope/internal/compositor"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "scenedump",
		Short:         "Compose scene frames from the bundled dataset",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(frameCmd())
	rootCmd.AddCommand(layersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func frameCmd() *cobra.Command {
	var (
		opts    frameOptions
		toggles string
		pretty  bool
	)

	cmd := &cobra.Command{
		Use:   "frame",
		Short: "Print the composed layers of one frame",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("toggles") {
				t, err := parseToggles(toggles)
				if err != nil {
					return err
				}
				opts.Toggles = &t
			}
			frame, err := composeFrame(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), frame, pretty)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.Year, "year", 0, "year to show; the nearest sample is used (default: first sample)")
	flags.Float64Var(&opts.VisualTime, "visual-time", 0, "animation clock value")
	flags.StringVar(&opts.Mode, "mode", "dual", "visual mode: air, water or dual")
	flags.StringVar(&toggles, "toggles", "", "comma separated overlays to enable, e.g. density,stress,rivers (default: the standard set)")
	flags.BoolVar(&opts.Predicted, "predicted", false, "show the forecast series")
	flags.IntVar(&opts.ProgressTicks, "progress-ticks", 0, "prediction blend steps taken since entering the forecast")
	flags.IntVar(&opts.FocusCell, "focus", 0, "cell id to focus; 0 keeps the overview")
	flags.StringVar(&opts.ScenePath, "scene", "", "YAML scene tuning file")
	flags.BoolVar(&pretty, "pretty", false, "indent the JSON output")
	return cmd
}

func layersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "Print the layer catalog in paint order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), compositor.Catalog(), true)
		},
	}
}
