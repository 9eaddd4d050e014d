package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/attendance-engine/internal/capture"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Identify a face capture and record attendance",
	Long: `Identify a face capture file against the enrolled references and apply
the attendance state machine to the recognized person.

Examples:
  # Check in or out whoever is on the capture
  attendance-engine identify capture.jpg

  # Only consider one class, without writing attendance
  attendance-engine identify --option-id 3 --year-level 2 --dry-run capture.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	addIdentifyFlags(identifyCmd)
	identifyCmd.Flags().Bool("dry-run", false, "Identify without writing attendance")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := identifyOptions(cmd)
	if err != nil {
		return err
	}
	opts.DryRun = mustGetBool(cmd, "dry-run")

	ctx := context.Background()
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	sample, err := capture.Open(args[0])
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}

	res, err := rt.service.IdentifyCapture(ctx, sample, opts)
	if mustGetBool(cmd, "json") {
		if jsonErr := outputJSON(res); jsonErr != nil {
			return jsonErr
		}
	} else {
		printResult(res)
	}
	return err
}
