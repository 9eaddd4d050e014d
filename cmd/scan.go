package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Read a finger on the sensor and record attendance",
	Long: `Ask the fingerprint device to read a finger, resolve the sensor id to an
enrolled person and apply the attendance state machine.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	addIdentifyFlags(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := identifyOptions(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.requireGateway(); err != nil {
		return err
	}

	res, err := rt.service.ScanFingerprint(ctx, opts)
	if mustGetBool(cmd, "json") {
		if jsonErr := outputJSON(res); jsonErr != nil {
			return jsonErr
		}
	} else {
		printResult(res)
	}
	return err
}
