package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/attendance-engine/internal/constants"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List the newest recognition log rows",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().Int("limit", constants.DefaultLogLimit, "Maximum number of rows")
	logsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	entries, err := rt.service.RecentRecognitions(ctx, mustGetInt(cmd, "limit"))
	if err != nil {
		return fmt.Errorf("load recognition logs: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tREQUEST\tSAMPLE\tMETHOD\tREG NO\tSCORE\tMATCHED\tDETAIL")
	fmt.Fprintln(w, "----\t-------\t------\t------\t------\t-----\t-------\t------")
	for _, e := range entries {
		refCode := "-"
		if e.ReferenceCode != "" {
			refCode = e.ReferenceCode
		}
		detail := "-"
		if e.Detail != "" {
			detail = e.Detail
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.4f\t%t\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.RequestID, e.SampleRef,
			e.Method, refCode, e.Score, e.Matched, detail)
	}
	return w.Flush()
}
