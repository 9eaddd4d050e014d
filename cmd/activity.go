package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/attendance-engine/internal/constants"
	"github.com/spf13/cobra"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "List today's attendance, newest event first",
	Args:  cobra.NoArgs,
	RunE:  runActivity,
}

func init() {
	rootCmd.AddCommand(activityCmd)

	activityCmd.Flags().Int("limit", constants.DefaultActivityLimit, "Maximum number of records")
	activityCmd.Flags().Bool("json", false, "Output as JSON")
}

func runActivity(cmd *cobra.Command, args []string) error {
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

	entries, err := rt.service.RecentActivity(ctx, mustGetInt(cmd, "limit"))
	if err != nil {
		return fmt.Errorf("load recent activity: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No attendance recorded today")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REG NO\tNAME\tKIND\tCHECK IN\tCHECK OUT\tMETHOD\tCONFIDENCE")
	fmt.Fprintln(w, "------\t----\t----\t--------\t---------\t------\t----------")
	for _, e := range entries {
		checkOut := "-"
		if e.Record.CheckOut != nil {
			checkOut = e.Record.CheckOut.Format("15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%.2f%%\n",
			e.ReferenceCode, e.DisplayName, e.Record.Person.Kind,
			e.Record.CheckIn.Format("15:04:05"), checkOut, e.Record.Method, e.Record.Confidence)
	}
	return w.Flush()
}
