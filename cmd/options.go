package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/attendance-engine/internal/attendance"
	"github.com/kozaktomas/attendance-engine/internal/database"
	"github.com/kozaktomas/attendance-engine/internal/engine"
	"github.com/spf13/cobra"
)

// addIdentifyFlags registers the flags shared by identify, replay and scan.
func addIdentifyFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "auto", "Attendance mode: auto, checkin, checkout")
	cmd.Flags().Int64("option-id", 0, "Restrict candidates to this class option (0 = all)")
	cmd.Flags().String("year-level", "", "Restrict candidates to this year level")
	cmd.Flags().Int64("session-id", 0, "Attendance session; its class overrides --option-id and --year-level")
	cmd.Flags().Bool("json", false, "Output as JSON")
}

// identifyOptions builds engine options from the shared flags.
func identifyOptions(cmd *cobra.Command) (engine.Options, error) {
	mode, err := attendance.ParseMode(mustGetString(cmd, "mode"))
	if err != nil {
		return engine.Options{}, err
	}
	opts := engine.Options{
		Mode: mode,
		Scope: database.Scope{
			OptionID:  mustGetInt64(cmd, "option-id"),
			YearLevel: mustGetString(cmd, "year-level"),
		},
	}
	if id := mustGetInt64(cmd, "session-id"); id > 0 {
		opts.SessionID = &id
	}
	return opts, nil
}

// printResult prints one identification result.
func printResult(res engine.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Request:\t%s\n", res.RequestID)
	fmt.Fprintf(w, "Outcome:\t%s\n", res.Outcome)
	fmt.Fprintf(w, "Recognized:\t%t\n", res.Recognized)
	if res.PersonRef != nil {
		fmt.Fprintf(w, "Person:\t%s (%s, %s #%d)\n",
			res.PersonRef.DisplayName, res.PersonRef.ReferenceCode, res.PersonRef.Kind, res.PersonRef.ID)
	}
	if res.ConfidencePercent != nil {
		fmt.Fprintf(w, "Confidence:\t%.2f%% (%s)\n", *res.ConfidencePercent, res.ConfidenceLevel)
	}
	if res.Method != "" {
		fmt.Fprintf(w, "Method:\t%s\n", res.Method)
	}
	fmt.Fprintf(w, "Action:\t%s\n", res.Action)
	if res.Reason != "" {
		fmt.Fprintf(w, "Reason:\t%s\n", res.Reason)
	}
	fmt.Fprintf(w, "Message:\t%s\n", res.Message)
	w.Flush()
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
