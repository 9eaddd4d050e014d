package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/kozaktomas/attendance-engine/internal/constants"
	"github.com/kozaktomas/attendance-engine/internal/engine"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <dir>",
	Short: "Identify every capture in a directory without recording attendance",
	Long: `Run identification over a directory of stored captures and report the
outcome of each one. Replays never write attendance records, but every
comparison is written to the recognition log.

Examples:
  attendance-engine replay ./captures
  attendance-engine replay --concurrency 8 --json ./captures`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	addIdentifyFlags(replayCmd)
	replayCmd.Flags().Int("concurrency", constants.DefaultReplayConcurrency, "Number of captures identified in parallel")
	replayCmd.Flags().StringSlice("ext", []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}, "File extensions treated as captures")
}

// replayEntry is one line of JSON output.
type replayEntry struct {
	Path   string         `json:"path"`
	Result *engine.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// collectCaptures returns capture files under dir in lexical order.
func collectCaptures(dir string, exts []string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	slices.Sort(paths)
	return paths, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := identifyOptions(cmd)
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")

	paths, err := collectCaptures(args[0], mustGetStringSlice(cmd, "ext"))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Printf("No captures found in %s\n", args[0])
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Replaying captures"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("captures"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	result, err := rt.service.Replay(ctx, paths, engine.ReplayOptions{
		Options:     opts,
		Concurrency: mustGetInt(cmd, "concurrency"),
		OnProgress: func(engine.ReplayProgress) {
			if bar != nil {
				bar.Add(1)
			}
		},
	})
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		entries := make([]replayEntry, len(result.Items))
		for i, item := range result.Items {
			entries[i] = replayEntry{Path: item.Path}
			if item.Err != nil {
				entries[i].Error = item.Err.Error()
				continue
			}
			res := item.Result
			entries[i].Result = &res
		}
		return outputJSON(entries)
	}

	printReplayTable(result)
	return nil
}

// printReplayTable prints one line per capture followed by outcome totals.
func printReplayTable(result *engine.ReplayResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CAPTURE\tOUTCOME\tPERSON\tCONFIDENCE\tMETHOD")
	fmt.Fprintln(w, "-------\t-------\t------\t----------\t------")

	for _, item := range result.Items {
		if item.Err != nil {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t%s\n", item.Path, engine.OutcomeError, item.Err)
			continue
		}
		person := "-"
		if item.Result.PersonRef != nil {
			person = item.Result.PersonRef.ReferenceCode
		}
		confidence := "-"
		if item.Result.ConfidencePercent != nil {
			confidence = fmt.Sprintf("%.2f%%", *item.Result.ConfidencePercent)
		}
		method := "-"
		if item.Result.Method != "" {
			method = item.Result.Method
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", item.Path, item.Result.Outcome, person, confidence, method)
	}
	w.Flush()

	outcomes := make([]engine.Outcome, 0, len(result.Outcomes))
	for o := range result.Outcomes {
		outcomes = append(outcomes, o)
	}
	slices.Sort(outcomes)

	fmt.Printf("\nSummary:\n")
	for _, o := range outcomes {
		fmt.Printf("  %-18s %d\n", string(o)+":", result.Outcomes[o])
	}
}
