package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/kozaktomas/attendance-engine/internal/capture"
	"github.com/kozaktomas/attendance-engine/internal/constants"
	"golang.org/x/sync/errgroup"
)

// ReplayProgress is reported after each capture.
type ReplayProgress struct {
	Current int
	Total   int
	Path    string
}

type ReplayOptions struct {
	Options
	Concurrency int
	OnProgress  func(ReplayProgress) // optional
}

// ReplayItem is the outcome for one capture file.
type ReplayItem struct {
	Path   string
	Result Result
	Err    error
}

type ReplayResult struct {
	Items    []ReplayItem // in input order
	Outcomes map[Outcome]int
}

// Replay identifies every capture in paths. Replays never write attendance.
// Per-file failures are reported in the items; only cancellation stops the run.
func (s *Service) Replay(ctx context.Context, paths []string, opts ReplayOptions) (*ReplayResult, error) {
	opts.DryRun = true
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = constants.DefaultReplayConcurrency
	}

	result := &ReplayResult{
		Items:    make([]ReplayItem, len(paths)),
		Outcomes: make(map[Outcome]int),
	}

	var (
		mu   sync.Mutex
		done int
	)
	report := func(path string) {
		if opts.OnProgress == nil {
			return
		}
		mu.Lock()
		done++
		current := done
		mu.Unlock()
		opts.OnProgress(ReplayProgress{Current: current, Total: len(paths), Path: path})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range paths {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			defer report(path)

			item := ReplayItem{Path: path}
			sample, err := capture.Open(path)
			if err != nil {
				item.Err = err
			} else {
				item.Result, item.Err = s.IdentifyCapture(gctx, sample, opts.Options)
			}
			result.Items[i] = item
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("replay canceled: %w", err)
	}

	for _, item := range result.Items {
		if item.Err != nil {
			result.Outcomes[OutcomeError]++
			continue
		}
		result.Outcomes[item.Result.Outcome]++
	}
	return result, nil
}
