// Package matcher picks the best enrolled candidate for a captured sample.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"path/filepath"

	"github.com/kozaktomas/attendance-engine/internal/config"
	"github.com/kozaktomas/attendance-engine/internal/database"
	"github.com/kozaktomas/attendance-engine/internal/recognizer"
)

var (
	// ErrNoCandidate means there was nothing to match: no enrollments in
	// scope, or no tier produced a result for any pair.
	ErrNoCandidate = errors.New("no match")
	// ErrBelowThreshold means a best result exists but does not clear the accept threshold.
	ErrBelowThreshold = errors.New("best match below threshold")
	// ErrWrongScope means the fingerprint belongs to a person outside the requested scope.
	ErrWrongScope = errors.New("enrolled in a different class")
	// ErrInterrupted means the context ended before every pair was compared.
	// A partial best is never accepted.
	ErrInterrupted = errors.New("identification interrupted")
)

// Comparator runs the fallback chain for one pair.
type Comparator interface {
	Compare(ctx context.Context, sample recognizer.Sample, templatePath string) recognizer.Outcome
}

// Recorder receives every comparison attempt.
type Recorder interface {
	RecordOutcome(ctx context.Context, requestID string, sample recognizer.Sample, candidate *database.EnrolledTemplate, templatePath string, outcome recognizer.Outcome)
	RecordNone(ctx context.Context, requestID string, sample recognizer.Sample, reason string)
}

// ThresholdSource returns the decision thresholds for a method.
type ThresholdSource interface {
	ThresholdsFor(method string) config.TierThresholds
}

// Decision is the aggregator's verdict.
type Decision struct {
	Candidate         *database.EnrolledTemplate
	Result            recognizer.MatchResult
	Accepted          bool
	AutoMark          bool
	ConfidencePercent float64
	Comparisons       int // pairs compared
}

// Aggregator runs the chain against every candidate sample and keeps the best result.
type Aggregator struct {
	chain         Comparator
	recorder      Recorder
	thresholds    ThresholdSource
	templatesRoot string
}

// NewAggregator creates an aggregator. Relative sample paths are resolved
// against templatesRoot.
func NewAggregator(chain Comparator, recorder Recorder, thresholds ThresholdSource, templatesRoot string) *Aggregator {
	return &Aggregator{
		chain:         chain,
		recorder:      recorder,
		thresholds:    thresholds,
		templatesRoot: templatesRoot,
	}
}

// Pair is one (candidate, sample) combination.
type Pair struct {
	Candidate    *database.EnrolledTemplate
	TemplatePath string
}

// Pairs yields every sample of every candidate in enumeration order.
func Pairs(candidates []database.EnrolledTemplate, root string) iter.Seq[Pair] {
	return func(yield func(Pair) bool) {
		for i := range candidates {
			for _, sample := range candidates[i].Samples {
				if !yield(Pair{Candidate: &candidates[i], TemplatePath: ResolveTemplatePath(root, sample)}) {
					return
				}
			}
		}
	}
}

// Comparison is a pair together with the chain's outcome for it.
type Comparison struct {
	Pair
	Outcome recognizer.Outcome
}

// Best is the accumulator of the best-match fold.
type Best struct {
	Candidate   *database.EnrolledTemplate
	Result      *recognizer.MatchResult
	Comparisons int
}

// Step folds one comparison into b. A later result replaces the current best
// only when its score is strictly higher, so the first seen wins ties.
func (b Best) Step(c Comparison) Best {
	b.Comparisons++
	if r := c.Outcome.Result; r != nil && (b.Result == nil || r.Score > b.Result.Score) {
		b.Candidate = c.Candidate
		b.Result = r
	}
	return b
}

// Fold reduces a sequence of comparisons to the best one.
func Fold(seq iter.Seq[Comparison]) Best {
	var best Best
	for c := range seq {
		best = best.Step(c)
	}
	return best
}

// compare lazily runs the chain over pairs, recording every attempt. It
// stops once ctx is done.
func (a *Aggregator) compare(ctx context.Context, requestID string, sample recognizer.Sample, pairs iter.Seq[Pair]) iter.Seq[Comparison] {
	return func(yield func(Comparison) bool) {
		for p := range pairs {
			if ctx.Err() != nil {
				return
			}
			outcome := a.chain.Compare(ctx, sample, p.TemplatePath)
			a.recorder.RecordOutcome(ctx, requestID, sample, p.Candidate, p.TemplatePath, outcome)
			if !yield(Comparison{Pair: p, Outcome: outcome}) {
				return
			}
		}
	}
}

// Identify compares sample against every candidate. It returns ErrNoCandidate
// when nothing could be compared, ErrInterrupted when ctx ended first, and
// ErrBelowThreshold together with the rejected Decision when the best score
// is too low.
func (a *Aggregator) Identify(ctx context.Context, requestID string, sample recognizer.Sample, candidates []database.EnrolledTemplate) (Decision, error) {
	if len(candidates) == 0 {
		a.recorder.RecordNone(ctx, requestID, sample, "no enrolled candidates in scope")
		return Decision{}, fmt.Errorf("%w: no enrolled candidates", ErrNoCandidate)
	}

	best := Fold(a.compare(ctx, requestID, sample, Pairs(candidates, a.templatesRoot)))

	if err := ctx.Err(); err != nil {
		a.recorder.RecordNone(ctx, requestID, sample,
			fmt.Sprintf("stopped after %d comparisons: %v", best.Comparisons, err))
		return Decision{Comparisons: best.Comparisons}, fmt.Errorf("%w after %d comparisons: %w", ErrInterrupted, best.Comparisons, err)
	}
	if best.Comparisons == 0 {
		a.recorder.RecordNone(ctx, requestID, sample, "candidates have no samples")
		return Decision{}, fmt.Errorf("%w: candidates have no samples", ErrNoCandidate)
	}
	if best.Result == nil {
		return Decision{Comparisons: best.Comparisons}, fmt.Errorf("%w: every recognizer tier was unavailable", ErrNoCandidate)
	}

	d := a.decide(best.Candidate, *best.Result)
	d.Comparisons = best.Comparisons
	if !d.Accepted {
		return d, fmt.Errorf("%w: %.4f via %s", ErrBelowThreshold, d.Result.Score, d.Result.Method)
	}
	return d, nil
}

// decide applies the thresholds of the result's method.
func (a *Aggregator) decide(candidate *database.EnrolledTemplate, result recognizer.MatchResult) Decision {
	t := a.thresholds.ThresholdsFor(string(result.Method))
	accepted := result.Score > t.Accept
	return Decision{
		Candidate:         candidate,
		Result:            result,
		Accepted:          accepted,
		AutoMark:          accepted && result.Score > t.AutoMark,
		ConfidencePercent: ConfidencePercent(result.Score),
	}
}

// ResolveFingerprint looks up the person enrolled under a sensor id. A person
// outside a non-zero scope gives ErrWrongScope; an unknown id gives ErrNoCandidate.
func (a *Aggregator) ResolveFingerprint(ctx context.Context, reader database.CandidateReader, fingerprintID int, scope database.Scope) (Decision, error) {
	t, err := reader.FindByFingerprint(ctx, fingerprintID)
	if err != nil {
		return Decision{}, fmt.Errorf("find fingerprint %d: %w", fingerprintID, err)
	}
	if t == nil {
		return Decision{}, fmt.Errorf("%w: fingerprint %d is not enrolled", ErrNoCandidate, fingerprintID)
	}
	if !scope.Contains(t) {
		return Decision{Candidate: t}, fmt.Errorf("%w: fingerprint %d", ErrWrongScope, fingerprintID)
	}

	d := a.decide(t, recognizer.SensorMatch())
	d.Comparisons = 1
	return d, nil
}

// ConfidencePercent converts a score to a percentage rounded to one decimal.
func ConfidencePercent(score float64) float64 {
	return math.Round(score*1000) / 10
}

// ResolveTemplatePath joins a relative sample path onto root.
func ResolveTemplatePath(root, path string) string {
	if root == "" || path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
