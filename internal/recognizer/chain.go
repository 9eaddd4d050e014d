package recognizer

import (
	"context"
	"errors"
	"time"
)

// Attempt records one tier that ran for a pair.
type Attempt struct {
	Method  Method
	Result  *MatchResult // nil when the tier was unavailable
	Err     error
	Elapsed time.Duration
}

// Available reports whether the tier produced a result.
func (a Attempt) Available() bool { return a.Result != nil }

// Outcome is the chain's verdict for one (sample, template) pair.
type Outcome struct {
	// Result is the first available tier's result, nil if every tier was unavailable.
	Result   *MatchResult
	Attempts []Attempt
}

// Observer receives per-tier timings. It may be nil.
type Observer interface {
	ObserveComparison(method string, available bool, elapsed time.Duration)
}

// Chain tries adapters strictly in order and stops at the first available result.
// Results from different tiers are never combined.
type Chain struct {
	adapters []Adapter
	observer Observer
}

// NewChain creates a chain over adapters in preference order.
func NewChain(observer Observer, adapters ...Adapter) *Chain {
	return &Chain{adapters: adapters, observer: observer}
}

// NewDefaultChain builds primary -> pixel -> size. A nil primary is skipped.
func NewDefaultChain(primary Adapter, observer Observer) *Chain {
	var adapters []Adapter
	if primary != nil {
		adapters = append(adapters, primary)
	}
	adapters = append(adapters, NewPixelRecognizer(), NewSizeRecognizer())
	return NewChain(observer, adapters...)
}

// Methods returns the tier order.
func (c *Chain) Methods() []Method {
	methods := make([]Method, len(c.adapters))
	for i, a := range c.adapters {
		methods[i] = a.Method()
	}
	return methods
}

// Compare runs the chain for one pair. Errors other than ErrUnavailable are
// also treated as unavailability so that no tier can fail the request.
func (c *Chain) Compare(ctx context.Context, sample Sample, templatePath string) Outcome {
	var out Outcome
	for _, adapter := range c.adapters {
		start := time.Now()
		result, err := adapter.Compare(ctx, sample, templatePath)
		elapsed := time.Since(start)

		attempt := Attempt{Method: adapter.Method(), Elapsed: elapsed}
		if err != nil {
			if !errors.Is(err, ErrUnavailable) {
				err = errors.Join(ErrUnavailable, err)
			}
			attempt.Err = err
		} else {
			result.Method = adapter.Method()
			attempt.Result = &result
		}
		out.Attempts = append(out.Attempts, attempt)

		if c.observer != nil {
			c.observer.ObserveComparison(string(adapter.Method()), attempt.Available(), elapsed)
		}

		if attempt.Available() {
			out.Result = attempt.Result
			return out
		}
	}
	return out
}
