package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/constants"
	"github.com/kozaktomas/attendance-engine/internal/logger"
)

// Sweepable is a store with expired state to prune.
type Sweepable interface {
	Sweep(now time.Time) int
}

// Sweeper periodically prunes a Sweepable store.
type Sweeper struct {
	store    Sweepable
	interval time.Duration
	log      logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(store Sweepable, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = constants.DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval, log: logger.Named("ratelimit")}
}

// Start runs the sweep loop until ctx is done or Stop is called. Calling
// Start on a running sweeper does nothing.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop ends the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.store.Sweep(now); n > 0 {
				s.log.Debug(ctx, "swept expired rate limit windows", logger.Int("count", n))
			}
		}
	}
}
