// Package poll keeps the latest result of periodically fetched state.
//
// A Feed never surfaces fetch errors to readers: a failed poll keeps the
// previous value (stale but consistent) until the next successful one.
package poll

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meshlab/meshviz/internal/logging"
)

// Fetch retrieves one value from the remote service.
type Fetch[T any] func(ctx context.Context) (T, error)

// Sample is a value together with when it was fetched.
type Sample[T any] struct {
	Value T
	At    time.Time
	Seq   uint64
}

// Feed polls a Fetch on a fixed interval and publishes the latest value.
type Feed[T any] struct {
	name     string
	interval time.Duration
	fetch    Fetch[T]
	log      *zap.Logger
	onUpdate func(T)

	latest   atomic.Pointer[Sample[T]]
	seq      atomic.Uint64
	failures atomic.Uint64
}

// NewFeed creates a feed. onUpdate, if non-nil, runs on the polling
// goroutine after every successful poll.
func NewFeed[T any](name string, interval time.Duration, fetch Fetch[T], onUpdate func(T), log *zap.Logger) *Feed[T] {
	if interval <= 0 {
		interval = time.Second
	}
	return &Feed[T]{
		name:     name,
		interval: interval,
		fetch:    fetch,
		onUpdate: onUpdate,
		log:      logging.OrNop(log).With(zap.String("feed", name)),
	}
}

// Name returns the feed name.
func (f *Feed[T]) Name() string { return f.name }

// Interval returns the polling interval.
func (f *Feed[T]) Interval() time.Duration { return f.interval }

// Latest returns the last successfully fetched value. ok is false until
// the first poll resolves.
func (f *Feed[T]) Latest() (value T, ok bool) {
	s := f.latest.Load()
	if s == nil {
		return value, false
	}
	return s.Value, true
}

// Sample returns the last sample, or nil before the first success.
func (f *Feed[T]) Sample() *Sample[T] {
	return f.latest.Load()
}

// Failures counts polls that failed since the feed was created.
func (f *Feed[T]) Failures() uint64 {
	return f.failures.Load()
}

// Poll fetches once. On failure the previous value is kept and the error
// is returned for the caller's information only.
func (f *Feed[T]) Poll(ctx context.Context) error {
	v, err := f.fetch(ctx)
	if err != nil {
		n := f.failures.Add(1)
		if ctx.Err() == nil {
			f.log.Debug("poll failed, keeping previous value", zap.Error(err), zap.Uint64("failures", n))
		}
		return err
	}
	f.latest.Store(&Sample[T]{Value: v, At: time.Now(), Seq: f.seq.Add(1)})
	if f.onUpdate != nil {
		f.onUpdate(v)
	}
	return nil
}

// Run polls immediately and then once per interval until ctx is done.
// Polls never overlap; a slow fetch delays the next tick.
func (f *Feed[T]) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	_ = f.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = f.Poll(ctx)
		}
	}
}

// Runner is anything with a blocking Run loop.
type Runner interface {
	Run(ctx context.Context) error
}

// RunAll runs every runner concurrently until ctx is done or one of them
// fails, then waits for all of them to return.
func RunAll(ctx context.Context, runners ...Runner) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		r := r
		g.Go(func() error { return r.Run(gctx) })
	}
	return g.Wait()
}
