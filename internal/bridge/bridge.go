// Package bridge turns confirmed user actions into visual packet spawns.
//
// The simulation only reports how many units it accepted, never which
// ones, so the spawned packets are a visual cue only. At most MaxSpawns
// packets are shown per action, Stagger apart.
package bridge

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meshlab/meshviz/internal/logging"
	"github.com/meshlab/meshviz/internal/sim"
)

const (
	// MaxSpawns caps the packets shown for one action.
	MaxSpawns = 5
	// Stagger separates consecutive spawns of one action.
	Stagger = 300 * time.Millisecond
)

// ErrClosed is returned by Request after Close.
var ErrClosed = errors.New("bridge closed")

// Spawner starts one packet animation.
type Spawner interface {
	Spawn(srcID, dstID int, kind sim.Phy) bool
}

// Timer is a pending delayed call.
type Timer interface {
	Stop() bool
}

// Clock schedules delayed calls.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Bridge schedules staggered spawns as cancellable tasks owned by the
// bridge; Close cancels every spawn that has not fired yet.
type Bridge struct {
	spawner Spawner
	clock   Clock
	log     *zap.Logger

	mu      sync.Mutex
	closed  bool
	nextID  uint64
	pending map[uint64]Timer
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(b *Bridge) { b.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) { b.log = logging.OrNop(l) }
}

// New creates a bridge spawning through s.
func New(s Spawner, opts ...Option) *Bridge {
	b := &Bridge{
		spawner: s,
		clock:   realClock{},
		log:     zap.NewNop(),
		pending: make(map[uint64]Timer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Request shows min(confirmed, MaxSpawns) packets from srcID to dstID.
// The first spawn happens immediately, the rest Stagger apart. It returns
// the number of spawns scheduled.
func (b *Bridge) Request(srcID, dstID int, kind sim.Phy, confirmed int) (int, error) {
	n := min(confirmed, MaxSpawns)
	if n <= 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}

	b.spawner.Spawn(srcID, dstID, kind)
	for i := 1; i < n; i++ {
		id := b.nextID
		b.nextID++
		b.pending[id] = b.clock.AfterFunc(time.Duration(i)*Stagger, func() {
			b.fire(id, srcID, dstID, kind)
		})
	}

	b.log.Debug("visual spawns scheduled",
		zap.Int("src", srcID), zap.Int("dst", dstID), zap.String("kind", string(kind)),
		zap.Int("confirmed", confirmed), zap.Int("shown", n))
	return n, nil
}

func (b *Bridge) fire(id uint64, srcID, dstID int, kind sim.Phy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[id]; !ok {
		return // cancelled
	}
	delete(b.pending, id)
	b.spawner.Spawn(srcID, dstID, kind)
}

// Pending returns the number of scheduled spawns that have not fired.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close cancels all pending spawns. No spawn happens after Close returns.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, t := range b.pending {
		t.Stop()
		delete(b.pending, id)
	}
}
