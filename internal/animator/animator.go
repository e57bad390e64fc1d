// Package animator owns the set of packet animations in flight.
//
// Spawn may be called from any goroutine; it only queues. The live set is
// touched exclusively by the frame owner through Merge, Advance and Prune,
// so a frame never sees the set change while it is being drawn.
package animator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meshlab/meshviz/internal/logging"
	"github.com/meshlab/meshviz/internal/nodestore"
	"github.com/meshlab/meshviz/internal/sim"
)

// Step is the progress added per frame. Animation speed therefore follows
// the display refresh rate rather than wall-clock time.
const Step = 0.008

// DefaultLimit caps the live set.
const DefaultLimit = 512

// Point is a position in simulation units.
type Point struct {
	X, Y float64
}

// Packet is one animated packet. Src and Dst are frozen at spawn time.
type Packet struct {
	ID       string
	SrcID    int
	DstID    int
	Src      Point
	Dst      Point
	Progress float64
	Kind     sim.Phy
}

// Position interpolates linearly between the frozen endpoints.
func (p Packet) Position() Point {
	return Point{
		X: p.Src.X + (p.Dst.X-p.Src.X)*p.Progress,
		Y: p.Src.Y + (p.Dst.Y-p.Src.Y)*p.Progress,
	}
}

// Snapshotter supplies the node snapshot spawns read positions from.
type Snapshotter interface {
	Snapshot() *nodestore.Snapshot
}

// Animator queues spawns and advances the live packets.
type Animator struct {
	nodes Snapshotter
	limit int
	log   *zap.Logger
	now   func() time.Time

	mu      sync.Mutex
	pending []Packet
	reset   bool

	live []Packet
}

// Option configures an Animator.
type Option func(*Animator)

// WithLimit caps the number of live packets; extra spawns are dropped.
func WithLimit(n int) Option {
	return func(a *Animator) {
		if n > 0 {
			a.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Animator) { a.log = logging.OrNop(l) }
}

// New creates an animator reading node positions from nodes.
func New(nodes Snapshotter, opts ...Option) *Animator {
	a := &Animator{
		nodes: nodes,
		limit: DefaultLimit,
		log:   zap.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Spawn queues a packet from srcID to dstID using the positions in the
// latest snapshot. If either node is absent nothing happens. It reports
// whether a packet was queued.
func (a *Animator) Spawn(srcID, dstID int, kind sim.Phy) bool {
	snap := a.nodes.Snapshot()
	src, ok := snap.Lookup(srcID)
	if !ok {
		a.log.Debug("spawn dropped, unknown source", zap.Int("src", srcID), zap.Int("dst", dstID))
		return false
	}
	dst, ok := snap.Lookup(dstID)
	if !ok {
		a.log.Debug("spawn dropped, unknown destination", zap.Int("src", srcID), zap.Int("dst", dstID))
		return false
	}

	p := Packet{
		ID:    newID(a.now()),
		SrcID: srcID,
		DstID: dstID,
		Src:   Point{X: src.X, Y: src.Y},
		Dst:   Point{X: dst.X, Y: dst.Y},
		Kind:  kind,
	}

	a.mu.Lock()
	a.pending = append(a.pending, p)
	a.mu.Unlock()

	a.log.Debug("packet queued", zap.String("id", p.ID), zap.Int("src", srcID), zap.Int("dst", dstID), zap.String("kind", string(kind)))
	return true
}

func newID(t time.Time) string {
	return fmt.Sprintf("%d-%s", t.UnixMilli(), uuid.NewString()[:8])
}

// Merge moves queued spawns into the live set. Call it at the start of a frame.
func (a *Animator) Merge() int {
	a.mu.Lock()
	queued := a.pending
	a.pending = nil
	if a.reset {
		a.live = nil
		a.reset = false
	}
	a.mu.Unlock()

	merged := 0
	for _, p := range queued {
		if len(a.live) >= a.limit {
			a.log.Debug("live set full, dropping packet", zap.String("id", p.ID), zap.Int("limit", a.limit))
			continue
		}
		a.live = append(a.live, p)
		merged++
	}
	return merged
}

// Advance moves every live packet forward by Step.
func (a *Animator) Advance() {
	for i := range a.live {
		a.live[i].Progress += Step
	}
}

// Prune removes packets that reached their destination and returns how
// many were removed.
func (a *Animator) Prune() int {
	kept := a.live[:0]
	for _, p := range a.live {
		if p.Progress < 1.0 {
			kept = append(kept, p)
		}
	}
	removed := len(a.live) - len(kept)
	for i := len(kept); i < len(a.live); i++ {
		a.live[i] = Packet{}
	}
	a.live = kept
	return removed
}

// Live returns the live packets in spawn order. The slice is only valid
// until the next Merge, Advance or Prune.
func (a *Animator) Live() []Packet {
	return a.live
}

// Len returns the number of live packets.
func (a *Animator) Len() int {
	return len(a.live)
}

// Pending returns the number of queued spawns.
func (a *Animator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Reset drops queued packets now and live packets at the next Merge.
func (a *Animator) Reset() {
	a.mu.Lock()
	a.pending = nil
	a.reset = true
	a.mu.Unlock()
}
