// Package nodestore holds the latest node snapshot polled from the
// simulation service. Readers only ever see whole, immutable snapshots.
package nodestore

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/meshlab/meshviz/internal/poll"
	"github.com/meshlab/meshviz/internal/sim"
)

// Snapshot is an immutable view of the node list at one poll.
type Snapshot struct {
	nodes []sim.Node
	index map[int]int
	at    time.Time
	seq   uint64
}

var empty = &Snapshot{index: map[int]int{}}

func newSnapshot(nodes []sim.Node, at time.Time, seq uint64) *Snapshot {
	s := &Snapshot{
		nodes: make([]sim.Node, len(nodes)),
		index: make(map[int]int, len(nodes)),
		at:    at,
		seq:   seq,
	}
	copy(s.nodes, nodes)
	for i, n := range s.nodes {
		if _, dup := s.index[n.ID]; !dup {
			s.index[n.ID] = i
		}
	}
	return s
}

// Len returns the number of nodes.
func (s *Snapshot) Len() int { return len(s.nodes) }

// At returns the node at position i in poll order.
func (s *Snapshot) At(i int) sim.Node { return s.nodes[i] }

// Nodes returns a copy of the nodes in poll order.
func (s *Snapshot) Nodes() []sim.Node {
	out := make([]sim.Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Lookup finds a node by id.
func (s *Snapshot) Lookup(id int) (sim.Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return sim.Node{}, false
	}
	return s.nodes[i], true
}

// Seq is 0 for the empty snapshot and increases with every replacement.
func (s *Snapshot) Seq() uint64 { return s.seq }

// Time is when the snapshot was taken.
func (s *Snapshot) Time() time.Time { return s.at }

// Store publishes node snapshots. Only the poller writes it.
type Store struct {
	cur atomic.Pointer[Snapshot]
	seq atomic.Uint64
}

// New returns a store holding the empty snapshot.
func New() *Store {
	s := &Store{}
	s.cur.Store(empty)
	return s
}

// Snapshot returns the current snapshot. It never returns nil.
func (s *Store) Snapshot() *Snapshot {
	return s.cur.Load()
}

// Ready reports whether any poll has resolved yet.
func (s *Store) Ready() bool {
	return s.cur.Load().seq > 0
}

// Replace publishes a new node list; absent ids are removed.
func (s *Store) Replace(nodes []sim.Node) {
	s.cur.Store(newSnapshot(nodes, time.Now(), s.seq.Add(1)))
}

// NodeSource fetches the node list.
type NodeSource interface {
	Nodes(ctx context.Context) ([]sim.Node, error)
}

// Poller returns a feed that refreshes the store from src every interval.
func (s *Store) Poller(src NodeSource, interval time.Duration, log *zap.Logger) *poll.Feed[[]sim.Node] {
	return poll.NewFeed("nodes", interval, src.Nodes, s.Replace, log)
}
