// Package hittest maps pointer positions on the canvas to nodes.
package hittest

import (
	"math"
	"sync"

	"github.com/meshlab/meshviz/internal/nodestore"
	"github.com/meshlab/meshviz/internal/sim"
)

// Radius is the pick distance around a node center, in pixels.
const Radius = 16.0

// Tester picks nodes from a snapshot drawn at a given scale.
type Tester struct {
	Scale  float64
	Radius float64
}

// New returns a tester for nodes drawn at scale.
func New(scale float64) Tester {
	return Tester{Scale: scale, Radius: Radius}
}

// Pick returns the first node in snapshot order whose scaled center lies
// within the radius of (px, py).
func (t Tester) Pick(snap *nodestore.Snapshot, px, py float64) (sim.Node, bool) {
	if snap == nil {
		return sim.Node{}, false
	}
	for i := 0; i < snap.Len(); i++ {
		n := snap.At(i)
		if math.Hypot(px-n.X*t.Scale, py-n.Y*t.Scale) <= t.Radius {
			return n, true
		}
	}
	return sim.Node{}, false
}

// Tooltip is the payload shown next to a hovered node.
type Tooltip struct {
	Node sim.Node `json:"node"`
	X    float64  `json:"x"`
	Y    float64  `json:"y"`
}

// Hover is the at-most-one highlighted node. It is written by pointer
// event handlers and read once per frame.
type Hover struct {
	mu      sync.Mutex
	id      int
	active  bool
	tooltip Tooltip
}

// Move recomputes the hover state for a pointer at (px, py) and returns
// the node under it, if any.
func (h *Hover) Move(t Tester, snap *nodestore.Snapshot, px, py float64) (sim.Node, bool) {
	n, ok := t.Pick(snap, px, py)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = ok
	if ok {
		h.id = n.ID
		h.tooltip = Tooltip{Node: n, X: px, Y: py}
	} else {
		h.id = 0
		h.tooltip = Tooltip{}
	}
	return n, ok
}

// Leave clears the hover state.
func (h *Hover) Leave() {
	h.mu.Lock()
	h.active = false
	h.id = 0
	h.tooltip = Tooltip{}
	h.mu.Unlock()
}

// Highlighted returns the hovered node id.
func (h *Hover) Highlighted() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id, h.active
}

// State returns the hovered node id and its tooltip as one consistent pair.
func (h *Hover) State() (id int, tip Tooltip, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id, h.tooltip, h.active
}

// Tooltip returns a copy of the tooltip payload.
func (h *Hover) Tooltip() (Tooltip, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tooltip, h.active
}

// DeleteFunc removes a node on the simulation side.
type DeleteFunc func(id int)

// Confirm holds at most one node awaiting delete confirmation, together
// with the owner that clicked it. The delete callback fires exactly once
// per confirmed candidate, and only the owner can confirm or cancel.
type Confirm struct {
	mu        sync.Mutex
	candidate *sim.Node
	owner     string
	onDelete  DeleteFunc
}

// NewConfirm creates a gate calling onDelete on confirmation.
func NewConfirm(onDelete DeleteFunc) *Confirm {
	return &Confirm{onDelete: onDelete}
}

// Click picks the node under owner's pointer and makes it the pending
// candidate, replacing any previous one. Clicking empty space clears the
// owner's own candidate.
func (c *Confirm) Click(owner string, t Tester, snap *nodestore.Snapshot, px, py float64) (sim.Node, bool) {
	n, ok := t.Pick(snap, px, py)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok {
		if c.owner == owner {
			c.candidate = nil
		}
		return sim.Node{}, false
	}
	c.candidate, c.owner = &n, owner
	return n, true
}

// Pending returns the node awaiting confirmation.
func (c *Confirm) Pending() (sim.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.candidate == nil {
		return sim.Node{}, false
	}
	return *c.candidate, true
}

// Accept confirms owner's pending candidate, invoking the delete callback.
// If id is non-zero it must match the candidate, so a stale confirmation
// for a node that is no longer pending is dropped.
func (c *Confirm) Accept(owner string, id int) (int, bool) {
	c.mu.Lock()
	cand := c.candidate
	if cand == nil || c.owner != owner || (id != 0 && cand.ID != id) {
		c.mu.Unlock()
		return 0, false
	}
	c.candidate = nil
	c.mu.Unlock()

	if c.onDelete != nil {
		c.onDelete(cand.ID)
	}
	return cand.ID, true
}

// Cancel discards owner's pending candidate.
func (c *Confirm) Cancel(owner string) {
	c.mu.Lock()
	if c.owner == owner {
		c.candidate = nil
	}
	c.mu.Unlock()
}
