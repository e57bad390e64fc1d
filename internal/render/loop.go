// Package render draws the topology frame by frame.
//
// A Loop owns the live packet set and the canvas while it runs. Node
// state and pointer state are read once at the top of every tick, so
// everything drawn in one frame comes from the same snapshot.
package render

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/meshlab/meshviz/internal/animator"
	"github.com/meshlab/meshviz/internal/hittest"
	"github.com/meshlab/meshviz/internal/logging"
	"github.com/meshlab/meshviz/internal/sim"
)

var (
	ErrAlreadyRunning = errors.New("render loop already running")
	ErrNotRunning     = errors.New("render loop not running")
	errNonFinite      = errors.New("non-finite coordinate")
)

// State is the loop lifecycle state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	}
	return "unknown"
}

// Config wires a Loop to its collaborators.
type Config struct {
	Nodes    animator.Snapshotter
	Animator *animator.Animator
	Hover    *hittest.Hover
	Canvas   Canvas
	Scale    float64
	Logger   *zap.Logger
}

// Loop is the frame scheduler.
type Loop struct {
	nodes  animator.Snapshotter
	anim   *animator.Animator
	hover  *hittest.Hover
	canvas Canvas
	scale  float64
	log    *zap.Logger

	mu     sync.Mutex
	state  State
	cancel func()

	frames  atomic.Uint64
	faults  atomic.Uint64
	packets atomic.Int64
}

// New creates an idle loop.
func New(cfg Config) *Loop {
	scale := cfg.Scale
	if scale <= 0 {
		scale = DefaultScale
	}
	hover := cfg.Hover
	if hover == nil {
		hover = &hittest.Hover{}
	}
	return &Loop{
		nodes:  cfg.Nodes,
		anim:   cfg.Animator,
		hover:  hover,
		canvas: cfg.Canvas,
		scale:  scale,
		log:    logging.OrNop(cfg.Logger),
	}
}

// Start begins scheduling frames on d.
func (l *Loop) Start(d Driver) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Running {
		return ErrAlreadyRunning
	}

	var once sync.Once
	stop := d.Start(l.Tick)
	l.cancel = func() { once.Do(stop) }
	l.state = Running
	l.log.Debug("render loop started")
	return nil
}

// Stop cancels the pending frame and returns the loop to Idle.
func (l *Loop) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Running {
		return ErrNotRunning
	}
	l.cancel()
	l.cancel = nil
	l.state = Idle
	l.log.Debug("render loop stopped", zap.Uint64("frames", l.frames.Load()), zap.Uint64("faults", l.faults.Load()))
	return nil
}

// State returns the lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Frames returns the number of completed ticks.
func (l *Loop) Frames() uint64 { return l.frames.Load() }

// Faults returns the number of entities that failed to draw.
func (l *Loop) Faults() uint64 { return l.faults.Load() }

// Packets returns the number of packets drawn in the last frame.
func (l *Loop) Packets() int { return int(l.packets.Load()) }

// Tick renders one frame. Drivers call it; it never panics.
func (l *Loop) Tick() {
	defer func() {
		if r := recover(); r != nil {
			l.faults.Add(1)
			l.log.Error("render tick panicked", zap.Any("panic", r))
		}
	}()

	l.anim.Merge()
	snap := l.nodes.Snapshot()
	hovered, t, hovering := l.hover.State()
	var tip *hittest.Tooltip
	if hovering {
		tip = &t
	}

	faults := 0
	isolate := func(what string, id string, draw func() error) {
		defer func() {
			if r := recover(); r != nil {
				faults++
				l.log.Debug("draw panicked", zap.String("entity", what), zap.String("id", id), zap.Any("panic", r))
			}
		}()
		if err := draw(); err != nil {
			faults++
			l.log.Debug("draw skipped", zap.String("entity", what), zap.String("id", id), zap.Error(err))
		}
	}

	l.canvas.Clear(Background)

	live := l.anim.Live()
	type pair struct{ src, dst int }
	drawn := make(map[pair]struct{}, len(live))
	for _, p := range live {
		key := pair{p.SrcID, p.DstID}
		if _, ok := drawn[key]; ok {
			continue
		}
		drawn[key] = struct{}{}
		isolate("line", fmt.Sprintf("%d-%d", p.SrcID, p.DstID), func() error { return l.drawLine(p) })
	}

	for i := 0; i < snap.Len(); i++ {
		n := snap.At(i)
		isolate("node", strconv.Itoa(n.ID), func() error { return l.drawNode(n, hovering && n.ID == hovered) })
	}

	for _, p := range live {
		isolate("packet", p.ID, func() error { return l.drawPacket(p) })
	}
	packets := len(live)
	l.packets.Store(int64(packets))

	l.anim.Advance()
	l.anim.Prune()

	l.faults.Add(uint64(faults))
	seq := l.frames.Add(1)
	if pr, ok := l.canvas.(Presenter); ok {
		pr.Present(FrameInfo{Seq: seq, Nodes: snap.Len(), Packets: packets, Faults: faults, Tooltip: tip})
	}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (l *Loop) drawLine(p animator.Packet) error {
	x1, y1 := p.Src.X*l.scale, p.Src.Y*l.scale
	x2, y2 := p.Dst.X*l.scale, p.Dst.Y*l.scale
	if !finite(x1, y1, x2, y2) {
		return errNonFinite
	}
	l.canvas.Line(x1, y1, x2, y2, LineWidth, LineDash, LineColor)
	return nil
}

func (l *Loop) drawNode(n sim.Node, hovered bool) error {
	x, y := n.X*l.scale, n.Y*l.scale
	if !finite(x, y) {
		return errNonFinite
	}

	glow := NodeGlow
	if hovered {
		glow = HoverGlow
	}
	l.canvas.Disc(x, y, NodeRadius, glow, RoleColor(n.Role))
	if n.IsBroker {
		l.canvas.Ring(x, y, BrokerRadius, RingWidth, BrokerRing)
	}
	if hovered {
		l.canvas.Ring(x, y, HoverRadius, RingWidth, HoverRing)
	}
	l.canvas.Text(x, y-LabelOffset, strconv.Itoa(n.ID), LabelSize, LabelColor)
	return nil
}

func (l *Loop) drawPacket(p animator.Packet) error {
	if p.Progress >= 1.0 {
		return nil
	}
	pos := p.Position()
	x, y := pos.X*l.scale, pos.Y*l.scale
	if !finite(x, y) {
		return errNonFinite
	}
	l.canvas.Disc(x, y, PacketRadius, PacketGlow, PhyColor(p.Kind))
	return nil
}
