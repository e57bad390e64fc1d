// Package view is the component root of the topology viewer. It wires
// the node store, packet animator, hit tester, action bridge and render
// loop together, and mounts and tears them down as one unit.
package view

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meshlab/meshviz/internal/activity"
	"github.com/meshlab/meshviz/internal/animator"
	"github.com/meshlab/meshviz/internal/bridge"
	"github.com/meshlab/meshviz/internal/hittest"
	"github.com/meshlab/meshviz/internal/logging"
	"github.com/meshlab/meshviz/internal/nodestore"
	"github.com/meshlab/meshviz/internal/poll"
	"github.com/meshlab/meshviz/internal/render"
	"github.com/meshlab/meshviz/internal/sim"
)

// MsgNothingEnqueued is shown when the simulator accepted no traffic.
const MsgNothingEnqueued = "Failed: PHY mismatch or nodes out of range"

var (
	ErrMounted  = errors.New("view already mounted")
	ErrTornDown = errors.New("view torn down")
)

// Client is the part of the simulation API the view acts on.
type Client interface {
	nodestore.NodeSource
	Traffic(ctx context.Context, r sim.TrafficRequest) (sim.TrafficResult, error)
	Publish(ctx context.Context, r sim.PublishRequest) (sim.PublishResult, error)
	DeleteNode(ctx context.Context, id int) error
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Notice is a transient message for the user. A non-zero Confirm asks the
// user to confirm deleting that node. To, when set, names the only
// client the notice is for.
type Notice struct {
	Level   string `json:"level"`
	Text    string `json:"text"`
	Confirm int    `json:"confirm,omitempty"`
	To      string `json:"-"`
}

// Local is the owner of pointer actions from the native window.
const Local = ""

// Notice levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Options configures a View.
type Options struct {
	Canvas       render.Canvas
	Scale        float64
	MaxPackets   int
	NodeInterval time.Duration
	// Feeds run alongside the node poller for the lifetime of the view.
	Feeds   []poll.Runner
	Journal *activity.Journal
	Notify  func(Notice)
	Clock   bridge.Clock
	Logger  *zap.Logger
}

// View owns one mounted topology viewer.
type View struct {
	client  Client
	store   *nodestore.Store
	nodes   *poll.Feed[[]sim.Node]
	feeds   []poll.Runner
	anim    *animator.Animator
	tester  hittest.Tester
	hover   *hittest.Hover
	confirm *hittest.Confirm
	bridge  *bridge.Bridge
	loop    *render.Loop
	journal *activity.Journal
	notify  func(Notice)
	log     *zap.Logger

	mu       sync.Mutex
	mounted  bool
	tornDown bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New wires a view. Nothing runs until Mount.
func New(client Client, opts Options) *View {
	log := logging.OrNop(opts.Logger)
	scale := opts.Scale
	if scale <= 0 {
		scale = render.DefaultScale
	}

	v := &View{
		client:  client,
		store:   nodestore.New(),
		feeds:   opts.Feeds,
		tester:  hittest.New(scale),
		hover:   &hittest.Hover{},
		journal: opts.Journal,
		notify:  opts.Notify,
		log:     log,
		ctx:     context.Background(),
	}
	v.nodes = v.store.Poller(client, opts.NodeInterval, log)
	v.anim = animator.New(v.store, animator.WithLimit(opts.MaxPackets), animator.WithLogger(log))
	v.confirm = hittest.NewConfirm(v.deleteNode)

	bopts := []bridge.Option{bridge.WithLogger(log)}
	if opts.Clock != nil {
		bopts = append(bopts, bridge.WithClock(opts.Clock))
	}
	v.bridge = bridge.New(v.anim, bopts...)

	v.loop = render.New(render.Config{
		Nodes:    v.store,
		Animator: v.anim,
		Hover:    v.hover,
		Canvas:   opts.Canvas,
		Scale:    scale,
		Logger:   log,
	})
	return v
}

// Mount starts the pollers and the render loop on d.
func (v *View) Mount(ctx context.Context, d render.Driver) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case v.tornDown:
		return ErrTornDown
	case v.mounted:
		return ErrMounted
	}

	v.ctx, v.cancel = context.WithCancel(ctx)
	runners := append([]poll.Runner{v.nodes}, v.feeds...)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		if err := poll.RunAll(v.ctx, runners...); err != nil {
			v.log.Warn("pollers stopped", zap.Error(err))
		}
	}()

	if err := v.loop.Start(d); err != nil {
		v.cancel()
		v.wg.Wait()
		return fmt.Errorf("start render loop: %w", err)
	}
	v.mounted = true
	v.log.Info("view mounted")
	return nil
}

// Unmount stops the render loop, cancels pending visual spawns and stops
// the pollers. It is safe to call more than once.
func (v *View) Unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.tornDown {
		return
	}
	v.tornDown = true

	if err := v.loop.Stop(); err != nil && !errors.Is(err, render.ErrNotRunning) {
		v.log.Warn("stop render loop", zap.Error(err))
	}
	v.bridge.Close()
	if v.cancel != nil {
		v.cancel()
	}
	v.wg.Wait()
	v.mounted = false
	v.log.Info("view unmounted", zap.Uint64("frames", v.loop.Frames()))
}

// Store returns the node store.
func (v *View) Store() *nodestore.Store { return v.store }

// Loop returns the render loop.
func (v *View) Loop() *render.Loop { return v.loop }

// Bridge returns the action bridge.
func (v *View) Bridge() *bridge.Bridge { return v.bridge }

// Refresh polls the node list once, outside the regular cadence.
func (v *View) Refresh(ctx context.Context) error {
	return v.nodes.Poll(ctx)
}

// Status summarizes the view for status endpoints.
type Status struct {
	Ready        bool   `json:"ready"`
	Loop         string `json:"loop"`
	Nodes        int    `json:"nodes"`
	Packets      int    `json:"packets"`
	Frames       uint64 `json:"frames"`
	Faults       uint64 `json:"faults"`
	PollFailures uint64 `json:"poll_failures"`
	PendingSpawn int    `json:"pending_spawns"`
	PendingDel   int    `json:"pending_delete,omitempty"`
}

// Status returns a point-in-time summary.
func (v *View) Status() Status {
	st := Status{
		Ready:        v.store.Ready(),
		Loop:         v.loop.State().String(),
		Nodes:        v.store.Snapshot().Len(),
		Packets:      v.loop.Packets(),
		Frames:       v.loop.Frames(),
		Faults:       v.loop.Faults(),
		PollFailures: v.nodes.Failures(),
		PendingSpawn: v.bridge.Pending() + v.anim.Pending(),
	}
	if n, ok := v.confirm.Pending(); ok {
		st.PendingDel = n.ID
	}
	return st
}

func (v *View) tell(level, text string) {
	v.send(Notice{Level: level, Text: text})
}

func (v *View) send(n Notice) {
	if n.Level == LevelError {
		v.log.Warn(n.Text)
	} else {
		v.log.Debug(n.Text)
	}
	if v.notify != nil {
		v.notify(n)
	}
}

func (v *View) record(action, target, details string, err error) {
	if v.journal == nil {
		return
	}
	if jerr := v.journal.Record(action, target, details, err); jerr != nil {
		v.log.Debug("journal write failed", zap.Error(jerr))
	}
}

// SendTraffic asks the simulator to enqueue traffic and shows up to
// bridge.MaxSpawns packets for whatever it accepted.
func (v *View) SendTraffic(ctx context.Context, r sim.TrafficRequest) (sim.TrafficResult, error) {
	target := fmt.Sprintf("%d->%d", r.Src, r.Dst)
	details := fmt.Sprintf("n=%d size=%d kind=%s", r.N, r.Size, r.Kind)

	res, err := v.client.Traffic(ctx, r)
	if err != nil {
		v.record(activity.ActionTraffic, target, details, err)
		v.tell(LevelError, "Traffic failed: "+err.Error())
		return res, err
	}
	v.record(activity.ActionTraffic, target, fmt.Sprintf("%s enqueued=%d", details, res.EnqueuedOK), nil)

	if res.EnqueuedOK == 0 {
		v.tell(LevelError, MsgNothingEnqueued)
		return res, nil
	}
	if _, err := v.bridge.Request(r.Src, r.Dst, r.Kind, res.EnqueuedOK); err != nil {
		v.log.Debug("visual spawn skipped", zap.Error(err))
	}
	v.tell(LevelInfo, fmt.Sprintf("Enqueued %d packets", res.EnqueuedOK))
	return res, nil
}

// Publish sends an MQTT publish. On success one packet is shown from the
// publisher to its nearest broker.
func (v *View) Publish(ctx context.Context, r sim.PublishRequest) (sim.PublishResult, error) {
	target := strconv.Itoa(r.PublisherID)
	details := fmt.Sprintf("topic=%s qos=%d", r.Topic, r.QoS)

	res, err := v.client.Publish(ctx, r)
	v.record(activity.ActionPublish, target, details, err)
	if err != nil {
		v.tell(LevelError, "Publish failed: "+err.Error())
		return res, err
	}

	snap := v.store.Snapshot()
	pub, ok := snap.Lookup(r.PublisherID)
	if !ok {
		return res, nil
	}
	if broker, ok := nearestBroker(snap, pub); ok {
		if _, err := v.bridge.Request(pub.ID, broker.ID, pub.Phy, 1); err != nil {
			v.log.Debug("visual spawn skipped", zap.Error(err))
		}
	}
	v.tell(LevelInfo, fmt.Sprintf("Published to %s", r.Topic))
	return res, nil
}

func nearestBroker(snap *nodestore.Snapshot, from sim.Node) (sim.Node, bool) {
	var best sim.Node
	bestDist := math.Inf(1)
	for i := 0; i < snap.Len(); i++ {
		n := snap.At(i)
		if !n.IsBroker || n.ID == from.ID {
			continue
		}
		if d := math.Hypot(n.X-from.X, n.Y-from.Y); d < bestDist {
			best, bestDist = n, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

// Control issues start, pause or reset. A reset also drops every packet
// in flight.
func (v *View) Control(ctx context.Context, op string) error {
	var err error
	switch op {
	case "start":
		err = v.client.Start(ctx)
	case "pause":
		err = v.client.Pause(ctx)
	case "reset":
		err = v.client.Reset(ctx)
		if err == nil {
			v.anim.Reset()
		}
	default:
		err = fmt.Errorf("unknown control %q", op)
	}
	v.record(activity.ActionControl, op, "", err)
	if err != nil {
		v.tell(LevelError, "Control failed: "+err.Error())
	}
	return err
}

// PointerMove updates the hover state.
func (v *View) PointerMove(x, y float64) (sim.Node, bool) {
	return v.hover.Move(v.tester, v.store.Snapshot(), x, y)
}

// PointerLeave clears the hover state.
func (v *View) PointerLeave() {
	v.hover.Leave()
}

// Tooltip returns the tooltip of the hovered node.
func (v *View) Tooltip() (hittest.Tooltip, bool) {
	return v.hover.Tooltip()
}

// Click selects the node under owner's pointer as the delete candidate
// and asks that owner to confirm.
func (v *View) Click(owner string, x, y float64) (sim.Node, bool) {
	n, ok := v.confirm.Click(owner, v.tester, v.store.Snapshot(), x, y)
	if ok {
		v.send(Notice{Level: LevelInfo, Text: fmt.Sprintf("Delete node %d (%s)?", n.ID, n.Role), Confirm: n.ID, To: owner})
	}
	return n, ok
}

// PendingDelete returns the node awaiting confirmation.
func (v *View) PendingDelete() (sim.Node, bool) {
	return v.confirm.Pending()
}

// ConfirmDelete deletes owner's pending candidate. id 0 confirms whatever
// owner has pending; otherwise it must match.
func (v *View) ConfirmDelete(owner string, id int) bool {
	_, ok := v.confirm.Accept(owner, id)
	return ok
}

// CancelDelete drops owner's pending candidate.
func (v *View) CancelDelete(owner string) {
	v.confirm.Cancel(owner)
}

func (v *View) deleteNode(id int) {
	v.mu.Lock()
	parent := v.ctx
	v.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, sim.DefaultTimeout)
	defer cancel()

	err := v.client.DeleteNode(ctx, id)
	v.record(activity.ActionDelete, strconv.Itoa(id), "", err)
	if err != nil {
		v.tell(LevelError, fmt.Sprintf("Delete node %d failed: %v", id, err))
		return
	}
	v.tell(LevelInfo, fmt.Sprintf("Deleted node %d", id))
	if err := v.Refresh(ctx); err != nil {
		v.log.Debug("refresh after delete failed", zap.Error(err))
	}
}
