// Package dashboard renders the live terminal status view of a running
// simulation: metrics, nodes, MQTT activity, routing and reconnections.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meshlab/meshviz/internal/config"
	"github.com/meshlab/meshviz/internal/poll"
	"github.com/meshlab/meshviz/internal/sim"
	"github.com/meshlab/meshviz/internal/ui"
)

const width = 72

// Source is the part of the simulation API the dashboard polls.
type Source interface {
	Nodes(ctx context.Context) ([]sim.Node, error)
	Metrics(ctx context.Context) (sim.Metrics, error)
	MQTTStats(ctx context.Context) (sim.MQTTStats, error)
	Topics(ctx context.Context) ([]sim.TopicCount, error)
	Routing(ctx context.Context) ([]sim.RoutingTable, error)
	Reconnections(ctx context.Context) ([]sim.ReconnectEvent, error)
}

// Config configures the dashboard.
type Config struct {
	Server          string
	RefreshInterval time.Duration
	Poll            config.PollConfig
	Out             io.Writer
	Logger          *zap.Logger
}

// State is everything one screen shows. A nil field has not been fetched
// yet and renders as waiting.
type State struct {
	Server   string
	Now      time.Time
	Refresh  time.Duration
	Nodes    *[]sim.Node
	Metrics  *sim.Metrics
	MQTT     *sim.MQTTStats
	Topics   *[]sim.TopicCount
	Routing  *[]sim.RoutingTable
	Events   *[]sim.ReconnectEvent
	Failures uint64
}

type feeds struct {
	nodes   *poll.Feed[[]sim.Node]
	metrics *poll.Feed[sim.Metrics]
	mqtt    *poll.Feed[sim.MQTTStats]
	topics  *poll.Feed[[]sim.TopicCount]
	routing *poll.Feed[[]sim.RoutingTable]
	events  *poll.Feed[[]sim.ReconnectEvent]
}

func newFeeds(src Source, pc config.PollConfig, log *zap.Logger) feeds {
	return feeds{
		nodes:   poll.NewFeed("nodes", pc.Nodes.Duration, src.Nodes, nil, log),
		metrics: poll.NewFeed("metrics", pc.Metrics.Duration, src.Metrics, nil, log),
		mqtt:    poll.NewFeed("mqtt", pc.MQTT.Duration, src.MQTTStats, nil, log),
		topics:  poll.NewFeed("topics", pc.MQTT.Duration, src.Topics, nil, log),
		routing: poll.NewFeed("routing", pc.Routing.Duration, src.Routing, nil, log),
		events:  poll.NewFeed("events", pc.Events.Duration, src.Reconnections, nil, log),
	}
}

func (f feeds) runners() []poll.Runner {
	return []poll.Runner{f.nodes, f.metrics, f.mqtt, f.topics, f.routing, f.events}
}

func latest[T any](f *poll.Feed[T]) *T {
	if v, ok := f.Latest(); ok {
		return &v
	}
	return nil
}

func (f feeds) state() State {
	return State{
		Nodes:   latest(f.nodes),
		Metrics: latest(f.metrics),
		MQTT:    latest(f.mqtt),
		Topics:  latest(f.topics),
		Routing: latest(f.routing),
		Events:  latest(f.events),
		Failures: f.nodes.Failures() + f.metrics.Failures() + f.mqtt.Failures() +
			f.topics.Failures() + f.routing.Failures() + f.events.Failures(),
	}
}

// Run polls src and redraws the screen every refresh interval until ctx
// is done or the user interrupts.
func Run(ctx context.Context, src Source, cfg Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = time.Second
	}

	fs := newFeeds(src, cfg.Poll, cfg.Logger)
	done := make(chan error, 1)
	go func() { done <- poll.RunAll(ctx, fs.runners()...) }()

	// Hide cursor
	fmt.Fprint(out, "\033[?25l")
	defer fmt.Fprint(out, "\033[?25h\n")

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	draw := func() {
		st := fs.state()
		st.Server, st.Now, st.Refresh = cfg.Server, time.Now(), refresh
		// Move cursor to top-left and clear screen
		fmt.Fprint(out, "\033[H\033[J")
		Render(out, st)
	}

	draw()
	for {
		select {
		case <-ctx.Done():
			return <-done
		case <-ticker.C:
			draw()
		}
	}
}

func rule(w io.Writer) {
	ui.Subtle.Fprintln(w, "  "+strings.Repeat("─", width-2))
}

func waiting(w io.Writer, what string) {
	ui.Subtle.Fprintf(w, "  waiting for %s…\n", what)
}

// Render writes one screen of st to w.
func Render(w io.Writer, st State) {
	ui.Brand.Fprint(w, "  meshviz status")
	fmt.Fprintf(w, "  %s", ui.Subtle.Sprint(st.Server))
	fmt.Fprintf(w, "%*s\n", max(1, width-19-len(st.Server)), st.Now.Format("15:04:05"))
	rule(w)

	renderMetrics(w, st.Metrics)
	rule(w)
	renderNodes(w, st.Nodes)
	rule(w)
	renderMQTT(w, st.MQTT, st.Topics)
	rule(w)
	renderRouting(w, st.Routing)
	rule(w)
	renderEvents(w, st.Events)
	rule(w)

	ui.Subtle.Fprintf(w, "  Refresh: %s · poll failures: %d · Ctrl+C to exit\n", st.Refresh, st.Failures)
}

func renderMetrics(w io.Writer, m *sim.Metrics) {
	if m == nil {
		waiting(w, "metrics")
		return
	}
	fmt.Fprintf(w, "  PDR  %s %5.1f%%   sim time %.1fs\n", progressBar(m.PDR*100, 20), m.PDR*100, m.Now)
	fmt.Fprintf(w, "  %s %.1f ms   %s %d   %s %d\n",
		ui.Subtle.Sprint("latency"), m.AvgLatencyMs,
		ui.Subtle.Sprint("delivered"), m.Delivered,
		ui.Subtle.Sprint("duplicates"), m.Duplicates)
}

func renderNodes(w io.Writer, nodes *[]sim.Node) {
	if nodes == nil {
		waiting(w, "nodes")
		return
	}
	if len(*nodes) == 0 {
		ui.Subtle.Fprintln(w, "  No nodes")
		return
	}

	fmt.Fprintf(w, "  %-5s %-11s %-7s %-15s %-24s %s\n",
		ui.Subtle.Sprint("ID"), ui.Subtle.Sprint("ROLE"), ui.Subtle.Sprint("PHY"),
		ui.Subtle.Sprint("POSITION"), ui.Subtle.Sprint("ENERGY"), ui.Subtle.Sprint("STATE"))
	for _, n := range *nodes {
		role := string(n.Role)
		if n.IsBroker && n.Role != sim.RoleBroker {
			role += "*"
		}
		state := ui.Good.Sprint("awake")
		if !n.Awake {
			state = ui.Subtle.Sprint("asleep")
		}
		if n.Mobile {
			state += ui.Info.Sprintf(" mobile %.1f", n.Speed)
		}
		fmt.Fprintf(w, "  %-5d %-11s %-7s %-15s %s %5.1f%%  %s\n",
			n.ID, truncate(role, 11), n.Phy, fmt.Sprintf("(%.0f, %.0f)", n.X, n.Y),
			energyBar(n.Energy), n.Energy, state)
	}
}

func renderMQTT(w io.Writer, stats *sim.MQTTStats, topics *[]sim.TopicCount) {
	if stats == nil {
		waiting(w, "MQTT stats")
		return
	}

	brokers := sortedKeys(stats.Brokers)
	for _, id := range brokers {
		b := stats.Brokers[id]
		fmt.Fprintf(w, "  %s %-4s queue %-4d recv %-5d delivered %-5d qos0/1 %d/%d  dup %d\n",
			ui.Brand.Sprint("broker"), id, b.QueueDepth, b.MessagesReceived, b.MessagesDelivered,
			b.QoS0Messages, b.QoS1Messages, b.DuplicatesSent)
	}

	clients := sortedKeys(stats.Clients)
	for _, id := range clients {
		c := stats.Clients[id]
		fmt.Fprintf(w, "  %s %-4s %s %-10s pub %-4d recv %-4d dup %-3d reconnects %d %s\n",
			ui.Subtle.Sprint("client"), id, ui.StatusIcon(c.Connected), truncate(c.Role, 10),
			c.Stats.MessagesPublished, c.Stats.MessagesReceived, c.Stats.DuplicatesReceived,
			c.Stats.Reconnects, ui.Subtle.Sprint(strings.Join(c.SubscribedTopics, ",")))
	}
	if len(brokers) == 0 && len(clients) == 0 {
		ui.Subtle.Fprintln(w, "  No MQTT activity")
	}

	if topics != nil && len(*topics) > 0 {
		parts := make([]string, 0, len(*topics))
		for _, t := range *topics {
			parts = append(parts, fmt.Sprintf("%s=%d", t.Topic, t.Messages))
		}
		fmt.Fprintf(w, "  %s %s\n", ui.Subtle.Sprint("topics"), strings.Join(parts, "  "))
	}
}

func renderRouting(w io.Writer, tables *[]sim.RoutingTable) {
	if tables == nil {
		waiting(w, "routing tables")
		return
	}
	shown := 0
	for _, t := range *tables {
		if len(t.Routes) == 0 {
			continue
		}
		routes := make([]string, 0, len(t.Routes))
		for _, r := range t.Routes {
			routes = append(routes, fmt.Sprintf("%d→%d(%d)", r.Dest, r.NextHop, r.Metric))
		}
		fmt.Fprintf(w, "  %s %-4d %s\n", ui.Subtle.Sprint("node"), t.NodeID, truncate(strings.Join(routes, " "), width-14))
		shown++
	}
	if shown == 0 {
		ui.Subtle.Fprintln(w, "  No routes")
	}
}

func renderEvents(w io.Writer, events *[]sim.ReconnectEvent) {
	if events == nil {
		waiting(w, "reconnection events")
		return
	}
	if len(*events) == 0 {
		ui.Subtle.Fprintln(w, "  No reconnections")
		return
	}
	evs := *events
	if len(evs) > 5 {
		evs = evs[len(evs)-5:]
	}
	for _, e := range evs {
		reason := e.Reason
		if reason == "" {
			reason = "reconnect"
		}
		fmt.Fprintf(w, "  %s t=%-8.1f client %-4d %s\n", ui.WarnIcon(), e.Time, e.ClientID, reason)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}

func energyBar(pct float64) string {
	c := ui.Good
	switch {
	case pct < 20:
		c = ui.Bad
	case pct < 50:
		c = ui.Warn
	}
	filled := clamp(int(pct/100*10), 0, 10)
	return "[" + c.Sprint(strings.Repeat("█", filled)) + ui.Subtle.Sprint(strings.Repeat("░", 10-filled)) + "]"
}

func progressBar(pct float64, w int) string {
	filled := clamp(int(pct/100*float64(w)), 0, w)
	return "[" + ui.Brand.Sprint(strings.Repeat("█", filled)) +
		ui.Subtle.Sprint(strings.Repeat("░", w-filled)) + "]"
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
