package dashboard

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/meshlab/meshviz/internal/config"
	"github.com/meshlab/meshviz/internal/sim"
)

func init() {
	color.NoColor = true
}

func TestRender_Waiting(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, State{Server: "http://sim:8000", Now: time.Now(), Refresh: time.Second})
	out := buf.String()

	for _, want := range []string{"meshviz status", "http://sim:8000", "waiting for metrics", "waiting for nodes",
		"waiting for MQTT stats", "waiting for routing tables", "waiting for reconnection events"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRender_Panels(t *testing.T) {
	nodes := []sim.Node{
		{ID: 1, Role: sim.RoleSensor, Phy: sim.PhyBLE, X: 10, Y: 20, Energy: 87.5, Awake: true},
		{ID: 2, Role: sim.RoleSubscriber, Phy: sim.PhyWiFi, X: 30, Y: 40, Energy: 12, Mobile: true, Speed: 1.5},
	}
	metrics := sim.Metrics{Now: 12.5, PDR: 0.75, AvgLatencyMs: 3.2, Delivered: 30, Duplicates: 1}
	mqtt := sim.MQTTStats{
		Brokers: map[string]sim.BrokerStats{"10": {QueueDepth: 2}, "9": {QueueDepth: 1}},
		Clients: map[string]sim.ClientStats{"2": {Connected: true, Role: "subscriber", SubscribedTopics: []string{"sensors/temp"}}},
	}
	topics := []sim.TopicCount{{Topic: "sensors/temp", Messages: 4}}
	routing := []sim.RoutingTable{{NodeID: 1, Routes: []sim.RouteEntry{{Dest: 2, NextHop: 3, Metric: 2}}}, {NodeID: 4}}
	var events []sim.ReconnectEvent
	for i := 1; i <= 7; i++ {
		events = append(events, sim.ReconnectEvent{ClientID: 100 + i, Time: float64(i)})
	}

	var buf bytes.Buffer
	Render(&buf, State{
		Now: time.Now(), Nodes: &nodes, Metrics: &metrics, MQTT: &mqtt,
		Topics: &topics, Routing: &routing, Events: &events, Failures: 3,
	})
	out := buf.String()

	for _, want := range []string{
		"75.0%", "latency 3.2 ms", "(10, 20)", "87.5%", "asleep", "mobile 1.5",
		"sensors/temp=4", "2→3(2)", "client 107", "poll failures: 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "client 102 ") {
		t.Error("only the last 5 reconnections should be shown")
	}
	if strings.Index(out, "broker 9 ") > strings.Index(out, "broker 10 ") {
		t.Error("brokers should be sorted numerically")
	}
}

func TestRender_Empty(t *testing.T) {
	var nodes []sim.Node
	var routing []sim.RoutingTable
	var events []sim.ReconnectEvent
	mqtt := sim.MQTTStats{}

	var buf bytes.Buffer
	Render(&buf, State{Nodes: &nodes, Routing: &routing, Events: &events, MQTT: &mqtt})
	out := buf.String()
	for _, want := range []string{"No nodes", "No routes", "No reconnections", "No MQTT activity"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

type fakeSource struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeSource) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakeSource) Nodes(ctx context.Context) ([]sim.Node, error) {
	f.hit("nodes")
	return []sim.Node{{ID: 5, Role: sim.RoleBroker, IsBroker: true}}, nil
}
func (f *fakeSource) Metrics(ctx context.Context) (sim.Metrics, error) {
	f.hit("metrics")
	return sim.Metrics{PDR: 1}, nil
}
func (f *fakeSource) MQTTStats(ctx context.Context) (sim.MQTTStats, error) {
	f.hit("mqtt")
	return sim.MQTTStats{}, nil
}
func (f *fakeSource) Topics(ctx context.Context) ([]sim.TopicCount, error) {
	f.hit("topics")
	return nil, nil
}
func (f *fakeSource) Routing(ctx context.Context) ([]sim.RoutingTable, error) {
	f.hit("routing")
	return nil, nil
}
func (f *fakeSource) Reconnections(ctx context.Context) ([]sim.ReconnectEvent, error) {
	f.hit("events")
	return nil, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_PollsAndRedraws(t *testing.T) {
	src := &fakeSource{}
	out := &syncBuffer{}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := Run(ctx, src, Config{
		Server:          "http://sim",
		RefreshInterval: 50 * time.Millisecond,
		Poll:            config.Default().Poll,
		Out:             out,
	})
	if err != nil {
		t.Fatalf("Run returned %v", err)
	}

	for _, name := range []string{"nodes", "metrics", "mqtt", "topics", "routing", "events"} {
		src.mu.Lock()
		n := src.calls[name]
		src.mu.Unlock()
		if n == 0 {
			t.Errorf("feed %s was never polled", name)
		}
	}
	if strings.Count(out.String(), "meshviz status") < 2 {
		t.Error("expected the screen to be redrawn on the ticker")
	}
	if !strings.Contains(out.String(), "100.0%") {
		t.Error("expected polled metrics on screen")
	}
}
