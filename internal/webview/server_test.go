package webview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meshlab/meshviz/internal/hub"
	"github.com/meshlab/meshviz/internal/render"
	"github.com/meshlab/meshviz/internal/sim"
	"github.com/meshlab/meshviz/internal/view"
)

type fakeActions struct {
	mu       sync.Mutex
	calls    []string
	traffic  []sim.TrafficRequest
	publish  []sim.PublishRequest
	confirms []string
	trafErr  error
}

func (a *fakeActions) note(s string) {
	a.mu.Lock()
	a.calls = append(a.calls, s)
	a.mu.Unlock()
}

func (a *fakeActions) PointerMove(x, y float64) (sim.Node, bool) {
	a.note("move")
	return sim.Node{}, false
}
func (a *fakeActions) PointerLeave() { a.note("leave") }
func (a *fakeActions) Click(owner string, x, y float64) (sim.Node, bool) {
	a.note("click:" + owner)
	return sim.Node{}, false
}
func (a *fakeActions) ConfirmDelete(owner string, id int) bool {
	a.mu.Lock()
	a.confirms = append(a.confirms, fmt.Sprintf("%s:%d", owner, id))
	a.mu.Unlock()
	return true
}
func (a *fakeActions) CancelDelete(owner string) { a.note("cancel:" + owner) }
func (a *fakeActions) SendTraffic(ctx context.Context, r sim.TrafficRequest) (sim.TrafficResult, error) {
	a.mu.Lock()
	a.traffic = append(a.traffic, r)
	a.mu.Unlock()
	if a.trafErr != nil {
		return sim.TrafficResult{}, a.trafErr
	}
	return sim.TrafficResult{EnqueuedOK: r.N}, nil
}
func (a *fakeActions) Publish(ctx context.Context, r sim.PublishRequest) (sim.PublishResult, error) {
	a.mu.Lock()
	a.publish = append(a.publish, r)
	a.mu.Unlock()
	return sim.PublishResult{OK: true}, nil
}
func (a *fakeActions) Control(ctx context.Context, op string) error {
	a.note("control:" + op)
	return nil
}
func (a *fakeActions) Status() view.Status {
	return view.Status{Ready: true, Loop: "running", Nodes: 3}
}

func newTestServer(t *testing.T) (*Server, *fakeActions, *render.Recorder, *httptest.Server) {
	t.Helper()
	actions := &fakeActions{}
	rec := render.NewRecorder(1200, 700, nil)
	assets := fstest.MapFS{"index.html": {Data: []byte("<html>meshviz</html>")}}
	s := New(Config{Assets: assets}, actions, rec)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, actions, rec, ts
}

func TestStatusEndpoint(t *testing.T) {
	_, _, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string      `json:"status"`
		View   view.Status `json:"view"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Status != "running" || body.View.Nodes != 3 || !body.View.Ready {
		t.Errorf("unexpected status %+v", body)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header on API routes")
	}
}

func TestFrameEndpoint(t *testing.T) {
	_, _, rec, ts := newTestServer(t)

	resp, _ := http.Get(ts.URL + "/api/frame")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before the first frame, got %d", resp.StatusCode)
	}

	rec.Clear(render.Background)
	rec.Present(render.FrameInfo{Seq: 9, Nodes: 2})

	resp, _ = http.Get(ts.URL + "/api/frame")
	defer resp.Body.Close()
	var f render.Frame
	json.NewDecoder(resp.Body).Decode(&f)
	if f.Seq != 9 || f.Width != 1200 || len(f.Ops) != 1 || f.Ops[0].Op != "clear" {
		t.Errorf("unexpected frame %+v", f)
	}
}

func TestTrafficEndpoint(t *testing.T) {
	_, actions, _, ts := newTestServer(t)

	tests := []struct {
		query  string
		status int
	}{
		{"src=1&dst=2&n=10&size=50&kind=BLE", http.StatusOK},
		{"src=1&dst=2", http.StatusOK},
		{"src=x&dst=2", http.StatusBadRequest},
		{"src=1", http.StatusBadRequest},
		{"src=1&dst=2&n=many", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, err := http.Post(ts.URL+"/api/traffic?"+tt.query, "", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("%s: expected %d, got %d", tt.query, tt.status, resp.StatusCode)
		}
	}

	if len(actions.traffic) != 2 {
		t.Fatalf("expected 2 traffic requests, got %d", len(actions.traffic))
	}
	first := actions.traffic[0]
	if first.Src != 1 || first.Dst != 2 || first.N != 10 || first.Size != 50 || first.Kind != sim.PhyBLE {
		t.Errorf("unexpected request %+v", first)
	}
	def := actions.traffic[1]
	if def.N != 1 || def.Size != 100 || def.Kind != sim.PhyWiFi {
		t.Errorf("unexpected defaults %+v", def)
	}

	actions.trafErr = errors.New("simulator down")
	resp, _ := http.Post(ts.URL+"/api/traffic?src=1&dst=2", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502 on command failure, got %d", resp.StatusCode)
	}
}

func TestControlEndpoint(t *testing.T) {
	_, actions, _, ts := newTestServer(t)

	resp, _ := http.Post(ts.URL+"/api/control/pause", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	resp, _ = http.Post(ts.URL+"/api/control/explode", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if len(actions.calls) != 1 || actions.calls[0] != "control:pause" {
		t.Errorf("unexpected calls %v", actions.calls)
	}
}

func TestIndexServed(t *testing.T) {
	_, _, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "meshviz") {
		t.Errorf("expected index page, got %q", body)
	}
}

func TestHandleEvent(t *testing.T) {
	s, actions, _, _ := newTestServer(t)

	s.handleEvent("c1", hub.Event{Type: "move", X: 1, Y: 2})
	s.handleEvent("c1", hub.Event{Type: "leave"})
	s.handleEvent("c1", hub.Event{Type: "click", X: 3, Y: 4})
	s.handleEvent("c1", hub.Event{Type: "cancel"})
	s.handleEvent("c1", hub.Event{Type: "confirm", ID: 7})
	s.handleEvent("c1", hub.Event{Type: "traffic", Src: 1, Dst: 2, N: 3, Kind: "WiFi"})
	s.handleEvent("c1", hub.Event{Type: "publish", ID: 5, Topic: "t", QoS: 1})
	s.handleEvent("c1", hub.Event{Type: "control", Op: "start"})
	s.handleEvent("c1", hub.Event{Type: "dance"})

	want := []string{"move", "leave", "click:c1", "cancel:c1", "control:start"}
	if strings.Join(actions.calls, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, actions.calls)
	}
	if len(actions.confirms) != 1 || actions.confirms[0] != "c1:7" {
		t.Errorf("unexpected confirms %v", actions.confirms)
	}
	if len(actions.traffic) != 1 || actions.traffic[0].N != 3 {
		t.Errorf("unexpected traffic %v", actions.traffic)
	}
	if len(actions.publish) != 1 || actions.publish[0].PublisherID != 5 || actions.publish[0].QoS != 1 {
		t.Errorf("unexpected publish %v", actions.publish)
	}
}

func TestServe_StreamsFrames(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	if err != nil {
		cancel()
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil { // hello
		t.Fatalf("read hello: %v", err)
	}
	for s.Hub().Clients() != 1 {
		time.Sleep(5 * time.Millisecond)
	}

	s.PublishFrame(render.Frame{Seq: 3, Width: 10, Height: 10})
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var m hub.Message
	json.Unmarshal(data, &m)
	if m.Type != hub.TypeFrame || !strings.Contains(string(m.Data), `"seq":3`) {
		t.Errorf("unexpected message %s", data)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestNotify_AddressedNoticeSkipsOtherClients(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx, ln)

	dialID := func() (*websocket.Conn, string) {
		conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read hello: %v", err)
		}
		var m hub.Message
		json.Unmarshal(data, &m)
		var hello map[string]string
		json.Unmarshal(m.Data, &hello)
		return conn, hello["id"]
	}
	a, aID := dialID()
	b, _ := dialID()
	for s.Hub().Clients() != 2 {
		time.Sleep(5 * time.Millisecond)
	}

	s.Notify(view.Notice{Level: view.LevelInfo, Text: "Delete node 4 (broker)?", Confirm: 4, To: aID})

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := a.ReadMessage()
	if err != nil {
		t.Fatalf("clicking client should get the confirm notice: %v", err)
	}
	if !strings.Contains(string(data), `"confirm":4`) {
		t.Errorf("unexpected notice %s", data)
	}
	b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, data, err := b.ReadMessage(); err == nil {
		t.Errorf("other client must not get the confirm notice, got %s", data)
	}
}
