package sim

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, 0)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClient_RejectsBadScheme(t *testing.T) {
	if _, err := NewClient("ftp://example.com", 0); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestNodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/nodes" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`[{"id":1,"role":"sensor","phy":"WiFi","x":10,"y":20,"energy":99.5,"awake":true,"sleepRatio":0.2,"isBroker":false},
			{"id":2,"role":"broker","phy":"BLE","x":30,"y":40,"energy":100,"awake":true,"sleepRatio":0.2,"isBroker":true,"mobile":true,"speed":1.5}]`))
	})

	nodes, err := c.Nodes(context.Background())
	if err != nil {
		t.Fatalf("Nodes failed: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].Role != RoleSensor || nodes[0].X != 10 || nodes[0].Energy != 99.5 {
		t.Errorf("unexpected first node: %+v", nodes[0])
	}
	if !nodes[1].IsBroker || !nodes[1].Mobile || nodes[1].Speed != 1.5 {
		t.Errorf("unexpected second node: %+v", nodes[1])
	}
}

func TestTraffic_QueryParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.Method != http.MethodPost || r.URL.Path != "/traffic" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if q.Get("src") != "1" || q.Get("dst") != "2" || q.Get("n") != "37" || q.Get("size") != "100" || q.Get("kind") != "BLE" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"enqueued_ok": 37}`))
	})

	res, err := c.Traffic(context.Background(), TrafficRequest{Src: 1, Dst: 2, N: 37, Size: 100, Kind: PhyBLE})
	if err != nil {
		t.Fatalf("Traffic failed: %v", err)
	}
	if res.EnqueuedOK != 37 {
		t.Errorf("expected 37 enqueued, got %d", res.EnqueuedOK)
	}
}

func TestDeleteNode_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/nodes/7" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "node not found"})
	})

	err := c.DeleteNode(context.Background(), 7)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", se.Code)
	}
	if se.Detail != "node not found" {
		t.Errorf("expected detail 'node not found', got %q", se.Detail)
	}
}

func TestMoveNode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/nodes/3/position" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("x") != "12.5" || r.URL.Query().Get("y") != "40" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"ok":true}`))
	})

	if err := c.MoveNode(context.Background(), 3, 12.5, 40); err != nil {
		t.Fatalf("MoveNode failed: %v", err)
	}
}

func TestCreateNode_SendsJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body NodeCreate
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if body.Role != RolePublisher || body.Phy != PhyWiFi || body.X != 100 {
			t.Errorf("unexpected body %+v", body)
		}
		w.Write([]byte(`{"id":9,"role":"publisher","phy":"WiFi","x":100,"y":50}`))
	})

	n, err := c.CreateNode(context.Background(), NodeCreate{Role: RolePublisher, Phy: PhyWiFi, X: 100, Y: 50})
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if n.ID != 9 {
		t.Errorf("expected id 9, got %d", n.ID)
	}
}

func TestMQTTStats(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"brokers":{"3":{"queue_depth":2,"messages_received":10,"messages_delivered":8}},
			"clients":{"1":{"connected":true,"role":"publisher","subscribed_topics":[],"stats":{"messages_published":4,"reconnects":1}}}}`))
	})

	s, err := c.MQTTStats(context.Background())
	if err != nil {
		t.Fatalf("MQTTStats failed: %v", err)
	}
	if s.Brokers["3"].MessagesDelivered != 8 {
		t.Errorf("expected 8 delivered, got %d", s.Brokers["3"].MessagesDelivered)
	}
	if s.Clients["1"].Stats.Reconnects != 1 {
		t.Errorf("expected 1 reconnect, got %d", s.Clients["1"].Stats.Reconnects)
	}
}

func TestDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	if _, err := c.Metrics(context.Background()); err == nil {
		t.Error("expected decode error")
	}
}
