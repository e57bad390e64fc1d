package hub

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T, handler Handler) (*Hub, *httptest.Server) {
	t.Helper()
	h := New(handler, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("bad message %s: %v", data, err)
	}
	return m
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, h.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_HelloAndBroadcast(t *testing.T) {
	h, srv := startHub(t, nil)
	conn := dial(t, srv)

	hello := readMessage(t, conn)
	if hello.Type != TypeHello {
		t.Fatalf("expected hello first, got %s", hello.Type)
	}
	var id map[string]string
	json.Unmarshal(hello.Data, &id)
	if id["id"] == "" {
		t.Error("hello should carry a client id")
	}

	waitClients(t, h, 1)
	if err := h.Broadcast(TypeNotice, map[string]string{"text": "hi"}); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	m := readMessage(t, conn)
	if m.Type != TypeNotice || !strings.Contains(string(m.Data), "hi") {
		t.Errorf("unexpected message %s %s", m.Type, m.Data)
	}
}

func TestHub_SendReachesOneClient(t *testing.T) {
	h, srv := startHub(t, nil)
	a := dial(t, srv)
	b := dial(t, srv)
	var id map[string]string
	json.Unmarshal(readMessage(t, a).Data, &id)
	readMessage(t, b)
	waitClients(t, h, 2)

	if err := h.Send(id["id"], TypeNotice, map[string]string{"text": "only a"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	h.Broadcast(TypeNotice, map[string]string{"text": "everyone"})

	got := string(readMessage(t, a).Data) + string(readMessage(t, a).Data)
	if !strings.Contains(got, "only a") || !strings.Contains(got, "everyone") {
		t.Errorf("addressed client should get both messages, got %s", got)
	}
	if m := readMessage(t, b); !strings.Contains(string(m.Data), "everyone") {
		t.Errorf("expected the broadcast, got %s", m.Data)
	}
	b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, data, err := b.ReadMessage(); err == nil {
		t.Errorf("other client must not see the direct message, got %s", data)
	}
}

func TestHub_LatestFrameReplayed(t *testing.T) {
	h, srv := startHub(t, nil)
	h.Broadcast(TypeFrame, map[string]int{"seq": 41})
	h.Broadcast(TypeFrame, map[string]int{"seq": 42})

	conn := dial(t, srv)
	readMessage(t, conn) // hello
	m := readMessage(t, conn)
	if m.Type != TypeFrame || !strings.Contains(string(m.Data), "42") {
		t.Errorf("late client should get the latest frame, got %s %s", m.Type, m.Data)
	}
}

func TestHub_InboundEvents(t *testing.T) {
	var mu sync.Mutex
	var got []Event
	received := make(chan struct{}, 4)
	h, srv := startHub(t, func(clientID string, ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		received <- struct{}{}
	})
	conn := dial(t, srv)
	readMessage(t, conn)
	waitClients(t, h, 1)

	conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"move","x":300,"y":150}`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"traffic","src":1,"dst":2,"n":10,"kind":"BLE"}`))

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("malformed events should be skipped, got %d events", len(got))
	}
	if got[0].Type != "move" || got[0].X != 300 || got[0].Y != 150 {
		t.Errorf("unexpected move event %+v", got[0])
	}
	if got[1].Type != "traffic" || got[1].Src != 1 || got[1].Dst != 2 || got[1].N != 10 || got[1].Kind != "BLE" {
		t.Errorf("unexpected traffic event %+v", got[1])
	}
}

func TestHub_Disconnect(t *testing.T) {
	h, srv := startHub(t, nil)
	conn := dial(t, srv)
	readMessage(t, conn)
	waitClients(t, h, 1)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitClients(t, h, 0)
}
