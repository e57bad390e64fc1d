// Package hub fans rendered frames out to browser websocket clients and
// decodes the pointer and action events they send back.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meshlab/meshviz/internal/logging"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 8
)

// Outbound message types.
const (
	TypeHello   = "hello"
	TypeFrame   = "frame"
	TypeNotice  = "notice"
	TypeMetrics = "metrics"
)

// Message is the envelope of every outbound message.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is an inbound message from a browser.
type Event struct {
	Type string  `json:"type"`
	X    float64 `json:"x,omitempty"`
	Y    float64 `json:"y,omitempty"`
	ID   int     `json:"id,omitempty"`
	Op   string  `json:"op,omitempty"`

	Src  int    `json:"src,omitempty"`
	Dst  int    `json:"dst,omitempty"`
	N    int    `json:"n,omitempty"`
	Size int    `json:"size,omitempty"`
	Kind string `json:"kind,omitempty"`

	Topic    string `json:"topic,omitempty"`
	Payload  string `json:"payload,omitempty"`
	QoS      int    `json:"qos,omitempty"`
	Retained bool   `json:"retained,omitempty"`
}

// Handler receives decoded events. It runs on the client's read goroutine.
type Handler func(clientID string, ev Event)

type directed struct {
	to  string
	msg []byte
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients. Run must be running for clients to be
// registered and for broadcasts to go out.
type Hub struct {
	upgrader websocket.Upgrader
	handler  Handler
	log      *zap.Logger

	register  chan *client
	remove    chan *client
	broadcast chan []byte
	direct    chan directed
	done      chan struct{}

	clients atomic.Int64
	latest  atomic.Pointer[[]byte]
}

// New creates a hub dispatching inbound events to handler.
func New(handler Handler, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		handler:   handler,
		log:       logging.OrNop(log),
		register:  make(chan *client),
		remove:    make(chan *client),
		broadcast: make(chan []byte, 16),
		direct:    make(chan directed, 16),
		done:      make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	clients := make(map[*client]struct{})

	drop := func(c *client) {
		if _, ok := clients[c]; !ok {
			return
		}
		delete(clients, c)
		close(c.send)
		h.clients.Store(int64(len(clients)))
	}

	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				drop(c)
			}
			return nil
		case c := <-h.register:
			clients[c] = struct{}{}
			h.clients.Store(int64(len(clients)))
			h.log.Debug("websocket client connected", zap.String("client", c.id), zap.Int("clients", len(clients)))
		case c := <-h.remove:
			drop(c)
			h.log.Debug("websocket client disconnected", zap.String("client", c.id), zap.Int("clients", len(clients)))
		case msg := <-h.broadcast:
			for c := range clients {
				select {
				case c.send <- msg:
				default:
					// Frames supersede each other; a full buffer just skips this one.
				}
			}
		case d := <-h.direct:
			for c := range clients {
				if c.id != d.to {
					continue
				}
				select {
				case c.send <- d.msg:
				default:
					h.log.Debug("direct message dropped", zap.String("client", c.id))
				}
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.clients.Load())
}

func encode(typ string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: typ, Data: data})
}

// Broadcast sends v to every client as a message of type typ. It never
// blocks; when the hub is saturated the message is dropped. The latest
// frame is replayed to clients that connect later.
func (h *Hub) Broadcast(typ string, v any) error {
	msg, err := encode(typ, v)
	if err != nil {
		return err
	}
	if typ == TypeFrame {
		h.latest.Store(&msg)
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Debug("broadcast dropped", zap.String("type", typ))
	}
	return nil
}

// Send delivers v to the client with the given id only. Like Broadcast
// it never blocks, and a message for an unknown client is discarded.
func (h *Hub) Send(clientID, typ string, v any) error {
	msg, err := encode(typ, v)
	if err != nil {
		return err
	}
	select {
	case h.direct <- directed{to: clientID, msg: msg}:
	default:
		h.log.Debug("direct message dropped", zap.String("client", clientID), zap.String("type", typ))
	}
	return nil
}

// ServeHTTP upgrades the request to a websocket client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	if hello, err := encode(TypeHello, map[string]string{"id": c.id}); err == nil {
		c.send <- hello
	}
	if latest := h.latest.Load(); latest != nil {
		c.send <- *latest
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) unregister(c *client) {
	select {
	case h.remove <- c:
	case <-h.done:
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			h.log.Debug("malformed websocket event", zap.String("client", c.id), zap.ByteString("data", data))
			continue
		}
		if h.handler != nil {
			h.handler(c.id, ev)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("websocket write failed", zap.String("client", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
