package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
}

// Client talks to the simulation service. GET methods return polled,
// eventually consistent state; POST methods are fire-and-forget commands.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient builds a client for the service rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// readDetail extracts the "detail" field error bodies carry, if any.
func readDetail(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(data, &body) == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(body.Detail)
		return string(b)
	}
	return strings.TrimSpace(string(data))
}

// Health pings the service.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &h)
	return h, err
}

// Nodes fetches the current node list.
func (c *Client) Nodes(ctx context.Context) ([]Node, error) {
	var nodes []Node
	if err := c.do(ctx, http.MethodGet, "/nodes", nil, nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// CreateNode adds a node and returns it as the service stored it.
func (c *Client) CreateNode(ctx context.Context, n NodeCreate) (Node, error) {
	var node Node
	err := c.do(ctx, http.MethodPost, "/nodes", nil, n, &node)
	return node, err
}

// DeleteNode removes a node.
func (c *Client) DeleteNode(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/nodes/"+strconv.Itoa(id), nil, nil, nil)
}

// MoveNode relocates a node (used for brokers) to new coordinates.
func (c *Client) MoveNode(ctx context.Context, id int, x, y float64) error {
	q := url.Values{}
	q.Set("x", strconv.FormatFloat(x, 'f', -1, 64))
	q.Set("y", strconv.FormatFloat(y, 'f', -1, 64))
	return c.do(ctx, http.MethodPost, "/nodes/"+strconv.Itoa(id)+"/position", q, nil, nil)
}

// Metrics fetches aggregate delivery metrics.
func (c *Client) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	err := c.do(ctx, http.MethodGet, "/metrics", nil, nil, &m)
	return m, err
}

// Routing fetches every node's routing table.
func (c *Client) Routing(ctx context.Context) ([]RoutingTable, error) {
	var tables []RoutingTable
	if err := c.do(ctx, http.MethodGet, "/routing", nil, nil, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// Start resumes the simulation clock.
func (c *Client) Start(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/control/start", nil, nil, nil)
}

// Pause stops the simulation clock.
func (c *Client) Pause(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/control/pause", nil, nil, nil)
}

// Reset clears every node and counter in the simulation.
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/control/reset", nil, nil, nil)
}

// Traffic submits a traffic generation request.
func (c *Client) Traffic(ctx context.Context, r TrafficRequest) (TrafficResult, error) {
	q := url.Values{}
	q.Set("src", strconv.Itoa(r.Src))
	q.Set("dst", strconv.Itoa(r.Dst))
	q.Set("n", strconv.Itoa(r.N))
	q.Set("size", strconv.Itoa(r.Size))
	q.Set("kind", string(r.Kind))
	var res TrafficResult
	err := c.do(ctx, http.MethodPost, "/traffic", q, nil, &res)
	return res, err
}

// Subscribe subscribes a client node to a topic.
func (c *Client) Subscribe(ctx context.Context, r SubscribeRequest) (map[string]any, error) {
	q := url.Values{}
	q.Set("client_id", strconv.Itoa(r.ClientID))
	q.Set("topic", r.Topic)
	q.Set("qos", strconv.Itoa(r.QoS))
	out := map[string]any{}
	err := c.do(ctx, http.MethodPost, "/mqtt/subscribe", q, nil, &out)
	return out, err
}

// Publish publishes a message from a publisher node.
func (c *Client) Publish(ctx context.Context, r PublishRequest) (PublishResult, error) {
	q := url.Values{}
	q.Set("publisher_id", strconv.Itoa(r.PublisherID))
	q.Set("topic", r.Topic)
	q.Set("payload", r.Payload)
	q.Set("qos", strconv.Itoa(r.QoS))
	q.Set("retained", strconv.FormatBool(r.Retained))
	var res PublishResult
	err := c.do(ctx, http.MethodPost, "/mqtt/publish", q, nil, &res)
	return res, err
}

// ResetMQTT clears broker and client state.
func (c *Client) ResetMQTT(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/mqtt/reset", nil, nil, nil)
}

// MQTTStats fetches broker and client counters.
func (c *Client) MQTTStats(ctx context.Context) (MQTTStats, error) {
	var s MQTTStats
	err := c.do(ctx, http.MethodGet, "/mqtt/stats", nil, nil, &s)
	return s, err
}

// Topics fetches per-topic message counts.
func (c *Client) Topics(ctx context.Context) ([]TopicCount, error) {
	var topics []TopicCount
	if err := c.do(ctx, http.MethodGet, "/mqtt/topics", nil, nil, &topics); err != nil {
		return nil, err
	}
	return topics, nil
}

// Reconnections fetches the most recent client reconnection events.
func (c *Client) Reconnections(ctx context.Context) ([]ReconnectEvent, error) {
	var events []ReconnectEvent
	if err := c.do(ctx, http.MethodGet, "/mqtt/reconnections", nil, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}
