package sim

import "time"

// Role is the function a node plays in the simulated network.
type Role string

const (
	RoleSensor     Role = "sensor"
	RoleBroker     Role = "broker"
	RoleSubscriber Role = "subscriber"
	RolePublisher  Role = "publisher"
)

// Phy is the physical radio layer of a node or packet.
type Phy string

const (
	PhyWiFi   Phy = "WiFi"
	PhyBLE    Phy = "BLE"
	PhyZigbee Phy = "Zigbee"
)

// Node is one simulated device as reported by GET /nodes.
type Node struct {
	ID         int     `json:"id"`
	Role       Role    `json:"role"`
	Phy        Phy     `json:"phy"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Energy     float64 `json:"energy"`
	Awake      bool    `json:"awake"`
	SleepRatio float64 `json:"sleepRatio"`
	IsBroker   bool    `json:"isBroker"`
	Mobile     bool    `json:"mobile"`
	Speed      float64 `json:"speed"`
}

// NodeCreate is the body of POST /nodes.
type NodeCreate struct {
	Role   Role    `json:"role"`
	Phy    Phy     `json:"phy"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Mobile bool    `json:"mobile,omitempty"`
	Speed  float64 `json:"speed,omitempty"`
}

// Metrics is the aggregate delivery view of GET /metrics.
type Metrics struct {
	Now          float64 `json:"now"`
	PDR          float64 `json:"pdr"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
	Delivered    int     `json:"delivered"`
	Duplicates   int     `json:"duplicates"`
}

// RouteEntry is one row of a node's routing table.
type RouteEntry struct {
	Dest    int `json:"dest"`
	NextHop int `json:"nextHop"`
	Metric  int `json:"metric"`
}

// RoutingTable holds the routes known by a single node.
type RoutingTable struct {
	NodeID int          `json:"nodeId"`
	Routes []RouteEntry `json:"routes"`
}

// TrafficRequest asks the simulator to enqueue n packets from Src to Dst.
type TrafficRequest struct {
	Src  int
	Dst  int
	N    int
	Size int
	Kind Phy
}

// TrafficResult only carries an aggregate count; the simulator never
// reports per-packet identifiers.
type TrafficResult struct {
	EnqueuedOK int `json:"enqueued_ok"`
}

// BrokerStats mirrors one broker entry of GET /mqtt/stats.
type BrokerStats struct {
	QueueDepth        int `json:"queue_depth"`
	MessagesReceived  int `json:"messages_received"`
	MessagesDelivered int `json:"messages_delivered"`
	QoS0Messages      int `json:"qos0_messages"`
	QoS1Messages      int `json:"qos1_messages"`
	DuplicatesSent    int `json:"duplicates_sent"`
}

// ClientCounters are the per-client MQTT counters.
type ClientCounters struct {
	MessagesPublished  int `json:"messages_published"`
	MessagesReceived   int `json:"messages_received"`
	DuplicatesReceived int `json:"duplicates_received"`
	Reconnects         int `json:"reconnects"`
}

// ClientStats mirrors one client entry of GET /mqtt/stats.
type ClientStats struct {
	Connected        bool           `json:"connected"`
	Role             string         `json:"role"`
	SubscribedTopics []string       `json:"subscribed_topics"`
	Stats            ClientCounters `json:"stats"`
}

// MQTTStats is keyed by node id rendered as a string, as the service sends it.
type MQTTStats struct {
	Brokers map[string]BrokerStats `json:"brokers"`
	Clients map[string]ClientStats `json:"clients"`
}

// TopicCount is the number of messages seen on a topic.
type TopicCount struct {
	Topic    string `json:"topic"`
	Messages int    `json:"messages"`
}

// ReconnectEvent records a client reconnecting to its broker.
type ReconnectEvent struct {
	ClientID int     `json:"client_id"`
	Time     float64 `json:"time"`
	Reason   string  `json:"reason,omitempty"`
}

// SubscribeRequest subscribes a client to a topic.
type SubscribeRequest struct {
	ClientID int
	Topic    string
	QoS      int
}

// PublishRequest publishes a payload from a publisher node.
type PublishRequest struct {
	PublisherID int
	Topic       string
	Payload     string
	QoS         int
	Retained    bool
}

// PublishResult is the loosely specified answer of POST /mqtt/publish.
type PublishResult struct {
	OK        bool `json:"ok"`
	Delivered int  `json:"delivered"`
}

// Health is the answer of GET /health.
type Health struct {
	Status string `json:"status"`
}

// DefaultTimeout bounds a single request to the simulation service.
const DefaultTimeout = 5 * time.Second
