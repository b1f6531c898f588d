package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/werkstatthub/signpad-server-go/internal/config"
	redisclient "github.com/werkstatthub/signpad-server-go/internal/redis"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent marshals data into an Event payload.
func NewEvent(eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: raw}, nil
}

type Role string

const (
	RoleTablet      Role = "tablet"
	RoleWorkstation Role = "workstation"
)

// Client is one live device connection. Events is drained by the stream
// handler; Done closes when the hub evicts the client.
type Client struct {
	DeviceID    string
	CompanyID   string
	Role        Role
	Events      chan Event
	Done        chan struct{}
	ConnectedAt time.Time

	mu         sync.Mutex
	lastActive time.Time
	closed     bool
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

func (c *Client) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Done)
	}
}

// StatusSink receives connectivity transitions. The durable device registry
// implements it; the hub never writes device rows itself.
type StatusSink interface {
	MarkOnline(ctx context.Context, deviceID string, role Role)
	MarkOffline(ctx context.Context, deviceID string, role Role, lastSeen time.Time)
}

// DisconnectListener is signalled when a device drops for real (not when a
// reconnect replaces its stale connection).
type DisconnectListener func(deviceID string, role Role, reason string)

// Hub owns every live connection, exactly one per device id. It routes
// session events between tablets and workstations; workstation events also
// fan out over redis so the instance holding the workstation stream delivers
// them regardless of which instance produced them.
type Hub struct {
	redis  *redisclient.Client
	status StatusSink

	mu           sync.RWMutex
	clients      map[string]*Client
	subscribed   map[string]bool // workstation ids with a live redis subscription
	onDisconnect DisconnectListener

	ctx    context.Context
	cancel context.CancelFunc
}

func New(redisClient *redisclient.Client, status StatusSink) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		redis:      redisClient,
		status:     status,
		clients:    make(map[string]*Client),
		subscribed: make(map[string]bool),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// OnDisconnect registers the session coordinator's disconnect hook. Must be
// called before the first connection is accepted.
func (h *Hub) OnDisconnect(fn DisconnectListener) {
	h.mu.Lock()
	h.onDisconnect = fn
	h.mu.Unlock()
}

// clientKey namespaces connections by role. Tablet and workstation ids are
// separate identity spaces; without the prefix a workstation stream opened
// under a tablet's id would claim the tablet's slot and receive its events.
func clientKey(deviceID string, role Role) string {
	return string(role) + "/" + deviceID
}

// Register admits a connection for the device, force-closing any stale one
// (replace semantics). The replaced connection does not count as a
// disconnect: the device never went offline.
func (h *Hub) Register(ctx context.Context, deviceID, companyID string, role Role) *Client {
	client := &Client{
		DeviceID:    deviceID,
		CompanyID:   companyID,
		Role:        role,
		Events:      make(chan Event, config.ConnectionEventBuffer),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
		lastActive:  time.Now(),
	}

	key := clientKey(deviceID, role)

	h.mu.Lock()
	stale := h.clients[key]
	h.clients[key] = client
	needSubscribe := role == RoleWorkstation && h.redis != nil && !h.subscribed[deviceID]
	if needSubscribe {
		h.subscribed[deviceID] = true
	}
	h.mu.Unlock()

	if stale != nil {
		stale.close()
		log.Info().Str("deviceId", deviceID).Msg("replaced stale connection")
	}
	if needSubscribe {
		go h.subscribeWorkstation(deviceID)
	}

	h.status.MarkOnline(ctx, deviceID, role)

	log.Info().
		Str("deviceId", deviceID).
		Str("companyId", companyID).
		Str("role", string(role)).
		Msg("device connected")

	return client
}

// Unregister removes the client and, if it was still the active connection
// for its device, runs the offline path. A client already replaced by a newer
// connection is a no-op.
func (h *Hub) Unregister(ctx context.Context, client *Client, reason string) {
	key := clientKey(client.DeviceID, client.Role)

	h.mu.Lock()
	current := h.clients[key]
	active := current == client
	if active {
		delete(h.clients, key)
	}
	listener := h.onDisconnect
	h.mu.Unlock()

	client.close()

	if !active {
		return
	}

	now := time.Now()
	h.status.MarkOffline(ctx, client.DeviceID, client.Role, now)

	log.Info().
		Str("deviceId", client.DeviceID).
		Str("role", string(client.Role)).
		Str("reason", reason).
		Msg("device disconnected")

	if listener != nil {
		listener(client.DeviceID, client.Role, reason)
	}
}

// Touch records traffic from the device, deferring the stale sweep.
func (h *Hub) Touch(deviceID string, role Role) {
	h.mu.RLock()
	client := h.clients[clientKey(deviceID, role)]
	h.mu.RUnlock()
	if client != nil {
		client.touch()
	}
}

func (h *Hub) IsOnline(deviceID string, role Role) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[clientKey(deviceID, role)]
	return ok
}

// Get returns the live client for a device, or nil.
func (h *Hub) Get(deviceID string, role Role) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientKey(deviceID, role)]
}

// Send delivers an event to the device's connection. It never blocks past
// ConnectionSendTimeout: a full buffer or closed peer reports failure, and a
// failed send evicts the connection so the offline path runs promptly.
func (h *Hub) Send(ctx context.Context, deviceID string, role Role, event Event) bool {
	h.mu.RLock()
	client := h.clients[clientKey(deviceID, role)]
	h.mu.RUnlock()

	if client == nil {
		return false
	}

	timer := time.NewTimer(config.ConnectionSendTimeout)
	defer timer.Stop()

	select {
	case client.Events <- event:
		return true
	case <-client.Done:
		return false
	case <-timer.C:
		log.Warn().
			Str("deviceId", deviceID).
			Str("eventType", event.Type).
			Msg("send timed out, evicting connection")
		h.Unregister(ctx, client, "send timeout")
		return false
	}
}

// BroadcastToWorkstation publishes an event for a workstation. Delivery goes
// through redis pub/sub so any instance holding the stream picks it up.
func (h *Hub) BroadcastToWorkstation(ctx context.Context, workstationID string, event Event) error {
	if h.redis == nil {
		// Single-instance mode: deliver straight to the local stream.
		h.deliverLocal(workstationID, RoleWorkstation, event)
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, redisclient.WorkstationChannel(workstationID), data).Err()
}

func (h *Hub) subscribeWorkstation(workstationID string) {
	channel := redisclient.WorkstationChannel(workstationID)
	pubsub := h.redis.Subscribe(h.ctx, channel)
	defer pubsub.Close()
	defer func() {
		h.mu.Lock()
		delete(h.subscribed, workstationID)
		h.mu.Unlock()
	}()

	log.Debug().
		Str("workstationId", workstationID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal workstation event")
				continue
			}

			h.deliverLocal(workstationID, RoleWorkstation, event)
		}
	}
}

func (h *Hub) deliverLocal(deviceID string, role Role, event Event) {
	h.mu.RLock()
	client := h.clients[clientKey(deviceID, role)]
	h.mu.RUnlock()

	if client == nil {
		return
	}

	select {
	case client.Events <- event:
	default:
		log.Warn().
			Str("deviceId", deviceID).
			Msg("client event buffer full, dropping event")
	}
}

// CloseIdle evicts connections with no traffic inside the grace window. This
// is the implicit-disconnect path for devices that stopped heartbeating
// without closing their stream.
func (h *Hub) CloseIdle(ctx context.Context, grace time.Duration) int {
	cutoff := time.Now().Add(-grace)

	h.mu.RLock()
	idle := make([]*Client, 0)
	for _, client := range h.clients {
		if client.LastActive().Before(cutoff) {
			idle = append(idle, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range idle {
		h.Unregister(ctx, client, "heartbeat grace window elapsed")
	}
	return len(idle)
}

func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ActiveTablets() int {
	return h.countRole(RoleTablet)
}

func (h *Hub) ActiveWorkstations() int {
	return h.countRole(RoleWorkstation)
}

func (h *Hub) countRole(role Role) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, client := range h.clients {
		if client.Role == role {
			n++
		}
	}
	return n
}

// Close tears down every connection and stops the redis subscriptions.
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}
