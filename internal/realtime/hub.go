package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub tracks connected clients and their room fan-out groups. A connection
// registers on upgrade and is associated with a room only once it joins one,
// because a socket picks its room after connecting.
//
// Hub implements session.Broadcaster. Sends are buffered and never block, so
// the session core may emit while holding a room lock.
type Hub struct {
	// clientID -> *Client, every open connection
	clients map[string]*Client
	// roomCode -> map[clientID]*Client
	rooms map[string]map[string]*Client
	subs  map[string]func() // cancel Redis subscription per room
	mu    sync.RWMutex

	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance chat fan-out).
type RedisPublisher interface {
	PublishRoomEvent(roomCode, event string, payload []byte) error
}

// RedisSubscriber subscribes to room channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeRoom(roomCode string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil, in
// which case chat stays instance-local.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a freshly-upgraded connection.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", c.ID))
}

// Unregister removes a connection and any room association it still holds.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	for code, members := range h.rooms {
		if _, ok := members[c.ID]; ok {
			delete(members, c.ID)
			h.dropRoomIfEmptyLocked(code)
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID))
}

// Join associates a connection with a room's fan-out group. The first member
// of a room starts the Redis subscription for that room's chat channel.
func (h *Hub) Join(roomCode, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	if h.rooms[roomCode] == nil {
		h.rooms[roomCode] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeRoom(roomCode, func(event string, payload []byte) {
				h.Broadcast(roomCode, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[roomCode] = cancel
			} else {
				h.logger.Warn("room subscribe failed", zap.String("room", roomCode), zap.Error(err))
			}
		}
	}
	h.rooms[roomCode][clientID] = c
}

// Leave disassociates a connection from a room's fan-out group.
func (h *Hub) Leave(roomCode, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[roomCode]
	if !ok {
		return
	}
	delete(members, clientID)
	h.dropRoomIfEmptyLocked(roomCode)
}

func (h *Hub) dropRoomIfEmptyLocked(roomCode string) {
	if len(h.rooms[roomCode]) > 0 {
		return
	}
	delete(h.rooms, roomCode)
	if cancel, ok := h.subs[roomCode]; ok {
		cancel()
		delete(h.subs, roomCode)
	}
}

// Broadcast sends an event to all connections joined to a room (local only).
func (h *Hub) Broadcast(roomCode, event string, payload interface{}) {
	msg := WSMessage{Event: event, Data: marshal(payload)}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[roomCode] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish fans a chat event out through Redis so every instance (including
// this one) delivers it exactly once via its subscriber callback. Without
// Redis it falls back to a local broadcast.
func (h *Hub) Publish(roomCode, event string, payload interface{}) {
	if h.redis != nil {
		_ = h.redis.PublishRoomEvent(roomCode, event, marshal(payload))
		return
	}
	h.Broadcast(roomCode, event, payload)
}

// Unicast delivers an event to exactly one connection.
func (h *Hub) Unicast(clientID, event string, payload interface{}) {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: marshal(payload)}:
	default:
	}
}

// RoomCount returns the number of connections joined to a room.
func (h *Hub) RoomCount(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomCode])
}

func marshal(payload interface{}) json.RawMessage {
	switch v := payload.(type) {
	case nil:
		return nil
	case []byte:
		return v
	case json.RawMessage:
		return v
	default:
		data, _ := json.Marshal(payload)
		return data
	}
}
