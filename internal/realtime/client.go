package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/talkround/backend/internal/session"
	"github.com/talkround/backend/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a single WebSocket connection. The connection ID doubles
// as the participant ID once the client joins a room.
type Client struct {
	ID       string
	roomCode string // room last joined via joinRoom; used for disconnect cleanup

	hub      *Hub
	sessions *session.Service
	relay    *signaling.Relay
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, sessions *session.Service, relay *signaling.Relay, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			hub:      hub,
			sessions: sessions,
			relay:    relay,
			conn:     conn,
			send:     make(chan WSMessage, 256),
			logger:   logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if c.roomCode != "" {
			// Disconnect cleanup: unconditional and idempotent.
			c.sessions.Leave(c.roomCode, c.ID)
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg WSMessage) {
	switch msg.Event {
	case "tryJoin":
		var p struct {
			RoomCode string `json:"roomCode"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		c.sessions.TryJoin(c.ID, p.RoomCode)

	case "joinRoom":
		var p struct {
			RoomCode string `json:"roomCode"`
			UserName string `json:"userName"`
			Animal   string `json:"animal"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		if c.roomCode != "" && c.roomCode != p.RoomCode {
			// Switching rooms on one connection: drop the old membership
			// first, or the old roster keeps a ghost participant.
			c.sessions.Leave(c.roomCode, c.ID)
		}
		c.roomCode = p.RoomCode
		c.sessions.Join(c.ID, p.RoomCode, p.UserName, p.Animal)

	case "toggleReady":
		var p struct {
			RoomCode string `json:"roomCode"`
			UserID   string `json:"userId"`
			IsReady  bool   `json:"isReady"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		c.sessions.ToggleReady(p.RoomCode, p.UserID, p.IsReady)

	case "toggleMic":
		var p struct {
			RoomCode string `json:"roomCode"`
			UserID   string `json:"userId"`
			MicOn    bool   `json:"micOn"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		c.sessions.ToggleMic(p.RoomCode, p.UserID, p.MicOn)

	case "feedbackSelect":
		var p struct {
			RoomCode       string `json:"roomCode"`
			FeedbackUserID string `json:"feedbackUserId"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		c.sessions.SelectFeedback(p.RoomCode, p.FeedbackUserID)

	case "turnSkip":
		var p struct {
			RoomCode string `json:"roomCode"`
			UserID   string `json:"userId"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		c.sessions.Skip(p.RoomCode, p.UserID)

	case "interestedSpeak":
		var p struct {
			RoomCode string `json:"roomCode"`
			UserID   string `json:"userId"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		c.sessions.RegisterInterest(p.RoomCode, p.UserID)

	case "roomMessage":
		var p struct {
			RoomCode string `json:"roomCode"`
			Message  string `json:"message"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return
		}
		c.sessions.Message(p.RoomCode, c.ID, p.Message)

	case "webrtcOffer", "webrtcAnswer", "webrtcCandidate":
		if c.relay != nil {
			c.relay.Forward(c.ID, msg.Event, msg.Data)
		}

	default:
		// ignore
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
