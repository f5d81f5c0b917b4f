package rooms

import (
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talkround/backend/internal/models"
	"github.com/talkround/backend/pkg/response"
)

// codeAlphabet excludes easily-confused characters (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const codeLength = 4

// Handler handles room listing and registration HTTP endpoints.
type Handler struct {
	repo     *Repository
	capacity int
	logger   *zap.Logger
}

// NewHandler creates a rooms handler. capacity is the room member limit.
func NewHandler(repo *Repository, capacity int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, capacity: capacity, logger: logger}
}

// List handles GET /rooms: rooms with a free seat.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListOpen(c.Request.Context(), h.capacity)
	if err != nil {
		h.logger.Error("list rooms failed", zap.Error(err))
		response.Internal(c, "failed to list rooms")
		return
	}
	if list == nil {
		list = []models.Room{}
	}
	response.OK(c, list)
}

// CreateRequest is the body for POST /rooms.
type CreateRequest struct {
	Topic         string     `json:"topic" binding:"required"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
}

// Create handles POST /rooms.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	room := &models.Room{
		Code:          randomCode(codeLength),
		Topic:         req.Topic,
		ScheduledTime: req.ScheduledTime,
	}
	if err := h.repo.Create(c.Request.Context(), room); err != nil {
		h.logger.Error("create room failed", zap.Error(err))
		response.Internal(c, "failed to create room")
		return
	}
	response.Created(c, room)
}

// JoinRequest is the body for POST /rooms/join.
type JoinRequest struct {
	RoomID uuid.UUID `json:"room_id" binding:"required"`
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// Join handles POST /rooms/join: the registration transaction.
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	err := h.repo.AddMember(c.Request.Context(), req.RoomID, req.UserID, h.capacity)
	switch {
	case err == nil:
		response.OK(c, gin.H{"room_id": req.RoomID, "user_id": req.UserID})
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrRoomNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrRoomClosed), errors.Is(err, ErrRoomFull):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("room registration failed", zap.Error(err),
			zap.String("room_id", req.RoomID.String()), zap.String("user_id", req.UserID.String()))
		response.Internal(c, "failed to join room")
	}
}

// Leave handles POST /rooms/leave: drops a registration. Deleting a
// membership that does not exist is a no-op, so the reply is unconditional.
func (h *Handler) Leave(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.repo.RemoveMember(c.Request.Context(), req.RoomID, req.UserID); err != nil {
		h.logger.Error("room leave failed", zap.Error(err),
			zap.String("room_id", req.RoomID.String()), zap.String("user_id", req.UserID.String()))
		response.Internal(c, "failed to leave room")
		return
	}
	response.NoContent(c)
}

// CloseRoom handles POST /rooms/:id/close, removing the room from the open listing.
func (h *Handler) CloseRoom(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	if err := h.repo.Close(c.Request.Context(), roomID); err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		h.logger.Error("close room failed", zap.Error(err), zap.String("room_id", roomID.String()))
		response.Internal(c, "failed to close room")
		return
	}
	response.NoContent(c)
}

// RateRequest is the body for POST /rooms/:id/rate.
type RateRequest struct {
	Rating int `json:"rating" binding:"required,min=1,max=5"`
}

// Rate handles POST /rooms/:id/rate.
func (h *Handler) Rate(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.repo.Rate(c.Request.Context(), roomID, req.Rating); err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		h.logger.Error("rate room failed", zap.Error(err), zap.String("room_id", roomID.String()))
		response.Internal(c, "failed to rate room")
		return
	}
	response.NoContent(c)
}

func randomCode(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the host is broken; fall back deterministically.
			b[i] = codeAlphabet[0]
			continue
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b)
}
