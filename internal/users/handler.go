package users

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talkround/backend/internal/models"
	"github.com/talkround/backend/pkg/response"
)

// Handler handles user registration HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a users handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// RegisterRequest is the body for POST /users.
type RegisterRequest struct {
	Nickname string `json:"nickname" binding:"required"`
}

// Register handles POST /users: stores the nickname and issues an opaque join
// code the client keeps to reclaim its identity.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	code, err := generateJoinCode()
	if err != nil {
		h.logger.Error("generate join code failed", zap.Error(err))
		response.Internal(c, "failed to register")
		return
	}
	u := &models.User{Nickname: req.Nickname, JoinCode: code}
	if err := h.repo.Create(c.Request.Context(), u); err != nil {
		h.logger.Error("create user failed", zap.Error(err))
		response.Internal(c, "failed to register")
		return
	}
	response.Created(c, u)
}

// Reclaim handles GET /users/reclaim?code=...: resolves a join code back to
// its user.
func (h *Handler) Reclaim(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		response.BadRequest(c, "code is required")
		return
	}
	u, err := h.repo.GetByJoinCode(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "unknown code")
			return
		}
		h.logger.Error("reclaim failed", zap.Error(err))
		response.Internal(c, "failed to look up code")
		return
	}
	response.OK(c, u)
}

// Get handles GET /users/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	u, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		h.logger.Error("get user failed", zap.Error(err), zap.String("user_id", id.String()))
		response.Internal(c, "failed to look up user")
		return
	}
	response.OK(c, u)
}

// SignupRequest is the body for POST /landing/signups.
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Nickname string `json:"nickname" binding:"required"`
}

// LandingSignup handles POST /landing/signups.
func (h *Handler) LandingSignup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s := &models.LandingSignup{Email: req.Email, Nickname: req.Nickname}
	if err := h.repo.CreateLandingSignup(c.Request.Context(), s); err != nil {
		h.logger.Error("landing signup failed", zap.Error(err))
		response.Internal(c, "failed to store signup")
		return
	}
	response.Created(c, s)
}

func generateJoinCode() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
