// Package main runs the TalkRound discussion server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/talkround/backend/config"
	"github.com/talkround/backend/internal/middleware"
	"github.com/talkround/backend/internal/realtime"
	"github.com/talkround/backend/internal/rooms"
	"github.com/talkround/backend/internal/session"
	"github.com/talkround/backend/internal/signaling"
	"github.com/talkround/backend/internal/users"
	"github.com/talkround/backend/pkg/database"
	"github.com/talkround/backend/pkg/redis"
	"github.com/talkround/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	var redisPubSub *realtime.RedisPubSub
	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("redis unavailable, chat stays instance-local", zap.Error(err))
	} else {
		defer rdb.Close()
		redisPubSub = realtime.NewRedisPubSub(rdb.Client, logger)
	}

	var hub *realtime.Hub
	if redisPubSub != nil {
		hub = realtime.NewHub(logger, redisPubSub, redisPubSub)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}

	sessions := session.NewService(cfg.Session, cfg.Chat, hub, logger)
	relay := signaling.NewRelay(hub, cfg.WebRTC.ICEUrls, logger)

	// Rooms listing/registration
	roomRepo := rooms.NewRepository(pool)
	roomHandler := rooms.NewHandler(roomRepo, cfg.Session.RoomCapacity, logger)

	// Users
	userRepo := users.NewRepository(pool)
	userHandler := users.NewHandler(userRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok", "active_rooms": sessions.Registry().Len()})
	})

	// Rooms
	router.GET("/rooms", roomHandler.List)
	router.POST("/rooms", roomHandler.Create)
	router.POST("/rooms/join", roomHandler.Join)
	router.POST("/rooms/leave", roomHandler.Leave)
	router.POST("/rooms/:id/close", roomHandler.CloseRoom)
	router.POST("/rooms/:id/rate", roomHandler.Rate)

	// Users
	router.POST("/users", userHandler.Register)
	router.GET("/users/reclaim", userHandler.Reclaim)
	router.GET("/users/:id", userHandler.Get)
	router.POST("/landing/signups", userHandler.LandingSignup)

	// WebRTC ICE configuration for client peer connections
	router.GET("/webrtc/config", func(c *gin.Context) {
		response.OK(c, gin.H{"iceServers": relay.ICEServers()})
	})

	// WebSocket
	router.GET("/ws", realtime.ServeWs(hub, sessions, relay, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
