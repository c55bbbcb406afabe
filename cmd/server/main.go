package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"notify-service/internal/adapters/kafka"
	"notify-service/internal/api/middleware"
	"notify-service/internal/api/routes"
	"notify-service/internal/config"
	"notify-service/internal/database"
	"notify-service/internal/repositories/postgres"
	"notify-service/internal/services"
	"notify-service/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	logger.Info("Starting notify server")

	db, err := database.NewPostgresConnection(cfg.Database.URI)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	notificationRepo := postgres.NewNotificationRepository(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hubOpts := []websocket.Option{
		websocket.WithLogger(logger.With("component", "hub")),
		websocket.WithMetrics(websocket.NewMetrics(registry)),
		websocket.WithHeartbeatInterval(cfg.Realtime.HeartbeatInterval),
		websocket.WithStoreTimeout(cfg.Realtime.StoreTimeout),
	}

	var rateLimiter middleware.RateLimiter
	if cfg.Redis.Enabled {
		redisClient, err := database.NewRedisConnection(cfg.Redis)
		if err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		redisService := services.NewRedisService(redisClient)
		hubOpts = append(hubOpts, websocket.WithPresenceObserver(redisService))
		rateLimiter = redisService
	}

	if cfg.Kafka.Enabled && cfg.Kafka.PresenceTopic != "" {
		producer, err := kafka.InitKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			logger.Error("Failed to create Kafka producer", "error", err)
			os.Exit(1)
		}
		publisher := kafka.NewPresencePublisher(producer, cfg.Kafka.PresenceTopic)
		defer publisher.Close()
		hubOpts = append(hubOpts, websocket.WithPresenceObserver(publisher))
	}

	hub := websocket.NewHub(notificationRepo, hubOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer, err = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic, hub, logger)
		if err != nil {
			logger.Error("Failed to create Kafka consumer", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("Kafka consumer stopped", "error", err)
			}
		}()
	}

	router := routes.NewRouter(hub, routes.Options{
		JWTSecret:      cfg.JWT.Secret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Gatherer:       registry,
		RateLimiter:    rateLimiter,
		WSRateLimit:    cfg.Server.WSRateLimit,
	})
	router.SetupRoutes()

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Bind before serving so a bad address is a startup failure
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Error("Failed to listen", "address", server.Addr, "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("Server starting", "address", server.Addr)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("Failed to close Kafka consumer", "error", err)
		}
	}

	// Hijacked websocket connections are not tracked by Shutdown; the hub
	// closes them when ctx is cancelled.
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	select {
	case <-hubDone:
	case <-shutdownCtx.Done():
		logger.Warn("Timed out waiting for hub to stop")
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Info("Server stopped")
}
