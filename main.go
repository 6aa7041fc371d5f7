package main

import (
	"accidentwatch/config"
	"accidentwatch/controllers"
	"accidentwatch/database"
	"accidentwatch/rabbitmq"
	"accidentwatch/repositories"
	"accidentwatch/routes"
	"accidentwatch/services"
	"accidentwatch/websocket"
	"accidentwatch/workers"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logrus.Fatal("Invalid configuration: ", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	setupLogger(cfg)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatal("Failed to connect to database: ", err)
	}
	defer database.Disconnect()

	redis := config.InitRedis(cfg)
	defer redis.Close()

	// Broadcast hub and optional AMQP sink
	hub := websocket.NewHub(cfg.BroadcastBuffer, cfg.ObserverBuffer)
	go hub.Run()

	optionalChecks := map[string]controllers.HealthCheck{}
	var publisher *rabbitmq.Publisher
	if cfg.AMQPURL != "" {
		publisher, err = rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			logrus.Warnf("AMQP sink disabled: %v", err)
		} else {
			hub.AddSink(publisher)
			optionalChecks["amqp"] = publisher.Ping
		}
	}

	// Intake pipeline
	store := repositories.NewReportRepository(db)
	scorer := services.NewRiskScorerService(
		services.ExecRunner{Command: cfg.ScorerCommand, Args: cfg.ScorerArgs},
		cfg.ScorerTimeout,
		cfg.ScorerMaxConcurrent,
	)
	router := services.NewRoutingService(cfg.RoutingProvider, cfg.RoutingURL, cfg.RoutingAPIKey, cfg.RoutingTimeout)
	planner := services.NewDispatchPlannerService(router, cfg.AverageSpeedKmh)
	directory := services.NewFacilityDirectory()

	facilityWorker := workers.NewFacilityWorker(
		services.NewGeoJSONLoader(cfg.RoutingTimeout),
		directory,
		services.NewFacilityCache(redis),
		workers.FacilityWorkerConfig{
			AmbulanceSource: cfg.AmbulanceSource,
			HospitalSource:  cfg.HospitalSource,
			RefreshInterval: cfg.FacilityRefreshInterval,
			CacheTTL:        cfg.FacilityCacheTTL,
		},
	)
	if err := facilityWorker.Start(); err != nil {
		logrus.Fatal("Failed to start facility worker: ", err)
	}

	intake := services.NewIntakeService(store, scorer, planner, directory, hub, services.IntakeConfig{
		StoreTimeout:       cfg.StoreTimeout,
		RecentReportsLimit: cfg.RecentReportsLimit,
	})

	handler := routes.SetupRoutes(routes.Dependencies{
		Config:       cfg,
		Redis:        redis,
		Hub:          hub,
		Store:        store,
		Gateway:      intake,
		Planner:      planner,
		Facilities:   directory,
		Refresher:    facilityWorker,
		RefreshStats: facilityWorker,
		HealthChecks: map[string]controllers.HealthCheck{
			"mongodb": database.Ping,
			"redis": func(ctx context.Context) error {
				return redis.Ping(ctx).Err()
			},
		},
		OptionalChecks: optionalChecks,
	})

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        handler,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logrus.Info("🚀 Accident intake server starting on port ", cfg.Port)
		logrus.Info("📱 WebSocket endpoint: /ws")
		logrus.Info("💖 Health Check: /health")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatal("Failed to start server: ", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Error("Server forced to shutdown: ", err)
	}

	facilityWorker.Stop()
	hub.Shutdown()
	if publisher != nil {
		publisher.Close()
	}

	logrus.Info("✅ Server shutdown complete")
}

func setupLogger(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if cfg.Environment == "development" {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}
