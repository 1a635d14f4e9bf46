package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/docs"
	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/config"
	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/ingest"
	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/session"
	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/websocket"
)

// @title Fall Detection API
// @version 1.0
// @description Сервис детекции падений по данным акселерометра и гироскопа мобильных устройств
// @BasePath /
func main() {
	cfg := config.Load()

	log.Printf("[INFO] Starting fall detection receiver")
	log.Printf("[INFO] Detector thresholds: accel=%.1f m/s2, rotation=%.1f rad/s, low-activity=%.1f m/s2",
		cfg.Detector.AccelerationThreshold, cfg.Detector.AngularVelocityThreshold, cfg.Detector.LowActivityThreshold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("[FATAL] Failed to connect to Redis: %v", err)
	}
	log.Printf("[INFO] Connected to Redis: %s", cfg.RedisAddr)
	cache := session.NewRedisStore(redisClient, cfg.SessionDataTTLSeconds)

	// PostgreSQL
	repository, err := session.NewPostgresRepositoryFromDSN(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[FATAL] Failed to connect to PostgreSQL: %v", err)
	}
	defer repository.Close()

	// Менеджер сессий
	manager := session.NewManager(cfg.Detector, cache, repository)

	// WebSocket хаб
	hub := websocket.NewHub()
	go hub.Run()
	go hub.NotificationConsumer(ctx, manager.Notifications())

	// MQTT прием данных сенсоров
	validator := ingest.NewValidator()
	subscriber, err := ingest.NewSubscriber(ingest.SubscriberOptions{
		Broker:      cfg.MQTTBroker,
		ClientID:    cfg.MQTTClientID,
		TopicPrefix: cfg.MQTTTopicPrefix,
		QoS:         cfg.MQTTQoS,
	}, manager, validator)
	if err != nil {
		log.Fatalf("[FATAL] Failed to start MQTT subscriber: %v", err)
	}
	defer subscriber.Close()

	// Периодическая статистика приема
	go func() {
		ticker := time.NewTicker(cfg.StatsLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				received, dropped, outOfOrder := validator.Stats()
				log.Printf("[STATS] Samples received: %d, dropped: %d, out-of-order: %d",
					received, dropped, outOfOrder)
			}
		}
	}()

	// HTTP сервер
	router := mux.NewRouter()
	session.NewHTTPHandler(manager).RegisterRoutes(router)
	router.HandleFunc("/ws", hub.HandleWebSocket)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("[INFO] HTTP server listening on :%s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[FATAL] HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Printf("[INFO] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] HTTP server shutdown: %v", err)
	}

	log.Printf("[INFO] Receiver stopped")
}
