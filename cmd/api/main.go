package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/scentmatch/scentmatch/internal/cache"
	"github.com/scentmatch/scentmatch/internal/config"
	"github.com/scentmatch/scentmatch/internal/crypto"
	"github.com/scentmatch/scentmatch/internal/database"
	"github.com/scentmatch/scentmatch/internal/httpserver"
	"github.com/scentmatch/scentmatch/internal/notification"
	"github.com/scentmatch/scentmatch/internal/services"
	"github.com/scentmatch/scentmatch/internal/telemetry"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	if err := telemetry.InitGlobalLogger(&telemetry.LogConfig{
		Level:  telemetry.LogLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: logOutput(cfg),
	}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	logger := telemetry.GetContextualLogger(ctx)

	// OpenTelemetry provider; exporters degrade gracefully if the collector
	// is unreachable.
	otelProvider, err := telemetry.NewProvider(telemetry.LoadOTelConfigFromEnv())
	if err != nil {
		logger.WithError(err).Warn("OpenTelemetry initialization failed, continuing without tracing")
	}

	meters, err := telemetry.NewMeters()
	if err != nil {
		logger.WithError(err).Warn("Metric instrument creation failed")
	}

	db, err := database.NewInstrumentedConnection(cfg.Database)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	// Redis is optional; services fall back to the database when absent.
	var redisService *cache.RedisService
	if rs, err := cache.NewRedisService(cfg.Redis); err != nil {
		logger.WithError(err).Warn("Redis unavailable, unread counts served from database")
	} else {
		redisService = rs
		defer redisService.Close()
	}

	cryptoService, err := crypto.NewServiceFromEnv(cfg.EncryptionKey)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize encryption")
		os.Exit(1)
	}

	var notifier *notification.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifier = notification.NewNotifier(notification.NewTelegramSender(notification.TelegramSenderConfig{
			BotToken: cfg.TelegramBotToken,
			ChatID:   cfg.TelegramChatID,
			Timeout:  10 * time.Second,
		}))
		logger.Info("Telegram notifications enabled")
	}

	matchingService := services.NewMatchingService(db, cfg.MatchTTL)
	matchingService.SetMeters(meters)
	matchingService.SetNotifier(notifier)

	conversationService := services.NewConversationService(db, cryptoService)
	conversationService.SetMeters(meters)
	conversationService.SetNotifier(notifier)
	if redisService != nil {
		conversationService.SetCache(redisService)
	}

	scentService := services.NewScentService(db)

	server := httpserver.New(httpserver.Options{
		Matching:      matchingService,
		Conversations: conversationService,
		Scents:        scentService,
		Redis:         redisService,
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(),
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	go runExpirySweep(sweepCtx, matchingService, cfg.ExpirySweepInterval)

	go func() {
		logger.Infof("Starting server on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if otelProvider != nil {
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("OpenTelemetry shutdown failed")
		}
	}

	logger.Info("Server exited")
}

// runExpirySweep periodically expires pending matches whose window has
// closed.
func runExpirySweep(ctx context.Context, matching *services.MatchingService, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired, err := matching.ExpireDue(ctx, now.UTC())
			if err != nil {
				telemetry.GetContextualLogger(ctx).WithError(err).Warn("Expiry sweep failed")
				continue
			}
			if expired > 0 {
				telemetry.GetContextualLogger(ctx).WithField("expired", expired).Info("Expired stale pending matches")
			}
		}
	}
}

func logOutput(cfg config.Config) string {
	if cfg.LogFile != "" {
		return cfg.LogFile
	}
	return "stdout"
}
