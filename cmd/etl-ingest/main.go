// Command etl-ingest exposes a Fiber-based HTTP-to-bus ingress for raw
// events, rate-limited per client before publish onto events.raw.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sgerhart/aegisflux-etl/cmd/etl-ingest/config"
	"github.com/sgerhart/aegisflux-etl/cmd/etl-ingest/handlers"
	"github.com/sgerhart/aegisflux-etl/pkg/database"
	"github.com/sgerhart/aegisflux-etl/pkg/messaging"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	logger := log.With().Str("service", "etl-ingest").Logger()
	cfg := config.LoadConfig()
	logger.Info().Msg("starting etl-ingest")

	nc, err := messaging.NewClient(&messaging.NatsConfig{
		URL:           cfg.NatsURL,
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect failed")
	}
	defer nc.Close()

	if err := nc.InitializeStreams(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("stream initialization failed")
	}

	var redisClient *database.RedisClient
	redisClient, err = database.NewRedisClient(&database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		PoolSize: 10,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("redis connect failed, rate limiting disabled")
		redisClient = nil
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             10 * 1024 * 1024,
	})

	eventHandler := handlers.NewEventHandler(nc, redisClient, cfg.RateLimitPerMinute, logger)

	api := app.Group("/api/v1")
	api.Post("/events", eventHandler.HandleHTTPEvent)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	go func() {
		if err := app.Listen(cfg.HTTPPort); err != nil {
			logger.Fatal().Err(err).Msg("http listen failed")
		}
	}()

	logger.Info().Str("addr", cfg.HTTPPort).Msg("http server listening")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")
	_ = app.Shutdown()
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
