package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sgerhart/aegisflux-etl/pkg/database"
	"github.com/sgerhart/aegisflux-etl/pkg/messaging"
	"github.com/sgerhart/aegisflux-etl/pkg/models"
	"github.com/sgerhart/aegisflux-etl/pkg/utils"
)

// EventHandler accepts raw events over HTTP and republishes them onto
// events.raw, rate-limited per source IP.
type EventHandler struct {
	natsClient *messaging.Client
	redis      *database.RedisClient
	limit      int64
	log        zerolog.Logger
}

func NewEventHandler(nc *messaging.Client, redis *database.RedisClient, limit int64, logger zerolog.Logger) *EventHandler {
	return &EventHandler{natsClient: nc, redis: redis, limit: limit, log: logger.With().Str("component", "ingest-handler").Logger()}
}

// HandleHTTPEvent receives a raw event via HTTP POST and forwards it to
// events.raw. id, timestamp and source are filled in when the caller omits them;
// all other required-field validation happens in the dispatcher itself.
func (h *EventHandler) HandleHTTPEvent(c *fiber.Ctx) error {
	ctx := context.Background()

	if h.redis != nil {
		current, allowed, err := h.redis.CheckRateLimit(ctx, c.IP(), h.limit, time.Minute)
		if err == nil && !allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded", "current": current})
		}
	}

	var evt models.Event
	if err := json.Unmarshal(c.Body(), &evt); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid event format"})
	}

	if evt.ID == "" {
		evt.ID = utils.GenerateID()
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}
	if evt.Source == "" {
		evt.Source = "ingest"
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("marshal failed")
	}

	evtLog := h.log.With().Str("host_id", evt.Metadata.HostID).Str("event_id", evt.ID).Str("subject", messaging.SubjectEventsRaw).Logger()

	if _, err := h.natsClient.PublishAsync(ctx, messaging.SubjectEventsRaw, data); err != nil {
		evtLog.Error().Err(err).Msg("bus publish failed")
		return c.Status(fiber.StatusInternalServerError).SendString("bus publish failed")
	}

	evtLog.Debug().Msg("event published")
	return c.SendStatus(fiber.StatusAccepted)
}
