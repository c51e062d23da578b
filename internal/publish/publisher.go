// Package publish sends enriched events and enriched join records to the
// bus with structured headers and bounded retry.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/sgerhart/aegisflux-etl/pkg/messaging"
	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

// Publisher wraps a NATS connection and applies the pipeline's retry policy
// to every publish call. mc, when set, gives enriched join records a
// synchronous JetStream ack before the caller logs success.
type Publisher struct {
	nc  *nats.Conn
	mc  *messaging.Client
	log zerolog.Logger
}

// New wraps an already-connected NATS connection. mc may be nil, in which
// case every publish uses core NATS with the bounded-retry fallback.
func New(nc *nats.Conn, mc *messaging.Client, log zerolog.Logger) *Publisher {
	return &Publisher{nc: nc, mc: mc, log: log.With().Str("component", "publish").Logger()}
}

func (p *Publisher) publishWithRetry(ctx context.Context, msg *nats.Msg) error {
	op := func() (struct{}, error) {
		return struct{}{}, p.nc.PublishMsg(msg)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 10 * time.Second
	_, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(3),
		backoff.WithBackOff(bo))
	if err != nil {
		p.log.Error().Err(err).Str("subject", msg.Subject).Msg("publish exhausted retries")
	}
	return err
}

// PublishEnrichedEvent emits an enriched event to events.enriched.
func (p *Publisher) PublishEnrichedEvent(ctx context.Context, e models.EnrichedEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal enriched event: %w", err)
	}

	msg := nats.NewMsg(messaging.SubjectEventsEnriched)
	msg.Data = body
	msg.Header.Set(messaging.HeaderHostID, e.Metadata.HostID)
	msg.Header.Set(messaging.HeaderEventType, e.Type)
	msg.Header.Set(messaging.HeaderTimestamp, strconv.FormatInt(e.Timestamp, 10))
	msg.Header.Set(messaging.HeaderEnriched, "true")

	return p.publishWithRetry(ctx, msg)
}

// PublishEnrichedJoin emits an enriched join record to etl.enriched. Join
// records feed downstream correlation and are published with a synchronous
// JetStream ack (when mc is configured) so the caller only logs success
// once the broker has durably stored the record; falls back to the core
// publish-with-retry path otherwise.
func (p *Publisher) PublishEnrichedJoin(ctx context.Context, j models.EnrichedJoin) error {
	body, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal enriched join: %w", err)
	}

	if p.mc != nil {
		ack, err := p.mc.PublishSync(ctx, messaging.SubjectEtlEnriched, body)
		if err != nil {
			p.log.Error().Err(err).Str("subject", messaging.SubjectEtlEnriched).Msg("sync publish failed")
			return err
		}
		p.log.Debug().Str("cve_id", j.CveCandidate.CveID).Uint64("stream_seq", ack.Sequence).Msg("enriched join published with ack")
		return nil
	}

	msg := nats.NewMsg(messaging.SubjectEtlEnriched)
	msg.Data = body
	msg.Header.Set(messaging.HeaderHostID, j.HostID)
	msg.Header.Set(messaging.HeaderPackage, j.Package.Name)
	msg.Header.Set(messaging.HeaderCveID, j.CveCandidate.CveID)
	msg.Header.Set(messaging.HeaderEnriched, "true")

	return p.publishWithRetry(ctx, msg)
}
