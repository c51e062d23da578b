// Package timeseries persists raw and enriched events into the two
// time-partitioned Postgres/Timescale tables the pipeline owns.
package timeseries

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/sgerhart/aegisflux-etl/pkg/database"
	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

// Writer owns the events_raw/events schema and the two write operations
// defined against it.
type Writer struct {
	db  *database.PostgresClient
	log zerolog.Logger
}

// New wraps an already-connected Postgres client.
func New(db *database.PostgresClient, log zerolog.Logger) *Writer {
	return &Writer{db: db, log: log.With().Str("component", "timeseries").Logger()}
}

// Bootstrap creates the schema. Idempotent.
func (w *Writer) Bootstrap(ctx context.Context) error {
	return w.db.InitializeSchema(ctx)
}

func retryPolicy[T any](ctx context.Context, op func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 10 * time.Second
	return backoff.Retry(ctx, op,
		backoff.WithMaxTries(3),
		backoff.WithBackOff(bo))
}

// WriteRawEvent inserts a raw event row. tsMs is the event's normalized
// integer-ms timestamp.
func (w *Writer) WriteRawEvent(ctx context.Context, tsMs int64, hostID, eventType string, payloadJSON json.RawMessage) error {
	ts := time.UnixMilli(tsMs)

	_, err := retryPolicy(ctx, func() (struct{}, error) {
		_, err := w.db.Exec(ctx, `
			INSERT INTO events_raw (ts, host_id, event_type, payload_json)
			VALUES ($1, $2, $3, $4)
		`, ts, hostID, eventType, payloadJSON)
		return struct{}{}, err
	})
	if err != nil {
		w.log.Error().Err(err).Str("host_id", hostID).Str("event_type", eventType).Msg("write raw event failed")
	}
	return err
}

// WriteEnrichedEvent upserts an enriched event row keyed by id.
func (w *Writer) WriteEnrichedEvent(ctx context.Context, e models.EnrichedEvent) error {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}

	var rdns any
	if e.Context.Rdns != nil {
		rdns = *e.Context.Rdns
	}

	_, err = retryPolicy(ctx, func() (struct{}, error) {
		_, err := w.db.Exec(ctx, `
			INSERT INTO events (id, type, source, timestamp, env, rdns, metadata, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				type = EXCLUDED.type,
				source = EXCLUDED.source,
				timestamp = EXCLUDED.timestamp,
				env = EXCLUDED.env,
				rdns = EXCLUDED.rdns,
				metadata = EXCLUDED.metadata,
				payload = EXCLUDED.payload,
				created_at = NOW()
		`, e.ID, e.Type, e.Source, e.Timestamp, e.Context.Env, rdns, metadataJSON, e.Payload)
		return struct{}{}, err
	})
	if err != nil {
		w.log.Error().Err(err).Str("event_id", e.ID).Msg("write enriched event failed")
	}
	return err
}
