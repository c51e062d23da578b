// Package dispatch subscribes to the pipeline's inbound subjects, bounds
// concurrency with a semaphore, enforces a per-message deadline, and routes
// each message through its handler with at-most-once ack semantics.
package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sgerhart/aegisflux-etl/internal/enrich"
	"github.com/sgerhart/aegisflux-etl/internal/filter"
	"github.com/sgerhart/aegisflux-etl/internal/geoip"
	"github.com/sgerhart/aegisflux-etl/internal/graph"
	"github.com/sgerhart/aegisflux-etl/internal/joincache"
	"github.com/sgerhart/aegisflux-etl/internal/publish"
	"github.com/sgerhart/aegisflux-etl/internal/threatintel"
	"github.com/sgerhart/aegisflux-etl/internal/timeseries"
	"github.com/sgerhart/aegisflux-etl/pkg/messaging"
	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

// payloadDecodeFallback counts every time the connect-event payload decoder
// falls back from double to single base64, or fails outright. This answers
// SPEC_FULL's open question about observing the Python original's silent
// fallback.
var payloadDecodeFallback = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dispatch_payload_decode_fallback_total",
		Help: "Outcomes of the double/single base64 payload decode attempt for connect events.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(payloadDecodeFallback)
}

// Config configures the dispatcher's bounded concurrency and deadlines.
type Config struct {
	MaxInflight      int
	Deadline         time.Duration
	Env              string
	FakeRDNS         bool
	GeoEnrichEnabled bool
	FilterExpr       string
}

// Dispatcher wires the bus subscriptions to ENR/SCR/JC/GW/TSW/PUB.
type Dispatcher struct {
	nc   *nats.Conn
	cfg  Config
	jc   *joincache.Cache
	gw   *graph.Writer
	tsw  *timeseries.Writer
	pub  *publish.Publisher
	geo  *geoip.Provider
	ti   *threatintel.Provider
	flt  *filter.Filter
	log  zerolog.Logger
	sema chan struct{}
	subs []*nats.Subscription
}

// New constructs a Dispatcher. All dependencies must already be connected.
// geo and ti may be nil; they are only consulted when cfg.GeoEnrichEnabled
// is set and a connect event carries a destination IP. cfg.FilterExpr, if
// set, must compile or New returns an error.
func New(nc *nats.Conn, cfg Config, jc *joincache.Cache, gw *graph.Writer, tsw *timeseries.Writer, pub *publish.Publisher, geo *geoip.Provider, ti *threatintel.Provider, log zerolog.Logger) (*Dispatcher, error) {
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 100
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 30 * time.Second
	}

	flt, err := filter.Compile(cfg.FilterExpr)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		nc:   nc,
		cfg:  cfg,
		jc:   jc,
		gw:   gw,
		tsw:  tsw,
		pub:  pub,
		geo:  geo,
		ti:   ti,
		flt:  flt,
		log:  log.With().Str("component", "dispatch").Logger(),
		sema: make(chan struct{}, cfg.MaxInflight),
	}, nil
}

// Start subscribes to the three inbound subjects. Each message is handled
// on its own goroutine, bounded by the dispatcher's semaphore.
func (d *Dispatcher) Start(ctx context.Context) error {
	routes := map[string]func(context.Context, *nats.Msg){
		messaging.SubjectEventsRaw:       d.handleRawEvent,
		messaging.SubjectFeedsCveUpdates: d.handleCveUpdate,
		messaging.SubjectFeedsPkgCve:     d.handlePkgCveMapping,
	}

	for subject, handler := range routes {
		h := handler
		sub, err := d.nc.Subscribe(subject, func(msg *nats.Msg) {
			d.dispatch(ctx, msg, h)
		})
		if err != nil {
			return err
		}
		d.subs = append(d.subs, sub)
	}
	return nil
}

// Stop unsubscribes from every inbound subject; already in-flight messages
// are allowed to finish.
func (d *Dispatcher) Stop() {
	for _, sub := range d.subs {
		_ = sub.Unsubscribe()
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, msg *nats.Msg, handler func(context.Context, *nats.Msg)) {
	select {
	case d.sema <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-d.sema }()

	msgCtx, cancel := context.WithTimeout(ctx, d.cfg.Deadline)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler(msgCtx, msg)
	}()

	select {
	case <-done:
	case <-msgCtx.Done():
		d.log.Error().Str("subject", msg.Subject).Msg("per-message deadline exceeded")
	}
}

// handleCveUpdate implements the JC emission side for feeds.cve.updates.
func (d *Dispatcher) handleCveUpdate(ctx context.Context, msg *nats.Msg) {
	var cve models.CveDescriptor
	if err := json.Unmarshal(msg.Data, &cve); err != nil {
		d.log.Warn().Err(err).Msg("malformed cve update, dropping")
		return
	}
	if cve.CveID == "" {
		d.log.Warn().Msg("cve update missing cve_id, dropping")
		return
	}

	joins := d.jc.OnCveUpdate(cve)
	d.emitJoins(ctx, joins)
}

// handlePkgCveMapping implements the JC ingest side for feeds.pkg.cve.
func (d *Dispatcher) handlePkgCveMapping(ctx context.Context, msg *nats.Msg) {
	var mapping models.PkgCveMapping
	if err := json.Unmarshal(msg.Data, &mapping); err != nil {
		d.log.Warn().Err(err).Msg("malformed pkg-cve mapping, dropping")
		return
	}
	if mapping.HostID == "" || mapping.Package.Name == "" {
		d.log.Warn().Msg("pkg-cve mapping missing host_id or package.name, dropping")
		return
	}

	joins := d.jc.OnPkgMapping(mapping)
	d.emitJoins(ctx, joins)
}

func (d *Dispatcher) emitJoins(ctx context.Context, joins []joincache.Join) {
	for _, j := range joins {
		record := joincache.BuildRecord(j, time.Now())
		correlationID := uuid.NewString()
		if err := d.pub.PublishEnrichedJoin(ctx, record); err != nil {
			d.log.Error().Err(err).Str("correlation_id", correlationID).Str("cve_id", j.Candidate.CveID).Msg("publish enriched join failed")
			continue
		}
		d.log.Debug().Str("correlation_id", correlationID).Str("cve_id", j.Candidate.CveID).Str("host_id", j.Mapping.HostID).Msg("enriched join published")
	}
}

// rawEventWire is the JSON shape accepted on events.raw: timestamp may be
// an integer ms or an ISO-8601 string, both normalized to int64 ms.
type rawEventWire struct {
	ID        string               `json:"id"`
	Type      string               `json:"type"`
	Source    string               `json:"source"`
	Timestamp json.RawMessage      `json:"timestamp"`
	Metadata  models.EventMetadata `json:"metadata"`
	Payload   string               `json:"payload"`
}

func normalizeTimestamp(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var asInt int64
	if err := json.Unmarshal(raw, &asInt); err == nil {
		return asInt, true
	}

	var asStr string
	if err := json.Unmarshal(raw, &asStr); err != nil {
		return 0, false
	}
	normalized := strings.Replace(asStr, "Z", "+00:00", 1)
	t, err := time.Parse(time.RFC3339, normalized)
	if err != nil {
		return 0, false
	}
	return t.UnixMilli(), true
}

// decodeConnectArgs tries double-base64-then-JSON, falls back to single
// base64-then-JSON, and returns an empty ConnectArgs on total failure. Every
// outcome is counted so silent fallback is observable.
func decodeConnectArgs(payload string) models.ConnectArgs {
	if payload == "" {
		payloadDecodeFallback.WithLabelValues("empty").Inc()
		return models.ConnectArgs{}
	}

	outer, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		payloadDecodeFallback.WithLabelValues("outer_decode_failed").Inc()
		return models.ConnectArgs{}
	}

	if inner, err := base64.StdEncoding.DecodeString(string(outer)); err == nil {
		var args models.ConnectArgs
		if err := json.Unmarshal(inner, &args); err == nil {
			payloadDecodeFallback.WithLabelValues("double").Inc()
			return args
		}
	}

	var args models.ConnectArgs
	if err := json.Unmarshal(outer, &args); err == nil {
		payloadDecodeFallback.WithLabelValues("single").Inc()
		return args
	}

	payloadDecodeFallback.WithLabelValues("failed").Inc()
	return models.ConnectArgs{}
}

// handleRawEvent implements the DSP state machine for events.raw:
// Decoded -> Validated -> Persisted -> Projected -> Enriched -> Published.
// Every sub-step after validation is independently try/recover.
func (d *Dispatcher) handleRawEvent(ctx context.Context, msg *nats.Msg) {
	var wire rawEventWire
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		d.log.Warn().Err(err).Msg("malformed raw event, dropping")
		return
	}

	if wire.ID == "" || wire.Type == "" || wire.Source == "" || len(wire.Timestamp) == 0 {
		d.log.Warn().Str("id", wire.ID).Msg("raw event missing required field, dropping")
		return
	}

	tsMs, ok := normalizeTimestamp(wire.Timestamp)
	if !ok {
		d.log.Warn().Str("id", wire.ID).Msg("raw event has unparsable timestamp, dropping")
		return
	}

	payloadBytes, _ := base64.StdEncoding.DecodeString(wire.Payload)
	event := models.Event{
		ID:        wire.ID,
		Type:      wire.Type,
		Source:    wire.Source,
		Timestamp: tsMs,
		Metadata:  wire.Metadata,
		Payload:   payloadBytes,
	}

	if !d.flt.Match(event) {
		return
	}

	// Persist raw event; failure must not block downstream steps.
	if rawJSON, err := json.Marshal(wire); err == nil {
		if err := d.tsw.WriteRawEvent(ctx, tsMs, wire.Metadata.HostID, wire.Type, rawJSON); err != nil {
			d.log.Error().Err(err).Str("id", wire.ID).Msg("persist raw event failed, continuing")
		}
	}

	var args models.ConnectArgs
	if wire.Type == "connect" {
		args = decodeConnectArgs(wire.Payload)
		if args.DstIP != "" {
			dstHostID := graph.DeriveDstHostID(args.DstIP, args.DstPort)
			if err := d.gw.UpsertCommEdge(ctx, wire.Metadata.HostID, dstHostID); err != nil {
				d.log.Error().Err(err).Str("id", wire.ID).Msg("upsert comm edge failed, continuing")
			}
		}
	}

	enriched := enrich.Enrich(event, d.cfg.Env, d.cfg.FakeRDNS, args.DstIP)

	if d.cfg.GeoEnrichEnabled && args.DstIP != "" {
		if d.geo != nil {
			enriched.Context.Geo = d.geo.Lookup(ctx, args.DstIP)
		}
		if d.ti != nil {
			if rep, err := d.ti.CheckIP(ctx, args.DstIP); err == nil {
				enriched.Context.ThreatIntel = rep
			}
		}
	}

	if err := d.gw.WriteEvent(ctx, enriched); err != nil {
		d.log.Error().Err(err).Str("id", wire.ID).Msg("project event to graph failed, continuing")
	}
	if err := d.tsw.WriteEnrichedEvent(ctx, enriched); err != nil {
		d.log.Error().Err(err).Str("id", wire.ID).Msg("persist enriched event failed, continuing")
	}
	if err := d.pub.PublishEnrichedEvent(ctx, enriched); err != nil {
		d.log.Error().Err(err).Str("id", wire.ID).Msg("publish enriched event failed, continuing")
	}
}
