// Package graph projects enriched events into the Host/NetworkEndpoint
// communication graph and maintains the Event/User/Process/Container
// observation nodes that hang off each event.
package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/sgerhart/aegisflux-etl/pkg/database"
	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

var internalPrefixes = []string{
	"192.168.",
	"10.",
	"172.16.", "172.17.", "172.18.", "172.19.",
	"172.20.", "172.21.", "172.22.", "172.23.",
	"172.24.", "172.25.", "172.26.", "172.27.",
	"172.28.", "172.29.", "172.30.", "172.31.",
}

// Writer owns the Neo4j schema and the two domain operations defined on it.
type Writer struct {
	client *database.Neo4jClient
	log    zerolog.Logger
}

// New wraps an already-connected Neo4j client.
func New(client *database.Neo4jClient, log zerolog.Logger) *Writer {
	return &Writer{client: client, log: log.With().Str("component", "graph").Logger()}
}

// Bootstrap creates the unique constraints and secondary indexes the graph
// relies on. Idempotent, safe to call on every startup.
func (w *Writer) Bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE CONSTRAINT host_id_unique IF NOT EXISTS FOR (h:Host) REQUIRE h.host_id IS UNIQUE`,
		`CREATE CONSTRAINT network_endpoint_id_unique IF NOT EXISTS FOR (n:NetworkEndpoint) REQUIRE n.endpoint_id IS UNIQUE`,
		`CREATE INDEX host_rdns_index IF NOT EXISTS FOR (h:Host) ON (h.rdns)`,
		`CREATE INDEX network_endpoint_ip_index IF NOT EXISTS FOR (n:NetworkEndpoint) ON (n.ip)`,
	}
	for _, s := range stmts {
		if err := w.client.Run(ctx, s, nil); err != nil {
			return fmt.Errorf("graph schema bootstrap: %w", err)
		}
	}
	return nil
}

// DeriveDstHostID implements the internal-vs-external IP classification:
// internal addresses map to a Host id, everything else to a NetworkEndpoint id.
func DeriveDstHostID(dstIP string, dstPort int) string {
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(dstIP, prefix) {
			return "host-" + strings.ReplaceAll(dstIP, ".", "-")
		}
	}
	return fmt.Sprintf("ip:%s:%d", dstIP, dstPort)
}

// UpsertCommEdge idempotently ensures both endpoint nodes exist and bumps
// the rolling COMMUNICATES counter between them.
func (w *Writer) UpsertCommEdge(ctx context.Context, srcHostID, dstHostID string) error {
	op := func() (struct{}, error) {
		var cypher string
		params := map[string]any{"src": srcHostID, "dst": dstHostID}

		if strings.HasPrefix(dstHostID, "ip:") {
			ipPort := strings.TrimPrefix(dstHostID, "ip:")
			ip, port := ipPort, "0"
			if idx := strings.LastIndex(ipPort, ":"); idx >= 0 {
				ip, port = ipPort[:idx], ipPort[idx+1:]
			}
			params["ip"] = ip
			params["port"] = port
			cypher = `
				MERGE (a:Host {host_id: $src})
				MERGE (b:NetworkEndpoint {endpoint_id: $dst})
				SET b.ip = $ip, b.port = $port
				MERGE (a)-[r:COMMUNICATES]->(b)
				ON CREATE SET r.count_1h = 1, r.last_seen = timestamp()
				ON MATCH SET r.count_1h = coalesce(r.count_1h, 0) + 1, r.last_seen = timestamp()
			`
		} else {
			cypher = `
				MERGE (a:Host {host_id: $src})
				MERGE (b:Host {host_id: $dst})
				MERGE (a)-[r:COMMUNICATES]->(b)
				ON CREATE SET r.count_1h = 1, r.last_seen = timestamp()
				ON MATCH SET r.count_1h = coalesce(r.count_1h, 0) + 1, r.last_seen = timestamp()
			`
		}

		return struct{}{}, w.client.Run(ctx, cypher, params)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 10 * time.Second
	_, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(3),
		backoff.WithBackOff(bo))
	if err != nil {
		w.log.Error().Err(err).Str("src", srcHostID).Str("dst", dstHostID).Msg("upsert communicates edge failed")
	}
	return err
}

// WriteEvent upserts the Event node and the edges that follow from its
// metadata: GENERATED from the owning Host, EXECUTED from User/Process,
// GENERATED from Container. It writes no COMMUNICATES edge: for connect
// events the dispatcher calls UpsertCommEdge itself before WriteEvent.
func (w *Writer) WriteEvent(ctx context.Context, e models.EnrichedEvent) error {
	op := func() (struct{}, error) {
		var rdns any
		if e.Context.Rdns != nil {
			rdns = *e.Context.Rdns
		}

		err := w.client.Run(ctx, `
			MERGE (e:Event {id: $id})
			SET e.type = $type,
				e.source = $source,
				e.timestamp = $timestamp,
				e.env = $env,
				e.rdns = $rdns,
				e.created_at = datetime()
		`, map[string]any{
			"id":        e.ID,
			"type":      e.Type,
			"source":    e.Source,
			"timestamp": e.Timestamp,
			"env":       e.Context.Env,
			"rdns":      rdns,
		})
		if err != nil {
			return struct{}{}, err
		}

		if e.Metadata.HostID != "" {
			err = w.client.Run(ctx, `
				MERGE (h:Host {host_id: $host_id})
				SET h.rdns = $rdns, h.env = $env, h.last_seen = datetime()
				WITH h
				MATCH (e:Event {id: $id})
				MERGE (h)-[:GENERATED]->(e)
			`, map[string]any{"host_id": e.Metadata.HostID, "rdns": rdns, "env": e.Context.Env, "id": e.ID})
			if err != nil {
				return struct{}{}, err
			}
		}

		if e.Type == "exec" && e.Metadata.UID != "" {
			err = w.client.Run(ctx, `
				MERGE (u:User {uid: $uid})
				SET u.last_seen = datetime()
				WITH u
				MATCH (e:Event {id: $id})
				MERGE (u)-[:EXECUTED]->(e)
			`, map[string]any{"uid": e.Metadata.UID, "id": e.ID})
			if err != nil {
				return struct{}{}, err
			}
		}

		if e.Metadata.PID != 0 {
			err = w.client.Run(ctx, `
				MERGE (p:Process {pid: $pid, host_id: $host_id})
				SET p.binary_path = $source, p.last_seen = datetime()
				WITH p
				MATCH (e:Event {id: $id})
				MERGE (p)-[:EXECUTED]->(e)
			`, map[string]any{"pid": e.Metadata.PID, "host_id": e.Metadata.HostID, "source": e.Source, "id": e.ID})
			if err != nil {
				return struct{}{}, err
			}
		}

		if e.Metadata.ContainerID != "" {
			err = w.client.Run(ctx, `
				MERGE (c:Container {container_id: $container_id})
				SET c.last_seen = datetime()
				WITH c
				MATCH (e:Event {id: $id})
				MERGE (c)-[:GENERATED]->(e)
			`, map[string]any{"container_id": e.Metadata.ContainerID, "id": e.ID})
			if err != nil {
				return struct{}{}, err
			}
		}

		return struct{}{}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 10 * time.Second
	_, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(3),
		backoff.WithBackOff(bo))
	if err != nil {
		w.log.Error().Err(err).Str("event_id", e.ID).Msg("write event to graph failed")
	}
	return err
}
