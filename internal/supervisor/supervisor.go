// Package supervisor wires PUB, TSW, and GW into a single ordered lifecycle:
// connect in dependency order, start the dispatcher, block until a shutdown
// signal, then drain and close in reverse order.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/sgerhart/aegisflux-etl/internal/dispatch"
	"github.com/sgerhart/aegisflux-etl/internal/graph"
	"github.com/sgerhart/aegisflux-etl/internal/publish"
	securecomms "github.com/sgerhart/aegisflux-etl/internal/secure-comms"
	"github.com/sgerhart/aegisflux-etl/internal/timeseries"
	"github.com/sgerhart/aegisflux-etl/pkg/database"
	"github.com/sgerhart/aegisflux-etl/pkg/messaging"
)

// DependencyStatus reports whether a named dependency is currently connected.
// Detail carries free-form diagnostic text (e.g. cert expiry) and is omitted
// when empty.
type DependencyStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Detail    string `json:"detail,omitempty"`
}

// Supervisor owns the three stores' lifecycle and the dispatcher that uses
// them. No package-level mutable state: the caller constructs exactly one
// Supervisor and threads it through main.
type Supervisor struct {
	NC  *nats.Conn
	MC  *messaging.Client
	PG  *database.PostgresClient
	Neo *database.Neo4jClient

	Pub *publish.Publisher
	TSW *timeseries.Writer
	GW  *graph.Writer
	DSP *dispatch.Dispatcher

	// CertMgr/CertPath, when both set, make Health report the bus mTLS
	// certificate's remaining lifetime alongside the store connections.
	CertMgr  *securecomms.CertManager
	CertPath string

	log zerolog.Logger

	mu      sync.RWMutex
	healthy map[string]bool
}

// New constructs a Supervisor. Callers still call ConnectOrdered before Run.
func New(log zerolog.Logger) *Supervisor {
	return &Supervisor{
		log:     log.With().Str("component", "supervisor").Logger(),
		healthy: make(map[string]bool),
	}
}

func (s *Supervisor) setHealthy(name string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy[name] = ok
}

// Health returns a snapshot of per-dependency connectivity, exposed over
// /healthz by cmd/etl-pipeline.
func (s *Supervisor) Health() []DependencyStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]DependencyStatus, 0, len(s.healthy)+1)
	for name, ok := range s.healthy {
		statuses = append(statuses, DependencyStatus{Name: name, Connected: ok})
	}

	if s.CertMgr != nil && s.CertPath != "" {
		statuses = append(statuses, s.certStatus())
	}

	return statuses
}

// certStatus reports the bus mTLS certificate's remaining lifetime. A
// certificate that has already expired, or cannot be read, is reported
// disconnected so it surfaces on /healthz rather than failing silently.
func (s *Supervisor) certStatus() DependencyStatus {
	ttl, err := s.CertMgr.CheckCertExpiry(s.CertPath)
	if err != nil {
		return DependencyStatus{Name: "mtls_cert", Connected: false, Detail: err.Error()}
	}
	days := int(ttl.Hours() / 24)
	return DependencyStatus{
		Name:      "mtls_cert",
		Connected: ttl > 0,
		Detail:    fmt.Sprintf("%d days until expiry", days),
	}
}

// ConnectOrdered connects PUB's bus connection, then TSW, then GW, in that
// order, recording health for each as it succeeds.
func (s *Supervisor) ConnectOrdered(ctx context.Context) error {
	s.setHealthy("bus", s.NC != nil && s.NC.IsConnected())
	s.Pub = publish.New(s.NC, s.MC, s.log)

	if s.MC != nil {
		if _, err := s.MC.JetStream().Stream(ctx, messaging.StreamEvents); err != nil {
			s.log.Warn().Err(err).Str("stream", messaging.StreamEvents).Msg("jetstream stream unavailable")
			s.setHealthy("jetstream", false)
		} else {
			s.setHealthy("jetstream", true)
		}
	}

	if err := s.TSW.Bootstrap(ctx); err != nil {
		return err
	}
	s.setHealthy("timeseries", true)

	if err := s.GW.Bootstrap(ctx); err != nil {
		return err
	}
	s.setHealthy("graph", true)

	return nil
}

// Run starts the dispatcher and blocks until SIGTERM/SIGINT, then drains
// and closes dependencies in reverse order. Close is best-effort: errors
// are logged, never raised.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.DSP.Start(runCtx); err != nil {
		return err
	}
	s.log.Info().Msg("dispatcher started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		s.log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
		s.log.Info().Msg("parent context cancelled")
	}

	s.DSP.Stop()
	cancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	if s.NC != nil {
		_ = s.NC.Drain()
	}
	<-drainCtx.Done()

	s.closeBestEffort()
	return nil
}

// closeBestEffort closes GW, then TSW, then the bus connection: the reverse
// of ConnectOrdered.
func (s *Supervisor) closeBestEffort() {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.Neo != nil {
		if err := s.Neo.Close(closeCtx); err != nil {
			s.log.Error().Err(err).Msg("close neo4j failed")
		}
	}
	if s.PG != nil {
		if err := s.PG.Close(); err != nil {
			s.log.Error().Err(err).Msg("close postgres failed")
		}
	}
	if s.NC != nil {
		s.NC.Close()
	}
	s.log.Info().Msg("shutdown complete")
}
