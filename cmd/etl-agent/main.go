// Command etl-agent is the reference host agent: it publishes periodic host
// heartbeats and package inventory onto events.raw over an mTLS bus
// connection, spooling locally via bbolt when the bus is unreachable so
// nothing is lost on restart.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sgerhart/aegisflux-etl/cmd/etl-agent/collectors"
	"github.com/sgerhart/aegisflux-etl/cmd/etl-agent/communicator"
	"github.com/sgerhart/aegisflux-etl/cmd/etl-agent/config"
	"github.com/sgerhart/aegisflux-etl/cmd/etl-agent/spool"
	"github.com/sgerhart/aegisflux-etl/cmd/etl-agent/updater"
	"github.com/sgerhart/aegisflux-etl/pkg/messaging"
	"github.com/sgerhart/aegisflux-etl/pkg/models"
	"github.com/sgerhart/aegisflux-etl/pkg/utils"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	cfg := config.LoadConfig()
	logger := log.With().Str("service", "etl-agent").Str("host_id", cfg.AgentID).Logger()
	logger.Info().Msg("starting etl-agent")

	sp, err := spool.Open(cfg.SpoolPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open local spool")
	}
	defer sp.Close()

	comm, err := communicator.NewCommunicator(cfg, sp, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to connect to bus")
		comm = nil
	} else {
		defer comm.Close()
		logger.Info().Msg("connected to bus over mTLS")
		if err := comm.DrainSpool(); err != nil {
			logger.Error().Err(err).Msg("spool drain on startup failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runHostInfoLoop(ctx, cfg, comm, sp, logger)
	go runPackageScanLoop(ctx, cfg, comm, sp, logger)
	go runUpdateLoop(ctx, cfg, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")
	cancel()
	time.Sleep(1 * time.Second)
	logger.Info().Msg("goodbye")
}

func runHostInfoLoop(ctx context.Context, cfg *config.AgentConfig, comm *communicator.Communicator, sp *spool.Spool, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Duration(cfg.HostInfoInterval) * time.Second)
	defer ticker.Stop()

	publish := func() {
		info, err := collectors.CollectEnvInfo()
		if err != nil {
			logger.Error().Err(err).Msg("error collecting host info")
			return
		}
		info.AgentID = cfg.AgentID
		publishEvent(comm, sp, "agent.host.info", cfg.AgentID, info.ToJSON(), logger)
	}

	publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}

func runPackageScanLoop(ctx context.Context, cfg *config.AgentConfig, comm *communicator.Communicator, sp *spool.Spool, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Duration(cfg.PackageScanInterval) * time.Second)
	defer ticker.Stop()

	publish := func() {
		pkgs, err := collectors.CollectPackages(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("error collecting package inventory")
			return
		}
		if len(pkgs) == 0 {
			return
		}
		payload, err := json.Marshal(struct {
			AgentID  string               `json:"agent_id"`
			Packages []models.PackageInfo `json:"packages"`
		}{AgentID: cfg.AgentID, Packages: pkgs})
		if err != nil {
			logger.Error().Err(err).Msg("error marshaling package inventory")
			return
		}
		publishEvent(comm, sp, "agent.inventory.packages", cfg.AgentID, payload, logger)
	}

	publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}

func runUpdateLoop(ctx context.Context, cfg *config.AgentConfig, logger zerolog.Logger) {
	if cfg.UpdateCheckURL == "" {
		return
	}

	u := &updater.Updater{
		UpdateURL: cfg.UpdateCheckURL, BinaryURL: cfg.UpdateBinaryURL,
		CertFile: cfg.CertFile, KeyFile: cfg.KeyFile, CAFile: cfg.CAFile,
		Logger: logger,
	}
	ticker := time.NewTicker(time.Duration(cfg.UpdateInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, available, err := u.CheckUpdate(); err != nil {
				logger.Error().Err(err).Msg("update check failed")
			} else if available {
				if err := u.PerformUpdate(); err != nil {
					logger.Error().Err(err).Msg("self-update failed")
				}
			}
		}
	}
}

// publishEvent wraps payload in the models.Event envelope the dispatcher
// expects on events.raw, publishing directly if connected or spooling the
// wrapped envelope otherwise.
func publishEvent(comm *communicator.Communicator, sp *spool.Spool, eventType, hostID string, payload []byte, logger zerolog.Logger) {
	evt := models.Event{
		ID:        utils.GenerateID(),
		Type:      eventType,
		Source:    "etl-agent",
		Timestamp: time.Now().UnixMilli(),
		Metadata:  models.EventMetadata{HostID: hostID},
		Payload:   payload,
	}

	evtLog := logger.With().Str("event_id", evt.ID).Str("subject", messaging.SubjectEventsRaw).Logger()

	data, err := json.Marshal(evt)
	if err != nil {
		evtLog.Error().Err(err).Msg("error marshaling event envelope")
		return
	}

	if comm != nil {
		if err := comm.Publish(messaging.SubjectEventsRaw, data); err != nil {
			evtLog.Error().Err(err).Msg("publish failed")
		}
		return
	}
	if err := sp.Enqueue(messaging.SubjectEventsRaw, data); err != nil {
		evtLog.Error().Err(err).Msg("spool enqueue failed")
	}
}
