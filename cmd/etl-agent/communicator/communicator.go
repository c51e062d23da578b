// Package communicator implements the reference host agent's mTLS NATS
// client, backed by a durable local spool so publishes survive a bus
// outage instead of being silently lost.
package communicator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	securecomms "github.com/sgerhart/aegisflux-etl/internal/secure-comms"

	"github.com/nats-io/nats.go"

	"github.com/sgerhart/aegisflux-etl/cmd/etl-agent/config"
	"github.com/sgerhart/aegisflux-etl/cmd/etl-agent/spool"
)

type Communicator struct {
	config *config.AgentConfig
	nc     *nats.Conn
	spool  *spool.Spool
	mtls   *securecomms.MTLSManager
	log    zerolog.Logger
}

func NewCommunicator(cfg *config.AgentConfig, sp *spool.Spool, logger zerolog.Logger) (*Communicator, error) {
	mtls, err := securecomms.NewMTLSManager(&securecomms.MTLSConfig{
		CertsDir:       filepath.Dir(cfg.CertFile),
		ServerCertFile: filepath.Base(cfg.CertFile),
		ServerKeyFile:  filepath.Base(cfg.KeyFile),
		CACertFile:     filepath.Base(cfg.CAFile),
		AutoRotate:     cfg.MTLSAutoRotate,
		RotationDays:   cfg.MTLSRotationDays,
		CheckInterval:  cfg.MTLSCheckInterval,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load mTLS config: %w", err)
	}

	c := &Communicator{config: cfg, spool: sp, mtls: mtls, log: logger.With().Str("component", "communicator").Logger()}

	opts := []nats.Option{
		nats.Secure(mtls.GetTLSConfig()),
		nats.Name("aegisflux-agent-" + cfg.AgentID),
		nats.ReconnectWait(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.log.Warn().Err(err).Msg("disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.log.Info().Msg("reconnected, draining spool")
			if err := c.DrainSpool(); err != nil {
				c.log.Error().Err(err).Msg("spool drain failed")
			}
		}),
	}

	nc, err := nats.Connect(cfg.ServerURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect failed: %w", err)
	}
	c.nc = nc

	return c, nil
}

func (c *Communicator) Close() {
	if c.mtls != nil {
		c.mtls.Stop()
	}
	if c.nc != nil {
		c.nc.Close()
	}
}

// Publish attempts a direct bus publish; on failure (or while disconnected)
// it spools the message locally for later delivery instead of dropping it.
func (c *Communicator) Publish(subject string, data []byte) error {
	if c.nc == nil || !c.nc.IsConnected() {
		return c.spool.Enqueue(subject, data)
	}
	if err := c.nc.Publish(subject, data); err != nil {
		c.log.Warn().Err(err).Str("subject", subject).Msg("publish failed, spooling")
		return c.spool.Enqueue(subject, data)
	}
	return nil
}

// DrainSpool flushes any locally queued messages now that the bus is
// reachable again.
func (c *Communicator) DrainSpool() error {
	if c.nc == nil {
		return fmt.Errorf("not connected")
	}
	return c.spool.Drain(func(subject string, payload []byte) error {
		return c.nc.Publish(subject, payload)
	})
}

func (c *Communicator) SubscribeCommands(ctx context.Context, handler func(cmd []byte)) error {
	topic := "commands." + c.config.AgentID
	_, err := c.nc.Subscribe(topic, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	return err
}
