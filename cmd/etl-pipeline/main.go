// Command etl-pipeline is the core process: it wires the dispatcher,
// enricher, scorer, join cache, graph writer, time-series writer, and
// publisher together and runs them until a shutdown signal arrives.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sgerhart/aegisflux-etl/cmd/etl-pipeline/config"
	"github.com/sgerhart/aegisflux-etl/internal/dispatch"
	"github.com/sgerhart/aegisflux-etl/internal/geoip"
	"github.com/sgerhart/aegisflux-etl/internal/graph"
	"github.com/sgerhart/aegisflux-etl/internal/joincache"
	securecomms "github.com/sgerhart/aegisflux-etl/internal/secure-comms"
	"github.com/sgerhart/aegisflux-etl/internal/supervisor"
	"github.com/sgerhart/aegisflux-etl/internal/threatintel"
	"github.com/sgerhart/aegisflux-etl/internal/timeseries"
	"github.com/sgerhart/aegisflux-etl/pkg/database"
	"github.com/sgerhart/aegisflux-etl/pkg/messaging"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	logger := log.With().Str("service", "etl-pipeline").Logger()

	cfg := config.Load()

	nc, err := messaging.NewClient(&messaging.NatsConfig{
		URL:           cfg.NatsURL,
		ReconnectWait: 2 * time.Second,
		MaxReconnects: 5,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect failed")
	}

	pg, err := database.NewPostgresClient(&database.PostgresConfig{
		Host:     cfg.PgHost,
		Port:     cfg.PgPort,
		Database: cfg.PgDatabase,
		Username: cfg.PgUser,
		Password: cfg.PgPassword,
		SSLMode:  "disable",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}

	neo, err := database.NewNeo4jClient(&database.Neo4jConfig{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("neo4j connect failed")
	}

	jc, err := joincache.New(cfg.JoinCacheMaxCve, cfg.JoinCacheMaxPkg, cfg.JoinCacheMaxEmitted)
	if err != nil {
		logger.Fatal().Err(err).Msg("join cache init failed")
	}

	var geoProvider *geoip.Provider
	var tiProvider *threatintel.Provider
	if cfg.GeoEnrichEnabled {
		redisClient, err := database.NewRedisClient(&database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			PoolSize: 10,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("redis connect failed, geo/threat-intel caching disabled")
			redisClient = nil
		} else {
			tiProvider = threatintel.NewProvider(redisClient)
		}
		geoProvider = geoip.NewProvider(cfg.GeoIPDBPath, redisClient, logger)
	}

	sup := supervisor.New(logger)
	sup.NC = nc.Connection()
	sup.MC = nc
	sup.PG = pg
	if cfg.CertFile != "" {
		if certMgr, err := securecomms.NewCertManager(filepath.Dir(cfg.CertFile)); err != nil {
			logger.Warn().Err(err).Msg("cert manager init failed, mtls_cert health check disabled")
		} else {
			sup.CertMgr = certMgr
			sup.CertPath = cfg.CertFile
		}
	}
	sup.Neo = neo
	sup.TSW = timeseries.New(pg, logger)
	sup.GW = graph.New(neo, logger)

	ctx := context.Background()
	if err := sup.ConnectOrdered(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ordered connect failed")
	}

	sup.DSP, err = dispatch.New(sup.NC, dispatch.Config{
		MaxInflight:      cfg.MaxBatchSize,
		Deadline:         cfg.ProcessingTimeout,
		Env:              cfg.Env,
		FakeRDNS:         cfg.FakeRDNS,
		GeoEnrichEnabled: cfg.GeoEnrichEnabled,
		FilterExpr:       cfg.FilterExpr,
	}, jc, sup.GW, sup.TSW, sup.Pub, geoProvider, tiProvider, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("dispatcher init failed")
	}

	go serveHealth(cfg.HealthPort, sup, logger)

	if err := sup.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("pipeline run failed")
		os.Exit(1)
	}
}

func serveHealth(port int, sup *supervisor.Supervisor, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sup.Health())
	})

	addr := fmt.Sprintf(":%d", port)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("health server stopped")
	}
}
