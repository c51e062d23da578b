// Package geoip looks up a MaxMind City database for a destination IP.
// Absence of the database file disables lookups rather than failing
// startup.
package geoip

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog"

	"github.com/sgerhart/aegisflux-etl/pkg/database"
	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

const cacheTTL = 24 * time.Hour

type Provider struct {
	db    *geoip2.Reader
	redis *database.RedisClient
	log   zerolog.Logger
}

// NewProvider opens the MaxMind database at path. redis may be nil, in which
// case every lookup hits the database directly with no caching.
func NewProvider(path string, redis *database.RedisClient, log zerolog.Logger) *Provider {
	log = log.With().Str("component", "geoip").Logger()

	db, err := geoip2.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("geoip database not found, geo enrichment disabled")
		return &Provider{db: nil, redis: redis, log: log}
	}
	return &Provider{db: db, redis: redis, log: log}
}

// Lookup returns the City-level location for ip, or nil if the database is
// unavailable, the IP is unparsable, or no record is found. Results are
// cached in Redis (when configured) to avoid repeated database lookups for
// the same destination.
func (p *Provider) Lookup(ctx context.Context, ipStr string) *models.GeoLocation {
	if p.redis != nil {
		if cached, err := p.redis.GetCachedGeoIP(ctx, ipStr); err == nil && cached != "" {
			var loc models.GeoLocation
			if err := json.Unmarshal([]byte(cached), &loc); err == nil {
				return &loc
			}
		}
	}

	if p.db == nil {
		return nil
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil
	}

	record, err := p.db.City(ip)
	if err != nil {
		return nil
	}

	loc := &models.GeoLocation{
		Country: record.Country.Names["en"],
		City:    record.City.Names["en"],
		ISO:     record.Country.IsoCode,
		Lat:     record.Location.Latitude,
		Lon:     record.Location.Longitude,
	}

	if p.redis != nil {
		if data, err := json.Marshal(loc); err == nil {
			if err := p.redis.CacheGeoIP(ctx, ipStr, string(data), cacheTTL); err != nil {
				p.log.Warn().Err(err).Str("ip", ipStr).Msg("geoip cache write failed")
			}
		}
	}

	return loc
}

func (p *Provider) Close() {
	if p.db != nil {
		p.db.Close()
	}
}
