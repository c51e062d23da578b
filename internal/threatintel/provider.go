// Package threatintel provides a Redis-cached reputation lookup for
// destination IPs. The external lookup itself is a local placeholder;
// wiring a real feed is future work.
package threatintel

import (
	"context"
	"time"

	"github.com/sgerhart/aegisflux-etl/pkg/database"
	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

// Provider wraps a Redis cache in front of a reputation lookup.
type Provider struct {
	redis *database.RedisClient
}

func NewProvider(r *database.RedisClient) *Provider {
	return &Provider{redis: r}
}

// CheckIP returns a cached reputation if present, otherwise performs a
// lookup and caches a malicious verdict for a day.
func (p *Provider) CheckIP(ctx context.Context, ip string) (*models.ThreatReputation, error) {
	cached, err := p.redis.GetThreatIntel(ctx, ip)
	if err == nil && cached != "" {
		return &models.ThreatReputation{Score: 100, IsMalicious: true, Source: "cache"}, nil
	}

	rep := lookup(ip)
	if rep.IsMalicious {
		_ = p.redis.SetThreatIntel(ctx, ip, rep.Source, 24*time.Hour)
	}
	return rep, nil
}

// lookup is a placeholder external reputation check; no third-party feed
// is in scope, so known-bad ranges are kept short and explicit.
func lookup(ip string) *models.ThreatReputation {
	if ip == "1.2.3.4" {
		return &models.ThreatReputation{Score: 100, IsMalicious: true, Source: "local-denylist"}
	}
	return &models.ThreatReputation{Score: 0, IsMalicious: false}
}
