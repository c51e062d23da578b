// Package joincache holds the two asymmetric-arrival caches (CVE
// descriptors by id, package-CVE mappings by host+package) and the
// deterministic emission policy that joins them into enriched join records
// as either side arrives.
package joincache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sgerhart/aegisflux-etl/internal/score"
	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

const (
	DefaultMaxCveCache     = 200_000
	DefaultMaxPkgCache     = 200_000
	DefaultMaxEmittedCache = 100_000
)

// Cache owns the CVE-by-id map, the (host,package)-keyed mapping map, and
// the emitted-set that enforces at-most-once emission. All three are
// guarded by a single mutex: the emission policy performs compound
// read-then-write sequences that must not interleave across goroutines.
type Cache struct {
	mu       sync.Mutex
	cveByID  *lru.Cache[string, models.CveDescriptor]
	pkgByKey *lru.Cache[string, models.PkgCveMapping]
	emitted  *lru.Cache[string, struct{}]
}

// New constructs a Cache with the given bounds. A zero value for any bound
// falls back to its default.
func New(maxCve, maxPkg, maxEmitted int) (*Cache, error) {
	if maxCve <= 0 {
		maxCve = DefaultMaxCveCache
	}
	if maxPkg <= 0 {
		maxPkg = DefaultMaxPkgCache
	}
	if maxEmitted <= 0 {
		maxEmitted = DefaultMaxEmittedCache
	}

	cveCache, err := lru.New[string, models.CveDescriptor](maxCve)
	if err != nil {
		return nil, fmt.Errorf("join cache: cve lru: %w", err)
	}
	pkgCache, err := lru.New[string, models.PkgCveMapping](maxPkg)
	if err != nil {
		return nil, fmt.Errorf("join cache: pkg lru: %w", err)
	}
	emittedCache, err := lru.New[string, struct{}](maxEmitted)
	if err != nil {
		return nil, fmt.Errorf("join cache: emitted lru: %w", err)
	}

	return &Cache{cveByID: cveCache, pkgByKey: pkgCache, emitted: emittedCache}, nil
}

func pkgKey(hostID, packageName string) string {
	return hostID + ":" + packageName
}

func emittedKey(hostID, packageName, cveID, mappingTimestamp string) string {
	return hostID + ":" + packageName + ":" + cveID + ":" + mappingTimestamp
}

// Join is one (mapping, candidate, descriptor) triple ready to be scored
// and emitted.
type Join struct {
	Mapping   models.PkgCveMapping
	Candidate models.Candidate
	Cve       models.CveDescriptor
}

// OnCveUpdate records the CVE descriptor and returns every retained
// package-CVE mapping candidate that references it and has not yet been
// emitted. Evicting a CVE never re-triggers emission for records already
// marked emitted.
func (c *Cache) OnCveUpdate(cve models.CveDescriptor) []Join {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cveByID.Add(cve.CveID, cve)

	var joins []Join
	for _, key := range c.pkgByKey.Keys() {
		mapping, ok := c.pkgByKey.Peek(key)
		if !ok {
			continue
		}
		for _, cand := range mapping.Candidates {
			if cand.CveID != cve.CveID {
				continue
			}
			ek := emittedKey(mapping.HostID, mapping.Package.Name, cand.CveID, mapping.Timestamp)
			if _, seen := c.emitted.Get(ek); seen {
				continue
			}
			c.emitted.Add(ek, struct{}{})
			joins = append(joins, Join{Mapping: mapping, Candidate: cand, Cve: cve})
		}
	}
	return joins
}

// OnPkgMapping records the mapping (last write wins per host+package key)
// and returns every candidate whose CVE descriptor is already cached and
// has not yet been emitted.
func (c *Cache) OnPkgMapping(mapping models.PkgCveMapping) []Join {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pkgByKey.Add(pkgKey(mapping.HostID, mapping.Package.Name), mapping)

	var joins []Join
	for _, cand := range mapping.Candidates {
		cve, ok := c.cveByID.Get(cand.CveID)
		if !ok {
			continue
		}
		ek := emittedKey(mapping.HostID, mapping.Package.Name, cand.CveID, mapping.Timestamp)
		if _, seen := c.emitted.Get(ek); seen {
			continue
		}
		c.emitted.Add(ek, struct{}{})
		joins = append(joins, Join{Mapping: mapping, Candidate: cand, Cve: cve})
	}
	return joins
}

// BuildRecord scores a Join and produces the wire-ready EnrichedJoin record.
func BuildRecord(j Join, now time.Time) models.EnrichedJoin {
	s := score.Score(j.Candidate, j.Cve, now)
	nowISO := now.UTC().Format("2006-01-02T15:04:05.000Z")

	return models.EnrichedJoin{
		RecordType: "pkg_cve_enriched",
		Timestamp:  nowISO,
		HostID:     j.Mapping.HostID,
		Package:    j.Mapping.Package,
		CveCandidate: models.Candidate{
			CveID:     j.Candidate.CveID,
			Score:     j.Candidate.Score,
			Reason:    j.Candidate.Reason,
			CvssScore: j.Candidate.CvssScore,
			Severity:  j.Candidate.Severity,
		},
		CveData: j.Cve,
		Enrichment: models.Enrichment{
			ExploitabilityScore: s,
			RiskLevel:           score.RiskLevel(s),
			EnrichmentTimestamp: nowISO,
			EnrichmentVersion:   score.EnrichmentVersion,
		},
		Metadata: models.JoinMetadata{
			Source:             "etl-enrich",
			EnrichmentPipeline: "pkg_cve_join",
			OriginalTimestamp:  j.Mapping.Timestamp,
			TotalCandidates:    j.Mapping.TotalCandidates,
		},
	}
}
