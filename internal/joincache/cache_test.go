package joincache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgerhart/aegisflux-etl/internal/score"
	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(0, 0, 0)
	require.NoError(t, err)
	return c
}

func TestOnPkgMapping_EmitsOnlyWhenCveAlreadyKnown(t *testing.T) {
	c := newTestCache(t)

	mapping := models.PkgCveMapping{
		HostID:  "host-1",
		Package: models.Package{Name: "openssl"},
		Candidates: []models.Candidate{
			{CveID: "CVE-2024-0001"},
		},
		Timestamp: "2026-01-01T00:00:00.000Z",
	}

	joins := c.OnPkgMapping(mapping)
	require.Empty(t, joins, "no join until the CVE descriptor arrives")

	joins = c.OnCveUpdate(models.CveDescriptor{CveID: "CVE-2024-0001"})
	require.Len(t, joins, 1, "late-arriving CVE must still trigger the pending mapping")
	require.Equal(t, "host-1", joins[0].Mapping.HostID)
}

func TestOnCveUpdate_EmitsForAlreadyKnownMapping(t *testing.T) {
	c := newTestCache(t)

	c.OnPkgMapping(models.PkgCveMapping{
		HostID:     "host-1",
		Package:    models.Package{Name: "openssl"},
		Candidates: []models.Candidate{{CveID: "CVE-2024-0001"}},
		Timestamp:  "2026-01-01T00:00:00.000Z",
	})

	joins := c.OnCveUpdate(models.CveDescriptor{CveID: "CVE-2024-0001"})
	require.Len(t, joins, 1)
}

func TestEmission_IsAtMostOnce(t *testing.T) {
	c := newTestCache(t)

	mapping := models.PkgCveMapping{
		HostID:     "host-1",
		Package:    models.Package{Name: "openssl"},
		Candidates: []models.Candidate{{CveID: "CVE-2024-0001"}},
		Timestamp:  "2026-01-01T00:00:00.000Z",
	}

	c.OnCveUpdate(models.CveDescriptor{CveID: "CVE-2024-0001"})

	first := c.OnPkgMapping(mapping)
	require.Len(t, first, 1)

	second := c.OnPkgMapping(mapping)
	require.Empty(t, second, "re-sending the identical mapping must not re-emit")
}

func TestBuildRecord_ShapesEnrichedJoin(t *testing.T) {
	j := Join{
		Mapping: models.PkgCveMapping{HostID: "host-1", Package: models.Package{Name: "openssl"}, TotalCandidates: 1},
		Candidate: models.Candidate{
			CveID: "CVE-2024-0001", Score: 0.5, Severity: "high",
		},
		Cve: models.CveDescriptor{CveID: "CVE-2024-0001"},
	}

	rec := BuildRecord(j, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	require.Equal(t, "pkg_cve_enriched", rec.RecordType)
	require.Equal(t, "host-1", rec.HostID)
	require.Equal(t, "CVE-2024-0001", rec.CveCandidate.CveID)
	require.NotEmpty(t, rec.Enrichment.RiskLevel)
	require.Equal(t, score.EnrichmentVersion, rec.Enrichment.EnrichmentVersion)
}
