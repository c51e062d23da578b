package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

func TestRiskLevel_Boundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.8, "CRITICAL"},
		{0.79, "HIGH"},
		{0.6, "HIGH"},
		{0.59, "MEDIUM"},
		{0.4, "MEDIUM"},
		{0.39, "LOW"},
		{0.2, "LOW"},
		{0.19, "MINIMAL"},
		{0.0, "MINIMAL"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, RiskLevel(c.score), "RiskLevel(%v)", c.score)
	}
}

func TestScore_MonotonicInCandidateScore(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cve := models.CveDescriptor{}

	low := Score(models.Candidate{Score: 0.1, Severity: "low"}, cve, now)
	high := Score(models.Candidate{Score: 0.9, Severity: "low"}, cve, now)

	assert.Less(t, low, high)
}

func TestScore_CappedAtOne(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cve := models.CveDescriptor{
		Cwe:        models.CWE{CweIDs: []string{"CWE-89"}},
		References: make([]string, 10),
		Published:  now.Add(-24 * time.Hour).Format(time.RFC3339),
	}
	candidate := models.Candidate{Score: 1.0, CvssScore: 10.0, Severity: "critical"}

	got := Score(candidate, cve, now)
	assert.LessOrEqual(t, got, 1.0)
	assert.Equal(t, 1.0, got)
}

func TestScore_RoundedToThreeDecimals(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candidate := models.Candidate{Score: 0.3333333, Severity: "medium"}

	got := Score(candidate, models.CveDescriptor{}, now)

	scaled := got * 1000
	assert.InDelta(t, scaled, float64(int64(scaled+0.5)), 1e-9, "expected a value rounded to 3 decimals")
}
