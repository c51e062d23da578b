// Package score computes the exploitability score and discrete risk level
// for a package-CVE candidate joined against its CVE descriptor. Pure
// function, no I/O, no suspension points.
package score

import (
	"math"
	"strings"
	"time"

	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

const EnrichmentVersion = "1.0"

var severityBonus = map[string]float64{
	"critical": 0.3,
	"high":     0.2,
	"medium":   0.1,
	"low":      0.05,
}

var highRiskCWEs = map[string]bool{
	"CWE-79": true, "CWE-89": true, "CWE-78": true, "CWE-22": true,
	"CWE-352": true, "CWE-434": true, "CWE-502": true,
	"CWE-862": true, "CWE-863": true, "CWE-269": true,
}

// Score computes the additive exploitability score in [0, 1] for candidate
// against cve, rounded to 3 decimals. now is injected so callers can pin the
// recency bonus in tests; production callers pass time.Now().
func Score(candidate models.Candidate, cve models.CveDescriptor, now time.Time) float64 {
	s := candidate.Score * 0.4

	if candidate.CvssScore > 0 {
		s += math.Min(candidate.CvssScore/10.0, 1.0) * 0.3
	}

	s += severityBonus[strings.ToLower(candidate.Severity)]

	for _, id := range cve.Cwe.CweIDs {
		if highRiskCWEs[id] {
			s += 0.1
			break
		}
	}

	if len(cve.References) > 5 {
		s += 0.05
	}

	if cve.Published != "" {
		if pub, err := time.Parse(time.RFC3339, normalizeISO(cve.Published)); err == nil {
			if now.Sub(pub) < 30*24*time.Hour {
				s += 0.05
			}
		}
	}

	if s > 1.0 {
		s = 1.0
	}
	return round3(s)
}

// RiskLevel maps an exploitability score to its discrete risk bucket.
func RiskLevel(score float64) string {
	switch {
	case score >= 0.8:
		return "CRITICAL"
	case score >= 0.6:
		return "HIGH"
	case score >= 0.4:
		return "MEDIUM"
	case score >= 0.2:
		return "LOW"
	default:
		return "MINIMAL"
	}
}

func normalizeISO(s string) string {
	return strings.Replace(s, "Z", "+00:00", 1)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
