package models

// Event is a raw telemetry record as received on events.raw. Timestamp is
// always normalized to integer ms by the time it reaches this type; decoding
// from the wire (which may carry an ISO-8601 string or an integer) happens
// in internal/dispatch before an Event is constructed.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp int64                  `json:"timestamp"`
	Metadata  EventMetadata          `json:"metadata"`
	Payload   []byte                 `json:"payload,omitempty"`
	Extra     map[string]interface{} `json:"-"`
}

// EventMetadata holds the recognized metadata keys. Unrecognized keys on the
// wire are tolerated (forward-compat) but not retained on this type.
type EventMetadata struct {
	HostID        string `json:"host_id,omitempty"`
	PID           int    `json:"pid,omitempty"`
	UID           string `json:"uid,omitempty"`
	ContainerID   string `json:"container_id,omitempty"`
	BinarySHA256  string `json:"binary_sha256,omitempty"`
}

// ConnectArgs is the decoded shape of a connect event's payload.
type ConnectArgs struct {
	DstIP   string `json:"dst_ip,omitempty"`
	DstPort int    `json:"dst_port,omitempty"`
}

// Context is the set of fields the enricher adds. Rdns is a pointer so a
// nil value serializes to JSON null rather than an empty string. Geo and
// ThreatIntel are populated only when the optional geo/threat-intel side
// enrichment is enabled and a connect event carries a destination IP.
type Context struct {
	Env         string            `json:"env"`
	Rdns        *string           `json:"rdns"`
	Geo         *GeoLocation      `json:"geo,omitempty"`
	ThreatIntel *ThreatReputation `json:"threat_intel,omitempty"`
}

// GeoLocation is a MaxMind City-lookup result for a connect event's
// destination IP.
type GeoLocation struct {
	Country string  `json:"country,omitempty"`
	City    string  `json:"city,omitempty"`
	ISO     string  `json:"iso,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lon     float64 `json:"lon,omitempty"`
}

// ThreatReputation is a cached-or-looked-up reputation verdict for a
// destination IP.
type ThreatReputation struct {
	Score       int    `json:"score"`
	IsMalicious bool   `json:"is_malicious"`
	Source      string `json:"source,omitempty"`
}

// EnrichedEvent is an Event plus its Context. Once constructed by ENR it is
// never mutated again.
type EnrichedEvent struct {
	Event
	Context Context `json:"context"`
}

// CVSSScores holds the base score under each CVSS version key the upstream
// feed may populate. Any subset may be zero-valued.
type CVSSScores struct {
	V31 float64 `json:"v3.1,omitempty"`
	V3  float64 `json:"v3,omitempty"`
	V2  float64 `json:"v2,omitempty"`
}

// CWE holds the CWE identifiers attached to a CVE descriptor.
type CWE struct {
	CweIDs []string `json:"cwe_ids,omitempty"`
}

// CveDescriptor is the per-CVE record held in the join cache, keyed by
// CveID. Replaced wholesale on every feeds.cve.updates arrival.
type CveDescriptor struct {
	CveID            string     `json:"cve_id"`
	Published        string     `json:"published"`
	LastModified     string     `json:"last_modified"`
	Descriptions     []string   `json:"descriptions,omitempty"`
	CVSS             CVSSScores `json:"cvss"`
	Cwe              CWE        `json:"cwe"`
	AffectedProducts []string   `json:"affected_products,omitempty"`
	References       []string   `json:"references,omitempty"`
}

// Package identifies a package instance on a host, as produced by the
// upstream package-inventory/matcher collaborator.
type Package struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	Epoch          string `json:"epoch,omitempty"`
	Release        string `json:"release,omitempty"`
	Arch           string `json:"arch,omitempty"`
	Distro         string `json:"distro,omitempty"`
	DistroVersion  string `json:"distro_version,omitempty"`
}

// Candidate is one candidate CVE match against a Package, as produced by the
// upstream matcher.
type Candidate struct {
	CveID     string  `json:"cve_id"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason,omitempty"`
	CvssScore float64 `json:"cvss_score"`
	Severity  string  `json:"severity"`
}

// PkgCveMapping is the per-(host,package) record held in the join cache,
// keyed by "<host_id>:<package.name>". Last write wins per key.
type PkgCveMapping struct {
	HostID          string      `json:"host_id"`
	Package         Package     `json:"package"`
	Candidates      []Candidate `json:"candidates"`
	Timestamp       string      `json:"timestamp"`
	TotalCandidates int         `json:"total_candidates"`
}

// Enrichment carries the scorer's output for a single join record.
type Enrichment struct {
	ExploitabilityScore float64 `json:"exploitability_score"`
	RiskLevel           string  `json:"risk_level"`
	EnrichmentTimestamp string  `json:"enrichment_timestamp"`
	EnrichmentVersion   string  `json:"enrichment_version"`
}

// JoinMetadata carries provenance fields for a join record.
type JoinMetadata struct {
	Source             string `json:"source"`
	EnrichmentPipeline string `json:"enrichment_pipeline"`
	OriginalTimestamp  string `json:"original_timestamp"`
	TotalCandidates    int    `json:"total_candidates"`
}

// EnrichedJoin is emitted once per (host_id, package.name, candidate.cve_id,
// mapping_timestamp) when the matching CVE descriptor is present.
type EnrichedJoin struct {
	RecordType   string        `json:"record_type"`
	Timestamp    string        `json:"timestamp"`
	HostID       string        `json:"host_id"`
	Package      Package       `json:"package"`
	CveCandidate Candidate     `json:"cve_candidate"`
	CveData      CveDescriptor `json:"cve_data"`
	Enrichment   Enrichment    `json:"enrichment"`
	Metadata     JoinMetadata  `json:"metadata"`
}

// PackageInfo is the wire shape published by the upstream package-inventory
// collaborator (agent or matcher); it is the input half of PkgCveMapping
// production and is only consumed here for the reference agent stub.
type PackageInfo struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	Epoch         string `json:"epoch,omitempty"`
	Release       string `json:"release,omitempty"`
	Arch          string `json:"arch,omitempty"`
	Distro        string `json:"distro,omitempty"`
	DistroVersion string `json:"distro_version,omitempty"`
}
