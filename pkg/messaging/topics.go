package messaging

// Subject constants for the enrichment/correlation pipeline bus. Using
// constants avoids allocation for subject strings during dispatch.
const (
	// SubjectEventsRaw carries raw host/process/network events from agents.
	SubjectEventsRaw = "events.raw"

	// SubjectFeedsCveUpdates carries CVE descriptors from the feed service.
	SubjectFeedsCveUpdates = "feeds.cve.updates"

	// SubjectFeedsPkgCve carries per-host package-CVE candidate mappings.
	SubjectFeedsPkgCve = "feeds.pkg.cve"

	// SubjectEventsEnriched carries enriched events, one per raw event.
	SubjectEventsEnriched = "events.enriched"

	// SubjectEtlEnriched carries enriched join records.
	SubjectEtlEnriched = "etl.enriched"
)

// Stream names backing the above subjects.
const (
	StreamEvents = "ETL_EVENTS"
	StreamFeeds  = "ETL_FEEDS"
)

// Header names used on outbound messages.
const (
	HeaderHostID    = "x-host-id"
	HeaderEventType = "x-event-type"
	HeaderTimestamp = "x-timestamp"
	HeaderEnriched  = "x-enriched"
	HeaderPackage   = "x-package"
	HeaderCveID     = "x-cve-id"
)

// Durable consumer name. Nothing in the module references it: the
// dispatcher uses plain core-NATS subscriptions, with no queue group or
// durable consumer.
const ConsumerDispatch = "ETL_DISPATCH"
