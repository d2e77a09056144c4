package domain

// Ingest records one processed upload: the counts of what was parsed and a
// handle for retrieving its entries, errors, and report.
type Ingest struct {
	ID         string `json:"id"`
	Source     string `json:"source,omitempty"`
	ActorID    string `json:"actor_id"`
	LineCount  int    `json:"line_count"`
	EntryCount int    `json:"entry_count"`
	ErrorCount int    `json:"error_count"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Event is one row of the append-only workspace event log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	IngestID   string `json:"ingest_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
