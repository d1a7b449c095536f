package domain

import (
	"encoding/json"
	"time"
)

// Cache collections written by the pipeline.
const (
	CollectionSources   = "sources"
	CollectionHerds     = "herds"
	CollectionZones     = "zones"
	CollectionNews      = "news"
	CollectionSnapshots = "snapshots"
	CollectionPressure  = "pressure"
	CollectionStats     = "stats"
	CollectionCycles    = "cycles"
	// CollectionWeatherHistory accumulates one forecast per fetch day.
	CollectionWeatherHistory = "weather_history"
	// CollectionReference holds the geography views served by the API.
	CollectionReference = "reference"
	// CollectionManifests records, per replaced collection, the keys and
	// time of its last commit.
	CollectionManifests = "manifests"
)

// Keys used in singleton collections.
const (
	KeyCurrent = "current"
	KeyLatest  = "latest"
)

// CacheEntry is one persisted document with its freshness metadata.
type CacheEntry struct {
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Document   json.RawMessage `json:"document"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Status     SourceStatus    `json:"status"`
}

// Staleness is how long ago the entry was last written.
func (e CacheEntry) Staleness(now time.Time) time.Duration {
	if now.Before(e.UpdatedAt) {
		return 0
	}
	return now.Sub(e.UpdatedAt)
}

// Decode unmarshals the document into v.
func (e CacheEntry) Decode(v any) error {
	return json.Unmarshal(e.Document, v)
}

// Manifest lists the keys a collection held after its last commit.
type Manifest struct {
	Keys []string `json:"keys"`
}

// CycleRecord is the per-cycle bookkeeping document.
type CycleRecord struct {
	CycleID       string            `json:"cycle_id"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
	SourceStatus  map[string]string `json:"source_status"`
	SkippedWrites []string          `json:"skipped_writes,omitempty"`
	Herds         int               `json:"herds"`
	Zones         int               `json:"zones"`
	Changes       int               `json:"changes"`
}
