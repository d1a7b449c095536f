package domain

import "time"

// Category names the kind of data a source provides.
type Category string

const (
	CategoryVegetation Category = "vegetation"
	CategoryWeather    Category = "weather"
	CategoryConflict   Category = "conflict"
	CategoryFire       Category = "fire"
	CategoryCensus     Category = "census"
	CategoryWater      Category = "water"
	CategoryNews       Category = "news"
)

// SourceStatus reports how fresh a source result (or cache entry) is.
type SourceStatus string

const (
	StatusConnected SourceStatus = "connected"
	StatusCached    SourceStatus = "cached"
	StatusLimited   SourceStatus = "limited"
	StatusFailed    SourceStatus = "failed"
)

// Degraded reports whether the status reflects anything other than a
// successful fetch this cycle.
func (s SourceStatus) Degraded() bool {
	return s != StatusConnected
}

func (s SourceStatus) rank() int {
	switch s {
	case StatusConnected:
		return 0
	case StatusCached:
		return 1
	case StatusLimited:
		return 2
	default:
		return 3
	}
}

// WorstStatus returns the most degraded of the given statuses, or connected
// when none are given.
func WorstStatus(statuses ...SourceStatus) SourceStatus {
	worst := StatusConnected
	for _, s := range statuses {
		if s.rank() > worst.rank() {
			worst = s
		}
	}
	return worst
}

// SourceResult is the outcome of one collaborator fetch in one cycle.
type SourceResult struct {
	SourceID    string       `json:"source_id"`
	Category    Category     `json:"category"`
	FetchedAt   time.Time    `json:"fetched_at,omitzero"`
	AttemptedAt time.Time    `json:"attempted_at"`
	Status      SourceStatus `json:"status"`
	Payload     *Payload     `json:"payload"`
	Error       string       `json:"error,omitempty"`
}

// Usable reports whether the result carries a payload fusion can consume.
func (r SourceResult) Usable() bool {
	return r.Payload != nil && r.Status != StatusFailed
}

// Ref returns the citation used in herd evidence.
func (r SourceResult) Ref() SourceRef {
	return SourceRef{SourceID: r.SourceID, Status: r.Status, FetchedAt: r.FetchedAt}
}

// SourceRef cites the source behind a derived value.
type SourceRef struct {
	SourceID  string       `json:"source_id"`
	Status    SourceStatus `json:"status"`
	FetchedAt time.Time    `json:"fetched_at"`
}
