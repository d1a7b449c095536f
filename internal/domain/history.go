package domain

import "time"

// Keys of the reference collection.
const (
	KeyWaterSources        = "water-sources"
	KeyGrazingRegions      = "grazing-regions"
	KeyCorridors           = "corridors"
	KeyNDVIZones           = "ndvi-zones"
	KeyHistoricalConflicts = "historical-conflicts"
)

// WeatherRecord is one day's forecast as fetched, kept for trend review.
type WeatherRecord struct {
	Date      string      `json:"date"`
	SourceID  string      `json:"source_id"`
	FetchedAt time.Time   `json:"fetched_at"`
	Rain7Day  float64     `json:"rain_7day_mm"`
	Forecast  WeatherData `json:"forecast"`
}

// ConflictHistory is the curated incident record with its totals.
type ConflictHistory struct {
	Conflicts         []ConflictEvent `json:"conflicts"`
	Count             int             `json:"count"`
	TotalFatalities   int             `json:"total_casualties"`
	TotalCattleStolen int             `json:"total_cattle_stolen"`
}

// NewConflictHistory totals events. The slice is kept as given.
func NewConflictHistory(events []ConflictEvent) ConflictHistory {
	h := ConflictHistory{Conflicts: events, Count: len(events)}
	if h.Conflicts == nil {
		h.Conflicts = []ConflictEvent{}
	}
	for _, e := range events {
		h.TotalFatalities += e.Fatalities
		h.TotalCattleStolen += e.CattleStolen
	}
	return h
}
