package domain

import (
	"errors"
	"fmt"
	"time"
)

// Confidence factor names. A factor is present in HerdEstimate.Factors only
// when its input was available.
const (
	FactorCensusMatch         = "census_match"
	FactorNDVICorrelation     = "ndvi_correlation"
	FactorCorridorMatch       = "corridor_match"
	FactorGroundVerification  = "ground_verification"
	FactorSatelliteVisibility = "satellite_visibility"
)

// HerdEstimate is the fused position and state of one tracked herd.
type HerdEstimate struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Lat            float64            `json:"lat"`
	Lng            float64            `json:"lng"`
	HeadCount      int                `json:"head_count"`
	Region         string             `json:"region"`
	Ethnicity      string             `json:"ethnicity"`
	NDVI           float64            `json:"ndvi"`
	WaterDays      int                `json:"water_days"`
	Trend          string             `json:"trend"`
	SpeedKmPerDay  float64            `json:"speed_km_per_day"`
	Confidence     float64            `json:"confidence"`
	Factors        map[string]float64 `json:"factors"`
	Note           string             `json:"note,omitempty"`
	Evidence       Evidence           `json:"evidence"`
	EstimatedAt    time.Time          `json:"estimated_at"`
	AvoidingZoneID string             `json:"avoiding_zone_id,omitempty"`
}

// Evidence explains how a herd estimate was derived.
type Evidence struct {
	PrimaryIndicators  []string    `json:"primary_indicators"`
	SupportingSources  []SourceRef `json:"supporting_data_sources"`
	VerificationMethod string      `json:"verification_method"`
	LastVerification   time.Time   `json:"last_verification_timestamp"`
}

// Validate checks the range invariants every published estimate satisfies.
func (h HerdEstimate) Validate() error {
	switch {
	case h.ID == "":
		return errors.New("herd estimate without id")
	case !ValidCoordinate(h.Lat, h.Lng):
		return fmt.Errorf("herd %s: invalid coordinate %.4f,%.4f", h.ID, h.Lat, h.Lng)
	case !inUnit(h.NDVI):
		return fmt.Errorf("herd %s: ndvi %.3f out of [0,1]", h.ID, h.NDVI)
	case h.WaterDays < 0:
		return fmt.Errorf("herd %s: negative water days", h.ID)
	case h.SpeedKmPerDay < 0:
		return fmt.Errorf("herd %s: negative speed", h.ID)
	case !inUnit(h.Confidence):
		return fmt.Errorf("herd %s: confidence %.3f out of [0,1]", h.ID, h.Confidence)
	case len(h.Evidence.SupportingSources) == 0:
		return fmt.Errorf("herd %s: no supporting sources", h.ID)
	}
	return nil
}

// PressureEntry ranks a herd by resource pressure.
type PressureEntry struct {
	HerdID        string  `json:"herd_id"`
	Name          string  `json:"name"`
	NDVI          float64 `json:"ndvi"`
	WaterDays     int     `json:"water_days"`
	SpeedKmPerDay float64 `json:"speed_km_per_day"`
	Pressure      float64 `json:"pressure"`
}

// Stats is the dashboard summary written once per cycle.
type Stats struct {
	TotalHerds        int       `json:"total_herds"`
	TotalCattle       int       `json:"total_cattle"`
	AvgNDVI           float64   `json:"avg_ndvi"`
	Rain7DayMM        float64   `json:"rain_7day_mm"`
	HighPressureHerds int       `json:"high_pressure_herds"`
	CriticalZones     int       `json:"critical_zones"`
	HighZones         int       `json:"high_zones"`
	DegradedSources   []string  `json:"degraded_sources"`
	ComputedAt        time.Time `json:"computed_at"`
}
