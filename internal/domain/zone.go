package domain

import "time"

// RiskLevel is the coarse band of a zone's risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// LevelForScore maps a 0-100 score to its risk level.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= 80:
		return RiskCritical
	case score >= 60:
		return RiskHigh
	case score >= 35:
		return RiskMedium
	default:
		return RiskLow
	}
}

func (l RiskLevel) rank() int {
	switch l {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether l is as severe as other.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return l.rank() >= other.rank()
}

// ConflictZone is a scored grid cell of recent conflict activity.
type ConflictZone struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	Lat                 float64            `json:"lat"`
	Lng                 float64            `json:"lng"`
	RadiusM             float64            `json:"radius_m"`
	RiskScore           int                `json:"risk_score"`
	RiskLevel           RiskLevel          `json:"risk_level"`
	ConflictType        string             `json:"conflict_type"`
	EthnicitiesInvolved []string           `json:"ethnicities_involved"`
	RecentIncidents     int                `json:"recent_incidents"`
	Fatalities          int                `json:"fatalities"`
	LastIncidentDate    time.Time          `json:"last_incident_date"`
	Factors             map[string]float64 `json:"factors"`
	RawEvents           []EventRef         `json:"raw_events"`
	NearbyHerds         int                `json:"nearby_herds"`
	Escalated           bool               `json:"escalated"`
	PreviousScore       *int               `json:"previous_score,omitempty"`
	ScoredAt            time.Time          `json:"scored_at"`
}

// Center returns the zone centroid.
func (z ConflictZone) Center() LatLng {
	return LatLng{Lat: z.Lat, Lng: z.Lng}
}

// EventRef points back to a scored conflict event.
type EventRef struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	Type       string    `json:"type"`
	Fatalities int       `json:"fatalities"`
	Source     string    `json:"source"`
}
