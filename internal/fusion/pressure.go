package fusion

import (
	"cmp"
	"slices"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
)

// Pressure is the equal-weighted mean of vegetation, water and movement
// stress, in [0,1].
func Pressure(h domain.HerdEstimate) float64 {
	vegetation := 1 - clampUnit(h.NDVI)
	water := 1 - float64(min(max(h.WaterDays, 0), waterHorizonDays))/waterHorizonDays
	movement := min(max(h.SpeedKmPerDay, 0), pressureSpeedCapKmD) / pressureSpeedCapKmD
	return round((vegetation+water+movement)/3, 3)
}

// PressureList ranks herds by pressure, highest first, ties by herd id.
func PressureList(herds []domain.HerdEstimate) []domain.PressureEntry {
	out := make([]domain.PressureEntry, 0, len(herds))
	for _, h := range herds {
		out = append(out, domain.PressureEntry{
			HerdID:        h.ID,
			Name:          h.Name,
			NDVI:          h.NDVI,
			WaterDays:     h.WaterDays,
			SpeedKmPerDay: h.SpeedKmPerDay,
			Pressure:      Pressure(h),
		})
	}
	slices.SortFunc(out, func(a, b domain.PressureEntry) int {
		if c := cmp.Compare(b.Pressure, a.Pressure); c != 0 {
			return c
		}
		return cmp.Compare(a.HerdID, b.HerdID)
	})
	return out
}

// Summarize builds the dashboard stats for one cycle.
func Summarize(herds []domain.HerdEstimate, zones []domain.ConflictZone, weather *domain.WeatherData, degraded []string, at time.Time) domain.Stats {
	s := domain.Stats{
		TotalHerds:      len(herds),
		DegradedSources: append([]string{}, degraded...),
		ComputedAt:      at,
	}
	slices.Sort(s.DegradedSources)

	var ndviSum float64
	for _, h := range herds {
		s.TotalCattle += h.HeadCount
		ndviSum += h.NDVI
		if Pressure(h) >= highPressure {
			s.HighPressureHerds++
		}
	}
	if len(herds) > 0 {
		s.AvgNDVI = round(ndviSum/float64(len(herds)), 3)
	}
	if weather != nil {
		s.Rain7DayMM = round(weather.Rain7Day(), 1)
	}
	for _, z := range zones {
		switch z.RiskLevel {
		case domain.RiskCritical:
			s.CriticalZones++
		case domain.RiskHigh:
			s.HighZones++
		}
	}
	return s
}
