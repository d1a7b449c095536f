// Package fusion combines census baselines with satellite, weather, water,
// fire, conflict and news inputs into per-herd position estimates.
//
// Every function here is pure: the as-of time is an explicit argument and
// the same inputs always produce the same output.
package fusion

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
)

const (
	fireRadiusKm        = 25
	firePenaltyPerFire  = 0.02
	maxFirePenalty      = 0.10
	waterHorizonDays    = 7
	waterKmPerDay       = 25
	heavyRainMM         = 30
	stressWaterDays     = 5
	baseSpeedKmPerDay   = 2
	vegetationSpeed     = 8
	waterStressSpeed    = 6
	correlationSpan     = 0.3
	zoneSampleMaxKm     = 150
	corridorSpanKm      = 100
	corridorMinMatch    = 0.5
	corridorOffSeason   = 0.25
	maxProjectionDays   = 14
	groundBase          = 0.6
	groundPerReport     = 0.1
	defaultNDVI         = 0.5
	arrivedAtWaterKm    = 0.5
	highPressure        = 0.5
	pressureSpeedCapKmD = 20
)

// Params are the fusion tunables.
type Params struct {
	ConflictAvoidanceKm  float64
	ConflictStressFactor float64
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{ConflictAvoidanceKm: 50, ConflictStressFactor: 1.3}
}

// Estimate projects every census herd to asOf. zones are the conflict zones
// scored this cycle. The result is sorted by herd id. It fails only when the
// census baseline itself is missing.
func Estimate(in Inputs, zones []domain.ConflictZone, asOf time.Time, p Params) ([]domain.HerdEstimate, error) {
	if in.Census == nil {
		return nil, fmt.Errorf("census baseline: %w", domain.ErrFusionInputMissing)
	}

	threats := make([]domain.ConflictZone, 0, len(zones))
	for _, z := range zones {
		if z.RiskLevel.AtLeast(domain.RiskHigh) {
			threats = append(threats, z)
		}
	}
	slices.SortFunc(threats, func(a, b domain.ConflictZone) int { return cmp.Compare(a.ID, b.ID) })

	out := make([]domain.HerdEstimate, 0, len(in.Census.Herds))
	for _, seed := range in.Census.Herds {
		out = append(out, estimateHerd(seed, in, threats, asOf, p))
	}
	slices.SortFunc(out, func(a, b domain.HerdEstimate) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func estimateHerd(seed domain.HerdSeed, in Inputs, threats []domain.ConflictZone, asOf time.Time, p Params) domain.HerdEstimate {
	origin := domain.LatLng{Lat: seed.Lat, Lng: seed.Lng}
	factors := map[string]float64{domain.FactorCensusMatch: clampUnit(seed.CensusConfidence)}
	var indicators []string
	refs := append([]domain.SourceRef(nil), in.Refs[domain.CategoryCensus]...)
	cite := func(c domain.Category) { refs = append(refs, in.Refs[c]...) }

	// Vegetation.
	ndvi, fromSatellite := regionNDVI(seed, in)
	if fromSatellite {
		indicators = append(indicators, fmt.Sprintf("satellite NDVI %.2f for %s", ndvi, seed.GrazingRegion))
		factors[domain.FactorNDVICorrelation] = ndviCorrelation(ndvi, origin, seed, in)
		cite(domain.CategoryVegetation)
	} else {
		indicators = append(indicators, fmt.Sprintf("baseline NDVI %.2f for %s", ndvi, seed.GrazingRegion))
	}
	if fires := firesNear(origin, in.Fires); fires > 0 {
		ndvi -= min(maxFirePenalty, firePenaltyPerFire*float64(fires))
		indicators = append(indicators, fmt.Sprintf("%d active fires within %d km", fires, fireRadiusKm))
		cite(domain.CategoryFire)
	}
	ndvi = clampUnit(ndvi)

	// Water.
	heading, _ := domain.CompassBearing(seed.Trend)
	var proximity *float64
	if wp, dist, ok := nearestWater(origin, in.WaterPoints); ok {
		v := wp.Reliability * max(0, waterHorizonDays-dist/waterKmPerDay)
		proximity = &v
		if dist > arrivedAtWaterKm {
			heading = domain.BearingDeg(origin, domain.LatLng{Lat: wp.Lat, Lng: wp.Lng})
		}
		indicators = append(indicators, fmt.Sprintf("nearest water %s at %.0f km", wp.Name, dist))
		cite(domain.CategoryWater)
	}
	waterDays := blendWaterDays(seed.WaterDays, proximity)
	if in.Weather != nil {
		if in.Weather.Rain7Day() >= heavyRainMM {
			waterDays++
			indicators = append(indicators, fmt.Sprintf("7-day rain %.0f mm", in.Weather.Rain7Day()))
		}
		if cloud, ok := in.Weather.MeanCloudCover(); ok {
			factors[domain.FactorSatelliteVisibility] = clampUnit(1 - cloud/100)
		}
		cite(domain.CategoryWeather)
	}
	waterStress := max(0, float64(stressWaterDays-waterDays)/stressWaterDays)
	speed := baseSpeedKmPerDay + vegetationSpeed*(1-ndvi) + waterStressSpeed*waterStress

	// Conflict avoidance.
	var avoiding string
	if z, ok := nearestThreat(origin, threats, p.ConflictAvoidanceKm); ok {
		heading = domain.BearingDeg(z.Center(), origin)
		speed *= p.ConflictStressFactor
		avoiding = z.ID
		indicators = append(indicators, fmt.Sprintf("avoiding %s conflict zone %s", z.RiskLevel, z.Name))
		cite(domain.CategoryConflict)
	}

	// Corridors.
	base := origin
	if match, vertex, name, ok := corridorMatch(seed, origin, in.Census.Corridors, asOf.Month()); ok {
		factors[domain.FactorCorridorMatch] = match
		if vertex != nil {
			base = domain.Interpolate(origin, *vertex, 0.5)
			indicators = append(indicators, "seasonal corridor "+name)
		}
	}

	days := min(maxProjectionDays, max(0, asOf.Sub(seed.ObservedAt).Hours()/24))
	pos := domain.ClampLatLng(domain.Destination(base, heading, speed*days))

	// Ground reports.
	reports := groundReports(seed, in.News)
	method := "census projection with satellite and water fusion"
	if reports > 0 {
		factors[domain.FactorGroundVerification] = min(1, groundBase+groundPerReport*float64(reports-1))
		indicators = append(indicators, fmt.Sprintf("%d ground reports", reports))
		method = "ground reports corroborating census projection"
		cite(domain.CategoryNews)
	}

	return domain.HerdEstimate{
		ID:             seed.ID,
		Name:           seed.Name,
		Lat:            round(pos.Lat, 4),
		Lng:            round(pos.Lng, 4),
		HeadCount:      seed.HeadCount,
		Region:         seed.Region,
		Ethnicity:      seed.Ethnicity,
		NDVI:           round(ndvi, 3),
		WaterDays:      waterDays,
		Trend:          domain.Compass(heading),
		SpeedKmPerDay:  round(speed, 1),
		Confidence:     Confidence(factors),
		Factors:        factors,
		Note:           seed.Note,
		EstimatedAt:    asOf,
		AvoidingZoneID: avoiding,
		Evidence: domain.Evidence{
			PrimaryIndicators:  indicators,
			SupportingSources:  dedupeRefs(refs),
			VerificationMethod: method,
			LastVerification:   lastVerification(refs, seed.ObservedAt),
		},
	}
}

// Confidence is the unweighted mean of the available factors, each clamped
// to [0,1]. Factors are summed in key order so the result does not depend on
// map iteration. No factors means no confidence.
func Confidence(factors map[string]float64) float64 {
	if len(factors) == 0 {
		return 0
	}
	var sum float64
	for _, k := range slices.Sorted(maps.Keys(factors)) {
		sum += clampUnit(factors[k])
	}
	return round(sum/float64(len(factors)), 3)
}

// blendWaterDays averages the surveyed days of water with the estimate from
// the nearest water point, using whichever one exists when only one does.
func blendWaterDays(surveyed *int, proximity *float64) int {
	switch {
	case surveyed != nil && proximity != nil:
		return int(math.Round((float64(*surveyed) + *proximity) / 2))
	case surveyed != nil:
		return *surveyed
	case proximity != nil:
		return int(math.Round(*proximity))
	default:
		return 0
	}
}

func regionNDVI(seed domain.HerdSeed, in Inputs) (float64, bool) {
	if in.Vegetation != nil {
		for _, r := range in.Vegetation.Regions {
			if strings.EqualFold(r.Name, seed.GrazingRegion) {
				return r.NDVI, true
			}
		}
	}
	if v, ok := baselineNDVI(seed, in.Census); ok {
		return v, false
	}
	return defaultNDVI, false
}

func baselineNDVI(seed domain.HerdSeed, census *domain.CensusData) (float64, bool) {
	for _, g := range census.GrazingRegions {
		if strings.EqualFold(g.Name, seed.GrazingRegion) {
			return g.NDVI, true
		}
	}
	return 0, false
}

// ndviCorrelation compares the regional satellite index with the closest
// sampled zone, falling back to the reference baseline.
func ndviCorrelation(region float64, at domain.LatLng, seed domain.HerdSeed, in Inputs) float64 {
	local, found := 0.0, false
	best := math.Inf(1)
	for _, z := range in.Vegetation.Zones {
		d := domain.HaversineKm(at, domain.LatLng{Lat: z.Lat, Lng: z.Lng})
		if d <= zoneSampleMaxKm && d < best {
			local, best, found = z.NDVI, d, true
		}
	}
	if !found {
		if local, found = baselineNDVI(seed, in.Census); !found {
			return 0
		}
	}
	return 1 - min(1, math.Abs(region-local)/correlationSpan)
}

func firesNear(at domain.LatLng, fires []domain.FireDetection) int {
	n := 0
	for _, f := range fires {
		if domain.HaversineKm(at, domain.LatLng{Lat: f.Lat, Lng: f.Lng}) <= fireRadiusKm {
			n++
		}
	}
	return n
}

func nearestWater(at domain.LatLng, points []domain.WaterPoint) (domain.WaterPoint, float64, bool) {
	var best domain.WaterPoint
	bestDist, found := math.Inf(1), false
	for _, w := range points {
		d := domain.HaversineKm(at, domain.LatLng{Lat: w.Lat, Lng: w.Lng})
		if d < bestDist || (d == bestDist && w.ID < best.ID) {
			best, bestDist, found = w, d, true
		}
	}
	return best, bestDist, found
}

func nearestThreat(at domain.LatLng, zones []domain.ConflictZone, radiusKm float64) (domain.ConflictZone, bool) {
	var best domain.ConflictZone
	bestDist, found := math.Inf(1), false
	for _, z := range zones {
		d := domain.HaversineKm(at, z.Center())
		if d <= radiusKm && d < bestDist {
			best, bestDist, found = z, d, true
		}
	}
	return best, found
}

// corridorMatch scores the herd against its community's corridors. When one
// is active in month, vertex is the nearest active waypoint. ok is false when
// the community has no known corridor.
func corridorMatch(seed domain.HerdSeed, at domain.LatLng, corridors []domain.Corridor, month time.Month) (match float64, vertex *domain.LatLng, name string, ok bool) {
	known := false
	bestDist := math.Inf(1)
	for _, c := range corridors {
		if !strings.EqualFold(c.Ethnicity, seed.Ethnicity) || len(c.Path) == 0 {
			continue
		}
		known = true
		if !c.ActiveIn(month) {
			continue
		}
		for _, v := range c.Path {
			if d := domain.HaversineKm(at, v); d < bestDist {
				bestDist, vertex, name = d, &v, c.Name
			}
		}
	}
	switch {
	case vertex != nil:
		return max(corridorMinMatch, 1-bestDist/corridorSpanKm), vertex, name, true
	case known:
		return corridorOffSeason, nil, "", true
	default:
		return 0, nil, "", false
	}
}

// groundReports counts articles naming the herd's community or territory.
func groundReports(seed domain.HerdSeed, articles []domain.Article) int {
	terms := []string{seed.Ethnicity, seed.GrazingRegion}
	for _, part := range strings.Split(seed.Region, "/") {
		terms = append(terms, strings.TrimSpace(part))
	}
	n := 0
	for _, a := range articles {
		if a.Mentions(terms...) {
			n++
		}
	}
	return n
}

func dedupeRefs(refs []domain.SourceRef) []domain.SourceRef {
	seen := make(map[string]bool, len(refs))
	out := make([]domain.SourceRef, 0, len(refs))
	for _, r := range refs {
		if seen[r.SourceID] {
			continue
		}
		seen[r.SourceID] = true
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b domain.SourceRef) int { return cmp.Compare(a.SourceID, b.SourceID) })
	return out
}

func lastVerification(refs []domain.SourceRef, fallback time.Time) time.Time {
	last := fallback
	for _, r := range refs {
		if r.FetchedAt.After(last) {
			last = r.FetchedAt
		}
	}
	return last
}

func clampUnit(v float64) float64 { return min(1, max(0, v)) }

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
