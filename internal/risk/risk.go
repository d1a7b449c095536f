// Package risk buckets recent conflict events into grid cells and scores each
// cell as a conflict zone.
package risk

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
)

// Zone factor names.
const (
	FactorEventDensity    = "event_density"
	FactorLethality       = "lethality"
	FactorRecency         = "recency"
	FactorHerdConvergence = "herd_convergence"
	FactorWaterScarcity   = "water_scarcity"
)

const (
	minRadiusKm       = 15
	maxRadiusKm       = 75
	radiusPaddingKm   = 5
	minNearbyHerdKm   = 25
	convergenceHerds  = 3
	densityEvents     = 20
	lethalFatalities  = 100
	waterDaysHorizon  = 7
	coordinateDecimal = 1e4
)

// Params are the scoring tunables.
type Params struct {
	WindowDays      int
	GridCellDegrees float64
	Base            int
	EventWeight     int
	FatalityWeight  int
	EscalationDelta int
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		WindowDays:      365,
		GridCellDegrees: 0.5,
		Base:            20,
		EventWeight:     5,
		FatalityWeight:  2,
		EscalationDelta: 5,
	}
}

// ScoreFor computes the capped risk score for a cell.
func (p Params) ScoreFor(events, fatalities int) int {
	return min(100, p.Base+events*p.EventWeight+fatalities*p.FatalityWeight)
}

// CellID returns the natural key of the grid cell containing the point.
func (p Params) CellID(lat, lng float64) string {
	cLat, cLng := domain.GridCell(lat, lng, p.GridCellDegrees)
	return "cell_" + formatCoord(cLat) + "_" + formatCoord(cLng)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(math.Round(v*coordinateDecimal)/coordinateDecimal, 'f', -1, 64)
}

// Score builds the zone set for asOf. Events are deduplicated by id across
// sources and only those inside [asOf-window, asOf] count. Baseline events
// have no lower bound: the curated history always contributes, so a
// deployment with no live conflict feed still has zones. previous is the
// zone set of the last cycle and drives escalation. named supplies
// human-readable names for cells. The result is sorted by id and depends
// only on the arguments.
func Score(events []domain.ConflictEvent, previous []domain.ConflictZone, named []domain.NamedZone, asOf time.Time, p Params) []domain.ConflictZone {
	from := asOf.AddDate(0, 0, -p.WindowDays)
	seen := make(map[string]bool, len(events))
	cells := make(map[string][]domain.ConflictEvent)
	for _, ev := range events {
		id := eventKey(ev)
		if seen[id] {
			continue
		}
		seen[id] = true
		if ev.Date.After(asOf) || (!ev.Baseline && ev.Date.Before(from)) {
			continue
		}
		cell := p.CellID(ev.Lat, ev.Lng)
		cells[cell] = append(cells[cell], ev)
	}

	prevScores := make(map[string]int, len(previous))
	for _, z := range previous {
		prevScores[z.ID] = z.RiskScore
	}

	zones := make([]domain.ConflictZone, 0, len(cells))
	for id, evs := range cells {
		z := buildZone(id, evs, named, asOf, p)
		if prev, ok := prevScores[id]; ok {
			z.PreviousScore = &prev
			z.Escalated = z.RiskScore-prev > p.EscalationDelta
		}
		zones = append(zones, z)
	}
	slices.SortFunc(zones, func(a, b domain.ConflictZone) int { return cmp.Compare(a.ID, b.ID) })
	return zones
}

func eventKey(ev domain.ConflictEvent) string {
	if ev.ID != "" {
		return ev.ID
	}
	return domain.StableID("evt", ev.Date.Format(time.DateOnly), ev.Type,
		strconv.FormatFloat(ev.Lat, 'f', 4, 64), strconv.FormatFloat(ev.Lng, 'f', 4, 64))
}

func buildZone(id string, evs []domain.ConflictEvent, named []domain.NamedZone, asOf time.Time, p Params) domain.ConflictZone {
	var (
		latSum, lngSum float64
		fatalities     int
		last           time.Time
		types          = map[string]int{}
		locations      = map[string]int{}
		ethnicities    []string
		refs           = make([]domain.EventRef, 0, len(evs))
	)
	for _, ev := range evs {
		latSum += ev.Lat
		lngSum += ev.Lng
		fatalities += ev.Fatalities
		if ev.Date.After(last) {
			last = ev.Date
		}
		if ev.Type != "" {
			types[ev.Type]++
		}
		if ev.Location != "" {
			locations[ev.Location]++
		}
		for _, e := range ev.Ethnicities {
			if !slices.Contains(ethnicities, e) {
				ethnicities = append(ethnicities, e)
			}
		}
		refs = append(refs, domain.EventRef{
			ID: eventKey(ev), Date: ev.Date, Type: ev.Type, Fatalities: ev.Fatalities, Source: ev.Source,
		})
	}
	slices.Sort(ethnicities)
	slices.SortFunc(refs, func(a, b domain.EventRef) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	n := float64(len(evs))
	center := domain.LatLng{Lat: latSum / n, Lng: lngSum / n}
	var spread float64
	for _, ev := range evs {
		spread = max(spread, domain.HaversineKm(center, domain.LatLng{Lat: ev.Lat, Lng: ev.Lng}))
	}
	radiusKm := min(maxRadiusKm, max(minRadiusKm, spread+radiusPaddingKm))

	score := p.ScoreFor(len(evs), fatalities)
	recency := 0.0
	if p.WindowDays > 0 {
		recency = max(0, 1-asOf.Sub(last).Hours()/24/float64(p.WindowDays))
	}

	name := nearestNamed(id, center, named, p)
	if name == "" {
		name = mostFrequent(locations)
	}
	if name == "" {
		name = id
	}

	return domain.ConflictZone{
		ID:                  id,
		Name:                name,
		Lat:                 center.Lat,
		Lng:                 center.Lng,
		RadiusM:             math.Round(radiusKm * 1000),
		RiskScore:           score,
		RiskLevel:           domain.LevelForScore(score),
		ConflictType:        mostFrequent(types),
		EthnicitiesInvolved: ethnicities,
		RecentIncidents:     len(evs),
		Fatalities:          fatalities,
		LastIncidentDate:    last,
		Factors: map[string]float64{
			FactorEventDensity: min(1, n/densityEvents),
			FactorLethality:    min(1, float64(fatalities)/lethalFatalities),
			FactorRecency:      recency,
		},
		RawEvents: refs,
		ScoredAt:  asOf,
	}
}

// nearestNamed returns the name of the reference zone closest to center among
// those whose centre falls inside the same cell.
func nearestNamed(cell string, center domain.LatLng, named []domain.NamedZone, p Params) string {
	best, bestDist := "", math.Inf(1)
	for _, nz := range named {
		if p.CellID(nz.Lat, nz.Lng) != cell {
			continue
		}
		d := domain.HaversineKm(center, domain.LatLng{Lat: nz.Lat, Lng: nz.Lng})
		if d < bestDist || (d == bestDist && nz.Name < best) {
			best, bestDist = nz.Name, d
		}
	}
	return best
}

// mostFrequent returns the key with the highest count, breaking ties by the
// lexically smallest key.
func mostFrequent(counts map[string]int) string {
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

// AnnotateHerds returns copies of zones with the number of herds nearby and
// the herd_convergence and water_scarcity factors. A herd is nearby when it
// is within twice the zone radius, or 25 km for small zones. water_scarcity
// is only present when at least one herd is nearby.
func AnnotateHerds(zones []domain.ConflictZone, herds []domain.HerdEstimate) []domain.ConflictZone {
	out := make([]domain.ConflictZone, len(zones))
	for i, z := range zones {
		reach := max(minNearbyHerdKm, 2*z.RadiusM/1000)
		nearby := 0
		var scarcity float64
		for _, h := range herds {
			if domain.HaversineKm(z.Center(), domain.LatLng{Lat: h.Lat, Lng: h.Lng}) > reach {
				continue
			}
			nearby++
			scarcity += 1 - float64(min(h.WaterDays, waterDaysHorizon))/waterDaysHorizon
		}

		factors := make(map[string]float64, len(z.Factors)+2)
		for k, v := range z.Factors {
			factors[k] = v
		}
		factors[FactorHerdConvergence] = min(1, float64(nearby)/convergenceHerds)
		delete(factors, FactorWaterScarcity)
		if nearby > 0 {
			factors[FactorWaterScarcity] = scarcity / float64(nearby)
		}

		z.Factors = factors
		z.NearbyHerds = nearby
		out[i] = z
	}
	return out
}
