// Package reference loads the static census and geography baseline that seeds
// herd estimates: herd census, migration corridors, grazing regions, water
// points, named conflict zones and historical conflicts.
package reference

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed reference.yaml
var embedded []byte

const dateLayout = "2006-01-02"

// Dataset is the parsed reference file.
type Dataset struct {
	ObservedAt        string             `yaml:"observed_at"`
	Herds             []herdRecord       `yaml:"herds"`
	Corridors         []corridorRecord   `yaml:"corridors"`
	GrazingRegions    []grazingRecord    `yaml:"grazing_regions"`
	WaterPoints       []waterRecord      `yaml:"water_points"`
	NamedZones        []zoneRecord       `yaml:"named_zones"`
	NDVIZones         []ndviRecord       `yaml:"ndvi_zones"`
	HistoricalRecords []historicalRecord `yaml:"historical_conflicts"`
}

type herdRecord struct {
	ID               string  `yaml:"id"`
	Name             string  `yaml:"name"`
	Ethnicity        string  `yaml:"ethnicity"`
	Region           string  `yaml:"region"`
	GrazingRegion    string  `yaml:"grazing_region"`
	Lat              float64 `yaml:"lat"`
	Lng              float64 `yaml:"lng"`
	HeadCount        int     `yaml:"head_count"`
	CensusConfidence float64 `yaml:"census_confidence"`
	Trend            string  `yaml:"trend"`
	ObservedAt       string  `yaml:"observed_at"`
	Note             string  `yaml:"note"`
	WaterDays        *int    `yaml:"water_days"`
}

type corridorRecord struct {
	ID           string       `yaml:"id"`
	Name         string       `yaml:"name"`
	Ethnicity    string       `yaml:"ethnicity"`
	ActiveMonths []int        `yaml:"active_months"`
	Path         [][2]float64 `yaml:"path"`
}

type grazingRecord struct {
	Name    string  `yaml:"name"`
	Lat     float64 `yaml:"lat"`
	Lng     float64 `yaml:"lng"`
	RadiusM float64 `yaml:"radius_m"`
	NDVI    float64 `yaml:"ndvi"`
}

type waterRecord struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Kind        string  `yaml:"kind"`
	Lat         float64 `yaml:"lat"`
	Lng         float64 `yaml:"lng"`
	Reliability float64 `yaml:"reliability"`
}

type zoneRecord struct {
	ID      string  `yaml:"id"`
	Name    string  `yaml:"name"`
	Lat     float64 `yaml:"lat"`
	Lng     float64 `yaml:"lng"`
	RadiusM float64 `yaml:"radius_m"`
}

type ndviRecord struct {
	Label   string  `yaml:"label"`
	Lat     float64 `yaml:"lat"`
	Lng     float64 `yaml:"lng"`
	RadiusM float64 `yaml:"radius_m"`
	NDVI    float64 `yaml:"ndvi"`
}

type historicalRecord struct {
	Date         string   `yaml:"date"`
	Location     string   `yaml:"location"`
	Lat          float64  `yaml:"lat"`
	Lng          float64  `yaml:"lng"`
	Type         string   `yaml:"type"`
	Fatalities   int      `yaml:"fatalities"`
	CattleStolen int      `yaml:"cattle_stolen"`
	Ethnicities  []string `yaml:"ethnicities"`
}

// Default parses the dataset compiled into the binary.
func Default() (*Dataset, error) {
	return Parse(embedded)
}

// LoadFile parses a dataset from disk, for deployments that override the
// embedded baseline.
func LoadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML dataset and checks that every date parses.
func Parse(data []byte) (*Dataset, error) {
	var d Dataset
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse reference yaml: %w", err)
	}
	if _, err := parseDate(d.ObservedAt); err != nil {
		return nil, fmt.Errorf("reference observed_at: %w", err)
	}
	for _, h := range d.Herds {
		if _, err := parseDate(h.ObservedAt); err != nil {
			return nil, fmt.Errorf("herd %s observed_at: %w", h.ID, err)
		}
	}
	for i, c := range d.HistoricalRecords {
		if _, err := parseDate(c.Date); err != nil {
			return nil, fmt.Errorf("historical conflict %d date: %w", i, err)
		}
	}
	return &d, nil
}

// Census converts the dataset into the census payload consumed by fusion.
func (d *Dataset) Census() domain.CensusData {
	observed, _ := parseDate(d.ObservedAt)
	out := domain.CensusData{ObservedAt: observed}

	for _, h := range d.Herds {
		seen, _ := parseDate(h.ObservedAt)
		out.Herds = append(out.Herds, domain.HerdSeed{
			ID:               h.ID,
			Name:             h.Name,
			Ethnicity:        h.Ethnicity,
			Region:           h.Region,
			GrazingRegion:    h.GrazingRegion,
			Lat:              h.Lat,
			Lng:              h.Lng,
			HeadCount:        h.HeadCount,
			CensusConfidence: h.CensusConfidence,
			Trend:            h.Trend,
			Note:             h.Note,
			ObservedAt:       seen,
			WaterDays:        cloneInt(h.WaterDays),
		})
	}
	for _, c := range d.Corridors {
		path := make([]domain.LatLng, 0, len(c.Path))
		for _, p := range c.Path {
			path = append(path, domain.LatLng{Lat: p[0], Lng: p[1]})
		}
		out.Corridors = append(out.Corridors, domain.Corridor{
			ID:           c.ID,
			Name:         c.Name,
			Ethnicity:    c.Ethnicity,
			ActiveMonths: slices.Clone(c.ActiveMonths),
			Path:         path,
		})
	}
	for _, g := range d.GrazingRegions {
		out.GrazingRegions = append(out.GrazingRegions, domain.GrazingRegion(g))
	}
	for _, w := range d.WaterPoints {
		out.WaterPoints = append(out.WaterPoints, domain.WaterPoint(w))
	}
	for _, z := range d.NamedZones {
		out.NamedZones = append(out.NamedZones, domain.NamedZone(z))
	}
	for _, z := range d.NDVIZones {
		out.NDVIZones = append(out.NDVIZones, domain.NDVIZone(z))
	}
	return out
}

// HistoricalConflicts converts the recorded incidents into baseline conflict
// events. Event ids are derived from date and location so they stay stable
// across reloads.
func (d *Dataset) HistoricalConflicts() domain.ConflictData {
	var out domain.ConflictData
	for _, c := range d.HistoricalRecords {
		date, _ := parseDate(c.Date)
		out.Events = append(out.Events, domain.ConflictEvent{
			ID:           domain.StableID("ref", c.Date, c.Location, c.Type),
			Date:         date,
			Type:         c.Type,
			Location:     c.Location,
			Lat:          c.Lat,
			Lng:          c.Lng,
			Fatalities:   c.Fatalities,
			Ethnicities:  slices.Clone(c.Ethnicities),
			Source:       HistoricalConflictSourceID,
			Notes:        fmt.Sprintf("%d cattle stolen", c.CattleStolen),
			CattleStolen: c.CattleStolen,
			Baseline:     true,
		})
	}
	return out
}

// Problems returns every integrity issue found in the dataset. An empty
// result means the dataset is consistent.
func (d *Dataset) Problems() []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	regions := map[string]bool{}
	for _, g := range d.GrazingRegions {
		if regions[g.Name] {
			add("grazing region %q defined twice", g.Name)
		}
		regions[g.Name] = true
		if g.NDVI < 0 || g.NDVI > 1 {
			add("grazing region %q: ndvi %.2f out of [0,1]", g.Name, g.NDVI)
		}
	}

	ethnicities := map[string]bool{}
	herdIDs := map[string]bool{}
	for _, h := range d.Herds {
		if herdIDs[h.ID] {
			add("herd id %q defined twice", h.ID)
		}
		herdIDs[h.ID] = true
		ethnicities[h.Ethnicity] = true
		if !domain.ValidCoordinate(h.Lat, h.Lng) {
			add("herd %s: invalid coordinate %.2f,%.2f", h.ID, h.Lat, h.Lng)
		}
		if h.HeadCount <= 0 {
			add("herd %s: head count %d must be positive", h.ID, h.HeadCount)
		}
		if h.CensusConfidence < 0 || h.CensusConfidence > 1 {
			add("herd %s: census confidence %.2f out of [0,1]", h.ID, h.CensusConfidence)
		}
		if !regions[h.GrazingRegion] {
			add("herd %s: unknown grazing region %q", h.ID, h.GrazingRegion)
		}
		if _, ok := domain.CompassBearing(h.Trend); !ok {
			add("herd %s: trend %q is not an 8-point compass label", h.ID, h.Trend)
		}
		if h.WaterDays != nil && *h.WaterDays < 0 {
			add("herd %s: negative water days", h.ID)
		}
	}

	for _, c := range d.Corridors {
		if len(c.Path) < 2 {
			add("corridor %s: path needs at least two points", c.ID)
		}
		if !ethnicities[c.Ethnicity] {
			add("corridor %s: no herd of ethnicity %q", c.ID, c.Ethnicity)
		}
		for _, m := range c.ActiveMonths {
			if m < 1 || m > 12 {
				add("corridor %s: month %d out of range", c.ID, m)
			}
		}
		for _, p := range c.Path {
			if !domain.ValidCoordinate(p[0], p[1]) {
				add("corridor %s: invalid point %.2f,%.2f", c.ID, p[0], p[1])
			}
		}
	}

	for _, z := range d.NDVIZones {
		if z.NDVI < 0 || z.NDVI > 1 {
			add("ndvi zone %q: ndvi %.2f out of [0,1]", z.Label, z.NDVI)
		}
	}

	for _, w := range d.WaterPoints {
		if w.Reliability < 0 || w.Reliability > 1 {
			add("water point %s: reliability %.2f out of [0,1]", w.ID, w.Reliability)
		}
	}

	for i, c := range d.HistoricalRecords {
		if c.Fatalities < 0 {
			add("historical conflict %d (%s): negative fatalities", i, c.Location)
		}
		if c.CattleStolen < 0 {
			add("historical conflict %d (%s): negative cattle stolen", i, c.Location)
		}
		if strings.TrimSpace(c.Type) == "" {
			add("historical conflict %d (%s): missing type", i, c.Location)
		}
	}
	return problems
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}
