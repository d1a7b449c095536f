package domain

import (
	"errors"
	"fmt"
	"time"
)

// Payload is the normalized output of a collaborator. Kind selects which one
// of the category members is populated.
type Payload struct {
	Kind       Category        `json:"kind"`
	Vegetation *VegetationData `json:"vegetation,omitempty"`
	Weather    *WeatherData    `json:"weather,omitempty"`
	Conflict   *ConflictData   `json:"conflict,omitempty"`
	Fire       *FireData       `json:"fire,omitempty"`
	Census     *CensusData     `json:"census,omitempty"`
	Water      *WaterData      `json:"water,omitempty"`
	News       *NewsData       `json:"news,omitempty"`
}

func VegetationPayload(d VegetationData) Payload {
	return Payload{Kind: CategoryVegetation, Vegetation: &d}
}

func WeatherPayload(d WeatherData) Payload { return Payload{Kind: CategoryWeather, Weather: &d} }

func ConflictPayload(d ConflictData) Payload { return Payload{Kind: CategoryConflict, Conflict: &d} }

func FirePayload(d FireData) Payload { return Payload{Kind: CategoryFire, Fire: &d} }

func CensusPayload(d CensusData) Payload { return Payload{Kind: CategoryCensus, Census: &d} }

func WaterPayload(d WaterData) Payload { return Payload{Kind: CategoryWater, Water: &d} }

func NewsPayload(d NewsData) Payload { return Payload{Kind: CategoryNews, News: &d} }

// LatLng is a WGS-84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// VegetationData holds satellite vegetation indices per grazing region and
// per sampled zone.
type VegetationData struct {
	ObservedAt time.Time     `json:"observed_at"`
	Regions    []RegionIndex `json:"regions"`
	Zones      []NDVIZone    `json:"zones"`
}

// RegionIndex is the regional mean of the satellite indices. Every index is
// normalized to [0,1].
type RegionIndex struct {
	Name         string  `json:"name"`
	NDVI         float64 `json:"ndvi"`
	SoilMoisture float64 `json:"soil_moisture"`
	RainIndex    float64 `json:"rain_index"`
}

// NDVIZone is a circular NDVI sample.
type NDVIZone struct {
	Label   string  `json:"label"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	RadiusM float64 `json:"radius_m"`
	NDVI    float64 `json:"ndvi"`
}

// WeatherData is a daily forecast for the region centroid.
type WeatherData struct {
	Lat  float64      `json:"lat"`
	Lng  float64      `json:"lng"`
	Days []WeatherDay `json:"days"`
}

// WeatherDay is one forecast day.
type WeatherDay struct {
	Date            string  `json:"date"`
	PrecipitationMM float64 `json:"precipitation_mm"`
	TempMaxC        float64 `json:"temp_max_c"`
	ET0MM           float64 `json:"et0_mm"`
	CloudCoverPct   float64 `json:"cloud_cover_pct"`
}

// Rain7Day sums precipitation over the first seven forecast days.
func (w WeatherData) Rain7Day() float64 {
	var total float64
	for i, d := range w.Days {
		if i >= 7 {
			break
		}
		total += d.PrecipitationMM
	}
	return total
}

// MeanCloudCover returns the mean cloud cover percentage, or false when the
// forecast has no days.
func (w WeatherData) MeanCloudCover() (float64, bool) {
	if len(w.Days) == 0 {
		return 0, false
	}
	var total float64
	for _, d := range w.Days {
		total += d.CloudCoverPct
	}
	return total / float64(len(w.Days)), true
}

// ConflictData is a batch of armed-conflict events.
type ConflictData struct {
	Events []ConflictEvent `json:"events"`
}

// ConflictEvent is one recorded incident. Baseline events come from the
// curated reference history and count toward risk regardless of age.
type ConflictEvent struct {
	ID           string    `json:"id"`
	Date         time.Time `json:"date"`
	Type         string    `json:"type"`
	SubType      string    `json:"sub_type,omitempty"`
	Location     string    `json:"location,omitempty"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Fatalities   int       `json:"fatalities"`
	Actors       []string  `json:"actors,omitempty"`
	Ethnicities  []string  `json:"ethnicities,omitempty"`
	Source       string    `json:"source"`
	Notes        string    `json:"notes,omitempty"`
	CattleStolen int       `json:"cattle_stolen,omitempty"`
	Baseline     bool      `json:"baseline,omitempty"`
}

// FireData is a batch of active-fire detections.
type FireData struct {
	Detections []FireDetection `json:"detections"`
}

// FireDetection is one satellite thermal anomaly.
type FireDetection struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Brightness float64   `json:"brightness"`
	FRP        float64   `json:"frp"`
	Confidence string    `json:"confidence"`
	Satellite  string    `json:"satellite"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// CensusData is the historical migration and census reference.
type CensusData struct {
	ObservedAt     time.Time       `json:"observed_at"`
	Herds          []HerdSeed      `json:"herds"`
	Corridors      []Corridor      `json:"corridors"`
	GrazingRegions []GrazingRegion `json:"grazing_regions"`
	WaterPoints    []WaterPoint    `json:"water_points"`
	NamedZones     []NamedZone     `json:"named_zones"`
	NDVIZones      []NDVIZone      `json:"ndvi_zones,omitempty"`
}

// HerdSeed is the census baseline a herd estimate starts from.
type HerdSeed struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Ethnicity        string    `json:"ethnicity"`
	Region           string    `json:"region"`
	GrazingRegion    string    `json:"grazing_region"`
	Lat              float64   `json:"lat"`
	Lng              float64   `json:"lng"`
	HeadCount        int       `json:"head_count"`
	CensusConfidence float64   `json:"census_confidence"`
	Trend            string    `json:"trend"`
	Note             string    `json:"note,omitempty"`
	ObservedAt       time.Time `json:"observed_at"`
	// WaterDays is the surveyed days of water ahead, when recorded.
	WaterDays *int `json:"water_days,omitempty"`
}

// Corridor is a seasonal migration route used by one community.
type Corridor struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Ethnicity    string   `json:"ethnicity"`
	ActiveMonths []int    `json:"active_months"`
	Path         []LatLng `json:"path"`
}

// ActiveIn reports whether the corridor is used in the given month.
func (c Corridor) ActiveIn(m time.Month) bool {
	for _, am := range c.ActiveMonths {
		if time.Month(am) == m {
			return true
		}
	}
	return false
}

// GrazingRegion is a named pasture area with a baseline NDVI.
type GrazingRegion struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	RadiusM float64 `json:"radius_m"`
	NDVI    float64 `json:"ndvi"`
}

// WaterPoint is a river, lake, wetland or well.
type WaterPoint struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Reliability float64 `json:"reliability"`
}

// NamedZone is a historically known conflict area used to name grid cells.
type NamedZone struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	RadiusM float64 `json:"radius_m"`
}

// WaterData is a batch of mapped water points.
type WaterData struct {
	Points []WaterPoint `json:"points"`
}

// NewsData is a batch of humanitarian news articles.
type NewsData struct {
	Articles []Article `json:"articles"`
}

// Article is one news item with a keyword relevance score.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Relevance   float64   `json:"relevance"`
	Keywords    []string  `json:"keywords,omitempty"`
}

// Validate checks that exactly the member named by Kind is set and that its
// contents are within range. Errors wrap ErrSourceMalformedPayload.
func (p Payload) Validate() error {
	if err := p.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrSourceMalformedPayload, err)
	}
	return nil
}

func (p Payload) validate() error {
	set := 0
	for _, present := range []bool{
		p.Vegetation != nil, p.Weather != nil, p.Conflict != nil, p.Fire != nil,
		p.Census != nil, p.Water != nil, p.News != nil,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("payload %q has %d members set", p.Kind, set)
	}

	switch p.Kind {
	case CategoryVegetation:
		if p.Vegetation == nil {
			return errors.New("vegetation payload missing")
		}
		return p.Vegetation.validate()
	case CategoryWeather:
		if p.Weather == nil {
			return errors.New("weather payload missing")
		}
		return p.Weather.validate()
	case CategoryConflict:
		if p.Conflict == nil {
			return errors.New("conflict payload missing")
		}
		return p.Conflict.validate()
	case CategoryFire:
		if p.Fire == nil {
			return errors.New("fire payload missing")
		}
		return p.Fire.validate()
	case CategoryCensus:
		if p.Census == nil {
			return errors.New("census payload missing")
		}
		return p.Census.validate()
	case CategoryWater:
		if p.Water == nil {
			return errors.New("water payload missing")
		}
		return p.Water.validate()
	case CategoryNews:
		if p.News == nil {
			return errors.New("news payload missing")
		}
		return p.News.validate()
	default:
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
}

func (d *VegetationData) validate() error {
	for _, r := range d.Regions {
		if r.Name == "" {
			return errors.New("vegetation region without name")
		}
		if !inUnit(r.NDVI) || !inUnit(r.SoilMoisture) || !inUnit(r.RainIndex) {
			return fmt.Errorf("vegetation region %q index out of [0,1]", r.Name)
		}
	}
	for _, z := range d.Zones {
		if !ValidCoordinate(z.Lat, z.Lng) {
			return fmt.Errorf("ndvi zone %q: invalid coordinate", z.Label)
		}
		if !inUnit(z.NDVI) {
			return fmt.Errorf("ndvi zone %q: ndvi %.3f out of [0,1]", z.Label, z.NDVI)
		}
	}
	return nil
}

func (d *WeatherData) validate() error {
	if !ValidCoordinate(d.Lat, d.Lng) {
		return errors.New("weather: invalid coordinate")
	}
	for _, day := range d.Days {
		if day.PrecipitationMM < 0 {
			return fmt.Errorf("weather %s: negative precipitation", day.Date)
		}
		if day.CloudCoverPct < 0 || day.CloudCoverPct > 100 {
			return fmt.Errorf("weather %s: cloud cover %.1f out of range", day.Date, day.CloudCoverPct)
		}
	}
	return nil
}

func (d *ConflictData) validate() error {
	for _, e := range d.Events {
		if e.ID == "" {
			return errors.New("conflict event without id")
		}
		if !ValidCoordinate(e.Lat, e.Lng) {
			return fmt.Errorf("conflict event %s: invalid coordinate", e.ID)
		}
		if e.Fatalities < 0 || e.CattleStolen < 0 {
			return fmt.Errorf("conflict event %s: negative casualty count", e.ID)
		}
		if e.Date.IsZero() {
			return fmt.Errorf("conflict event %s: missing date", e.ID)
		}
	}
	return nil
}

func (d *FireData) validate() error {
	for i, f := range d.Detections {
		if !ValidCoordinate(f.Lat, f.Lng) {
			return fmt.Errorf("fire detection %d: invalid coordinate", i)
		}
	}
	return nil
}

func (d *CensusData) validate() error {
	for _, h := range d.Herds {
		if h.ID == "" {
			return errors.New("herd seed without id")
		}
		if !ValidCoordinate(h.Lat, h.Lng) {
			return fmt.Errorf("herd seed %s: invalid coordinate", h.ID)
		}
		if h.HeadCount <= 0 {
			return fmt.Errorf("herd seed %s: head count must be positive", h.ID)
		}
		if !inUnit(h.CensusConfidence) {
			return fmt.Errorf("herd seed %s: census confidence out of [0,1]", h.ID)
		}
		if h.WaterDays != nil && *h.WaterDays < 0 {
			return fmt.Errorf("herd seed %s: negative water days", h.ID)
		}
	}
	for _, c := range d.Corridors {
		if len(c.Path) == 0 {
			return fmt.Errorf("corridor %s: empty path", c.ID)
		}
		for _, m := range c.ActiveMonths {
			if m < 1 || m > 12 {
				return fmt.Errorf("corridor %s: month %d out of range", c.ID, m)
			}
		}
	}
	for _, g := range d.GrazingRegions {
		if !inUnit(g.NDVI) {
			return fmt.Errorf("grazing region %q: ndvi out of [0,1]", g.Name)
		}
	}
	for _, z := range d.NDVIZones {
		if !ValidCoordinate(z.Lat, z.Lng) || !inUnit(z.NDVI) {
			return fmt.Errorf("ndvi zone %q out of range", z.Label)
		}
	}
	return validateWaterPoints(d.WaterPoints)
}

func (d *WaterData) validate() error {
	return validateWaterPoints(d.Points)
}

func validateWaterPoints(points []WaterPoint) error {
	for _, w := range points {
		if !ValidCoordinate(w.Lat, w.Lng) {
			return fmt.Errorf("water point %s: invalid coordinate", w.ID)
		}
		if !inUnit(w.Reliability) {
			return fmt.Errorf("water point %s: reliability out of [0,1]", w.ID)
		}
	}
	return nil
}

func (d *NewsData) validate() error {
	for _, a := range d.Articles {
		if a.Title == "" {
			return errors.New("news article without title")
		}
	}
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
