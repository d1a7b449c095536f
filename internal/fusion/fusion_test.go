package fusion

import (
	"testing"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/0verdr1v3/bovine/internal/reference"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2025, 2, 10, 6, 0, 0, 0, time.UTC)

const kmPerDegLat = 111.195

func censusRef() domain.SourceRef {
	return domain.SourceRef{SourceID: "census", Status: domain.StatusConnected, FetchedAt: asOf.Add(-time.Hour)}
}

// singleHerd is a herd at 7N 30E observed at asOf, with one fully reliable
// water point 20 km due north and satellite NDVI of 0.5.
func singleHerd() Inputs {
	return Inputs{
		Census: &domain.CensusData{
			Herds: []domain.HerdSeed{{
				ID: "X", Name: "Herd X", Ethnicity: "Murle", Region: "Jonglei / Pibor",
				GrazingRegion: "Jonglei", Lat: 7.0, Lng: 30.0, HeadCount: 1000,
				CensusConfidence: 0.8, Trend: "S", ObservedAt: asOf,
			}},
			GrazingRegions: []domain.GrazingRegion{{Name: "Jonglei", Lat: 7, Lng: 30, RadiusM: 100000, NDVI: 0.5}},
		},
		Vegetation: &domain.VegetationData{
			Regions: []domain.RegionIndex{{Name: "Jonglei", NDVI: 0.5}},
		},
		WaterPoints: []domain.WaterPoint{{ID: "w", Name: "North Pool", Lat: 7.0 + 20/kmPerDegLat, Lng: 30.0, Reliability: 1}},
		Refs: map[domain.Category][]domain.SourceRef{
			domain.CategoryCensus: {censusRef()},
		},
	}
}

func estimateOne(t *testing.T, in Inputs, zones []domain.ConflictZone) domain.HerdEstimate {
	t.Helper()
	herds, err := Estimate(in, zones, asOf, DefaultParams())
	require.NoError(t, err)
	require.Len(t, herds, 1)
	require.NoError(t, herds[0].Validate())
	return herds[0]
}

func TestEstimate_WaterAndVegetation(t *testing.T) {
	h := estimateOne(t, singleHerd(), nil)

	assert.Equal(t, 6, h.WaterDays)
	assert.InDelta(t, 0.5, h.NDVI, 1e-9)
	assert.InDelta(t, 6.0, h.SpeedKmPerDay, 1e-9)
	assert.Equal(t, "N", h.Trend)
	assert.InDelta(t, 7.0, h.Lat, 1e-6, "observed at as-of, so no projection")
	assert.InDelta(t, 1.0, h.Factors[domain.FactorNDVICorrelation], 1e-9)
	assert.InDelta(t, 0.8, h.Factors[domain.FactorCensusMatch], 1e-9)
	assert.NotContains(t, h.Factors, domain.FactorCorridorMatch)
	assert.NotContains(t, h.Factors, domain.FactorGroundVerification)
	assert.NotContains(t, h.Factors, domain.FactorSatelliteVisibility)
	assert.InDelta(t, 0.9, h.Confidence, 1e-9)
	assert.Equal(t, asOf, h.EstimatedAt)
}

func TestEstimate_BaselineNDVIWithoutVegetation(t *testing.T) {
	in := singleHerd()
	in.Vegetation = nil
	in.Census.GrazingRegions[0].NDVI = 0.3

	h := estimateOne(t, in, nil)
	assert.InDelta(t, 0.3, h.NDVI, 1e-9)
	assert.NotContains(t, h.Factors, domain.FactorNDVICorrelation)
	assert.InDelta(t, 7.6, h.SpeedKmPerDay, 1e-9)
}

func TestEstimate_FiresReduceNDVI(t *testing.T) {
	tests := []struct {
		name  string
		fires int
		ndvi  float64
	}{
		{name: "three fires", fires: 3, ndvi: 0.44},
		{name: "penalty is capped", fires: 9, ndvi: 0.40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := singleHerd()
			for range tt.fires {
				in.Fires = append(in.Fires, domain.FireDetection{Lat: 7.05, Lng: 30.05})
			}
			in.Fires = append(in.Fires, domain.FireDetection{Lat: 9.0, Lng: 30.0}) // far away
			h := estimateOne(t, in, nil)
			assert.InDelta(t, tt.ndvi, h.NDVI, 1e-9)
		})
	}
}

func TestEstimate_HeavyRainAddsWaterDay(t *testing.T) {
	in := singleHerd()
	days := make([]domain.WeatherDay, 7)
	for i := range days {
		days[i] = domain.WeatherDay{PrecipitationMM: 5, CloudCoverPct: 40}
	}
	in.Weather = &domain.WeatherData{Days: days}

	h := estimateOne(t, in, nil)
	assert.Equal(t, 7, h.WaterDays)
	assert.InDelta(t, 0.6, h.Factors[domain.FactorSatelliteVisibility], 1e-9)
}

func TestEstimate_WaterStressRaisesSpeed(t *testing.T) {
	in := singleHerd()
	in.WaterPoints[0].Lat = 7.0 + 60/kmPerDegLat
	in.WaterPoints[0].Reliability = 0.5

	h := estimateOne(t, in, nil)
	assert.Equal(t, 2, h.WaterDays)
	assert.InDelta(t, 2+4+6*0.6, h.SpeedKmPerDay, 1e-9)
}

func TestEstimate_SurveyedWaterDaysBlendWithProximity(t *testing.T) {
	surveyed := 2

	in := singleHerd()
	in.Census.Herds[0].WaterDays = &surveyed
	h := estimateOne(t, in, nil)
	assert.Equal(t, 4, h.WaterDays, "mean of surveyed 2 and 6.2 from the pool")

	in.WaterPoints = nil
	h = estimateOne(t, in, nil)
	assert.Equal(t, 2, h.WaterDays)
	assert.InDelta(t, 2+4+6*0.6, h.SpeedKmPerDay, 1e-9)

	in.Census.Herds[0].WaterDays = nil
	h = estimateOne(t, in, nil)
	assert.Zero(t, h.WaterDays)
}

func TestEstimate_ConflictAvoidance(t *testing.T) {
	zone := domain.ConflictZone{
		ID: "cell_7_30", Name: "East Camp", Lat: 7.0, Lng: 30.09,
		RiskScore: 85, RiskLevel: domain.RiskCritical,
	}

	h := estimateOne(t, singleHerd(), []domain.ConflictZone{zone})
	assert.Equal(t, "W", h.Trend)
	assert.InDelta(t, 6*1.3, h.SpeedKmPerDay, 0.05)
	assert.Equal(t, "cell_7_30", h.AvoidingZoneID)

	zone.RiskLevel, zone.RiskScore = domain.RiskMedium, 50
	h = estimateOne(t, singleHerd(), []domain.ConflictZone{zone})
	assert.Equal(t, "N", h.Trend, "medium zones are not avoided")
	assert.Empty(t, h.AvoidingZoneID)

	zone.RiskLevel, zone.Lng = domain.RiskHigh, 31.0
	h = estimateOne(t, singleHerd(), []domain.ConflictZone{zone})
	assert.Empty(t, h.AvoidingZoneID, "zone beyond avoidance radius")
}

func TestEstimate_Projection(t *testing.T) {
	in := singleHerd()
	in.Census.Herds[0].ObservedAt = asOf.AddDate(0, 0, -2)
	h := estimateOne(t, in, nil)
	assert.InDelta(t, 7.0+12/kmPerDegLat, h.Lat, 1e-3)
	assert.InDelta(t, 30.0, h.Lng, 1e-3)

	in.Census.Herds[0].ObservedAt = asOf.AddDate(0, 0, -40)
	h = estimateOne(t, in, nil)
	assert.InDelta(t, 7.0+6*14/kmPerDegLat, h.Lat, 1e-3, "projection clamped to 14 days")

	in.Census.Herds[0].ObservedAt = asOf.AddDate(0, 0, 3)
	h = estimateOne(t, in, nil)
	assert.InDelta(t, 7.0, h.Lat, 1e-6, "future observations do not move the herd")
}

func TestEstimate_CorridorMatching(t *testing.T) {
	corridor := domain.Corridor{
		ID: "c", Name: "North Route", Ethnicity: "Murle",
		ActiveMonths: []int{1, 2, 3},
		Path:         []domain.LatLng{{Lat: 7.2, Lng: 30.0}, {Lat: 8.0, Lng: 30.0}},
	}

	t.Run("active corridor pulls position", func(t *testing.T) {
		in := singleHerd()
		in.Census.Corridors = []domain.Corridor{corridor}
		h := estimateOne(t, in, nil)
		assert.InDelta(t, 1-0.2*kmPerDegLat/100, h.Factors[domain.FactorCorridorMatch], 1e-3)
		assert.InDelta(t, 7.1, h.Lat, 1e-3)
	})

	t.Run("distant active corridor floors at one half", func(t *testing.T) {
		in := singleHerd()
		far := corridor
		far.Path = []domain.LatLng{{Lat: 9.0, Lng: 30.0}}
		in.Census.Corridors = []domain.Corridor{far}
		h := estimateOne(t, in, nil)
		assert.InDelta(t, 0.5, h.Factors[domain.FactorCorridorMatch], 1e-9)
	})

	t.Run("out of season", func(t *testing.T) {
		in := singleHerd()
		off := corridor
		off.ActiveMonths = []int{7, 8}
		in.Census.Corridors = []domain.Corridor{off}
		h := estimateOne(t, in, nil)
		assert.InDelta(t, 0.25, h.Factors[domain.FactorCorridorMatch], 1e-9)
		assert.InDelta(t, 7.0, h.Lat, 1e-6)
	})

	t.Run("other community's corridor is ignored", func(t *testing.T) {
		in := singleHerd()
		other := corridor
		other.Ethnicity = "Dinka"
		in.Census.Corridors = []domain.Corridor{other}
		h := estimateOne(t, in, nil)
		assert.NotContains(t, h.Factors, domain.FactorCorridorMatch)
	})
}

func TestEstimate_GroundVerification(t *testing.T) {
	in := singleHerd()
	in.News = []domain.Article{
		{ID: "1", Title: "Murle herders move north"},
		{ID: "2", Title: "Flooding in Pibor county"},
		{ID: "3", Title: "Market prices in Juba"},
	}
	in.Refs[domain.CategoryNews] = []domain.SourceRef{{SourceID: "news", Status: domain.StatusConnected, FetchedAt: asOf}}

	h := estimateOne(t, in, nil)
	assert.InDelta(t, 0.7, h.Factors[domain.FactorGroundVerification], 1e-9)
	assert.Equal(t, asOf, h.Evidence.LastVerification)
	ids := []string{}
	for _, r := range h.Evidence.SupportingSources {
		ids = append(ids, r.SourceID)
	}
	assert.Equal(t, []string{"census", "news"}, ids)
}

func TestEstimate_MissingCensus(t *testing.T) {
	_, err := Estimate(Inputs{}, nil, asOf, DefaultParams())
	require.ErrorIs(t, err, domain.ErrFusionInputMissing)
}

func TestConfidence(t *testing.T) {
	assert.Zero(t, Confidence(nil))
	assert.InDelta(t, 0.75, Confidence(map[string]float64{"a": 1, "b": 0.5}), 1e-9)
	assert.InDelta(t, 0.5, Confidence(map[string]float64{"a": 1.5, "b": -1}), 1e-9)
}

func TestConfidence_IndependentOfIterationOrder(t *testing.T) {
	factors := map[string]float64{}
	for i := range 40 {
		factors[string(rune('a'+i%26))+string(rune('A'+i))] = 1 / float64(i+3)
	}
	want := Confidence(factors)
	for range 200 {
		require.Equal(t, want, Confidence(factors))
	}
}

func referenceInputs(t *testing.T) Inputs {
	t.Helper()
	ds, err := reference.Default()
	require.NoError(t, err)
	census := domain.CensusPayload(ds.Census())
	return InputsFrom([]domain.SourceResult{{
		SourceID: reference.CensusSourceID, Category: domain.CategoryCensus,
		Status: domain.StatusConnected, FetchedAt: asOf, AttemptedAt: asOf, Payload: &census,
	}})
}

func TestEstimate_ReferenceDatasetIsValidAndDeterministic(t *testing.T) {
	in := referenceInputs(t)
	zones := []domain.ConflictZone{{ID: "cell_6.5_33", Lat: 6.82, Lng: 33.1, RiskScore: 100, RiskLevel: domain.RiskCritical}}

	first, err := Estimate(in, zones, asOf, DefaultParams())
	require.NoError(t, err)
	second, err := Estimate(in, zones, asOf, DefaultParams())
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated estimate differs (-first +second):\n%s", diff)
	}

	require.Len(t, first, 8)
	for i, h := range first {
		require.NoError(t, h.Validate())
		assert.GreaterOrEqual(t, h.Confidence, 0.0)
		assert.LessOrEqual(t, h.Confidence, 1.0)
		if i > 0 {
			assert.Less(t, first[i-1].ID, h.ID)
		}
	}

	byID := map[string]domain.HerdEstimate{}
	for _, h := range first {
		byID[h.ID] = h
	}
	assert.Equal(t, "cell_6.5_33", byID["E"].AvoidingZoneID)
	assert.Empty(t, byID["G"].AvoidingZoneID)

	waterDays := map[int]bool{}
	for _, h := range first {
		waterDays[h.WaterDays] = true
		if h.ID == "E" {
			assert.GreaterOrEqual(t, h.SpeedKmPerDay, 12.0, "herd E flees the critical zone")
			continue
		}
		assert.Less(t, h.SpeedKmPerDay, 12.0, "herd %s", h.ID)
	}
	assert.GreaterOrEqual(t, len(waterDays), 4, "reference herds differ in water access")
	assert.Equal(t, 3, byID["A"].WaterDays)
	assert.Equal(t, 5, byID["F"].WaterDays)
}

func TestInputsFrom(t *testing.T) {
	census := domain.CensusPayload(domain.CensusData{
		WaterPoints: []domain.WaterPoint{{ID: "sobat", Name: "Sobat", Reliability: 0.9}},
	})
	water := domain.WaterPayload(domain.WaterData{Points: []domain.WaterPoint{
		{ID: "sobat", Name: "Sobat River", Reliability: 0.8},
		{ID: "osm-1", Name: "Pond", Reliability: 0.6},
	}})
	fires := domain.FirePayload(domain.FireData{Detections: []domain.FireDetection{{Lat: 1, Lng: 1}}})

	in := InputsFrom([]domain.SourceResult{
		{SourceID: "census", Status: domain.StatusConnected, Payload: &census},
		{SourceID: "water", Status: domain.StatusCached, Payload: &water},
		{SourceID: "fires", Status: domain.StatusFailed},
		{SourceID: "fires-2", Status: domain.StatusLimited, Payload: &fires},
	})

	require.NotNil(t, in.Census)
	assert.Nil(t, in.Vegetation)
	require.Len(t, in.WaterPoints, 2)
	assert.Equal(t, "osm-1", in.WaterPoints[0].ID)
	assert.Equal(t, "Sobat River", in.WaterPoints[1].Name)
	assert.Len(t, in.Fires, 1)
	assert.Len(t, in.Refs[domain.CategoryFire], 1)
	assert.Equal(t, domain.StatusCached, in.Refs[domain.CategoryWater][0].Status)
}
