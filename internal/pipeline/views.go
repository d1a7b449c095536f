package pipeline

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/0verdr1v3/bovine/internal/fusion"
)

// referenceViews builds the geography documents served by the API. Live
// satellite indices replace baseline NDVI where a region or sample exists.
// ok is false without a census baseline, in which case the previous views
// are kept.
func referenceViews(in fusion.Inputs, events []domain.ConflictEvent) (map[string]any, bool) {
	if in.Census == nil {
		return nil, false
	}

	regions := slices.Clone(in.Census.GrazingRegions)
	if in.Vegetation != nil {
		for i, g := range regions {
			for _, r := range in.Vegetation.Regions {
				if strings.EqualFold(r.Name, g.Name) {
					regions[i].NDVI = r.NDVI
				}
			}
		}
	}

	ndviZones := in.Census.NDVIZones
	if in.Vegetation != nil && len(in.Vegetation.Zones) > 0 {
		ndviZones = in.Vegetation.Zones
	}

	return map[string]any{
		domain.KeyWaterSources:        nonNil(in.WaterPoints),
		domain.KeyGrazingRegions:      nonNil(regions),
		domain.KeyCorridors:           nonNil(in.Census.Corridors),
		domain.KeyNDVIZones:           nonNil(ndviZones),
		domain.KeyHistoricalConflicts: domain.NewConflictHistory(baselineEvents(events)),
	}, true
}

// baselineEvents returns the curated incidents, deduplicated by id and newest
// first.
func baselineEvents(events []domain.ConflictEvent) []domain.ConflictEvent {
	seen := map[string]bool{}
	var out []domain.ConflictEvent
	for _, e := range events {
		if !e.Baseline || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.ConflictEvent) int {
		return cmp.Or(b.Date.Compare(a.Date), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// weatherHistory keys every freshly fetched forecast by the day it was
// fetched. A cached forecast was already recorded when it was fetched.
func weatherHistory(results []domain.SourceResult) map[string]any {
	docs := map[string]any{}
	for _, r := range results {
		if r.Category != domain.CategoryWeather || r.Status != domain.StatusConnected || r.Payload == nil || r.Payload.Weather == nil {
			continue
		}
		date := r.FetchedAt.UTC().Format(time.DateOnly)
		docs[date] = domain.WeatherRecord{
			Date:      date,
			SourceID:  r.SourceID,
			FetchedAt: r.FetchedAt,
			Rain7Day:  r.Payload.Weather.Rain7Day(),
			Forecast:  *r.Payload.Weather,
		}
	}
	return docs
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
