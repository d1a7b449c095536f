package fusion

import (
	"cmp"
	"slices"

	"github.com/0verdr1v3/bovine/internal/domain"
)

// Inputs are the usable payloads of one cycle, grouped by category. Nil or
// empty members mean the input was unavailable.
type Inputs struct {
	Census      *domain.CensusData
	Vegetation  *domain.VegetationData
	Weather     *domain.WeatherData
	Fires       []domain.FireDetection
	WaterPoints []domain.WaterPoint
	News        []domain.Article

	// Refs cites the sources behind each category.
	Refs map[domain.Category][]domain.SourceRef
}

// InputsFrom collects the usable results. Water points from the census
// reference and the water feed are merged by id, with the feed winning.
func InputsFrom(results []domain.SourceResult) Inputs {
	in := Inputs{Refs: make(map[domain.Category][]domain.SourceRef)}
	water := map[string]domain.WaterPoint{}

	for _, r := range results {
		if !r.Usable() {
			continue
		}
		p := r.Payload
		switch p.Kind {
		case domain.CategoryCensus:
			if in.Census == nil {
				in.Census = p.Census
				for _, w := range p.Census.WaterPoints {
					if _, ok := water[w.ID]; !ok {
						water[w.ID] = w
					}
				}
			}
		case domain.CategoryVegetation:
			if in.Vegetation == nil {
				in.Vegetation = p.Vegetation
			}
		case domain.CategoryWeather:
			if in.Weather == nil {
				in.Weather = p.Weather
			}
		case domain.CategoryFire:
			in.Fires = append(in.Fires, p.Fire.Detections...)
		case domain.CategoryWater:
			for _, w := range p.Water.Points {
				water[w.ID] = w
			}
		case domain.CategoryNews:
			in.News = append(in.News, p.News.Articles...)
		case domain.CategoryConflict:
		default:
			continue
		}
		in.Refs[p.Kind] = append(in.Refs[p.Kind], r.Ref())
	}

	for _, w := range water {
		in.WaterPoints = append(in.WaterPoints, w)
	}
	slices.SortFunc(in.WaterPoints, func(a, b domain.WaterPoint) int { return cmp.Compare(a.ID, b.ID) })
	return in
}
