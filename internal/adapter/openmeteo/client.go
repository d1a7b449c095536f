// Package openmeteo fetches the daily forecast for the region centroid from
// the Open-Meteo API.
package openmeteo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/0verdr1v3/bovine/internal/adapter/httputil"
	"github.com/0verdr1v3/bovine/internal/domain"
)

// SourceID is the cache key of the weather source.
const SourceID = "weather"

const (
	forecastDays = 14
	timezone     = "Africa/Juba"
	dailyFields  = "precipitation_sum,temperature_2m_max,et0_fao_evapotranspiration,cloud_cover_mean"
)

// Client implements source.Collaborator for the weather category.
type Client struct {
	baseURL    string
	lat, lng   float64
	httpClient *http.Client
}

// NewClient creates a forecast client for the given point.
func NewClient(baseURL string, lat, lng float64, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, lat: lat, lng: lng, httpClient: httpClient}
}

func (c *Client) ID() string                { return SourceID }
func (c *Client) Category() domain.Category { return domain.CategoryWeather }

// Fetch returns the forecast as a weather payload. The daily arrays must all
// have one value per date.
func (c *Client) Fetch(ctx context.Context) (domain.Payload, error) {
	params := url.Values{
		"latitude":      {strconv.FormatFloat(c.lat, 'f', 4, 64)},
		"longitude":     {strconv.FormatFloat(c.lng, 'f', 4, 64)},
		"daily":         {dailyFields},
		"timezone":      {timezone},
		"forecast_days": {strconv.Itoa(forecastDays)},
	}

	var resp forecastResponse
	if err := httputil.GetJSON(ctx, c.httpClient, c.baseURL+"?"+params.Encode(), nil, &resp); err != nil {
		return domain.Payload{}, fmt.Errorf("fetch forecast: %w", err)
	}
	data, err := resp.toWeather(c.lat, c.lng)
	if err != nil {
		return domain.Payload{}, err
	}
	return domain.WeatherPayload(data), nil
}

// Open-Meteo response types. Daily values are parallel arrays indexed by date;
// any value may be null.

type forecastResponse struct {
	Daily *daily `json:"daily"`
}

type daily struct {
	Time          []string   `json:"time"`
	Precipitation []*float64 `json:"precipitation_sum"`
	TempMax       []*float64 `json:"temperature_2m_max"`
	ET0           []*float64 `json:"et0_fao_evapotranspiration"`
	CloudCover    []*float64 `json:"cloud_cover_mean"`
}

func (r forecastResponse) toWeather(lat, lng float64) (domain.WeatherData, error) {
	if r.Daily == nil || len(r.Daily.Time) == 0 {
		return domain.WeatherData{}, fmt.Errorf("%w: forecast has no daily block", domain.ErrSourceMalformedPayload)
	}
	d := r.Daily
	n := len(d.Time)
	for name, series := range map[string][]*float64{
		"precipitation_sum":          d.Precipitation,
		"temperature_2m_max":         d.TempMax,
		"et0_fao_evapotranspiration": d.ET0,
	} {
		if len(series) != n {
			return domain.WeatherData{}, fmt.Errorf("%w: %s has %d values for %d days",
				domain.ErrSourceMalformedPayload, name, len(series), n)
		}
	}

	days := make([]domain.WeatherDay, n)
	for i, date := range d.Time {
		days[i] = domain.WeatherDay{
			Date:            date,
			PrecipitationMM: valueAt(d.Precipitation, i),
			TempMaxC:        valueAt(d.TempMax, i),
			ET0MM:           valueAt(d.ET0, i),
			CloudCoverPct:   valueAt(d.CloudCover, i),
		}
	}
	return domain.WeatherData{Lat: lat, Lng: lng, Days: days}, nil
}

// valueAt reads a nullable daily value. Missing values count as zero.
func valueAt(series []*float64, i int) float64 {
	if i >= len(series) || series[i] == nil {
		return 0
	}
	return *series[i]
}
