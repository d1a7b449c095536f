// Package satellite reads regional vegetation indices from a satellite index
// service that publishes NDVI, soil moisture and a rain index per grazing
// region.
package satellite

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/0verdr1v3/bovine/internal/adapter/httputil"
	"github.com/0verdr1v3/bovine/internal/config"
	"github.com/0verdr1v3/bovine/internal/domain"
)

// SourceID is the cache key of the vegetation source.
const SourceID = "vegetation"

// Client implements source.Collaborator for the vegetation category.
type Client struct {
	baseURL    string
	token      string
	bbox       config.BBox
	httpClient *http.Client
}

// NewClient creates a client authenticated with a bearer token.
func NewClient(baseURL, token string, bbox config.BBox, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		bbox:       bbox,
		httpClient: httpClient,
	}
}

func (c *Client) ID() string                { return SourceID }
func (c *Client) Category() domain.Category { return domain.CategoryVegetation }

func (c *Client) Fetch(ctx context.Context) (domain.Payload, error) {
	params := url.Values{
		"bbox": {fmt.Sprintf("%g,%g,%g,%g", c.bbox.MinLng, c.bbox.MinLat, c.bbox.MaxLng, c.bbox.MaxLat)},
	}
	header := http.Header{"Authorization": {"Bearer " + c.token}}

	var resp indicesResponse
	if err := httputil.GetJSON(ctx, c.httpClient, c.baseURL+"/indices?"+params.Encode(), header, &resp); err != nil {
		return domain.Payload{}, fmt.Errorf("fetch vegetation indices: %w", err)
	}
	return domain.VegetationPayload(resp.toVegetation()), nil
}

type indicesResponse struct {
	ObservedAt time.Time `json:"observed_at"`
	Regions    []struct {
		Name         string  `json:"name"`
		NDVI         float64 `json:"ndvi"`
		SoilMoisture float64 `json:"soil_moisture"`
		RainIndex    float64 `json:"rain_index"`
	} `json:"regions"`
	Zones []struct {
		Label   string  `json:"label"`
		Lat     float64 `json:"lat"`
		Lng     float64 `json:"lng"`
		RadiusM float64 `json:"radius_m"`
		NDVI    float64 `json:"ndvi"`
	} `json:"zones"`
}

// toVegetation maps the response onto the payload. Raw NDVI spans [-1,1];
// negative values mean water or bare ground and are floored at zero.
// Soil moisture and rain index pass through unchanged.
func (r indicesResponse) toVegetation() domain.VegetationData {
	out := domain.VegetationData{ObservedAt: r.ObservedAt.UTC()}
	for _, reg := range r.Regions {
		out.Regions = append(out.Regions, domain.RegionIndex{
			Name:         reg.Name,
			NDVI:         max(0, reg.NDVI),
			SoilMoisture: reg.SoilMoisture,
			RainIndex:    reg.RainIndex,
		})
	}
	for _, z := range r.Zones {
		out.Zones = append(out.Zones, domain.NDVIZone{
			Label:   z.Label,
			Lat:     z.Lat,
			Lng:     z.Lng,
			RadiusM: z.RadiusM,
			NDVI:    max(0, z.NDVI),
		})
	}
	return out
}
