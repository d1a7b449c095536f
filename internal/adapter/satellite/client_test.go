package satellite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/0verdr1v3/bovine/internal/config"
	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const indicesJSON = `{
  "observed_at": "2025-02-09T00:00:00Z",
  "regions": [
    {"name": "Jonglei", "ndvi": 0.31, "soil_moisture": 0.22, "rain_index": 0.1},
    {"name": "Sudd", "ndvi": -0.08, "soil_moisture": 0.9, "rain_index": 0.4}
  ],
  "zones": [
    {"label": "Pibor plain", "lat": 6.8, "lng": 33.1, "radius_m": 40000, "ndvi": 0.28}
  ]
}`

var bbox = config.BBox{MinLat: 3.4, MinLng: 23.4, MaxLat: 12.3, MaxLng: 36}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indices", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "23.4,3.4,36,12.3", r.URL.Query().Get("bbox"))
		_, _ = w.Write([]byte(indicesJSON))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", bbox, &http.Client{Timeout: 5 * time.Second})
	assert.Equal(t, domain.CategoryVegetation, c.Category())

	p, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	v := p.Vegetation
	assert.Equal(t, time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC), v.ObservedAt)
	require.Len(t, v.Regions, 2)
	assert.Equal(t, 0.31, v.Regions[0].NDVI)
	assert.Equal(t, 0.0, v.Regions[1].NDVI, "negative ndvi floors at zero")
	require.Len(t, v.Zones, 1)
	assert.Equal(t, "Pibor plain", v.Zones[0].Label)
}

func TestClient_Fetch_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "bad", bbox, srv.Client()).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestClient_Fetch_OutOfRangeIndexIsQuarantined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"regions": [{"name": "Jonglei", "ndvi": 0.3, "soil_moisture": 4.2, "rain_index": 0.1}]}`))
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL, "tok", bbox, srv.Client()).Fetch(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, p.Validate(), domain.ErrSourceMalformedPayload)
}
