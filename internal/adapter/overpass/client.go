// Package overpass maps OpenStreetMap water features in the region to water
// points using the Overpass API.
package overpass

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/0verdr1v3/bovine/internal/config"
	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/serjvanilla/go-overpass"
)

// SourceID is the cache key of the water source.
const SourceID = "water"

const waterQuery = `
[out:json][timeout:60];
(
	way["waterway"~"^(river|stream)$"](%[1]s);
	way["natural"="water"](%[1]s);
	way["natural"="wetland"](%[1]s);
	node["man_made"="water_well"](%[1]s);
	node["amenity"="drinking_water"](%[1]s);
	node["natural"="spring"](%[1]s);
);
out body;
>;
out skel qt;
`

// Client implements source.Collaborator for the water category.
type Client struct {
	endpoint string
	bbox     config.BBox
	timeout  time.Duration
	base     http.RoundTripper
}

// NewClient creates an Overpass client for the bounding box.
func NewClient(endpoint string, bbox config.BBox, timeout time.Duration) *Client {
	return &Client{endpoint: endpoint, bbox: bbox, timeout: timeout, base: http.DefaultTransport}
}

func (c *Client) ID() string                { return SourceID }
func (c *Client) Category() domain.Category { return domain.CategoryWater }

// Fetch runs the water query. The Overpass client has no context parameter,
// so ctx is bound through the transport.
func (c *Client) Fetch(ctx context.Context) (domain.Payload, error) {
	tr := &contextTransport{ctx: ctx, base: c.base}
	client := overpass.NewWithSettings(c.endpoint, 1, &http.Client{Timeout: c.timeout, Transport: tr})

	bbox := fmt.Sprintf("%g,%g,%g,%g", c.bbox.MinLat, c.bbox.MinLng, c.bbox.MaxLat, c.bbox.MaxLng)
	result, err := client.Query(fmt.Sprintf(waterQuery, bbox))
	if err != nil {
		switch {
		case tr.lastStatus.Load() == http.StatusTooManyRequests:
			return domain.Payload{}, fmt.Errorf("%w: overpass query: %w", domain.ErrSourceRateLimited, err)
		case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
			return domain.Payload{}, fmt.Errorf("%w: overpass query: %w", domain.ErrSourceTimeout, err)
		}
		return domain.Payload{}, fmt.Errorf("overpass query: %w", err)
	}
	return domain.WaterPayload(domain.WaterData{Points: toWaterPoints(result)}), nil
}

// contextTransport attaches ctx to every request and remembers the last
// response status.
type contextTransport struct {
	ctx        context.Context
	base       http.RoundTripper
	lastStatus atomic.Int32
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if err == nil {
		t.lastStatus.Store(int32(resp.StatusCode))
	}
	return resp, err
}

func toWaterPoints(result overpass.Result) []domain.WaterPoint {
	var points []domain.WaterPoint
	for _, n := range result.Nodes {
		kind, reliability, ok := classify(n.Tags)
		if !ok {
			continue
		}
		points = append(points, waterPoint("node", n.ID, n.Tags, kind, reliability, n.Lat, n.Lon))
	}
	for _, w := range result.Ways {
		kind, reliability, ok := classify(w.Tags)
		if !ok || len(w.Nodes) == 0 {
			continue
		}
		var lat, lng float64
		var count int
		for _, n := range w.Nodes {
			if n == nil {
				continue
			}
			lat += n.Lat
			lng += n.Lon
			count++
		}
		if count == 0 {
			continue
		}
		points = append(points, waterPoint("way", w.ID, w.Tags, kind, reliability, lat/float64(count), lng/float64(count)))
	}
	slices.SortFunc(points, func(a, b domain.WaterPoint) int { return cmp.Compare(a.ID, b.ID) })
	return points
}

func waterPoint(typ string, id int64, tags map[string]string, kind string, reliability, lat, lng float64) domain.WaterPoint {
	name := tags["name"]
	if name == "" {
		name = kind
	}
	return domain.WaterPoint{
		ID:          fmt.Sprintf("osm-%s-%d", typ, id),
		Name:        name,
		Kind:        kind,
		Lat:         lat,
		Lng:         lng,
		Reliability: reliability,
	}
}

// classify names the water feature and estimates how dependable it is
// through the dry season. Intermittent features keep 60% of the base value.
func classify(tags map[string]string) (kind string, reliability float64, ok bool) {
	switch {
	case tags["waterway"] == "river":
		kind, reliability = "perennial river", 0.9
	case tags["waterway"] == "stream":
		kind, reliability = "seasonal stream", 0.4
	case tags["natural"] == "wetland":
		kind, reliability = "wetland", 0.85
	case tags["natural"] == "water":
		kind, reliability = "lake", 0.8
		if w := tags["water"]; w == "reservoir" || w == "pond" {
			kind = w
		}
	case tags["man_made"] == "water_well":
		kind, reliability = "well", 0.7
	case tags["amenity"] == "drinking_water":
		kind, reliability = "borehole", 0.7
	case tags["natural"] == "spring":
		kind, reliability = "spring", 0.6
	default:
		return "", 0, false
	}
	if tags["intermittent"] == "yes" || tags["seasonal"] == "yes" {
		reliability *= 0.6
		kind = strings.Replace(kind, "perennial", "seasonal", 1)
	}
	return kind, reliability, true
}
