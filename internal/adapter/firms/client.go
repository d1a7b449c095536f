// Package firms fetches active-fire detections for the region bounding box
// from the NASA FIRMS area CSV API.
package firms

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/0verdr1v3/bovine/internal/adapter/httputil"
	"github.com/0verdr1v3/bovine/internal/config"
	"github.com/0verdr1v3/bovine/internal/domain"
)

// SourceID is the cache key of the fire source.
const SourceID = "fires"

const (
	defaultProduct = "VIIRS_SNPP_NRT"
	defaultDays    = 2
)

// Client implements source.Collaborator for the fire category.
type Client struct {
	baseURL    string
	mapKey     string
	product    string
	days       int
	bbox       config.BBox
	httpClient *http.Client
}

// NewClient creates a FIRMS client over the given bounding box.
func NewClient(baseURL, mapKey string, bbox config.BBox, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		mapKey:     mapKey,
		product:    defaultProduct,
		days:       defaultDays,
		bbox:       bbox,
		httpClient: httpClient,
	}
}

func (c *Client) ID() string                { return SourceID }
func (c *Client) Category() domain.Category { return domain.CategoryFire }

// Fetch returns detections from the last few days. The area endpoint wants
// west,south,east,north.
func (c *Client) Fetch(ctx context.Context) (domain.Payload, error) {
	area := fmt.Sprintf("%g,%g,%g,%g", c.bbox.MinLng, c.bbox.MinLat, c.bbox.MaxLng, c.bbox.MaxLat)
	u := fmt.Sprintf("%s/%s/%s/%s/%d", c.baseURL, c.mapKey, c.product, area, c.days)

	body, err := httputil.Get(ctx, c.httpClient, u, nil)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("fetch fire detections: %w", err)
	}
	defer body.Close()

	detections, err := parseCSV(body)
	if err != nil {
		return domain.Payload{}, err
	}
	return domain.FirePayload(domain.FireData{Detections: detections}), nil
}

// parseCSV reads the FIRMS CSV by header name so VIIRS and MODIS products
// parse alike. FIRMS answers a bad key with a plain-text body, which fails
// the header check.
func parseCSV(r io.Reader) ([]domain.FireDetection, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %w", domain.ErrSourceMalformedPayload, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, required := range []string{"latitude", "longitude", "acq_date"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: csv missing column %q", domain.ErrSourceMalformedPayload, required)
		}
	}

	field := func(rec []string, names ...string) string {
		for _, n := range names {
			if i, ok := cols[n]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
		}
		return ""
	}

	var out []domain.FireDetection
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv line %d: %w", domain.ErrSourceMalformedPayload, line, err)
		}
		lat, errLat := strconv.ParseFloat(field(rec, "latitude"), 64)
		lng, errLng := strconv.ParseFloat(field(rec, "longitude"), 64)
		if errLat != nil || errLng != nil {
			return nil, fmt.Errorf("%w: csv line %d: bad coordinate", domain.ErrSourceMalformedPayload, line)
		}
		brightness, _ := strconv.ParseFloat(field(rec, "bright_ti4", "brightness"), 64)
		frp, _ := strconv.ParseFloat(field(rec, "frp"), 64)
		out = append(out, domain.FireDetection{
			Lat:        lat,
			Lng:        lng,
			Brightness: brightness,
			FRP:        frp,
			Confidence: field(rec, "confidence"),
			Satellite:  field(rec, "satellite"),
			AcquiredAt: acquiredAt(field(rec, "acq_date"), field(rec, "acq_time")),
		})
	}
	return out, nil
}

// acquiredAt combines acq_date (YYYY-MM-DD) and acq_time (HHMM, UTC).
func acquiredAt(date, hhmm string) time.Time {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}
	}
	if len(hhmm) < 3 || len(hhmm) > 4 {
		return d
	}
	hhmm = strings.Repeat("0", 4-len(hhmm)) + hhmm
	h, errH := strconv.Atoi(hhmm[:2])
	m, errM := strconv.Atoi(hhmm[2:])
	if errH != nil || errM != nil || h > 23 || m > 59 {
		return d
	}
	return d.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}
