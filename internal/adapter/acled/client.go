// Package acled fetches armed-conflict events for the region from the ACLED
// read API.
package acled

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/0verdr1v3/bovine/internal/adapter/httputil"
	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/jonboulle/clockwork"
)

// SourceID is the cache key of the live conflict-event source.
const SourceID = "conflict-events"

const (
	defaultCountry = "South Sudan"
	pageLimit      = 5000
	dateLayout     = "2006-01-02"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Email      string
	Country    string
	WindowDays int
	HTTPClient *http.Client
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

// Client implements source.Collaborator for the conflict category.
type Client struct {
	opts Options
}

// NewClient creates an ACLED client. Country defaults to South Sudan.
func NewClient(opts Options) *Client {
	if opts.Country == "" {
		opts.Country = defaultCountry
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{opts: opts}
}

func (c *Client) ID() string                { return SourceID }
func (c *Client) Category() domain.Category { return domain.CategoryConflict }

// Fetch returns every event in the scoring window. Rows that cannot be parsed
// are dropped and logged; the rest of the batch is kept.
func (c *Client) Fetch(ctx context.Context) (domain.Payload, error) {
	now := c.opts.Clock.Now().UTC()
	from := now.AddDate(0, 0, -c.opts.WindowDays)
	params := url.Values{
		"key":              {c.opts.APIKey},
		"email":            {c.opts.Email},
		"country":          {c.opts.Country},
		"event_date":       {from.Format(dateLayout) + "|" + now.Format(dateLayout)},
		"event_date_where": {"BETWEEN"},
		"limit":            {strconv.Itoa(pageLimit)},
	}

	var resp readResponse
	if err := httputil.GetJSON(ctx, c.opts.HTTPClient, c.opts.BaseURL+"?"+params.Encode(), nil, &resp); err != nil {
		return domain.Payload{}, fmt.Errorf("fetch conflict events: %w", err)
	}
	if !resp.Success {
		msg := "request rejected"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return domain.Payload{}, fmt.Errorf("acled API error: %s", msg)
	}

	events := make([]domain.ConflictEvent, 0, len(resp.Data))
	for _, row := range resp.Data {
		e, err := row.toEvent()
		if err != nil {
			c.opts.Logger.Warn("dropping conflict event", "source", SourceID, "event_id", row.EventID, "error", err)
			continue
		}
		events = append(events, e)
	}
	return domain.ConflictPayload(domain.ConflictData{Events: events}), nil
}

// ACLED response types. Numeric fields arrive as strings.

type readResponse struct {
	Success bool       `json:"success"`
	Error   *apiError  `json:"error"`
	Data    []eventRow `json:"data"`
}

type apiError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type eventRow struct {
	EventID      string `json:"event_id_cnty"`
	EventDate    string `json:"event_date"`
	EventType    string `json:"event_type"`
	SubEventType string `json:"sub_event_type"`
	Actor1       string `json:"actor1"`
	Actor2       string `json:"actor2"`
	Location     string `json:"location"`
	Latitude     string `json:"latitude"`
	Longitude    string `json:"longitude"`
	Fatalities   string `json:"fatalities"`
	Notes        string `json:"notes"`
}

func (r eventRow) toEvent() (domain.ConflictEvent, error) {
	date, err := time.Parse(dateLayout, r.EventDate)
	if err != nil {
		return domain.ConflictEvent{}, fmt.Errorf("event_date: %w", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(r.Latitude), 64)
	if err != nil {
		return domain.ConflictEvent{}, fmt.Errorf("latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(r.Longitude), 64)
	if err != nil {
		return domain.ConflictEvent{}, fmt.Errorf("longitude: %w", err)
	}
	if !domain.ValidCoordinate(lat, lng) {
		return domain.ConflictEvent{}, fmt.Errorf("coordinate %.4f,%.4f out of range", lat, lng)
	}
	fatalities := 0
	if s := strings.TrimSpace(r.Fatalities); s != "" {
		if fatalities, err = strconv.Atoi(s); err != nil || fatalities < 0 {
			return domain.ConflictEvent{}, fmt.Errorf("fatalities %q invalid", r.Fatalities)
		}
	}

	id := r.EventID
	if id == "" {
		id = domain.StableID("acled", r.EventDate, r.Location, r.Latitude, r.Longitude, r.EventType)
	}
	var actors []string
	for _, a := range []string{r.Actor1, r.Actor2} {
		if a != "" {
			actors = append(actors, a)
		}
	}
	return domain.ConflictEvent{
		ID:         id,
		Date:       date,
		Type:       r.EventType,
		SubType:    r.SubEventType,
		Location:   r.Location,
		Lat:        lat,
		Lng:        lng,
		Fatalities: fatalities,
		Actors:     actors,
		Source:     "ACLED",
		Notes:      r.Notes,
	}, nil
}
