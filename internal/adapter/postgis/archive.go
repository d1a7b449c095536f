// Package postgis reads historical conflict events from a PostGIS archive.
package postgis

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/0verdr1v3/bovine/internal/config"
	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
)

// SourceID is the cache key of the archive source.
const SourceID = "conflict-archive"

const eventsQuery = `
	SELECT
		event_id,
		event_date,
		event_type,
		sub_event_type,
		location,
		ST_Y(geom) AS lat,
		ST_X(geom) AS lng,
		fatalities,
		actors,
		ethnicities,
		source,
		notes
	FROM conflict_events
	WHERE event_date >= $1
	AND ST_Intersects(geom, ST_MakeEnvelope($2, $3, $4, $5, 4326))
	ORDER BY event_date DESC, event_id`

// Archive implements source.Collaborator for the conflict category.
type Archive struct {
	db         *sqlx.DB
	bbox       config.BBox
	windowDays int
	clock      clockwork.Clock
	logger     *slog.Logger
}

// Open connects to the archive and verifies the connection.
func Open(ctx context.Context, connStr string, bbox config.BBox, windowDays int, clock clockwork.Clock, logger *slog.Logger) (*Archive, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connect conflict archive: %w", err)
	}
	return &Archive{db: db, bbox: bbox, windowDays: windowDays, clock: clock, logger: logger}, nil
}

func (a *Archive) ID() string                { return SourceID }
func (a *Archive) Category() domain.Category { return domain.CategoryConflict }

// Fetch returns archived events inside the region and the scoring window.
func (a *Archive) Fetch(ctx context.Context) (domain.Payload, error) {
	since := a.clock.Now().UTC().AddDate(0, 0, -a.windowDays)

	var rows []eventRow
	err := a.db.SelectContext(ctx, &rows, eventsQuery,
		since,
		a.bbox.MinLng, a.bbox.MinLat, a.bbox.MaxLng, a.bbox.MaxLat,
	)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Payload{}, fmt.Errorf("%w: query conflict archive: %w", domain.ErrSourceTimeout, err)
		}
		return domain.Payload{}, fmt.Errorf("query conflict archive: %w", err)
	}

	events := make([]domain.ConflictEvent, 0, len(rows))
	for _, r := range rows {
		e := r.toEvent()
		if !domain.ValidCoordinate(e.Lat, e.Lng) || e.Fatalities < 0 {
			a.logger.Warn("dropping archived event", "source", SourceID, "event_id", e.ID)
			continue
		}
		events = append(events, e)
	}
	return domain.ConflictPayload(domain.ConflictData{Events: events}), nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

type eventRow struct {
	EventID      string         `db:"event_id"`
	EventDate    time.Time      `db:"event_date"`
	EventType    string         `db:"event_type"`
	SubEventType sql.NullString `db:"sub_event_type"`
	Location     sql.NullString `db:"location"`
	Lat          float64        `db:"lat"`
	Lng          float64        `db:"lng"`
	Fatalities   int            `db:"fatalities"`
	Actors       pq.StringArray `db:"actors"`
	Ethnicities  pq.StringArray `db:"ethnicities"`
	Source       sql.NullString `db:"source"`
	Notes        sql.NullString `db:"notes"`
}

func (r eventRow) toEvent() domain.ConflictEvent {
	source := r.Source.String
	if source == "" {
		source = "archive"
	}
	return domain.ConflictEvent{
		ID:          r.EventID,
		Date:        r.EventDate.UTC(),
		Type:        r.EventType,
		SubType:     r.SubEventType.String,
		Location:    r.Location.String,
		Lat:         r.Lat,
		Lng:         r.Lng,
		Fatalities:  r.Fatalities,
		Actors:      []string(r.Actors),
		Ethnicities: []string(r.Ethnicities),
		Source:      source,
		Notes:       r.Notes.String,
	}
}
