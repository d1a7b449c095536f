// Package pipeline runs one fetch-fuse-cache cycle: fetch every source, score
// conflict zones, fuse herd estimates, write every collection, detect changes
// and publish them. Derived collections are replaced whole each cycle;
// weather history accumulates one forecast per day.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/0verdr1v3/bovine/internal/cache"
	"github.com/0verdr1v3/bovine/internal/change"
	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/0verdr1v3/bovine/internal/fusion"
	"github.com/0verdr1v3/bovine/internal/observability"
	"github.com/0verdr1v3/bovine/internal/risk"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Fetcher runs every collaborator once. prior is the last persisted result
// per source id.
type Fetcher interface {
	Run(ctx context.Context, prior map[string]domain.SourceResult) []domain.SourceResult
}

// ChangeSink delivers change events to downstream consumers.
type ChangeSink interface {
	Publish(ctx context.Context, events []domain.ChangeEvent) error
}

// Params bundles the tunables of every stage.
type Params struct {
	Risk   risk.Params
	Fusion fusion.Params
	Change change.Params
}

// DefaultParams returns the production defaults of every stage.
func DefaultParams() Params {
	return Params{
		Risk:   risk.DefaultParams(),
		Fusion: fusion.DefaultParams(),
		Change: change.DefaultParams(),
	}
}

// Report summarises a completed cycle.
type Report struct {
	CycleID   string                 `json:"cycle_id"`
	StartedAt time.Time              `json:"started_at"`
	Sources   []domain.SourceResult  `json:"sources"`
	Herds     []domain.HerdEstimate  `json:"herds"`
	Zones     []domain.ConflictZone  `json:"zones"`
	Pressure  []domain.PressureEntry `json:"pressure"`
	Stats     domain.Stats           `json:"stats"`
	Changes   []domain.ChangeEvent   `json:"changes"`
	Skipped   []string               `json:"skipped_writes,omitempty"`
}

// Pipeline orchestrates a cycle.
type Pipeline struct {
	fetcher Fetcher
	store   cache.Store
	sink    ChangeSink
	params  Params
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// New creates a Pipeline.
func New(f Fetcher, store cache.Store, sink ChangeSink, params Params, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		fetcher: f,
		store:   store,
		sink:    sink,
		params:  params,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a cycle has committed to the cache.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if !p.ready.Load() {
		return errors.New("no cycle has completed yet")
	}
	return p.store.Ping(ctx)
}

// RunCycle executes one cycle. It fails only when the cache is unreachable
// or ctx is cancelled; every per-source and per-collection failure is
// absorbed and reported.
func (p *Pipeline) RunCycle(ctx context.Context) (Report, error) {
	started := p.clock.Now().UTC()
	report := Report{CycleID: uuid.NewString(), StartedAt: started}
	logger := p.logger.With("cycle_id", report.CycleID)

	if err := p.waitForCache(ctx); err != nil {
		return report, err
	}

	prior := p.priorSources(ctx, logger)
	prev := p.previousSnapshot(ctx, logger)

	results := p.fetcher.Run(ctx, prior)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	report.Sources = results

	asOf := p.clock.Now().UTC()
	in := fusion.InputsFrom(results)
	var named []domain.NamedZone
	if in.Census != nil {
		named = in.Census.NamedZones
	}

	events := conflictEvents(results)
	zones := risk.Score(events, prev.Zones, named, asOf, p.params.Risk)
	herds, err := fusion.Estimate(in, zones, asOf, p.params.Fusion)
	herdsFresh := err == nil
	if err != nil {
		logger.Error("herd fusion failed, keeping previous estimates", "error", err)
		herds = prev.Herds
	}
	zones = risk.AnnotateHerds(zones, herds)
	news := collectNews(in.News)

	report.Herds = herds
	report.Zones = zones
	report.Pressure = fusion.PressureList(herds)
	report.Stats = fusion.Summarize(herds, zones, in.Weather, degradedSources(results), asOf)

	curr := change.Snapshot{Herds: herds, Zones: zones, News: news}
	report.Changes = change.Diff(prev, curr, p.params.Change)

	w := &writer{store: p.store, at: p.clock.Now().UTC(), logger: logger, metrics: p.metrics}
	w.sources(ctx, results)
	herdStatus := derivedStatus(results, domain.CategoryCensus, domain.CategoryVegetation,
		domain.CategoryWeather, domain.CategoryWater, domain.CategoryFire)
	if herdsFresh {
		w.collection(ctx, domain.CollectionHerds, herdStatus, keyed(herds, func(h domain.HerdEstimate) string { return h.ID }))
	}
	zoneStatus := derivedStatus(results, domain.CategoryConflict)
	w.collection(ctx, domain.CollectionZones, zoneStatus, keyed(zones, func(z domain.ConflictZone) string { return z.ID }))
	newsStatus := derivedStatus(results, domain.CategoryNews)
	w.collection(ctx, domain.CollectionNews, newsStatus, keyed(news, func(a domain.Article) string { return a.ID }))
	w.collection(ctx, domain.CollectionPressure, herdStatus, map[string]any{domain.KeyCurrent: report.Pressure})
	w.collection(ctx, domain.CollectionStats, herdStatus, map[string]any{domain.KeyCurrent: report.Stats})
	w.collection(ctx, domain.CollectionSnapshots, domain.WorstStatus(herdStatus, zoneStatus), map[string]any{
		domain.CollectionHerds: herds,
		domain.CollectionZones: zones,
		domain.CollectionNews:  news,
	})
	if views, ok := referenceViews(in, events); ok {
		w.collection(ctx, domain.CollectionReference, derivedStatus(results, domain.CategoryCensus,
			domain.CategoryVegetation, domain.CategoryWater, domain.CategoryConflict), views)
	}
	w.append(ctx, domain.CollectionWeatherHistory, domain.StatusConnected, weatherHistory(results))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	report.Skipped = w.skipped

	p.publish(ctx, logger, report.Changes)

	record := domain.CycleRecord{
		CycleID:       report.CycleID,
		StartedAt:     started,
		FinishedAt:    p.clock.Now().UTC(),
		SourceStatus:  make(map[string]string, len(results)),
		SkippedWrites: report.Skipped,
		Herds:         len(herds),
		Zones:         len(zones),
		Changes:       len(report.Changes),
	}
	for _, r := range results {
		record.SourceStatus[r.SourceID] = string(r.Status)
	}
	w.collection(ctx, domain.CollectionCycles, domain.StatusConnected, map[string]any{domain.KeyLatest: record})

	p.observe(herds, zones)
	if len(w.skipped) < len(w.attempted) {
		p.ready.Store(true)
	}
	logger.Info("cycle complete",
		"herds", len(herds),
		"zones", len(zones),
		"changes", len(report.Changes),
		"skipped_writes", report.Skipped,
		"duration", p.clock.Since(started),
	)
	return report, nil
}

// waitForCache pings the store with a short exponential backoff.
func (p *Pipeline) waitForCache(ctx context.Context) error {
	backoff := 200 * time.Millisecond
	maxBackoff := 2 * time.Second

	var err error
	for attempt := range 3 {
		if err = p.store.Ping(ctx); err == nil {
			return nil
		}
		p.logger.Warn("cache ping failed", "attempt", attempt+1, "error", err)
		if attempt == 2 {
			break
		}
		if !sleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
	if !errors.Is(err, domain.ErrCacheUnavailable) {
		err = fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return err
}

func (p *Pipeline) priorSources(ctx context.Context, logger *slog.Logger) map[string]domain.SourceResult {
	prior := make(map[string]domain.SourceResult)
	entries, err := p.store.List(ctx, domain.CollectionSources)
	if err != nil {
		logger.Warn("read prior sources failed", "error", err)
		return prior
	}
	for _, e := range entries {
		var r domain.SourceResult
		if err := e.Decode(&r); err != nil {
			logger.Warn("decode prior source failed", "source", e.Key, "error", err)
			continue
		}
		prior[r.SourceID] = r
	}
	return prior
}

func (p *Pipeline) previousSnapshot(ctx context.Context, logger *slog.Logger) change.Snapshot {
	var s change.Snapshot
	targets := map[string]any{
		domain.CollectionHerds: &s.Herds,
		domain.CollectionZones: &s.Zones,
		domain.CollectionNews:  &s.News,
	}
	for key, dst := range targets {
		if _, err := cache.GetInto(ctx, p.store, domain.CollectionSnapshots, key, dst); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("read previous snapshot failed", "snapshot", key, "error", err)
		}
	}
	return s
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, events []domain.ChangeEvent) {
	for _, e := range events {
		p.metrics.ChangeEvents.WithLabelValues(e.Category, string(e.Kind)).Inc()
	}
	if len(events) == 0 || p.sink == nil {
		return
	}
	if err := p.sink.Publish(ctx, events); err != nil {
		p.metrics.AlertFailures.Inc()
		logger.Error("publish change events failed", "events", len(events), "error", err)
	}
}

func (p *Pipeline) observe(herds []domain.HerdEstimate, zones []domain.ConflictZone) {
	p.metrics.HerdsEstimated.Set(float64(len(herds)))
	counts := map[domain.RiskLevel]int{}
	for _, z := range zones {
		counts[z.RiskLevel]++
	}
	for _, level := range []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh, domain.RiskCritical} {
		p.metrics.ZonesScored.WithLabelValues(string(level)).Set(float64(counts[level]))
	}
}

func conflictEvents(results []domain.SourceResult) []domain.ConflictEvent {
	var events []domain.ConflictEvent
	for _, r := range results {
		if r.Usable() && r.Payload.Conflict != nil {
			events = append(events, r.Payload.Conflict.Events...)
		}
	}
	return events
}

// collectNews dedupes articles by id, newest first.
func collectNews(articles []domain.Article) []domain.Article {
	seen := make(map[string]bool, len(articles))
	out := make([]domain.Article, 0, len(articles))
	for _, a := range articles {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b domain.Article) int {
		return cmp.Or(b.PublishedAt.Compare(a.PublishedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func degradedSources(results []domain.SourceResult) []string {
	var out []string
	for _, r := range results {
		if r.Status.Degraded() {
			out = append(out, r.SourceID)
		}
	}
	return out
}

// derivedStatus is the worst status of the sources feeding a derived
// collection. A failed input only makes the output cached, since the output
// was still produced.
func derivedStatus(results []domain.SourceResult, categories ...domain.Category) domain.SourceStatus {
	status := domain.StatusConnected
	for _, r := range results {
		if !slices.Contains(categories, r.Category) {
			continue
		}
		s := r.Status
		if s == domain.StatusFailed {
			s = domain.StatusCached
		}
		status = domain.WorstStatus(status, s)
	}
	return status
}

func keyed[T any](items []T, key func(T) string) map[string]any {
	out := make(map[string]any, len(items))
	for _, it := range items {
		out[key(it)] = it
	}
	return out
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
