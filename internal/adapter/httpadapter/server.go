// Package httpadapter serves health, metrics and the read-only cache API.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/0verdr1v3/bovine/internal/cache"
	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/0verdr1v3/bovine/internal/scheduler"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresher starts cycles on demand and reports scheduler state.
type Refresher interface {
	TriggerNow() scheduler.Trigger
	Status() scheduler.Status
}

var readableCollections = []string{
	domain.CollectionSources,
	domain.CollectionHerds,
	domain.CollectionZones,
	domain.CollectionNews,
	domain.CollectionSnapshots,
	domain.CollectionPressure,
	domain.CollectionStats,
	domain.CollectionCycles,
	domain.CollectionWeatherHistory,
	domain.CollectionReference,
	domain.CollectionManifests,
}

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 366
)

// Server exposes health, readiness, metrics and the cache API.
type Server struct {
	httpServer *http.Server
	store      cache.Store
	refresher  Refresher
	clock      clockwork.Clock
	logger     *slog.Logger
}

// Options configure a Server.
type Options struct {
	Addr        string
	CORSOrigins []string
	Ready       sharedobs.ReadinessChecker
	Store       cache.Store
	Refresher   Refresher
	Clock       clockwork.Clock
}

// NewServer creates the HTTP server and its routes.
func NewServer(opts Options, logger *slog.Logger) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	s := &Server{
		store:     opts.Store,
		refresher: opts.Refresher,
		clock:     opts.Clock,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(opts.Ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/cache/{collection}", s.handleCollection)
		api.Get("/cache/{collection}/{key}", s.handleDocument)
		api.Get("/herds", s.collection(domain.CollectionHerds))
		api.Get("/zones", s.collection(domain.CollectionZones))
		api.Get("/news", s.collection(domain.CollectionNews))
		api.Get("/sources", s.collection(domain.CollectionSources))
		api.Get("/pressure", s.document(domain.CollectionPressure, domain.KeyCurrent))
		api.Get("/stats", s.document(domain.CollectionStats, domain.KeyCurrent))
		api.Get("/historical/weather", s.handleWeatherHistory)
		api.Get("/water-sources", s.document(domain.CollectionReference, domain.KeyWaterSources))
		api.Get("/grazing-regions", s.document(domain.CollectionReference, domain.KeyGrazingRegions))
		api.Get("/corridors", s.document(domain.CollectionReference, domain.KeyCorridors))
		api.Get("/ndvi-zones", s.document(domain.CollectionReference, domain.KeyNDVIZones))
		api.Get("/historical-conflicts", s.document(domain.CollectionReference, domain.KeyHistoricalConflicts))
		api.Get("/status", s.handleStatus)
		api.Post("/refresh", s.handleRefresh)
	})

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type collectionResponse struct {
	Collection   string              `json:"collection"`
	Documents    []json.RawMessage   `json:"documents"`
	Keys         []string            `json:"keys"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Status       domain.SourceStatus `json:"status"`
	StaleSeconds int64               `json:"stale_seconds"`
}

type documentResponse struct {
	Collection   string              `json:"collection"`
	Key          string              `json:"key"`
	Document     json.RawMessage     `json:"document"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Status       domain.SourceStatus `json:"status"`
	StaleSeconds int64               `json:"stale_seconds"`
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	s.collection(chi.URLParam(r, "collection"))(w, r)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	s.document(chi.URLParam(r, "collection"), chi.URLParam(r, "key"))(w, r)
}

func (s *Server) collection(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !slices.Contains(readableCollections, name) {
			writeError(w, http.StatusNotFound, "unknown collection "+name)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		view, err := cache.ReadCollection(ctx, s.store, name)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		resp := collectionResponse{
			Collection:   name,
			Documents:    make([]json.RawMessage, 0, len(view.Entries)),
			Keys:         make([]string, 0, len(view.Entries)),
			UpdatedAt:    view.UpdatedAt,
			Status:       view.Status,
			StaleSeconds: s.staleSeconds(view.UpdatedAt),
		}
		for _, e := range view.Entries {
			resp.Documents = append(resp.Documents, e.Document)
			resp.Keys = append(resp.Keys, e.Key)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) document(collection, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !slices.Contains(readableCollections, collection) {
			writeError(w, http.StatusNotFound, "unknown collection "+collection)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		e, err := s.store.Get(ctx, collection, key)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, documentResponse{
			Collection:   collection,
			Key:          key,
			Document:     e.Document,
			UpdatedAt:    e.UpdatedAt,
			Status:       e.Status,
			StaleSeconds: s.staleSeconds(e.UpdatedAt),
		})
	}
}

// handleWeatherHistory lists recorded forecasts newest first, limited by the
// optional days parameter.
func (s *Server) handleWeatherHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryDays {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("days must be between 1 and %d", maxHistoryDays))
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	view, err := cache.ReadCollection(ctx, s.store, domain.CollectionWeatherHistory)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	entries := slices.Clone(view.Entries)
	slices.Reverse(entries)
	entries = entries[:min(limit, len(entries))]

	resp := collectionResponse{
		Collection:   domain.CollectionWeatherHistory,
		Documents:    make([]json.RawMessage, 0, len(entries)),
		Keys:         make([]string, 0, len(entries)),
		UpdatedAt:    view.UpdatedAt,
		Status:       view.Status,
		StaleSeconds: s.staleSeconds(view.UpdatedAt),
	}
	for _, e := range entries {
		resp.Documents = append(resp.Documents, e.Document)
		resp.Keys = append(resp.Keys, e.Key)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.refresher.Status())
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	t := s.refresher.TriggerNow()
	if t.Stopped {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "shutting_down"})
		return
	}
	if !t.Started {
		writeJSON(w, http.StatusOK, map[string]any{"status": "already_running", "started_at": t.StartedAt})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "started_at": t.StartedAt})
}

func (s *Server) staleSeconds(updated time.Time) int64 {
	e := domain.CacheEntry{UpdatedAt: updated}
	return int64(math.Floor(e.Staleness(s.clock.Now()).Seconds()))
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Warn("cache read failed", "error", err)
	writeError(w, http.StatusServiceUnavailable, domain.ErrCacheUnavailable.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}
