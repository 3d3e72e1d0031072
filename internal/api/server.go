package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"leaguesim/internal/cache"
	"leaguesim/internal/config"
	"leaguesim/internal/league"
	"leaguesim/internal/metrics"
	"leaguesim/internal/phase"
	"leaguesim/internal/random"
	"leaguesim/internal/realtime"
	"leaguesim/internal/sim"
	"leaguesim/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Deps are the engine services the server fronts. Cache, Hub and Metrics
// may be nil.
type Deps struct {
	DB      store.Driver
	Phases  *phase.Machine
	Driver  *sim.Driver
	Hub     *realtime.Hub
	Cache   *cache.Cache
	Metrics *metrics.Metrics
	Events  league.EventLogger
	Rand    *random.Source
}

type Server struct {
	cfg     config.APIConfig
	log     *slog.Logger
	db      store.Driver
	phases  *phase.Machine
	driver  *sim.Driver
	hub     *realtime.Hub
	cache   *cache.Cache
	metrics *metrics.Metrics
	events  league.EventLogger
	rng     *random.Source
	mux     *chi.Mux

	replayMu sync.Mutex
	replays  map[string]sim.Summary

	stopInvalidate func()
}

func New(cfg config.APIConfig, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Rand == nil {
		deps.Rand = random.NewFromTime()
	}
	s := &Server{
		cfg:     cfg,
		log:     logger,
		db:      deps.DB,
		phases:  deps.Phases,
		driver:  deps.Driver,
		hub:     deps.Hub,
		cache:   deps.Cache,
		metrics: deps.Metrics,
		events:  deps.Events,
		rng:     deps.Rand,
		mux:     chi.NewRouter(),
		replays: make(map[string]sim.Summary),
	}
	s.routes()
	s.invalidateOnUpdates()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Close stops the cache invalidation listener.
func (s *Server) Close() {
	if s.stopInvalidate != nil {
		s.stopInvalidate()
	}
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// long running: play and phase changes end with the request or Abort
		r.Post("/play", s.handlePlay)
		r.Post("/phase", s.handlePhase)
		r.Post("/phase/abort", s.handleAbort)
		r.Get("/updates", s.handleUpdates)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/league", s.handleLeague)
			r.Put("/attributes", s.handleAttributes)
			r.Get("/standings", s.handleStandings)
			r.Get("/teams/{tid}/roster", s.handleRoster)
			r.Get("/players/search", s.handleSearch)
			r.Get("/events", s.handleEvents)

			r.Post("/negotiations", s.handleNegotiationStart)
			r.Post("/negotiations/{pid}/offer", s.handleNegotiationOffer)
			r.Post("/negotiations/{pid}/accept", s.handleNegotiationAccept)
			r.Delete("/negotiations/{pid}", s.handleNegotiationCancel)

			r.Post("/draft/auto", s.handleDraftAuto)
			r.Post("/draft/pick", s.handleDraftPick)
		})
	})
}

// invalidateOnUpdates drops cached views whenever any process reports
// stale data through the hub.
func (s *Server) invalidateOnUpdates() {
	if s.hub == nil || s.cache == nil {
		return
	}
	ch, unsubscribe := s.hub.Subscribe(64)
	s.stopInvalidate = unsubscribe
	go func() {
		for range ch {
			s.cache.Flush(context.Background())
		}
	}()
}

// read runs fn against a read-only league context.
func (s *Server) read(ctx context.Context, stores []string, fn func(c *league.Context) error) error {
	return store.Run(ctx, s.db, store.ReadOnly, stores, func(tx store.Tx) error {
		c, err := league.Load(ctx, tx, s.rng, nil, s.log)
		if err != nil {
			return err
		}
		return fn(c)
	})
}

// write runs fn in one read-write transaction over every store and tells
// views which data went stale.
func (s *Server) write(ctx context.Context, tags []string, fn func(c *league.Context) error) error {
	if s.phases != nil && s.phases.InProgress() {
		return league.ErrPhaseChangeInProgress
	}
	err := store.Run(ctx, s.db, store.ReadWrite, league.AllStores, func(tx store.Tx) error {
		c, err := league.Load(ctx, tx, s.rng, s.events, s.log)
		if err != nil {
			return err
		}
		return fn(c)
	})
	if err != nil {
		return err
	}
	s.cache.Flush(ctx)
	s.hub.Publish(realtime.Update{Tags: tags})
	return nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	var v *league.ValidationError
	switch {
	case errors.As(err, &v):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": v.Error(), "messages": v.Messages})
	case errors.Is(err, league.ErrPhaseChangeInProgress), errors.Is(err, league.ErrGamesInProgress),
		errors.Is(err, league.ErrNegotiationExists), errors.Is(err, league.ErrLeagueExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, league.ErrIllegalTransition), errors.Is(err, league.ErrWrongPhase):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, league.ErrUnknownPhase), errors.Is(err, league.ErrInvalidAttribute),
		errors.Is(err, league.ErrInvalidContract), errors.Is(err, league.ErrNotFreeAgent),
		errors.Is(err, league.ErrNotUserPick), errors.Is(err, league.ErrNotInDraftPool),
		errors.Is(err, sim.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, league.ErrRosterFull), errors.Is(err, league.ErrOverCap), errors.Is(err, league.ErrPlayerRefused):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, league.ErrNoLeague), errors.Is(err, league.ErrTeamNotFound),
		errors.Is(err, league.ErrPlayerNotFound), errors.Is(err, league.ErrNegotiationNotFound),
		errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func intParam(r *http.Request, name string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(chi.URLParam(r, name)))
}

// intQuery returns the query value or def when absent.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
