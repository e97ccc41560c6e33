// internal/httpserver/server.go
//
// HTTP server wiring for the Pairs backend.
// Responsibilities:
//   - Router + middleware (access log, request IDs, panic recovery, timeouts, JSON, CORS).
//   - Public endpoints: "/", "/health", "/tokens", "/leaderboard".
//   - Game endpoints (optional auth): POST /game/new, POST /game/select,
//     POST /game/restart, GET /game/{id}, GET /game/{id}/events (websocket).
//   - Auth + profile/stat endpoints: /auth/*, /stats/me, /games/mine.
//   - Deal of the day: /daily/new, /daily/leaderboard (when a daily store is set).
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Optional auth decorates requests with user context when a valid token is present;
//     guests get an anonymous cookie so their history can be claimed later.
//   - The websocket route sits outside the request timeout.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/pairs/apps/go-server/internal/daily"
	"github.com/robalobadob/pairs/apps/go-server/internal/game"
	"github.com/robalobadob/pairs/apps/go-server/internal/history"
	"github.com/robalobadob/pairs/apps/go-server/internal/notify"
	"github.com/robalobadob/pairs/apps/go-server/internal/store"
	"github.com/robalobadob/pairs/apps/go-server/internal/tokens"
)

// Config carries the server settings resolved by main.
type Config struct {
	Tokens          *tokens.Catalog
	DefaultAttempts int
	ResolveDelay    time.Duration
	Scheduler       game.Scheduler // nil uses real timers

	JWTSecret    string
	JWTExpiry    time.Duration
	CookieName   string
	ClientOrigin string
	Production   bool

	Daily     *daily.Store // nil disables /daily
	DailySalt string

	FinishedTTL time.Duration // finished games stay readable this long
	IdleTTL     time.Duration // untouched unfinished games are dropped after this

	RequestTimeout time.Duration
	Now            func() time.Time
}

func (c *Config) setDefaults() {
	if c.ResolveDelay <= 0 {
		c.ResolveDelay = game.DefaultResolveDelay
	}
	if c.Scheduler == nil {
		c.Scheduler = game.TimerScheduler{}
	}
	if c.JWTSecret == "" {
		c.JWTSecret = "dev_secret_change_me"
	}
	if c.JWTExpiry <= 0 {
		c.JWTExpiry = 14 * 24 * time.Hour
	}
	if c.CookieName == "" {
		c.CookieName = "pairs_token"
	}
	if c.ClientOrigin == "" {
		c.ClientOrigin = "http://localhost:5173"
	}
	if c.DailySalt == "" {
		c.DailySalt = "local_dev_salt"
	}
	if c.FinishedTTL <= 0 {
		c.FinishedTTL = 5 * time.Minute
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = time.Hour
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Server bundles router, live game store, event hub and history database.
type Server struct {
	r     *chi.Mux
	cfg   Config
	store store.Store
	hist  *history.Store
	hub   *notify.Hub
	daily *dailyServer

	mu        sync.Mutex
	owners    map[string]owner     // game ID → who plays it
	seen      map[string]time.Time // game ID → last request that touched it
	lastSweep time.Time
}

// New constructs a Server, installs middleware, and registers routes.
func New(st store.Store, hist *history.Store, cfg Config) *Server {
	cfg.setDefaults()
	s := &Server{
		r:      chi.NewRouter(),
		cfg:    cfg,
		store:  st,
		hist:   hist,
		hub:    notify.NewHub(notify.DefaultBuffer),
		owners: make(map[string]owner),
		seen:   make(map[string]time.Time),
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(accessLog)       // one zerolog line per request
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(s.cors)          // credentials-friendly CORS

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.RequestTimeout)) // bound handler time
		r.Use(jsonContentType)                   // default JSON responses

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"service":"pairs-go","endpoints":["/health","/tokens","POST /game/new","POST /game/select","POST /game/restart","GET /game/{id}","GET /game/{id}/events","/leaderboard","/daily/new","/daily/leaderboard","/auth/*"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "games": s.store.Len()})
		})
		r.Get("/tokens", s.handleTokens)
		r.Get("/leaderboard", s.handleLeaderboard)

		// Game endpoints: OPTIONAL AUTH (guests can play)
		r.With(s.withOptionalAuth()).Post("/game/new", s.handleNewGame)
		r.With(s.withOptionalAuth()).Post("/game/select", s.handleSelect)
		r.With(s.withOptionalAuth()).Post("/game/restart", s.handleRestart)
		r.Get("/game/{id}", s.handleGetGame)

		// Auth + profile/stats
		s.mountAuthRoutes(r)

		if cfg.Daily != nil {
			s.mountDaily(r)
		}

		// JSON 404 for easier debugging
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
		})
	})

	// Long-lived: no timeout, no JSON content type.
	s.r.Get("/game/{id}/events", s.handleEvents)

	return s
}

// Run serves HTTP on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// originPatterns turns the client origin into a websocket origin pattern.
func (s *Server) originPatterns() []string {
	u, err := url.Parse(s.cfg.ClientOrigin)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// httpError writes {"error": code}.
func httpError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
