// internal/httpserver/routes_daily.go
//
// HTTP routes for the "deal of the day" mode.
// Exposes two endpoints under /daily:
//   - POST /daily/new         → start today's deal (creates or reuses the player's game)
//   - GET  /daily/leaderboard → top 20 results for today (or ?date=YYYY-MM-DD)
//
// Everyone gets the same shuffle for a UTC date, derived from date + salt.
// Each player can finish it once per day (enforced by DB + in-memory session).
// Play itself goes through the regular /game/select endpoint; daily games
// cannot be restarted.

package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/pairs/apps/go-server/internal/daily"
	"github.com/robalobadob/pairs/apps/go-server/internal/game"
)

// dailyServer wraps dependencies for /daily endpoints.
type dailyServer struct {
	srv   *Server
	store *daily.Store
	salt  string

	mu       sync.Mutex
	sessions map[string]string      // playerID|date → game ID
	games    map[string]dailyEntry // game ID → player and date
}

type dailyEntry struct {
	PlayerID string
	Date     string
}

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	s.daily = &dailyServer{
		srv:      s,
		store:    s.cfg.Daily,
		salt:     s.cfg.DailySalt,
		sessions: make(map[string]string),
		games:    make(map[string]dailyEntry),
	}
	r.Route("/daily", func(r chi.Router) {
		r.With(s.withOptionalAuth()).Post("/new", s.daily.handleNew)
		r.Get("/leaderboard", s.daily.handleLeaderboard)
	})
}

// isDaily reports whether id is a deal-of-the-day game.
func (d *dailyServer) isDaily(id string) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.games[id]
	return ok
}

// forget drops the session of an evicted game.
func (d *dailyServer) forget(id string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.games[id]
	if !ok {
		return
	}
	delete(d.games, id)
	if key := e.PlayerID + "|" + e.Date; d.sessions[key] == id {
		delete(d.sessions, key)
	}
}

// candidates lists the IDs that may hold own's daily play: the account and,
// when signed in, the guest cookie it may have played under before.
func candidates(r *http.Request, own owner) []string {
	ids := []string{own.playerID()}
	if own.UserID != "" {
		if c, err := r.Cookie(anonCookieName); err == nil && c.Value != "" {
			ids = append(ids, c.Value)
		}
	}
	return ids
}

// dailyNewRes is returned by /daily/new.
type dailyNewRes struct {
	GameID string         `json:"gameId,omitempty"`
	Date   string         `json:"date"`
	Played bool           `json:"played"`
	State  *game.Snapshot `json:"state,omitempty"`
}

// handleNew creates or reuses today's game for the caller.
// - If the player (or the guest they were) has a DB row for today → Played=true.
// - Otherwise reuse the in-memory session or deal a fresh one.
func (d *dailyServer) handleNew(w http.ResponseWriter, r *http.Request) {
	own := d.srv.ownerOf(w, r)
	pid := own.playerID()
	now := d.srv.cfg.Now()
	date := daily.DateKey(now)
	ids := candidates(r, own)

	for _, p := range ids {
		played, err := d.store.AlreadyPlayed(r.Context(), p, date)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if played {
			writeJSON(w, http.StatusOK, dailyNewRes{Date: date, Played: true})
			return
		}
	}

	for _, p := range ids {
		d.mu.Lock()
		id, ok := d.sessions[p+"|"+date]
		d.mu.Unlock()
		if !ok {
			continue
		}
		if g, err := d.srv.store.Get(r.Context(), id); err == nil {
			d.srv.touch(id)
			snap := g.Snapshot()
			writeJSON(w, http.StatusOK, dailyNewRes{GameID: id, Date: date, State: &snap})
			return
		}
	}

	d.srv.sweepIdle(r.Context())
	id := uuid.NewString()
	g, err := game.New(id, game.Options{
		Tokens:       d.srv.cfg.Tokens.All(),
		Rand:         daily.Rand(now, d.salt),
		ResolveDelay: d.srv.cfg.ResolveDelay,
		Scheduler:    d.srv.cfg.Scheduler,
		OnChange:     func(snap game.Snapshot) { d.srv.hub.Publish(snap) },
		OnFinish: func(res game.Result) {
			d.recordResult(pid, date, res)
			d.srv.finishGame(res)
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("new daily game")
		httpError(w, http.StatusInternalServerError, "new_game_failed")
		return
	}
	if err := d.srv.store.Save(r.Context(), g); err != nil {
		httpError(w, http.StatusInternalServerError, "save_failed")
		return
	}

	d.mu.Lock()
	d.sessions[pid+"|"+date] = id
	d.games[id] = dailyEntry{PlayerID: pid, Date: date}
	d.mu.Unlock()
	d.srv.track(id, own)

	snap := g.Snapshot()
	d.srv.recordStart(r.Context(), snap, own)
	log.Info().Str("gameId", id).Str("date", date).Msg("daily game started")

	writeJSON(w, http.StatusOK, dailyNewRes{GameID: id, Date: date, State: &snap})
}

// recordResult persists a won daily game under whoever owns it now, which is
// the account when a guest signed in mid-game. It runs on the resolution timer.
func (d *dailyServer) recordResult(playerID, date string, res game.Result) {
	if res.Phase != game.PhaseWon {
		return
	}
	if own, ok := d.srv.ownerFor(res.ID); ok {
		playerID = own.playerID()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := d.store.InsertResult(ctx, daily.Result{
		PlayerID:  playerID,
		Date:      date,
		GameID:    res.ID,
		Moves:     res.Moves,
		ElapsedMs: res.Elapsed().Milliseconds(),
	})
	if err != nil {
		log.Warn().Err(err).Str("gameId", res.ID).Msg("insert daily result")
	}
}

// dailyLBRes is returned by /daily/leaderboard.
type dailyLBRes struct {
	Date string         `json:"date"`
	Top  []daily.Result `json:"top"`
}

// handleLeaderboard returns the leaderboard for the given date (default today).
func (d *dailyServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = daily.DateKey(d.srv.cfg.Now())
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		httpError(w, http.StatusBadRequest, "bad_date")
		return
	}
	rows, err := d.store.Leaderboard(r.Context(), date, 20)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "db_error")
		return
	}
	for i := range rows {
		rows[i].PlayerID = "" // guest IDs double as credentials for claiming
	}
	writeJSON(w, http.StatusOK, dailyLBRes{Date: date, Top: rows})
}
