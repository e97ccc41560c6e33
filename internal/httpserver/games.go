// internal/httpserver/games.go
//
// Game routes: create, select, restart, read, and the history hooks fired by
// the match engine.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/pairs/apps/go-server/internal/game"
	"github.com/robalobadob/pairs/apps/go-server/internal/history"
	"github.com/robalobadob/pairs/apps/go-server/internal/tokens"
)

// newGameReq/Res payloads for POST /game/new.
type newGameReq struct {
	Pairs    int  `json:"pairs"`    // number of distinct tokens; 0 = whole catalog
	Attempts *int `json:"attempts"` // mismatches allowed; 0 = unlimited; nil = server default
}
type newGameRes struct {
	GameID string        `json:"gameId"`
	State  game.Snapshot `json:"state"`
}

// stateRes wraps a snapshot for select/restart/get.
type stateRes struct {
	State game.Snapshot `json:"state"`
}

// handleNewGame deals a new game and records its start.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, "bad_json")
		return
	}
	attempts := s.cfg.DefaultAttempts
	if req.Attempts != nil {
		attempts = *req.Attempts
	}
	if attempts < 0 {
		httpError(w, http.StatusBadRequest, "attempts_negative")
		return
	}
	picked, err := s.cfg.Tokens.Pick(req.Pairs, nil)
	if errors.Is(err, tokens.ErrPairsRange) {
		httpError(w, http.StatusBadRequest, "pairs_out_of_range")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "tokens_failed")
		return
	}

	g, err := game.New(uuid.NewString(), game.Options{
		Tokens:       picked,
		MaxAttempts:  attempts,
		ResolveDelay: s.cfg.ResolveDelay,
		Scheduler:    s.cfg.Scheduler,
		OnChange:     func(snap game.Snapshot) { s.hub.Publish(snap) },
		OnFinish:     s.finishGame,
	})
	if err != nil {
		log.Error().Err(err).Msg("new game")
		httpError(w, http.StatusInternalServerError, "new_game_failed")
		return
	}
	if err := s.store.Save(r.Context(), g); err != nil {
		log.Error().Err(err).Msg("save game")
		httpError(w, http.StatusInternalServerError, "save_failed")
		return
	}

	s.sweepIdle(r.Context())
	own := s.ownerOf(w, r)
	s.track(g.ID, own)

	snap := g.Snapshot()
	s.recordStart(r.Context(), snap, own)
	log.Info().Str("gameId", g.ID).Int("pairs", snap.Pairs).Int("attempts", attempts).Msg("game started")

	writeJSON(w, http.StatusOK, newGameRes{GameID: g.ID, State: snap})
}

// selectReq is the payload for POST /game/select.
type selectReq struct {
	GameID   string `json:"gameId"`
	Position *int   `json:"position"`
}

// handleSelect flips one card. Ignored selections still answer 200 with the
// unchanged state.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if req.Position == nil {
		httpError(w, http.StatusBadRequest, "position_required")
		return
	}
	g, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		httpError(w, http.StatusNotFound, "not_found")
		return
	}
	if _, ok := s.authorize(r, g.ID); !ok {
		httpError(w, http.StatusForbidden, "not_your_game")
		return
	}
	snap, err := g.Select(*req.Position)
	if errors.Is(err, game.ErrPositionOutOfRange) {
		httpError(w, http.StatusBadRequest, "position_out_of_range")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "select_failed")
		return
	}
	writeJSON(w, http.StatusOK, stateRes{State: snap})
}

// restartReq is the payload for POST /game/restart.
type restartReq struct {
	GameID string `json:"gameId"`
}

// handleRestart reshuffles a game into a new generation.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req restartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad_json")
		return
	}
	g, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		httpError(w, http.StatusNotFound, "not_found")
		return
	}
	own, ok := s.authorize(r, g.ID)
	if !ok {
		httpError(w, http.StatusForbidden, "not_your_game")
		return
	}
	if s.daily.isDaily(g.ID) {
		httpError(w, http.StatusConflict, "daily_no_restart")
		return
	}
	prev := g.Generation()
	snap, err := g.Restart()
	if err != nil {
		log.Error().Err(err).Str("gameId", g.ID).Msg("restart")
		httpError(w, http.StatusInternalServerError, "restart_failed")
		return
	}
	if err := s.hist.AbandonGame(r.Context(), g.ID, prev); err != nil {
		log.Warn().Err(err).Str("gameId", g.ID).Msg("abandon game row")
	}
	s.recordStart(r.Context(), snap, own)

	writeJSON(w, http.StatusOK, stateRes{State: snap})
}

// handleGetGame returns the current state of a game.
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	g, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, http.StatusNotFound, "not_found")
		return
	}
	s.touch(g.ID)
	writeJSON(w, http.StatusOK, stateRes{State: g.Snapshot()})
}

// handleTokens lists the token catalog.
func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tokens": s.cfg.Tokens.All()})
}

// lbRes is returned by /leaderboard.
type lbRes struct {
	Pairs int             `json:"pairs"`
	Top   []history.LBRow `json:"top"`
}

// handleLeaderboard returns the best wins for ?pairs=N (default: full catalog).
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	pairs := s.cfg.Tokens.Len()
	if v := r.URL.Query().Get("pairs"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpError(w, http.StatusBadRequest, "bad_pairs")
			return
		}
		pairs = n
	}
	rows, err := s.hist.Leaderboard(r.Context(), pairs, 20)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, lbRes{Pairs: pairs, Top: rows})
}

// recordStart persists a game generation row (best effort).
func (s *Server) recordStart(ctx context.Context, snap game.Snapshot, own owner) {
	err := s.hist.StartGame(ctx, history.Start{
		ID:          snap.ID,
		Generation:  snap.Generation,
		UserID:      own.UserID,
		AnonymousID: own.AnonymousID,
		Pairs:       snap.Pairs,
		MaxAttempts: snap.MaxAttempts,
		StartedAt:   s.cfg.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("gameId", snap.ID).Msg("insert game row")
	}
}

// finishGame is the engine's OnFinish hook: it stores the outcome and
// schedules the game's eviction. It runs on the resolution timer, so it uses
// its own bounded context.
func (s *Server) finishGame(res game.Result) {
	log.Info().
		Str("gameId", res.ID).
		Uint64("generation", res.Generation).
		Str("result", string(res.Phase)).
		Int("moves", res.Moves).
		Dur("elapsed", res.Elapsed()).
		Msg("game finished")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.hist.FinishGame(ctx, res); err != nil {
		log.Warn().Err(err).Str("gameId", res.ID).Msg("finish game row")
	}
	s.scheduleEviction(res)
}
