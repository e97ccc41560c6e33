// internal/httpserver/sessions.go
//
// Bookkeeping for live games held in memory.
//   - Ownership: each game belongs to an account or a guest cookie; only the
//     owner may select or restart. A guest game moves to the account that
//     signs in with that guest cookie.
//   - Eviction: a finished game is dropped FinishedTTL after it ends unless
//     it was restarted. Unfinished games nobody touched for IdleTTL are swept
//     (and marked abandoned in history) when new games are dealt.

package httpserver

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/pairs/apps/go-server/internal/game"
)

// owner identifies who plays a game: an account or a guest cookie.
type owner struct {
	UserID      string
	AnonymousID string
}

// playerID is the account ID, or the guest ID for anonymous players.
func (o owner) playerID() string {
	if o.UserID != "" {
		return o.UserID
	}
	return o.AnonymousID
}

func (s *Server) ownerOf(w http.ResponseWriter, r *http.Request) owner {
	if me := userFrom(r.Context()); me != nil {
		return owner{UserID: me.ID}
	}
	return owner{AnonymousID: s.ensureAnonID(w, r)}
}

// track registers a freshly dealt game.
func (s *Server) track(id string, own owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[id] = own
	s.seen[id] = s.cfg.Now()
}

func (s *Server) ownerFor(id string) (owner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	own, ok := s.owners[id]
	return own, ok
}

func (s *Server) touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		s.seen[id] = s.cfg.Now()
	}
}

// authorize reports whether r may play game id and returns its current owner.
func (s *Server) authorize(r *http.Request, id string) (owner, bool) {
	me := userFrom(r.Context())
	anon := ""
	if c, err := r.Cookie(anonCookieName); err == nil {
		anon = c.Value
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	own, ok := s.owners[id]
	if !ok {
		return owner{}, false
	}
	switch {
	case own.UserID != "" && me != nil && me.ID == own.UserID:
	case own.AnonymousID != "" && own.AnonymousID == anon:
		if me != nil {
			// Signed in since the game was dealt; later generations and
			// results belong to the account.
			own = owner{UserID: me.ID}
			s.owners[id] = own
		}
	default:
		return owner{}, false
	}
	s.seen[id] = s.cfg.Now()
	return own, true
}

// scheduleEviction drops a finished game after FinishedTTL.
func (s *Server) scheduleEviction(res game.Result) {
	s.cfg.Scheduler.AfterFunc(s.cfg.FinishedTTL, func() {
		g, err := s.store.Get(context.Background(), res.ID)
		if err != nil || g.Generation() != res.Generation || !g.Phase().Terminal() {
			return // gone already, or restarted
		}
		s.evict(res.ID)
		log.Debug().Str("gameId", res.ID).Msg("evicted finished game")
	})
}

// evict removes every in-memory trace of a game.
func (s *Server) evict(id string) {
	_ = s.store.Delete(context.Background(), id)
	s.mu.Lock()
	delete(s.owners, id)
	delete(s.seen, id)
	s.mu.Unlock()
	s.hub.Forget(id)
	s.daily.forget(id)
}

// sweepIdle evicts games untouched for IdleTTL. It does the scan at most once
// per quarter of IdleTTL.
func (s *Server) sweepIdle(ctx context.Context) {
	now := s.cfg.Now()
	s.mu.Lock()
	if !s.lastSweep.IsZero() && now.Sub(s.lastSweep) < s.cfg.IdleTTL/4 {
		s.mu.Unlock()
		return
	}
	s.lastSweep = now
	var stale []string
	for id, t := range s.seen {
		if now.Sub(t) >= s.cfg.IdleTTL {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	swept := 0
	for _, id := range stale {
		g, err := s.store.Get(ctx, id)
		if err != nil {
			s.evict(id)
			continue
		}
		if g.Resolving() {
			continue
		}
		if !g.Phase().Terminal() {
			if err := s.hist.AbandonGame(ctx, id, g.Generation()); err != nil {
				log.Warn().Err(err).Str("gameId", id).Msg("abandon idle game")
			}
		}
		s.evict(id)
		swept++
	}
	if swept > 0 {
		log.Info().Int("games", swept).Msg("swept idle games")
	}
}
