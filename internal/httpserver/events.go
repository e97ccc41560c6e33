// internal/httpserver/events.go
//
// GET /game/{id}/events: websocket stream of game snapshots. The current state
// is sent on connect, then one message per change until either side closes.

package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/pairs/apps/go-server/internal/game"
)

const eventWriteTimeout = 5 * time.Second

// stateEvent is the only message type on the stream.
type stateEvent struct {
	Type  string        `json:"type"` // "state"
	State game.Snapshot `json:"state"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	g, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, http.StatusNotFound, "not_found")
		return
	}

	// Subscribe before reading the snapshot so no change slips in between.
	updates, cancel := s.hub.Subscribe(g.ID)
	defer cancel()

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns()})
	if err != nil {
		log.Warn().Err(err).Str("gameId", g.ID).Msg("websocket accept")
		return
	}
	defer c.CloseNow()

	// The client never sends; CloseRead handles control frames and cancels ctx on close.
	ctx := c.CloseRead(r.Context())

	sent := g.Snapshot()
	if err := writeState(ctx, c, sent); err != nil {
		return
	}
	last := sent.Seq
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				_ = c.Close(websocket.StatusGoingAway, "game closed")
				return
			}
			if snap.Seq <= last {
				continue
			}
			last = snap.Seq
			if err := writeState(ctx, c, snap); err != nil {
				log.Debug().Err(err).Str("gameId", g.ID).Msg("websocket write")
				return
			}
		}
	}
}

func writeState(ctx context.Context, c *websocket.Conn, snap game.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, stateEvent{Type: "state", State: snap})
}
