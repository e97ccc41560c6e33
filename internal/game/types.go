// internal/game/types.go
//
// Core type definitions for the match engine.
// Defines:
//   - Phase: session-level state (idle/one_selected/resolving/won/lost).
//   - Options: construction parameters and collaborator hooks.
//   - Snapshot, CardView: read-only views handed to the renderer.
//   - Result: summary of a finished game.

package game

import (
	"math/rand/v2"
	"time"

	"github.com/robalobadob/pairs/apps/go-server/internal/deck"
)

// Phase is the session-level state of a game.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseOneSelected Phase = "one_selected"
	PhaseResolving   Phase = "resolving"
	PhaseWon         Phase = "won"
	PhaseLost        Phase = "lost"
)

// Terminal reports whether no further selections can change the game.
func (p Phase) Terminal() bool { return p == PhaseWon || p == PhaseLost }

// DefaultResolveDelay is how long a revealed pair stays face up before it resolves.
const DefaultResolveDelay = 500 * time.Millisecond

// Options configures a new Game.
type Options struct {
	Tokens       []deck.Token // Token set; a fresh shuffled deck is generated from it.
	Deck         deck.Deck    // Fixed layout; when set it is used for the first generation.
	MaxAttempts  int          // Mismatches allowed before losing; 0 disables the counter.
	ResolveDelay time.Duration
	Rand         *rand.Rand // nil uses the process-wide source.
	Scheduler    Scheduler  // nil uses time.AfterFunc.
	Now          func() time.Time

	OnChange func(Snapshot) // Called after every state change, outside the lock.
	OnFinish func(Result)   // Called once per generation on won/lost, outside the lock.
}

// CardView is a card as the renderer may see it. Hidden cards carry no token.
type CardView struct {
	Position   int             `json:"position"`
	Visibility deck.Visibility `json:"visibility"`
	Token      deck.Token      `json:"token,omitempty"`
}

// Snapshot is a point-in-time copy of a game's observable state.
type Snapshot struct {
	ID                string     `json:"id"`
	Seq               uint64     `json:"seq"` // bumped by every change; never decreases
	Generation        uint64     `json:"generation"`
	Phase             Phase      `json:"phase"`
	Cards             []CardView `json:"cards"`
	Pairs             int        `json:"pairs"`
	Matches           int        `json:"matches"`
	Mismatches        int        `json:"mismatches"`
	Moves             int        `json:"moves"`
	MaxAttempts       int        `json:"maxAttempts"`
	AttemptsRemaining int        `json:"attemptsRemaining"`
	Resolving         bool       `json:"resolving"`
	Won               bool       `json:"won"`
	Lost              bool       `json:"lost"`
}

// Result summarizes a finished generation of a game.
type Result struct {
	ID          string
	Generation  uint64
	Phase       Phase // PhaseWon or PhaseLost
	Pairs       int
	MaxAttempts int
	Moves       int
	Mismatches  int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Elapsed is the wall time between the game start and its end.
func (r Result) Elapsed() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
