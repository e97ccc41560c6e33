// internal/game/engine.go
//
// Match engine for a single Pairs session.
// Responsibilities:
//   - Accept card selections and ignore the ones that cannot apply.
//   - Compare the second selection against the first as soon as it is made.
//   - Resolve the pair once, after a fixed delay (match → resolved, mismatch → hidden).
//   - Track phase transitions: idle → one_selected → resolving → idle | won | lost.
//
// Notes:
//   - Each generation of a game is tagged; a resolution scheduled by an older
//     generation (before Restart) is dropped when it fires.
//   - Attempts policy: the counter is spent only by mismatches, and reaching
//     zero ends the game as lost. MaxAttempts == 0 disables it.
//   - Hooks (OnChange/OnFinish) run after the lock is released, so two
//     snapshots may reach OnChange out of order; Seq tells them apart.
package game

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robalobadob/pairs/apps/go-server/internal/deck"
)

var (
	ErrPositionOutOfRange = errors.New("position out of range")
	ErrNegativeAttempts   = errors.New("max attempts must not be negative")
)

// Game holds the mutable state of one session. All methods are safe for
// concurrent use.
type Game struct {
	ID string

	mu         sync.Mutex
	opts       Options
	tokens     []deck.Token
	generation uint64
	seq        uint64
	deck       deck.Deck
	phase      Phase
	attempts   int
	moves      int
	matches    int
	mismatches int
	startedAt  time.Time
	finishedAt time.Time
}

// New constructs a game and deals its first deck.
// If opts.Deck is set it is validated and used as is; otherwise a shuffled
// deck is generated from opts.Tokens.
func New(id string, opts Options) (*Game, error) {
	if opts.MaxAttempts < 0 {
		return nil, ErrNegativeAttempts
	}
	if opts.ResolveDelay <= 0 {
		opts.ResolveDelay = DefaultResolveDelay
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TimerScheduler{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	g := &Game{ID: id, opts: opts, tokens: opts.Tokens}
	var d deck.Deck
	if opts.Deck != nil {
		if err := opts.Deck.Validate(); err != nil {
			return nil, err
		}
		d = opts.Deck.Clone()
		g.tokens = tokensOf(d)
	} else {
		var err error
		if d, err = deck.Generate(g.tokens, opts.Rand); err != nil {
			return nil, err
		}
	}
	g.deal(d)
	return g, nil
}

// Select flips the card at position. Selections made while a pair is
// resolving, after the game ended, or on a card that is not hidden are
// ignored and return the unchanged state.
func (g *Game) Select(position int) (Snapshot, error) {
	g.mu.Lock()
	if position < 0 || position >= len(g.deck) {
		n := len(g.deck)
		g.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %d not in [0,%d)", ErrPositionOutOfRange, position, n)
	}
	if g.phase == PhaseResolving || g.phase.Terminal() || g.deck[position].Visibility != deck.Hidden {
		snap := g.snapshotLocked()
		g.mu.Unlock()
		return snap, nil
	}

	g.deck[position].Visibility = deck.Selected
	g.seq++
	selected := g.deck.Positions(deck.Selected)
	switch len(selected) {
	case 1:
		g.phase = PhaseOneSelected
	case 2:
		g.phase = PhaseResolving
		a, b := g.deck[selected[0]], g.deck[selected[1]]
		matched := a.Token == b.Token
		gen := g.generation
		g.opts.Scheduler.AfterFunc(g.opts.ResolveDelay, func() { g.resolve(gen, matched) })
	}
	snap := g.snapshotLocked()
	g.mu.Unlock()

	g.notify(snap)
	return snap, nil
}

// resolve commits the outcome of the pending pair for generation gen.
func (g *Game) resolve(gen uint64, matched bool) {
	g.mu.Lock()
	if gen != g.generation || g.phase != PhaseResolving {
		g.mu.Unlock()
		return
	}

	to := deck.Hidden
	if matched {
		to = deck.Resolved
	}
	for _, p := range g.deck.Positions(deck.Selected) {
		g.deck[p].Visibility = to
	}
	g.seq++
	g.moves++
	if matched {
		g.matches++
	} else {
		g.mismatches++
		if g.opts.MaxAttempts > 0 && g.attempts > 0 {
			g.attempts--
		}
	}

	switch {
	case g.deck.All(deck.Resolved):
		g.phase = PhaseWon
	case g.opts.MaxAttempts > 0 && g.attempts == 0:
		g.phase = PhaseLost
	default:
		g.phase = PhaseIdle
	}

	var res *Result
	if g.phase.Terminal() {
		g.finishedAt = g.opts.Now()
		r := g.resultLocked()
		res = &r
	}
	snap := g.snapshotLocked()
	g.mu.Unlock()

	g.notify(snap)
	if res != nil && g.opts.OnFinish != nil {
		g.opts.OnFinish(*res)
	}
}

// Restart deals a freshly shuffled deck from the same token set and starts a
// new generation. A resolution still pending from the previous generation is
// ignored when it fires.
func (g *Game) Restart() (Snapshot, error) {
	g.mu.Lock()
	d, err := deck.Generate(g.tokens, g.opts.Rand)
	if err != nil {
		g.mu.Unlock()
		return Snapshot{}, err
	}
	g.generation++
	g.deal(d)
	snap := g.snapshotLocked()
	g.mu.Unlock()

	g.notify(snap)
	return snap, nil
}

// deal resets the session around d. Caller holds the lock (or owns g).
func (g *Game) deal(d deck.Deck) {
	g.deck = d
	g.seq++
	g.phase = PhaseIdle
	g.attempts = g.opts.MaxAttempts
	g.moves, g.matches, g.mismatches = 0, 0, 0
	g.startedAt = g.opts.Now()
	g.finishedAt = time.Time{}
}

func (g *Game) notify(s Snapshot) {
	if g.opts.OnChange != nil {
		g.opts.OnChange(s)
	}
}

// Snapshot returns the current observable state.
func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Game) snapshotLocked() Snapshot {
	cards := make([]CardView, len(g.deck))
	for i, c := range g.deck {
		cards[i] = CardView{Position: c.Position, Visibility: c.Visibility}
		if c.Visibility != deck.Hidden {
			cards[i].Token = c.Token
		}
	}
	return Snapshot{
		ID:                g.ID,
		Seq:               g.seq,
		Generation:        g.generation,
		Phase:             g.phase,
		Cards:             cards,
		Pairs:             g.deck.Pairs(),
		Matches:           g.matches,
		Mismatches:        g.mismatches,
		Moves:             g.moves,
		MaxAttempts:       g.opts.MaxAttempts,
		AttemptsRemaining: g.attempts,
		Resolving:         g.phase == PhaseResolving,
		Won:               g.phase == PhaseWon,
		Lost:              g.phase == PhaseLost,
	}
}

func (g *Game) resultLocked() Result {
	return Result{
		ID:          g.ID,
		Generation:  g.generation,
		Phase:       g.phase,
		Pairs:       g.deck.Pairs(),
		MaxAttempts: g.opts.MaxAttempts,
		Moves:       g.moves,
		Mismatches:  g.mismatches,
		StartedAt:   g.startedAt,
		FinishedAt:  g.finishedAt,
	}
}

// Phase reports the current session phase.
func (g *Game) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// Resolving reports whether a pair is waiting for its resolution.
func (g *Game) Resolving() bool { return g.Phase() == PhaseResolving }

// Won reports whether every card has been matched.
func (g *Game) Won() bool { return g.Phase() == PhaseWon }

// Lost reports whether the attempts counter ran out.
func (g *Game) Lost() bool { return g.Phase() == PhaseLost }

// AttemptsRemaining is the number of mismatches still allowed (0 when untracked).
func (g *Game) AttemptsRemaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

// Generation is incremented by every Restart.
func (g *Game) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation
}

// Reveal returns a copy of the deck including hidden tokens. Not for players.
func (g *Game) Reveal() deck.Deck {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deck.Clone()
}

// tokensOf lists the distinct tokens of d in order of first appearance.
func tokensOf(d deck.Deck) []deck.Token {
	seen := make(map[deck.Token]struct{}, d.Pairs())
	out := make([]deck.Token, 0, d.Pairs())
	for _, c := range d {
		if _, ok := seen[c.Token]; ok {
			continue
		}
		seen[c.Token] = struct{}{}
		out = append(out, c.Token)
	}
	return out
}
