// internal/deck/types.go
//
// Core type definitions for the deck.
// Defines:
//   - Token: opaque identifier of a matchable kind (e.g. "coin", "star").
//   - Visibility: per-card face state (hidden/selected/resolved).
//   - Card, Deck: one slot and the ordered collection of slots.

package deck

// Token identifies a matchable kind. Exactly two cards in a deck share a token.
type Token string

// Visibility is the face state of a card.
//   - "hidden":   face down.
//   - "selected": flipped up, waiting for its pair to resolve.
//   - "resolved": matched; stays face up for the rest of the game.
type Visibility string

const (
	Hidden   Visibility = "hidden"
	Selected Visibility = "selected"
	Resolved Visibility = "resolved"
)

// Card is one slot of the deck.
type Card struct {
	Position   int        `json:"position"`   // Stable index into the deck.
	Token      Token      `json:"token"`      // What the card shows when face up.
	Visibility Visibility `json:"visibility"` // Current face state.
}

// Deck is the ordered collection of cards for one game.
type Deck []Card
