// internal/deck/deck.go
//
// Deck generation for the Pairs game.
// Responsibilities:
//   - Build a paired deck (two cards per token) from a set of distinct tokens.
//   - Shuffle it with Fisher–Yates so every ordering is equally likely.
//   - Validate the pairing invariant for decks built from a fixed layout.
//
// Notes:
//   - Card identity is the position, assigned after shuffling and never changed.
//   - Invalid token sets are caller bugs and are reported as errors, never coerced.

package deck

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	ErrNoTokens       = errors.New("deck: token set is empty")
	ErrEmptyToken     = errors.New("deck: empty token identifier")
	ErrDuplicateToken = errors.New("deck: duplicate token")
	ErrUnpaired       = errors.New("deck: token is not paired")
	ErrBadPosition    = errors.New("deck: card position mismatch")
)

// Generate returns a shuffled deck holding exactly two hidden cards per token.
// A nil rng uses the process-wide source.
func Generate(tokens []Token, rng *rand.Rand) (Deck, error) {
	if err := checkTokens(tokens); err != nil {
		return nil, err
	}
	cards := make(Deck, 0, 2*len(tokens))
	for _, t := range tokens {
		cards = append(cards, Card{Token: t, Visibility: Hidden}, Card{Token: t, Visibility: Hidden})
	}
	Shuffle(cards, rng)
	for i := range cards {
		cards[i].Position = i
	}
	return cards, nil
}

// Shuffle permutes cards in place (Fisher–Yates).
func Shuffle(cards []Card, rng *rand.Rand) {
	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}
	for i := len(cards) - 1; i > 0; i-- {
		j := intN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// FromTokens builds an unshuffled deck that follows layout exactly.
// Every token in layout must appear exactly twice.
func FromTokens(layout []Token) (Deck, error) {
	d := make(Deck, len(layout))
	for i, t := range layout {
		d[i] = Card{Position: i, Token: t, Visibility: Hidden}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func checkTokens(tokens []Token) error {
	if len(tokens) == 0 {
		return ErrNoTokens
	}
	seen := make(map[Token]struct{}, len(tokens))
	for _, t := range tokens {
		if t == "" {
			return ErrEmptyToken
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateToken, t)
		}
		seen[t] = struct{}{}
	}
	return nil
}

// Validate checks the pairing invariant and that positions match indices.
func (d Deck) Validate() error {
	if len(d) == 0 {
		return ErrNoTokens
	}
	counts := make(map[Token]int, len(d)/2)
	for i, c := range d {
		if c.Position != i {
			return fmt.Errorf("%w: index %d holds position %d", ErrBadPosition, i, c.Position)
		}
		if c.Token == "" {
			return ErrEmptyToken
		}
		counts[c.Token]++
	}
	for t, n := range counts {
		if n != 2 {
			return fmt.Errorf("%w: %q appears %d times", ErrUnpaired, t, n)
		}
	}
	return nil
}

// Positions lists the positions of cards with visibility v, in deck order.
func (d Deck) Positions(v Visibility) []int {
	var out []int
	for _, c := range d {
		if c.Visibility == v {
			out = append(out, c.Position)
		}
	}
	return out
}

// All reports whether every card has visibility v.
func (d Deck) All(v Visibility) bool {
	for _, c := range d {
		if c.Visibility != v {
			return false
		}
	}
	return true
}

// Pairs is the number of distinct tokens in the deck.
func (d Deck) Pairs() int { return len(d) / 2 }

// Clone returns an independent copy.
func (d Deck) Clone() Deck {
	out := make(Deck, len(d))
	copy(out, d)
	return out
}
