// internal/tokens/tokens.go
//
// Token catalog for the game engine.
//
// Responsibilities:
//   - Load the set of matchable tokens from a file or fall back to the embedded default.
//   - Reject catalogs that break the deck preconditions (empty, duplicates, bad identifiers).
//   - Pick a random subset of N distinct tokens for smaller boards.
//
// Initialization behavior (Init):
//   1. If a path is given (TOKENS_FILE in main), load one token per line from it.
//   2. Otherwise use the embedded assets/tokens.txt.
//
// Constraints:
//   • Identifiers are lowercase a–z, 0–9, '-' or '_' (they double as image names).
//   • Lines starting with '#' and blank lines are skipped.
//   • Initialization is run once (sync.Once).

package tokens

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"github.com/robalobadob/pairs/apps/go-server/assets"
	"github.com/robalobadob/pairs/apps/go-server/internal/deck"
)

var (
	ErrEmpty      = errors.New("tokens: catalog is empty")
	ErrInvalid    = errors.New("tokens: invalid identifier")
	ErrDuplicate  = errors.New("tokens: duplicate identifier")
	ErrPairsRange = errors.New("tokens: pairs out of range")
)

// Catalog is an ordered set of distinct tokens.
type Catalog struct {
	list []deck.Token
}

// New validates ids and builds a catalog.
func New(ids []string) (*Catalog, error) {
	if len(ids) == 0 {
		return nil, ErrEmpty
	}
	seen := make(map[string]struct{}, len(ids))
	list := make([]deck.Token, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if !validID(id) {
			return nil, fmt.Errorf("%w: %q", ErrInvalid, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, id)
		}
		seen[id] = struct{}{}
		list = append(list, deck.Token(id))
	}
	return &Catalog{list: list}, nil
}

// Parse reads one identifier per line; blank lines and '#' comments are skipped.
func Parse(r io.Reader) (*Catalog, error) {
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		ids = append(ids, s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return New(ids)
}

// Load reads a catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		ids, err := assets.TokenList()
		if err != nil {
			return nil, fmt.Errorf("read embedded tokens: %w", err)
		}
		return New(ids)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// All returns a copy of every token in catalog order.
func (c *Catalog) All() []deck.Token {
	return append([]deck.Token(nil), c.list...)
}

// Len is the number of tokens.
func (c *Catalog) Len() int { return len(c.list) }

// Contains reports whether t is in the catalog.
func (c *Catalog) Contains(t deck.Token) bool {
	for _, x := range c.list {
		if x == t {
			return true
		}
	}
	return false
}

// Pick returns n distinct tokens chosen uniformly at random.
// n == 0 means the whole catalog. A nil rng uses the process-wide source.
func (c *Catalog) Pick(n int, rng *rand.Rand) ([]deck.Token, error) {
	if n == 0 {
		return c.All(), nil
	}
	if n < 0 || n > len(c.list) {
		return nil, fmt.Errorf("%w: %d not in [1,%d]", ErrPairsRange, n, len(c.list))
	}
	perm := rand.Perm
	if rng != nil {
		perm = rng.Perm
	}
	out := make([]deck.Token, 0, n)
	for _, i := range perm(len(c.list))[:n] {
		out = append(out, c.list[i])
	}
	return out, nil
}

func validID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

var (
	initOnce   sync.Once
	defaultCat *Catalog
	initialErr error
)

// Init loads the process-wide catalog from path (embedded list if empty)
// exactly once; later calls return the first result.
func Init(path string) error {
	initOnce.Do(func() {
		defaultCat, initialErr = Load(path)
	})
	return initialErr
}

// Default returns the catalog loaded by Init, or nil if Init failed or never ran.
func Default() *Catalog { return defaultCat }
