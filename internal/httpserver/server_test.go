package httpserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/pairs/apps/go-server/assets"
	"github.com/robalobadob/pairs/apps/go-server/internal/daily"
	"github.com/robalobadob/pairs/apps/go-server/internal/deck"
	"github.com/robalobadob/pairs/apps/go-server/internal/game"
	"github.com/robalobadob/pairs/apps/go-server/internal/history"
	"github.com/robalobadob/pairs/apps/go-server/internal/store"
	"github.com/robalobadob/pairs/apps/go-server/internal/tokens"
)

type testEnv struct {
	ts     *httptest.Server
	client *http.Client
	store  store.Store
	db     *sql.DB
	hist   *history.Store
	sched  *game.ManualScheduler
	clock  *testClock
}

// testClock is a settable time source shared with the server goroutines.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := history.Open(filepath.Join(t.TempDir(), "pairs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	fsys, err := assets.Migrations()
	require.NoError(t, err)
	require.NoError(t, history.Migrate(db, fsys))

	cat, err := tokens.New([]string{"coin", "star", "goomba"})
	require.NoError(t, err)

	env := &testEnv{
		store: store.NewMemoryStore(),
		db:    db,
		hist:  history.NewStore(db),
		sched: &game.ManualScheduler{},
		clock: &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	srv := New(env.store, env.hist, Config{
		Tokens:    cat,
		Scheduler: env.sched,
		JWTSecret: "test-secret",
		Daily:     daily.NewStore(db),
		DailySalt: "test-salt",
		Now:       env.clock.Now,
	})
	env.ts = httptest.NewServer(srv.Router())
	t.Cleanup(env.ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	env.client = &http.Client{Jar: jar, Timeout: 5 * time.Second}
	return env
}

// guest returns an env sharing e's server but with its own cookie jar.
func (e *testEnv) guest(t *testing.T) *testEnv {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	cp := *e
	cp.client = &http.Client{Jar: jar, Timeout: 5 * time.Second}
	return &cp
}

// do sends a JSON request and decodes the JSON response into out (if non-nil).
func (e *testEnv) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if s, ok := body.(string); ok {
		rd = bytes.NewReader([]byte(s))
	} else if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := e.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func (e *testEnv) newGame(t *testing.T, body any) newGameRes {
	t.Helper()
	var res newGameRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/game/new", body, &res))
	require.NotEmpty(t, res.GameID)
	return res
}

func (e *testEnv) selectCard(t *testing.T, id string, pos int) game.Snapshot {
	t.Helper()
	var res stateRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/game/select", map[string]any{"gameId": id, "position": pos}, &res))
	return res.State
}

// pairsOf maps each token to its two positions, read from the live game.
func (e *testEnv) pairsOf(t *testing.T, id string) map[deck.Token][]int {
	t.Helper()
	g, err := e.store.Get(context.Background(), id)
	require.NoError(t, err)
	out := map[deck.Token][]int{}
	for _, c := range g.Reveal() {
		out[c.Token] = append(out[c.Token], c.Position)
	}
	return out
}

// playToWin matches every pair in order.
func (e *testEnv) playToWin(t *testing.T, id string) game.Snapshot {
	t.Helper()
	for _, pos := range e.pairsOf(t, id) {
		e.selectCard(t, id, pos[0])
		s := e.selectCard(t, id, pos[1])
		require.Equal(t, game.PhaseResolving, s.Phase)
		e.sched.Flush()
	}
	var res stateRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/game/"+id, nil, &res))
	return res.State
}

func TestDiagnostics(t *testing.T) {
	e := newTestEnv(t)

	var health map[string]any
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health", nil, &health))
	assert.Equal(t, true, health["ok"])

	var toks map[string][]string
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/tokens", nil, &toks))
	assert.Equal(t, []string{"coin", "star", "goomba"}, toks["tokens"])

	var nf map[string]string
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/nope", nil, &nf))
	assert.Equal(t, "not_found", nf["error"])
}

func TestNewGame(t *testing.T) {
	e := newTestEnv(t)

	res := e.newGame(t, nil)
	assert.Equal(t, res.GameID, res.State.ID)
	assert.Equal(t, game.PhaseIdle, res.State.Phase)
	assert.Equal(t, 3, res.State.Pairs)
	require.Len(t, res.State.Cards, 6)
	for _, c := range res.State.Cards {
		assert.Equal(t, deck.Hidden, c.Visibility)
		assert.Empty(t, c.Token)
	}

	small := e.newGame(t, map[string]any{"pairs": 2, "attempts": 4})
	assert.Equal(t, 2, small.State.Pairs)
	assert.Equal(t, 4, small.State.AttemptsRemaining)

	var errRes map[string]string
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/game/new", map[string]any{"pairs": 4}, &errRes))
	assert.Equal(t, "pairs_out_of_range", errRes["error"])
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/game/new", map[string]any{"attempts": -1}, &errRes))
	assert.Equal(t, "attempts_negative", errRes["error"])
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/game/new", "{", nil))
}

func TestSelect_Flow(t *testing.T) {
	e := newTestEnv(t)
	id := e.newGame(t, nil).GameID
	pairs := e.pairsOf(t, id)

	coin, star := pairs["coin"], pairs["star"]

	s := e.selectCard(t, id, coin[0])
	assert.Equal(t, game.PhaseOneSelected, s.Phase)
	assert.Equal(t, deck.Token("coin"), s.Cards[coin[0]].Token)

	s = e.selectCard(t, id, star[0])
	assert.Equal(t, game.PhaseResolving, s.Phase)
	assert.True(t, s.Resolving)

	// Input is ignored until the pair resolves.
	blocked := e.selectCard(t, id, coin[1])
	assert.Equal(t, s, blocked)

	e.sched.Flush()
	var res stateRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/game/"+id, nil, &res))
	assert.Equal(t, game.PhaseIdle, res.State.Phase)
	assert.Equal(t, 1, res.State.Mismatches)
	for _, c := range res.State.Cards {
		assert.Equal(t, deck.Hidden, c.Visibility)
	}
}

func TestSelect_Errors(t *testing.T) {
	e := newTestEnv(t)
	id := e.newGame(t, nil).GameID

	var errRes map[string]string
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/game/select", map[string]any{"gameId": id, "position": 6}, &errRes))
	assert.Equal(t, "position_out_of_range", errRes["error"])

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/game/select", map[string]any{"gameId": id}, &errRes))
	assert.Equal(t, "position_required", errRes["error"])

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/game/select", map[string]any{"gameId": "missing", "position": 0}, &errRes))
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/game/missing", nil, &errRes))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/game/select", "not json", nil))
}

func TestGuestWin_RecordsLeaderboard(t *testing.T) {
	e := newTestEnv(t)
	id := e.newGame(t, nil).GameID

	final := e.playToWin(t, id)
	assert.Equal(t, game.PhaseWon, final.Phase)
	assert.True(t, final.Won)
	assert.Equal(t, 3, final.Moves)

	var lb lbRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/leaderboard?pairs=3", nil, &lb))
	require.Len(t, lb.Top, 1)
	assert.Equal(t, id, lb.Top[0].GameID)
	assert.Equal(t, "guest", lb.Top[0].Username)
	assert.Equal(t, 3, lb.Top[0].Moves)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/leaderboard", nil, &lb))
	assert.Equal(t, 3, lb.Pairs)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/leaderboard?pairs=x", nil, nil))
}

func TestLostGame(t *testing.T) {
	e := newTestEnv(t)
	id := e.newGame(t, map[string]any{"attempts": 1}).GameID
	pairs := e.pairsOf(t, id)

	e.selectCard(t, id, pairs["coin"][0])
	e.selectCard(t, id, pairs["star"][0])
	e.sched.Flush()

	var res stateRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/game/"+id, nil, &res))
	assert.Equal(t, game.PhaseLost, res.State.Phase)
	assert.True(t, res.State.Lost)
	assert.Zero(t, res.State.AttemptsRemaining)
}

func TestRestart(t *testing.T) {
	e := newTestEnv(t)
	id := e.newGame(t, nil).GameID
	pairs := e.pairsOf(t, id)

	e.selectCard(t, id, pairs["coin"][0])
	e.selectCard(t, id, pairs["coin"][1])

	var res stateRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/game/restart", map[string]any{"gameId": id}, &res))
	assert.Equal(t, uint64(1), res.State.Generation)
	assert.Equal(t, game.PhaseIdle, res.State.Phase)

	// The pending resolution belongs to generation 0 and must be dropped.
	e.sched.Flush()
	var after stateRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/game/"+id, nil, &after))
	assert.Equal(t, res.State, after.State)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/game/restart", map[string]any{"gameId": "missing"}, nil))
}

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t)

	// Play one guest game first; it is claimed on signup.
	guestGame := e.newGame(t, nil).GameID

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/auth/me", nil, nil))

	var created map[string]any
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/auth/signup", credentials{Username: "mario", Password: "itsame1234"}, &created))
	assert.Equal(t, "mario", created["username"])

	assert.Equal(t, http.StatusConflict, e.do(t, http.MethodPost, "/auth/signup", credentials{Username: "Mario", Password: "itsame1234"}, nil))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/auth/signup", credentials{Username: "x", Password: "itsame1234"}, nil))

	var me authUser
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/auth/me", nil, &me))
	assert.Equal(t, "mario", me.Username)

	id := e.newGame(t, nil).GameID
	assert.Equal(t, game.PhaseWon, e.playToWin(t, id).Phase)

	var stats map[string]any
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/stats/me", nil, &stats))
	assert.EqualValues(t, 1, stats["gamesPlayed"])
	assert.EqualValues(t, 1, stats["wins"])
	assert.EqualValues(t, 1, stats["streak"])

	var mine []history.GameRow
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/games/mine", nil, &mine))
	ids := []string{}
	for _, g := range mine {
		ids = append(ids, g.ID)
	}
	assert.ElementsMatch(t, []string{id, guestGame}, ids)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/auth/logout", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/auth/me", nil, nil))

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/auth/login", credentials{Username: "mario", Password: "wrong-password"}, nil))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/auth/login", credentials{Username: "MARIO", Password: "itsame1234"}, nil))
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/auth/me", nil, nil))
}

func TestBearerToken(t *testing.T) {
	e := newTestEnv(t)
	srv := &Server{cfg: Config{JWTSecret: "test-secret", JWTExpiry: time.Hour, CookieName: "pairs_token"}}

	tok, _, err := srv.signJWT("u1", "peach")
	require.NoError(t, err)
	au, err := srv.parseJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, "peach", au.Username)

	_, err = srv.parseJWT(tok + "x")
	assert.Error(t, err)

	// Valid signature, but the user does not exist in the database.
	req, err := http.NewRequest(http.MethodGet, e.ts.URL+"/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)
	req, err := http.NewRequest(http.MethodOptions, e.ts.URL+"/game/new", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "http://localhost:5173", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestEventsStream(t *testing.T) {
	e := newTestEnv(t)
	id := e.newGame(t, nil).GameID
	pairs := e.pairsOf(t, id)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/game/" + id + "/events"
	c, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer c.CloseNow()

	var ev stateEvent
	require.NoError(t, wsjson.Read(ctx, c, &ev))
	assert.Equal(t, "state", ev.Type)
	assert.Equal(t, game.PhaseIdle, ev.State.Phase)

	e.selectCard(t, id, pairs["goomba"][0])
	require.NoError(t, wsjson.Read(ctx, c, &ev))
	assert.Equal(t, game.PhaseOneSelected, ev.State.Phase)

	e.selectCard(t, id, pairs["goomba"][1])
	require.NoError(t, wsjson.Read(ctx, c, &ev))
	assert.Equal(t, game.PhaseResolving, ev.State.Phase)

	e.sched.Flush()
	require.NoError(t, wsjson.Read(ctx, c, &ev))
	assert.Equal(t, game.PhaseIdle, ev.State.Phase)
	assert.Equal(t, 1, ev.State.Matches)

	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))

	res, err := http.Get(e.ts.URL + "/game/missing/events")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestDaily(t *testing.T) {
	e := newTestEnv(t)
	other := e.guest(t)

	var first, again, theirs dailyNewRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/daily/new", nil, &first))
	assert.Equal(t, "2024-03-01", first.Date)
	assert.False(t, first.Played)
	require.NotNil(t, first.State)
	assert.Equal(t, 3, first.State.Pairs)
	assert.Equal(t, 0, first.State.MaxAttempts)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/daily/new", nil, &again))
	assert.Equal(t, first.GameID, again.GameID, "same player reuses today's game")

	require.Equal(t, http.StatusOK, other.do(t, http.MethodPost, "/daily/new", nil, &theirs))
	assert.NotEqual(t, first.GameID, theirs.GameID)
	assert.Equal(t, e.pairsOf(t, first.GameID), e.pairsOf(t, theirs.GameID), "everyone gets the same deal")

	var errRes map[string]string
	assert.Equal(t, http.StatusConflict, e.do(t, http.MethodPost, "/game/restart", map[string]string{"gameId": first.GameID}, &errRes))
	assert.Equal(t, "daily_no_restart", errRes["error"])

	won := e.playToWin(t, first.GameID)
	require.Equal(t, game.PhaseWon, won.Phase)

	var done dailyNewRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/daily/new", nil, &done))
	assert.True(t, done.Played)
	assert.Empty(t, done.GameID)

	var lb dailyLBRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/daily/leaderboard", nil, &lb))
	assert.Equal(t, "2024-03-01", lb.Date)
	require.Len(t, lb.Top, 1)
	assert.Equal(t, first.GameID, lb.Top[0].GameID)
	assert.Equal(t, 3, lb.Top[0].Moves)
	assert.Empty(t, lb.Top[0].PlayerID)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/daily/leaderboard?date=2024-02-29", nil, &lb))
	assert.Empty(t, lb.Top)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/daily/leaderboard?date=yesterday", nil, &errRes))
}

func (e *testEnv) signup(t *testing.T, username string) {
	t.Helper()
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/auth/signup", credentials{Username: username, Password: "letmein1234"}, nil))
}

func TestRestart_AfterSignInCountsForAccount(t *testing.T) {
	e := newTestEnv(t)
	id := e.newGame(t, nil).GameID
	e.signup(t, "luigi")

	var res stateRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/game/restart", map[string]any{"gameId": id}, &res))
	assert.Equal(t, game.PhaseWon, e.playToWin(t, id).Phase)

	var stats map[string]any
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/stats/me", nil, &stats))
	assert.EqualValues(t, 1, stats["gamesPlayed"])
	assert.EqualValues(t, 1, stats["wins"])

	var mine []history.GameRow
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/games/mine", nil, &mine))
	status := map[uint64]string{}
	for _, g := range mine {
		assert.Equal(t, id, g.ID)
		status[g.Generation] = g.Status
	}
	assert.Equal(t, map[uint64]string{0: history.StatusAbandoned, 1: history.StatusWon}, status)
}

func TestSelect_OnlyOwnerMayPlay(t *testing.T) {
	e := newTestEnv(t)
	stranger := e.guest(t)
	id := e.newGame(t, nil).GameID

	var errRes map[string]string
	assert.Equal(t, http.StatusForbidden, stranger.do(t, http.MethodPost, "/game/select", map[string]any{"gameId": id, "position": 0}, &errRes))
	assert.Equal(t, "not_your_game", errRes["error"])
	assert.Equal(t, http.StatusForbidden, stranger.do(t, http.MethodPost, "/game/restart", map[string]any{"gameId": id}, &errRes))

	// Reading stays public.
	assert.Equal(t, http.StatusOK, stranger.do(t, http.MethodGet, "/game/"+id, nil, nil))

	// An account game is closed to the guest cookie once logged out.
	e.signup(t, "peach")
	acct := e.newGame(t, nil).GameID
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/auth/logout", nil, nil))
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/game/select", map[string]any{"gameId": acct, "position": 0}, &errRes))
}

func TestDaily_GuestSignsInMidGame(t *testing.T) {
	e := newTestEnv(t)

	var first dailyNewRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/daily/new", nil, &first))
	e.signup(t, "luigi")
	require.Equal(t, game.PhaseWon, e.playToWin(t, first.GameID).Phase)

	var again dailyNewRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/daily/new", nil, &again))
	assert.True(t, again.Played)
	assert.Empty(t, again.GameID)

	var lb dailyLBRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/daily/leaderboard", nil, &lb))
	require.Len(t, lb.Top, 1)
	assert.Equal(t, "luigi", lb.Top[0].Username)
}

func TestDaily_GuestWinClaimedOnSignIn(t *testing.T) {
	e := newTestEnv(t)

	var first dailyNewRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/daily/new", nil, &first))
	require.Equal(t, game.PhaseWon, e.playToWin(t, first.GameID).Phase)
	e.signup(t, "daisy")

	var again dailyNewRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/daily/new", nil, &again))
	assert.True(t, again.Played)

	var lb dailyLBRes
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/daily/leaderboard", nil, &lb))
	require.Len(t, lb.Top, 1)
	assert.Equal(t, "daisy", lb.Top[0].Username)
}

func TestEviction_FinishedGame(t *testing.T) {
	e := newTestEnv(t)

	// Restarted before its eviction fires: stays.
	kept := e.newGame(t, nil).GameID
	require.Equal(t, game.PhaseWon, e.playToWin(t, kept).Phase)
	assert.Equal(t, 5*time.Minute, e.sched.LastDelay())
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/game/restart", map[string]any{"gameId": kept}, nil))

	id := e.newGame(t, nil).GameID
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/game/" + id + "/events"
	c, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer c.CloseNow()
	var ev stateEvent
	require.NoError(t, wsjson.Read(ctx, c, &ev))

	require.Equal(t, game.PhaseWon, e.playToWin(t, id).Phase)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/game/"+kept, nil, nil))

	// Finished games remain readable until the eviction fires.
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/game/"+id, nil, nil))
	e.sched.Flush()
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/game/"+id, nil, nil))
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/game/"+kept, nil, nil))
	assert.Equal(t, 1, e.store.Len())

	// Open streams end when their game goes away.
	for {
		if err = wsjson.Read(ctx, c, &ev); err != nil {
			break
		}
	}
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestEviction_IdleGamesSwept(t *testing.T) {
	e := newTestEnv(t)
	idle := e.newGame(t, nil).GameID
	pairs := e.pairsOf(t, idle)
	e.selectCard(t, idle, pairs["coin"][0])

	e.clock.Advance(61 * time.Minute)
	fresh := e.newGame(t, nil).GameID

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/game/"+idle, nil, nil))
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/game/"+fresh, nil, nil))
	assert.Equal(t, 1, e.store.Len())

	var status string
	require.NoError(t, e.db.QueryRow(`SELECT status FROM games WHERE id=?`, idle).Scan(&status))
	assert.Equal(t, history.StatusAbandoned, status)
}
