// internal/history/store.go
//
// SQLite-backed history of played games plus the accounts they belong to.
// Exposes:
//   - StartGame / FinishGame / AbandonGame: one row per game generation.
//   - Leaderboard: fastest wins for a board size.
//   - RecentGames: per-user history.
//   - ClaimAnonymous: move a guest's games and daily results onto an account after sign-in.
//   - CreateUser / UserByID / UserByUsername: account rows.

package history

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/robalobadob/pairs/apps/go-server/internal/game"
)

var (
	ErrUserNotFound  = errors.New("history: user not found")
	ErrUsernameTaken = errors.New("history: username taken")
)

// tsLayout is fixed-width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Status values stored in games.status.
const (
	StatusPlaying   = "playing"
	StatusWon       = "won"
	StatusLost      = "lost"
	StatusAbandoned = "abandoned"
)

// Store wraps the history database.
type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Start describes a newly dealt game generation and its owner.
// Exactly one of UserID and AnonymousID is expected to be set.
type Start struct {
	ID          string
	Generation  uint64
	UserID      string
	AnonymousID string
	Pairs       int
	MaxAttempts int
	StartedAt   time.Time
}

// StartGame records a new generation. Recording the same one twice is a no-op.
func (s *Store) StartGame(ctx context.Context, st Start) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO games
            (id, generation, user_id, anonymous_id, pairs, max_attempts, status, started_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, int64(st.Generation), nullable(st.UserID), nullable(st.AnonymousID),
		st.Pairs, st.MaxAttempts, StatusPlaying, st.StartedAt.UTC().Format(tsLayout),
	)
	return err
}

// FinishGame stores the outcome of a finished generation and, for account
// games, bumps the owner's counters in the same transaction. Only a row still
// in "playing" is updated, so replays are harmless.
func (s *Store) FinishGame(ctx context.Context, r game.Result) error {
	status := StatusLost
	if r.Phase == game.PhaseWon {
		status = StatusWon
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
        UPDATE games
        SET status=?, moves=?, mismatches=?, finished_at=?, elapsed_ms=?
        WHERE id=? AND generation=? AND status=?`,
		status, r.Moves, r.Mismatches, r.FinishedAt.UTC().Format(tsLayout),
		r.Elapsed().Milliseconds(), r.ID, int64(r.Generation), StatusPlaying,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tx.Commit()
	}

	var userID sql.NullString
	if err := tx.QueryRowContext(ctx,
		`SELECT user_id FROM games WHERE id=? AND generation=?`, r.ID, int64(r.Generation),
	).Scan(&userID); err != nil {
		return err
	}
	if userID.Valid {
		if err := bumpStats(ctx, tx, userID.String, status == StatusWon); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AbandonGame marks a generation that was replaced before it finished.
func (s *Store) AbandonGame(ctx context.Context, id string, generation uint64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE games SET status=? WHERE id=? AND generation=? AND status=?`,
		StatusAbandoned, id, int64(generation), StatusPlaying,
	)
	return err
}

// bumpStats increments games played; updates wins and streak based on result (within tx).
func bumpStats(ctx context.Context, tx *sql.Tx, userID string, won bool) error {
	var gp, wins, streak int
	row := tx.QueryRowContext(ctx, `SELECT games_played, wins, streak FROM users WHERE id=?`, userID)
	if err := row.Scan(&gp, &wins, &streak); err != nil {
		return err
	}
	gp++
	if won {
		wins++
		streak++
	} else {
		streak = 0
	}
	_, err := tx.ExecContext(ctx, `UPDATE users SET games_played=?, wins=?, streak=? WHERE id=?`, gp, wins, streak, userID)
	return err
}

// LBRow is one leaderboard entry.
type LBRow struct {
	GameID    string `json:"gameId"`
	Username  string `json:"username"`
	Moves     int    `json:"moves"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// Leaderboard returns the best won games for a board of the given size,
// ordered by moves, then elapsed time, then finish time.
func (s *Store) Leaderboard(ctx context.Context, pairs, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT g.id, COALESCE(u.username, 'guest'), g.moves, COALESCE(g.elapsed_ms, 0)
        FROM games g
        LEFT JOIN users u ON u.id = g.user_id
        WHERE g.pairs=? AND g.status=?
        ORDER BY g.moves ASC, g.elapsed_ms ASC, g.finished_at ASC
        LIMIT ?`, pairs, StatusWon, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LBRow, 0, limit)
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.GameID, &r.Username, &r.Moves, &r.ElapsedMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GameRow is one entry of a user's history.
type GameRow struct {
	ID         string `json:"id"`
	Generation uint64 `json:"generation"`
	Status     string `json:"status"`
	Pairs      int    `json:"pairs"`
	Moves      int    `json:"moves"`
	Mismatches int    `json:"mismatches"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

// RecentGames lists a user's latest games, newest first.
func (s *Store) RecentGames(ctx context.Context, userID string, limit int) ([]GameRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, generation, status, pairs, moves, mismatches, started_at, COALESCE(finished_at, '')
        FROM games
        WHERE user_id=?
        ORDER BY started_at DESC, generation DESC
        LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []GameRow{}
	for rows.Next() {
		var (
			r   GameRow
			gen int64
		)
		if err := rows.Scan(&r.ID, &gen, &r.Status, &r.Pairs, &r.Moves, &r.Mismatches, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.Generation = uint64(gen)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ClaimAnonymous transfers a guest's games and daily results to an account.
// For a date the account already has a daily result for, the guest's result
// is dropped so the account keeps one per date.
func (s *Store) ClaimAnonymous(ctx context.Context, anonID, userID string) error {
	if anonID == "" || userID == "" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE games SET user_id=?, anonymous_id=NULL WHERE anonymous_id=?`, userID, anonID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE OR IGNORE daily_results SET player_id=? WHERE player_id=?`, userID, anonID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM daily_results WHERE player_id=?`, anonID); err != nil {
		return err
	}
	return tx.Commit()
}

// User matches the users table shape.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	GamesPlayed  int       `json:"gamesPlayed"`
	Wins         int       `json:"wins"`
	Streak       int       `json:"streak"`
}

// CreateUser inserts an account. Usernames are unique case-insensitively.
func (s *Store) CreateUser(ctx context.Context, id, username, passwordHash string, now time.Time) (*User, error) {
	now = now.UTC().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)`,
		id, username, passwordHash, now.Format(time.RFC3339))
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return &User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// UserByID loads a user or returns ErrUserNotFound.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
        SELECT id, username, password_hash, created_at, games_played, wins, streak
        FROM users WHERE id=?`, id))
}

// UserByUsername loads a user by case-insensitive name or returns ErrUserNotFound.
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
        SELECT id, username, password_hash, created_at, games_played, wins, streak
        FROM users WHERE username=?`, username))
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u       User
		created string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &created, &u.GamesPlayed, &u.Wins, &u.Streak); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &u, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
