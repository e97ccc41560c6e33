package daily

import (
	"context"
	"database/sql"
)

// Result is one player's finished deal of the day.
type Result struct {
	PlayerID  string `json:"playerId,omitempty"` // user ID or guest ID
	Username  string `json:"username,omitempty"`
	Date      string `json:"date"`
	GameID    string `json:"gameId"`
	Moves     int    `json:"moves"`
	ElapsedMs int64  `json:"elapsedMs"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// AlreadyPlayed reports whether playerID has a result for date.
func (s *Store) AlreadyPlayed(ctx context.Context, playerID, date string) (bool, error) {
	var cnt int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM daily_results WHERE player_id=? AND date=?`,
		playerID, date,
	).Scan(&cnt)
	return cnt > 0, err
}

// InsertResult stores a result; a second result for the same player and date is ignored.
func (s *Store) InsertResult(ctx context.Context, r Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO daily_results(player_id, date, game_id, moves, elapsed_ms)
         VALUES(?,?,?,?,?)`, r.PlayerID, r.Date, r.GameID, r.Moves, r.ElapsedMs,
	)
	return err
}

// Leaderboard returns the best results for date: fewest moves, then fastest.
func (s *Store) Leaderboard(ctx context.Context, date string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.player_id, COALESCE(u.username, 'guest'), d.date, d.game_id, d.moves, d.elapsed_ms
         FROM daily_results d
         LEFT JOIN users u ON u.id = d.player_id
         WHERE d.date=?
         ORDER BY d.moves ASC, d.elapsed_ms ASC, d.created_at ASC
         LIMIT ?`, date, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Result{}
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.PlayerID, &r.Username, &r.Date, &r.GameID, &r.Moves, &r.ElapsedMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
