package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Players
// ============================================================================

var ErrPlayerNotFound = errors.New("player not registered")

type Player struct {
	MemberID snowflake.ID
	Points   int
	Wins     int
	Losses   int
	Streak   int
}

// Winrate returns the player's winrate as a display string.
func (p *Player) Winrate() string {
	if p.Wins == 0 {
		return "0%"
	}
	if p.Losses == 0 {
		return "100%"
	}
	return fmt.Sprintf("%.2f%%", float64(p.Wins)/float64(p.Wins+p.Losses)*100)
}

// Outcome is the persisted result of one completed duel. It is written
// exactly once and never mutated.
type Outcome struct {
	WinnerID     snowflake.ID
	WinnerPoints int
	LoserID      snowflake.ID
	LoserPoints  int
	Change       int
}

// RecordedDuel is an Outcome as read back from the duels table.
type RecordedDuel struct {
	ID int64
	Outcome
}

// PlayerStore owns all player and duel-record persistence.
type PlayerStore struct {
	db *sql.DB
}

func NewPlayerStore(db *sql.DB) *PlayerStore {
	return &PlayerStore{db: db}
}

func (s *PlayerStore) IsRegistered(ctx context.Context, memberID snowflake.ID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM players WHERE member_id = ?", memberID.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *PlayerStore) Get(ctx context.Context, memberID snowflake.ID) (*Player, error) {
	p := &Player{MemberID: memberID}
	err := s.db.QueryRowContext(ctx, `
		SELECT points, win, loss, streak FROM players WHERE member_id = ?
	`, memberID.String()).Scan(&p.Points, &p.Wins, &p.Losses, &p.Streak)
	if err == sql.ErrNoRows {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Register creates the player record with the starting rating. Registering an
// already-registered player is an error.
func (s *PlayerStore) Register(ctx context.Context, memberID snowflake.ID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (member_id, points, win, loss, streak) VALUES (?, 1200, 0, 0, 0)
	`, memberID.String())
	return err
}

func (s *PlayerStore) Unregister(ctx context.Context, memberID snowflake.ID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM players WHERE member_id = ?", memberID.String()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM player_packs WHERE member_id = ?", memberID.String()); err != nil {
		return err
	}
	return tx.Commit()
}

// All returns every registered player ordered by rating, best first.
func (s *PlayerStore) All(ctx context.Context) ([]*Player, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT member_id, points, win, loss, streak FROM players ORDER BY points DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []*Player
	for rows.Next() {
		p := &Player{}
		var idStr string
		if err := rows.Scan(&idStr, &p.Points, &p.Wins, &p.Losses, &p.Streak); err != nil {
			return nil, err
		}
		p.MemberID, err = snowflake.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse member ID '%s': %w", idStr, err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// Rank returns the player's position in the rankings, 1 being the best.
func (s *PlayerStore) Rank(ctx context.Context, memberID snowflake.ID) (int, error) {
	var rank int
	err := s.db.QueryRowContext(ctx, `
		WITH ranks AS (SELECT member_id, RANK() OVER (ORDER BY points DESC) AS r FROM players)
		SELECT r FROM ranks WHERE member_id = ?
	`, memberID.String()).Scan(&rank)
	if err == sql.ErrNoRows {
		return 0, ErrPlayerNotFound
	}
	return rank, err
}

// --- Pack ownership ---

func (s *PlayerStore) AddPack(ctx context.Context, memberID snowflake.ID, pack string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO player_packs (member_id, pack) VALUES (?, ?)
		ON CONFLICT(member_id, pack) DO NOTHING
	`, memberID.String(), pack)
	return err
}

func (s *PlayerStore) RemovePack(ctx context.Context, memberID snowflake.ID, pack string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM player_packs WHERE member_id = ? AND pack = ?", memberID.String(), pack)
	return err
}

func (s *PlayerStore) Packs(ctx context.Context, memberID snowflake.ID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT pack FROM player_packs WHERE member_id = ? ORDER BY pack", memberID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packs []string
	for rows.Next() {
		var pack string
		if err := rows.Scan(&pack); err != nil {
			return nil, err
		}
		packs = append(packs, pack)
	}
	return packs, rows.Err()
}

// --- Outcomes ---

// ApplyOutcome commits a finished duel in a single transaction: the winner
// gains the points and extends their streak, the loser drops the points and
// their streak resets, and the duel record is appended. Either every write
// lands or none do.
func (s *PlayerStore) ApplyOutcome(ctx context.Context, o Outcome) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE players SET points = ?, win = win + 1, streak = streak + 1 WHERE member_id = ?
	`, o.WinnerPoints, o.WinnerID.String())
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("winner %s: %w", o.WinnerID, ErrPlayerNotFound)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE players SET points = ?, loss = loss + 1, streak = 0 WHERE member_id = ?
	`, o.LoserPoints, o.LoserID.String())
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("loser %s: %w", o.LoserID, ErrPlayerNotFound)
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO duels (win_id, win_points, lose_id, lose_points, change) VALUES (?, ?, ?, ?, ?)
	`, o.WinnerID.String(), o.WinnerPoints, o.LoserID.String(), o.LoserPoints, o.Change)
	if err != nil {
		return 0, err
	}

	duelID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	return duelID, tx.Commit()
}

// GetDuel fetches a recorded duel by its ID.
func (s *PlayerStore) GetDuel(ctx context.Context, id int64) (*RecordedDuel, error) {
	d := &RecordedDuel{ID: id}
	var winID, loseID string
	err := s.db.QueryRowContext(ctx, `
		SELECT win_id, win_points, lose_id, lose_points, change FROM duels WHERE id = ?
	`, id).Scan(&winID, &d.WinnerPoints, &loseID, &d.LoserPoints, &d.Change)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("duel #%d not found", id)
	}
	if err != nil {
		return nil, err
	}
	d.WinnerID, err = snowflake.Parse(winID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse winner ID '%s': %w", winID, err)
	}
	d.LoserID, err = snowflake.Parse(loseID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse loser ID '%s': %w", loseID, err)
	}
	return d, nil
}

// DuelCount returns how many duels have been recorded.
func (s *PlayerStore) DuelCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM duels").Scan(&count)
	return count, err
}
