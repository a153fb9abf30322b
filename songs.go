package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Song Catalog
// ============================================================================

const (
	MsgSongsImported   = "Info loaded for %d song(s) from %s."
	MsgSongsImportFail = "Error reading song data from %s: %v"
	MsgSongsShared     = "Generated list of %d shared song(s) between %s and %s."
)

type Song struct {
	TitleEN string
	TitleJP string
}

// String renders the song the way duel messages roll it.
func (s Song) String() string {
	return fmt.Sprintf("%s \\ %s", s.TitleEN, s.TitleJP)
}

// SongCatalog maps song packs to the songs they unlock.
type SongCatalog struct {
	db *sql.DB
}

func NewSongCatalog(db *sql.DB) *SongCatalog {
	return &SongCatalog{db: db}
}

func (c *SongCatalog) Count(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM songs").Scan(&count)
	return count, err
}

// Packs returns every known pack name.
func (c *SongCatalog) Packs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT DISTINCT pack FROM songs ORDER BY pack")
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

// SongsForPlayer returns every song unlocked by any pack the player owns.
func (c *SongCatalog) SongsForPlayer(ctx context.Context, memberID snowflake.ID) ([]Song, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT s.title_en, s.title_jp
		FROM songs s
		JOIN player_packs p ON p.pack = s.pack
		WHERE p.member_id = ?
		ORDER BY s.title_en
	`, memberID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		var s Song
		if err := rows.Scan(&s.TitleEN, &s.TitleJP); err != nil {
			return nil, err
		}
		songs = append(songs, s)
	}
	return songs, rows.Err()
}

// SharedSongs returns the intersection of the two players' song sets. An
// empty result is valid and means the pair has nothing to duel over.
func (c *SongCatalog) SharedSongs(ctx context.Context, player1, player2 snowflake.ID) ([]Song, error) {
	songs1, err := c.SongsForPlayer(ctx, player1)
	if err != nil {
		return nil, err
	}
	songs2, err := c.SongsForPlayer(ctx, player2)
	if err != nil {
		return nil, err
	}

	owned := make(map[Song]struct{}, len(songs1))
	for _, s := range songs1 {
		owned[s] = struct{}{}
	}

	var shared []Song
	for _, s := range songs2 {
		if _, ok := owned[s]; ok {
			shared = append(shared, s)
		}
	}

	LogDuel(MsgSongsShared, len(shared), player1, player2)
	return shared, nil
}

// ImportCSV loads the song catalog from the original matrix-format CSV: the
// first two columns are the English and Japanese titles, every further column
// is a pack name, and a cell containing a check mark means the pack unlocks
// that song. Rows are only inserted when the table is empty.
func (c *SongCatalog) ImportCSV(ctx context.Context, path string) error {
	count, err := c.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return err
	}
	if len(records) < 2 {
		return fmt.Errorf("song data %s has no rows", path)
	}

	header := records[0]
	if len(header) < 3 {
		return fmt.Errorf("song data %s has no pack columns", path)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO songs (title_en, title_jp, pack) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	imported := 0
	for _, row := range records[1:] {
		if len(row) != len(header) {
			continue
		}
		for col := 2; col < len(row); col++ {
			if row[col] != "✓" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, row[0], row[1], header[col]); err != nil {
				return err
			}
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	LogDuel(MsgSongsImported, imported, path)
	return nil
}
