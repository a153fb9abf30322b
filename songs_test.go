package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSongs(t *testing.T, db *sql.DB, rows [][3]string) {
	t.Helper()
	for _, row := range rows {
		_, err := db.Exec("INSERT INTO songs (title_en, title_jp, pack) VALUES (?, ?, ?)", row[0], row[1], row[2])
		require.NoError(t, err)
	}
}

func TestSongCatalogPacks(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	catalog := NewSongCatalog(db)

	seedSongs(t, db, [][3]string{
		{"Melt", "メルト", "Future Sound"},
		{"World is Mine", "ワールドイズマイン", "Future Sound"},
		{"Senbonzakura", "千本桜", "Colorful Tone"},
	})

	packs, err := catalog.Packs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Colorful Tone", "Future Sound"}, packs)

	count, err := catalog.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSharedSongs(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	catalog := NewSongCatalog(db)
	players := NewPlayerStore(db)

	seedSongs(t, db, [][3]string{
		{"Melt", "メルト", "Future Sound"},
		{"World is Mine", "ワールドイズマイン", "Future Sound"},
		{"Senbonzakura", "千本桜", "Colorful Tone"},
		{"Melt", "メルト", "Mega Pack"},
	})

	p1, p2 := snowflake.ID(1), snowflake.ID(2)
	require.NoError(t, players.Register(ctx, p1))
	require.NoError(t, players.Register(ctx, p2))
	require.NoError(t, players.AddPack(ctx, p1, "Future Sound"))
	require.NoError(t, players.AddPack(ctx, p2, "Mega Pack"))

	// Melt is shared through different packs.
	shared, err := catalog.SharedSongs(ctx, p1, p2)
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, "Melt", shared[0].TitleEN)

	// Disjoint libraries share nothing; that is a valid empty result.
	require.NoError(t, players.RemovePack(ctx, p2, "Mega Pack"))
	require.NoError(t, players.AddPack(ctx, p2, "Colorful Tone"))

	shared, err = catalog.SharedSongs(ctx, p1, p2)
	require.NoError(t, err)
	assert.Empty(t, shared)
}

func TestSongString(t *testing.T) {
	song := Song{TitleEN: "Melt", TitleJP: "メルト"}
	assert.Equal(t, `Melt \ メルト`, song.String())
}

func TestImportCSV(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	catalog := NewSongCatalog(db)

	csvPath := filepath.Join(t.TempDir(), "song_data.csv")
	data := "Eng Title,JP Title,Future Sound,Colorful Tone\n" +
		"Melt,メルト,✓,\n" +
		"Senbonzakura,千本桜,,✓\n" +
		"World is Mine,ワールドイズマイン,✓,✓\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(data), 0644))

	require.NoError(t, catalog.ImportCSV(ctx, csvPath))

	count, err := catalog.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	packs, err := catalog.Packs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Colorful Tone", "Future Sound"}, packs)

	// A second import is a no-op while the table is populated.
	require.NoError(t, catalog.ImportCSV(ctx, csvPath))
	count, err = catalog.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestImportCSVMissingFile(t *testing.T) {
	ctx := context.Background()
	catalog := NewSongCatalog(setupTestDB(t))
	assert.Error(t, catalog.ImportCSV(ctx, filepath.Join(t.TempDir(), "nope.csv")))
}
