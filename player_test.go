package main

import (
	"context"
	"database/sql"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database with the full schema.
// Shared by every store-level test in the package.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err, "Failed to open in-memory DB")

	// A single connection keeps every query on the same in-memory database.
	db.SetMaxOpenConns(1)

	require.NoError(t, createTables(context.Background(), db), "Failed to create schema")

	t.Cleanup(func() { db.Close() })
	return db
}

func TestPlayerRegisterAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore(setupTestDB(t))
	member := snowflake.ID(1111)

	registered, err := store.IsRegistered(ctx, member)
	require.NoError(t, err)
	assert.False(t, registered)

	_, err = store.Get(ctx, member)
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	require.NoError(t, store.Register(ctx, member))

	registered, err = store.IsRegistered(ctx, member)
	require.NoError(t, err)
	assert.True(t, registered)

	player, err := store.Get(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, member, player.MemberID)
	assert.Equal(t, 1200, player.Points)
	assert.Equal(t, 0, player.Wins)
	assert.Equal(t, 0, player.Losses)
	assert.Equal(t, 0, player.Streak)
}

func TestPlayerRegisterTwice(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore(setupTestDB(t))
	member := snowflake.ID(1111)

	require.NoError(t, store.Register(ctx, member))
	assert.Error(t, store.Register(ctx, member))
}

func TestPlayerUnregisterRemovesPacks(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore(setupTestDB(t))
	member := snowflake.ID(1111)

	require.NoError(t, store.Register(ctx, member))
	require.NoError(t, store.AddPack(ctx, member, "Future Sound"))

	require.NoError(t, store.Unregister(ctx, member))

	registered, err := store.IsRegistered(ctx, member)
	require.NoError(t, err)
	assert.False(t, registered)

	packs, err := store.Packs(ctx, member)
	require.NoError(t, err)
	assert.Empty(t, packs)
}

func TestPlayerAllAndRank(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewPlayerStore(db)

	for i, points := range []int{1100, 1300, 1200} {
		member := snowflake.ID(i + 1)
		require.NoError(t, store.Register(ctx, member))
		_, err := db.ExecContext(ctx, "UPDATE players SET points = ? WHERE member_id = ?", points, member.String())
		require.NoError(t, err)
	}

	players, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, players, 3)
	assert.Equal(t, 1300, players[0].Points)
	assert.Equal(t, 1200, players[1].Points)
	assert.Equal(t, 1100, players[2].Points)

	rank, err := store.Rank(ctx, snowflake.ID(2))
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	rank, err = store.Rank(ctx, snowflake.ID(1))
	require.NoError(t, err)
	assert.Equal(t, 3, rank)

	_, err = store.Rank(ctx, snowflake.ID(99))
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestPlayerPacks(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore(setupTestDB(t))
	member := snowflake.ID(1)

	require.NoError(t, store.Register(ctx, member))
	require.NoError(t, store.AddPack(ctx, member, "Colorful Tone"))
	require.NoError(t, store.AddPack(ctx, member, "Future Sound"))
	// Adding an owned pack is a no-op, not an error.
	require.NoError(t, store.AddPack(ctx, member, "Future Sound"))

	packs, err := store.Packs(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, []string{"Colorful Tone", "Future Sound"}, packs)

	require.NoError(t, store.RemovePack(ctx, member, "Colorful Tone"))
	packs, err = store.Packs(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, []string{"Future Sound"}, packs)
}

func TestWinrate(t *testing.T) {
	assert.Equal(t, "0%", (&Player{}).Winrate())
	assert.Equal(t, "100%", (&Player{Wins: 5}).Winrate())
	assert.Equal(t, "50.00%", (&Player{Wins: 3, Losses: 3}).Winrate())
	assert.Equal(t, "66.67%", (&Player{Wins: 2, Losses: 1}).Winrate())
}

func TestApplyOutcome(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore(setupTestDB(t))
	winner, loser := snowflake.ID(1), snowflake.ID(2)

	require.NoError(t, store.Register(ctx, winner))
	require.NoError(t, store.Register(ctx, loser))

	outcome := Outcome{
		WinnerID:     winner,
		WinnerPoints: 1225,
		LoserID:      loser,
		LoserPoints:  1175,
		Change:       25,
	}

	duelID, err := store.ApplyOutcome(ctx, outcome)
	require.NoError(t, err)
	assert.Greater(t, duelID, int64(0))

	w, err := store.Get(ctx, winner)
	require.NoError(t, err)
	assert.Equal(t, 1225, w.Points)
	assert.Equal(t, 1, w.Wins)
	assert.Equal(t, 1, w.Streak)

	l, err := store.Get(ctx, loser)
	require.NoError(t, err)
	assert.Equal(t, 1175, l.Points)
	assert.Equal(t, 1, l.Losses)
	assert.Equal(t, 0, l.Streak)

	recorded, err := store.GetDuel(ctx, duelID)
	require.NoError(t, err)
	assert.Equal(t, winner, recorded.WinnerID)
	assert.Equal(t, loser, recorded.LoserID)
	assert.Equal(t, 25, recorded.Change)

	count, err := store.DuelCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestApplyOutcomeStreaks(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore(setupTestDB(t))
	a, b := snowflake.ID(1), snowflake.ID(2)

	require.NoError(t, store.Register(ctx, a))
	require.NoError(t, store.Register(ctx, b))

	// a wins twice, then loses once.
	_, err := store.ApplyOutcome(ctx, Outcome{WinnerID: a, WinnerPoints: 1225, LoserID: b, LoserPoints: 1175, Change: 25})
	require.NoError(t, err)
	_, err = store.ApplyOutcome(ctx, Outcome{WinnerID: a, WinnerPoints: 1245, LoserID: b, LoserPoints: 1155, Change: 20})
	require.NoError(t, err)

	player, err := store.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, player.Streak)

	_, err = store.ApplyOutcome(ctx, Outcome{WinnerID: b, WinnerPoints: 1186, LoserID: a, LoserPoints: 1214, Change: 31})
	require.NoError(t, err)

	player, err = store.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 0, player.Streak)
	assert.Equal(t, 2, player.Wins)
	assert.Equal(t, 1, player.Losses)
}

// A missing player must roll the whole transaction back: no points move and
// no duel row is written.
func TestApplyOutcomeAtomicity(t *testing.T) {
	ctx := context.Background()
	store := NewPlayerStore(setupTestDB(t))
	winner := snowflake.ID(1)

	require.NoError(t, store.Register(ctx, winner))

	_, err := store.ApplyOutcome(ctx, Outcome{
		WinnerID:     winner,
		WinnerPoints: 1225,
		LoserID:      snowflake.ID(999),
		LoserPoints:  1175,
		Change:       25,
	})
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	w, err := store.Get(ctx, winner)
	require.NoError(t, err)
	assert.Equal(t, 1200, w.Points)
	assert.Equal(t, 0, w.Wins)
	assert.Equal(t, 0, w.Streak)

	count, err := store.DuelCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
