package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// ============================================================================
// Duel Orchestrator
// ============================================================================

const (
	MsgDuelStarting     = "[%s] Duel starting in channel %s: %s vs %s (%s, first to %d)"
	MsgDuelAborted      = "[%s] Duel aborted without an outcome."
	MsgDuelRecorded     = "[%s] Duel #%d recorded: %s defeats %s (%+d points)"
	MsgDuelRecordFail   = "[%s] Failed to record duel outcome: %v"
	MsgDuelNoSongs      = "You and <@%s> have no songs in common. Add your packs with `/duel packs`."
	MsgDuelResult       = "🏆 <@%s> wins the duel **%d - %d** against <@%s>!\n<@%s>: **%d** → **%d** (+%d)\n<@%s>: **%d** → **%d** (-%d)"
	MsgDuelForceResult  = "🏆 <@%s> has been granted a forced win against <@%s>!\n<@%s>: **%d** → **%d** (+%d)\n<@%s>: **%d** → **%d** (-%d)"
	MsgSongImportSkip   = "Song data path not set; skipping catalog import."
	MsgDuelManagerReady = "Duel manager initialized."
)

// Sentinel errors for the validation chain. The command layer maps each to
// its user-facing reply.
var (
	ErrDuelsDisabled      = errors.New("duels are currently disabled")
	ErrChannelNotAllowed  = errors.New("duels are not allowed in this channel")
	ErrSelfChallenge      = errors.New("you cannot challenge yourself")
	ErrIssuerUnregistered = errors.New("you are not registered as a duel player")
	ErrTargetUnregistered = errors.New("that player is not registered")
	ErrChannelBusy        = errors.New("a duel is already in progress in this channel")
	ErrInvalidStakes      = errors.New("invalid duel type, expected bo3, bo5 or bo9")
	ErrNoSharedSongs      = errors.New("no songs in common")
)

// DuelTiming holds every stage timeout in one place so tests can fast-forward
// the protocol without touching the wall clock.
type DuelTiming struct {
	Challenge      time.Duration
	Ready          time.Duration
	CountdownTick  time.Duration
	PlayWindow     time.Duration
	ScoreConfirm   time.Duration
	WinnerClaim    time.Duration
	CounterConfirm time.Duration
}

func DefaultDuelTiming() DuelTiming {
	return DuelTiming{
		Challenge:      60 * time.Second,
		Ready:          180 * time.Second,
		CountdownTick:  time.Second,
		PlayWindow:     120 * time.Second,
		ScoreConfirm:   300 * time.Second,
		WinnerClaim:    60 * time.Second,
		CounterConfirm: 60 * time.Second,
	}
}

// DuelManager wires the duel subsystem together. One instance lives for the
// process; tests build their own with in-memory stores and a fake notifier.
type DuelManager struct {
	Players       *PlayerStore
	Songs         *SongCatalog
	Settings      *SettingsCache
	SettingsStore *SettingsStore
	Locks         *ChannelLocks
	Timing        DuelTiming
}

// Duels is the process-wide duel manager, set during startup.
var Duels *DuelManager

func NewDuelManager(db *sql.DB) *DuelManager {
	store := NewSettingsStore(db)
	return &DuelManager{
		Players:       NewPlayerStore(db),
		Songs:         NewSongCatalog(db),
		Settings:      NewSettingsCache(store),
		SettingsStore: store,
		Locks:         NewChannelLocks(),
		Timing:        DefaultDuelTiming(),
	}
}

// InitDuelManager builds the global manager and seeds the song catalog from
// the configured CSV when the table is empty.
func InitDuelManager(db *sql.DB, cfg *Config) {
	Duels = NewDuelManager(db)

	if cfg.SongDataPath == "" {
		LogDuel(MsgSongImportSkip)
	} else if err := Duels.Songs.ImportCSV(context.Background(), cfg.SongDataPath); err != nil {
		LogError(MsgSongsImportFail, cfg.SongDataPath, err)
	}

	LogDuel(MsgDuelManagerReady)
}

// Challenge runs a full duel from validation to recorded outcome. It blocks
// for the duration of the match; callers run it on its own goroutine. The
// returned error is one of the sentinel precondition errors, or nil once the
// match has started (aborted matches are normal terminal outcomes).
func (m *DuelManager) Challenge(ctx context.Context, n Notifier, guildID, channelID, issuer, target snowflake.ID, stakesName string) error {
	settings := m.Settings.Snapshot(ctx, guildID)

	if !settings.DuelsEnabled {
		return ErrDuelsDisabled
	}
	if !settings.AllowsChannel(channelID) {
		return ErrChannelNotAllowed
	}
	if issuer == target {
		return ErrSelfChallenge
	}

	if registered, err := m.Players.IsRegistered(ctx, issuer); err != nil {
		return err
	} else if !registered {
		return ErrIssuerUnregistered
	}
	if registered, err := m.Players.IsRegistered(ctx, target); err != nil {
		return err
	} else if !registered {
		return ErrTargetUnregistered
	}

	if !m.Locks.TryAcquire(channelID) {
		return ErrChannelBusy
	}
	defer m.Locks.Release(channelID)

	stakes, ok := ParseStakes(stakesName)
	if !ok {
		return ErrInvalidStakes
	}

	matchID := uuid.NewString()[:8]

	accepted, err := RunChallengeNegotiation(n, matchID, issuer, target, stakes,
		settings.YesEmoji, settings.NoEmoji, m.Timing.Challenge)
	if err != nil {
		return err
	}
	if !accepted {
		return nil
	}

	songs, err := m.Songs.SharedSongs(ctx, issuer, target)
	if err != nil {
		return err
	}
	if len(songs) == 0 {
		if _, postErr := n.Post(fmt.Sprintf(MsgDuelNoSongs, target)); postErr != nil {
			LogDuel(MsgControlEditFail, postErr)
		}
		return ErrNoSharedSongs
	}

	LogDuel(MsgDuelStarting, matchID, channelID, issuer, target, stakes.Name, stakes.Threshold)

	score1, score2 := 0, 0
	for round := 1; score1 < stakes.Threshold && score2 < stakes.Threshold; round++ {
		state := &roundState{
			notifier: n,
			matchID:  matchID,
			number:   round,
			player1:  issuer,
			player2:  target,
			score1:   score1,
			score2:   score2,
			songs:    songs,
			yes:      settings.YesEmoji,
			no:       settings.NoEmoji,
			timing:   m.Timing,
		}

		switch state.Run() {
		case RoundPlayer1:
			score1++
		case RoundPlayer2:
			score2++
		default:
			LogDuel(MsgDuelAborted, matchID)
			return nil
		}
	}

	winner, loser := issuer, target
	winnerScore, loserScore := score1, score2
	if score2 > score1 {
		winner, loser = target, issuer
		winnerScore, loserScore = score2, score1
	}

	return m.processResults(ctx, n, matchID, winner, loser, winnerScore, loserScore, stakes, false)
}

// ForceCompleteMatch records an outcome without running the protocol. Owner
// shortcut; skips locking and registration checks beyond what the stores
// themselves enforce.
func (m *DuelManager) ForceCompleteMatch(ctx context.Context, n Notifier, winner, loser snowflake.ID, stakesName string) error {
	if winner == loser {
		return ErrSelfChallenge
	}

	stakes, ok := ParseStakes(stakesName)
	if !ok {
		return ErrInvalidStakes
	}

	matchID := uuid.NewString()[:8]
	return m.processResults(ctx, n, matchID, winner, loser, stakes.Threshold, 0, stakes, true)
}

// processResults computes the rating transfer, commits the outcome in one
// transaction and announces the new ratings.
func (m *DuelManager) processResults(ctx context.Context, n Notifier, matchID string, winner, loser snowflake.ID, winnerScore, loserScore int, stakes Stakes, forced bool) error {
	winnerPlayer, err := m.Players.Get(ctx, winner)
	if err != nil {
		return err
	}
	loserPlayer, err := m.Players.Get(ctx, loser)
	if err != nil {
		return err
	}

	delta, err := ComputeDelta(winnerPlayer.Points, loserPlayer.Points, stakes.Multiplier)
	if err != nil {
		return err
	}

	outcome := Outcome{
		WinnerID:     winner,
		WinnerPoints: winnerPlayer.Points + delta,
		LoserID:      loser,
		LoserPoints:  loserPlayer.Points - delta,
		Change:       delta,
	}

	duelID, err := m.Players.ApplyOutcome(ctx, outcome)
	if err != nil {
		LogError(MsgDuelRecordFail, matchID, err)
		return err
	}

	LogDuel(MsgDuelRecorded, matchID, duelID, winner, loser, delta)

	var announcement string
	if forced {
		announcement = fmt.Sprintf(MsgDuelForceResult, winner, loser,
			winner, winnerPlayer.Points, outcome.WinnerPoints, delta,
			loser, loserPlayer.Points, outcome.LoserPoints, delta)
	} else {
		announcement = fmt.Sprintf(MsgDuelResult, winner, winnerScore, loserScore, loser,
			winner, winnerPlayer.Points, outcome.WinnerPoints, delta,
			loser, loserPlayer.Points, outcome.LoserPoints, delta)
	}

	if _, err := n.Post(announcement); err != nil {
		LogDuel(MsgControlEditFail, err)
	}
	return nil
}
