package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Round Protocol
// ============================================================================

const (
	MsgRoundRoll          = "🎲 **Round %d** (%d - %d)\nYour song is: **%s**\nReact with %s when you are ready. The round starts once both players are ready."
	MsgRoundPlayerReady   = "<@%s> is ready!"
	MsgRoundScoreVisible  = "<@%s> has confirmed posting their score!"
	MsgRoundAckFail       = "Failed to post round acknowledgement: %v"
	MsgRoundReadyTimeout  = "Both players were not ready in time. The duel has been cancelled."
	MsgRoundCountdown     = "**Round %d** starts in %d..."
	MsgRoundGo            = "**Round %d**: GO! Play **%s** now!"
	MsgRoundScorePrompt   = "⏱️ Time! React with %s once your score screen is visible."
	MsgRoundScoreTimeout  = "Score screens were not confirmed in time. The duel has been cancelled."
	MsgRoundClaimPrompt   = "Who won the round? First player to react with %s claims it."
	MsgRoundClaimTimeout  = "Nobody claimed the round in time. The duel has been cancelled."
	MsgRoundCounterPrompt = "<@%s> claims round %d. <@%s>, react with %s to confirm or %s to dispute."
	MsgRoundDisputed      = "<@%s> disputed the claim. Back to it: who won the round?"
	MsgRoundConfirmed     = "Round %d goes to <@%s>!"
	MsgRoundComplete      = "[%s] Round %d: %s"
)

// RoundResult is the terminal state of one round.
type RoundResult int

const (
	RoundAborted RoundResult = iota
	RoundPlayer1
	RoundPlayer2
)

// roundState carries everything a single round needs. Built fresh by the
// orchestrator for each round of the match.
type roundState struct {
	notifier Notifier
	matchID  string
	number   int
	player1  snowflake.ID
	player2  snowflake.ID
	score1   int
	score2   int
	songs    []Song
	yes      string
	no       string
	timing   DuelTiming
}

// awaitBoth waits for both players to activate the control on the same
// message within a shared deadline. Each player is acknowledged in-channel as
// their signal lands, so the one still waiting can see who is holding things
// up. Partial readiness is a failure.
func awaitBoth(n Notifier, ref MessageRef, control string, player1, player2 snowflake.ID, timeout time.Duration, ack string) bool {
	var wg sync.WaitGroup
	var ok1, ok2 bool

	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, ok1 = n.Await(ref, []string{control}, []snowflake.ID{player1}, timeout); ok1 {
			postAck(n, ack, player1)
		}
	}()
	go func() {
		defer wg.Done()
		if _, ok2 = n.Await(ref, []string{control}, []snowflake.ID{player2}, timeout); ok2 {
			postAck(n, ack, player2)
		}
	}()
	wg.Wait()

	return ok1 && ok2
}

func postAck(n Notifier, format string, player snowflake.ID) {
	if _, err := n.Post(fmt.Sprintf(format, player)); err != nil {
		LogDuel(MsgRoundAckFail, err)
	}
}

// Run plays one full round and returns who took it, or RoundAborted when any
// stage times out. Every stage clears its reactions on the way out.
func (r *roundState) Run() RoundResult {
	song := r.songs[rand.Intn(len(r.songs))]

	// Roll the song and wait for both players to ready up.
	ref, err := r.notifier.Post(fmt.Sprintf(MsgRoundRoll, r.number, r.score1, r.score2, song, r.yes))
	if err != nil {
		LogDuel(MsgRoundComplete, r.matchID, r.number, "post failed: "+err.Error())
		return RoundAborted
	}
	addControls(r.notifier, ref, r.yes)

	ready := awaitBoth(r.notifier, ref, r.yes, r.player1, r.player2, r.timing.Ready, MsgRoundPlayerReady)
	clearControls(r.notifier, ref, r.yes)
	if !ready {
		editMessage(r.notifier, ref, MsgRoundReadyTimeout)
		LogDuel(MsgRoundComplete, r.matchID, r.number, "ready timeout")
		return RoundAborted
	}

	// Visible countdown, then the play window.
	for tick := 5; tick > 0; tick-- {
		editMessage(r.notifier, ref, fmt.Sprintf(MsgRoundCountdown, r.number, tick))
		time.Sleep(r.timing.CountdownTick)
	}
	editMessage(r.notifier, ref, fmt.Sprintf(MsgRoundGo, r.number, song))
	time.Sleep(r.timing.PlayWindow)

	// Both players confirm their score screens.
	scoreRef, err := r.notifier.Post(fmt.Sprintf(MsgRoundScorePrompt, r.yes))
	if err != nil {
		LogDuel(MsgRoundComplete, r.matchID, r.number, "post failed: "+err.Error())
		return RoundAborted
	}
	addControls(r.notifier, scoreRef, r.yes)

	confirmed := awaitBoth(r.notifier, scoreRef, r.yes, r.player1, r.player2, r.timing.ScoreConfirm, MsgRoundScoreVisible)
	clearControls(r.notifier, scoreRef, r.yes)
	if !confirmed {
		editMessage(r.notifier, scoreRef, MsgRoundScoreTimeout)
		LogDuel(MsgRoundComplete, r.matchID, r.number, "score timeout")
		return RoundAborted
	}

	return r.resolveWinner()
}

// resolveWinner runs the claim / counter-confirmation loop: either player may
// claim the round, then the other must confirm. A dispute or a confirmation
// timeout sends the claim back up for grabs.
func (r *roundState) resolveWinner() RoundResult {
	for {
		claimRef, err := r.notifier.Post(fmt.Sprintf(MsgRoundClaimPrompt, r.yes))
		if err != nil {
			LogDuel(MsgRoundComplete, r.matchID, r.number, "post failed: "+err.Error())
			return RoundAborted
		}
		addControls(r.notifier, claimRef, r.yes)

		claim, ok := r.notifier.Await(claimRef, []string{r.yes}, []snowflake.ID{r.player1, r.player2}, r.timing.WinnerClaim)
		clearControls(r.notifier, claimRef, r.yes)
		if !ok {
			editMessage(r.notifier, claimRef, MsgRoundClaimTimeout)
			LogDuel(MsgRoundComplete, r.matchID, r.number, "claim timeout")
			return RoundAborted
		}

		claimer := claim.User
		other := r.player1
		if claimer == r.player1 {
			other = r.player2
		}

		counterRef, err := r.notifier.Post(fmt.Sprintf(MsgRoundCounterPrompt, claimer, r.number, other, r.yes, r.no))
		if err != nil {
			LogDuel(MsgRoundComplete, r.matchID, r.number, "post failed: "+err.Error())
			return RoundAborted
		}
		addControls(r.notifier, counterRef, r.yes, r.no)

		counter, ok := r.notifier.Await(counterRef, []string{r.yes, r.no}, []snowflake.ID{other}, r.timing.CounterConfirm)
		clearControls(r.notifier, counterRef, r.yes, r.no)

		if !ok || counter.Control == r.no {
			editMessage(r.notifier, counterRef, fmt.Sprintf(MsgRoundDisputed, other))
			continue
		}

		editMessage(r.notifier, counterRef, fmt.Sprintf(MsgRoundConfirmed, r.number, claimer))
		LogDuel(MsgRoundComplete, r.matchID, r.number, "won by "+claimer.String())

		if claimer == r.player1 {
			return RoundPlayer1
		}
		return RoundPlayer2
	}
}
