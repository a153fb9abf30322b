package main

import (
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Challenge Negotiation
// ============================================================================

const (
	MsgChallengePrompt   = "⚔️ <@%s>! <@%s> has challenged you to a **%s** duel!\nReact with %s to accept or %s to decline."
	MsgChallengeAccepted = "⚔️ <@%s> has accepted the challenge from <@%s>! The duel begins!"
	MsgChallengeDeclined = "<@%s> has declined the challenge from <@%s>."
	MsgChallengeExpired  = "The challenge from <@%s> to <@%s> has expired."
	MsgChallengeIssued   = "[%s] Challenge issued: %s vs %s (%s)"
	MsgChallengeOutcome  = "[%s] Challenge outcome: %s"
	MsgControlEditFail   = "Failed to edit duel message: %v"
	MsgControlClearFail  = "Failed to clear duel controls: %v"
)

// editMessage updates a duel message, logging instead of failing the duel when
// Discord rejects the edit.
func editMessage(n Notifier, ref MessageRef, content string) {
	if err := n.Edit(ref, content); err != nil {
		LogDuel(MsgControlEditFail, err)
	}
}

// clearControls removes the bot's own reactions from a stage message. Stages
// always clear their controls before moving on so stale reactions never feed
// a later stage.
func clearControls(n Notifier, ref MessageRef, controls ...string) {
	if err := n.ClearControls(ref, controls...); err != nil {
		LogDuel(MsgControlClearFail, err)
	}
}

// addControls attaches the stage's reactions in order. A failed reaction is
// not fatal; players can still react manually.
func addControls(n Notifier, ref MessageRef, controls ...string) {
	for _, control := range controls {
		if err := n.AddControl(ref, control); err != nil {
			LogDuel(MsgControlClearFail, err)
		}
	}
}

// RunChallengeNegotiation posts the challenge prompt and waits for the
// challenged player to accept or decline. Decline and timeout are normal
// outcomes, not errors; the error return covers only transport failures on
// the initial post.
func RunChallengeNegotiation(n Notifier, matchID string, issuer, target snowflake.ID, stakes Stakes, yes, no string, timeout time.Duration) (bool, error) {
	ref, err := n.Post(fmt.Sprintf(MsgChallengePrompt, target, issuer, stakes.Name, yes, no))
	if err != nil {
		return false, err
	}
	addControls(n, ref, yes, no)

	LogDuel(MsgChallengeIssued, matchID, issuer, target, stakes.Name)

	sig, ok := n.Await(ref, []string{yes, no}, []snowflake.ID{target}, timeout)
	clearControls(n, ref, yes, no)

	switch {
	case !ok:
		editMessage(n, ref, fmt.Sprintf(MsgChallengeExpired, issuer, target))
		LogDuel(MsgChallengeOutcome, matchID, "expired")
		return false, nil
	case sig.Control == no:
		editMessage(n, ref, fmt.Sprintf(MsgChallengeDeclined, target, issuer))
		LogDuel(MsgChallengeOutcome, matchID, "declined")
		return false, nil
	default:
		editMessage(n, ref, fmt.Sprintf(MsgChallengeAccepted, target, issuer))
		LogDuel(MsgChallengeOutcome, matchID, "accepted")
		return true, nil
	}
}
