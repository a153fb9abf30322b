package main

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Command Registration
// ============================================================================

func init() {
	RegisterCommand(discord.SlashCommandCreate{
		Name:        "duel",
		Description: "Project DIVA dueling commands",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "register",
				Description: "Register as a duel player",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionUser{
						Name:        "player",
						Description: "Register another player (owner only)",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "unregister",
				Description: "Remove a player from the duel system",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionUser{
						Name:        "player",
						Description: "Unregister another player (owner only)",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "rank",
				Description: "View your player profile and ranking",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "packs",
				Description: "Manage your owned song packs",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "action",
						Description: "What to do",
						Required:    true,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "Add", Value: "add"},
							{Name: "Remove", Value: "remove"},
							{Name: "List", Value: "list"},
						},
					},
					discord.ApplicationCommandOptionString{
						Name:        "pack",
						Description: "The pack name (required for add/remove)",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "roll",
				Description: "Roll a random song you share with another player",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionUser{
						Name:        "player",
						Description: "The other player",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "challenge",
				Description: "Challenge another player to a duel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionUser{
						Name:        "player",
						Description: "The player to challenge",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "stakes",
						Description: "Duel length (default: bo3)",
						Required:    false,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "Best of 3", Value: "bo3"},
							{Name: "Best of 5", Value: "bo5"},
							{Name: "Best of 9", Value: "bo9"},
						},
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "convert",
				Description: "Convert a score between Future Tone and MegaMix",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "direction",
						Description: "Conversion direction",
						Required:    true,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "Future Tone to MegaMix", Value: "ft2mm"},
							{Name: "MegaMix to Future Tone", Value: "mm2ft"},
						},
					},
					discord.ApplicationCommandOptionInt{
						Name:        "score",
						Description: "The score to convert",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "results",
				Description: "View a recorded duel (owner only)",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "id",
						Description: "The duel ID",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "forcewin",
				Description: "Force a duel outcome (owner only)",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionUser{
						Name:        "winner",
						Description: "The winning player",
						Required:    true,
					},
					discord.ApplicationCommandOptionUser{
						Name:        "loser",
						Description: "The losing player",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "stakes",
						Description: "Duel length (default: bo3)",
						Required:    false,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "Best of 3", Value: "bo3"},
							{Name: "Best of 5", Value: "bo5"},
							{Name: "Best of 9", Value: "bo9"},
						},
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "channel",
				Description: "Allow or disallow duels in this channel (owner only)",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "action",
						Description: "What to do",
						Required:    true,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "Add", Value: "add"},
							{Name: "Remove", Value: "remove"},
						},
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "toggle",
				Description: "Enable or disable duels guild-wide (owner only)",
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		subCmd := data.SubCommandName
		if subCmd == nil {
			return
		}

		switch *subCmd {
		case "register":
			handleDuelRegister(event, data)
		case "unregister":
			handleDuelUnregister(event, data)
		case "rank":
			handleDuelRank(event)
		case "packs":
			handleDuelPacks(event, data)
		case "roll":
			handleDuelRoll(event, data)
		case "challenge":
			handleDuelChallenge(event, data)
		case "convert":
			handleDuelConvert(event, data)
		case "results":
			handleDuelResults(event, data)
		case "forcewin":
			handleDuelForcewin(event, data)
		case "channel":
			handleDuelChannel(event, data)
		case "toggle":
			handleDuelToggle(event)
		}
	})
}

// ============================================================================
// Constants
// ============================================================================

const (
	MsgCmdNoManager        = "The duel system is still starting up. Try again in a moment."
	MsgCmdOwnerOnly        = "Only a bot owner can use this."
	MsgCmdGuildOnly        = "Duels only work inside a server."
	MsgCmdRegistered       = "You've been registered for duels, <@%s>! Set your owned packs with `/duel packs`."
	MsgCmdRegisterFail     = "There was an error registering <@%s>. Are they already registered?"
	MsgCmdUnregistered     = "<@%s> has been removed from the duel system."
	MsgCmdUnregisterFail   = "There was an error unregistering <@%s>."
	MsgCmdNotRegistered    = "You must be registered to do that. Use `/duel register` first."
	MsgCmdPackNeeded       = "You need to name a pack for that action."
	MsgCmdPackUnknown      = "Unknown pack: **%s**. Use `/duel packs list` to see valid names."
	MsgCmdPackAdded        = "Added **%s** to your packs."
	MsgCmdPackRemoved      = "Removed **%s** from your packs."
	MsgCmdPackListEmpty    = "You haven't selected any packs yet."
	MsgCmdRollNoShared     = "You and <@%s> have no songs in common."
	MsgCmdRollResult       = "🎲 Rolled from the songs you share with <@%s>: **%s**"
	MsgCmdConvertMM        = "MegaMix converted score: %d"
	MsgCmdConvertFT        = "Future Tone converted score: %d"
	MsgCmdConvertSus       = "That's... a suspiciously high score you got there. Might wanna check that out?"
	MsgCmdChallengeSent    = "Challenge sent to <@%s>!"
	MsgCmdNoBots           = "Bots don't duel. Pick a human."
	MsgCmdResultsNotFound  = "No duel found with ID %d."
	MsgCmdForcewinDone     = "Forced win recorded."
	MsgCmdForcewinFail     = "Failed to record the forced win: %v"
	MsgCmdChannelAdded     = "This channel now allows duels."
	MsgCmdChannelRemoved   = "This channel no longer allows duels."
	MsgCmdChannelNotListed = "This channel was not in the duel channel list."
	MsgCmdDuelsEnabled     = "Duels are now **enabled**."
	MsgCmdDuelsDisabled    = "Duels are now **disabled**."
	MsgCmdSettingsFail     = "Failed to update duel settings: %v"
	MsgCmdGenericFail      = "Something went wrong. Try again later."

	duelEmbedColor = 0x80FFFF
)

// ============================================================================
// Handlers
// ============================================================================

func replyEphemeral(event *events.ApplicationCommandInteractionCreate, format string, v ...any) {
	event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(fmt.Sprintf(format, v...)).
		SetEphemeral(true).
		Build())
}

func reply(event *events.ApplicationCommandInteractionCreate, format string, v ...any) {
	event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(fmt.Sprintf(format, v...)).
		Build())
}

// requireManager guards every handler against the narrow window before the
// duel manager is wired during startup.
func requireManager(event *events.ApplicationCommandInteractionCreate) bool {
	if Duels == nil {
		replyEphemeral(event, MsgCmdNoManager)
		return false
	}
	return true
}

func requireOwner(event *events.ApplicationCommandInteractionCreate) bool {
	if !GlobalConfig.IsOwner(event.User().ID.String()) {
		replyEphemeral(event, MsgCmdOwnerOnly)
		return false
	}
	return true
}

func handleDuelRegister(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if !requireManager(event) {
		return
	}

	target := event.User().ID
	if player, ok := data.OptUser("player"); ok && player.ID != target {
		if !requireOwner(event) {
			return
		}
		target = player.ID
	}

	if err := Duels.Players.Register(AppContext, target); err != nil {
		LogDuel("Failed to register %s: %v", target, err)
		replyEphemeral(event, MsgCmdRegisterFail, target)
		return
	}
	reply(event, MsgCmdRegistered, target)
}

func handleDuelUnregister(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if !requireManager(event) {
		return
	}

	target := event.User().ID
	if player, ok := data.OptUser("player"); ok && player.ID != target {
		if !requireOwner(event) {
			return
		}
		target = player.ID
	}

	if err := Duels.Players.Unregister(AppContext, target); err != nil {
		replyEphemeral(event, MsgCmdUnregisterFail, target)
		return
	}
	reply(event, MsgCmdUnregistered, target)
}

func handleDuelRank(event *events.ApplicationCommandInteractionCreate) {
	if !requireManager(event) {
		return
	}

	userID := event.User().ID
	player, err := Duels.Players.Get(AppContext, userID)
	if err != nil {
		replyEphemeral(event, MsgCmdNotRegistered)
		return
	}

	rank, err := Duels.Players.Rank(AppContext, userID)
	if err != nil {
		replyEphemeral(event, MsgCmdGenericFail)
		return
	}

	embed := discord.NewEmbedBuilder().
		SetTitle(event.User().Username).
		SetDescription("Player Ranking").
		SetColor(duelEmbedColor).
		AddField("Rank", fmt.Sprintf("%d", rank), true).
		AddField("ELO", fmt.Sprintf("%d", player.Points), true).
		AddField("Winrate", player.Winrate(), false).
		AddField("Wins", fmt.Sprintf("%d", player.Wins), true).
		AddField("Losses", fmt.Sprintf("%d", player.Losses), true).
		AddField("Winstreak", fmt.Sprintf("%d", player.Streak), false).
		SetFooterText("Use /duel rank to view your own player info").
		SetThumbnail(event.User().EffectiveAvatarURL()).
		Build()

	event.CreateMessage(discord.NewMessageCreateBuilder().SetEmbeds(embed).Build())
}

func handleDuelPacks(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if !requireManager(event) {
		return
	}

	userID := event.User().ID
	if registered, err := Duels.Players.IsRegistered(AppContext, userID); err != nil || !registered {
		replyEphemeral(event, MsgCmdNotRegistered)
		return
	}

	action, _ := data.OptString("action")
	pack, _ := data.OptString("pack")

	switch action {
	case "add", "remove":
		if pack == "" {
			replyEphemeral(event, MsgCmdPackNeeded)
			return
		}

		known, err := Duels.Songs.Packs(AppContext)
		if err != nil {
			replyEphemeral(event, MsgCmdGenericFail)
			return
		}
		valid := false
		for _, p := range known {
			if strings.EqualFold(p, pack) {
				pack = p
				valid = true
				break
			}
		}
		if !valid {
			replyEphemeral(event, MsgCmdPackUnknown, pack)
			return
		}

		if action == "add" {
			if err := Duels.Players.AddPack(AppContext, userID, pack); err != nil {
				replyEphemeral(event, MsgCmdGenericFail)
				return
			}
			replyEphemeral(event, MsgCmdPackAdded, pack)
		} else {
			if err := Duels.Players.RemovePack(AppContext, userID, pack); err != nil {
				replyEphemeral(event, MsgCmdGenericFail)
				return
			}
			replyEphemeral(event, MsgCmdPackRemoved, pack)
		}

	default:
		packs, err := Duels.Players.Packs(AppContext, userID)
		if err != nil {
			replyEphemeral(event, MsgCmdGenericFail)
			return
		}
		if len(packs) == 0 {
			replyEphemeral(event, MsgCmdPackListEmpty)
			return
		}
		sort.Strings(packs)

		embed := discord.NewEmbedBuilder().
			SetTitle(event.User().Username).
			SetDescription("Player Games & DLC").
			SetColor(duelEmbedColor).
			AddField("Owned:", strings.Join(packs, "\n"), true).
			SetFooterText("Use /duel packs to manage your own packs").
			Build()

		event.CreateMessage(discord.NewMessageCreateBuilder().SetEmbeds(embed).SetEphemeral(true).Build())
	}
}

func handleDuelRoll(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if !requireManager(event) {
		return
	}

	other, ok := data.OptUser("player")
	if !ok {
		return
	}

	songs, err := Duels.Songs.SharedSongs(AppContext, event.User().ID, other.ID)
	if err != nil {
		replyEphemeral(event, MsgCmdGenericFail)
		return
	}
	if len(songs) == 0 {
		replyEphemeral(event, MsgCmdRollNoShared, other.ID)
		return
	}

	song := songs[rand.Intn(len(songs))]
	reply(event, MsgCmdRollResult, other.ID, song)
}

func handleDuelChallenge(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if !requireManager(event) {
		return
	}

	guildID := event.GuildID()
	if guildID == nil {
		replyEphemeral(event, MsgCmdGuildOnly)
		return
	}

	target, ok := data.OptUser("player")
	if !ok {
		return
	}
	if target.Bot {
		replyEphemeral(event, MsgCmdNoBots)
		return
	}

	stakes := "bo3"
	if s, ok := data.OptString("stakes"); ok {
		stakes = s
	}

	issuer := event.User().ID
	channelID := event.Channel().ID()
	client := *event.Client()

	replyEphemeral(event, MsgCmdChallengeSent, target.ID)

	safeGo(func() {
		notifier := NewDiscordNotifier(client, channelID)
		err := Duels.Challenge(AppContext, notifier, *guildID, channelID, issuer, target.ID, stakes)
		if err != nil {
			// Precondition failures are posted to the channel, matching
			// how the rest of the duel flow communicates.
			if _, postErr := notifier.Post(fmt.Sprintf("<@%s>, %v.", issuer, err)); postErr != nil {
				LogDuel(MsgControlEditFail, postErr)
			}
		}
	})
}

func handleDuelConvert(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	direction, _ := data.OptString("direction")
	score, _ := data.OptInt("score")

	sus := false
	switch direction {
	case "ft2mm":
		converted := int(math.Round(float64(score) / 1.1))
		reply(event, MsgCmdConvertMM, converted)
		sus = score > 1500000
	case "mm2ft":
		converted := int(math.Round(float64(score) * 1.1))
		reply(event, MsgCmdConvertFT, converted)
		sus = score > 1365000
	default:
		return
	}

	if sus {
		client := *event.Client()
		channelID := event.Channel().ID()
		safeGo(func() {
			notifier := NewDiscordNotifier(client, channelID)
			if _, err := notifier.Post(MsgCmdConvertSus); err != nil {
				LogDuel(MsgControlEditFail, err)
			}
		})
	}
}

func handleDuelResults(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if !requireManager(event) || !requireOwner(event) {
		return
	}

	id, _ := data.OptInt("id")
	duel, err := Duels.Players.GetDuel(AppContext, int64(id))
	if err != nil {
		replyEphemeral(event, MsgCmdResultsNotFound, id)
		return
	}

	embed := discord.NewEmbedBuilder().
		SetTitle(fmt.Sprintf("Duel #%d", duel.ID)).
		SetColor(duelEmbedColor).
		AddField("Winner", fmt.Sprintf("<@%s>", duel.WinnerID), true).
		AddField("New ELO", fmt.Sprintf("%d", duel.WinnerPoints), true).
		AddField("​", "​", false).
		AddField("Loser", fmt.Sprintf("<@%s>", duel.LoserID), true).
		AddField("New ELO", fmt.Sprintf("%d", duel.LoserPoints), true).
		AddField("Points transferred", fmt.Sprintf("%d", duel.Change), false).
		Build()

	event.CreateMessage(discord.NewMessageCreateBuilder().SetEmbeds(embed).SetEphemeral(true).Build())
}

func handleDuelForcewin(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if !requireManager(event) || !requireOwner(event) {
		return
	}

	winner, ok := data.OptUser("winner")
	if !ok {
		return
	}
	loser, ok := data.OptUser("loser")
	if !ok {
		return
	}

	stakes := "bo3"
	if s, ok := data.OptString("stakes"); ok {
		stakes = s
	}

	channelID := event.Channel().ID()
	client := *event.Client()

	replyEphemeral(event, MsgCmdForcewinDone)

	safeGo(func() {
		notifier := NewDiscordNotifier(client, channelID)
		if err := Duels.ForceCompleteMatch(AppContext, notifier, winner.ID, loser.ID, stakes); err != nil {
			LogError(MsgCmdForcewinFail, err)
		}
	})
}

func handleDuelChannel(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if !requireManager(event) || !requireOwner(event) {
		return
	}

	guildID := event.GuildID()
	if guildID == nil {
		replyEphemeral(event, MsgCmdGuildOnly)
		return
	}

	action, _ := data.OptString("action")
	channelID := event.Channel().ID()
	settings := Duels.Settings.Snapshot(AppContext, *guildID)

	switch action {
	case "add":
		for _, ch := range settings.DuelChannels {
			if ch == channelID {
				replyEphemeral(event, MsgCmdChannelAdded)
				return
			}
		}
		settings.DuelChannels = append(settings.DuelChannels, channelID)
		if err := Duels.Settings.Update(AppContext, settings); err != nil {
			replyEphemeral(event, MsgCmdSettingsFail, err)
			return
		}
		replyEphemeral(event, MsgCmdChannelAdded)

	case "remove":
		filtered := make([]snowflake.ID, 0, len(settings.DuelChannels))
		removed := false
		for _, ch := range settings.DuelChannels {
			if ch == channelID {
				removed = true
				continue
			}
			filtered = append(filtered, ch)
		}
		if !removed {
			replyEphemeral(event, MsgCmdChannelNotListed)
			return
		}
		settings.DuelChannels = filtered
		if err := Duels.Settings.Update(AppContext, settings); err != nil {
			replyEphemeral(event, MsgCmdSettingsFail, err)
			return
		}
		replyEphemeral(event, MsgCmdChannelRemoved)
	}
}

func handleDuelToggle(event *events.ApplicationCommandInteractionCreate) {
	if !requireManager(event) || !requireOwner(event) {
		return
	}

	guildID := event.GuildID()
	if guildID == nil {
		replyEphemeral(event, MsgCmdGuildOnly)
		return
	}

	settings := Duels.Settings.Snapshot(AppContext, *guildID)
	settings.DuelsEnabled = !settings.DuelsEnabled

	if err := Duels.Settings.Update(AppContext, settings); err != nil {
		replyEphemeral(event, MsgCmdSettingsFail, err)
		return
	}

	if settings.DuelsEnabled {
		reply(event, MsgCmdDuelsEnabled)
	} else {
		reply(event, MsgCmdDuelsDisabled)
	}
}
