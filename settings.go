package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Duel Settings
// ============================================================================

const (
	MsgSettingsRefreshFail = "Failed to refresh duel settings: %v"
	MsgRankingsUpdateFail  = "Failed to update rankings message in guild %s: %v"
	MsgRankingsLoopStopped = "Rankings loop stopped."
	MsgRankingsTitle       = "Duel Rankings"

	DefaultYesEmoji = "✅"
	DefaultNoEmoji  = "❌"

	rankingsInterval = time.Minute
)

// DuelSettings is the per-guild duel configuration.
type DuelSettings struct {
	GuildID         snowflake.ID
	RankingsChannel snowflake.ID
	RankingsMessage snowflake.ID
	YesEmoji        string
	NoEmoji         string
	DuelChannels    []snowflake.ID
	DuelsEnabled    bool
}

// AllowsChannel reports whether duels may run in the given channel. An empty
// channel list allows every channel.
func (s *DuelSettings) AllowsChannel(channelID snowflake.ID) bool {
	if len(s.DuelChannels) == 0 {
		return true
	}
	for _, ch := range s.DuelChannels {
		if ch == channelID {
			return true
		}
	}
	return false
}

// clone returns a copy that shares no mutable state with the receiver. The
// channel slice is copied too, so a caller compacting its copy cannot corrupt
// anyone else's view.
func (s *DuelSettings) clone() *DuelSettings {
	copied := *s
	copied.DuelChannels = append([]snowflake.ID(nil), s.DuelChannels...)
	return &copied
}

func defaultSettings(guildID snowflake.ID) *DuelSettings {
	return &DuelSettings{
		GuildID:      guildID,
		YesEmoji:     DefaultYesEmoji,
		NoEmoji:      DefaultNoEmoji,
		DuelsEnabled: true,
	}
}

// SettingsStore persists per-guild duel settings.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get loads the guild's settings, falling back to defaults when the guild has
// never been configured.
func (s *SettingsStore) Get(ctx context.Context, guildID snowflake.ID) (*DuelSettings, error) {
	settings := defaultSettings(guildID)

	var rankingsChannel, rankingsMessage, yesEmoji, noEmoji, duelChannels sql.NullString
	var enabled int
	err := s.db.QueryRowContext(ctx, `
		SELECT rankings_channel, rankings_message, yes_emoji, no_emoji, duel_channels, duels_enabled
		FROM duel_settings WHERE guild_id = ?
	`, guildID.String()).Scan(&rankingsChannel, &rankingsMessage, &yesEmoji, &noEmoji, &duelChannels, &enabled)
	if err == sql.ErrNoRows {
		return settings, nil
	}
	if err != nil {
		return nil, err
	}

	settings.DuelsEnabled = enabled != 0
	if rankingsChannel.Valid && rankingsChannel.String != "" {
		if id, err := snowflake.Parse(rankingsChannel.String); err == nil {
			settings.RankingsChannel = id
		}
	}
	if rankingsMessage.Valid && rankingsMessage.String != "" {
		if id, err := snowflake.Parse(rankingsMessage.String); err == nil {
			settings.RankingsMessage = id
		}
	}
	if yesEmoji.Valid && yesEmoji.String != "" {
		settings.YesEmoji = yesEmoji.String
	}
	if noEmoji.Valid && noEmoji.String != "" {
		settings.NoEmoji = noEmoji.String
	}
	if duelChannels.Valid && duelChannels.String != "" {
		for _, part := range strings.Split(duelChannels.String, ",") {
			id, err := snowflake.Parse(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			settings.DuelChannels = append(settings.DuelChannels, id)
		}
	}

	return settings, nil
}

// Save upserts the guild's settings row.
func (s *SettingsStore) Save(ctx context.Context, settings *DuelSettings) error {
	channels := make([]string, 0, len(settings.DuelChannels))
	for _, ch := range settings.DuelChannels {
		channels = append(channels, ch.String())
	}

	enabled := 0
	if settings.DuelsEnabled {
		enabled = 1
	}

	rankingsChannel := ""
	if settings.RankingsChannel != 0 {
		rankingsChannel = settings.RankingsChannel.String()
	}
	rankingsMessage := ""
	if settings.RankingsMessage != 0 {
		rankingsMessage = settings.RankingsMessage.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO duel_settings (guild_id, rankings_channel, rankings_message, yes_emoji, no_emoji, duel_channels, duels_enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			rankings_channel = excluded.rankings_channel,
			rankings_message = excluded.rankings_message,
			yes_emoji = excluded.yes_emoji,
			no_emoji = excluded.no_emoji,
			duel_channels = excluded.duel_channels,
			duels_enabled = excluded.duels_enabled,
			updated_at = CURRENT_TIMESTAMP
	`, settings.GuildID.String(), rankingsChannel, rankingsMessage,
		settings.YesEmoji, settings.NoEmoji, strings.Join(channels, ","), enabled)
	return err
}

// Guilds returns every guild that has a settings row.
func (s *SettingsStore) Guilds(ctx context.Context) ([]snowflake.ID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT guild_id FROM duel_settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guilds []snowflake.ID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		id, err := snowflake.Parse(idStr)
		if err != nil {
			continue
		}
		guilds = append(guilds, id)
	}
	return guilds, rows.Err()
}

// --- Snapshot cache ---

// SettingsCache keeps the latest settings per guild in memory so the duel
// validation chain never blocks on the database mid-interaction. The rankings
// loop refreshes it once a minute; writes refresh it immediately.
type SettingsCache struct {
	mu      sync.RWMutex
	store   *SettingsStore
	byGuild map[snowflake.ID]*DuelSettings
}

func NewSettingsCache(store *SettingsStore) *SettingsCache {
	return &SettingsCache{
		store:   store,
		byGuild: make(map[snowflake.ID]*DuelSettings),
	}
}

// Snapshot returns the cached settings for the guild, loading them on first
// use. The returned value is a deep copy; mutating it never leaks into the
// cache or into other callers' snapshots.
func (c *SettingsCache) Snapshot(ctx context.Context, guildID snowflake.ID) *DuelSettings {
	c.mu.RLock()
	cached, ok := c.byGuild[guildID]
	c.mu.RUnlock()
	if ok {
		return cached.clone()
	}

	settings, err := c.store.Get(ctx, guildID)
	if err != nil {
		LogSettings(MsgSettingsRefreshFail, err)
		return defaultSettings(guildID)
	}

	c.mu.Lock()
	c.byGuild[guildID] = settings
	c.mu.Unlock()

	return settings.clone()
}

// Update saves the settings and refreshes the cache entry.
func (c *SettingsCache) Update(ctx context.Context, settings *DuelSettings) error {
	if err := c.store.Save(ctx, settings); err != nil {
		return err
	}

	c.mu.Lock()
	c.byGuild[settings.GuildID] = settings.clone()
	c.mu.Unlock()
	return nil
}

// Refresh reloads every known guild's settings from the store.
func (c *SettingsCache) Refresh(ctx context.Context) {
	guilds, err := c.store.Guilds(ctx)
	if err != nil {
		LogSettings(MsgSettingsRefreshFail, err)
		return
	}

	for _, guildID := range guilds {
		settings, err := c.store.Get(ctx, guildID)
		if err != nil {
			LogSettings(MsgSettingsRefreshFail, err)
			continue
		}
		c.mu.Lock()
		c.byGuild[guildID] = settings
		c.mu.Unlock()
	}
}

// ============================================================================
// Rankings Loop
// ============================================================================

func init() {
	OnClientReady(func(ctx context.Context, client bot.Client) {
		RegisterDaemon(LogSettings, func(ctx context.Context) (bool, func(), func()) {
			return StartRankingsLoop(ctx, client)
		})
	})
}

// StartRankingsLoop refreshes the settings cache and re-renders the rankings
// message for every configured guild once a minute.
func StartRankingsLoop(ctx context.Context, client bot.Client) (bool, func(), func()) {
	if Duels == nil {
		return false, nil, nil
	}

	stop := make(chan struct{})

	run := func() {
		ticker := time.NewTicker(rankingsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rankingsTick(ctx, client)
			case <-ctx.Done():
				LogSettings(MsgRankingsLoopStopped)
				return
			case <-stop:
				LogSettings(MsgRankingsLoopStopped)
				return
			}
		}
	}

	return true, run, func() { close(stop) }
}

func rankingsTick(ctx context.Context, client bot.Client) {
	Duels.Settings.Refresh(ctx)

	guilds, err := Duels.SettingsStore.Guilds(ctx)
	if err != nil {
		LogSettings(MsgSettingsRefreshFail, err)
		return
	}

	for _, guildID := range guilds {
		settings := Duels.Settings.Snapshot(ctx, guildID)
		if settings.RankingsChannel == 0 || settings.RankingsMessage == 0 {
			continue
		}
		if err := renderRankings(ctx, client, settings); err != nil {
			LogSettings(MsgRankingsUpdateFail, guildID, err)
		}
	}
}

func renderRankings(ctx context.Context, client bot.Client, settings *DuelSettings) error {
	players, err := Duels.Players.All(ctx)
	if err != nil {
		return err
	}

	var sb strings.Builder
	for i, p := range players {
		if i >= 20 {
			break
		}
		fmt.Fprintf(&sb, "**#%d** <@%s> - %d pts (%dW/%dL)\n", i+1, p.MemberID, p.Points, p.Wins, p.Losses)
	}
	if sb.Len() == 0 {
		sb.WriteString("No players registered yet.")
	}

	embed := discord.NewEmbedBuilder().
		SetTitle(MsgRankingsTitle).
		SetDescription(sb.String()).
		SetColor(0x39C5BB).
		SetTimestamp(time.Now()).
		Build()

	_, err = client.Rest.UpdateMessage(settings.RankingsChannel, settings.RankingsMessage,
		discord.NewMessageUpdateBuilder().SetEmbeds(embed).Build())
	return err
}
