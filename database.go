package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ============================================================================
// Database
// ============================================================================

const (
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
)

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	if err := createTables(initCtx, DB); err != nil {
		return err
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

// createTables is separate from InitDatabase so tests can build the schema
// on their own in-memory handles.
func createTables(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS players (
			member_id TEXT PRIMARY KEY,
			points INTEGER NOT NULL DEFAULT 1200,
			win INTEGER NOT NULL DEFAULT 0,
			loss INTEGER NOT NULL DEFAULT 0,
			streak INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS player_packs (
			member_id TEXT NOT NULL,
			pack TEXT NOT NULL,
			PRIMARY KEY (member_id, pack)
		)`,
		`CREATE TABLE IF NOT EXISTS songs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title_en TEXT NOT NULL,
			title_jp TEXT NOT NULL,
			pack TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS duels (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			win_id TEXT NOT NULL,
			win_points INTEGER NOT NULL,
			lose_id TEXT NOT NULL,
			lose_points INTEGER NOT NULL,
			change INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS duel_settings (
			guild_id TEXT PRIMARY KEY,
			rankings_channel TEXT,
			rankings_message TEXT,
			yes_emoji TEXT,
			no_emoji TEXT,
			duel_channels TEXT,
			duels_enabled INTEGER NOT NULL DEFAULT 1,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_songs_pack ON songs(pack)`,
		`CREATE INDEX IF NOT EXISTS idx_duels_win_id ON duels(win_id)`,
		`CREATE INDEX IF NOT EXISTS idx_duels_lose_id ON duels(lose_id)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	return tx.Commit()
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Infrastructure & Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}
