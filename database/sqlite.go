package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// initSQLite initializes a SQLite database connection
func initSQLite(dbPath string) error {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database connection with optimized settings for concurrent access
	// journal_mode=WAL enables Write-Ahead Logging for better concurrent writes
	// busy_timeout=10000 waits up to 10 seconds before returning SQLITE_BUSY
	// synchronous=NORMAL is a good balance between safety and performance
	// foreign_keys=ON enables foreign key constraints
	// _txlock=immediate ensures write transactions get the lock immediately
	dsn := fmt.Sprintf("%s?_txlock=immediate"+
		"&_pragma=journal_mode(WAL)"+
		"&_pragma=busy_timeout(10000)"+
		"&_pragma=synchronous(NORMAL)"+
		"&_pragma=foreign_keys(ON)", dbPath)

	var err error
	DB, err = sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode allows multiple readers and one writer concurrently.
	// A small pool avoids connection overhead while still allowing
	// concurrent reads from the bot, the admin API and the CLI.
	DB.SetMaxOpenConns(5)
	DB.SetMaxIdleConns(2)

	// Test the connection
	if err := DB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Verify WAL mode is enabled
	var journalMode string
	if err := DB.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		log.Printf("Warning: Could not verify journal mode: %v", err)
	} else {
		log.Printf("SQLite journal mode: %s", journalMode)
	}

	dbType = DBTypeSQLite

	log.Printf("SQLite database initialized: %s", dbPath)
	return nil
}

// runSQLiteMigrations creates all required tables for SQLite
func runSQLiteMigrations() error {
	migrations := []string{
		// Users table. user_id is the Telegram user id, not an autoincrement.
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			username TEXT DEFAULT '',
			first_name TEXT DEFAULT '',
			last_name TEXT DEFAULT '',
			total_exp INTEGER NOT NULL DEFAULT 0,
			balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			level INTEGER NOT NULL DEFAULT 1,
			message_count INTEGER NOT NULL DEFAULT 0,
			joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Chats table. chat_id is the Telegram chat id.
		`CREATE TABLE IF NOT EXISTS chats (
			chat_id INTEGER PRIMARY KEY,
			title TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Messages table: append-only activity log
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			chat_id INTEGER NOT NULL REFERENCES chats(chat_id),
			msg_type TEXT NOT NULL DEFAULT 'text',
			ts INTEGER NOT NULL
		)`,

		// Indexes for per-user stats and per-chat leaderboards
		`CREATE INDEX IF NOT EXISTS idx_messages_user_ts ON messages(user_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages(chat_id, ts)`,

		// Achievement unlocks. The UNIQUE constraint is what makes unlocking
		// idempotent under concurrent re-evaluation.
		`CREATE TABLE IF NOT EXISTS achievements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			achievement TEXT NOT NULL,
			ts INTEGER NOT NULL,
			UNIQUE(user_id, achievement)
		)`,

		// Badge unlocks, same shape as achievements
		`CREATE TABLE IF NOT EXISTS badges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			badge TEXT NOT NULL,
			ts INTEGER NOT NULL,
			UNIQUE(user_id, badge)
		)`,

		// Card ownership: one row per owned card instance (stackable)
		`CREATE TABLE IF NOT EXISTS cards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			card TEXT NOT NULL,
			ts INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_cards_user_key ON cards(user_id, card)`,
	}

	for _, migration := range migrations {
		_, err := DB.Exec(migration)
		if err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE migrations
			errStr := err.Error()
			if containsIgnoreCase(errStr, "duplicate column") || containsIgnoreCase(errStr, "already exists") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	log.Println("SQLite migrations completed")
	return nil
}
