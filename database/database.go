package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// DBType identifies the configured database backend
type DBType string

const (
	DBTypeSQLite DBType = "sqlite"
	DBTypeMySQL  DBType = "mysql"
)

// DB holds the database connection
var DB *sql.DB

// dbType tracks which backend is active
var dbType DBType

// ErrBusy is returned when SQLite is busy after all retries
var ErrBusy = errors.New("database is busy, please try again")

// Config selects and configures the database backend
type Config struct {
	Type DBType

	// SQLite
	Path string

	// MySQL
	MySQL MySQLConfig
}

// Init initializes the database connection and runs migrations
func Init(cfg Config) error {
	switch cfg.Type {
	case DBTypeMySQL:
		if err := initMySQL(cfg.MySQL); err != nil {
			return err
		}
		if err := runMySQLMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	case DBTypeSQLite, "":
		if err := initSQLite(cfg.Path); err != nil {
			return err
		}
		if err := runSQLiteMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	default:
		return fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	log.Printf("Database initialized (%s)", dbType)
	return nil
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

// Type returns the active backend type
func Type() DBType {
	return dbType
}

// isBusyError checks if an error is a SQLite BUSY error
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "busy") || strings.Contains(errStr, "locked")
}

// WithRetry executes a function with retry logic for SQLITE_BUSY errors.
// It will retry up to maxRetries times with exponential backoff.
// For MySQL, the function is executed without retry logic.
func WithRetry(fn func() error) error {
	return WithRetryContext(context.Background(), fn)
}

// WithRetryContext executes a function with retry logic and context support
func WithRetryContext(ctx context.Context, fn func() error) error {
	// For MySQL, no retry needed - just execute the function
	if dbType == DBTypeMySQL {
		return fn()
	}

	// SQLite retry logic
	const maxRetries = 5
	baseDelay := 50 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		// Check context before each attempt
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		// Only retry on SQLITE_BUSY errors
		if !isBusyError(lastErr) {
			return lastErr
		}

		if attempt > 0 {
			log.Printf("SQLite busy, retry attempt %d/%d", attempt+1, maxRetries)
		}

		// Exponential backoff: 50ms, 100ms, 200ms, 400ms, 800ms
		delay := baseDelay * time.Duration(1<<attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Printf("SQLite busy after %d retries: %v", maxRetries, lastErr)
	return ErrBusy
}

// WithTransaction executes a function within a transaction with retry support.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func WithTransaction(fn func(tx *sql.Tx) error) error {
	return WithRetry(func() error {
		tx, err := DB.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := fn(tx); err != nil {
			// Attempt rollback, ignore rollback errors
			_ = tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		return nil
	})
}

// Wipe drops every table and recreates the schema. Irreversible; callers
// are responsible for confirming with the operator first.
func Wipe() error {
	tables := []string{"cards", "badges", "achievements", "messages", "chats", "users"}
	for _, table := range tables {
		if _, err := DB.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}

	if dbType == DBTypeMySQL {
		return runMySQLMigrations()
	}
	return runSQLiteMigrations()
}

// containsIgnoreCase checks if a string contains a substring (case-insensitive)
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
