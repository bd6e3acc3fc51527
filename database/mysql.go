package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLConfig holds MySQL connection configuration
type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// Connection pool configuration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultMySQLConfig returns a MySQLConfig with sensible defaults
func DefaultMySQLConfig() MySQLConfig {
	return MySQLConfig{
		Host:            "localhost",
		Port:            3306,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// initMySQL initializes a MySQL database connection
func initMySQL(cfg MySQLConfig) error {
	// First, try to create the database if it doesn't exist
	if err := ensureMySQLDatabaseExists(cfg); err != nil {
		return fmt.Errorf("failed to ensure database exists: %w", err)
	}

	mysqlCfg := mysql.NewConfig()
	mysqlCfg.User = cfg.User
	mysqlCfg.Passwd = cfg.Password
	mysqlCfg.Net = "tcp"
	mysqlCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mysqlCfg.DBName = cfg.Database
	mysqlCfg.ParseTime = true
	mysqlCfg.Loc = time.UTC
	mysqlCfg.MultiStatements = true
	mysqlCfg.InterpolateParams = true

	dsn := mysqlCfg.FormatDSN()
	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Configure connection pool
	DB.SetMaxOpenConns(cfg.MaxOpenConns)
	DB.SetMaxIdleConns(cfg.MaxIdleConns)
	DB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	DB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := DB.Ping(); err != nil {
		return fmt.Errorf("failed to ping MySQL database: %w", err)
	}

	dbType = DBTypeMySQL

	log.Printf("MySQL database initialized: %s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
	return nil
}

// ensureMySQLDatabaseExists connects without a database and creates it if necessary
func ensureMySQLDatabaseExists(cfg MySQLConfig) error {
	mysqlCfg := mysql.NewConfig()
	mysqlCfg.User = cfg.User
	mysqlCfg.Passwd = cfg.Password
	mysqlCfg.Net = "tcp"
	mysqlCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mysqlCfg.ParseTime = true
	mysqlCfg.Loc = time.UTC
	mysqlCfg.MultiStatements = true

	dsn := mysqlCfg.FormatDSN()
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping MySQL server: %w", err)
	}

	createDBSQL := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", cfg.Database)
	if _, err := db.Exec(createDBSQL); err != nil {
		return fmt.Errorf("failed to create database '%s': %w", cfg.Database, err)
	}

	log.Printf("Ensured MySQL database '%s' exists", cfg.Database)
	return nil
}

// runMySQLMigrations creates all required tables for MySQL
func runMySQLMigrations() error {
	migrations := []string{
		// Users table (MySQL-compatible)
		`CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL DEFAULT '',
			first_name VARCHAR(255) NOT NULL DEFAULT '',
			last_name VARCHAR(255) NOT NULL DEFAULT '',
			total_exp BIGINT NOT NULL DEFAULT 0,
			balance BIGINT NOT NULL DEFAULT 0,
			level INT NOT NULL DEFAULT 1,
			message_count BIGINT NOT NULL DEFAULT 0,
			joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			CHECK (balance >= 0)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

		`CREATE TABLE IF NOT EXISTS chats (
			chat_id BIGINT PRIMARY KEY,
			title VARCHAR(255) NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

		`CREATE TABLE IF NOT EXISTS messages (
			id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
			user_id BIGINT NOT NULL,
			chat_id BIGINT NOT NULL,
			msg_type VARCHAR(20) NOT NULL DEFAULT 'text',
			ts BIGINT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE,
			FOREIGN KEY (chat_id) REFERENCES chats(chat_id) ON DELETE CASCADE,
			INDEX idx_messages_user_ts (user_id, ts),
			INDEX idx_messages_chat_ts (chat_id, ts)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

		`CREATE TABLE IF NOT EXISTS achievements (
			id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
			user_id BIGINT NOT NULL,
			achievement VARCHAR(100) NOT NULL,
			ts BIGINT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE,
			UNIQUE KEY uq_achievements_user_key (user_id, achievement)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

		`CREATE TABLE IF NOT EXISTS badges (
			id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
			user_id BIGINT NOT NULL,
			badge VARCHAR(100) NOT NULL,
			ts BIGINT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE,
			UNIQUE KEY uq_badges_user_key (user_id, badge)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

		`CREATE TABLE IF NOT EXISTS cards (
			id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
			user_id BIGINT NOT NULL,
			card VARCHAR(100) NOT NULL,
			ts BIGINT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE,
			INDEX idx_cards_user_key (user_id, card)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	}

	for _, migration := range migrations {
		_, err := DB.Exec(migration)
		if err != nil {
			errStr := err.Error()
			if containsIgnoreCase(errStr, "duplicate column") || containsIgnoreCase(errStr, "already exists") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	log.Println("MySQL migrations completed")
	return nil
}
