package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Telegram
	BotToken string

	// Admin HTTP API
	Port        string
	FrontendURL string

	// Database
	DBType string // "sqlite" or "mysql"
	DBPath string // SQLite database path

	// MySQL
	MySQLHost            string
	MySQLPort            int
	MySQLUser            string
	MySQLPassword        string
	MySQLDatabase        string
	MySQLMaxOpenConns    int
	MySQLMaxIdleConns    int
	MySQLConnMaxLifetime time.Duration
	MySQLConnMaxIdleTime time.Duration

	// Rules (TOML definitions for achievements, badges, cards, levels)
	RulesPath string

	// JWT
	JWTSecret         string
	JWTExpirationDays int

	// Admin
	AdminPassword    string
	AdminTelegramIDs []int64

	// Chats: when non-empty, only these chat ids earn progression
	AllowedChatIDs []int64

	// Logging
	LogLevel  string
	LogFormat string
	LogOutput string
}

// Load reads configuration from environment variables
func Load() *Config {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		// Telegram
		BotToken: getEnv("BOT_TOKEN", ""),

		// Admin HTTP API
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:4200"),

		// Database
		DBType: getEnv("DB_TYPE", "sqlite"),
		DBPath: getEnv("DB_PATH", "data/chat.db"),

		// MySQL
		MySQLHost:            getEnv("MYSQL_HOST", "localhost"),
		MySQLPort:            getEnvAsInt("MYSQL_PORT", 3306),
		MySQLUser:            getEnv("MYSQL_USER", ""),
		MySQLPassword:        getEnv("MYSQL_PASSWORD", ""),
		MySQLDatabase:        getEnv("MYSQL_DATABASE", "cookie_bot"),
		MySQLMaxOpenConns:    getEnvAsInt("MYSQL_MAX_OPEN_CONNS", 25),
		MySQLMaxIdleConns:    getEnvAsInt("MYSQL_MAX_IDLE_CONNS", 5),
		MySQLConnMaxLifetime: getEnvAsDuration("MYSQL_CONN_MAX_LIFETIME", 5*time.Minute),
		MySQLConnMaxIdleTime: getEnvAsDuration("MYSQL_CONN_MAX_IDLE_TIME", 1*time.Minute),

		// Rules
		RulesPath: getEnv("RULES_PATH", "configs"),

		// JWT
		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTExpirationDays: getEnvAsInt("JWT_EXPIRATION_DAYS", 7),

		// Admin
		AdminPassword:    getEnv("ADMIN_PASSWORD", ""),
		AdminTelegramIDs: getEnvAsInt64Slice("ADMIN_TELEGRAM_IDS", nil),

		// Chats
		AllowedChatIDs: getEnvAsInt64Slice("ALLOWED_CHAT_IDS", nil),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),
	}

	if cfg.JWTSecret == "" {
		log.Println("Warning: JWT_SECRET not set, admin API logins will not survive restarts")
		cfg.JWTSecret = generateRandomSecret()
	}

	return cfg
}

// IsAdmin checks if the given Telegram user id is in the admin list
func (c *Config) IsAdmin(userID int64) bool {
	for _, adminID := range c.AdminTelegramIDs {
		if adminID == userID {
			return true
		}
	}
	return false
}

// ChatAllowed reports whether the chat participates in progression.
// An empty allowlist accepts every chat.
func (c *Config) ChatAllowed(chatID int64) bool {
	if len(c.AllowedChatIDs) == 0 {
		return true
	}
	for _, id := range c.AllowedChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

// getEnv reads an environment variable with a fallback default
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as an integer
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("Warning: invalid integer for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

// getEnvAsDuration reads an environment variable as a time.Duration
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Warning: invalid duration for %s, using default %s", key, defaultValue)
	}
	return defaultValue
}

// getEnvAsInt64Slice reads an environment variable as a comma-separated list of int64s
func getEnvAsInt64Slice(key string, defaultValue []int64) []int64 {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		result := make([]int64, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if intValue, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
				result = append(result, intValue)
			}
		}
		return result
	}
	return defaultValue
}

func generateRandomSecret() string {
	// Not cryptographically strong but only used as a dev fallback.
	return strconv.FormatInt(time.Now().UnixNano(), 36) + strconv.FormatInt(int64(os.Getpid()), 36)
}
