package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/meowdiary/cookie-bot/database"
	"github.com/meowdiary/cookie-bot/models"
)

// UserRepository handles user database operations
type UserRepository struct{}

// NewUserRepository creates a new user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

const userColumns = `user_id, username, first_name, last_name, total_exp, balance, level, message_count, joined_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.UserID, &user.Username, &user.FirstName, &user.LastName,
		&user.TotalExp, &user.Balance, &user.Level, &user.MessageCount,
		&user.JoinedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID finds a user by Telegram user id
func (r *UserRepository) GetByID(userID int64) (*models.User, error) {
	user, err := scanUser(database.DB.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

// GetAll returns all users ordered by lifetime experience (ties by user id)
func (r *UserRepository) GetAll() ([]models.User, error) {
	rows, err := database.DB.Query(
		`SELECT ` + userColumns + ` FROM users ORDER BY total_exp DESC, user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// Upsert creates the user on first sight or refreshes the identity fields
// when they changed. Progression columns are never touched here.
func (r *UserRepository) Upsert(userID int64, username, firstName, lastName string) error {
	return database.WithRetry(func() error {
		existing, err := r.GetByID(userID)
		if err != nil {
			return err
		}

		if existing != nil {
			if existing.Username == username && existing.FirstName == firstName && existing.LastName == lastName {
				return nil
			}
			_, err := database.DB.Exec(`
				UPDATE users
				SET username = ?, first_name = ?, last_name = ?, updated_at = CURRENT_TIMESTAMP
				WHERE user_id = ?`,
				username, firstName, lastName, userID)
			if err != nil {
				return fmt.Errorf("failed to update user: %w", err)
			}
			return nil
		}

		_, err = database.DB.Exec(`
			INSERT INTO users (user_id, username, first_name, last_name)
			VALUES (?, ?, ?, ?)`,
			userID, username, firstName, lastName)
		if err != nil {
			// A concurrent handler may have inserted the row between the
			// read and the write; that race is harmless.
			if isDuplicateError(err) {
				return nil
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
}

// AddActivity counts one message for the user and credits the awarded points
// to both the lifetime total and the spendable balance. Points may be zero
// when the daily cap has been reached; the message still counts.
func (r *UserRepository) AddActivity(userID, points int64) (*models.User, error) {
	err := database.WithRetry(func() error {
		_, err := database.DB.Exec(`
			UPDATE users
			SET total_exp = total_exp + ?, balance = balance + ?,
			    message_count = message_count + 1, updated_at = CURRENT_TIMESTAMP
			WHERE user_id = ?`,
			points, points, userID)
		if err != nil {
			return fmt.Errorf("failed to add activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(userID)
}

// GrantPoints credits points to both totals without counting a message
// (achievement rewards, positive administrative grants).
func (r *UserRepository) GrantPoints(userID, points int64) (*models.User, error) {
	err := database.WithRetry(func() error {
		_, err := database.DB.Exec(`
			UPDATE users
			SET total_exp = total_exp + ?, balance = balance + ?, updated_at = CURRENT_TIMESTAMP
			WHERE user_id = ?`,
			points, points, userID)
		if err != nil {
			return fmt.Errorf("failed to grant points: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(userID)
}

// DeductBalance removes points from the spendable balance only. The
// conditional WHERE clause makes the debit atomic: it never succeeds when it
// would drive the balance negative, even under concurrent debits.
// Returns the new balance and whether the debit was applied.
func (r *UserRepository) DeductBalance(userID, amount int64) (int64, bool, error) {
	var rowsAffected int64

	err := database.WithRetry(func() error {
		result, err := database.DB.Exec(`
			UPDATE users
			SET balance = balance - ?, updated_at = CURRENT_TIMESTAMP
			WHERE user_id = ? AND balance >= ?`,
			amount, userID, amount)
		if err != nil {
			return fmt.Errorf("failed to deduct balance: %w", err)
		}
		rowsAffected, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	user, err := r.GetByID(userID)
	if err != nil {
		return 0, false, err
	}
	if user == nil {
		return 0, false, nil
	}
	return user.Balance, rowsAffected > 0, nil
}

// SetLevel stores a newly reached level
func (r *UserRepository) SetLevel(userID int64, level int) error {
	return database.WithRetry(func() error {
		_, err := database.DB.Exec(`
			UPDATE users SET level = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
			level, userID)
		if err != nil {
			return fmt.Errorf("failed to set level: %w", err)
		}
		return nil
	})
}

// Delete removes a user and every progression row attached to them
func (r *UserRepository) Delete(userID int64) error {
	return database.WithTransaction(func(tx *sql.Tx) error {
		for _, table := range []string{"cards", "badges", "achievements", "messages"} {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE user_id = ?`, userID); err != nil {
				return fmt.Errorf("failed to delete %s rows: %w", table, err)
			}
		}
		if _, err := tx.Exec(`DELETE FROM users WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
}

// StatsForUser assembles the statistics snapshot predicates are evaluated
// against. Counts come from the live tables, so an administrative change is
// visible to the very next evaluation.
func (r *UserRepository) StatsForUser(userID int64) (models.UserStats, error) {
	stats := models.UserStats{UserID: userID}

	user, err := r.GetByID(userID)
	if err != nil {
		return stats, err
	}
	if user == nil {
		return stats, nil
	}
	stats.MessageCount = user.MessageCount
	stats.TotalPoints = user.TotalExp
	stats.Balance = user.Balance
	if !user.JoinedAt.IsZero() {
		stats.AccountAgeDays = int64(time.Since(user.JoinedAt).Hours() / 24)
	}

	rows, err := database.DB.Query(`
		SELECT msg_type, COUNT(*) FROM messages WHERE user_id = ? GROUP BY msg_type`, userID)
	if err != nil {
		return stats, fmt.Errorf("failed to count messages by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var msgType string
		var count int64
		if err := rows.Scan(&msgType, &count); err != nil {
			return stats, fmt.Errorf("failed to scan message count: %w", err)
		}
		switch models.MessageType(msgType) {
		case models.MessagePhoto:
			stats.PhotoCount = count
		case models.MessageSticker:
			stats.StickerCount = count
		case models.MessageVoice:
			stats.VoiceCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM achievements WHERE user_id = ?`, &stats.AchievementCount},
		{`SELECT COUNT(*) FROM badges WHERE user_id = ?`, &stats.BadgeCount},
		{`SELECT COUNT(*) FROM cards WHERE user_id = ?`, &stats.CardCount},
	}
	for _, c := range counts {
		if err := database.DB.QueryRow(c.query, userID).Scan(c.dest); err != nil {
			return stats, fmt.Errorf("failed to count junction rows: %w", err)
		}
	}

	return stats, nil
}

// isDuplicateError checks for unique-constraint violations across backends
func isDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
