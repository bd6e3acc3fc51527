package repository

import (
	"database/sql"
	"fmt"

	"github.com/meowdiary/cookie-bot/database"
	"github.com/meowdiary/cookie-bot/models"
)

// CardRepository handles purchased card inventory
type CardRepository struct{}

// NewCardRepository creates a new card repository
func NewCardRepository() *CardRepository {
	return &CardRepository{}
}

// Purchase debits price from the user's balance and adds one card instance,
// atomically. Returns ok=false without error when the balance does not cover
// the price. The conditional UPDATE is the guard: a concurrent purchase that
// drains the balance first makes this one affect zero rows. With unique set,
// the ownership check runs inside the same transaction, so two concurrent
// purchases of the same card cannot both slip past it; the loser reports
// owned=true and leaves the balance untouched.
func (r *CardRepository) Purchase(userID int64, key string, price, ts int64, unique bool) (newBalance int64, ok, owned bool, err error) {
	err = database.WithTransaction(func(tx *sql.Tx) error {
		if unique {
			var held int64
			if scanErr := tx.QueryRow(`
				SELECT COUNT(*) FROM cards WHERE user_id = ? AND card = ?`,
				userID, key).Scan(&held); scanErr != nil {
				return fmt.Errorf("failed to check card ownership: %w", scanErr)
			}
			if held > 0 {
				owned = true
				return nil
			}
		}

		result, execErr := tx.Exec(`
			UPDATE users SET balance = balance - ?, updated_at = CURRENT_TIMESTAMP
			WHERE user_id = ? AND balance >= ?`,
			price, userID, price)
		if execErr != nil {
			return fmt.Errorf("failed to debit balance: %w", execErr)
		}

		affected, execErr := result.RowsAffected()
		if execErr != nil {
			return fmt.Errorf("failed to check debit result: %w", execErr)
		}
		if affected == 0 {
			ok = false
			return nil
		}

		if _, execErr := tx.Exec(`
			INSERT INTO cards (user_id, card, ts) VALUES (?, ?, ?)`,
			userID, key, ts); execErr != nil {
			return fmt.Errorf("failed to insert card: %w", execErr)
		}

		if scanErr := tx.QueryRow(`SELECT balance FROM users WHERE user_id = ?`,
			userID).Scan(&newBalance); scanErr != nil {
			return fmt.Errorf("failed to read balance after purchase: %w", scanErr)
		}
		ok = true
		return nil
	})
	return newBalance, ok, owned, err
}

// ListForUser returns all card instances a user holds, oldest first
func (r *CardRepository) ListForUser(userID int64) ([]models.OwnedCard, error) {
	rows, err := database.DB.Query(`
		SELECT card, ts FROM cards WHERE user_id = ? ORDER BY ts ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []models.OwnedCard
	for rows.Next() {
		c := models.OwnedCard{UserID: userID}
		if err := rows.Scan(&c.Key, &c.TS); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// CountsForUser returns how many instances of each card a user holds
func (r *CardRepository) CountsForUser(userID int64) (map[string]int64, error) {
	rows, err := database.DB.Query(`
		SELECT card, COUNT(*) FROM cards WHERE user_id = ? GROUP BY card`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count cards: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan card counts: %w", err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// Use consumes one instance of a card. Returns false when the user holds
// none of that card.
func (r *CardRepository) Use(userID int64, key string) (bool, error) {
	used := false
	err := database.WithRetry(func() error {
		result, execErr := database.DB.Exec(`
			DELETE FROM cards WHERE id = (
				SELECT id FROM cards WHERE user_id = ? AND card = ? ORDER BY ts ASC, id ASC LIMIT 1
			)`, userID, key)
		if execErr != nil {
			return fmt.Errorf("failed to use card: %w", execErr)
		}
		affected, execErr := result.RowsAffected()
		if execErr != nil {
			return fmt.Errorf("failed to check card use: %w", execErr)
		}
		used = affected > 0
		return nil
	})
	return used, err
}
