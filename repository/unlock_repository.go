package repository

import (
	"fmt"

	"github.com/meowdiary/cookie-bot/database"
	"github.com/meowdiary/cookie-bot/models"
)

// UnlockRepository handles achievement and badge grants
type UnlockRepository struct{}

// NewUnlockRepository creates a new unlock repository
func NewUnlockRepository() *UnlockRepository {
	return &UnlockRepository{}
}

// unlockTable maps an unlock kind to its junction table and key column
func unlockTable(kind models.UnlockKind) (table, column string, err error) {
	switch kind {
	case models.KindAchievement:
		return "achievements", "achievement", nil
	case models.KindBadge:
		return "badges", "badge", nil
	default:
		return "", "", fmt.Errorf("unknown unlock kind: %s", kind)
	}
}

// Record grants an unlock to a user. Returns false when the user already
// holds it, the UNIQUE constraint makes repeat grants a no-op.
func (r *UnlockRepository) Record(userID int64, kind models.UnlockKind, key string, ts int64) (bool, error) {
	table, column, err := unlockTable(kind)
	if err != nil {
		return false, err
	}

	inserted := false
	err = database.WithRetry(func() error {
		result, execErr := database.DB.Exec(
			fmt.Sprintf(`INSERT INTO %s (user_id, %s, ts) VALUES (?, ?, ?)`, table, column),
			userID, key, ts)
		if execErr != nil {
			if isDuplicateError(execErr) {
				inserted = false
				return nil
			}
			return fmt.Errorf("failed to record unlock: %w", execErr)
		}
		affected, _ := result.RowsAffected()
		inserted = affected > 0
		return nil
	})
	return inserted, err
}

// Has reports whether a user already holds an unlock
func (r *UnlockRepository) Has(userID int64, kind models.UnlockKind, key string) (bool, error) {
	table, column, err := unlockTable(kind)
	if err != nil {
		return false, err
	}

	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE user_id = ? AND %s = ?`, table, column)
	if err := database.DB.QueryRow(query, userID, key).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check unlock: %w", err)
	}
	return count > 0, nil
}

// ListForUser returns all unlocks of one kind held by a user, oldest first
func (r *UnlockRepository) ListForUser(userID int64, kind models.UnlockKind) ([]models.Unlock, error) {
	table, column, err := unlockTable(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s, ts FROM %s WHERE user_id = ? ORDER BY ts ASC, id ASC`, column, table)
	rows, err := database.DB.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocks: %w", err)
	}
	defer rows.Close()

	var unlocks []models.Unlock
	for rows.Next() {
		u := models.Unlock{UserID: userID, Kind: kind}
		if err := rows.Scan(&u.Key, &u.TS); err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}
