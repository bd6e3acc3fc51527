package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/meowdiary/cookie-bot/database"
	"github.com/meowdiary/cookie-bot/models"
)

// MessageRepository handles the append-only activity log
type MessageRepository struct{}

// NewMessageRepository creates a new message repository
func NewMessageRepository() *MessageRepository {
	return &MessageRepository{}
}

// Record appends one activity event
func (r *MessageRepository) Record(msg models.Message) error {
	return database.WithRetry(func() error {
		_, err := database.DB.Exec(`
			INSERT INTO messages (user_id, chat_id, msg_type, ts) VALUES (?, ?, ?, ?)`,
			msg.UserID, msg.ChatID, string(msg.Type), msg.TS)
		if err != nil {
			return fmt.Errorf("failed to record message: %w", err)
		}
		return nil
	})
}

// timeRange builds the optional ts window clause. startTS/endTS of 0 mean
// unbounded, matching the original admin queries (start inclusive, end
// exclusive).
func timeRange(startTS, endTS int64) (string, []interface{}) {
	var parts []string
	var args []interface{}
	if startTS > 0 {
		parts = append(parts, "ts >= ?")
		args = append(args, startTS)
	}
	if endTS > 0 {
		parts = append(parts, "ts < ?")
		args = append(args, endTS)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(parts, " AND "), args
}

// CountsForUser returns per-type message counts for a user in a time window
func (r *MessageRepository) CountsForUser(userID, startTS, endTS int64) (map[models.MessageType]int64, error) {
	clause, extra := timeRange(startTS, endTS)
	args := append([]interface{}{userID}, extra...)

	rows, err := database.DB.Query(
		`SELECT msg_type, COUNT(*) FROM messages WHERE user_id = ?`+clause+` GROUP BY msg_type`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages for user: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.MessageType]int64)
	for rows.Next() {
		var msgType string
		var count int64
		if err := rows.Scan(&msgType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan message counts: %w", err)
		}
		counts[models.MessageType(msgType)] = count
	}
	return counts, rows.Err()
}

// TotalMessages counts all recorded messages in a time window
func (r *MessageRepository) TotalMessages(startTS, endTS int64) (int64, error) {
	clause, args := timeRange(startTS, endTS)
	// timeRange emits a leading AND; anchor it with a tautology
	query := `SELECT COUNT(*) FROM messages WHERE 1=1` + clause

	var total int64
	if err := database.DB.QueryRow(query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return total, nil
}

// UserTypeCount is one (user, message type) aggregation row
type UserTypeCount struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	Type      models.MessageType
	Count     int64
}

// ChatActivity returns per-user per-type message counts for one chat in a
// time window, with user names joined in for display. Point weighting and
// ordering are applied by the caller since point rates live in config.
func (r *MessageRepository) ChatActivity(chatID, startTS, endTS int64) ([]UserTypeCount, error) {
	clause, extra := timeRange(startTS, endTS)
	// the ts column is unambiguous, but the joined query needs the prefix
	clause = strings.ReplaceAll(clause, "ts ", "m.ts ")
	args := append([]interface{}{chatID}, extra...)

	rows, err := database.DB.Query(`
		SELECT m.user_id, COALESCE(u.username, ''), COALESCE(u.first_name, ''), COALESCE(u.last_name, ''),
		       m.msg_type, COUNT(*)
		FROM messages m
		LEFT JOIN users u ON m.user_id = u.user_id
		WHERE m.chat_id = ?`+clause+`
		GROUP BY m.user_id, m.msg_type`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat activity: %w", err)
	}
	defer rows.Close()

	var result []UserTypeCount
	for rows.Next() {
		var row UserTypeCount
		var msgType string
		if err := rows.Scan(&row.UserID, &row.Username, &row.FirstName, &row.LastName, &msgType, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan chat activity row: %w", err)
		}
		row.Type = models.MessageType(msgType)
		result = append(result, row)
	}
	return result, rows.Err()
}

// isNoRows reports whether err is the no-rows sentinel
func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}
