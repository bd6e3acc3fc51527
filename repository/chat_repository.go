package repository

import (
	"fmt"

	"github.com/meowdiary/cookie-bot/database"
	"github.com/meowdiary/cookie-bot/models"
)

// ChatRepository handles chat database operations
type ChatRepository struct{}

// NewChatRepository creates a new chat repository
func NewChatRepository() *ChatRepository {
	return &ChatRepository{}
}

// Upsert creates the chat on first sight or refreshes its title
func (r *ChatRepository) Upsert(chatID int64, title string) error {
	return database.WithRetry(func() error {
		var existing string
		err := database.DB.QueryRow(`SELECT title FROM chats WHERE chat_id = ?`, chatID).Scan(&existing)
		if err == nil {
			if existing == title || title == "" {
				return nil
			}
			_, err := database.DB.Exec(`
				UPDATE chats SET title = ?, updated_at = CURRENT_TIMESTAMP WHERE chat_id = ?`,
				title, chatID)
			if err != nil {
				return fmt.Errorf("failed to update chat: %w", err)
			}
			return nil
		}

		_, err = database.DB.Exec(`INSERT INTO chats (chat_id, title) VALUES (?, ?)`, chatID, title)
		if err != nil {
			if isDuplicateError(err) {
				return nil
			}
			return fmt.Errorf("failed to create chat: %w", err)
		}
		return nil
	})
}

// GetByID finds a chat by id, nil when unknown
func (r *ChatRepository) GetByID(chatID int64) (*models.Chat, error) {
	chat := &models.Chat{}
	err := database.DB.QueryRow(`
		SELECT chat_id, title, created_at, updated_at FROM chats WHERE chat_id = ?`, chatID,
	).Scan(&chat.ChatID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

// KnownChatIDs returns every chat id that has recorded messages
func (r *ChatRepository) KnownChatIDs() ([]int64, error) {
	rows, err := database.DB.Query(`SELECT DISTINCT chat_id FROM messages`)
	if err != nil {
		return nil, fmt.Errorf("failed to list known chats: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetChatsInfo returns one aggregated row per chat with activity totals.
// TotalExp is left for the caller to fill in from the configured point rates.
func (r *ChatRepository) GetChatsInfo() ([]models.ChatInfo, error) {
	rows, err := database.DB.Query(`
		SELECT m.chat_id, COUNT(*), MAX(m.ts), COALESCE(c.title, '')
		FROM messages m
		LEFT JOIN chats c ON m.chat_id = c.chat_id
		GROUP BY m.chat_id
		ORDER BY m.chat_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get chats info: %w", err)
	}
	defer rows.Close()

	var infos []models.ChatInfo
	for rows.Next() {
		var info models.ChatInfo
		if err := rows.Scan(&info.ChatID, &info.MessageCount, &info.LastActivity, &info.Title); err != nil {
			return nil, fmt.Errorf("failed to scan chat info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
