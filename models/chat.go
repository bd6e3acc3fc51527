package models

import "time"

// Chat represents a group chat the bot has seen activity in.
type Chat struct {
	ChatID    int64     `json:"chat_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatInfo is the aggregated view shown by the admin surfaces:
// one row per chat with activity totals.
type ChatInfo struct {
	ChatID       int64  `json:"chat_id"`
	Title        string `json:"title"`
	MessageCount int64  `json:"message_count"`
	LastActivity int64  `json:"last_activity"` // unix seconds, 0 when unknown
	TotalExp     int64  `json:"total_exp"`
}
