package models

// MessageType classifies an activity event by its content kind.
// The kind decides how many points the message is worth.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessagePhoto   MessageType = "photo"
	MessageVoice   MessageType = "voice"
	MessageSticker MessageType = "sticker"
	MessageOther   MessageType = "other"
)

// Message is one recorded activity event. Rows are append-only.
type Message struct {
	ID     int64       `json:"id"`
	UserID int64       `json:"user_id"`
	ChatID int64       `json:"chat_id"`
	Type   MessageType `json:"msg_type"`
	TS     int64       `json:"ts"` // unix seconds
}
