package models

import (
	"strconv"
	"time"
)

// User represents a chat member tracked by the bot.
//
// TotalExp is the lifetime experience a user has earned; it never decreases.
// Balance is the spendable portion and may be lower after card purchases or
// administrative deductions, but never drops below zero.
type User struct {
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	TotalExp     int64     `json:"total_exp"`
	Balance      int64     `json:"balance"`
	Level        int       `json:"level"`
	MessageCount int64     `json:"message_count"`
	JoinedAt     time.Time `json:"joined_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName builds a human readable name the way the bot renders users:
// first/last name when present, otherwise the @username, otherwise the id.
func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " " + u.LastName
		} else {
			name = u.LastName
		}
	}
	if name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return "user " + strconv.FormatInt(u.UserID, 10)
}

// UserStats are the measurable statistics predicates are evaluated against.
type UserStats struct {
	UserID           int64
	MessageCount     int64
	PhotoCount       int64
	StickerCount     int64
	VoiceCount       int64
	TotalPoints      int64
	Balance          int64
	CardCount        int64
	BadgeCount       int64
	AchievementCount int64
	AccountAgeDays   int64
}
