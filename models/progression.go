package models

// UnlockedItem reports one achievement or badge granted during evaluation.
type UnlockedItem struct {
	Kind       UnlockKind       `json:"kind"`
	Definition UnlockDefinition `json:"definition"`
	TS         int64            `json:"ts"`
}

// Unlock is a persisted (user, definition key) junction row.
type Unlock struct {
	UserID int64      `json:"user_id"`
	Kind   UnlockKind `json:"kind"`
	Key    string     `json:"key"`
	TS     int64      `json:"ts"`
}

// OwnedCard is one card instance a user holds.
type OwnedCard struct {
	UserID int64  `json:"user_id"`
	Key    string `json:"key"`
	TS     int64  `json:"ts"`
}

// ActivityResult is returned by the progression engine for each
// qualifying activity event.
type ActivityResult struct {
	PointsAwarded int64          `json:"points_awarded"`
	TotalExp      int64          `json:"total_exp"`
	Balance       int64          `json:"balance"`
	Level         int            `json:"level"`
	LeveledUp     bool           `json:"leveled_up"`
	NewlyUnlocked []UnlockedItem `json:"newly_unlocked"`
}

// PurchaseResult is returned by a successful card purchase.
type PurchaseResult struct {
	Card          CardDefinition `json:"card"`
	Price         int64          `json:"price"`
	NewBalance    int64          `json:"new_balance"`
	NewlyUnlocked []UnlockedItem `json:"newly_unlocked,omitempty"`
}

// LeaderboardEntry is one row of a chat leaderboard, ordered by points
// descending with ties broken by ascending user id.
type LeaderboardEntry struct {
	Rank         int    `json:"rank"`
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Points       int64  `json:"points"`
	MessageCount int64  `json:"message_count"`
}
