package models

// Statistic names a measurable user statistic a predicate can test.
type Statistic string

const (
	StatMessageCount     Statistic = "message_count"
	StatPhotoCount       Statistic = "photo_count"
	StatStickerCount     Statistic = "sticker_count"
	StatVoiceCount       Statistic = "voice_count"
	StatTotalPoints      Statistic = "total_points"
	StatCardCount        Statistic = "card_count"
	StatBadgeCount       Statistic = "badge_count"
	StatAchievementCount Statistic = "achievement_count"
	StatAccountAgeDays   Statistic = "account_age_days"
)

// ValidStatistics lists every statistic the predicate language accepts.
var ValidStatistics = map[Statistic]bool{
	StatMessageCount:     true,
	StatPhotoCount:       true,
	StatStickerCount:     true,
	StatVoiceCount:       true,
	StatTotalPoints:      true,
	StatCardCount:        true,
	StatBadgeCount:       true,
	StatAchievementCount: true,
	StatAccountAgeDays:   true,
}

// Operator is one of the three comparison operators predicates support.
type Operator string

const (
	OpGTE Operator = ">="
	OpGT  Operator = ">"
	OpEQ  Operator = "="
)

// Predicate is a declarative threshold condition over one user statistic.
// Predicates are pure: evaluating them in any order yields the same result.
type Predicate struct {
	Stat      Statistic `mapstructure:"stat" json:"stat"`
	Op        Operator  `mapstructure:"op" json:"op"`
	Threshold int64     `mapstructure:"threshold" json:"threshold"`
}

// Eval checks the predicate against the given statistics snapshot.
func (p Predicate) Eval(stats UserStats) bool {
	value := stats.Value(p.Stat)
	switch p.Op {
	case OpGTE:
		return value >= p.Threshold
	case OpGT:
		return value > p.Threshold
	case OpEQ:
		return value == p.Threshold
	}
	return false
}

// Value returns the named statistic from the snapshot, 0 for unknown names.
func (s UserStats) Value(stat Statistic) int64 {
	switch stat {
	case StatMessageCount:
		return s.MessageCount
	case StatPhotoCount:
		return s.PhotoCount
	case StatStickerCount:
		return s.StickerCount
	case StatVoiceCount:
		return s.VoiceCount
	case StatTotalPoints:
		return s.TotalPoints
	case StatCardCount:
		return s.CardCount
	case StatBadgeCount:
		return s.BadgeCount
	case StatAchievementCount:
		return s.AchievementCount
	case StatAccountAgeDays:
		return s.AccountAgeDays
	}
	return 0
}

// UnlockKind distinguishes the two unlockable definition categories.
// They share the predicate language and only differ in display semantics.
type UnlockKind string

const (
	KindAchievement UnlockKind = "achievement"
	KindBadge       UnlockKind = "badge"
)

// UnlockDefinition is a config-defined achievement or badge.
type UnlockDefinition struct {
	Key         string    `mapstructure:"key" json:"key"`
	Name        string    `mapstructure:"name" json:"name"`
	Emoji       string    `mapstructure:"emoji" json:"emoji"`
	Description string    `mapstructure:"description" json:"description"`
	Predicate   Predicate `mapstructure:",squash" json:"predicate"`
	Reward      int64     `mapstructure:"reward" json:"reward"` // optional point bonus
}

// CardDefinition is a config-defined purchasable card.
type CardDefinition struct {
	Key         string `mapstructure:"key" json:"key"`
	Name        string `mapstructure:"name" json:"name"`
	Emoji       string `mapstructure:"emoji" json:"emoji"`
	Description string `mapstructure:"description" json:"description"`
	Price       int64  `mapstructure:"price" json:"price"`
}

// LevelDefinition is one step of the level ladder. Delta is the additional
// experience needed on top of the previous level.
type LevelDefinition struct {
	Delta int64  `mapstructure:"delta" json:"delta"`
	Title string `mapstructure:"title" json:"title"`
}
