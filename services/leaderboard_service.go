package services

import (
	"sort"
	"time"

	"github.com/meowdiary/cookie-bot/config"
	"github.com/meowdiary/cookie-bot/models"
	"github.com/meowdiary/cookie-bot/repository"
)

// LeaderboardService builds chat rankings and the daily activity report.
// Points are recomputed from the message log with the configured per-type
// rates so time-windowed boards stay consistent with earning rules.
type LeaderboardService struct {
	rules    *config.RuleSet
	users    *repository.UserRepository
	chats    *repository.ChatRepository
	messages *repository.MessageRepository
}

// NewLeaderboardService builds the service over the shared database.
func NewLeaderboardService(rules *config.RuleSet) *LeaderboardService {
	return &LeaderboardService{
		rules:    rules,
		users:    repository.NewUserRepository(),
		chats:    repository.NewChatRepository(),
		messages: repository.NewMessageRepository(),
	}
}

// Range is a named leaderboard time window.
type Range string

const (
	RangeDay   Range = "day"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
	RangeAll   Range = "all"
)

// Window resolves a named range to a [start, end) unix interval relative to
// now. RangeAll returns zeros, meaning unbounded.
func (r Range) Window(now time.Time) (startTS, endTS int64) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch r {
	case RangeDay:
		return midnight.Unix(), 0
	case RangeWeek:
		// Monday-based week start
		daysSinceMonday := (int(now.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -daysSinceMonday).Unix(), 0
	case RangeMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Unix(), 0
	default:
		return 0, 0
	}
}

// ChatLeaderboard ranks users by points earned in one chat during the given
// window. Ties are broken by ascending user id so ranks are stable.
func (s *LeaderboardService) ChatLeaderboard(chatID, startTS, endTS int64, limit int) ([]models.LeaderboardEntry, error) {
	activity, err := s.messages.ChatActivity(chatID, startTS, endTS)
	if err != nil {
		return nil, storeErr(err)
	}
	return rankActivity(activity, s.rules, limit), nil
}

// rankActivity folds per-type counts into ranked leaderboard entries.
func rankActivity(activity []repository.UserTypeCount, rules *config.RuleSet, limit int) []models.LeaderboardEntry {
	byUser := make(map[int64]*models.LeaderboardEntry)
	for _, row := range activity {
		entry, ok := byUser[row.UserID]
		if !ok {
			entry = &models.LeaderboardEntry{
				UserID:    row.UserID,
				Username:  row.Username,
				FirstName: row.FirstName,
				LastName:  row.LastName,
			}
			byUser[row.UserID] = entry
		}
		entry.Points += row.Count * rules.Experience.PointsFor(row.Type)
		entry.MessageCount += row.Count
	}

	entries := make([]models.LeaderboardEntry, 0, len(byUser))
	for _, entry := range byUser {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].UserID < entries[j].UserID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// GlobalLeaderboard ranks all users by lifetime experience.
func (s *LeaderboardService) GlobalLeaderboard(limit int) ([]models.LeaderboardEntry, error) {
	users, err := s.users.GetAll()
	if err != nil {
		return nil, storeErr(err)
	}
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}

	entries := make([]models.LeaderboardEntry, 0, len(users))
	for i, user := range users {
		entries = append(entries, models.LeaderboardEntry{
			Rank:         i + 1,
			UserID:       user.UserID,
			Username:     user.Username,
			FirstName:    user.FirstName,
			LastName:     user.LastName,
			Points:       user.TotalExp,
			MessageCount: user.MessageCount,
		})
	}
	return entries, nil
}

// ChatsOverview lists every chat with activity aggregates for the admin UI.
// The per-chat point total is recomputed from the message log.
func (s *LeaderboardService) ChatsOverview() ([]models.ChatInfo, error) {
	infos, err := s.chats.GetChatsInfo()
	if err != nil {
		return nil, storeErr(err)
	}
	for i := range infos {
		activity, err := s.messages.ChatActivity(infos[i].ChatID, 0, 0)
		if err != nil {
			return nil, storeErr(err)
		}
		for _, row := range activity {
			infos[i].TotalExp += row.Count * s.rules.Experience.PointsFor(row.Type)
		}
	}
	return infos, nil
}

// KnownChatIDs lists chats that have delivered at least one message.
func (s *LeaderboardService) KnownChatIDs() ([]int64, error) {
	ids, err := s.chats.KnownChatIDs()
	return ids, storeErr(err)
}

// DailyReport holds the activity summary for one chat and one day.
type DailyReport struct {
	ChatID        int64
	Day           time.Time
	TotalMessages int64
	Top           []models.LeaderboardEntry
}

// ReportForDay summarizes one chat's activity during the calendar day
// containing the given time.
func (s *LeaderboardService) ReportForDay(chatID int64, day time.Time, topN int) (*DailyReport, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	top, err := s.ChatLeaderboard(chatID, start.Unix(), end.Unix(), topN)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, entry := range top {
		total += entry.MessageCount
	}
	// Entries below the cutoff still count toward the total.
	if topN > 0 && len(top) == topN {
		all, err := s.ChatLeaderboard(chatID, start.Unix(), end.Unix(), 0)
		if err != nil {
			return nil, err
		}
		total = 0
		for _, entry := range all {
			total += entry.MessageCount
		}
	}

	return &DailyReport{ChatID: chatID, Day: start, TotalMessages: total, Top: top}, nil
}
