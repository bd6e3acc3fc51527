package services

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meowdiary/cookie-bot/config"
	"github.com/meowdiary/cookie-bot/database"
	"github.com/meowdiary/cookie-bot/logger"
	"github.com/meowdiary/cookie-bot/models"
)

// Activity describes one qualifying group message.
type Activity struct {
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
	LastName  string
	ChatTitle string
	Type      models.MessageType
	TS        int64
}

// Profile bundles everything shown on a user's stats card.
type Profile struct {
	User         *models.User
	Stats        models.UserStats
	Achievements []models.Unlock
	Badges       []models.Unlock
	Cards        map[string]int64
	NextLevelExp int64
}

// ProgressionService is the engine behind activity tracking, unlock
// evaluation and the card shop. All rule knowledge stays in the RuleSet;
// the service only sequences storage operations around it.
type ProgressionService struct {
	store       Store
	rules       *config.RuleSet
	chatAllowed func(chatID int64) bool
}

// NewProgressionService builds the engine. chatAllowed gates which chats may
// generate activity; nil means every chat is accepted.
func NewProgressionService(store Store, rules *config.RuleSet, chatAllowed func(int64) bool) *ProgressionService {
	if chatAllowed == nil {
		chatAllowed = func(int64) bool { return true }
	}
	return &ProgressionService{store: store, rules: rules, chatAllowed: chatAllowed}
}

// storeErr translates storage-level contention into the engine's vocabulary.
func storeErr(err error) error {
	if errors.Is(err, database.ErrBusy) {
		return ErrConcurrentModification
	}
	return err
}

// startOfDay returns the unix timestamp of local midnight for ts.
func startOfDay(ts int64) int64 {
	t := time.Unix(ts, 0).Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).Unix()
}

// earnedToday estimates the points awarded to the user since local midnight
// by pricing today's messages at the current rates. A clamped award or a
// mid-day rate change makes the estimate an upper bound: the cap may close
// a little early, but a day can never exceed the limit.
func (s *ProgressionService) earnedToday(userID, ts int64) (int64, error) {
	counts, err := s.store.MessageCounts(userID, startOfDay(ts), 0)
	if err != nil {
		return 0, err
	}
	var total int64
	for msgType, count := range counts {
		total += count * s.rules.Experience.PointsFor(msgType)
	}
	return total, nil
}

// RecordActivity processes one message: upserts the sender and chat, logs
// the message, awards points up to the daily cap, recomputes the level and
// evaluates unlocks. Messages over the cap are still logged, they just earn
// nothing.
func (s *ProgressionService) RecordActivity(act Activity) (*models.ActivityResult, error) {
	if !s.chatAllowed(act.ChatID) {
		return nil, ErrUnknownChat
	}
	if act.TS == 0 {
		act.TS = time.Now().Unix()
	}

	if err := s.store.UpsertUser(act.UserID, act.Username, act.FirstName, act.LastName); err != nil {
		return nil, storeErr(err)
	}
	if err := s.store.UpsertChat(act.ChatID, act.ChatTitle); err != nil {
		return nil, storeErr(err)
	}

	award := s.rules.Experience.PointsFor(act.Type)
	if limit := s.rules.Experience.DailyLimit; limit > 0 && award > 0 {
		earned, err := s.earnedToday(act.UserID, act.TS)
		if err != nil {
			return nil, storeErr(err)
		}
		if remaining := limit - earned; remaining <= 0 {
			award = 0
		} else if award > remaining {
			award = remaining
		}
	}

	if err := s.store.RecordMessage(models.Message{
		UserID: act.UserID,
		ChatID: act.ChatID,
		Type:   act.Type,
		TS:     act.TS,
	}); err != nil {
		return nil, storeErr(err)
	}

	user, err := s.store.AddActivity(act.UserID, award)
	if err != nil {
		return nil, storeErr(err)
	}

	unlocked, err := s.evaluateUnlocks(act.UserID, act.TS)
	if err != nil {
		return nil, storeErr(err)
	}
	if len(unlocked) > 0 {
		// Rewards may have moved the totals, re-read before the level check.
		if user, err = s.store.GetUser(act.UserID); err != nil {
			return nil, storeErr(err)
		}
	}

	leveledUp, err := s.syncLevel(user)
	if err != nil {
		return nil, storeErr(err)
	}

	return &models.ActivityResult{
		PointsAwarded: award,
		TotalExp:      user.TotalExp,
		Balance:       user.Balance,
		Level:         user.Level,
		LeveledUp:     leveledUp,
		NewlyUnlocked: unlocked,
	}, nil
}

// syncLevel recomputes the level from lifetime experience and persists it
// when it changed. Levels never go down.
func (s *ProgressionService) syncLevel(user *models.User) (bool, error) {
	level := s.rules.LevelForExp(user.TotalExp)
	if level <= user.Level {
		return false, nil
	}
	if err := s.store.SetLevel(user.UserID, level); err != nil {
		return false, err
	}
	user.Level = level
	return true, nil
}

// EvaluateUnlocks checks every configured achievement and badge against the
// user's current statistics and grants the ones newly satisfied. Safe to
// call repeatedly: already-held unlocks are skipped.
func (s *ProgressionService) EvaluateUnlocks(userID int64) ([]models.UnlockedItem, error) {
	unlocked, err := s.evaluateUnlocks(userID, time.Now().Unix())
	return unlocked, storeErr(err)
}

// evaluateUnlocks runs grant passes until a fixed point: a granted reward or
// a raised badge count can satisfy further predicates, so every pass that
// grants something triggers another with fresh statistics.
func (s *ProgressionService) evaluateUnlocks(userID, ts int64) ([]models.UnlockedItem, error) {
	var all []models.UnlockedItem
	for {
		stats, err := s.store.UserStats(userID)
		if err != nil {
			return all, err
		}

		granted := 0
		for _, kind := range []models.UnlockKind{models.KindAchievement, models.KindBadge} {
			for _, def := range s.rules.Definitions(kind) {
				held, err := s.store.HasUnlock(userID, kind, def.Key)
				if err != nil {
					return all, err
				}
				if held || !def.Predicate.Eval(stats) {
					continue
				}
				// Inserted stays the grant authority: a concurrent evaluation
				// may have won the race since the check above.
				inserted, err := s.store.RecordUnlock(userID, kind, def.Key, ts)
				if err != nil {
					return all, err
				}
				if !inserted {
					continue
				}
				granted++
				all = append(all, models.UnlockedItem{Kind: kind, Definition: def, TS: ts})
				if def.Reward > 0 {
					if _, err := s.store.GrantPoints(userID, def.Reward); err != nil {
						return all, err
					}
				}
				logger.WithFields(logrus.Fields{
					"user_id": userID,
					"kind":    kind,
					"key":     def.Key,
					"reward":  def.Reward,
				}).Info("Unlock granted")
			}
		}
		if granted == 0 {
			return all, nil
		}
	}
}

// PurchaseCard spends balance on one card. The debit and the card insert
// happen atomically, so concurrent purchases can never overdraw.
func (s *ProgressionService) PurchaseCard(userID int64, key string, ts int64) (*models.PurchaseResult, error) {
	card, ok := s.rules.Card(key)
	if !ok {
		return nil, ErrUnknownCard
	}
	if ts == 0 {
		ts = time.Now().Unix()
	}

	// The ownership check for non-stackable cards runs inside the purchase
	// transaction with the debit, so concurrent purchases of the same card
	// cannot both pass it.
	unique := !s.rules.CardSettings.Stackable
	newBalance, ok, owned, err := s.store.PurchaseCard(userID, key, card.Price, ts, unique)
	if err != nil {
		return nil, storeErr(err)
	}
	if owned {
		return nil, ErrCardAlreadyOwned
	}
	if !ok {
		return nil, ErrInsufficientBalance
	}

	unlocked, err := s.evaluateUnlocks(userID, ts)
	if err != nil {
		return nil, storeErr(err)
	}

	logger.WithFields(logrus.Fields{
		"user_id": userID,
		"card":    key,
		"price":   card.Price,
		"balance": newBalance,
	}).Info("Card purchased")

	return &models.PurchaseResult{
		Card:          card,
		Price:         card.Price,
		NewBalance:    newBalance,
		NewlyUnlocked: unlocked,
	}, nil
}

// UseCard consumes one copy of an owned card and returns its definition.
func (s *ProgressionService) UseCard(userID int64, key string) (models.CardDefinition, error) {
	card, ok := s.rules.Card(key)
	if !ok {
		return models.CardDefinition{}, ErrUnknownCard
	}
	used, err := s.store.UseCard(userID, key)
	if err != nil {
		return models.CardDefinition{}, storeErr(err)
	}
	if !used {
		return models.CardDefinition{}, ErrCardNotOwned
	}
	return card, nil
}

// AdminAdjustPoints applies a manual correction. Positive deltas award
// points like earned activity (lifetime experience and balance both rise);
// negative deltas only reduce the spendable balance and are rejected when
// they would push it below zero. The reason is free text for the audit log.
func (s *ProgressionService) AdminAdjustPoints(userID, delta int64, reason string) (*models.User, error) {
	if delta == 0 {
		return nil, ErrInvalidAdjustment
	}

	user, err := s.store.GetUser(userID)
	if err != nil {
		return nil, storeErr(err)
	}
	if user == nil {
		return nil, ErrInvalidAdjustment
	}

	if delta > 0 {
		if user, err = s.store.GrantPoints(userID, delta); err != nil {
			return nil, storeErr(err)
		}
		if _, err := s.evaluateUnlocks(userID, time.Now().Unix()); err != nil {
			return nil, storeErr(err)
		}
		if user, err = s.store.GetUser(userID); err != nil {
			return nil, storeErr(err)
		}
		if _, err := s.syncLevel(user); err != nil {
			return nil, storeErr(err)
		}
	} else {
		_, ok, err := s.store.DeductBalance(userID, -delta)
		if err != nil {
			return nil, storeErr(err)
		}
		if !ok {
			return nil, ErrInvalidAdjustment
		}
		if user, err = s.store.GetUser(userID); err != nil {
			return nil, storeErr(err)
		}
	}

	logger.WithFields(logrus.Fields{
		"user_id": userID,
		"delta":   delta,
		"balance": user.Balance,
		"reason":  reason,
	}).Info("Admin adjustment applied")

	return user, nil
}

// DeleteUser removes a user and everything recorded for them, message
// history included.
func (s *ProgressionService) DeleteUser(userID int64) error {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return storeErr(err)
	}
	if user == nil {
		return ErrUnknownUser
	}
	if err := s.store.DeleteUser(userID); err != nil {
		return storeErr(err)
	}
	logger.WithFields(logrus.Fields{"user_id": userID}).Info("User deleted")
	return nil
}

// Profile assembles the user's stats card.
func (s *ProgressionService) Profile(userID int64) (*Profile, error) {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return nil, storeErr(err)
	}
	if user == nil {
		return nil, nil
	}

	stats, err := s.store.UserStats(userID)
	if err != nil {
		return nil, storeErr(err)
	}
	achievements, err := s.store.ListUnlocks(userID, models.KindAchievement)
	if err != nil {
		return nil, storeErr(err)
	}
	badges, err := s.store.ListUnlocks(userID, models.KindBadge)
	if err != nil {
		return nil, storeErr(err)
	}
	cards, err := s.store.CardCounts(userID)
	if err != nil {
		return nil, storeErr(err)
	}

	return &Profile{
		User:         user,
		Stats:        stats,
		Achievements: achievements,
		Badges:       badges,
		Cards:        cards,
		NextLevelExp: s.rules.NextLevelExp(user.Level),
	}, nil
}

// Rules exposes the loaded rule tables for display surfaces.
func (s *ProgressionService) Rules() *config.RuleSet {
	return s.rules
}
