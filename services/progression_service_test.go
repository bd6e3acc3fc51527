package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/meowdiary/cookie-bot/config"
	"github.com/meowdiary/cookie-bot/models"
)

// fakeStore is an in-memory Store with the same guard semantics as the SQL
// implementation: conditional debits, unique unlocks, balance never below
// zero.
type fakeStore struct {
	mu       sync.Mutex
	users    map[int64]*models.User
	chats    map[int64]string
	messages []models.Message
	unlocks  map[string]models.Unlock
	cards    map[int64][]models.OwnedCard
	ageDays  map[int64]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[int64]*models.User),
		chats:   make(map[int64]string),
		unlocks: make(map[string]models.Unlock),
		cards:   make(map[int64][]models.OwnedCard),
		ageDays: make(map[int64]int64),
	}
}

func unlockID(userID int64, kind models.UnlockKind, key string) string {
	return fmt.Sprintf("%d|%s|%s", userID, kind, key)
}

func (f *fakeStore) GetUser(userID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (f *fakeStore) UpsertUser(userID int64, username, firstName, lastName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[userID]; ok {
		user.Username = username
		user.FirstName = firstName
		user.LastName = lastName
		return nil
	}
	f.users[userID] = &models.User{
		UserID:    userID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		Level:     1,
	}
	return nil
}

func (f *fakeStore) AddActivity(userID, points int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %d not found", userID)
	}
	user.TotalExp += points
	user.Balance += points
	user.MessageCount++
	copied := *user
	return &copied, nil
}

func (f *fakeStore) GrantPoints(userID, points int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %d not found", userID)
	}
	user.TotalExp += points
	user.Balance += points
	copied := *user
	return &copied, nil
}

func (f *fakeStore) DeductBalance(userID, amount int64) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok || user.Balance < amount {
		return 0, false, nil
	}
	user.Balance -= amount
	return user.Balance, true, nil
}

func (f *fakeStore) SetLevel(userID int64, level int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[userID]; ok {
		user.Level = level
	}
	return nil
}

func (f *fakeStore) DeleteUser(userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, userID)
	return nil
}

func (f *fakeStore) UserStats(userID int64) (models.UserStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := models.UserStats{AccountAgeDays: f.ageDays[userID]}
	if user, ok := f.users[userID]; ok {
		stats.TotalPoints = user.TotalExp
		stats.Balance = user.Balance
	}
	for _, msg := range f.messages {
		if msg.UserID != userID {
			continue
		}
		stats.MessageCount++
		switch msg.Type {
		case models.MessagePhoto:
			stats.PhotoCount++
		case models.MessageVoice:
			stats.VoiceCount++
		case models.MessageSticker:
			stats.StickerCount++
		}
	}
	for _, unlock := range f.unlocks {
		if unlock.UserID != userID {
			continue
		}
		if unlock.Kind == models.KindBadge {
			stats.BadgeCount++
		} else {
			stats.AchievementCount++
		}
	}
	stats.CardCount = int64(len(f.cards[userID]))
	return stats, nil
}

func (f *fakeStore) UpsertChat(chatID int64, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats[chatID] = title
	return nil
}

func (f *fakeStore) RecordMessage(msg models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeStore) MessageCounts(userID, startTS, endTS int64) (map[models.MessageType]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[models.MessageType]int64)
	for _, msg := range f.messages {
		if msg.UserID != userID {
			continue
		}
		if startTS > 0 && msg.TS < startTS {
			continue
		}
		if endTS > 0 && msg.TS >= endTS {
			continue
		}
		counts[msg.Type]++
	}
	return counts, nil
}

func (f *fakeStore) HasUnlock(userID int64, kind models.UnlockKind, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.unlocks[unlockID(userID, kind, key)]
	return ok, nil
}

func (f *fakeStore) RecordUnlock(userID int64, kind models.UnlockKind, key string, ts int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := unlockID(userID, kind, key)
	if _, ok := f.unlocks[id]; ok {
		return false, nil
	}
	f.unlocks[id] = models.Unlock{UserID: userID, Kind: kind, Key: key, TS: ts}
	return true, nil
}

func (f *fakeStore) ListUnlocks(userID int64, kind models.UnlockKind) ([]models.Unlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.Unlock
	for _, unlock := range f.unlocks {
		if unlock.UserID == userID && unlock.Kind == kind {
			result = append(result, unlock)
		}
	}
	return result, nil
}

func (f *fakeStore) PurchaseCard(userID int64, key string, price, ts int64, unique bool) (int64, bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if unique {
		for _, card := range f.cards[userID] {
			if card.Key == key {
				return 0, false, true, nil
			}
		}
	}
	user, ok := f.users[userID]
	if !ok || user.Balance < price {
		return 0, false, false, nil
	}
	user.Balance -= price
	f.cards[userID] = append(f.cards[userID], models.OwnedCard{UserID: userID, Key: key, TS: ts})
	return user.Balance, true, false, nil
}

func (f *fakeStore) CardCounts(userID int64) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, card := range f.cards[userID] {
		counts[card.Key]++
	}
	return counts, nil
}

func (f *fakeStore) ListCards(userID int64) ([]models.OwnedCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OwnedCard(nil), f.cards[userID]...), nil
}

func (f *fakeStore) UseCard(userID int64, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cards := f.cards[userID]
	for i, card := range cards {
		if card.Key == key {
			f.cards[userID] = append(cards[:i], cards[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func testRules() *config.RuleSet {
	return &config.RuleSet{
		Experience: config.ExperienceConfig{
			Points:     map[string]int64{"text": 1, "photo": 3, "voice": 3, "sticker": 2, "other": 0},
			DailyLimit: 150,
		},
		CardSettings: config.CardsConfig{Stackable: true},
		Achievements: []models.UnlockDefinition{
			{
				Key: "chatty", Name: "Chatty", Emoji: "💬",
				Predicate: models.Predicate{Stat: models.StatMessageCount, Op: models.OpGTE, Threshold: 10},
				Reward:    10,
			},
		},
		Badges: []models.UnlockDefinition{
			{
				Key: "gold_star", Name: "Gold Star", Emoji: "⭐",
				Predicate: models.Predicate{Stat: models.StatTotalPoints, Op: models.OpGTE, Threshold: 50},
			},
		},
		Cards: []models.CardDefinition{
			{Key: "headpat", Name: "Headpat Voucher", Price: 40},
		},
		Levels: []models.LevelDefinition{
			{Delta: 50, Title: "Kitten"},
			{Delta: 150, Title: "House Cat"},
		},
	}
}

// noon is a fixed midday timestamp so daily-cap windows behave predictably.
var noon = time.Date(2026, 1, 15, 12, 0, 0, 0, time.Local).Unix()

func sendText(t *testing.T, svc *ProgressionService, userID int64, n int) *models.ActivityResult {
	t.Helper()
	var last *models.ActivityResult
	for i := 0; i < n; i++ {
		result, err := svc.RecordActivity(Activity{
			UserID: userID, ChatID: -100, Username: "mika",
			FirstName: "Mika", Type: models.MessageText, TS: noon + int64(i),
		})
		if err != nil {
			t.Fatalf("activity %d failed: %v", i+1, err)
		}
		last = result
	}
	return last
}

func TestRecordActivityAwardsConfiguredPoints(t *testing.T) {
	store := newFakeStore()
	svc := NewProgressionService(store, testRules(), nil)

	result, err := svc.RecordActivity(Activity{
		UserID: 1, ChatID: -100, Type: models.MessagePhoto, TS: noon,
	})
	if err != nil {
		t.Fatalf("record activity failed: %v", err)
	}
	if result.PointsAwarded != 3 {
		t.Fatalf("expected 3 points for a photo, got %d", result.PointsAwarded)
	}
	if result.TotalExp != 3 || result.Balance != 3 {
		t.Fatalf("expected exp and balance of 3, got exp=%d balance=%d", result.TotalExp, result.Balance)
	}
}

func TestRecordActivityRejectsUnknownChat(t *testing.T) {
	store := newFakeStore()
	allowed := func(chatID int64) bool { return chatID == -100 }
	svc := NewProgressionService(store, testRules(), allowed)

	if _, err := svc.RecordActivity(Activity{UserID: 1, ChatID: -200, Type: models.MessageText, TS: noon}); !errors.Is(err, ErrUnknownChat) {
		t.Fatalf("expected ErrUnknownChat, got %v", err)
	}
	if len(store.messages) != 0 {
		t.Fatalf("rejected activity must not be recorded")
	}
}

func TestChattyUnlocksExactlyAtThreshold(t *testing.T) {
	store := newFakeStore()
	svc := NewProgressionService(store, testRules(), nil)

	last := sendText(t, svc, 1, 9)
	for _, item := range last.NewlyUnlocked {
		if item.Definition.Key == "chatty" {
			t.Fatalf("chatty unlocked one message early")
		}
	}

	last = sendText(t, svc, 1, 1)
	found := false
	for _, item := range last.NewlyUnlocked {
		if item.Definition.Key == "chatty" {
			found = true
		}
	}
	if !found {
		t.Fatalf("chatty not unlocked at the tenth message, got %v", last.NewlyUnlocked)
	}
	// 10 text points plus the 10 point reward.
	if last.TotalExp != 20 {
		t.Fatalf("expected 20 exp after chatty reward, got %d", last.TotalExp)
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := NewProgressionService(store, testRules(), nil)

	sendText(t, svc, 1, 10)

	again, err := svc.EvaluateUnlocks(1)
	if err != nil {
		t.Fatalf("re-evaluation failed: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("re-evaluation granted duplicates: %v", again)
	}

	stats, _ := store.UserStats(1)
	if stats.AchievementCount != 1 {
		t.Fatalf("expected exactly one achievement, got %d", stats.AchievementCount)
	}
}

func TestRewardCascadeUnlocksBadgeInSameEvaluation(t *testing.T) {
	// 45 text points, then the tenth-message scenario is skipped: instead an
	// admin grant pushes total points to 49, and one more message crosses 50
	// only because the evaluation loop re-reads stats after rewards.
	rules := testRules()
	rules.Achievements = []models.UnlockDefinition{
		{
			Key: "chatty", Name: "Chatty",
			Predicate: models.Predicate{Stat: models.StatMessageCount, Op: models.OpGTE, Threshold: 10},
			Reward:    45,
		},
	}
	store := newFakeStore()
	svc := NewProgressionService(store, rules, nil)

	last := sendText(t, svc, 1, 10)

	keys := make(map[string]bool)
	for _, item := range last.NewlyUnlocked {
		keys[item.Definition.Key] = true
	}
	if !keys["chatty"] {
		t.Fatalf("chatty should unlock at message 10")
	}
	// 10 earned + 45 reward = 55 total points, enough for gold_star.
	if !keys["gold_star"] {
		t.Fatalf("gold_star should cascade from the chatty reward, got %v", last.NewlyUnlocked)
	}
}

func TestDailyCapStopsAwardsButKeepsCounting(t *testing.T) {
	rules := testRules()
	rules.Experience.DailyLimit = 5
	store := newFakeStore()
	svc := NewProgressionService(store, rules, nil)

	var awarded int64
	for i := 0; i < 8; i++ {
		result, err := svc.RecordActivity(Activity{
			UserID: 1, ChatID: -100, Type: models.MessageText, TS: noon + int64(i),
		})
		if err != nil {
			t.Fatalf("activity failed: %v", err)
		}
		awarded += result.PointsAwarded
	}

	if awarded != 5 {
		t.Fatalf("expected the cap to limit awards to 5, got %d", awarded)
	}
	stats, _ := store.UserStats(1)
	if stats.MessageCount != 8 {
		t.Fatalf("capped messages must still count, got %d", stats.MessageCount)
	}

	// A new day resets the window.
	result, err := svc.RecordActivity(Activity{
		UserID: 1, ChatID: -100, Type: models.MessageText, TS: noon + 24*3600,
	})
	if err != nil {
		t.Fatalf("next-day activity failed: %v", err)
	}
	if result.PointsAwarded != 1 {
		t.Fatalf("expected fresh award on the next day, got %d", result.PointsAwarded)
	}
}

func TestPurchaseSpendsBalanceOnly(t *testing.T) {
	store := newFakeStore()
	svc := NewProgressionService(store, testRules(), nil)

	sendText(t, svc, 1, 50) // 50 earned + 10 chatty reward

	user, _ := store.GetUser(1)
	expBefore := user.TotalExp

	result, err := svc.PurchaseCard(1, "headpat", noon)
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if result.NewBalance != user.Balance-40 {
		t.Fatalf("expected balance %d, got %d", user.Balance-40, result.NewBalance)
	}

	user, _ = store.GetUser(1)
	if user.TotalExp != expBefore {
		t.Fatalf("purchase must not touch lifetime experience: %d != %d", user.TotalExp, expBefore)
	}
}

func TestPurchaseErrors(t *testing.T) {
	store := newFakeStore()
	svc := NewProgressionService(store, testRules(), nil)
	sendText(t, svc, 1, 5)

	if _, err := svc.PurchaseCard(1, "nonexistent", noon); !errors.Is(err, ErrUnknownCard) {
		t.Fatalf("expected ErrUnknownCard, got %v", err)
	}
	if _, err := svc.PurchaseCard(1, "headpat", noon); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestNonStackableCardsRejectSecondCopy(t *testing.T) {
	rules := testRules()
	rules.CardSettings.Stackable = false
	store := newFakeStore()
	svc := NewProgressionService(store, rules, nil)
	sendText(t, svc, 1, 100)

	if _, err := svc.PurchaseCard(1, "headpat", noon); err != nil {
		t.Fatalf("first purchase failed: %v", err)
	}
	if _, err := svc.PurchaseCard(1, "headpat", noon); !errors.Is(err, ErrCardAlreadyOwned) {
		t.Fatalf("expected ErrCardAlreadyOwned, got %v", err)
	}
}

func TestConcurrentPurchasesNeverOverdraw(t *testing.T) {
	store := newFakeStore()
	svc := NewProgressionService(store, testRules(), nil)

	// 100 points of balance against a 40 point card: at most 2 can succeed.
	store.users[1] = &models.User{UserID: 1, TotalExp: 100, Balance: 100, Level: 1}

	const attempts = 10
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.PurchaseCard(1, "headpat", noon)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientBalance):
		default:
			t.Fatalf("unexpected purchase error: %v", err)
		}
	}
	if succeeded != 2 {
		t.Fatalf("expected exactly 2 successful purchases, got %d", succeeded)
	}

	user, _ := store.GetUser(1)
	if user.Balance != 20 {
		t.Fatalf("expected final balance 20, got %d", user.Balance)
	}
	if user.Balance < 0 {
		t.Fatalf("balance went negative: %d", user.Balance)
	}
}

func TestConcurrentNonStackablePurchasesGrantOneCopy(t *testing.T) {
	rules := testRules()
	rules.CardSettings.Stackable = false
	store := newFakeStore()
	svc := NewProgressionService(store, rules, nil)

	// Plenty of balance for several copies, so only the ownership guard
	// can stop the extra purchases.
	store.users[1] = &models.User{UserID: 1, TotalExp: 500, Balance: 500, Level: 1}

	const attempts = 10
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.PurchaseCard(1, "headpat", noon)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrCardAlreadyOwned):
		default:
			t.Fatalf("unexpected purchase error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly 1 successful purchase, got %d", succeeded)
	}

	counts, _ := store.CardCounts(1)
	if counts["headpat"] != 1 {
		t.Fatalf("expected one owned copy, got %d", counts["headpat"])
	}
	user, _ := store.GetUser(1)
	if user.Balance != 460 {
		t.Fatalf("expected one debit of 40, balance %d", user.Balance)
	}
}

func TestAdminAdjustPositiveRaisesBothTotals(t *testing.T) {
	store := newFakeStore()
	svc := NewProgressionService(store, testRules(), nil)
	sendText(t, svc, 1, 1)

	user, err := svc.AdminAdjustPoints(1, 30, "event prize")
	if err != nil {
		t.Fatalf("adjustment failed: %v", err)
	}
	if user.TotalExp != 31 || user.Balance != 31 {
		t.Fatalf("expected exp=31 balance=31, got exp=%d balance=%d", user.TotalExp, user.Balance)
	}
}

func TestAdminAdjustNegativeSpendsBalanceOnly(t *testing.T) {
	store := newFakeStore()
	svc := NewProgressionService(store, testRules(), nil)
	sendText(t, svc, 1, 5)

	user, err := svc.AdminAdjustPoints(1, -3, "correction")
	if err != nil {
		t.Fatalf("adjustment failed: %v", err)
	}
	if user.Balance != 2 {
		t.Fatalf("expected balance 2, got %d", user.Balance)
	}
	if user.TotalExp != 5 {
		t.Fatalf("negative adjustment must not reduce lifetime experience, got %d", user.TotalExp)
	}
}

func TestAdminAdjustRejectsInvalid(t *testing.T) {
	store := newFakeStore()
	svc := NewProgressionService(store, testRules(), nil)
	sendText(t, svc, 1, 5)

	if _, err := svc.AdminAdjustPoints(1, 0, "noop"); !errors.Is(err, ErrInvalidAdjustment) {
		t.Fatalf("expected ErrInvalidAdjustment for zero delta, got %v", err)
	}
	if _, err := svc.AdminAdjustPoints(99, 10, "typo"); !errors.Is(err, ErrInvalidAdjustment) {
		t.Fatalf("expected ErrInvalidAdjustment for unknown user, got %v", err)
	}
	if _, err := svc.AdminAdjustPoints(1, -100, "overdraw"); !errors.Is(err, ErrInvalidAdjustment) {
		t.Fatalf("expected ErrInvalidAdjustment for overdraw, got %v", err)
	}

	user, _ := store.GetUser(1)
	if user.Balance != 5 || user.TotalExp != 5 {
		t.Fatalf("rejected adjustments must not change totals, got exp=%d balance=%d", user.TotalExp, user.Balance)
	}
}

func TestLevelUpAtLadderSteps(t *testing.T) {
	store := newFakeStore()
	svc := NewProgressionService(store, testRules(), nil)
	sendText(t, svc, 1, 30)

	user, err := svc.AdminAdjustPoints(1, 25, "boost")
	if err != nil {
		t.Fatalf("adjustment failed: %v", err)
	}
	// 30 earned + 10 chatty reward + 25 granted = 65 exp, past the 50 step.
	if user.Level != 2 {
		t.Fatalf("expected level 2 at %d exp, got level %d", user.TotalExp, user.Level)
	}
}

func TestUseCardConsumesOneCopy(t *testing.T) {
	store := newFakeStore()
	svc := NewProgressionService(store, testRules(), nil)
	sendText(t, svc, 1, 100)

	if _, err := svc.PurchaseCard(1, "headpat", noon); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if _, err := svc.PurchaseCard(1, "headpat", noon); err != nil {
		t.Fatalf("second purchase failed: %v", err)
	}

	if _, err := svc.UseCard(1, "headpat"); err != nil {
		t.Fatalf("use card failed: %v", err)
	}
	counts, _ := store.CardCounts(1)
	if counts["headpat"] != 1 {
		t.Fatalf("expected one copy left, got %d", counts["headpat"])
	}

	if _, err := svc.UseCard(1, "nonexistent"); !errors.Is(err, ErrUnknownCard) {
		t.Fatalf("expected ErrUnknownCard, got %v", err)
	}
	if _, err := svc.UseCard(2, "headpat"); !errors.Is(err, ErrCardNotOwned) {
		t.Fatalf("expected ErrCardNotOwned, got %v", err)
	}
}

func TestDeleteUserRemovesProgression(t *testing.T) {
	store := newFakeStore()
	svc := NewProgressionService(store, testRules(), nil)
	sendText(t, svc, 1, 5)

	if err := svc.DeleteUser(1); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	user, _ := store.GetUser(1)
	if user != nil {
		t.Fatalf("user still present after delete: %+v", user)
	}

	if err := svc.DeleteUser(99); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}
