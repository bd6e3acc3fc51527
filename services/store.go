package services

import (
	"github.com/meowdiary/cookie-bot/models"
	"github.com/meowdiary/cookie-bot/repository"
)

// Store is the persistence surface the progression engine runs against.
// Guard failures (not enough balance, already unlocked) come back as a
// boolean instead of an error so the engine owns the error vocabulary.
type Store interface {
	GetUser(userID int64) (*models.User, error)
	UpsertUser(userID int64, username, firstName, lastName string) error
	AddActivity(userID, points int64) (*models.User, error)
	GrantPoints(userID, points int64) (*models.User, error)
	DeductBalance(userID, amount int64) (newBalance int64, ok bool, err error)
	SetLevel(userID int64, level int) error
	UserStats(userID int64) (models.UserStats, error)
	DeleteUser(userID int64) error

	UpsertChat(chatID int64, title string) error
	RecordMessage(msg models.Message) error
	MessageCounts(userID, startTS, endTS int64) (map[models.MessageType]int64, error)

	HasUnlock(userID int64, kind models.UnlockKind, key string) (bool, error)
	RecordUnlock(userID int64, kind models.UnlockKind, key string, ts int64) (inserted bool, err error)
	ListUnlocks(userID int64, kind models.UnlockKind) ([]models.Unlock, error)

	PurchaseCard(userID int64, key string, price, ts int64, unique bool) (newBalance int64, ok, owned bool, err error)
	CardCounts(userID int64) (map[string]int64, error)
	ListCards(userID int64) ([]models.OwnedCard, error)
	UseCard(userID int64, key string) (bool, error)
}

// sqlStore implements Store over the repository layer.
type sqlStore struct {
	users    *repository.UserRepository
	chats    *repository.ChatRepository
	messages *repository.MessageRepository
	unlocks  *repository.UnlockRepository
	cards    *repository.CardRepository
}

// NewSQLStore builds the database-backed Store used in production.
func NewSQLStore() Store {
	return &sqlStore{
		users:    repository.NewUserRepository(),
		chats:    repository.NewChatRepository(),
		messages: repository.NewMessageRepository(),
		unlocks:  repository.NewUnlockRepository(),
		cards:    repository.NewCardRepository(),
	}
}

func (s *sqlStore) GetUser(userID int64) (*models.User, error) {
	return s.users.GetByID(userID)
}

func (s *sqlStore) UpsertUser(userID int64, username, firstName, lastName string) error {
	return s.users.Upsert(userID, username, firstName, lastName)
}

func (s *sqlStore) AddActivity(userID, points int64) (*models.User, error) {
	return s.users.AddActivity(userID, points)
}

func (s *sqlStore) GrantPoints(userID, points int64) (*models.User, error) {
	return s.users.GrantPoints(userID, points)
}

func (s *sqlStore) DeductBalance(userID, amount int64) (int64, bool, error) {
	return s.users.DeductBalance(userID, amount)
}

func (s *sqlStore) SetLevel(userID int64, level int) error {
	return s.users.SetLevel(userID, level)
}

func (s *sqlStore) UserStats(userID int64) (models.UserStats, error) {
	return s.users.StatsForUser(userID)
}

func (s *sqlStore) DeleteUser(userID int64) error {
	return s.users.Delete(userID)
}

func (s *sqlStore) UpsertChat(chatID int64, title string) error {
	return s.chats.Upsert(chatID, title)
}

func (s *sqlStore) RecordMessage(msg models.Message) error {
	return s.messages.Record(msg)
}

func (s *sqlStore) MessageCounts(userID, startTS, endTS int64) (map[models.MessageType]int64, error) {
	return s.messages.CountsForUser(userID, startTS, endTS)
}

func (s *sqlStore) HasUnlock(userID int64, kind models.UnlockKind, key string) (bool, error) {
	return s.unlocks.Has(userID, kind, key)
}

func (s *sqlStore) RecordUnlock(userID int64, kind models.UnlockKind, key string, ts int64) (bool, error) {
	return s.unlocks.Record(userID, kind, key, ts)
}

func (s *sqlStore) ListUnlocks(userID int64, kind models.UnlockKind) ([]models.Unlock, error) {
	return s.unlocks.ListForUser(userID, kind)
}

func (s *sqlStore) PurchaseCard(userID int64, key string, price, ts int64, unique bool) (int64, bool, bool, error) {
	return s.cards.Purchase(userID, key, price, ts, unique)
}

func (s *sqlStore) CardCounts(userID int64) (map[string]int64, error) {
	return s.cards.CountsForUser(userID)
}

func (s *sqlStore) ListCards(userID int64) ([]models.OwnedCard, error) {
	return s.cards.ListForUser(userID)
}

func (s *sqlStore) UseCard(userID int64, key string) (bool, error) {
	return s.cards.Use(userID, key)
}
