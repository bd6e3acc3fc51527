package bot

import (
	"context"
	"math/rand"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/meowdiary/cookie-bot/config"
	"github.com/meowdiary/cookie-bot/logger"
	"github.com/meowdiary/cookie-bot/models"
	"github.com/meowdiary/cookie-bot/services"
	"github.com/meowdiary/cookie-bot/websocket"
)

// Bot wires Telegram updates into the progression engine.
type Bot struct {
	api          *tgbotapi.BotAPI
	cfg          *config.Config
	progression  *services.ProgressionService
	leaderboards *services.LeaderboardService
	wsHub        *websocket.Hub
	rng          *rand.Rand
}

// New connects to the Telegram Bot API.
func New(cfg *config.Config, progression *services.ProgressionService, leaderboards *services.LeaderboardService, wsHub *websocket.Hub) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	logger.Infof("Telegram bot authorized as @%s", api.Self.UserName)

	return &Bot{
		api:          api,
		cfg:          cfg,
		progression:  progression,
		leaderboards: leaderboards,
		wsHub:        wsHub,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30

	updates := b.api.GetUpdatesChan(updateConfig)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(update.Message)
		}
	}
}

// SendTo delivers a plain HTML-formatted message to a chat. Used by the
// scheduler for the daily reports.
func (b *Bot) SendTo(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	// Progression only counts group activity, private chats are for commands.
	if msg.Chat == nil || msg.Chat.IsPrivate() {
		return
	}

	b.recordActivity(msg)
}

// classify maps a Telegram message to its progression message type.
func classify(msg *tgbotapi.Message) models.MessageType {
	switch {
	case len(msg.Photo) > 0:
		return models.MessagePhoto
	case msg.Voice != nil:
		return models.MessageVoice
	case msg.Sticker != nil:
		return models.MessageSticker
	case msg.Text != "":
		return models.MessageText
	default:
		return models.MessageOther
	}
}

func (b *Bot) recordActivity(msg *tgbotapi.Message) {
	act := services.Activity{
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
		ChatTitle: msg.Chat.Title,
		Type:      classify(msg),
		TS:        int64(msg.Date),
	}

	result, err := b.progression.RecordActivity(act)
	if err != nil {
		if err != services.ErrUnknownChat {
			logger.WithFields(logrus.Fields{
				"user_id": act.UserID,
				"chat_id": act.ChatID,
			}).Errorf("Failed to record activity: %v", err)
		}
		return
	}

	user := &models.User{
		UserID:    act.UserID,
		Username:  act.Username,
		FirstName: act.FirstName,
		LastName:  act.LastName,
		TotalExp:  result.TotalExp,
		Balance:   result.Balance,
		Level:     result.Level,
	}

	b.wsHub.BroadcastActivity(&websocket.ActivityPayload{
		UserID:        act.UserID,
		Username:      user.DisplayName(),
		ChatID:        act.ChatID,
		MessageType:   string(act.Type),
		PointsAwarded: result.PointsAwarded,
		TotalExp:      result.TotalExp,
		Balance:       result.Balance,
		Level:         result.Level,
	})

	for _, item := range result.NewlyUnlocked {
		b.announceUnlock(msg.Chat.ID, user, item)
		b.wsHub.BroadcastUnlock(user, item)
	}
	if result.LeveledUp {
		title := b.levelTitle(result.Level)
		b.announceLevelUp(msg.Chat.ID, user, result.Level, title)
		b.wsHub.BroadcastLevelUp(user, title)
	}

	b.maybeMeow(msg)
}

// levelTitle returns the configured title for a level, if the ladder has one.
func (b *Bot) levelTitle(level int) string {
	levels := b.progression.Rules().Levels
	// Level 1 is the floor, titles start with the first ladder step.
	if level < 2 || level-2 >= len(levels) {
		return ""
	}
	return levels[level-2].Title
}

// maybeMeow occasionally replies with a random phrase from the config.
func (b *Bot) maybeMeow(msg *tgbotapi.Message) {
	phrases := b.progression.Rules().Phrases
	if len(phrases.Meows) == 0 || b.rng.Float64() >= phrases.Probability {
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, phrases.Meows[b.rng.Intn(len(phrases.Meows))])
	reply.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(reply); err != nil {
		logger.Debugf("Failed to send phrase reply: %v", err)
	}
}
