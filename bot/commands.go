package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/meowdiary/cookie-bot/logger"
	"github.com/meowdiary/cookie-bot/models"
	"github.com/meowdiary/cookie-bot/services"
)

const helpText = `<b>Commands</b>
/myinfo - your stats, level and balance
/leaderboard [day|week|month|all] - chat ranking
/achievements - all achievements and how to earn them
/badges - all badges
/cards - the card shop
/myachievements - achievements you earned
/mybadges - badges you earned
/mycards - cards you own
/buycard &lt;key&gt; - spend points on a card
/usecard &lt;key&gt; - play one of your cards
/yesterday_report - yesterday's activity summary
/ping - check that the bot is alive`

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.cmdStart(msg)
	case "help":
		b.reply(msg, helpText)
	case "ping":
		b.reply(msg, "mrrp! 🐈")
	case "myinfo":
		b.cmdMyInfo(msg)
	case "leaderboard":
		b.cmdLeaderboard(msg)
	case "achievements":
		b.cmdListUnlockables(msg, models.KindAchievement)
	case "badges":
		b.cmdListUnlockables(msg, models.KindBadge)
	case "cards":
		b.cmdListCards(msg)
	case "myachievements":
		b.cmdMyUnlocks(msg, models.KindAchievement)
	case "mybadges":
		b.cmdMyUnlocks(msg, models.KindBadge)
	case "mycards":
		b.cmdMyCards(msg)
	case "buycard":
		b.cmdBuyCard(msg)
	case "usecard":
		b.cmdUseCard(msg)
	case "yesterday_report":
		b.cmdYesterdayReport(msg)
	case "grant":
		b.cmdGrant(msg)
	}
}

// cmdGrant adjusts a user's points from chat. Restricted to the admin
// ids from config; stays out of /help on purpose.
func (b *Bot) cmdGrant(msg *tgbotapi.Message) {
	if !b.cfg.IsAdmin(msg.From.ID) {
		return
	}

	fields := strings.Fields(msg.CommandArguments())
	if len(fields) != 2 {
		b.reply(msg, "Usage: /grant &lt;user_id&gt; &lt;delta&gt;")
		return
	}
	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		b.reply(msg, "That doesn't look like a user id.")
		return
	}
	delta, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		b.reply(msg, "That doesn't look like a point amount.")
		return
	}

	reason := fmt.Sprintf("/grant by admin %d", msg.From.ID)
	user, err := b.progression.AdminAdjustPoints(userID, delta, reason)
	switch {
	case errors.Is(err, services.ErrInvalidAdjustment):
		b.reply(msg, "Can't apply that adjustment. Check the user id and that the balance stays above zero.")
		return
	case errors.Is(err, services.ErrConcurrentModification):
		b.reply(msg, "The database is busy, try again in a moment.")
		return
	case err != nil:
		b.reply(msg, "Something went wrong, try again later.")
		return
	}

	if b.wsHub != nil {
		b.wsHub.BroadcastAdjustment(user, delta)
	}
	b.reply(msg, fmt.Sprintf("Adjusted %s by %+d. New balance: %d",
		html.EscapeString(user.DisplayName()), delta, user.Balance))
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ParseMode = tgbotapi.ModeHTML
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		logger.Debugf("Failed to send reply: %v", err)
	}
}

func (b *Bot) cmdStart(msg *tgbotapi.Message) {
	activity := b.progression.Rules().Activity
	name := activity.Name
	if name == "" {
		name = "Cookie Bot"
	}
	text := fmt.Sprintf("<b>%s</b>\n%s\n\nChat away to earn points, then check /help for everything else.",
		html.EscapeString(name), html.EscapeString(activity.Description))
	b.reply(msg, text)
}

func (b *Bot) cmdMyInfo(msg *tgbotapi.Message) {
	profile, err := b.progression.Profile(msg.From.ID)
	if err != nil {
		b.reply(msg, "Something went wrong, try again later.")
		return
	}
	if profile == nil {
		b.reply(msg, "I haven't seen you chat yet. Say something first!")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n", html.EscapeString(profile.User.DisplayName()))
	fmt.Fprintf(&sb, "Level %d", profile.User.Level)
	if title := b.levelTitle(profile.User.Level); title != "" {
		fmt.Fprintf(&sb, " · %s", html.EscapeString(title))
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Experience: %d", profile.User.TotalExp)
	if profile.NextLevelExp > 0 {
		fmt.Fprintf(&sb, " (next level at %d)", profile.NextLevelExp)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Balance: %d points\n", profile.User.Balance)
	fmt.Fprintf(&sb, "Messages: %d (📷 %d · 🎤 %d · 🎟 %d)\n",
		profile.Stats.MessageCount, profile.Stats.PhotoCount,
		profile.Stats.VoiceCount, profile.Stats.StickerCount)
	fmt.Fprintf(&sb, "Achievements: %d · Badges: %d · Cards: %d",
		profile.Stats.AchievementCount, profile.Stats.BadgeCount, profile.Stats.CardCount)

	b.reply(msg, sb.String())
}

func (b *Bot) cmdLeaderboard(msg *tgbotapi.Message) {
	if msg.Chat.IsPrivate() {
		b.reply(msg, "Leaderboards only make sense in a group chat.")
		return
	}

	timeRange := services.RangeAll
	switch strings.TrimSpace(msg.CommandArguments()) {
	case "day":
		timeRange = services.RangeDay
	case "week":
		timeRange = services.RangeWeek
	case "month":
		timeRange = services.RangeMonth
	}

	startTS, endTS := timeRange.Window(time.Now())
	entries, err := b.leaderboards.ChatLeaderboard(msg.Chat.ID, startTS, endTS, 10)
	if err != nil {
		b.reply(msg, "Something went wrong, try again later.")
		return
	}
	if len(entries) == 0 {
		b.reply(msg, "No activity recorded yet.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Leaderboard</b> (%s)\n", timeRange)
	for _, entry := range entries {
		medal := fmt.Sprintf("%d.", entry.Rank)
		switch entry.Rank {
		case 1:
			medal = "🥇"
		case 2:
			medal = "🥈"
		case 3:
			medal = "🥉"
		}
		fmt.Fprintf(&sb, "%s %s - %d points (%d messages)\n",
			medal, html.EscapeString(displayName(entry)), entry.Points, entry.MessageCount)
	}
	b.reply(msg, sb.String())
}

func displayName(entry models.LeaderboardEntry) string {
	if entry.FirstName != "" {
		name := entry.FirstName
		if entry.LastName != "" {
			name += " " + entry.LastName
		}
		return name
	}
	if entry.Username != "" {
		return "@" + entry.Username
	}
	return fmt.Sprintf("user %d", entry.UserID)
}

func (b *Bot) cmdListUnlockables(msg *tgbotapi.Message, kind models.UnlockKind) {
	defs := b.progression.Rules().Definitions(kind)
	if len(defs) == 0 {
		b.reply(msg, "Nothing is configured yet.")
		return
	}

	var sb strings.Builder
	if kind == models.KindBadge {
		sb.WriteString("<b>Badges</b>\n")
	} else {
		sb.WriteString("<b>Achievements</b>\n")
	}
	for _, def := range defs {
		fmt.Fprintf(&sb, "%s <b>%s</b> - %s", def.Emoji, html.EscapeString(def.Name), html.EscapeString(def.Description))
		if def.Reward > 0 {
			fmt.Fprintf(&sb, " (+%d points)", def.Reward)
		}
		sb.WriteString("\n")
	}
	b.reply(msg, sb.String())
}

func (b *Bot) cmdListCards(msg *tgbotapi.Message) {
	cards := b.progression.Rules().Cards
	if len(cards) == 0 {
		b.reply(msg, "The card shop is empty.")
		return
	}

	var sb strings.Builder
	sb.WriteString("<b>Card shop</b>\n")
	for _, card := range cards {
		fmt.Fprintf(&sb, "%s <b>%s</b> (<code>%s</code>) - %d points\n%s\n",
			card.Emoji, html.EscapeString(card.Name), card.Key, card.Price, html.EscapeString(card.Description))
	}
	sb.WriteString("\nBuy with /buycard &lt;key&gt;")
	b.reply(msg, sb.String())
}

func (b *Bot) cmdMyUnlocks(msg *tgbotapi.Message, kind models.UnlockKind) {
	profile, err := b.progression.Profile(msg.From.ID)
	if err != nil || profile == nil {
		b.reply(msg, "I haven't seen you chat yet. Say something first!")
		return
	}

	unlocks := profile.Achievements
	label := "achievements"
	if kind == models.KindBadge {
		unlocks = profile.Badges
		label = "badges"
	}
	if len(unlocks) == 0 {
		b.reply(msg, fmt.Sprintf("No %s yet. Keep chatting!", label))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Your %s</b>\n", label)
	for _, unlock := range unlocks {
		def, ok := b.progression.Rules().Definition(kind, unlock.Key)
		if !ok {
			// Definition was removed from the config since the unlock.
			fmt.Fprintf(&sb, "• %s\n", unlock.Key)
			continue
		}
		fmt.Fprintf(&sb, "%s <b>%s</b> - %s\n", def.Emoji, html.EscapeString(def.Name),
			time.Unix(unlock.TS, 0).Format("02 Jan 2006"))
	}
	b.reply(msg, sb.String())
}

func (b *Bot) cmdMyCards(msg *tgbotapi.Message) {
	profile, err := b.progression.Profile(msg.From.ID)
	if err != nil || profile == nil {
		b.reply(msg, "I haven't seen you chat yet. Say something first!")
		return
	}
	if len(profile.Cards) == 0 {
		b.reply(msg, "You don't own any cards. Browse the shop with /cards")
		return
	}

	var sb strings.Builder
	sb.WriteString("<b>Your cards</b>\n")
	// Walk the shop order so the listing is stable.
	for _, card := range b.progression.Rules().Cards {
		count := profile.Cards[card.Key]
		if count == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%s <b>%s</b> ×%d\n", card.Emoji, html.EscapeString(card.Name), count)
	}
	b.reply(msg, sb.String())
}

func (b *Bot) cmdBuyCard(msg *tgbotapi.Message) {
	key := strings.TrimSpace(msg.CommandArguments())
	if key == "" {
		b.reply(msg, "Usage: /buycard &lt;key&gt; - see /cards for keys")
		return
	}

	result, err := b.progression.PurchaseCard(msg.From.ID, key, int64(msg.Date))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownCard):
			b.reply(msg, "No such card. See /cards for the shop.")
		case errors.Is(err, services.ErrInsufficientBalance):
			b.reply(msg, "Not enough points. Check your balance with /myinfo")
		case errors.Is(err, services.ErrCardAlreadyOwned):
			b.reply(msg, "You already own that card.")
		case errors.Is(err, services.ErrConcurrentModification):
			b.reply(msg, "The shop is busy, try again.")
		default:
			b.reply(msg, "Something went wrong, try again later.")
		}
		return
	}

	b.reply(msg, fmt.Sprintf("%s You bought <b>%s</b> for %d points! Balance: %d",
		result.Card.Emoji, html.EscapeString(result.Card.Name), result.Price, result.NewBalance))

	if user, _ := b.progression.Profile(msg.From.ID); user != nil {
		b.wsHub.BroadcastPurchase(user.User, result)
		for _, item := range result.NewlyUnlocked {
			b.announceUnlock(msg.Chat.ID, user.User, item)
			b.wsHub.BroadcastUnlock(user.User, item)
		}
	}
}

func (b *Bot) cmdUseCard(msg *tgbotapi.Message) {
	key := strings.TrimSpace(msg.CommandArguments())
	if key == "" {
		b.reply(msg, "Usage: /usecard &lt;key&gt; - see /mycards for what you own")
		return
	}

	card, err := b.progression.UseCard(msg.From.ID, key)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownCard):
			b.reply(msg, "No such card.")
		case errors.Is(err, services.ErrCardNotOwned):
			b.reply(msg, "You don't own that card.")
		default:
			b.reply(msg, "Something went wrong, try again later.")
		}
		return
	}

	b.reply(msg, fmt.Sprintf("%s <b>%s</b> played! %s",
		card.Emoji, html.EscapeString(card.Name), html.EscapeString(card.Description)))
}

func (b *Bot) cmdYesterdayReport(msg *tgbotapi.Message) {
	if msg.Chat.IsPrivate() {
		b.reply(msg, "Reports only make sense in a group chat.")
		return
	}

	report, err := b.leaderboards.ReportForDay(msg.Chat.ID, time.Now().AddDate(0, 0, -1), 5)
	if err != nil {
		b.reply(msg, "Something went wrong, try again later.")
		return
	}
	b.reply(msg, FormatReport(report))
}

// FormatReport renders a daily report as a Telegram HTML message.
func FormatReport(report *services.DailyReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Activity report for %s</b>\n", report.Day.Format("Monday, 02 Jan 2006"))
	if report.TotalMessages == 0 {
		sb.WriteString("A very quiet day. Not a single message!")
		return sb.String()
	}
	fmt.Fprintf(&sb, "%d messages in total\n\n", report.TotalMessages)
	for _, entry := range report.Top {
		fmt.Fprintf(&sb, "%d. %s - %d points (%d messages)\n",
			entry.Rank, html.EscapeString(displayName(entry)), entry.Points, entry.MessageCount)
	}
	return sb.String()
}

func (b *Bot) announceUnlock(chatID int64, user *models.User, item models.UnlockedItem) {
	kind := "achievement"
	if item.Kind == models.KindBadge {
		kind = "badge"
	}
	text := fmt.Sprintf("%s <b>%s</b> earned the %s <b>%s</b>!",
		item.Definition.Emoji, html.EscapeString(user.DisplayName()), kind, html.EscapeString(item.Definition.Name))
	if item.Definition.Reward > 0 {
		text += fmt.Sprintf(" +%d points", item.Definition.Reward)
	}
	if err := b.SendTo(chatID, text); err != nil {
		logger.Debugf("Failed to announce unlock: %v", err)
	}
}

func (b *Bot) announceLevelUp(chatID int64, user *models.User, level int, title string) {
	text := fmt.Sprintf("🎉 <b>%s</b> reached level %d!", html.EscapeString(user.DisplayName()), level)
	if title != "" {
		text += fmt.Sprintf(" They are now a <b>%s</b>.", html.EscapeString(title))
	}
	if err := b.SendTo(chatID, text); err != nil {
		logger.Debugf("Failed to announce level up: %v", err)
	}
}
