package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/meowdiary/cookie-bot/database"
	"github.com/meowdiary/cookie-bot/repository"
	"github.com/meowdiary/cookie-bot/services"
)

const usage = `Admin commands:
  list-groups                     list every chat with activity aggregates
  list-users                      list every tracked user
  user-detail --user <id>         full profile of one user
  leaderboard --chat <id> [--range day|week|month|all] [--limit N]
                                  chat ranking
  adjust --user <id> --delta <n>  adjust a user's points (negative spends balance)
  delete-user --user <id>         remove a user and everything recorded for them
  wipe                            erase all stored data (asks three times)
`

// Run dispatches one admin subcommand. The database and rules are already
// initialized by the caller.
func Run(progression *services.ProgressionService, leaderboards *services.LeaderboardService, args []string) error {
	if len(args) == 0 {
		fmt.Print(usage)
		return nil
	}

	switch args[0] {
	case "list-groups":
		return listGroups(leaderboards)
	case "list-users":
		return listUsers()
	case "user-detail":
		return userDetail(progression, args[1:])
	case "leaderboard":
		return leaderboard(leaderboards, args[1:])
	case "adjust":
		return adjust(progression, args[1:])
	case "delete-user":
		return deleteUser(progression, args[1:])
	case "wipe":
		return wipe()
	case "help", "--help", "-h":
		fmt.Print(usage)
		return nil
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func listGroups(leaderboards *services.LeaderboardService) error {
	chats, err := leaderboards.ChatsOverview()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHAT ID\tTITLE\tMESSAGES\tLAST ACTIVITY")
	for _, chat := range chats {
		last := "-"
		if chat.LastActivity > 0 {
			last = time.Unix(chat.LastActivity, 0).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", chat.ChatID, chat.Title, chat.MessageCount, last)
	}
	return w.Flush()
}

func listUsers() error {
	users, err := repository.NewUserRepository().GetAll()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER ID\tNAME\tLEVEL\tEXP\tBALANCE\tMESSAGES")
	for _, user := range users {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\n",
			user.UserID, user.DisplayName(), user.Level, user.TotalExp, user.Balance, user.MessageCount)
	}
	return w.Flush()
}

func userDetail(progression *services.ProgressionService, args []string) error {
	flags := pflag.NewFlagSet("user-detail", pflag.ContinueOnError)
	userID := flags.Int64("user", 0, "telegram user id")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *userID == 0 {
		return fmt.Errorf("--user is required")
	}

	profile, err := progression.Profile(*userID)
	if err != nil {
		return err
	}
	if profile == nil {
		return fmt.Errorf("user %d not found", *userID)
	}

	fmt.Printf("%s (id %d)\n", profile.User.DisplayName(), profile.User.UserID)
	fmt.Printf("Level %d, %d exp, %d points balance\n", profile.User.Level, profile.User.TotalExp, profile.User.Balance)
	fmt.Printf("Messages: %d (photo %d, voice %d, sticker %d)\n",
		profile.Stats.MessageCount, profile.Stats.PhotoCount, profile.Stats.VoiceCount, profile.Stats.StickerCount)

	fmt.Printf("Achievements (%d):\n", len(profile.Achievements))
	for _, unlock := range profile.Achievements {
		fmt.Printf("  %s since %s\n", unlock.Key, time.Unix(unlock.TS, 0).Format("2006-01-02"))
	}
	fmt.Printf("Badges (%d):\n", len(profile.Badges))
	for _, unlock := range profile.Badges {
		fmt.Printf("  %s since %s\n", unlock.Key, time.Unix(unlock.TS, 0).Format("2006-01-02"))
	}
	fmt.Printf("Cards (%d):\n", len(profile.Cards))
	for key, count := range profile.Cards {
		fmt.Printf("  %s x%d\n", key, count)
	}
	return nil
}

func leaderboard(leaderboards *services.LeaderboardService, args []string) error {
	flags := pflag.NewFlagSet("leaderboard", pflag.ContinueOnError)
	chatID := flags.Int64("chat", 0, "telegram chat id")
	rangeName := flags.String("range", "all", "day, week, month or all")
	limit := flags.Int("limit", 20, "number of entries")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *chatID == 0 {
		return fmt.Errorf("--chat is required")
	}

	startTS, endTS := services.Range(*rangeName).Window(time.Now())
	entries, err := leaderboards.ChatLeaderboard(*chatID, startTS, endTS, *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tUSER\tPOINTS\tMESSAGES")
	for _, entry := range entries {
		name := entry.FirstName
		if entry.Username != "" {
			name = "@" + entry.Username
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", entry.Rank, name, entry.Points, entry.MessageCount)
	}
	return w.Flush()
}

func adjust(progression *services.ProgressionService, args []string) error {
	flags := pflag.NewFlagSet("adjust", pflag.ContinueOnError)
	userID := flags.Int64("user", 0, "telegram user id")
	delta := flags.Int64("delta", 0, "points to add (negative reduces balance)")
	reason := flags.String("reason", "", "note for the audit log")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *userID == 0 {
		return fmt.Errorf("--user is required")
	}

	user, err := progression.AdminAdjustPoints(*userID, *delta, *reason)
	if err != nil {
		return err
	}
	fmt.Printf("Adjusted %s by %+d: balance %d, exp %d\n",
		user.DisplayName(), *delta, user.Balance, user.TotalExp)
	return nil
}

func deleteUser(progression *services.ProgressionService, args []string) error {
	flags := pflag.NewFlagSet("delete-user", pflag.ContinueOnError)
	userID := flags.Int64("user", 0, "telegram user id")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *userID == 0 {
		return fmt.Errorf("--user is required")
	}

	fmt.Printf("Delete user %d and all their progression? [yes/no] ", *userID)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return err
	}
	if strings.TrimSpace(answer) != "yes" {
		fmt.Println("Aborted.")
		return nil
	}

	if err := progression.DeleteUser(*userID); err != nil {
		return err
	}
	fmt.Println("User deleted.")
	return nil
}

// wipe asks three times before erasing everything, the last answer must be
// the exact phrase.
func wipe() error {
	reader := bufio.NewReader(os.Stdin)

	prompts := []struct {
		question string
		expect   string
	}{
		{"This erases ALL users, messages, unlocks and cards. Continue? [yes/no] ", "yes"},
		{"There is no undo. Are you sure? [yes/no] ", "yes"},
		{"Type ERASE ALL DATA to proceed: ", "ERASE ALL DATA"},
	}

	for _, p := range prompts {
		fmt.Print(p.question)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		if strings.TrimSpace(answer) != p.expect {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := database.Wipe(); err != nil {
		return err
	}
	fmt.Println("All data erased.")
	return nil
}
