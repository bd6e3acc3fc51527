package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/meowdiary/cookie-bot/logger"
	"github.com/meowdiary/cookie-bot/services"
)

// Sender delivers a rendered report to one chat.
type Sender interface {
	SendTo(chatID int64, text string) error
}

// Scheduler runs the recurring jobs, currently just the nightly activity
// report for every chat the bot has seen.
type Scheduler struct {
	cron         *cron.Cron
	leaderboards *services.LeaderboardService
	sender       Sender
	format       func(*services.DailyReport) string
}

// New builds the scheduler. format renders a report for the transport the
// sender speaks.
func New(leaderboards *services.LeaderboardService, sender Sender, format func(*services.DailyReport) string) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		leaderboards: leaderboards,
		sender:       sender,
		format:       format,
	}
}

// Start schedules the jobs and launches the cron loop.
func (s *Scheduler) Start() error {
	// Five past midnight, so the report covers a fully closed day.
	if _, err := s.cron.AddFunc("5 0 * * *", s.sendDailyReports); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info("Scheduler started, daily reports at 00:05")
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) sendDailyReports() {
	chatIDs, err := s.leaderboards.KnownChatIDs()
	if err != nil {
		logger.Errorf("Daily report: failed to list chats: %v", err)
		return
	}

	yesterday := time.Now().AddDate(0, 0, -1)
	for _, chatID := range chatIDs {
		report, err := s.leaderboards.ReportForDay(chatID, yesterday, 5)
		if err != nil {
			logger.Errorf("Daily report: chat %d failed: %v", chatID, err)
			continue
		}
		if report.TotalMessages == 0 {
			// Skip silent chats instead of posting an empty report.
			continue
		}
		if err := s.sender.SendTo(chatID, s.format(report)); err != nil {
			logger.Errorf("Daily report: send to chat %d failed: %v", chatID, err)
		}
	}
	logger.Infof("Daily reports sent to %d chats", len(chatIDs))
}
