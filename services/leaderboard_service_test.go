package services

import (
	"testing"
	"time"

	"github.com/meowdiary/cookie-bot/models"
	"github.com/meowdiary/cookie-bot/repository"
)

func TestRankActivityWeightsAndOrders(t *testing.T) {
	rules := testRules()
	activity := []repository.UserTypeCount{
		{UserID: 1, FirstName: "Ana", Type: models.MessageText, Count: 10},   // 10 points
		{UserID: 2, FirstName: "Bo", Type: models.MessagePhoto, Count: 4},    // 12 points
		{UserID: 2, FirstName: "Bo", Type: models.MessageText, Count: 3},     // +3 = 15
		{UserID: 3, FirstName: "Cy", Type: models.MessageSticker, Count: 5},  // 10 points
		{UserID: 4, FirstName: "Dee", Type: models.MessageOther, Count: 100}, // 0 points
	}

	entries := rankActivity(activity, rules, 0)
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	if entries[0].UserID != 2 || entries[0].Points != 15 {
		t.Fatalf("expected user 2 first with 15 points, got %+v", entries[0])
	}
	// Users 1 and 3 tie at 10 points, the lower id ranks first.
	if entries[1].UserID != 1 || entries[2].UserID != 3 {
		t.Fatalf("tie not broken by ascending user id: %+v %+v", entries[1], entries[2])
	}
	for i, entry := range entries {
		if entry.Rank != i+1 {
			t.Fatalf("rank %d assigned to position %d", entry.Rank, i)
		}
	}

	if entries[1].MessageCount != 10 {
		t.Fatalf("expected message count 10 for user 1, got %d", entries[1].MessageCount)
	}
}

func TestRankActivityAppliesLimit(t *testing.T) {
	activity := []repository.UserTypeCount{
		{UserID: 1, Type: models.MessageText, Count: 3},
		{UserID: 2, Type: models.MessageText, Count: 2},
		{UserID: 3, Type: models.MessageText, Count: 1},
	}

	entries := rankActivity(activity, testRules(), 2)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].UserID != 1 || entries[1].UserID != 2 {
		t.Fatalf("unexpected order after limit: %+v", entries)
	}
}

func TestRangeWindows(t *testing.T) {
	// A Wednesday afternoon.
	now := time.Date(2026, 8, 26, 15, 30, 0, 0, time.Local)

	start, end := RangeDay.Window(now)
	if want := time.Date(2026, 8, 26, 0, 0, 0, 0, time.Local).Unix(); start != want || end != 0 {
		t.Fatalf("day window: got start=%d end=%d, want start=%d", start, end, want)
	}

	start, _ = RangeWeek.Window(now)
	if want := time.Date(2026, 8, 24, 0, 0, 0, 0, time.Local).Unix(); start != want {
		t.Fatalf("week window should start Monday: got %d, want %d", start, want)
	}

	start, _ = RangeMonth.Window(now)
	if want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.Local).Unix(); start != want {
		t.Fatalf("month window: got %d, want %d", start, want)
	}

	start, end = RangeAll.Window(now)
	if start != 0 || end != 0 {
		t.Fatalf("all window must be unbounded, got %d..%d", start, end)
	}
}
