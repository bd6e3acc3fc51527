package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/meowdiary/cookie-bot/models"
)

func writeRules(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}
	return path
}

const validRules = `
[experience]
daily_limit = 150

[experience.points]
text = 1
photo = 3

[phrases]
probability = 0.02
meows = ["meow~"]

[[achievements]]
key = "chatty"
name = "Chatty"
emoji = "💬"
description = "Send 10 messages"
stat = "message_count"
op = ">="
threshold = 10
reward = 10

[[badges]]
key = "gold_star"
name = "Gold Star"
emoji = "⭐"
description = "Accumulate 50 points"
stat = "total_points"
op = ">="
threshold = 50

[[cards]]
key = "headpat"
name = "Headpat Voucher"
emoji = "🫳"
description = "One headpat"
price = 40

[[levels]]
delta = 50
title = "Kitten"
`

func TestLoadRulesFromFile(t *testing.T) {
	path := writeRules(t, t.TempDir(), "rules.toml", validRules)

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if rules.Experience.DailyLimit != 150 {
		t.Fatalf("expected daily limit 150, got %d", rules.Experience.DailyLimit)
	}
	if got := rules.Experience.PointsFor(models.MessagePhoto); got != 3 {
		t.Fatalf("expected photo worth 3, got %d", got)
	}
	// Unknown types fall back to the text rate.
	if got := rules.Experience.PointsFor(models.MessageSticker); got != 1 {
		t.Fatalf("expected fallback to text rate, got %d", got)
	}

	if len(rules.Achievements) != 1 || rules.Achievements[0].Key != "chatty" {
		t.Fatalf("achievements not parsed: %+v", rules.Achievements)
	}
	if rules.Achievements[0].Predicate.Stat != models.StatMessageCount {
		t.Fatalf("squashed predicate not parsed: %+v", rules.Achievements[0].Predicate)
	}
	if rules.Achievements[0].Predicate.Threshold != 10 {
		t.Fatalf("unexpected threshold: %d", rules.Achievements[0].Predicate.Threshold)
	}

	card, ok := rules.Card("headpat")
	if !ok || card.Price != 40 {
		t.Fatalf("card lookup failed: %+v ok=%v", card, ok)
	}
	if _, ok := rules.Card("nonexistent"); ok {
		t.Fatalf("unknown card must not resolve")
	}

	// Cards default to stackable.
	if !rules.CardSettings.Stackable {
		t.Fatalf("expected stackable default")
	}
}

func TestLoadRulesMergesDirectory(t *testing.T) {
	dir := t.TempDir()
	writeRules(t, dir, "experience.toml", `
[experience.points]
text = 2
`)
	writeRules(t, dir, "cards.toml", `
[[cards]]
key = "headpat"
name = "Headpat Voucher"
price = 40
`)

	rules, err := LoadRules(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := rules.Experience.PointsFor(models.MessageText); got != 2 {
		t.Fatalf("experience file not merged, got %d", got)
	}
	if _, ok := rules.Card("headpat"); !ok {
		t.Fatalf("cards file not merged")
	}
}

func TestLoadRulesValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"empty key", `
[[achievements]]
key = ""
name = "Broken"
stat = "message_count"
op = ">="
threshold = 1
`},
		{"duplicate key", `
[[achievements]]
key = "dup"
name = "One"
stat = "message_count"
op = ">="
threshold = 1

[[achievements]]
key = "dup"
name = "Two"
stat = "message_count"
op = ">="
threshold = 2
`},
		{"unknown statistic", `
[[achievements]]
key = "bad"
name = "Bad"
stat = "shoe_size"
op = ">="
threshold = 1
`},
		{"unknown operator", `
[[badges]]
key = "bad"
name = "Bad"
stat = "message_count"
op = "<="
threshold = 1
`},
		{"negative threshold", `
[[achievements]]
key = "bad"
name = "Bad"
stat = "message_count"
op = ">="
threshold = -1
`},
		{"non-positive price", `
[[cards]]
key = "free"
name = "Free"
price = 0
`},
		{"non-positive level delta", `
[[levels]]
delta = 0
title = "Nothing"
`},
		{"negative daily limit", `
[experience]
daily_limit = -5
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeRules(t, t.TempDir(), "rules.toml", tc.content)
			if _, err := LoadRules(path); !errors.Is(err, ErrInvalidRules) {
				t.Fatalf("expected ErrInvalidRules, got %v", err)
			}
		})
	}
}

func TestLevelLadder(t *testing.T) {
	rules := &RuleSet{Levels: []models.LevelDefinition{
		{Delta: 50, Title: "Kitten"},
		{Delta: 150, Title: "House Cat"},
	}}

	cases := []struct {
		exp   int64
		level int
	}{
		{0, 1}, {49, 1}, {50, 2}, {199, 2}, {200, 3}, {10000, 3},
	}
	for _, tc := range cases {
		if got := rules.LevelForExp(tc.exp); got != tc.level {
			t.Fatalf("LevelForExp(%d) = %d, expected %d", tc.exp, got, tc.level)
		}
	}

	if got := rules.NextLevelExp(1); got != 50 {
		t.Fatalf("NextLevelExp(1) = %d, expected 50", got)
	}
	if got := rules.NextLevelExp(2); got != 200 {
		t.Fatalf("NextLevelExp(2) = %d, expected 200", got)
	}
	if got := rules.NextLevelExp(3); got != 0 {
		t.Fatalf("NextLevelExp(3) = %d, expected 0 at the top", got)
	}
}
