package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/meowdiary/cookie-bot/models"
)

// ErrInvalidRules wraps every rule validation failure so callers can detect
// bad configuration with errors.Is regardless of the specific problem.
var ErrInvalidRules = errors.New("invalid rules configuration")

// ExperienceConfig controls how many points each message type earns and the
// per-user daily earning cap. A DailyLimit of 0 disables the cap.
type ExperienceConfig struct {
	Points     map[string]int64 `mapstructure:"points"`
	DailyLimit int64            `mapstructure:"daily_limit"`
}

// PointsFor returns the point value for a message type. Unknown types fall
// back to the "text" rate, and a fully empty table earns 1 point per message.
func (e ExperienceConfig) PointsFor(t models.MessageType) int64 {
	if p, ok := e.Points[string(t)]; ok {
		return p
	}
	if p, ok := e.Points[string(models.MessageText)]; ok {
		return p
	}
	return 1
}

// PhrasesConfig holds the playful reply phrases and the reply probability.
type PhrasesConfig struct {
	Meows       []string `mapstructure:"meows"`
	Probability float64  `mapstructure:"probability"`
}

// CardsConfig holds card-shop behavior flags.
type CardsConfig struct {
	// Stackable allows owning several copies of the same card.
	// When false a second purchase of an owned card is rejected.
	Stackable bool `mapstructure:"stackable"`
}

// ActivityConfig describes the activity shown in /start.
type ActivityConfig struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// RuleSet is the fully validated rule configuration the progression engine
// runs against: unlockable definitions, the card shop and the level ladder.
type RuleSet struct {
	Activity     ActivityConfig            `mapstructure:"activity"`
	Experience   ExperienceConfig          `mapstructure:"experience"`
	Phrases      PhrasesConfig             `mapstructure:"phrases"`
	CardSettings CardsConfig               `mapstructure:"card_settings"`
	Achievements []models.UnlockDefinition `mapstructure:"achievements"`
	Badges       []models.UnlockDefinition `mapstructure:"badges"`
	Cards        []models.CardDefinition   `mapstructure:"cards"`
	Levels       []models.LevelDefinition  `mapstructure:"levels"`
}

// LoadRules reads the rule tables from TOML. Path may be a single file or a
// directory, in which case every *.toml file in it is merged (so definitions
// can be split across achievements.toml, badges.toml, cards.toml, ...).
func LoadRules(path string) (*RuleSet, error) {
	v := viper.New()
	v.SetConfigType("toml")

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat rules path: %w", err)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rules directory: %w", err)
		}
		loaded := 0
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
				continue
			}
			v.SetConfigFile(filepath.Join(path, entry.Name()))
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read rules file %s: %w", entry.Name(), err)
			}
			loaded++
		}
		if loaded == 0 {
			return nil, fmt.Errorf("no *.toml rule files found in %s", path)
		}
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read rules file: %w", err)
		}
	}

	rules := &RuleSet{
		// Cards default to stackable unless the config says otherwise.
		CardSettings: CardsConfig{Stackable: true},
	}
	if err := v.Unmarshal(rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}

	if err := rules.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}

	return rules, nil
}

// validate performs the structural checks the engine relies on: unique keys,
// known statistics and operators, sane thresholds and prices.
func (r *RuleSet) validate() error {
	seen := make(map[string]bool)
	for _, def := range r.Achievements {
		if err := validateDefinition("achievement", def, seen); err != nil {
			return err
		}
	}
	seen = make(map[string]bool)
	for _, def := range r.Badges {
		if err := validateDefinition("badge", def, seen); err != nil {
			return err
		}
	}

	seen = make(map[string]bool)
	for _, card := range r.Cards {
		if card.Key == "" {
			return fmt.Errorf("card with empty key")
		}
		if seen[card.Key] {
			return fmt.Errorf("duplicate card key %q", card.Key)
		}
		seen[card.Key] = true
		if card.Price <= 0 {
			return fmt.Errorf("card %q has non-positive price %d", card.Key, card.Price)
		}
	}

	for i, level := range r.Levels {
		if level.Delta <= 0 {
			return fmt.Errorf("level %d has non-positive delta %d", i+1, level.Delta)
		}
	}

	for t, p := range r.Experience.Points {
		if p < 0 {
			return fmt.Errorf("experience points for %q is negative", t)
		}
	}
	if r.Experience.DailyLimit < 0 {
		return fmt.Errorf("experience daily_limit is negative")
	}

	return nil
}

func validateDefinition(kind string, def models.UnlockDefinition, seen map[string]bool) error {
	if def.Key == "" {
		return fmt.Errorf("%s with empty key", kind)
	}
	if seen[def.Key] {
		return fmt.Errorf("duplicate %s key %q", kind, def.Key)
	}
	seen[def.Key] = true

	if !models.ValidStatistics[def.Predicate.Stat] {
		return fmt.Errorf("%s %q references unknown statistic %q", kind, def.Key, def.Predicate.Stat)
	}
	switch def.Predicate.Op {
	case models.OpGTE, models.OpGT, models.OpEQ:
	default:
		return fmt.Errorf("%s %q has unknown operator %q", kind, def.Key, def.Predicate.Op)
	}
	if def.Predicate.Threshold < 0 {
		return fmt.Errorf("%s %q has negative threshold %d", kind, def.Key, def.Predicate.Threshold)
	}
	if def.Reward < 0 {
		return fmt.Errorf("%s %q has negative reward %d", kind, def.Key, def.Reward)
	}
	return nil
}

// Card looks up a card definition by key. Shops are small, a scan is fine.
func (r *RuleSet) Card(key string) (models.CardDefinition, bool) {
	for _, card := range r.Cards {
		if card.Key == key {
			return card, true
		}
	}
	return models.CardDefinition{}, false
}

// Definitions returns all unlockable definitions of the given kind.
func (r *RuleSet) Definitions(kind models.UnlockKind) []models.UnlockDefinition {
	if kind == models.KindBadge {
		return r.Badges
	}
	return r.Achievements
}

// Definition looks up one unlockable definition by kind and key.
func (r *RuleSet) Definition(kind models.UnlockKind, key string) (models.UnlockDefinition, bool) {
	for _, def := range r.Definitions(kind) {
		if def.Key == key {
			return def, true
		}
	}
	return models.UnlockDefinition{}, false
}

// LevelForExp computes the level reached with the given lifetime experience.
// Levels start at 1; each ladder step requires its delta on top of the
// previous step. Experience past the last step stays at the top level.
func (r *RuleSet) LevelForExp(exp int64) int {
	level := 1
	var needed int64
	for _, step := range r.Levels {
		needed += step.Delta
		if exp < needed {
			return level
		}
		level++
	}
	return level
}

// NextLevelExp returns the total experience required for the next level,
// or 0 when the user already sits at the top of the ladder.
func (r *RuleSet) NextLevelExp(currentLevel int) int64 {
	if currentLevel >= len(r.Levels)+1 {
		return 0
	}
	var needed int64
	for i := 0; i < currentLevel && i < len(r.Levels); i++ {
		needed += r.Levels[i].Delta
	}
	return needed
}
