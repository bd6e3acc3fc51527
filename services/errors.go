package services

import (
	"errors"

	"github.com/meowdiary/cookie-bot/config"
)

// Sentinel errors returned by the progression engine. Callers branch on
// these with errors.Is to pick user-facing replies.
var (
	// ErrUnknownChat is returned for activity in chats the bot does not serve.
	ErrUnknownChat = errors.New("unknown chat")

	// ErrUnknownUser is returned by admin operations that name a user the
	// bot has never seen.
	ErrUnknownUser = errors.New("unknown user")

	// ErrUnknownCard is returned when a purchase names a card key that is
	// not in the configured shop.
	ErrUnknownCard = errors.New("unknown card")

	// ErrInsufficientBalance is returned when a purchase costs more than the
	// user's spendable balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrCardAlreadyOwned is returned when cards are configured as
	// non-stackable and the user already owns a copy.
	ErrCardAlreadyOwned = errors.New("card already owned")

	// ErrCardNotOwned is returned when using a card the user holds none of.
	ErrCardNotOwned = errors.New("card not owned")

	// ErrInvalidAdjustment is returned for admin adjustments that are zero,
	// target an unknown user, or would push the balance below zero.
	ErrInvalidAdjustment = errors.New("invalid adjustment")

	// ErrInvalidConfig is returned when the rule tables fail validation.
	ErrInvalidConfig = config.ErrInvalidRules

	// ErrConcurrentModification is returned when the storage layer gives up
	// after repeated lock contention.
	ErrConcurrentModification = errors.New("concurrent modification, please retry")
)
