package botport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Package botport is the outbound interface between the dispatcher and chat adapters.

// BotMessage captures adapter-agnostic identifiers for sent messages.
type BotMessage struct {
	ChatID    int64
	MessageID int
	Transport string
	Payload   string
	Meta      map[string]string
}

// Button is one reply keyboard button. RequestContact asks the client to share the user's phone.
type Button struct {
	Text           string
	RequestContact bool
}

// Keyboard is a reply keyboard shown under a message. Remove hides any keyboard the client shows.
type Keyboard struct {
	Rows        [][]Button
	Placeholder string
	Remove      bool
}

// RemoveKeyboard returns a keyboard that hides the current one.
func RemoveKeyboard() *Keyboard {
	return &Keyboard{Remove: true}
}

// BotError wraps adapter failures with retry hints and normalized codes.
type BotError struct {
	Op         string
	Code       string
	RetryAfter time.Duration
	Wrapped    error
}

func (e *BotError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

// Unwrap exposes the underlying adapter error for errors.Is/As.
func (e *BotError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Wrapped
}

// NewBotError builds a BotError with the provided operation/code, preserving the wrapped error.
func NewBotError(op, code string, err error) *BotError {
	return &BotError{
		Op:      op,
		Code:    code,
		Wrapped: err,
	}
}

// IsCode determines whether err represents a BotError with the provided code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var be *BotError
	if errors.As(err, &be) {
		return be != nil && be.Code == code
	}
	return false
}

// BotPort abstracts outbound message operations for adapters (Telegram, fake).
type BotPort interface {
	// SendMessage sends plain text. A nil keyboard leaves the client's current keyboard untouched.
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *Keyboard) (BotMessage, error)
}
