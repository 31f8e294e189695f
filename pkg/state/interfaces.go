package state

import "context"

// Store keeps at most one Session per chat.
type Store interface {
	// Get returns nil without an error when the chat has no live session.
	Get(ctx context.Context, chatID int64) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, chatID int64) error
	// Lock serializes the handling of one chat's updates.
	Lock(chatID int64) (unlock func())
}
