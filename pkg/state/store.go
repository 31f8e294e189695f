package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore keeps sessions in process memory. Sessions idle for longer than
// the TTL are dropped lazily on Get and in bulk by Sweep.
type MemoryStore struct {
	sessions map[int64]*Session
	ttl      time.Duration
	locks    *chatLocks
	logger   *zap.Logger
	now      func() time.Time
	mu       sync.Mutex
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		sessions: make(map[int64]*Session),
		ttl:      ttl,
		locks:    newChatLocks(),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, chatID int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return nil, nil
	}
	if sess.Expired(s.now(), s.ttl) {
		s.logger.Info("Session expired", zap.Int64("chat_id", chatID), zap.String("flow", string(sess.Flow)))
		delete(s.sessions, chatID)
		return nil, nil
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, sess *Session) error {
	c := sess.Clone()
	c.UpdatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[c.ChatID] = c
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
	return nil
}

func (s *MemoryStore) Lock(chatID int64) func() {
	return s.locks.Lock(chatID)
}

// Sweep removes every expired session and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, sess := range s.sessions {
		if sess.Expired(now, s.ttl) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// RunJanitor calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("Expired sessions removed", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
