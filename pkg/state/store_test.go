package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore(time.Hour, zap.NewNop())
	ctx := context.Background()

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	sess := NewSession(1, 10, "ivan", FlowRegistration)
	sess.State = "awaiting_city"
	sess.Fields["name"] = "Иван"
	require.NoError(t, s.Put(ctx, sess))

	sess.Fields["name"] = "changed"

	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "awaiting_city", got.State)
	assert.Equal(t, "Иван", got.Fields["name"])
	assert.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, s.Delete(ctx, 1))
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(time.Hour, zap.NewNop())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, NewSession(1, 1, "", FlowJobPosting)))
	require.NoError(t, s.Put(ctx, NewSession(2, 2, "", FlowJobPosting)))

	now = now.Add(59 * time.Minute)
	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, got)

	now = now.Add(2 * time.Minute)
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Equal(t, 1, s.Sweep())
	assert.Zero(t, s.Len())
}

func TestMemoryStoreNoTTL(t *testing.T) {
	s := NewMemoryStore(0, nil)
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, NewSession(1, 1, "", FlowRegistration)))
	now = now.Add(365 * 24 * time.Hour)

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Zero(t, s.Sweep())
}

func TestChatLocksSerializeSameChat(t *testing.T) {
	locks := newChatLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(7)
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, locks.size())
}

func TestChatLocksIndependentChats(t *testing.T) {
	locks := newChatLocks()
	unlockA := locks.Lock(1)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock(2)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for another chat blocked")
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	locks := newChatLocks()
	unlock := locks.Lock(3)
	unlock()
	unlock()
	assert.Zero(t, locks.size())
}
