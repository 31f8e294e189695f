package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix          = "joby:session:"
	defaultDialTimeout = 5 * time.Second
)

// RedisConfig captures the settings for the Redis session backend.
type RedisConfig struct {
	Addr    string
	DB      int
	Timeout time.Duration
}

// ConnectRedis creates a client and checks it with a ping.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisStore keeps sessions as JSON values that expire after the TTL.
// Chat locks stay in process, so a single bot replica is assumed.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	locks  *chatLocks
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		locks:  newChatLocks(),
		now:    time.Now,
	}
}

func (s *RedisStore) Get(ctx context.Context, chatID int64) (*Session, error) {
	data, err := s.client.Get(ctx, key(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session %d: %w", chatID, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %d: %w", chatID, err)
	}
	if sess.Fields == nil {
		sess.Fields = make(map[string]string)
	}
	return &sess, nil
}

func (s *RedisStore) Put(ctx context.Context, sess *Session) error {
	c := sess.Clone()
	c.UpdatedAt = s.now()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", c.ChatID, err)
	}
	if err := s.client.Set(ctx, key(c.ChatID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session %d: %w", c.ChatID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, key(chatID)).Err(); err != nil {
		return fmt.Errorf("redis del session %d: %w", chatID, err)
	}
	return nil
}

func (s *RedisStore) Lock(chatID int64) func() {
	return s.locks.Lock(chatID)
}

func key(chatID int64) string {
	return keyPrefix + strconv.FormatInt(chatID, 10)
}
