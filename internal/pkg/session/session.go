package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "admin:session:"

var ErrSessionNotFound = errors.New("session not found or expired")

// Session 管理员会话
type Session struct {
	Token     string    `json:"-"`
	AdminID   int64     `json:"admin_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store 基于 Redis 的会话存储。
// 过期时间同时写在记录里，读取时校验，不依赖 key TTL 是否已被清理。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, now: time.Now}
}

// WithClock 替换时钟，测试用
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Create 生成不透明 token 并保存会话
func (s *Store) Create(ctx context.Context, adminID int64, username string) (*Session, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now()
	sess := &Session{
		Token:     hex.EncodeToString(buf),
		AdminID:   adminID,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, keyPrefix+sess.Token, data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return sess, nil
}

// Get 读取会话，过期的记录会被删除
func (s *Store) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	key := keyPrefix + token
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.rdb.Del(ctx, key)
		return nil, ErrSessionNotFound
	}

	if !s.now().Before(sess.ExpiresAt) {
		s.rdb.Del(ctx, key)
		return nil, ErrSessionNotFound
	}

	sess.Token = token
	return &sess, nil
}

func (s *Store) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.rdb.Del(ctx, keyPrefix+token).Err()
}
