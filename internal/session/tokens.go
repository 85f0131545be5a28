package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/koopa0/system-design/14-board-game-server/pkg/errors"
)

// Tokens 身分與 session token 的對應
type Tokens interface {
	// Save 寫入（或覆寫）身分的 token
	Save(ctx context.Context, identity, token string, ttl time.Duration) error
	// Lookup 取回 token；不存在或過期回傳 UNKNOWN_IDENTITY
	Lookup(ctx context.Context, identity string) (string, error)
	// Touch 延長有效期
	Touch(ctx context.Context, identity string, ttl time.Duration) error
}

// MemoryTokens 單機用的記憶體實作
type MemoryTokens struct {
	mu     sync.RWMutex
	tokens map[string]memoryToken
	clock  func() time.Time
}

type memoryToken struct {
	token     string
	expiresAt time.Time
}

// NewMemoryTokens 建立記憶體 token 儲存
func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{
		tokens: make(map[string]memoryToken),
		clock:  time.Now,
	}
}

// SetClock 替換時鐘（測試用）
func (m *MemoryTokens) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// Save 實作 Tokens
func (m *MemoryTokens) Save(_ context.Context, identity, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[identity] = memoryToken{token: token, expiresAt: m.expiry(ttl)}
	return nil
}

// Lookup 實作 Tokens
func (m *MemoryTokens) Lookup(_ context.Context, identity string) (string, error) {
	m.mu.RLock()
	t, ok := m.tokens[identity]
	now := m.clock()
	m.mu.RUnlock()

	if !ok || (!t.expiresAt.IsZero() && now.After(t.expiresAt)) {
		return "", errors.ErrUnknownIdentity
	}
	return t.token, nil
}

// Touch 實作 Tokens
func (m *MemoryTokens) Touch(_ context.Context, identity string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[identity]
	if !ok {
		return errors.ErrUnknownIdentity
	}
	t.expiresAt = m.expiry(ttl)
	m.tokens[identity] = t
	return nil
}

func (m *MemoryTokens) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.clock().Add(ttl)
}

// RedisTokens 以 Redis 保存 token，多個伺服器實例共用，過期交給 TTL
type RedisTokens struct {
	client *redis.Client
	prefix string
}

// NewRedisTokens 建立 Redis token 儲存
func NewRedisTokens(client *redis.Client) *RedisTokens {
	return &RedisTokens{client: client, prefix: "session:"}
}

func (r *RedisTokens) key(identity string) string {
	return r.prefix + identity
}

// Save 實作 Tokens
func (r *RedisTokens) Save(ctx context.Context, identity, token string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(identity), token, ttl).Err(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Lookup 實作 Tokens
func (r *RedisTokens) Lookup(ctx context.Context, identity string) (string, error) {
	token, err := r.client.Get(ctx, r.key(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return "", errors.ErrUnknownIdentity
	}
	if err != nil {
		return "", fmt.Errorf("lookup token: %w", err)
	}
	return token, nil
}

// Touch 實作 Tokens
func (r *RedisTokens) Touch(ctx context.Context, identity string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ok, err := r.client.Expire(ctx, r.key(identity), ttl).Result()
	if err != nil {
		return fmt.Errorf("touch token: %w", err)
	}
	if !ok {
		return errors.ErrUnknownIdentity
	}
	return nil
}
