package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StateStore 记录已使用的 state nonce，保证每个 state 只能兑换一次
type StateStore interface {
	// MarkUsed returns true when nonce was not used before.
	MarkUsed(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// RedisStateStore 多实例部署共享 nonce 状态
type RedisStateStore struct {
	client    redis.Cmdable
	keyPrefix string
}

func NewRedisStateStore(client redis.Cmdable, keyPrefix string) *RedisStateStore {
	if keyPrefix == "" {
		keyPrefix = "stagesync:oauth:state:"
	}
	return &RedisStateStore{client: client, keyPrefix: keyPrefix}
}

// MarkUsed uses SETNX with TTL so the check and the write are one atomic step.
func (s *RedisStateStore) MarkUsed(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+nonce, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark state used: %w", err)
	}
	return ok, nil
}

// MemoryStateStore 单实例和测试使用
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{entries: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryStateStore) MarkUsed(_ context.Context, nonce string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, k)
		}
	}
	if _, used := s.entries[nonce]; used {
		return false, nil
	}
	s.entries[nonce] = now.Add(ttl)
	return true, nil
}

var errStateReused = errors.New("state already used")

// StateAudience 区分 state 和 API 访问令牌
const StateAudience = "oauth_state"

type stateClaims struct {
	jwt.RegisteredClaims
}

// StateCodec 签发和校验 OAuth state：HS256 JWT，sub 为用户，jti 为一次性 nonce
type StateCodec struct {
	secret []byte
	ttl    time.Duration
	store  StateStore
	now    func() time.Time
}

func NewStateCodec(secret string, ttl time.Duration, store StateStore) *StateCodec {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if store == nil {
		store = NewMemoryStateStore()
	}
	return &StateCodec{secret: []byte(secret), ttl: ttl, store: store, now: time.Now}
}

// Issue 生成绑定 owner 的 state
func (c *StateCodec) Issue(ownerID string) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			Audience:  jwt.ClaimStrings{StateAudience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// Consume verifies signature and expiry, then burns the nonce. Returns the owner id.
func (c *StateCodec) Consume(ctx context.Context, state string) (string, error) {
	claims := &stateClaims{}
	token, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired(), jwt.WithAudience(StateAudience))
	if err != nil {
		return "", fmt.Errorf("invalid state: %w", err)
	}
	if !token.Valid || claims.Subject == "" || claims.ID == "" {
		return "", fmt.Errorf("invalid state")
	}

	ttl := claims.ExpiresAt.Time.Sub(c.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	fresh, err := c.store.MarkUsed(ctx, claims.ID, ttl)
	if err != nil {
		return "", err
	}
	if !fresh {
		return "", errStateReused
	}
	return claims.Subject, nil
}
