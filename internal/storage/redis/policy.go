package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
)

// PolicyStore 以 JSON 形式在 Redis 中保存策略
//
// ttl 为 0 时永久保存；作为缓存使用时设置 ttl。
type PolicyStore struct {
	client *Client
	ttl    time.Duration
}

var _ storage.PolicyStore = (*PolicyStore)(nil)

// NewPolicyStore 创建策略存储
func NewPolicyStore(client *Client, ttl time.Duration) *PolicyStore {
	return &PolicyStore{client: client, ttl: ttl}
}

func (s *PolicyStore) key(scopeKey string) string {
	return s.client.Key("policy", storage.PolicyKey(scopeKey))
}

// GetPolicy 获取策略，不存在时返回 storage.ErrPolicyNotFound
func (s *PolicyStore) GetPolicy(ctx context.Context, scopeKey string) (*domain.Policy, error) {
	data, err := s.client.rdb.Get(ctx, s.key(scopeKey)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}

	var policy domain.Policy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("decode cached policy: %w", err)
	}
	return &policy, nil
}

// SavePolicy 保存策略
func (s *PolicyStore) SavePolicy(ctx context.Context, scopeKey string, policy *domain.Policy) error {
	data, err := json.Marshal(policy)
	if err != nil {
		return err
	}
	return s.client.rdb.Set(ctx, s.key(scopeKey), data, s.ttl).Err()
}

// DeletePolicy 删除策略
func (s *PolicyStore) DeletePolicy(ctx context.Context, scopeKey string) error {
	n, err := s.client.rdb.Del(ctx, s.key(scopeKey)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrPolicyNotFound
	}
	return nil
}
