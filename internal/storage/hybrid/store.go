package hybrid

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
)

// Store 混合存储实现：内容与事务走主存储，策略读取优先走缓存
//
// 缓存写入失败只记录日志，主存储始终是策略的权威来源。
type Store struct {
	storage.Store
	cache storage.PolicyStore
	log   *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建混合存储
//
// 参数:
//   - primary: 主存储（通常是 SQL 存储）
//   - cache: 策略缓存（通常是带 TTL 的 Redis 策略存储）
func NewStore(primary storage.Store, cache storage.PolicyStore, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		Store: primary,
		cache: cache,
		log:   log.With(zap.String("component", "hybrid_store")),
	}
}

// GetPolicy 先查缓存，未命中时读主存储并回填缓存
func (s *Store) GetPolicy(ctx context.Context, scopeKey string) (*domain.Policy, error) {
	policy, err := s.cache.GetPolicy(ctx, scopeKey)
	if err == nil {
		return policy, nil
	}
	if !errors.Is(err, storage.ErrPolicyNotFound) {
		s.log.Warn("policy cache read failed", zap.String("scope", storage.PolicyKey(scopeKey)), zap.Error(err))
	}

	policy, err = s.Store.GetPolicy(ctx, scopeKey)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SavePolicy(ctx, scopeKey, policy); err != nil {
		s.log.Warn("policy cache fill failed", zap.String("scope", storage.PolicyKey(scopeKey)), zap.Error(err))
	}
	return policy, nil
}

// SavePolicy 写主存储后更新缓存
func (s *Store) SavePolicy(ctx context.Context, scopeKey string, policy *domain.Policy) error {
	if err := s.Store.SavePolicy(ctx, scopeKey, policy); err != nil {
		return err
	}
	if err := s.cache.SavePolicy(ctx, scopeKey, policy); err != nil {
		s.log.Warn("policy cache update failed, evicting", zap.String("scope", storage.PolicyKey(scopeKey)), zap.Error(err))
		s.evict(ctx, scopeKey)
	}
	return nil
}

// DeletePolicy 删除主存储中的策略并清除缓存
func (s *Store) DeletePolicy(ctx context.Context, scopeKey string) error {
	err := s.Store.DeletePolicy(ctx, scopeKey)
	s.evict(ctx, scopeKey)
	return err
}

func (s *Store) evict(ctx context.Context, scopeKey string) {
	if err := s.cache.DeletePolicy(ctx, scopeKey); err != nil && !errors.Is(err, storage.ErrPolicyNotFound) {
		s.log.Warn("policy cache eviction failed", zap.String("scope", storage.PolicyKey(scopeKey)), zap.Error(err))
	}
}
