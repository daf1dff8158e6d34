package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
)

// PolicyService 保留策略管理服务
type PolicyService struct {
	store storage.PolicyStore
	log   *zap.Logger
}

// NewPolicyService 创建策略服务
func NewPolicyService(store storage.PolicyStore, log *zap.Logger) *PolicyService {
	return &PolicyService{
		store: store,
		log:   log.With(zap.String("component", "policy")),
	}
}

// Get 获取策略
//
// 系统策略未保存时返回默认策略；空间策略未保存时返回 storage.ErrPolicyNotFound。
func (s *PolicyService) Get(ctx context.Context, scopeKey string) (*domain.Policy, error) {
	policy, err := s.store.GetPolicy(ctx, scopeKey)
	if errors.Is(err, storage.ErrPolicyNotFound) && scopeKey == storage.SystemScope {
		return domain.DefaultSystemPolicy(), nil
	}
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// Save 校验并保存策略
//
// 纯文本格式只对系统策略有意义，保存空间策略时会被清除。
func (s *PolicyService) Save(ctx context.Context, scopeKey string, policy *domain.Policy) (*domain.Policy, error) {
	if policy == nil {
		return nil, fmt.Errorf("%w: policy is empty", domain.ErrInvalidPolicy)
	}
	validate := policy.Validate
	if scopeKey == storage.SystemScope {
		validate = policy.ValidateSystem
	}
	if err := validate(); err != nil {
		return nil, err
	}

	saved := policy.Clone()
	if scopeKey != storage.SystemScope {
		saved.SendPlainTextMail = false
	}

	if err := s.store.SavePolicy(ctx, scopeKey, saved); err != nil {
		return nil, fmt.Errorf("save policy: %w", err)
	}

	s.log.Info("policy saved",
		zap.String("scope", storage.PolicyKey(scopeKey)),
		zap.String("mode", string(saved.Mode)),
		zap.Bool("report_only", saved.ReportOnly),
	)
	return saved, nil
}

// Delete 删除策略，删除后空间回退到系统策略，系统策略回退到默认策略
func (s *PolicyService) Delete(ctx context.Context, scopeKey string) error {
	if err := s.store.DeletePolicy(ctx, scopeKey); err != nil {
		return err
	}
	s.log.Info("policy deleted", zap.String("scope", storage.PolicyKey(scopeKey)))
	return nil
}
