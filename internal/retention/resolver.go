package retention

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
)

// Effective 某个空间实际生效的策略
type Effective struct {
	Policy *domain.Policy
	System bool // true 表示来自系统策略
}

// EffectivePolicies 一次运行内各空间的生效策略
type EffectivePolicies struct {
	system *domain.Policy
	scopes map[string]*Effective // 值为 nil 表示该空间已禁用
}

// System 返回系统策略
func (e *EffectivePolicies) System() *domain.Policy {
	return e.system
}

// For 返回空间的生效策略，nil 表示不清理
//
// 运行开始后才出现的空间按系统策略处理。
func (e *EffectivePolicies) For(scopeKey string) *Effective {
	if eff, ok := e.scopes[scopeKey]; ok {
		return eff
	}
	return fallback(e.system)
}

// Len 已解析的空间数
func (e *EffectivePolicies) Len() int {
	return len(e.scopes)
}

// Resolve 合并空间策略与系统策略
//
// 规则：
//   - 没有空间策略或模式为 global：使用系统策略（系统策略不是 scope 模式时返回 nil）
//   - 模式为 disabled：返回 nil
//   - 其余情况使用空间策略本身
func Resolve(scope, system *domain.Policy) *Effective {
	if scope == nil || scope.Mode == domain.PolicyModeGlobal {
		return fallback(system)
	}
	if scope.IsDisabled() {
		return nil
	}
	return &Effective{Policy: scope.Clone()}
}

// fallback 只有 scope 模式的系统策略才会生效
func fallback(system *domain.Policy) *Effective {
	if system == nil || system.Mode != domain.PolicyModeScope {
		return nil
	}
	return &Effective{Policy: system.Clone(), System: true}
}

// Resolver 从策略存储中解析生效策略
type Resolver struct {
	store storage.PolicyStore
	log   *zap.Logger
}

// NewResolver 创建策略解析器
func NewResolver(store storage.PolicyStore, log *zap.Logger) *Resolver {
	return &Resolver{
		store: store,
		log:   log.With(zap.String("component", "resolver")),
	}
}

// SystemPolicy 读取系统策略，未保存时返回默认策略
func (r *Resolver) SystemPolicy(ctx context.Context) (*domain.Policy, error) {
	policy, err := r.store.GetPolicy(ctx, storage.SystemScope)
	if errors.Is(err, storage.ErrPolicyNotFound) {
		r.log.Debug("no system policy stored, using default")
		return domain.DefaultSystemPolicy(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load system policy: %w", err)
	}
	return policy, nil
}

// Resolve 解析单个空间的生效策略，nil 表示不清理
func (r *Resolver) Resolve(ctx context.Context, scopeKey string, system *domain.Policy) (*Effective, error) {
	scope, err := r.store.GetPolicy(ctx, scopeKey)
	if errors.Is(err, storage.ErrPolicyNotFound) {
		return Resolve(nil, system), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load policy for space %q: %w", scopeKey, err)
	}
	return Resolve(scope, system), nil
}

// ResolveAll 解析所有空间的生效策略，空 key 的空间被跳过
func (r *Resolver) ResolveAll(ctx context.Context, scopeKeys []string, system *domain.Policy) (*EffectivePolicies, error) {
	out := &EffectivePolicies{
		system: system,
		scopes: make(map[string]*Effective, len(scopeKeys)),
	}

	for _, key := range scopeKeys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		eff, err := r.Resolve(ctx, key, system)
		if err != nil {
			return nil, err
		}
		out.scopes[key] = eff
	}

	r.log.Debug("resolved space policies", zap.Int("spaces", len(out.scopes)))
	return out, nil
}
