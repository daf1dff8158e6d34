package retention

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
	"attachpurge/backend/internal/storage/memory"
)

func enabledSystem() *domain.Policy {
	return &domain.Policy{
		Mode:               domain.PolicyModeScope,
		RevisionCountRule:  domain.RevisionCountRule{Enabled: true, MaxRevisions: 3},
		ReportEmailAddress: "admin@example.com",
	}
}

func TestResolve(t *testing.T) {
	system := enabledSystem()

	t.Run("没有空间策略时使用系统策略", func(t *testing.T) {
		eff := Resolve(nil, system)
		require.NotNil(t, eff)
		assert.True(t, eff.System)
		assert.Equal(t, 3, eff.Policy.RevisionCountRule.MaxRevisions)
	})

	t.Run("global 模式整体替换为系统策略", func(t *testing.T) {
		scope := &domain.Policy{
			Mode:    domain.PolicyModeGlobal,
			AgeRule: domain.AgeRule{Enabled: true, MaxDaysOld: 1},
		}
		eff := Resolve(scope, system)
		require.NotNil(t, eff)
		assert.True(t, eff.System)
		assert.False(t, eff.Policy.AgeRule.Enabled, "fields must not be merged")
	})

	t.Run("disabled 模式不清理", func(t *testing.T) {
		scope := &domain.Policy{
			Mode:              domain.PolicyModeDisabled,
			RevisionCountRule: domain.RevisionCountRule{Enabled: true},
		}
		assert.Nil(t, Resolve(scope, system))
	})

	t.Run("scope 模式使用空间策略", func(t *testing.T) {
		scope := &domain.Policy{
			Mode:    domain.PolicyModeScope,
			AgeRule: domain.AgeRule{Enabled: true, MaxDaysOld: 7},
		}
		eff := Resolve(scope, system)
		require.NotNil(t, eff)
		assert.False(t, eff.System)
		assert.Equal(t, 7, eff.Policy.AgeRule.MaxDaysOld)
	})

	t.Run("系统策略禁用时回退结果为空", func(t *testing.T) {
		assert.Nil(t, Resolve(nil, domain.DefaultSystemPolicy()))
		scope := &domain.Policy{Mode: domain.PolicyModeScope}
		assert.NotNil(t, Resolve(scope, domain.DefaultSystemPolicy()))
	})

	t.Run("global 模式的系统策略不生效", func(t *testing.T) {
		deferring := enabledSystem()
		deferring.Mode = domain.PolicyModeGlobal
		assert.Nil(t, Resolve(nil, deferring))
		assert.Nil(t, Resolve(&domain.Policy{Mode: domain.PolicyModeGlobal}, deferring))
	})
}

func TestResolver_SystemPolicyDefault(t *testing.T) {
	store := memory.NewStore()
	r := NewResolver(store, zap.NewNop())

	p, err := r.SystemPolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSystemPolicy(), p)

	require.NoError(t, store.SavePolicy(context.Background(), storage.SystemScope, enabledSystem()))
	p, err = r.SystemPolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PolicyModeScope, p.Mode)
}

func TestResolver_ResolveAll(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.SavePolicy(ctx, "OFF", &domain.Policy{Mode: domain.PolicyModeDisabled}))
	require.NoError(t, store.SavePolicy(ctx, "OWN", &domain.Policy{
		Mode:              domain.PolicyModeScope,
		RevisionCountRule: domain.RevisionCountRule{Enabled: true, MaxRevisions: 1},
	}))

	r := NewResolver(store, zap.NewNop())
	system := enabledSystem()
	all, err := r.ResolveAll(ctx, []string{"OFF", "OWN", "INHERIT", "", "  "}, system)
	require.NoError(t, err)

	assert.Equal(t, 3, all.Len(), "blank keys are skipped")
	assert.Same(t, system, all.System())
	assert.Nil(t, all.For("OFF"), "disabled scope must not fall back to the system policy")
	assert.False(t, all.For("OWN").System)
	assert.True(t, all.For("INHERIT").System)
	assert.True(t, all.For("NEW").System, "unknown scopes use the system policy")
}

type failingPolicyStore struct {
	mock.Mock
}

func (m *failingPolicyStore) GetPolicy(ctx context.Context, scopeKey string) (*domain.Policy, error) {
	args := m.Called(ctx, scopeKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Policy), args.Error(1)
}

func (m *failingPolicyStore) SavePolicy(ctx context.Context, scopeKey string, policy *domain.Policy) error {
	return m.Called(ctx, scopeKey, policy).Error(0)
}

func (m *failingPolicyStore) DeletePolicy(ctx context.Context, scopeKey string) error {
	return m.Called(ctx, scopeKey).Error(0)
}

func TestResolver_StoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	store := new(failingPolicyStore)
	store.On("GetPolicy", mock.Anything, storage.SystemScope).Return(nil, boom)
	store.On("GetPolicy", mock.Anything, "DOC").Return(nil, boom)

	r := NewResolver(store, zap.NewNop())

	_, err := r.SystemPolicy(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = r.ResolveAll(context.Background(), []string{"DOC"}, enabledSystem())
	assert.ErrorIs(t, err, boom)
	store.AssertExpectations(t)
}
