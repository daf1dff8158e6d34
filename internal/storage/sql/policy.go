package sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
)

// policyRecord 策略以 JSON 形式保存，新增规则字段不需要迁移
type policyRecord struct {
	ScopeKey  string `gorm:"primaryKey;type:varchar(255)"`
	Payload   string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (policyRecord) TableName() string {
	return "retention_policies"
}

// GetPolicy 获取策略
func (s *Store) GetPolicy(ctx context.Context, scopeKey string) (*domain.Policy, error) {
	var rec policyRecord
	err := s.db.WithContext(ctx).First(&rec, "scope_key = ?", storage.PolicyKey(scopeKey)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}

	var policy domain.Policy
	if err := json.Unmarshal([]byte(rec.Payload), &policy); err != nil {
		return nil, fmt.Errorf("decode policy %s: %w", rec.ScopeKey, err)
	}
	return &policy, nil
}

// SavePolicy 保存策略（存在则覆盖）
func (s *Store) SavePolicy(ctx context.Context, scopeKey string, policy *domain.Policy) error {
	payload, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}

	rec := policyRecord{
		ScopeKey: storage.PolicyKey(scopeKey),
		Payload:  string(payload),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&rec).Error
}

// DeletePolicy 删除策略
func (s *Store) DeletePolicy(ctx context.Context, scopeKey string) error {
	result := s.db.WithContext(ctx).Delete(&policyRecord{}, "scope_key = ?", storage.PolicyKey(scopeKey))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrPolicyNotFound
	}
	return nil
}
