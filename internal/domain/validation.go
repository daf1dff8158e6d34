package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidPolicy    = errors.New("invalid retention policy")
	ErrInvalidMode      = errors.New("unknown policy mode")
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrNegativeLimit    = errors.New("limit must not be negative")
	ErrThresholdMissing = errors.New("enabled rule requires a positive threshold")
	ErrSystemDefers     = errors.New("system policy cannot use global mode")
)

// MaxEmailLength RFC 5322 邮箱地址长度限制
const MaxEmailLength = 254

// ValidateEmail 验证邮箱地址格式
func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > MaxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	// 只接受裸地址，不接受 "Name <a@b>" 形式
	return addr.Address == email
}

// Validate 校验策略字段
//
// 返回的错误都包装了 ErrInvalidPolicy，可用 errors.Is 判断。
func (p *Policy) Validate() error {
	switch p.Mode {
	case PolicyModeDisabled, PolicyModeGlobal, PolicyModeScope:
	default:
		return invalid(fmt.Errorf("%w: %q", ErrInvalidMode, p.Mode))
	}

	if p.DeleteLimit < 0 {
		return invalid(fmt.Errorf("deleteLimit: %w", ErrNegativeLimit))
	}
	if p.AgeRule.MaxDaysOld < 0 || p.RevisionCountRule.MaxRevisions < 0 || p.SizeRule.MaxTotalSize < 0 {
		return invalid(ErrNegativeLimit)
	}

	if p.AgeRule.Enabled && p.AgeRule.MaxDaysOld == 0 {
		return invalid(fmt.Errorf("ageRule: %w", ErrThresholdMissing))
	}
	if p.SizeRule.Enabled && p.SizeRule.MaxTotalSize == 0 {
		return invalid(fmt.Errorf("sizeRule: %w", ErrThresholdMissing))
	}
	// RevisionCountRule 允许 0：删除全部历史版本

	if p.HasRecipient() && !ValidateEmail(p.Recipient()) {
		return invalid(fmt.Errorf("%w: %q", ErrInvalidEmail, p.ReportEmailAddress))
	}
	return nil
}

// ValidateSystem 校验系统策略
//
// 系统策略只能是 disabled 或 scope，global 表示使用系统策略本身，没有意义。
func (p *Policy) ValidateSystem() error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Mode == PolicyModeGlobal {
		return invalid(ErrSystemDefers)
	}
	return nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
}
