package domain

import "strings"

// PolicyMode 保留策略模式
type PolicyMode string

const (
	PolicyModeDisabled PolicyMode = "disabled" // 不执行任何清理
	PolicyModeGlobal   PolicyMode = "global"   // 使用系统策略
	PolicyModeScope    PolicyMode = "scope"    // 使用空间自己的规则
)

// AgeRule 按修改时间清理
type AgeRule struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	MaxDaysOld int  `json:"maxDaysOld" yaml:"max_days_old"`
}

// RevisionCountRule 按版本数量清理，只保留最新的 MaxRevisions 个历史版本
type RevisionCountRule struct {
	Enabled      bool `json:"enabled" yaml:"enabled"`
	MaxRevisions int  `json:"maxRevisions" yaml:"max_revisions"`
}

// SizeRule 按历史版本累计大小清理
//
// MaxTotalSize 的单位由 purge.size_unit 决定（默认 MiB）
type SizeRule struct {
	Enabled      bool  `json:"enabled" yaml:"enabled"`
	MaxTotalSize int64 `json:"maxTotalSize" yaml:"max_total_size"`
}

// Policy 附件历史版本保留策略
//
// 系统策略保存在空 scope key 下，空间策略以空间 key 保存。
// Policy 作为值对象使用，解析器返回的是副本。
type Policy struct {
	Mode               PolicyMode        `json:"mode" yaml:"mode"`
	AgeRule            AgeRule           `json:"ageRule" yaml:"age_rule"`
	RevisionCountRule  RevisionCountRule `json:"revisionCountRule" yaml:"revision_count_rule"`
	SizeRule           SizeRule          `json:"sizeRule" yaml:"size_rule"`
	ReportOnly         bool              `json:"reportOnly" yaml:"report_only"`
	ReportEmailAddress string            `json:"reportEmailAddress,omitempty" yaml:"report_email_address,omitempty"`
	SendPlainTextMail  bool              `json:"sendPlainTextMail" yaml:"send_plain_text_mail"` // 仅系统策略生效
	DeleteLimit        int               `json:"deleteLimit" yaml:"delete_limit"`               // 单次运行最多清理的附件数，0 表示不限制
}

// DefaultSystemPolicy 返回默认系统策略：禁用、仅报告、无收件人、无限制
func DefaultSystemPolicy() *Policy {
	return &Policy{
		Mode:       PolicyModeDisabled,
		ReportOnly: true,
	}
}

// Clone 返回策略副本
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// IsDisabled 是否禁用
func (p *Policy) IsDisabled() bool {
	return p.Mode == PolicyModeDisabled
}

// HasRecipient 是否配置了报告收件人
func (p *Policy) HasRecipient() bool {
	return strings.TrimSpace(p.ReportEmailAddress) != ""
}

// Recipient 返回去除空白后的收件人地址
func (p *Policy) Recipient() string {
	return strings.TrimSpace(p.ReportEmailAddress)
}

// HasEnabledRule 是否至少启用了一条规则
func (p *Policy) HasEnabledRule() bool {
	return p.AgeRule.Enabled || p.RevisionCountRule.Enabled || p.SizeRule.Enabled
}
