package retention

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"attachpurge/backend/internal/domain"
)

// SizeUnit 大小规则阈值的单位（字节数）
type SizeUnit int64

const (
	UnitKiB SizeUnit = 1 << 10
	UnitMiB SizeUnit = 1 << 20
)

// ParseSizeUnit 解析单位名称，支持 KiB 与 MiB（不区分大小写，KB/MB 视为同义）
func ParseSizeUnit(s string) (SizeUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mib", "mb":
		return UnitMiB, nil
	case "kib", "kb":
		return UnitKiB, nil
	default:
		return 0, fmt.Errorf("unsupported size unit %q (supported: MiB, KiB)", s)
	}
}

// String 单位名称
func (u SizeUnit) String() string {
	switch u {
	case UnitKiB:
		return "KiB"
	case UnitMiB:
		return "MiB"
	default:
		return fmt.Sprintf("%dB", int64(u))
	}
}

// noCut 没有任何版本可清理
const noCut = -1

// Evaluator 根据策略规则计算可清理的历史版本
type Evaluator struct {
	unit SizeUnit
	now  func() time.Time
}

// NewEvaluator 创建规则评估器
//
// 参数:
//   - unit: 大小规则阈值单位
//   - now: 时钟，nil 时使用 time.Now
func NewEvaluator(unit SizeUnit, now func() time.Time) *Evaluator {
	if unit <= 0 {
		unit = UnitMiB
	}
	if now == nil {
		now = time.Now
	}
	return &Evaluator{unit: unit, now: now}
}

// FindEligible 返回可清理的历史版本
//
// 结果总是按版本号升序排序后的前缀（最旧的若干版本）。
// 各规则独立计算截断位置，取最大值，即任一规则命中即可清理。
// 输入切片不会被修改。
func (e *Evaluator) FindEligible(prior []domain.Attachment, policy *domain.Policy) []domain.Attachment {
	if len(prior) == 0 || policy == nil || policy.IsDisabled() {
		return nil
	}

	sorted := make([]domain.Attachment, len(prior))
	copy(sorted, prior)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	cut := noCut
	if policy.RevisionCountRule.Enabled {
		cut = max(cut, revisionCut(len(sorted), policy.RevisionCountRule.MaxRevisions))
	}
	if policy.AgeRule.Enabled {
		cut = max(cut, ageCut(sorted, e.now().AddDate(0, 0, -policy.AgeRule.MaxDaysOld)))
	}
	if policy.SizeRule.Enabled {
		cut = max(cut, sizeCut(sorted, policy.SizeRule.MaxTotalSize*int64(e.unit)))
	}

	switch {
	case cut == noCut:
		return nil
	case cut >= len(sorted)-1:
		return sorted
	default:
		return sorted[:cut+1]
	}
}

// revisionCut 保留最新的 maxRevisions 个版本
func revisionCut(count, maxRevisions int) int {
	if count > maxRevisions {
		return count - maxRevisions - 1
	}
	return noCut
}

// ageCut 从最新版本向前找第一个早于 cutoff 的版本；没有修改时间的版本跳过
func ageCut(sorted []domain.Attachment, cutoff time.Time) int {
	for i := len(sorted) - 1; i >= 0; i-- {
		modified := sorted[i].ModifiedAt
		if modified == nil {
			continue
		}
		if modified.Before(cutoff) {
			return i
		}
	}
	return noCut
}

// sizeCut 从最新版本向前累计大小，超过 limit 的位置及更早的版本可清理
func sizeCut(sorted []domain.Attachment, limit int64) int {
	var total int64
	for i := len(sorted) - 1; i >= 0; i-- {
		total += sorted[i].Size
		if total > limit {
			return i
		}
	}
	return noCut
}

// Anomalies 返回版本号不小于当前版本的可清理版本（数据异常）
func Anomalies(eligible []domain.Attachment, currentVersion int) []int {
	var out []int
	for _, v := range eligible {
		if v.Version >= currentVersion {
			out = append(out, v.Version)
		}
	}
	return out
}
