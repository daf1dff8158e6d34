package retention

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attachpurge/backend/internal/domain"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func daysAgo(n int) *time.Time {
	t := fixedNow.AddDate(0, 0, -n)
	return &t
}

// versions 构造版本号 1..n 的历史版本
func versions(n int) []domain.Attachment {
	out := make([]domain.Attachment, n)
	for i := range out {
		out[i] = domain.Attachment{ID: string(rune('a' + i)), LineageID: "L", Version: i + 1, Size: 1}
	}
	return out
}

func versionNumbers(atts []domain.Attachment) []int {
	out := make([]int, 0, len(atts))
	for _, a := range atts {
		out = append(out, a.Version)
	}
	return out
}

func scopePolicy() *domain.Policy {
	return &domain.Policy{Mode: domain.PolicyModeScope}
}

func TestFindEligible_RevisionCount(t *testing.T) {
	e := NewEvaluator(UnitMiB, clock)

	t.Run("保留最新两个版本", func(t *testing.T) {
		p := scopePolicy()
		p.RevisionCountRule = domain.RevisionCountRule{Enabled: true, MaxRevisions: 2}
		got := e.FindEligible(versions(5), p)
		assert.Equal(t, []int{1, 2, 3}, versionNumbers(got))
	})

	t.Run("版本数未超过上限", func(t *testing.T) {
		p := scopePolicy()
		p.RevisionCountRule = domain.RevisionCountRule{Enabled: true, MaxRevisions: 5}
		assert.Empty(t, e.FindEligible(versions(5), p))
	})

	t.Run("上限为零时全部可清理", func(t *testing.T) {
		p := scopePolicy()
		p.RevisionCountRule = domain.RevisionCountRule{Enabled: true, MaxRevisions: 0}
		assert.Equal(t, []int{1, 2, 3}, versionNumbers(e.FindEligible(versions(3), p)))
	})
}

func TestFindEligible_Age(t *testing.T) {
	e := NewEvaluator(UnitMiB, clock)
	p := scopePolicy()
	p.AgeRule = domain.AgeRule{Enabled: true, MaxDaysOld: 30}

	t.Run("早于阈值的版本可清理", func(t *testing.T) {
		prior := versions(3)
		prior[0].ModifiedAt = daysAgo(60)
		prior[1].ModifiedAt = daysAgo(40)
		prior[2].ModifiedAt = daysAgo(10)
		assert.Equal(t, []int{1, 2}, versionNumbers(e.FindEligible(prior, p)))
	})

	t.Run("缺少修改时间的版本被跳过", func(t *testing.T) {
		prior := versions(3)
		prior[0].ModifiedAt = daysAgo(60)
		prior[2].ModifiedAt = daysAgo(10)
		assert.Equal(t, []int{1}, versionNumbers(e.FindEligible(prior, p)))
	})

	t.Run("恰好等于阈值不算过期", func(t *testing.T) {
		prior := versions(1)
		prior[0].ModifiedAt = daysAgo(30)
		assert.Empty(t, e.FindEligible(prior, p))
	})

	t.Run("全部缺少修改时间", func(t *testing.T) {
		assert.Empty(t, e.FindEligible(versions(4), p))
	})
}

func TestFindEligible_Size(t *testing.T) {
	prior := versions(4)
	prior[0].Size = 400 << 10
	prior[1].Size = 300 << 10
	prior[2].Size = 200 << 10
	prior[3].Size = 100 << 10

	t.Run("KiB 单位：阈值等于最新两个版本之和", func(t *testing.T) {
		e := NewEvaluator(UnitKiB, clock)
		p := scopePolicy()
		p.SizeRule = domain.SizeRule{Enabled: true, MaxTotalSize: 300}
		assert.Equal(t, []int{1, 2}, versionNumbers(e.FindEligible(prior, p)))
	})

	t.Run("MiB 单位：同样的阈值不会触发", func(t *testing.T) {
		e := NewEvaluator(UnitMiB, clock)
		p := scopePolicy()
		p.SizeRule = domain.SizeRule{Enabled: true, MaxTotalSize: 300}
		assert.Empty(t, e.FindEligible(prior, p))
	})

	t.Run("MiB 单位：超过 1MiB 后更早的版本可清理", func(t *testing.T) {
		big := versions(3)
		big[0].Size = 1 << 20
		big[1].Size = 1 << 20
		big[2].Size = 1 << 20
		e := NewEvaluator(UnitMiB, clock)
		p := scopePolicy()
		p.SizeRule = domain.SizeRule{Enabled: true, MaxTotalSize: 2}
		assert.Equal(t, []int{1}, versionNumbers(e.FindEligible(big, p)))
	})
}

func TestFindEligible_UnionOfRules(t *testing.T) {
	e := NewEvaluator(UnitMiB, clock)
	p := scopePolicy()
	p.RevisionCountRule = domain.RevisionCountRule{Enabled: true, MaxRevisions: 10}
	p.AgeRule = domain.AgeRule{Enabled: true, MaxDaysOld: 30}

	prior := versions(4)
	prior[0].ModifiedAt = daysAgo(90)
	prior[1].ModifiedAt = daysAgo(45)
	prior[2].ModifiedAt = daysAgo(5)
	prior[3].ModifiedAt = daysAgo(1)

	got := e.FindEligible(prior, p)
	assert.Equal(t, []int{1, 2}, versionNumbers(got))

	p.RevisionCountRule.MaxRevisions = 1
	got = e.FindEligible(prior, p)
	assert.Equal(t, []int{1, 2, 3}, versionNumbers(got), "the larger cut wins")
}

func TestFindEligible_SortsInput(t *testing.T) {
	e := NewEvaluator(UnitMiB, clock)
	p := scopePolicy()
	p.RevisionCountRule = domain.RevisionCountRule{Enabled: true, MaxRevisions: 1}

	prior := []domain.Attachment{{Version: 3}, {Version: 1}, {Version: 0}, {Version: 2}}
	got := e.FindEligible(prior, p)
	assert.Equal(t, []int{0, 1, 2}, versionNumbers(got))
	assert.Equal(t, 3, prior[0].Version, "input must not be reordered")
}

func TestFindEligible_NoRules(t *testing.T) {
	e := NewEvaluator(UnitMiB, clock)

	assert.Empty(t, e.FindEligible(nil, scopePolicy()))
	assert.Empty(t, e.FindEligible(versions(3), scopePolicy()))
	assert.Empty(t, e.FindEligible(versions(3), nil))

	disabled := &domain.Policy{
		Mode:              domain.PolicyModeDisabled,
		RevisionCountRule: domain.RevisionCountRule{Enabled: true, MaxRevisions: 0},
	}
	assert.Empty(t, e.FindEligible(versions(3), disabled))
}

func TestFindEligible_AlwaysPrefix(t *testing.T) {
	e := NewEvaluator(UnitKiB, clock)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		n := rng.Intn(12)
		prior := make([]domain.Attachment, n)
		for j := range prior {
			prior[j] = domain.Attachment{Version: rng.Intn(20), Size: int64(rng.Intn(4096))}
			if rng.Intn(3) > 0 {
				prior[j].ModifiedAt = daysAgo(rng.Intn(120))
			}
		}
		p := &domain.Policy{
			Mode:              domain.PolicyModeScope,
			AgeRule:           domain.AgeRule{Enabled: rng.Intn(2) == 0, MaxDaysOld: 1 + rng.Intn(90)},
			RevisionCountRule: domain.RevisionCountRule{Enabled: rng.Intn(2) == 0, MaxRevisions: rng.Intn(8)},
			SizeRule:          domain.SizeRule{Enabled: rng.Intn(2) == 0, MaxTotalSize: 1 + int64(rng.Intn(20))},
		}

		got := e.FindEligible(prior, p)
		require.LessOrEqual(t, len(got), n)
		for j := 1; j < len(got); j++ {
			require.LessOrEqual(t, got[j-1].Version, got[j].Version)
		}
		// 结果中任意版本号都不大于未入选的版本号
		if len(got) > 0 && len(got) < n {
			last := got[len(got)-1].Version
			rest := 0
			for _, a := range prior {
				if a.Version > last {
					rest++
				}
			}
			require.LessOrEqual(t, rest, n-len(got))
		}
	}
}

func TestAnomalies(t *testing.T) {
	eligible := []domain.Attachment{{Version: 1}, {Version: 4}, {Version: 5}}
	assert.Equal(t, []int{4, 5}, Anomalies(eligible, 4))
	assert.Empty(t, Anomalies(eligible, 6))
}

func TestParseSizeUnit(t *testing.T) {
	u, err := ParseSizeUnit("")
	require.NoError(t, err)
	assert.Equal(t, UnitMiB, u)

	u, err = ParseSizeUnit("KiB")
	require.NoError(t, err)
	assert.Equal(t, UnitKiB, u)
	assert.Equal(t, "KiB", u.String())

	_, err = ParseSizeUnit("GiB")
	assert.Error(t, err)
}
