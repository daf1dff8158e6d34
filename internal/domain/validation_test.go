package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected bool
	}{
		{"Valid email", "admin@example.com", true},
		{"Valid email with plus", "ops+purge@example.com", true},
		{"Valid email with surrounding spaces", "  admin@example.com ", true},
		{"Invalid email - no @", "adminexample.com", false},
		{"Invalid email - display name", "Admin <admin@example.com>", false},
		{"Invalid email - empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateEmail(tt.email))
		})
	}
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr error
	}{
		{"default system policy", *DefaultSystemPolicy(), nil},
		{"scope policy with all rules", Policy{
			Mode:              PolicyModeScope,
			AgeRule:           AgeRule{Enabled: true, MaxDaysOld: 30},
			RevisionCountRule: RevisionCountRule{Enabled: true, MaxRevisions: 5},
			SizeRule:          SizeRule{Enabled: true, MaxTotalSize: 100},
		}, nil},
		{"revision rule keeping nothing", Policy{
			Mode:              PolicyModeScope,
			RevisionCountRule: RevisionCountRule{Enabled: true, MaxRevisions: 0},
		}, nil},
		{"unknown mode", Policy{Mode: "sometimes"}, ErrInvalidMode},
		{"negative delete limit", Policy{Mode: PolicyModeGlobal, DeleteLimit: -1}, ErrNegativeLimit},
		{"age rule without days", Policy{
			Mode:    PolicyModeScope,
			AgeRule: AgeRule{Enabled: true},
		}, ErrThresholdMissing},
		{"size rule without size", Policy{
			Mode:     PolicyModeScope,
			SizeRule: SizeRule{Enabled: true},
		}, ErrThresholdMissing},
		{"bad recipient", Policy{
			Mode:               PolicyModeScope,
			ReportEmailAddress: "not-an-address",
		}, ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPolicy)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPolicyValidateSystem(t *testing.T) {
	assert.NoError(t, DefaultSystemPolicy().ValidateSystem())
	assert.NoError(t, (&Policy{Mode: PolicyModeScope}).ValidateSystem())

	err := (&Policy{Mode: PolicyModeGlobal}).ValidateSystem()
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	assert.ErrorIs(t, err, ErrSystemDefers)

	// 字段错误优先于模式错误
	err = (&Policy{Mode: PolicyModeGlobal, DeleteLimit: -1}).ValidateSystem()
	assert.ErrorIs(t, err, ErrNegativeLimit)
}

func TestPolicyHelpers(t *testing.T) {
	p := DefaultSystemPolicy()
	assert.True(t, p.IsDisabled())
	assert.True(t, p.ReportOnly)
	assert.False(t, p.HasEnabledRule())
	assert.False(t, p.HasRecipient())

	p.ReportEmailAddress = "  admin@example.com "
	assert.True(t, p.HasRecipient())
	assert.Equal(t, "admin@example.com", p.Recipient())

	clone := p.Clone()
	clone.ReportOnly = false
	assert.True(t, p.ReportOnly, "clone must not alias the original")
}

func TestRunStatisticsAverages(t *testing.T) {
	var s RunStatistics
	assert.Zero(t, s.AverageDeletion())
	assert.Zero(t, s.AverageVisit(1000))

	s.Add(RunStatistics{VersionsDeleted: 4, DeletionTime: 400, AttachmentsVisited: 2, Batches: 1})
	s.Add(RunStatistics{Batches: 1})
	assert.EqualValues(t, 100, s.AverageDeletion())
	assert.EqualValues(t, 500, s.AverageVisit(1000))
	assert.EqualValues(t, 2, s.Batches)
}
