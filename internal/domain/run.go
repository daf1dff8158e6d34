package domain

import "time"

// RunOutcome 运行结果
type RunOutcome string

const (
	RunCompleted              RunOutcome = "completed"
	RunCompletedWithMailError RunOutcome = "completed_with_mail_error"
	RunCancelled              RunOutcome = "cancelled"
	RunFailed                 RunOutcome = "failed"
)

// RunResult 单次清理运行结果
type RunResult struct {
	RunID       string        `json:"runId"`
	Outcome     RunOutcome    `json:"outcome"`
	StartedAt   time.Time     `json:"startedAt"`
	EndedAt     time.Time     `json:"endedAt"`
	Stats       RunStatistics `json:"stats"`
	ReportsSent int           `json:"reportsSent"`
	Err         error         `json:"-"`
	MailErr     error         `json:"-"`
}

// Elapsed 运行耗时
func (r *RunResult) Elapsed() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Cancelled 是否被提前取消
func (r *RunResult) Cancelled() bool {
	return r.Outcome == RunCancelled
}

// MailLogEntry 单个附件的处理记录，用于生成报告
type MailLogEntry struct {
	SpaceKey           string `json:"spaceKey"`
	SpaceName          string `json:"spaceName"`
	SpaceURLPath       string `json:"spaceUrlPath"`
	AttachmentID       string `json:"attachmentId"`
	Title              string `json:"title"`
	AttachmentsURLPath string `json:"attachmentsUrlPath"`
	Version            int    `json:"version"`      // 当前版本号
	Versions           []int  `json:"versions"`     // 已删除或可删除的版本号（升序）
	ReportOnly         bool   `json:"reportOnly"`   // true 表示仅报告，未删除
	SystemPolicy       bool   `json:"systemPolicy"` // 是否使用系统策略
	Bytes              int64  `json:"bytes"`        // 已释放或可释放的字节数
}

// MailLog 按收件人聚合的处理记录
type MailLog map[string][]MailLogEntry

// Add 为收件人追加记录
func (l MailLog) Add(recipient string, entry MailLogEntry) {
	l[recipient] = append(l[recipient], entry)
}

// Merge 合并另一份记录
func (l MailLog) Merge(o MailLog) {
	for recipient, entries := range o {
		l[recipient] = append(l[recipient], entries...)
	}
}
