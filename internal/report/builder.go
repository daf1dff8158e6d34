package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"attachpurge/backend/internal/domain"
)

// Format 报告格式
type Format string

const (
	FormatPlain Format = "text/plain"
	FormatHTML  Format = "text/html"
)

// DefaultSubject 默认邮件主题
const DefaultSubject = "Purged old attachments"

// FormatFor 根据系统策略选择报告格式
func FormatFor(system *domain.Policy) Format {
	if system != nil && system.SendPlainTextMail {
		return FormatPlain
	}
	return FormatHTML
}

// Summary 运行概要
type Summary struct {
	StartedAt time.Time
	EndedAt   time.Time
	Stats     domain.RunStatistics
	Cancelled bool
}

// Elapsed 运行耗时
func (s Summary) Elapsed() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// Message 渲染完成的报告
type Message struct {
	Recipient   string
	Subject     string
	Body        string
	ContentType string
}

// Builder 报告生成器
type Builder struct {
	baseURL string
	subject string
	sender  string
}

// NewBuilder 创建报告生成器
//
// 参数:
//   - baseURL: 链接前缀，如 https://wiki.example.com
//   - subject: 邮件主题，留空使用 DefaultSubject
//   - sender: 页脚中的发送方名称
func NewBuilder(baseURL, subject, sender string) *Builder {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Builder{
		baseURL: strings.TrimRight(baseURL, "/"),
		subject: subject,
		sender:  sender,
	}
}

// Build 为每个收件人生成一份报告
func (b *Builder) Build(format Format, log domain.MailLog, summary Summary) (map[string]Message, error) {
	out := make(map[string]Message, len(log))
	for recipient, entries := range log {
		sorted := SortEntries(entries)

		var (
			body string
			err  error
		)
		switch format {
		case FormatPlain:
			body = b.renderPlain(sorted, summary)
		case FormatHTML:
			body, err = b.renderHTML(sorted, summary)
		default:
			err = fmt.Errorf("unsupported report format %q", format)
		}
		if err != nil {
			return nil, fmt.Errorf("render report for %s: %w", recipient, err)
		}

		out[recipient] = Message{
			Recipient:   recipient,
			Subject:     b.subject,
			Body:        body,
			ContentType: string(format),
		}
	}
	return out, nil
}

// SortEntries 按空间名称、空间 key、文件名排序，返回副本
//
// 同名空间按 key 分开，保证每个空间的条目连续，报告里每个空间只出现一次。
func SortEntries(entries []domain.MailLogEntry) []domain.MailLogEntry {
	sorted := make([]domain.MailLogEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SpaceName != sorted[j].SpaceName {
			return sorted[i].SpaceName < sorted[j].SpaceName
		}
		if sorted[i].SpaceKey != sorted[j].SpaceKey {
			return sorted[i].SpaceKey < sorted[j].SpaceKey
		}
		return sorted[i].Title < sorted[j].Title
	})
	return sorted
}

// totals 已释放与可释放字节数
func totals(entries []domain.MailLogEntry) (deleted, reportOnly int64) {
	for _, e := range entries {
		if e.ReportOnly {
			reportOnly += e.Bytes
		} else {
			deleted += e.Bytes
		}
	}
	return deleted, reportOnly
}

// FormatBytes 可读的字节数
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func (b *Builder) link(path string) string {
	return b.baseURL + path
}

func roundedMillis(total time.Duration, n int64) int64 {
	if n == 0 {
		return 0
	}
	return int64(math.Round(float64(total.Milliseconds()) / float64(n)))
}

func timestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
