package report

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"attachpurge/backend/internal/domain"
)

func (b *Builder) renderPlain(entries []domain.MailLogEntry, summary Summary) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Started: %s\nEnded: %s\n\n", timestamp(summary.StartedAt), timestamp(summary.EndedAt))

	if summary.Cancelled {
		sb.WriteString("CANCELLED: Job has had an early cancellation request.\n")
	}
	deleted, reportOnly := totals(entries)
	if deleted > 0 {
		fmt.Fprintf(&sb, "A total of %s space has been reclaimed.\n", FormatBytes(deleted))
	}
	if reportOnly > 0 {
		fmt.Fprintf(&sb, "A total of %s can be reclaimed from those in report mode.\n", FormatBytes(reportOnly))
	}
	sb.WriteString("\n")

	currentSpace := ""
	for i, e := range entries {
		if i == 0 || e.SpaceKey != currentSpace {
			if i > 0 {
				sb.WriteString("\n")
			}
			header := fmt.Sprintf("%s:%s (%s)", e.SpaceKey, e.SpaceName, b.link(e.SpaceURLPath))
			sb.WriteString(header)
			sb.WriteString("\n")
			sb.WriteString(strings.Repeat("-", utf8.RuneCountInString(header)))
			sb.WriteString("\n")
			currentSpace = e.SpaceKey
		}

		prefix := "DELETED:"
		if e.ReportOnly {
			prefix = "TO_DELETE:"
		}
		fmt.Fprintf(&sb, "%s %s (%d) versions %s [%s]\n",
			prefix, e.Title, e.Version, CompressVersions(e.Versions), FormatBytes(e.Bytes))
	}

	sb.WriteString("\n")
	for _, line := range statLines(summary) {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if b.sender != "" {
		fmt.Fprintf(&sb, "\nThis message has been sent by %s.\n", b.sender)
	}
	return sb.String()
}

// statLines 运行统计文本，纯文本与 HTML 共用
func statLines(summary Summary) []string {
	s := summary.Stats
	elapsed := summary.Elapsed()

	lines := []string{
		fmt.Sprintf("%d prior versions found for %d attachments.", s.PriorVersionsSeen, s.AttachmentsSeen),
	}
	if s.AttachmentsVisited > 0 {
		lines = append(lines, fmt.Sprintf("Visited %d attachments averaging %d ms per visit.",
			s.AttachmentsVisited, roundedMillis(elapsed, s.AttachmentsVisited)))
	}
	if s.VersionsDeleted > 0 {
		lines = append(lines, fmt.Sprintf("Deleted %d individual versions averaging %d ms per deletion.",
			s.VersionsDeleted, roundedMillis(s.DeletionTime, s.VersionsDeleted)))
	}
	if s.VersionsAvailable > 0 {
		lines = append(lines, fmt.Sprintf("A further %d versions are available for deleting.", s.VersionsAvailable))
	}
	lines = append(lines, fmt.Sprintf("Attachment purging completed in %d ms.", elapsed.Milliseconds()))
	return lines
}
